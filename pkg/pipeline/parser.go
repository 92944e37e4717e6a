// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// AST PARSER CONTRACT
// =============================================================================
//
// The AST parser is an external collaborator: the pipeline never inspects
// source syntax itself. A Parser instance is stateful (it accumulates a
// symbol table as chunks are parsed), so each pool worker owns exactly one
// instance and cross-chunk merging happens only on the coordinator.

// ParserOptions configures a new Parser instance.
type ParserOptions struct {
	WorkspacePath string
	TSConfigPath  string
	ProjectType   string
	ProjectID     string

	// LazyLoad makes the parser touch only the files it is handed,
	// never the whole workspace. Pool workers require this.
	LazyLoad bool
}

// ChunkOutput is what one parsed chunk yields.
type ChunkOutput struct {
	Nodes          []graph.CodeNode
	Edges          []graph.CodeEdge
	DeferredEdges  []graph.DeferredEdge
	FilesProcessed int

	// SharedContext is the parser's serialised symbol-table increment
	// for this chunk. Opaque to the pipeline; the coordinator merges it
	// into the resolving parser after all chunks complete.
	SharedContext []byte
}

// Parser is the AST collaborator interface the pipeline drives.
type Parser interface {
	// DiscoverSourceFiles enumerates parseable files under the workspace.
	DiscoverSourceFiles(ctx context.Context) ([]string, error)

	// ParseChunk parses a bounded file list. With skipDeferredResolution
	// the parser emits symbolic DeferredEdges instead of resolving
	// cross-file references in place.
	ParseChunk(ctx context.Context, files []string, skipDeferredResolution bool) (*ChunkOutput, error)

	// AddParsedNodesFromChunk registers nodes parsed elsewhere so that
	// deferred-edge resolution can see them.
	AddParsedNodesFromChunk(nodes []graph.CodeNode) error

	// MergeSerializedSharedContext merges a chunk's symbol-table
	// increment into this instance.
	MergeSerializedSharedContext(ctx []byte) error

	// MergeDeferredEdges registers unresolved edges from a chunk.
	MergeDeferredEdges(edges []graph.DeferredEdge) error

	// ResolveDeferredEdges resolves all registered deferred edges
	// against the merged node set and returns the concrete edges.
	ResolveDeferredEdges(ctx context.Context) ([]graph.CodeEdge, error)

	// ApplyEdgeEnhancements runs the parser's post-resolution passes
	// (decorator edges, framework wiring) and returns the extra edges.
	ApplyEdgeEnhancements(ctx context.Context) ([]graph.CodeEdge, error)

	// LoadFrameworkSchemasForType primes the parser with framework
	// heuristics for the given project type.
	LoadFrameworkSchemasForType(projectType string) error

	// ClearParsedData resets all per-run state.
	ClearParsedData()

	// ProjectID reports the project this instance is bound to.
	ProjectID() string
}

// ParserFactory builds a Parser instance. Pool workers call it once per
// worker; the coordinator calls it once for the resolution pass.
type ParserFactory func(opts ParserOptions) (Parser, error)
