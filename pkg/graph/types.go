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

package graph

import "time"

// ProjectStatus is the lifecycle state of an indexed project.
type ProjectStatus string

const (
	// ProjectParsing marks a project whose graph is being (re)built.
	ProjectParsing ProjectStatus = "parsing"

	// ProjectComplete marks a project whose last parse finished successfully.
	ProjectComplete ProjectStatus = "complete"

	// ProjectFailed marks a project whose last parse aborted.
	ProjectFailed ProjectStatus = "failed"
)

// Project is the root of the ownership tree for one indexed codebase.
type Project struct {
	// ID is the deterministic identifier (proj_<12hex> of the root path).
	ID string `json:"id"`

	// Name is the friendly name, taken from the package manifest when one
	// exists, otherwise the directory basename.
	Name string `json:"name"`

	// Path is the absolute project root path.
	Path string `json:"path"`

	// Status is the parse lifecycle state.
	Status ProjectStatus `json:"status"`

	// NodeCount and EdgeCount are the totals from the last completed parse.
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`

	// UpdatedAt is the time of the last status transition.
	UpdatedAt time.Time `json:"updated_at"`
}

// IndexedFile is the persisted snapshot of one source file, used by the
// change detector. A file is unchanged iff all three of mtime, size, and
// content hash match the on-disk state.
type IndexedFile struct {
	FilePath    string `json:"file_path"`
	MtimeMs     int64  `json:"mtime_ms"`
	Size        int64  `json:"size"`
	ContentHash string `json:"content_hash"`
}

// CodeNode is one entity extracted from source code (function, class,
// interface, variable, ...). A node belongs to exactly one project and
// one file.
type CodeNode struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Labels       []string `json:"labels,omitempty"`
	CoreType     string   `json:"core_type"`
	SemanticType string   `json:"semantic_type,omitempty"`
	FilePath     string   `json:"file_path"`
	LineNumber   int      `json:"line_number,omitempty"`
	SourceCode   string   `json:"source_code,omitempty"`
	Visibility   string   `json:"visibility,omitempty"`
	IsExported   bool     `json:"is_exported"`
}

// EdgeDirection describes how an edge should be traversed.
type EdgeDirection string

const (
	DirectionOutgoing      EdgeDirection = "OUTGOING"
	DirectionIncoming      EdgeDirection = "INCOMING"
	DirectionBidirectional EdgeDirection = "BIDIRECTIONAL"
)

// CodeEdge is a typed relationship between two nodes. The ID is a
// deterministic function of (source, type, target); see GenerateEdgeID.
type CodeEdge struct {
	ID               string         `json:"id"`
	RelationshipType string         `json:"relationship_type"`
	Direction        EdgeDirection  `json:"direction"`
	SourceNodeID     string         `json:"source_node_id"`
	TargetNodeID     string         `json:"target_node_id"`
	Properties       map[string]any `json:"properties,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`

	// Confidence is in [0,1]; AST-derived edges carry 1.0, heuristic
	// sources less.
	Confidence float64 `json:"confidence"`

	// Source tags the producer of the edge: "ast", "decorator", ...
	Source string `json:"source,omitempty"`
}

// DeferredEdge is an edge whose target could not be resolved inside the
// chunk that produced it. The target is a symbolic reference that may
// only resolve once sibling chunks have been parsed; the coordinator
// resolves deferred edges as a final pass.
type DeferredEdge struct {
	SourceNodeID     string         `json:"source_node_id"`
	RelationshipType string         `json:"relationship_type"`
	TargetSymbol     string         `json:"target_symbol"`
	FilePath         string         `json:"file_path"`
	Properties       map[string]any `json:"properties,omitempty"`
}
