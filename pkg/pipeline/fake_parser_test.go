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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeParser is a deterministic Parser: one node and one intra-chunk edge
// per file, one deferred edge per chunk, optional per-chunk delay and
// fail-on-file triggers.
type fakeParser struct {
	mu   sync.Mutex
	opts ParserOptions

	chunkDelay time.Duration
	failOnFile string

	mergedNodes    []graph.CodeNode
	mergedDeferred []graph.DeferredEdge
	mergedContexts int
	clearCalls     int
}

func newFakeFactory(chunkDelay time.Duration, failOnFile string) (ParserFactory, *sync.Map) {
	instances := &sync.Map{}
	factory := func(opts ParserOptions) (Parser, error) {
		p := &fakeParser{opts: opts, chunkDelay: chunkDelay, failOnFile: failOnFile}
		instances.Store(p, true)
		return p, nil
	}
	return factory, instances
}

func (p *fakeParser) DiscoverSourceFiles(context.Context) ([]string, error) { return nil, nil }

func (p *fakeParser) ParseChunk(ctx context.Context, files []string, skipDeferred bool) (*ChunkOutput, error) {
	if p.chunkDelay > 0 {
		select {
		case <-time.After(p.chunkDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := &ChunkOutput{FilesProcessed: len(files), SharedContext: []byte(`{}`)}
	for _, f := range files {
		if f == p.failOnFile {
			return nil, fmt.Errorf("synthetic parse failure on %s", f)
		}
		nodeID := "node_" + f
		out.Nodes = append(out.Nodes, graph.CodeNode{
			ID: nodeID, Name: f, CoreType: "Function", FilePath: f, IsExported: true,
		})
		out.Edges = append(out.Edges, graph.CodeEdge{
			ID:               graph.GenerateEdgeID(nodeID, "CONTAINS", nodeID+"_body"),
			RelationshipType: "CONTAINS",
			SourceNodeID:     nodeID,
			TargetNodeID:     nodeID + "_body",
		})
	}
	if len(files) > 0 && skipDeferred {
		out.DeferredEdges = append(out.DeferredEdges, graph.DeferredEdge{
			SourceNodeID:     "node_" + files[0],
			RelationshipType: "CALLS",
			TargetSymbol:     "external.symbol",
			FilePath:         files[0],
		})
	}
	return out, nil
}

func (p *fakeParser) AddParsedNodesFromChunk(nodes []graph.CodeNode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mergedNodes = append(p.mergedNodes, nodes...)
	return nil
}

func (p *fakeParser) MergeSerializedSharedContext([]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mergedContexts++
	return nil
}

func (p *fakeParser) MergeDeferredEdges(edges []graph.DeferredEdge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mergedDeferred = append(p.mergedDeferred, edges...)
	return nil
}

// ResolveDeferredEdges yields one concrete edge per merged descriptor.
func (p *fakeParser) ResolveDeferredEdges(context.Context) ([]graph.CodeEdge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var edges []graph.CodeEdge
	for _, d := range p.mergedDeferred {
		target := "node_resolved_" + d.TargetSymbol
		edges = append(edges, graph.CodeEdge{
			ID:               graph.GenerateEdgeID(d.SourceNodeID, d.RelationshipType, target),
			RelationshipType: d.RelationshipType,
			SourceNodeID:     d.SourceNodeID,
			TargetNodeID:     target,
		})
	}
	return edges, nil
}

func (p *fakeParser) ApplyEdgeEnhancements(context.Context) ([]graph.CodeEdge, error) {
	return nil, nil
}

func (p *fakeParser) LoadFrameworkSchemasForType(string) error { return nil }

func (p *fakeParser) ClearParsedData() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearCalls++
}

func (p *fakeParser) ProjectID() string { return p.opts.ProjectID }
