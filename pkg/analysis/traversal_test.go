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

package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/graph/memstore"
)

func seedTraversalGraph(t *testing.T, s *memstore.MemStore) {
	t.Helper()
	ctx := t.Context()

	nodes := []graph.CodeNode{
		{ID: "n_a", Name: "alpha", CoreType: "Function", FilePath: "src/a.ts"},
		{ID: "n_b", Name: "beta", CoreType: "Function", FilePath: "src/b.ts"},
		{ID: "n_c", Name: "gamma", CoreType: "Class", FilePath: "src/c.ts"},
	}
	for i := 0; i < 5; i++ {
		nodes = append(nodes, graph.CodeNode{
			ID: fmt.Sprintf("n_leaf%d", i), Name: fmt.Sprintf("leaf%d", i),
			CoreType: "Function", FilePath: "src/leaves.ts",
		})
	}
	_, err := s.Invoke(ctx, graph.ImportNodes, graph.Params{"project_id": testProjectID, "nodes": nodes})
	require.NoError(t, err)

	edges := []graph.CodeEdge{
		{SourceNodeID: "n_a", TargetNodeID: "n_b", RelationshipType: "CALLS"},
		{SourceNodeID: "n_b", TargetNodeID: "n_c", RelationshipType: "TYPED_AS"},
	}
	for i := 0; i < 5; i++ {
		edges = append(edges, graph.CodeEdge{
			SourceNodeID: "n_a", TargetNodeID: fmt.Sprintf("n_leaf%d", i), RelationshipType: "CALLS",
		})
	}
	_, err = s.Invoke(ctx, graph.ImportEdges, graph.Params{"project_id": testProjectID, "edges": edges})
	require.NoError(t, err)
}

func TestTraverse_LayersAndChains(t *testing.T) {
	s := memstore.New()
	seedTraversalGraph(t, s)
	engine := NewTraversalEngine(s, testLogger())

	report, err := engine.TraverseFromNode(t.Context(), "n_a", TraversalOptions{MaxDepth: 3, IncludeStartDetails: true})
	require.NoError(t, err)

	assert.Equal(t, 7, report.TotalConnections, "beta, gamma, and five leaves")
	assert.Equal(t, 2, report.MaxDepthReached)
	assert.Equal(t, 3, report.DistinctFiles)
	require.NotNil(t, report.Start)
	assert.Equal(t, "alpha", report.Start.Name)

	require.Len(t, report.Layers, 2)
	depth1 := report.Layers[0]
	assert.Equal(t, 1, depth1.Depth)
	require.Len(t, depth1.Chains, 1, "all depth-1 nodes reached via CALLS")
	assert.Equal(t, "CALLS", depth1.Chains[0].Chain)
	assert.Equal(t, 6, depth1.Chains[0].Total)

	depth2 := report.Layers[1]
	require.Len(t, depth2.Chains, 1)
	assert.Equal(t, "CALLS -> TYPED_AS", depth2.Chains[0].Chain)
}

func TestTraverse_LimitTruncatesPerChain(t *testing.T) {
	s := memstore.New()
	seedTraversalGraph(t, s)
	engine := NewTraversalEngine(s, testLogger())

	report, err := engine.TraverseFromNode(t.Context(), "n_a", TraversalOptions{MaxDepth: 1, Limit: 2})
	require.NoError(t, err)

	require.Len(t, report.Layers, 1)
	group := report.Layers[0].Chains[0]
	assert.Equal(t, 2, group.Shown)
	assert.Equal(t, 6, group.Total, "total reported alongside the truncated list")
	assert.Len(t, group.Connections, 2)
}

func TestTraverse_UnknownStart(t *testing.T) {
	engine := NewTraversalEngine(memstore.New(), testLogger())
	_, err := engine.TraverseFromNode(t.Context(), "n_missing", TraversalOptions{})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestTraverse_DepthCap(t *testing.T) {
	s := memstore.New()
	seedTraversalGraph(t, s)
	engine := NewTraversalEngine(s, testLogger())

	report, err := engine.TraverseFromNode(t.Context(), "n_a", TraversalOptions{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.MaxDepthReached, "depth bounded by MaxDepth")
	assert.Equal(t, 6, report.TotalConnections)
}

func TestTraverse_RenderedReport(t *testing.T) {
	s := memstore.New()
	seedTraversalGraph(t, s)
	engine := NewTraversalEngine(s, testLogger())

	report, err := engine.TraverseFromNode(t.Context(), "n_b", TraversalOptions{Title: "beta neighbourhood"})
	require.NoError(t, err)
	assert.Contains(t, report.Text, "beta neighbourhood")
	assert.Contains(t, report.Text, "Depth 1:")
}
