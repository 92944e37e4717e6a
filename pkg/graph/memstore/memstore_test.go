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

package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graph"
)

func seedProject(t *testing.T, s *MemStore, projectID string) {
	t.Helper()
	ctx := t.Context()

	_, err := s.Invoke(ctx, graph.UpsertProject, graph.Params{
		"id": projectID, "name": "demo", "path": "/srv/demo", "status": "parsing",
	})
	require.NoError(t, err)

	nodes := []graph.CodeNode{
		{ID: "n_main", Name: "main", CoreType: "Function", FilePath: "cmd/main.go", IsExported: true},
		{ID: "n_svc", Name: "Service", CoreType: "Class", SemanticType: "Service", FilePath: "svc/service.go", IsExported: true},
		{ID: "n_helper", Name: "helper", CoreType: "Function", FilePath: "svc/service.go", IsExported: false},
		{ID: "n_orphan", Name: "Orphan", CoreType: "Class", FilePath: "svc/orphan.go", IsExported: true},
		{ID: "n_iface", Name: "Storer", CoreType: "Interface", FilePath: "svc/storer.go", IsExported: true},
		{ID: "n_route", Name: "GetUsers", CoreType: "Function", SemanticType: "Route", FilePath: "api/users.go", IsExported: true},
	}
	_, err = s.Invoke(ctx, graph.ImportNodes, graph.Params{"project_id": projectID, "nodes": nodes})
	require.NoError(t, err)

	edges := []graph.CodeEdge{
		{SourceNodeID: "n_main", TargetNodeID: "n_svc", RelationshipType: "IMPORTS"},
		{SourceNodeID: "n_svc", TargetNodeID: "n_helper", RelationshipType: "CALLS"},
		{SourceNodeID: "n_route", TargetNodeID: "n_svc", RelationshipType: "CALLS"},
	}
	_, err = s.Invoke(ctx, graph.ImportEdges, graph.Params{"project_id": projectID, "edges": edges})
	require.NoError(t, err)
}

func TestProjectLifecycle(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	_, err := s.Invoke(ctx, graph.UpdateProjectStatus, graph.Params{
		"id": "proj_000000000001", "status": "complete", "node_count": 6, "edge_count": 3,
	})
	require.NoError(t, err)

	res, err := s.Invoke(ctx, graph.ListProjects, nil)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "complete", graph.AsString(res.Rows[0]["status"]))
	assert.Equal(t, int64(6), graph.AsInt(res.Rows[0]["node_count"]))

	_, err = s.Invoke(ctx, graph.UpdateProjectStatus, graph.Params{"id": "proj_missing", "status": "failed"})
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestFileTrackingRoundTrip(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	files := []graph.IndexedFile{
		{FilePath: "svc/service.go", MtimeMs: 1000, Size: 240, ContentHash: "abc"},
		{FilePath: "cmd/main.go", MtimeMs: 2000, Size: 80, ContentHash: "def"},
	}
	_, err := s.Invoke(ctx, graph.UpsertSourceFileTracking, graph.Params{
		"project_id": "proj_000000000001", "files": files,
	})
	require.NoError(t, err)

	res, err := s.Invoke(ctx, graph.GetSourceFileTrackingInfo, graph.Params{"project_id": "proj_000000000001"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	// rows come back path-sorted
	assert.Equal(t, "cmd/main.go", graph.AsString(res.Rows[0]["file_path"]))
	assert.Equal(t, int64(2000), graph.AsInt(res.Rows[0]["mtime_ms"]))
}

func TestDeleteFileSubgraphs(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	_, err := s.Invoke(ctx, graph.DeleteSourceFileSubgraphs, graph.Params{
		"project_id": "proj_000000000001", "file_paths": []string{"svc/service.go"},
	})
	require.NoError(t, err)

	// nodes in that file are gone
	res, err := s.Invoke(ctx, graph.GetNodeByID, graph.Params{"node_id": "n_svc"})
	require.NoError(t, err)
	assert.Nil(t, res.First())

	// edges touching them are gone too
	res, err = s.Invoke(ctx, graph.GetNodeImpact, graph.Params{"node_id": "n_helper"})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	// untouched files survive
	res, err = s.Invoke(ctx, graph.GetNodeByID, graph.Params{"node_id": "n_main"})
	require.NoError(t, err)
	assert.Equal(t, "main", graph.AsString(res.First()["name"]))
}

func TestNodeImpactAndTransitive(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	// direct dependents of helper: Service calls it
	res, err := s.Invoke(ctx, graph.GetNodeImpact, graph.Params{"node_id": "n_helper"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "n_svc", graph.AsString(res.Rows[0]["id"]))
	assert.Equal(t, "CALLS", graph.AsString(res.Rows[0]["relationship_type"]))

	// transitive dependents reach main and the route through Service
	res, err = s.Invoke(ctx, graph.GetTransitiveDependents, graph.Params{"node_id": "n_helper", "max_depth": 3})
	require.NoError(t, err)
	ids := make(map[string]int64)
	for _, row := range res.Rows {
		ids[graph.AsString(row["id"])] = graph.AsInt(row["depth"])
	}
	assert.Equal(t, int64(1), ids["n_svc"])
	assert.Equal(t, int64(2), ids["n_main"])
	assert.Equal(t, int64(2), ids["n_route"])

	// depth cap is honoured
	res, err = s.Invoke(ctx, graph.GetTransitiveDependents, graph.Params{"node_id": "n_helper", "max_depth": 1})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestExploreConnections(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	res, err := s.Invoke(ctx, graph.ExploreAllConnections, graph.Params{"node_id": "n_svc", "max_depth": 2})
	require.NoError(t, err)

	chains := make(map[string]string)
	for _, row := range res.Rows {
		chains[graph.AsString(row["id"])] = graph.AsString(row["relation_chain"])
	}
	assert.Equal(t, "IMPORTS", chains["n_main"])
	assert.Equal(t, "CALLS", chains["n_helper"])
	assert.Equal(t, "CALLS", chains["n_route"])
	// origin is not reported as its own connection
	_, hasOrigin := chains["n_svc"]
	assert.False(t, hasOrigin)
}

func TestDeadCodeQueries(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")
	params := graph.Params{"project_id": "proj_000000000001"}

	res, err := s.Invoke(ctx, graph.FindUnreferencedExports, params)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, row := range res.Rows {
		ids[graph.AsString(row["id"])] = true
	}
	// Orphan and the interface have no incoming references; main and the
	// route have none either but are still exported-and-unreferenced at
	// the query level. Entry-point filtering is the engine's job.
	assert.True(t, ids["n_orphan"])
	assert.True(t, ids["n_iface"])
	assert.False(t, ids["n_svc"], "Service is imported and called")

	res, err = s.Invoke(ctx, graph.FindUncalledPrivate, params)
	require.NoError(t, err)
	assert.Empty(t, res.Rows, "helper has a caller")

	res, err = s.Invoke(ctx, graph.FindUnreferencedIfaces, params)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "n_iface", graph.AsString(res.Rows[0]["id"]))

	res, err = s.Invoke(ctx, graph.GetFrameworkEntryPoints, params)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "n_route", graph.AsString(res.Rows[0]["id"]))
}

func TestClearProjectKeepsProjectRow(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	_, err := s.Invoke(ctx, graph.ClearProject, graph.Params{"project_id": "proj_000000000001"})
	require.NoError(t, err)

	res, err := s.Invoke(ctx, graph.GetExistingNodesForEdges, graph.Params{"project_id": "proj_000000000001"})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)

	res, err = s.Invoke(ctx, graph.ListProjects, nil)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1, "project row survives a clear")
}

func TestDiscoveryQueries(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")
	params := graph.Params{"project_id": "proj_000000000001"}

	res, err := s.Invoke(ctx, graph.DiscoverNodeTypes, params)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, row := range res.Rows {
		counts[graph.AsString(row["type"])] = graph.AsInt(row["count"])
	}
	assert.Equal(t, int64(3), counts["Function"])
	assert.Equal(t, int64(2), counts["Class"])
	assert.Equal(t, int64(1), counts["Interface"])

	res, err = s.Invoke(ctx, graph.DiscoverRelationshipTypes, params)
	require.NoError(t, err)
	counts = map[string]int64{}
	for _, row := range res.Rows {
		counts[graph.AsString(row["type"])] = graph.AsInt(row["count"])
	}
	assert.Equal(t, int64(2), counts["CALLS"])
	assert.Equal(t, int64(1), counts["IMPORTS"])
}

func TestCrossFileEdges(t *testing.T) {
	s := New()
	ctx := t.Context()
	seedProject(t, s, "proj_000000000001")

	res, err := s.Invoke(ctx, graph.GetCrossFileEdges, graph.Params{"project_id": "proj_000000000001"})
	require.NoError(t, err)
	// Service->helper is intra-file; the other two cross files.
	assert.Len(t, res.Rows, 2)
}

func TestClosedStoreFails(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.Invoke(t.Context(), graph.ListProjects, nil)
	assert.Error(t, err)
}
