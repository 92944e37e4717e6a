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

package testing

import (
	"context"
	"testing"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/graph/memstore"
)

// SetupTestStore creates an in-memory graph store for testing.
// The store is automatically closed when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    testing.CreateTestProject(t, store, "proj_0123456789ab", "demo")
//	    testing.InsertTestNode(t, store, "proj_0123456789ab", graph.CodeNode{
//	        ID: "n1", Name: "handler", CoreType: "Function", FilePath: "src/api.ts",
//	    })
//	    // Run your tests...
//	}
func SetupTestStore(t *testing.T) *memstore.MemStore {
	t.Helper()

	store := memstore.New()
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// CreateTestProject upserts a project row in parsing state.
func CreateTestProject(t *testing.T, store graph.Store, projectID, name string) {
	t.Helper()

	_, err := store.Invoke(context.Background(), graph.UpsertProject, graph.Params{
		"id":     projectID,
		"name":   name,
		"path":   "/tmp/" + name,
		"status": string(graph.ProjectParsing),
	})
	if err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}
}

// InsertTestNode adds one node to a project.
func InsertTestNode(t *testing.T, store graph.Store, projectID string, node graph.CodeNode) {
	t.Helper()

	_, err := store.Invoke(context.Background(), graph.ImportNodes, graph.Params{
		"project_id": projectID,
		"nodes":      []graph.CodeNode{node},
	})
	if err != nil {
		t.Fatalf("failed to insert test node: %v", err)
	}
}

// InsertTestEdge adds one edge between two existing nodes.
//
// Example:
//
//	testing.InsertTestEdge(t, store, projectID, "n_caller", "n_callee", "CALLS")
func InsertTestEdge(t *testing.T, store graph.Store, projectID, sourceID, targetID, relationship string) {
	t.Helper()

	_, err := store.Invoke(context.Background(), graph.ImportEdges, graph.Params{
		"project_id": projectID,
		"edges": []graph.CodeEdge{{
			SourceNodeID:     sourceID,
			TargetNodeID:     targetID,
			RelationshipType: relationship,
		}},
	})
	if err != nil {
		t.Fatalf("failed to insert test edge: %v", err)
	}
}

// InsertTestTracking records an indexed-file snapshot for change
// detection tests.
func InsertTestTracking(t *testing.T, store graph.Store, projectID string, file graph.IndexedFile) {
	t.Helper()

	_, err := store.Invoke(context.Background(), graph.UpsertSourceFileTracking, graph.Params{
		"project_id": projectID,
		"files":      []graph.IndexedFile{file},
	})
	if err != nil {
		t.Fatalf("failed to insert test tracking: %v", err)
	}
}

// QueryNodesByFile returns the nodes of one file, for asserting on
// seeded data.
func QueryNodesByFile(t *testing.T, store graph.Store, projectID, filePath string) *graph.Result {
	t.Helper()

	result, err := store.Invoke(context.Background(), graph.GetNodesByFile, graph.Params{
		"project_id": projectID,
		"file_path":  filePath,
	})
	if err != nil {
		t.Fatalf("failed to query nodes by file: %v", err)
	}
	return result
}

// ProjectStatus returns the status string of a project, or "" if the
// project does not exist.
func ProjectStatus(t *testing.T, store graph.Store, projectID string) string {
	t.Helper()

	result, err := store.Invoke(context.Background(), graph.ListProjects, graph.Params{})
	if err != nil {
		t.Fatalf("failed to list projects: %v", err)
	}
	for _, row := range result.Rows {
		if graph.AsString(row["id"]) == projectID {
			return graph.AsString(row["status"])
		}
	}
	return ""
}
