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

// Package testing provides test helpers for codegraph integration tests.
//
// The helpers wrap the in-memory graph store with project and data
// seeding utilities so tests do not repeat store setup boilerplate.
//
// # Quick Start
//
// Use SetupTestStore to create an isolated in-memory store:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    testing.CreateTestProject(t, store, "proj_0123456789ab", "demo")
//
//	    testing.InsertTestNode(t, store, "proj_0123456789ab", graph.CodeNode{
//	        ID: "n1", Name: "handler", CoreType: "Function", FilePath: "src/api.ts",
//	    })
//
//	    // Query and verify
//	    result := testing.QueryNodesByFile(t, store, "proj_0123456789ab", "src/api.ts")
//	    require.Len(t, result.Rows, 1)
//	}
//
// # Seeding Test Data
//
// The package provides helpers for inserting common test entities:
//   - CreateTestProject: Upsert a project row in parsing state
//   - InsertTestNode: Add a code node to a project
//   - InsertTestEdge: Link two nodes with a relationship
//   - InsertTestTracking: Record an indexed-file snapshot
//
// # Querying Test Data
//
// Helper functions for common assertions:
//   - QueryNodesByFile: Get the nodes of one file
//   - ProjectStatus: Read a project's lifecycle status
//
// Because the package is named testing, import it under an alias:
//
//	import cgtest "github.com/kraklabs/codegraph/internal/testing"
package testing
