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

// Package graph defines the code-graph data model and the contract the
// engine uses to talk to a property-graph store.
//
// The engine never speaks a query language directly. Every read or write
// goes through a named query (see NamedQuery) invoked against a Store
// implementation. This keeps the core independent of the concrete graph
// database: a production deployment binds Store to an external driver,
// while tests and standalone mode use the in-memory implementation in
// the memstore subpackage.
//
// # Data Model
//
// The ownership graph is a tree per project:
//
//	Project -> Files -> Nodes -> Edges
//
// References between nodes are pure identifiers, never pointers. A
// CodeNode belongs to exactly one Project and one file. Edge IDs are
// deterministic functions of (source, type, target) so re-imports are
// idempotent.
//
// # Identity
//
// Project IDs are deterministic: proj_ followed by the first 12 hex
// characters of the SHA-256 of the absolute project root path. See
// GenerateProjectID.
//
// # Value Normalisation
//
// Store drivers disagree about how they return counts: some produce
// native integers, some produce floats, and some wrap big integers in an
// object exposing a ToNumber capability. AsInt and AsFloat normalise all
// of these; core code never type-asserts raw driver values.
package graph
