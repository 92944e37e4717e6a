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

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
)

// Sentinel errors shared across the engine. They classify failures per
// the error taxonomy: callers use errors.Is to branch, never string
// matching.
var (
	// ErrNotFound marks lookups for unknown projects, jobs, or nodes.
	// Not retried; surfaced to the caller.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks store connect timeouts and similar failures
	// that a caller may retry.
	ErrTransient = errors.New("transient store error")
)

// NamedQuery identifies a parameterised query the store driver knows how
// to execute. The core invokes queries only by name; it never embeds
// query-language text.
type NamedQuery string

const (
	ClearProject              NamedQuery = "CLEAR_PROJECT"
	UpsertProject             NamedQuery = "UPSERT_PROJECT"
	UpdateProjectStatus       NamedQuery = "UPDATE_PROJECT_STATUS"
	ListProjects              NamedQuery = "LIST_PROJECTS"
	GetSourceFileTrackingInfo NamedQuery = "GET_SOURCE_FILE_TRACKING_INFO"
	UpsertSourceFileTracking  NamedQuery = "UPSERT_SOURCE_FILE_TRACKING"
	DeleteSourceFileSubgraphs NamedQuery = "DELETE_SOURCE_FILE_SUBGRAPHS"
	ImportNodes               NamedQuery = "IMPORT_NODES"
	ImportEdges               NamedQuery = "IMPORT_EDGES"
	GetExistingNodesForEdges  NamedQuery = "GET_EXISTING_NODES_FOR_EDGE_DETECTION"
	GetCrossFileEdges         NamedQuery = "GET_CROSS_FILE_EDGES"
	GetNodeByID               NamedQuery = "GET_NODE_BY_ID"
	GetNodesByFile            NamedQuery = "GET_NODES_BY_FILE"
	GetNodeImpact             NamedQuery = "GET_NODE_IMPACT"
	GetTransitiveDependents   NamedQuery = "GET_TRANSITIVE_DEPENDENTS"
	ExploreAllConnections     NamedQuery = "EXPLORE_ALL_CONNECTIONS"
	FindUnreferencedExports   NamedQuery = "FIND_UNREFERENCED_EXPORTS"
	FindUncalledPrivate       NamedQuery = "FIND_UNCALLED_PRIVATE_METHODS"
	FindUnreferencedIfaces    NamedQuery = "FIND_UNREFERENCED_INTERFACES"
	GetFrameworkEntryPoints   NamedQuery = "GET_FRAMEWORK_ENTRY_POINTS"
	GetProjectSemanticTypes   NamedQuery = "GET_PROJECT_SEMANTIC_TYPES"
	DiscoverNodeTypes         NamedQuery = "DISCOVER_NODE_TYPES"
	DiscoverRelationshipTypes NamedQuery = "DISCOVER_RELATIONSHIP_TYPES"
	DiscoverSemanticTypes     NamedQuery = "DISCOVER_SEMANTIC_TYPES"
	DiscoverCommonPatterns    NamedQuery = "DISCOVER_COMMON_PATTERNS"
)

// Params carries named parameters for a query invocation.
type Params map[string]any

// Row is one result row keyed by column name. Values are driver-typed;
// normalise numerics with AsInt/AsFloat.
type Row map[string]any

// Result is the outcome of a named-query invocation.
type Result struct {
	Rows []Row
}

// First returns the first row, or nil for an empty result.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// Store is the contract between the engine and a property-graph
// database. Implementations must be safe for concurrent use: the parse
// coordinator, the job manager, and the analysis engines all share one
// Store.
type Store interface {
	// Invoke executes a named parameterised query.
	Invoke(ctx context.Context, query NamedQuery, params Params) (*Result, error)

	// Close releases the underlying connection.
	Close() error
}

// numberer is the capability some drivers use to wrap big integers.
type numberer interface {
	ToNumber() float64
}

// AsInt normalises a driver value to int64. It accepts native integer
// and float types, json.Number, numeric strings, and big-integer objects
// exposing a ToNumber capability. Unknown types yield zero.
func AsInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return int64(f)
		}
		return 0
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		return 0
	case numberer:
		return int64(n.ToNumber())
	default:
		return 0
	}
}

// AsFloat normalises a driver value to float64, with the same accepted
// shapes as AsInt.
func AsFloat(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return 0
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
		return 0
	case numberer:
		return n.ToNumber()
	default:
		return 0
	}
}

// AsString normalises a driver value to a string; non-strings yield "".
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsBool normalises a driver value to a bool; non-bools yield false.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}
