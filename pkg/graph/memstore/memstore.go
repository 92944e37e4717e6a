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

// Package memstore provides an in-memory graph.Store.
//
// It implements every named query the engine invokes, with the same row
// shapes an external driver produces. Tests use it for hermetic runs;
// the CLI uses it for standalone mode when no external graph database is
// configured.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// MemStore is a concurrency-safe in-memory graph.Store.
type MemStore struct {
	mu sync.RWMutex

	projects map[string]*graph.Project
	// tracking: projectID -> filePath -> snapshot
	tracking map[string]map[string]graph.IndexedFile
	// nodes: nodeID -> node; nodeProject: nodeID -> projectID
	nodes       map[string]graph.CodeNode
	nodeProject map[string]string
	// edges: edgeID -> edge; edgeProject: edgeID -> projectID
	edges       map[string]graph.CodeEdge
	edgeProject map[string]string

	closed bool
}

// New creates an empty MemStore.
func New() *MemStore {
	return &MemStore{
		projects:    make(map[string]*graph.Project),
		tracking:    make(map[string]map[string]graph.IndexedFile),
		nodes:       make(map[string]graph.CodeNode),
		nodeProject: make(map[string]string),
		edges:       make(map[string]graph.CodeEdge),
		edgeProject: make(map[string]string),
	}
}

// Close marks the store closed; further invocations fail.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Invoke executes a named query against the in-memory graph.
func (s *MemStore) Invoke(ctx context.Context, query graph.NamedQuery, params graph.Params) (*graph.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("memstore: store is closed")
	}

	switch query {
	case graph.ClearProject:
		return s.clearProject(params)
	case graph.UpsertProject:
		return s.upsertProject(params)
	case graph.UpdateProjectStatus:
		return s.updateProjectStatus(params)
	case graph.ListProjects:
		return s.listProjects()
	case graph.GetSourceFileTrackingInfo:
		return s.trackingInfo(params)
	case graph.UpsertSourceFileTracking:
		return s.upsertTracking(params)
	case graph.DeleteSourceFileSubgraphs:
		return s.deleteFileSubgraphs(params)
	case graph.ImportNodes:
		return s.importNodes(params)
	case graph.ImportEdges:
		return s.importEdges(params)
	case graph.GetExistingNodesForEdges:
		return s.existingNodes(params)
	case graph.GetCrossFileEdges:
		return s.crossFileEdges(params)
	case graph.GetNodeByID:
		return s.nodeByID(params)
	case graph.GetNodesByFile:
		return s.nodesByFile(params)
	case graph.GetNodeImpact:
		return s.nodeImpact(params)
	case graph.GetTransitiveDependents:
		return s.transitiveDependents(params)
	case graph.ExploreAllConnections:
		return s.exploreConnections(params)
	case graph.FindUnreferencedExports:
		return s.unreferencedExports(params)
	case graph.FindUncalledPrivate:
		return s.uncalledPrivate(params)
	case graph.FindUnreferencedIfaces:
		return s.unreferencedInterfaces(params)
	case graph.GetFrameworkEntryPoints:
		return s.frameworkEntryPoints(params)
	case graph.GetProjectSemanticTypes:
		return s.projectSemanticTypes(params)
	case graph.DiscoverNodeTypes:
		return s.discoverDistinct(params, func(n graph.CodeNode) string { return n.CoreType })
	case graph.DiscoverSemanticTypes:
		return s.discoverDistinct(params, func(n graph.CodeNode) string { return n.SemanticType })
	case graph.DiscoverRelationshipTypes:
		return s.discoverRelationshipTypes(params)
	case graph.DiscoverCommonPatterns:
		return s.discoverCommonPatterns(params)
	default:
		return nil, fmt.Errorf("memstore: unknown query %q", query)
	}
}

func pstr(params graph.Params, key string) string {
	return graph.AsString(params[key])
}

func (s *MemStore) clearProject(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	for id, pid := range s.nodeProject {
		if pid == projectID {
			delete(s.nodes, id)
			delete(s.nodeProject, id)
		}
	}
	for id, pid := range s.edgeProject {
		if pid == projectID {
			delete(s.edges, id)
			delete(s.edgeProject, id)
		}
	}
	delete(s.tracking, projectID)
	return &graph.Result{}, nil
}

func (s *MemStore) upsertProject(params graph.Params) (*graph.Result, error) {
	id := pstr(params, "id")
	if id == "" {
		return nil, fmt.Errorf("memstore: upsert project without id")
	}
	p, ok := s.projects[id]
	if !ok {
		p = &graph.Project{ID: id}
		s.projects[id] = p
	}
	if v := pstr(params, "name"); v != "" {
		p.Name = v
	}
	if v := pstr(params, "path"); v != "" {
		p.Path = v
	}
	if v := pstr(params, "status"); v != "" {
		p.Status = graph.ProjectStatus(v)
	}
	p.UpdatedAt = time.Now()
	return &graph.Result{}, nil
}

func (s *MemStore) updateProjectStatus(params graph.Params) (*graph.Result, error) {
	id := pstr(params, "id")
	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("memstore: project %q: %w", id, graph.ErrNotFound)
	}
	p.Status = graph.ProjectStatus(pstr(params, "status"))
	if v, ok := params["node_count"]; ok {
		p.NodeCount = int(graph.AsInt(v))
	}
	if v, ok := params["edge_count"]; ok {
		p.EdgeCount = int(graph.AsInt(v))
	}
	p.UpdatedAt = time.Now()
	return &graph.Result{}, nil
}

func (s *MemStore) listProjects() (*graph.Result, error) {
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := &graph.Result{}
	for _, id := range ids {
		p := s.projects[id]
		res.Rows = append(res.Rows, graph.Row{
			"id":         p.ID,
			"name":       p.Name,
			"path":       p.Path,
			"status":     string(p.Status),
			"node_count": int64(p.NodeCount),
			"edge_count": int64(p.EdgeCount),
			"updated_at": p.UpdatedAt,
		})
	}
	return res, nil
}

func (s *MemStore) trackingInfo(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	files := s.tracking[projectID]

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	res := &graph.Result{}
	for _, p := range paths {
		f := files[p]
		res.Rows = append(res.Rows, graph.Row{
			"file_path":    f.FilePath,
			"mtime_ms":     f.MtimeMs,
			"size":         f.Size,
			"content_hash": f.ContentHash,
		})
	}
	return res, nil
}

func (s *MemStore) upsertTracking(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	files, _ := params["files"].([]graph.IndexedFile)
	m := s.tracking[projectID]
	if m == nil {
		m = make(map[string]graph.IndexedFile)
		s.tracking[projectID] = m
	}
	for _, f := range files {
		m[f.FilePath] = f
	}
	return &graph.Result{}, nil
}

func (s *MemStore) deleteFileSubgraphs(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	paths, _ := params["file_paths"].([]string)
	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	removed := make(map[string]bool)
	for id, pid := range s.nodeProject {
		if pid == projectID && pathSet[s.nodes[id].FilePath] {
			removed[id] = true
			delete(s.nodes, id)
			delete(s.nodeProject, id)
		}
	}
	for id := range s.edges {
		e := s.edges[id]
		if removed[e.SourceNodeID] || removed[e.TargetNodeID] {
			delete(s.edges, id)
			delete(s.edgeProject, id)
		}
	}
	if m := s.tracking[projectID]; m != nil {
		for _, p := range paths {
			delete(m, p)
		}
	}
	return &graph.Result{}, nil
}

func (s *MemStore) importNodes(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	nodes, _ := params["nodes"].([]graph.CodeNode)
	for _, n := range nodes {
		s.nodes[n.ID] = n
		s.nodeProject[n.ID] = projectID
	}
	return &graph.Result{}, nil
}

func (s *MemStore) importEdges(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	edges, _ := params["edges"].([]graph.CodeEdge)
	for _, e := range edges {
		if e.ID == "" {
			e.ID = graph.GenerateEdgeID(e.SourceNodeID, e.RelationshipType, e.TargetNodeID)
		}
		s.edges[e.ID] = e
		s.edgeProject[e.ID] = projectID
	}
	return &graph.Result{}, nil
}

func (s *MemStore) existingNodes(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		res.Rows = append(res.Rows, graph.Row{
			"id":        n.ID,
			"name":      n.Name,
			"file_path": n.FilePath,
			"core_type": n.CoreType,
		})
	}
	return res, nil
}

func (s *MemStore) crossFileEdges(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	res := &graph.Result{}
	for _, e := range s.sortedProjectEdges(projectID) {
		src, okS := s.nodes[e.SourceNodeID]
		dst, okT := s.nodes[e.TargetNodeID]
		if okS && okT && src.FilePath != dst.FilePath {
			res.Rows = append(res.Rows, graph.Row{
				"id":                e.ID,
				"relationship_type": e.RelationshipType,
				"source_node_id":    e.SourceNodeID,
				"target_node_id":    e.TargetNodeID,
			})
		}
	}
	return res, nil
}

func nodeRow(n graph.CodeNode) graph.Row {
	return graph.Row{
		"id":            n.ID,
		"name":          n.Name,
		"core_type":     n.CoreType,
		"semantic_type": n.SemanticType,
		"file_path":     n.FilePath,
		"line_number":   int64(n.LineNumber),
		"is_exported":   n.IsExported,
		"visibility":    n.Visibility,
	}
}

func (s *MemStore) nodeByID(params graph.Params) (*graph.Result, error) {
	n, ok := s.nodes[pstr(params, "node_id")]
	if !ok {
		return &graph.Result{}, nil
	}
	return &graph.Result{Rows: []graph.Row{nodeRow(n)}}, nil
}

func (s *MemStore) nodesByFile(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	filePath := pstr(params, "file_path")
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		if n.FilePath == filePath {
			res.Rows = append(res.Rows, nodeRow(n))
		}
	}
	return res, nil
}

// nodeImpact returns the direct dependents of a node: sources of edges
// that point at it.
func (s *MemStore) nodeImpact(params graph.Params) (*graph.Result, error) {
	nodeID := pstr(params, "node_id")
	res := &graph.Result{}
	for _, e := range s.sortedEdges() {
		if e.TargetNodeID != nodeID {
			continue
		}
		src, ok := s.nodes[e.SourceNodeID]
		if !ok {
			continue
		}
		row := nodeRow(src)
		row["relationship_type"] = e.RelationshipType
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func (s *MemStore) transitiveDependents(params graph.Params) (*graph.Result, error) {
	nodeID := pstr(params, "node_id")
	maxDepth := int(graph.AsInt(params["max_depth"]))
	if maxDepth <= 0 {
		maxDepth = 3
	}

	// reverse adjacency: target -> sources
	incoming := make(map[string][]graph.CodeEdge)
	for _, e := range s.sortedEdges() {
		incoming[e.TargetNodeID] = append(incoming[e.TargetNodeID], e)
	}

	type qe struct {
		id    string
		depth int
	}
	visited := map[string]bool{nodeID: true}
	queue := []qe{{nodeID, 0}}
	res := &graph.Result{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, e := range incoming[cur.id] {
			if visited[e.SourceNodeID] {
				continue
			}
			visited[e.SourceNodeID] = true
			src, ok := s.nodes[e.SourceNodeID]
			if !ok {
				continue
			}
			row := nodeRow(src)
			row["depth"] = int64(cur.depth + 1)
			row["relationship_type"] = e.RelationshipType
			res.Rows = append(res.Rows, row)
			queue = append(queue, qe{e.SourceNodeID, cur.depth + 1})
		}
	}
	return res, nil
}

// exploreConnections walks edges in both directions and reports each
// reachable node with its depth and the relation chain that led there.
func (s *MemStore) exploreConnections(params graph.Params) (*graph.Result, error) {
	nodeID := pstr(params, "node_id")
	maxDepth := int(graph.AsInt(params["max_depth"]))
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if _, ok := s.nodes[nodeID]; !ok {
		return &graph.Result{}, nil
	}

	type link struct {
		other string
		rel   string
	}
	adj := make(map[string][]link)
	for _, e := range s.sortedEdges() {
		adj[e.SourceNodeID] = append(adj[e.SourceNodeID], link{e.TargetNodeID, e.RelationshipType})
		adj[e.TargetNodeID] = append(adj[e.TargetNodeID], link{e.SourceNodeID, e.RelationshipType})
	}

	type qe struct {
		id    string
		depth int
		chain string
	}
	visited := map[string]bool{nodeID: true}
	queue := []qe{{nodeID, 0, ""}}
	res := &graph.Result{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, l := range adj[cur.id] {
			if visited[l.other] {
				continue
			}
			visited[l.other] = true
			n, ok := s.nodes[l.other]
			if !ok {
				continue
			}
			chain := l.rel
			if cur.chain != "" {
				chain = cur.chain + " -> " + l.rel
			}
			row := nodeRow(n)
			row["depth"] = int64(cur.depth + 1)
			row["relation_chain"] = chain
			res.Rows = append(res.Rows, row)
			queue = append(queue, qe{l.other, cur.depth + 1, chain})
		}
	}
	return res, nil
}

// referenceTypes are the relationships that count as "using" a node for
// dead-code purposes.
var referenceTypes = map[string]bool{
	"IMPORTS": true, "CALLS": true, "EXTENDS": true, "IMPLEMENTS": true,
	"TYPED_AS": true, "EXPORTS": true, "DECORATED_WITH": true,
}

func (s *MemStore) hasIncoming(nodeID string, types map[string]bool) bool {
	for _, e := range s.edges {
		if e.TargetNodeID == nodeID && (types == nil || types[e.RelationshipType]) {
			return true
		}
	}
	return false
}

func (s *MemStore) unreferencedExports(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		if !n.IsExported {
			continue
		}
		if s.hasIncoming(n.ID, referenceTypes) {
			continue
		}
		row := nodeRow(n)
		row["reason"] = "exported but never imported"
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func (s *MemStore) uncalledPrivate(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	callTypes := map[string]bool{"CALLS": true}
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		if n.IsExported {
			continue
		}
		if n.CoreType != "Function" && n.CoreType != "Method" {
			continue
		}
		if s.hasIncoming(n.ID, callTypes) {
			continue
		}
		row := nodeRow(n)
		row["reason"] = "private with no internal callers"
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func (s *MemStore) unreferencedInterfaces(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	ifaceRefs := map[string]bool{"IMPLEMENTS": true, "TYPED_AS": true, "EXTENDS": true}
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		if n.CoreType != "Interface" {
			continue
		}
		if s.hasIncoming(n.ID, ifaceRefs) {
			continue
		}
		row := nodeRow(n)
		row["reason"] = "interface never implemented or referenced"
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// entrySemanticTypes are semantic types a framework invokes without an
// explicit import.
var entrySemanticTypes = map[string]bool{
	"Controller": true, "Route": true, "Handler": true,
	"EntryPoint": true, "Middleware": true, "Page": true,
}

func (s *MemStore) frameworkEntryPoints(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	res := &graph.Result{}
	for _, n := range s.sortedProjectNodes(projectID) {
		if entrySemanticTypes[n.SemanticType] {
			row := nodeRow(n)
			row["reason"] = "framework entry point (" + n.SemanticType + ")"
			res.Rows = append(res.Rows, row)
		}
	}
	return res, nil
}

func (s *MemStore) projectSemanticTypes(params graph.Params) (*graph.Result, error) {
	return s.discoverDistinct(params, func(n graph.CodeNode) string { return n.SemanticType })
}

func (s *MemStore) discoverDistinct(params graph.Params, key func(graph.CodeNode) string) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	counts := make(map[string]int64)
	for _, n := range s.sortedProjectNodes(projectID) {
		if k := key(n); k != "" {
			counts[k]++
		}
	}
	return distinctRows(counts, "type"), nil
}

func (s *MemStore) discoverRelationshipTypes(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	counts := make(map[string]int64)
	for _, e := range s.sortedProjectEdges(projectID) {
		counts[e.RelationshipType]++
	}
	return distinctRows(counts, "type"), nil
}

// discoverCommonPatterns reports (core_type, relationship_type) pairs by
// frequency.
func (s *MemStore) discoverCommonPatterns(params graph.Params) (*graph.Result, error) {
	projectID := pstr(params, "project_id")
	counts := make(map[string]int64)
	for _, e := range s.sortedProjectEdges(projectID) {
		src, ok := s.nodes[e.SourceNodeID]
		if !ok {
			continue
		}
		counts[src.CoreType+" -["+e.RelationshipType+"]->"]++
	}
	return distinctRows(counts, "pattern"), nil
}

func distinctRows(counts map[string]int64, col string) *graph.Result {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	res := &graph.Result{}
	for _, k := range keys {
		res.Rows = append(res.Rows, graph.Row{col: k, "count": counts[k]})
	}
	return res
}

func (s *MemStore) sortedProjectNodes(projectID string) []graph.CodeNode {
	out := make([]graph.CodeNode, 0)
	for id, pid := range s.nodeProject {
		if projectID == "" || pid == projectID {
			out = append(out, s.nodes[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) sortedProjectEdges(projectID string) []graph.CodeEdge {
	out := make([]graph.CodeEdge, 0)
	for id, pid := range s.edgeProject {
		if projectID == "" || pid == projectID {
			out = append(out, s.edges[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) sortedEdges() []graph.CodeEdge {
	return s.sortedProjectEdges("")
}

// Describe returns a short human-readable summary, used by the CLI
// status command in standalone mode.
func (s *MemStore) Describe() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "projects=%d nodes=%d edges=%d", len(s.projects), len(s.nodes), len(s.edges))
	return sb.String()
}
