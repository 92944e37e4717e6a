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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// BOUNDED TRAVERSAL
// =============================================================================

// maxTraversalDepth caps how deep a traversal may go.
const maxTraversalDepth = 10

// TraversalOptions tune a traversal run.
type TraversalOptions struct {
	MaxDepth            int
	Limit               int
	IncludeStartDetails bool
	Title               string
}

// Connection is one reachable node.
type Connection struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CoreType      string `json:"coreType"`
	FilePath      string `json:"filePath"`
	Depth         int    `json:"depth"`
	RelationChain string `json:"relationChain"`
}

// ChainGroup holds connections that share a relation chain.
type ChainGroup struct {
	Chain       string       `json:"chain"`
	Connections []Connection `json:"connections"`
	Shown       int          `json:"shown"`
	Total       int          `json:"total"`
}

// DepthLayer groups chains at one BFS depth.
type DepthLayer struct {
	Depth  int          `json:"depth"`
	Chains []ChainGroup `json:"chains"`
}

// TraversalReport is the layered result of a traversal.
type TraversalReport struct {
	Title            string       `json:"title,omitempty"`
	Start            *Connection  `json:"start,omitempty"`
	Layers           []DepthLayer `json:"layers"`
	TotalConnections int          `json:"totalConnections"`
	MaxDepthReached  int          `json:"maxDepthReached"`
	DistinctFiles    int          `json:"distinctFiles"`
	Text             string       `json:"text"`
}

// TraversalEngine runs bounded BFS exploration from a node.
type TraversalEngine struct {
	logger *slog.Logger
	store  graph.Store
}

// NewTraversalEngine creates an engine over a store.
func NewTraversalEngine(store graph.Store, logger *slog.Logger) *TraversalEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraversalEngine{logger: logger, store: store}
}

// TraverseFromNode explores every connection reachable from nodeID,
// grouped by depth and relation chain. Each chain group is truncated to
// opts.Limit with both shown and total counts reported.
func (e *TraversalEngine) TraverseFromNode(ctx context.Context, nodeID string, opts TraversalOptions) (*TraversalReport, error) {
	if opts.MaxDepth <= 0 || opts.MaxDepth > maxTraversalDepth {
		opts.MaxDepth = maxTraversalDepth
	}
	if opts.Limit <= 0 {
		opts.Limit = 25
	}

	startRes, err := e.store.Invoke(ctx, graph.GetNodeByID, graph.Params{"node_id": nodeID})
	if err != nil {
		return nil, fmt.Errorf("load start node: %w", err)
	}
	startRow := startRes.First()
	if startRow == nil {
		return nil, fmt.Errorf("node %q: %w", nodeID, graph.ErrNotFound)
	}

	res, err := e.store.Invoke(ctx, graph.ExploreAllConnections, graph.Params{
		"node_id": nodeID, "max_depth": opts.MaxDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("explore connections: %w", err)
	}

	byDepth := make(map[int]map[string][]Connection)
	files := make(map[string]bool)
	maxDepth := 0
	for _, row := range res.Rows {
		conn := Connection{
			ID:            graph.AsString(row["id"]),
			Name:          graph.AsString(row["name"]),
			CoreType:      graph.AsString(row["core_type"]),
			FilePath:      graph.AsString(row["file_path"]),
			Depth:         int(graph.AsInt(row["depth"])),
			RelationChain: graph.AsString(row["relation_chain"]),
		}
		if byDepth[conn.Depth] == nil {
			byDepth[conn.Depth] = make(map[string][]Connection)
		}
		byDepth[conn.Depth][conn.RelationChain] = append(byDepth[conn.Depth][conn.RelationChain], conn)
		if conn.FilePath != "" {
			files[conn.FilePath] = true
		}
		if conn.Depth > maxDepth {
			maxDepth = conn.Depth
		}
	}

	report := &TraversalReport{
		Title:            opts.Title,
		TotalConnections: len(res.Rows),
		MaxDepthReached:  maxDepth,
		DistinctFiles:    len(files),
	}
	if opts.IncludeStartDetails {
		report.Start = &Connection{
			ID:       graph.AsString(startRow["id"]),
			Name:     graph.AsString(startRow["name"]),
			CoreType: graph.AsString(startRow["core_type"]),
			FilePath: graph.AsString(startRow["file_path"]),
		}
	}

	for depth := 1; depth <= maxDepth; depth++ {
		chains := byDepth[depth]
		if len(chains) == 0 {
			continue
		}
		layer := DepthLayer{Depth: depth}
		chainKeys := make([]string, 0, len(chains))
		for c := range chains {
			chainKeys = append(chainKeys, c)
		}
		sort.Strings(chainKeys)
		for _, chain := range chainKeys {
			conns := chains[chain]
			sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
			total := len(conns)
			if total > opts.Limit {
				conns = conns[:opts.Limit]
			}
			layer.Chains = append(layer.Chains, ChainGroup{
				Chain:       chain,
				Connections: conns,
				Shown:       len(conns),
				Total:       total,
			})
		}
		report.Layers = append(report.Layers, layer)
	}

	report.Text = renderTraversal(graph.AsString(startRow["name"]), report)

	e.logger.Info("analysis.traversal.complete",
		"node_id", nodeID,
		"connections", report.TotalConnections,
		"max_depth", report.MaxDepthReached,
		"files", report.DistinctFiles,
	)
	return report, nil
}

// renderTraversal builds the layered human-readable report.
func renderTraversal(startName string, r *TraversalReport) string {
	var sb strings.Builder
	title := r.Title
	if title == "" {
		title = fmt.Sprintf("Connections from %s", startName)
	}
	fmt.Fprintf(&sb, "%s\n", title)
	fmt.Fprintf(&sb, "%d connections, max depth %d, %d files\n", r.TotalConnections, r.MaxDepthReached, r.DistinctFiles)

	for _, layer := range r.Layers {
		fmt.Fprintf(&sb, "\nDepth %d:\n", layer.Depth)
		for _, group := range layer.Chains {
			fmt.Fprintf(&sb, "  via %s (%d", group.Chain, group.Total)
			if group.Shown < group.Total {
				fmt.Fprintf(&sb, ", showing %d", group.Shown)
			}
			sb.WriteString("):\n")
			for _, conn := range group.Connections {
				fmt.Fprintf(&sb, "    - %s (%s) %s\n", conn.Name, conn.CoreType, conn.FilePath)
			}
		}
	}
	return sb.String()
}
