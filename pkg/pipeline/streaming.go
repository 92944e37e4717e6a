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
	"log/slog"
)

// streamingImporter is the sequential fallback for small projects: one
// parser instance, chunks parsed and imported in order, deferred edges
// and enhancements resolved after the last chunk.
type streamingImporter struct {
	logger    *slog.Logger
	parser    Parser
	importer  *importer
	chunkSize int
}

func (s *streamingImporter) run(ctx context.Context, files []string, progress ProgressFunc) (*PoolTotals, error) {
	chunks := partition(files, s.chunkSize)
	totals := &PoolTotals{Chunks: len(chunks)}

	for i, chunk := range chunks {
		out, err := s.parser.ParseChunk(ctx, chunk, true)
		if err != nil {
			return nil, fmt.Errorf("streaming chunk %d: %w", i, err)
		}

		if err := s.importer.ImportChunk(ctx, out.Nodes, out.Edges); err != nil {
			return nil, fmt.Errorf("streaming chunk %d: %w", i, err)
		}

		// Accumulate for the cross-chunk resolution pass.
		if err := s.parser.AddParsedNodesFromChunk(out.Nodes); err != nil {
			return nil, fmt.Errorf("accumulate nodes from chunk %d: %w", i, err)
		}
		if err := s.parser.MergeDeferredEdges(out.DeferredEdges); err != nil {
			return nil, fmt.Errorf("merge deferred edges from chunk %d: %w", i, err)
		}

		totals.FilesProcessed += out.FilesProcessed
		totals.Nodes += len(out.Nodes)
		totals.Edges += len(out.Edges)
		totals.DeferredEdges += len(out.DeferredEdges)

		if progress != nil {
			progress(PhaseParsing, i+1, len(chunks), fmt.Sprintf("chunk %d/%d", i+1, len(chunks)))
		}
	}

	if progress != nil {
		progress(PhaseResolving, 0, 2, "resolving deferred edges")
	}
	resolved, err := s.parser.ResolveDeferredEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve deferred edges: %w", err)
	}
	if err := s.importer.ImportChunk(ctx, nil, resolved); err != nil {
		return nil, fmt.Errorf("import resolved edges: %w", err)
	}
	totals.Edges += len(resolved)

	if progress != nil {
		progress(PhaseResolving, 1, 2, "applying edge enhancements")
	}
	enhanced, err := s.parser.ApplyEdgeEnhancements(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply edge enhancements: %w", err)
	}
	if err := s.importer.ImportChunk(ctx, nil, enhanced); err != nil {
		return nil, fmt.Errorf("import enhancement edges: %w", err)
	}
	totals.Edges += len(enhanced)

	s.logger.Info("pipeline.streaming.complete",
		"chunks", totals.Chunks,
		"files", totals.FilesProcessed,
		"nodes", totals.Nodes,
		"edges", totals.Edges,
	)
	return totals, nil
}
