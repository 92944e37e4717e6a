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
	"path/filepath"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// PARSE COORDINATOR
// =============================================================================
//
// The coordinator owns the project lifecycle in the store: it creates the
// Project in `parsing` state, drives change detection and the parse path
// (worker pool above the parallel threshold, streaming below), and always
// attempts the terminal status update, `complete` or `failed`, before
// returning.

// Phase identifies a coordinator progress phase.
type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseDiscovery Phase = "discovery"
	PhaseParsing   Phase = "parsing"
	PhaseImporting Phase = "importing"
	PhaseResolving Phase = "resolving"
	PhaseComplete  Phase = "complete"
)

// ProgressFunc receives progress events during a parse.
type ProgressFunc func(phase Phase, current, total int, details string)

// ParseOptions tune a single Parse call.
type ParseOptions struct {
	// ProjectName overrides the friendly name (default: directory basename).
	ProjectName string

	// Full forces a clear-and-reparse of the whole project instead of
	// the incremental delta.
	Full bool
}

// ParseOutcome summarises a completed parse.
type ParseOutcome struct {
	ProjectID     string
	ProjectName   string
	Mode          string // "pool", "streaming", or "noop"
	FilesTotal    int
	FilesParsed   int
	FilesDeleted  int
	NodesImported int
	EdgesImported int
	Duration      time.Duration
}

// Coordinator orchestrates change detection, parsing, and import.
type Coordinator struct {
	logger  *slog.Logger
	store   graph.Store
	cfg     Config
	factory ParserFactory
}

// NewCoordinator builds a coordinator over a store and a parser factory.
func NewCoordinator(store graph.Store, cfg Config, factory ParserFactory, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger, store: store, cfg: cfg, factory: factory}
}

// Parse indexes the project at projectRoot. On any error the project
// status is still set to `failed` before the error propagates.
func (c *Coordinator) Parse(ctx context.Context, projectRoot string, opts ParseOptions, progress ProgressFunc) (outcome *ParseOutcome, err error) {
	start := time.Now()
	pipeMetrics.init()

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	canonicalRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	projectID := graph.GenerateProjectID(canonicalRoot)
	name := opts.ProjectName
	if name == "" {
		name = filepath.Base(canonicalRoot)
	}

	statusKnown := false
	defer func() {
		if err != nil && statusKnown {
			c.markFailed(projectID)
		}
	}()

	if progress != nil {
		progress(PhaseDiscovery, 0, 0, "detecting changes")
	}

	detector := NewChangeDetector(c.store, c.cfg, c.logger)
	changes, err := detector.DetectChanges(ctx, canonicalRoot, projectID)
	if err != nil {
		return nil, fmt.Errorf("change detection: %w", err)
	}

	if opts.Full {
		// Full mode reparses everything from a clean slate.
		if _, err = c.store.Invoke(ctx, graph.ClearProject, graph.Params{"project_id": projectID}); err != nil {
			return nil, fmt.Errorf("clear project: %w", err)
		}
		changes, err = detector.DetectChanges(ctx, canonicalRoot, projectID)
		if err != nil {
			return nil, fmt.Errorf("change detection after clear: %w", err)
		}
	}

	if !changes.HasChanges() {
		c.logger.Info("pipeline.parse.noop", "project_id", projectID)
		if progress != nil {
			progress(PhaseComplete, 0, 0, "up to date")
		}
		return &ParseOutcome{
			ProjectID:   projectID,
			ProjectName: name,
			Mode:        "noop",
			Duration:    time.Since(start),
		}, nil
	}

	if _, err = c.store.Invoke(ctx, graph.UpsertProject, graph.Params{
		"id": projectID, "name": name, "path": canonicalRoot, "status": string(graph.ProjectParsing),
	}); err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}
	statusKnown = true

	if len(changes.FilesToDelete) > 0 {
		if _, err = c.store.Invoke(ctx, graph.DeleteSourceFileSubgraphs, graph.Params{
			"project_id": projectID, "file_paths": changes.FilesToDelete,
		}); err != nil {
			return nil, fmt.Errorf("delete stale file subgraphs: %w", err)
		}
	}
	// Re-parsed files also get their old subgraphs replaced.
	if len(changes.FilesToReparse) > 0 && !opts.Full {
		if _, err = c.store.Invoke(ctx, graph.DeleteSourceFileSubgraphs, graph.Params{
			"project_id": projectID, "file_paths": changes.FilesToReparse,
		}); err != nil {
			return nil, fmt.Errorf("delete changed file subgraphs: %w", err)
		}
	}

	files := changes.FilesToReparse
	parserOpts := ParserOptions{
		WorkspacePath: canonicalRoot,
		TSConfigPath:  c.cfg.TSConfigPath,
		ProjectType:   c.cfg.ProjectType,
		ProjectID:     projectID,
	}

	var totals *PoolTotals
	mode := "streaming"
	if len(files) >= c.cfg.ParallelThreshold {
		mode = "pool"
		totals, err = c.parseParallel(ctx, files, parserOpts, projectID, progress)
	} else {
		totals, err = c.parseStreaming(ctx, files, parserOpts, projectID, progress)
	}
	if err != nil {
		return nil, err
	}

	if err = c.snapshotParsedFiles(ctx, canonicalRoot, projectID, files); err != nil {
		return nil, fmt.Errorf("update file tracking: %w", err)
	}

	if _, err = c.store.Invoke(ctx, graph.UpdateProjectStatus, graph.Params{
		"id": projectID, "status": string(graph.ProjectComplete),
		"node_count": totals.Nodes, "edge_count": totals.Edges,
	}); err != nil {
		return nil, fmt.Errorf("finalise project status: %w", err)
	}

	pipeMetrics.filesProcessed.Add(float64(totals.FilesProcessed))
	pipeMetrics.nodesImported.Add(float64(totals.Nodes))
	pipeMetrics.edgesImported.Add(float64(totals.Edges))
	pipeMetrics.parseDuration.Observe(time.Since(start).Seconds())

	if progress != nil {
		progress(PhaseComplete, totals.FilesProcessed, totals.FilesProcessed, "done")
	}

	outcome = &ParseOutcome{
		ProjectID:     projectID,
		ProjectName:   name,
		Mode:          mode,
		FilesTotal:    len(files),
		FilesParsed:   totals.FilesProcessed,
		FilesDeleted:  len(changes.FilesToDelete),
		NodesImported: totals.Nodes,
		EdgesImported: totals.Edges,
		Duration:      time.Since(start),
	}
	c.logger.Info("pipeline.parse.complete",
		"project_id", projectID,
		"mode", mode,
		"files", outcome.FilesParsed,
		"nodes", outcome.NodesImported,
		"edges", outcome.EdgesImported,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome, nil
}

// parseParallel drives the worker pool with pipelined import: each chunk
// is written to the store from its completion callback while later chunks
// are still being parsed. A dedicated resolver parser merges every chunk's
// nodes, deferred edges, and shared context for the final resolution pass.
func (c *Coordinator) parseParallel(ctx context.Context, files []string, parserOpts ParserOptions, projectID string, progress ProgressFunc) (*PoolTotals, error) {
	resolver, err := c.factory(parserOpts)
	if err != nil {
		return nil, fmt.Errorf("create resolver parser: %w", err)
	}
	if c.cfg.ProjectType != "" {
		if err := resolver.LoadFrameworkSchemasForType(c.cfg.ProjectType); err != nil {
			return nil, fmt.Errorf("load framework schemas: %w", err)
		}
	}

	im := newImporter(c.store, projectID, c.cfg.TempDir, c.logger)
	chunks := partition(files, c.cfg.ChunkSize)

	// Callbacks run concurrently; the resolver merge is serialised.
	var mergeMu sync.Mutex
	onChunk := func(res *ChunkResult, stats PoolStats) error {
		if err := im.ImportChunk(ctx, res.Output.Nodes, res.Output.Edges); err != nil {
			return err
		}
		pipeMetrics.chunksProcessed.Inc()

		mergeMu.Lock()
		defer mergeMu.Unlock()
		if err := resolver.AddParsedNodesFromChunk(res.Output.Nodes); err != nil {
			return fmt.Errorf("merge chunk %d nodes: %w", res.ChunkIndex, err)
		}
		if err := resolver.MergeDeferredEdges(res.Output.DeferredEdges); err != nil {
			return fmt.Errorf("merge chunk %d deferred edges: %w", res.ChunkIndex, err)
		}
		if len(res.Output.SharedContext) > 0 {
			if err := resolver.MergeSerializedSharedContext(res.Output.SharedContext); err != nil {
				return fmt.Errorf("merge chunk %d shared context: %w", res.ChunkIndex, err)
			}
		}
		if progress != nil {
			progress(PhaseImporting, stats.CompletedChunks, stats.TotalChunks,
				fmt.Sprintf("imported chunk %d/%d", stats.CompletedChunks, stats.TotalChunks))
		}
		return nil
	}

	pool := NewWorkerPool(c.factory, parserOpts, c.cfg.WorkerCount, c.logger)
	if progress != nil {
		progress(PhaseParsing, 0, len(chunks),
			fmt.Sprintf("parsing %d files in %d chunks", len(files), len(chunks)))
	}
	totals, err := pool.ProcessChunks(ctx, chunks, onChunk)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(PhaseResolving, 0, 2, "resolving deferred edges")
	}
	resolved, err := resolver.ResolveDeferredEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve deferred edges: %w", err)
	}
	if err := im.ImportChunk(ctx, nil, resolved); err != nil {
		return nil, fmt.Errorf("import resolved edges: %w", err)
	}
	totals.Edges += len(resolved)

	if progress != nil {
		progress(PhaseResolving, 1, 2, "applying edge enhancements")
	}
	enhanced, err := resolver.ApplyEdgeEnhancements(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply edge enhancements: %w", err)
	}
	if err := im.ImportChunk(ctx, nil, enhanced); err != nil {
		return nil, fmt.Errorf("import enhancement edges: %w", err)
	}
	totals.Edges += len(enhanced)

	return totals, nil
}

func (c *Coordinator) parseStreaming(ctx context.Context, files []string, parserOpts ParserOptions, projectID string, progress ProgressFunc) (*PoolTotals, error) {
	parser, err := c.factory(parserOpts)
	if err != nil {
		return nil, fmt.Errorf("create parser: %w", err)
	}
	if c.cfg.ProjectType != "" {
		if err := parser.LoadFrameworkSchemasForType(c.cfg.ProjectType); err != nil {
			return nil, fmt.Errorf("load framework schemas: %w", err)
		}
	}

	s := &streamingImporter{
		logger:    c.logger,
		parser:    parser,
		importer:  newImporter(c.store, projectID, c.cfg.TempDir, c.logger),
		chunkSize: c.cfg.ChunkSize,
	}
	return s.run(ctx, files, progress)
}

// snapshotParsedFiles records (mtime, size, hash) for each parsed file so
// the next run can short-circuit unchanged files.
func (c *Coordinator) snapshotParsedFiles(ctx context.Context, root, projectID string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	snapshots := make([]graph.IndexedFile, 0, len(files))
	for _, rel := range files {
		snap, err := SnapshotFile(root, rel)
		if err != nil {
			// The file may have vanished mid-parse; its subgraph will be
			// reconciled on the next run.
			c.logger.Warn("pipeline.snapshot.skip", "file", rel, "err", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	_, err := c.store.Invoke(ctx, graph.UpsertSourceFileTracking, graph.Params{
		"project_id": projectID, "files": snapshots,
	})
	return err
}

// markFailed best-effort flips the project to failed state. Runs with its
// own deadline because the original context may already be dead.
func (c *Coordinator) markFailed(projectID string) {
	recordParseError()
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeouts.StoreQuery)
	defer cancel()
	if _, err := c.store.Invoke(ctx, graph.UpdateProjectStatus, graph.Params{
		"id": projectID, "status": string(graph.ProjectFailed),
	}); err != nil {
		c.logger.Error("pipeline.parse.mark_failed", "project_id", projectID, "err", err)
	}
}
