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

package swarm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// WORKER PROTOCOL
// =============================================================================

const (
	// defaultTaskTimeout bounds a single task execution.
	defaultTaskTimeout = 30 * time.Minute
	// idlePollInterval is how often an idle worker re-checks the board.
	idlePollInterval = time.Second
	// spawnDelay spaces out worker startup so agents do not stampede
	// the board on launch.
	spawnDelay = 500 * time.Millisecond
	// MinParallelNodes is the smallest node count worth a multi-agent
	// swarm; below it a single worker does the job.
	MinParallelNodes = 3
)

// Executor performs the actual work of one task, typically by driving
// external tooling. It must honour ctx cancellation.
type Executor func(ctx context.Context, task Task) error

// Worker is one swarm agent: it senses pheromones, claims tasks off the
// board, marks its territory, and executes until the swarm drains.
type Worker struct {
	ID      string
	SwarmID string

	logger      *slog.Logger
	board       *Board
	pheromones  *PheromoneStore
	execute     Executor
	taskTimeout time.Duration
}

// NewWorker creates a worker with a fresh agent id.
func NewWorker(swarmID string, board *Board, pheromones *PheromoneStore, execute Executor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID:          uuid.NewString(),
		SwarmID:     swarmID,
		logger:      logger,
		board:       board,
		pheromones:  pheromones,
		execute:     execute,
		taskTimeout: defaultTaskTimeout,
	}
}

// Run cycles the worker until the swarm is drained or ctx is cancelled.
// Each cycle: sense other agents' signals, claim the highest-priority
// task nobody else is touching, mark the territory with a modifying
// pheromone, execute, then report completion or a retryable failure.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger.With("agent_id", w.ID, "swarm_id", w.SwarmID)
	log.Info("swarm.worker.start")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := w.board.Claim(w.ID, w.territoryTaken)
		if err != nil {
			if w.board.Drained() {
				log.Info("swarm.worker.drained")
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePollInterval):
			}
			continue
		}

		w.runTask(ctx, log, task)
	}
}

// territoryTaken reports whether another agent holds a live modifying or
// claiming marker on any of the task's nodes.
func (w *Worker) territoryTaken(task Task) bool {
	for _, nodeID := range task.NodeIDs {
		signals := w.pheromones.Sense(nodeID, SenseOptions{
			Types:        []PheromoneType{PheromoneModifying, PheromoneClaiming},
			ExcludeAgent: w.ID,
		})
		if len(signals) > 0 {
			return true
		}
	}
	return false
}

func (w *Worker) runTask(ctx context.Context, log *slog.Logger, task Task) {
	log = log.With("task_id", task.ID, "file", task.FilePath)

	if len(task.NodeIDs) > 0 {
		w.pheromones.Write(Pheromone{
			NodeID:  task.NodeIDs[0],
			AgentID: w.ID,
			SwarmID: w.SwarmID,
			Type:    PheromoneModifying,
			Data:    map[string]any{"taskId": task.ID},
		})
	}

	if err := w.board.Start(task.ID); err != nil {
		log.Warn("swarm.worker.start_task_failed", "error", err)
		return
	}
	log.Info("swarm.worker.task.start", "type", string(task.Type), "priority", int(task.Priority))

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	err := w.execute(taskCtx, task)
	cancel()

	if err != nil {
		// The blocked pheromone decays in five minutes, which is what
		// lets another agent retry the task once the dust settles.
		w.markNodes(task, PheromoneBlocked, map[string]any{"error": err.Error()})
		if failErr := w.board.Fail(task.ID, err.Error(), true); failErr != nil {
			log.Warn("swarm.worker.fail_task_failed", "error", failErr)
		}
		log.Warn("swarm.worker.task.failed", "error", err)
		return
	}

	w.markNodes(task, PheromoneCompleted, nil)
	if err := w.board.Complete(task.ID); err != nil {
		log.Warn("swarm.worker.complete_task_failed", "error", err)
		return
	}
	log.Info("swarm.worker.task.complete")
}

func (w *Worker) markNodes(task Task, t PheromoneType, data map[string]any) {
	for _, nodeID := range task.NodeIDs {
		w.pheromones.Write(Pheromone{
			NodeID:  nodeID,
			AgentID: w.ID,
			SwarmID: w.SwarmID,
			Type:    t,
			Data:    data,
		})
	}
}

// =============================================================================
// ORCHESTRATION
// =============================================================================

// Orchestrator spawns and supervises a cohort of workers over one board.
type Orchestrator struct {
	logger     *slog.Logger
	board      *Board
	pheromones *PheromoneStore
	execute    Executor
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(board *Board, pheromones *PheromoneStore, execute Executor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger, board: board, pheromones: pheromones, execute: execute}
}

// Run launches workers for the swarm and waits for them to drain the
// board. Workers are spawned with a small delay between them. When the
// board covers fewer than MinParallelNodes graph nodes the swarm
// collapses to a single worker.
func (o *Orchestrator) Run(ctx context.Context, workerCount int) error {
	if workerCount < 1 {
		workerCount = 1
	}
	if o.distinctNodes() < MinParallelNodes {
		workerCount = 1
	}

	swarmID := uuid.NewString()
	o.logger.Info("swarm.orchestrator.start", "swarm_id", swarmID, "workers", workerCount)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		if i > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(spawnDelay):
			}
			if gctx.Err() != nil {
				break
			}
		}
		worker := NewWorker(swarmID, o.board, o.pheromones, o.execute, o.logger)
		g.Go(func() error { return worker.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("swarm %s: %w", swarmID, err)
	}
	o.logger.Info("swarm.orchestrator.complete", "swarm_id", swarmID)
	return nil
}

func (o *Orchestrator) distinctNodes() int {
	seen := make(map[string]bool)
	for _, t := range o.board.List() {
		for _, id := range t.NodeIDs {
			seen[id] = true
		}
	}
	return len(seen)
}
