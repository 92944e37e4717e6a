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
	"runtime"
	"sync"
	"time"
)

// =============================================================================
// WORKER POOL
// =============================================================================
//
// Pull-based dispatch: each worker signals ready, the pool dequeues the
// next chunk in FIFO order and sends it. Results arrive in completion
// order, not dispatch order. The per-chunk callback fires asynchronously
// so import of earlier chunks overlaps parsing of later ones; ProcessChunks
// returns only after every callback has settled.

// shutdownGrace is how long workers get to exit after terminate before the
// pool stops waiting for them.
const shutdownGrace = 15 * time.Second

// PoolStats is a progress snapshot handed to the chunk callback.
type PoolStats struct {
	CompletedChunks int
	TotalChunks     int
	NodesSoFar      int
	EdgesSoFar      int
}

// PoolTotals accumulates over all chunks.
type PoolTotals struct {
	Chunks         int
	FilesProcessed int
	Nodes          int
	Edges          int
	DeferredEdges  int
}

// ChunkCallback receives each completed chunk. It may run concurrently
// with other callbacks and with ongoing parsing. A non-nil error aborts
// the whole operation.
type ChunkCallback func(res *ChunkResult, stats PoolStats) error

// WorkerPool parses chunks across parallel workers.
type WorkerPool struct {
	logger  *slog.Logger
	factory ParserFactory
	opts    ParserOptions

	// workerOverride fixes the worker count when > 0.
	workerOverride int
}

// NewWorkerPool creates a pool. Workers are spawned per ProcessChunks call.
func NewWorkerPool(factory ParserFactory, opts ParserOptions, workerOverride int, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	opts.LazyLoad = true
	return &WorkerPool{
		logger:         logger,
		factory:        factory,
		opts:           opts,
		workerOverride: workerOverride,
	}
}

// poolSize computes the worker count: min(chunkCount, 75% of CPUs), with
// the caller override taking precedence.
func (p *WorkerPool) poolSize(chunkCount int) int {
	n := p.workerOverride
	if n <= 0 {
		n = runtime.NumCPU() * 3 / 4
	}
	if n < 1 {
		n = 1
	}
	if n > chunkCount {
		n = chunkCount
	}
	return n
}

// ProcessChunks parses every chunk and invokes onChunkComplete once per
// chunk. On any worker error the operation is rejected and remaining
// workers are shut down.
func (p *WorkerPool) ProcessChunks(ctx context.Context, chunks [][]string, onChunkComplete ChunkCallback) (*PoolTotals, error) {
	if len(chunks) == 0 {
		return &PoolTotals{}, nil
	}

	numWorkers := p.poolSize(len(chunks))
	p.logger.Info("pipeline.pool.start",
		"chunks", len(chunks),
		"workers", numWorkers,
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make(chan poolMsg, numWorkers*2)
	cmds := make([]chan workerCmd, numWorkers)

	for i := 0; i < numWorkers; i++ {
		parser, err := p.factory(p.opts)
		if err != nil {
			cancel()
			p.drainExits(out, i)
			return nil, fmt.Errorf("pool startup: worker %d parser: %w", i, err)
		}
		cmds[i] = make(chan workerCmd, 1)
		w := &chunkWorker{id: i, parser: parser, logger: p.logger, cmds: cmds[i], out: out}
		go w.run(workerCtx)
	}

	totals := &PoolTotals{Chunks: len(chunks)}
	var (
		nextChunk  int
		completed  int
		exited     int
		reported   = make(map[int]bool, len(chunks))
		terminated = make([]bool, numWorkers)

		cbWG  sync.WaitGroup
		cbMu  sync.Mutex
		cbErr error // first callback error
	)

	setCallbackErr := func(err error) {
		cbMu.Lock()
		if cbErr == nil {
			cbErr = err
		}
		cbMu.Unlock()
	}
	callbackErr := func() error {
		cbMu.Lock()
		defer cbMu.Unlock()
		return cbErr
	}

	terminate := func(id int) {
		if !terminated[id] {
			terminated[id] = true
			select {
			case cmds[id] <- workerCmd{kind: cmdTerminate}:
			default:
			}
		}
	}

	fail := func(cause error) (*PoolTotals, error) {
		for i := range cmds {
			terminate(i)
		}
		cancel()
		p.awaitExits(out, numWorkers-exited)
		cbWG.Wait()
		return nil, cause
	}

	for exited < numWorkers {
		var msg poolMsg
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case msg = <-out:
		}

		switch msg.kind {
		case msgReady:
			if nextChunk < len(chunks) {
				idx := nextChunk
				nextChunk++
				cmds[msg.workerID] <- workerCmd{kind: cmdChunk, chunkIndex: idx, files: chunks[idx]}
			} else {
				terminate(msg.workerID)
			}

		case msgResult:
			res := msg.result
			if reported[res.ChunkIndex] {
				return fail(fmt.Errorf("chunk %d reported twice", res.ChunkIndex))
			}
			reported[res.ChunkIndex] = true
			completed++

			totals.FilesProcessed += res.Output.FilesProcessed
			totals.Nodes += len(res.Output.Nodes)
			totals.Edges += len(res.Output.Edges)
			totals.DeferredEdges += len(res.Output.DeferredEdges)

			if onChunkComplete != nil {
				stats := PoolStats{
					CompletedChunks: completed,
					TotalChunks:     len(chunks),
					NodesSoFar:      totals.Nodes,
					EdgesSoFar:      totals.Edges,
				}
				cbWG.Add(1)
				go func() {
					defer cbWG.Done()
					if err := onChunkComplete(res, stats); err != nil {
						setCallbackErr(err)
					}
				}()
			}

		case msgError:
			p.logger.Error("pipeline.pool.worker.error", "worker_id", msg.workerID, "err", msg.err)
			return fail(fmt.Errorf("worker %d failed: %w", msg.workerID, msg.err))

		case msgExit:
			exited++
		}

		if err := callbackErr(); err != nil {
			return fail(fmt.Errorf("chunk import: %w", err))
		}
	}

	// Every callback must settle before the operation resolves.
	cbWG.Wait()
	if err := callbackErr(); err != nil {
		return nil, fmt.Errorf("chunk import: %w", err)
	}

	if completed != len(chunks) {
		return nil, fmt.Errorf("pool finished with %d/%d chunks complete", completed, len(chunks))
	}

	p.logger.Info("pipeline.pool.complete",
		"chunks", completed,
		"files", totals.FilesProcessed,
		"nodes", totals.Nodes,
		"edges", totals.Edges,
		"deferred", totals.DeferredEdges,
	)
	return totals, nil
}

// awaitExits waits for pending worker exits up to the shutdown grace.
func (p *WorkerPool) awaitExits(out <-chan poolMsg, pending int) {
	deadline := time.After(shutdownGrace)
	for pending > 0 {
		select {
		case msg := <-out:
			if msg.kind == msgExit {
				pending--
			}
		case <-deadline:
			p.logger.Warn("pipeline.pool.shutdown.timeout", "workers_remaining", pending)
			return
		}
	}
}

// drainExits collects exits from workers started before a startup failure.
func (p *WorkerPool) drainExits(out <-chan poolMsg, started int) {
	p.awaitExits(out, started)
}
