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

// =============================================================================
// CHUNK WORKER
// =============================================================================
//
// A chunk worker owns one lazy-loading Parser instance and parses the file
// batches it is handed, one at a time. Workers hold no shared state: all
// communication with the pool goes through typed messages, and symbol-table
// merging happens on the coordinator.

// poolMsgKind tags messages a worker sends to the pool.
type poolMsgKind int

const (
	msgReady poolMsgKind = iota
	msgResult
	msgError
	msgExit
)

func (k poolMsgKind) String() string {
	switch k {
	case msgReady:
		return "ready"
	case msgResult:
		return "result"
	case msgError:
		return "error"
	case msgExit:
		return "exit"
	default:
		return "unknown"
	}
}

// poolMsg is a message from a worker to the pool.
type poolMsg struct {
	kind     poolMsgKind
	workerID int
	result   *ChunkResult
	err      error
}

// workerCmdKind tags commands the pool sends to a worker.
type workerCmdKind int

const (
	cmdChunk workerCmdKind = iota
	cmdTerminate
)

// workerCmd is a command from the pool to a worker.
type workerCmd struct {
	kind       workerCmdKind
	chunkIndex int
	files      []string
}

// ChunkResult is a chunk's parse output tagged with its index.
type ChunkResult struct {
	ChunkIndex int
	Output     *ChunkOutput
}

// chunkWorker runs the worker side of the protocol.
type chunkWorker struct {
	id     int
	parser Parser
	logger *slog.Logger

	cmds <-chan workerCmd
	out  chan<- poolMsg
}

// run executes the worker loop: signal ready, await a command, process,
// repeat. A terminate command flushes parser state and exits cleanly.
func (w *chunkWorker) run(ctx context.Context) {
	defer func() { w.out <- poolMsg{kind: msgExit, workerID: w.id} }()

	w.out <- poolMsg{kind: msgReady, workerID: w.id}

	for {
		select {
		case <-ctx.Done():
			w.parser.ClearParsedData()
			return
		case cmd := <-w.cmds:
			switch cmd.kind {
			case cmdTerminate:
				w.parser.ClearParsedData()
				return
			case cmdChunk:
				res, err := w.processChunk(ctx, cmd)
				if err != nil {
					w.out <- poolMsg{kind: msgError, workerID: w.id, err: err}
					return
				}
				w.out <- poolMsg{kind: msgResult, workerID: w.id, result: res}
				w.out <- poolMsg{kind: msgReady, workerID: w.id}
			}
		}
	}
}

// processChunk clears per-chunk state and parses one file batch. Deferred
// resolution is always skipped here: cross-chunk references are emitted as
// symbolic descriptors for the coordinator to resolve.
func (w *chunkWorker) processChunk(ctx context.Context, cmd workerCmd) (*ChunkResult, error) {
	w.parser.ClearParsedData()

	out, err := w.parser.ParseChunk(ctx, cmd.files, true)
	if err != nil {
		return nil, fmt.Errorf("worker %d chunk %d: %w", w.id, cmd.chunkIndex, err)
	}

	w.logger.Debug("pipeline.worker.chunk.complete",
		"worker_id", w.id,
		"chunk", cmd.chunkIndex,
		"files", out.FilesProcessed,
		"nodes", len(out.Nodes),
		"edges", len(out.Edges),
		"deferred", len(out.DeferredEdges),
	)

	return &ChunkResult{ChunkIndex: cmd.chunkIndex, Output: out}, nil
}
