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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunks(n, filesPer int) [][]string {
	chunks := make([][]string, n)
	for i := range chunks {
		for f := 0; f < filesPer; f++ {
			chunks[i] = append(chunks[i], fmt.Sprintf("src/c%d_f%d.ts", i, f))
		}
	}
	return chunks
}

func TestPool_PipelinedImport(t *testing.T) {
	factory, _ := newFakeFactory(50*time.Millisecond, "")
	pool := NewWorkerPool(factory, ParserOptions{ProjectID: "proj_0123456789ab"}, 4, testLogger())

	chunks := makeChunks(10, 2)

	var callbacks int32
	var mu sync.Mutex
	seen := make(map[int]bool)

	start := time.Now()
	totals, err := pool.ProcessChunks(t.Context(), chunks, func(res *ChunkResult, stats PoolStats) error {
		atomic.AddInt32(&callbacks, 1)
		mu.Lock()
		defer mu.Unlock()
		if seen[res.ChunkIndex] {
			t.Errorf("chunk %d reported twice", res.ChunkIndex)
		}
		seen[res.ChunkIndex] = true
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, int32(10), atomic.LoadInt32(&callbacks), "one callback per chunk")
	assert.Equal(t, 10, totals.Chunks)
	assert.Equal(t, 20, totals.FilesProcessed)
	assert.Equal(t, 20, totals.Nodes)
	assert.Equal(t, 20, totals.Edges)
	assert.Equal(t, 10, totals.DeferredEdges)

	// 10 chunks at 50ms across 4 workers must beat sequential time.
	assert.Less(t, elapsed, 500*time.Millisecond, "pool must overlap chunk processing")
}

func TestPool_CallbacksSettleBeforeReturn(t *testing.T) {
	factory, _ := newFakeFactory(0, "")
	pool := NewWorkerPool(factory, ParserOptions{ProjectID: "proj_0123456789ab"}, 3, testLogger())

	var settled int32
	_, err := pool.ProcessChunks(t.Context(), makeChunks(8, 1), func(*ChunkResult, PoolStats) error {
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&settled, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), atomic.LoadInt32(&settled), "every callback settles before ProcessChunks returns")
}

func TestPool_WorkerErrorRejectsOperation(t *testing.T) {
	chunks := makeChunks(6, 1)
	factory, _ := newFakeFactory(0, chunks[3][0])
	pool := NewWorkerPool(factory, ParserOptions{ProjectID: "proj_0123456789ab"}, 2, testLogger())

	_, err := pool.ProcessChunks(t.Context(), chunks, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthetic parse failure")
}

func TestPool_CallbackErrorRejectsOperation(t *testing.T) {
	factory, _ := newFakeFactory(0, "")
	pool := NewWorkerPool(factory, ParserOptions{ProjectID: "proj_0123456789ab"}, 2, testLogger())

	_, err := pool.ProcessChunks(t.Context(), makeChunks(4, 1), func(res *ChunkResult, _ PoolStats) error {
		if res.ChunkIndex == 1 {
			return fmt.Errorf("import blew up")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import blew up")
}

func TestPool_EmptyChunks(t *testing.T) {
	factory, _ := newFakeFactory(0, "")
	pool := NewWorkerPool(factory, ParserOptions{}, 0, testLogger())
	totals, err := pool.ProcessChunks(t.Context(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, totals.Chunks)
}

func TestPoolSize(t *testing.T) {
	factory, _ := newFakeFactory(0, "")

	override := NewWorkerPool(factory, ParserOptions{}, 4, testLogger())
	assert.Equal(t, 4, override.poolSize(100))
	assert.Equal(t, 2, override.poolSize(2), "never more workers than chunks")

	derived := NewWorkerPool(factory, ParserOptions{}, 0, testLogger())
	assert.GreaterOrEqual(t, derived.poolSize(1000), 1)
	assert.LessOrEqual(t, derived.poolSize(1), 1)
}
