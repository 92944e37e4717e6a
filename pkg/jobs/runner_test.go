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

package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/graph/memstore"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// stubParser emits one node per file and nothing else.
type stubParser struct {
	projectID string
	failAll   bool
}

func (p *stubParser) DiscoverSourceFiles(context.Context) ([]string, error) { return nil, nil }

func (p *stubParser) ParseChunk(_ context.Context, files []string, _ bool) (*pipeline.ChunkOutput, error) {
	if p.failAll {
		return nil, fmt.Errorf("stub parser failure")
	}
	out := &pipeline.ChunkOutput{FilesProcessed: len(files)}
	for _, f := range files {
		out.Nodes = append(out.Nodes, graph.CodeNode{ID: "node_" + f, Name: f, CoreType: "Function", FilePath: f})
	}
	return out, nil
}

func (p *stubParser) AddParsedNodesFromChunk([]graph.CodeNode) error        { return nil }
func (p *stubParser) MergeSerializedSharedContext([]byte) error             { return nil }
func (p *stubParser) MergeDeferredEdges([]graph.DeferredEdge) error         { return nil }
func (p *stubParser) ResolveDeferredEdges(context.Context) ([]graph.CodeEdge, error) {
	return nil, nil
}
func (p *stubParser) ApplyEdgeEnhancements(context.Context) ([]graph.CodeEdge, error) {
	return nil, nil
}
func (p *stubParser) LoadFrameworkSchemasForType(string) error { return nil }
func (p *stubParser) ClearParsedData()                         {}
func (p *stubParser) ProjectID() string                        { return p.projectID }

func newTestRunner(t *testing.T, failAll bool) (*Runner, *Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(opts pipeline.ParserOptions) (pipeline.Parser, error) {
		return &stubParser{projectID: opts.ProjectID, failAll: failAll}, nil
	}
	coord := pipeline.NewCoordinator(memstore.New(), pipeline.DefaultConfig(), factory, logger)
	mgr := NewManager(10, logger)
	t.Cleanup(mgr.Close)
	return NewRunner(mgr, coord, logger), mgr
}

func waitTerminal(t *testing.T, mgr *Manager, jobID string) *Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := mgr.GetJob(jobID)
		require.NoError(t, err)
		if job.Status == StatusCompleted || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestRunner_ParseToCompletion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "a.ts"), []byte("export const a = 1"), 0o644))

	runner, mgr := newTestRunner(t, false)
	job, err := runner.StartParse(t.Context(), root, pipeline.ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	done := waitTerminal(t, mgr, job.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, 1, done.Result.FilesParsed)
}

func TestRunner_FailureStaysInJobRecord(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.ts"), []byte("boom"), 0o644))

	runner, mgr := newTestRunner(t, true)
	job, err := runner.StartParse(t.Context(), root, pipeline.ParseOptions{})
	require.NoError(t, err)

	done := waitTerminal(t, mgr, job.ID)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "stub parser failure")
}
