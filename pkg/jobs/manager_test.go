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
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

func newTestManager(t *testing.T, maxJobs int) *Manager {
	t.Helper()
	m := NewManager(maxJobs, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(m.Close)
	return m
}

var jobIDPattern = regexp.MustCompile(`^job_[0-9a-f]{16}$`)

func TestCreateJob(t *testing.T) {
	m := newTestManager(t, 10)

	job, err := m.CreateJob("proj_0123456789ab", "/srv/app")
	require.NoError(t, err)
	assert.Regexp(t, jobIDPattern, job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, pipeline.PhasePending, job.Progress.Phase)
}

func TestJobLifecycle(t *testing.T) {
	m := newTestManager(t, 10)
	job, err := m.CreateJob("proj_0123456789ab", "/srv/app")
	require.NoError(t, err)

	require.NoError(t, m.StartJob(job.ID))
	require.NoError(t, m.UpdateProgress(job.ID, Progress{
		Phase: pipeline.PhaseImporting, CurrentChunk: 3, TotalChunks: 10,
	}))

	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 3, got.Progress.CurrentChunk)

	outcome := &pipeline.ParseOutcome{ProjectID: "proj_0123456789ab", NodesImported: 42}
	require.NoError(t, m.CompleteJob(job.ID, outcome))

	got, err = m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 42, got.Result.NodesImported)
	assert.Equal(t, pipeline.PhaseComplete, got.Progress.Phase)
}

func TestFailJob(t *testing.T) {
	m := newTestManager(t, 10)
	job, _ := m.CreateJob("proj_0123456789ab", "/srv/app")

	require.NoError(t, m.FailJob(job.ID, "store unreachable"))
	got, err := m.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "store unreachable", got.Error)
}

func TestGetJob_Unknown(t *testing.T) {
	m := newTestManager(t, 10)
	_, err := m.GetJob("job_0000000000000000")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestCapacity_CleansTerminalThenFails(t *testing.T) {
	m := newTestManager(t, 2)

	a, err := m.CreateJob("proj_aaaaaaaaaaaa", "/a")
	require.NoError(t, err)
	_, err = m.CreateJob("proj_bbbbbbbbbbbb", "/b")
	require.NoError(t, err)

	// Full with both jobs live: must fail.
	_, err = m.CreateJob("proj_cccccccccccc", "/c")
	assert.ErrorIs(t, err, ErrCapacity)

	// Terminate one job: the next create evicts it regardless of age.
	require.NoError(t, m.CompleteJob(a.ID, nil))
	c, err := m.CreateJob("proj_cccccccccccc", "/c")
	require.NoError(t, err)

	_, err = m.GetJob(a.ID)
	assert.ErrorIs(t, err, graph.ErrNotFound, "terminal job evicted to make room")
	_, err = m.GetJob(c.ID)
	assert.NoError(t, err)
}

func TestListJobs_FilterAndOrder(t *testing.T) {
	m := newTestManager(t, 10)
	_, err := m.CreateJob("proj_aaaaaaaaaaaa", "/a")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, _ := m.CreateJob("proj_bbbbbbbbbbbb", "/b")
	require.NoError(t, m.StartJob(b.ID))

	all := m.ListJobs("")
	require.Len(t, all, 2)
	assert.Equal(t, b.ID, all[0].ID, "newest first")

	running := m.ListJobs(StatusRunning)
	require.Len(t, running, 1)
	assert.Equal(t, b.ID, running[0].ID)
}

func TestCleanupOldJobs_RespectsAge(t *testing.T) {
	m := newTestManager(t, 10)
	a, _ := m.CreateJob("proj_aaaaaaaaaaaa", "/a")
	require.NoError(t, m.CompleteJob(a.ID, nil))

	// Too young to evict at 1h.
	assert.Zero(t, m.CleanupOldJobs(time.Hour))

	// Age 0 evicts all terminal jobs.
	assert.Equal(t, 1, m.CleanupOldJobs(0))
}

func TestGetJobReturnsCopy(t *testing.T) {
	m := newTestManager(t, 10)
	job, _ := m.CreateJob("proj_aaaaaaaaaaaa", "/a")

	got, _ := m.GetJob(job.ID)
	got.Status = StatusFailed

	fresh, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusPending, fresh.Status, "mutating a returned job must not affect the manager")
}
