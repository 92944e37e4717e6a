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

// Package jobs tracks long-running parse operations in memory. Jobs do
// not survive a restart by design; durable state lives in the graph
// store.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// terminal reports whether a job can be evicted.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress mirrors the coordinator's phases plus running totals.
type Progress struct {
	Phase          pipeline.Phase `json:"phase"`
	FilesTotal     int            `json:"filesTotal"`
	FilesProcessed int            `json:"filesProcessed"`
	NodesImported  int            `json:"nodesImported"`
	EdgesImported  int            `json:"edgesImported"`
	CurrentChunk   int            `json:"currentChunk"`
	TotalChunks    int            `json:"totalChunks"`
}

// Job is one tracked parse operation.
type Job struct {
	ID          string                 `json:"id"`
	Status      Status                 `json:"status"`
	ProjectID   string                 `json:"projectId"`
	ProjectPath string                 `json:"projectPath"`
	Progress    Progress               `json:"progress"`
	Result      *pipeline.ParseOutcome `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// ErrCapacity is returned when the manager is full even after cleaning
// terminal jobs.
var ErrCapacity = fmt.Errorf("job manager at capacity")

const (
	// DefaultMaxJobs bounds the in-memory job map.
	DefaultMaxJobs = 100

	// DefaultTTL is how long terminal jobs are kept.
	DefaultTTL = time.Hour

	// sweepInterval is the background cleanup period.
	sweepInterval = 5 * time.Minute
)

// Manager tracks jobs with bounded capacity and TTL eviction. Create one
// per process at startup and Close it at shutdown; the sweeper goroutine
// never blocks process exit.
type Manager struct {
	logger  *slog.Logger
	maxJobs int
	ttl     time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a manager and starts its sweeper.
func NewManager(maxJobs int, logger *slog.Logger) *Manager {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		logger:  logger,
		maxJobs: maxJobs,
		ttl:     DefaultTTL,
		jobs:    make(map[string]*Job),
		stop:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Close stops the background sweeper.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			removed := m.CleanupOldJobs(m.ttl)
			if removed > 0 {
				m.logger.Debug("jobs.sweep.complete", "removed", removed)
			}
		}
	}
}

func newJobID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return "job_" + hex.EncodeToString(buf[:])
}

// CreateJob registers a pending job. When the map is full, every
// terminal job is evicted first regardless of age; if the map is still
// full the call fails with ErrCapacity.
func (m *Manager) CreateJob(projectID, projectPath string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) >= m.maxJobs {
		m.evictTerminalLocked(0)
	}
	if len(m.jobs) >= m.maxJobs {
		return nil, fmt.Errorf("%w (%d jobs)", ErrCapacity, len(m.jobs))
	}

	now := time.Now()
	job := &Job{
		ID:          newJobID(),
		Status:      StatusPending,
		ProjectID:   projectID,
		ProjectPath: projectPath,
		Progress:    Progress{Phase: pipeline.PhasePending},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.jobs[job.ID] = job

	m.logger.Info("jobs.create", "job_id", job.ID, "project_id", projectID)
	return job.clone(), nil
}

// StartJob flips a pending job to running.
func (m *Manager) StartJob(id string) error {
	return m.update(id, func(j *Job) {
		j.Status = StatusRunning
	})
}

// UpdateProgress replaces the job's progress snapshot.
func (m *Manager) UpdateProgress(id string, p Progress) error {
	return m.update(id, func(j *Job) {
		j.Progress = p
	})
}

// CompleteJob marks the job completed with its result.
func (m *Manager) CompleteJob(id string, result *pipeline.ParseOutcome) error {
	err := m.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Result = result
		j.Progress.Phase = pipeline.PhaseComplete
	})
	if err == nil {
		m.logger.Info("jobs.complete", "job_id", id)
	}
	return err
}

// FailJob marks the job failed with a reason.
func (m *Manager) FailJob(id, reason string) error {
	err := m.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = reason
	})
	if err == nil {
		m.logger.Warn("jobs.failed", "job_id", id, "reason", reason)
	}
	return err
}

// GetJob returns a copy of the job.
func (m *Manager) GetJob(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", id, graph.ErrNotFound)
	}
	return job.clone(), nil
}

// ListJobs returns copies of all jobs, optionally filtered by status,
// newest first.
func (m *Manager) ListJobs(status Status) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if status != "" && j.Status != status {
			continue
		}
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out
}

// CleanupOldJobs removes terminal jobs older than maxAge and reports how
// many were removed.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictTerminalLocked(maxAge)
}

// evictTerminalLocked removes terminal jobs whose age exceeds maxAge.
// maxAge 0 evicts every terminal job.
func (m *Manager) evictTerminalLocked(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, j := range m.jobs {
		if j.Status.terminal() && (maxAge == 0 || j.UpdatedAt.Before(cutoff)) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) update(id string, fn func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("job %q: %w", id, graph.ErrNotFound)
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return nil
}

func (j *Job) clone() *Job {
	cp := *j
	return &cp
}
