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
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// TASK BOARD
// =============================================================================

// ErrTaskNotFound is returned for operations on unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// ErrNoTask signals that no claimable task is currently on the board.
var ErrNoTask = errors.New("no claimable task")

// Board is the shared task list a swarm works through. All operations
// are safe for concurrent use.
type Board struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{tasks: make(map[string]*Task), now: time.Now}
}

// Add puts tasks on the board. Tasks with no status become available.
func (b *Board) Add(tasks ...Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range tasks {
		if t.Status == "" {
			t.Status = TaskAvailable
		}
		clone := t
		b.tasks[t.ID] = &clone
	}
}

// Claim hands the highest-priority available task to agentID. A task
// whose dependencies have not all completed is not claimable, whatever
// its priority. The skip predicate lets the caller refuse tasks (another
// agent's markers on the task's nodes, say); it may be nil.
func (b *Board) Claim(agentID string, skip func(Task) bool) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failOrphanedLocked()

	candidates := make([]*Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		if t.Status == TaskAvailable {
			candidates = append(candidates, t)
		}
	}
	// Highest priority first, oldest id first among equals.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, t := range candidates {
		if !b.depsCompletedLocked(t) {
			continue
		}
		if skip != nil && skip(*t) {
			continue
		}
		t.Status = TaskClaimed
		t.ClaimedBy = agentID
		t.UpdatedAt = b.now()
		return *t, nil
	}
	return Task{}, ErrNoTask
}

// depsCompletedLocked reports whether every dependency of t that sits on
// this board has completed. Dependencies referencing unknown tasks do
// not block the claim.
func (b *Board) depsCompletedLocked(t *Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := b.tasks[dep]
		if !ok {
			continue
		}
		if d.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// failOrphanedLocked fails available tasks whose dependency failed
// terminally or was cancelled. They can never become claimable, and
// left alone they would keep the board from draining. Repeats until a
// fixpoint so failures cascade down dependency chains.
func (b *Board) failOrphanedLocked() {
	for {
		changed := false
		for _, t := range b.tasks {
			if t.Status != TaskAvailable {
				continue
			}
			for _, dep := range t.Dependencies {
				d, ok := b.tasks[dep]
				if !ok {
					continue
				}
				if d.Status == TaskFailed || d.Status == TaskCancelled {
					t.Status = TaskFailed
					t.Error = fmt.Sprintf("dependency %s %s", dep, d.Status)
					t.UpdatedAt = b.now()
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// Start marks a claimed task as in progress.
func (b *Board) Start(taskID string) error {
	return b.update(taskID, func(t *Task) {
		t.Status = TaskInProgress
	})
}

// Complete marks a task completed.
func (b *Board) Complete(taskID string) error {
	return b.update(taskID, func(t *Task) {
		t.Status = TaskCompleted
		t.Error = ""
	})
}

// Fail marks a task failed. Retryable failures return to the board as
// available so another agent can pick them up.
func (b *Board) Fail(taskID, reason string, retryable bool) error {
	return b.update(taskID, func(t *Task) {
		t.Error = reason
		t.Retryable = retryable
		t.ClaimedBy = ""
		if retryable {
			t.Status = TaskAvailable
		} else {
			t.Status = TaskFailed
		}
	})
}

// Cancel removes a task from contention.
func (b *Board) Cancel(taskID string) error {
	return b.update(taskID, func(t *Task) {
		t.Status = TaskCancelled
	})
}

func (b *Board) update(taskID string, fn func(*Task)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %q: %w", taskID, ErrTaskNotFound)
	}
	fn(t)
	t.UpdatedAt = b.now()
	return nil
}

// Get returns a copy of one task.
func (b *Board) Get(taskID string) (Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("task %q: %w", taskID, ErrTaskNotFound)
	}
	return *t, nil
}

// List returns copies of every task, sorted by id.
func (b *Board) List() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts reports how many tasks sit in each status.
func (b *Board) Counts() map[TaskStatus]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[TaskStatus]int)
	for _, t := range b.tasks {
		out[t.Status]++
	}
	return out
}

// Drained reports whether the swarm has nothing left to do: no available
// tasks and none claimed or in progress.
func (b *Board) Drained() bool {
	counts := b.Counts()
	return counts[TaskAvailable] == 0 &&
		counts[TaskClaimed] == 0 &&
		counts[TaskInProgress] == 0
}
