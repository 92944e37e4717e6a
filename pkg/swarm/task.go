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
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// =============================================================================
// SWARM TASKS
// =============================================================================

// TaskType classifies what kind of work a task represents.
type TaskType string

const (
	TaskImplement   TaskType = "implement"
	TaskRefactor    TaskType = "refactor"
	TaskFix         TaskType = "fix"
	TaskTest        TaskType = "test"
	TaskReview      TaskType = "review"
	TaskDocument    TaskType = "document"
	TaskInvestigate TaskType = "investigate"
	TaskPlan        TaskType = "plan"
)

// Priority orders tasks on the board. Higher runs first.
type Priority int

const (
	PriorityBacklog  Priority = 0
	PriorityLow      Priority = 25
	PriorityNormal   Priority = 50
	PriorityHigh     Priority = 75
	PriorityCritical Priority = 100
)

// priorityLadder lists priorities in ascending order, used for bumping.
var priorityLadder = []Priority{
	PriorityBacklog, PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical,
}

// bump raises p by steps rungs on the ladder, never above cap.
func (p Priority) bump(steps int, cap Priority) Priority {
	idx := 0
	for i, rung := range priorityLadder {
		if rung == p {
			idx = i
			break
		}
	}
	idx += steps
	if idx >= len(priorityLadder) {
		idx = len(priorityLadder) - 1
	}
	out := priorityLadder[idx]
	if out > cap {
		out = cap
	}
	if out < p {
		out = p
	}
	return out
}

// TaskStatus is the lifecycle state of a task on the board.
type TaskStatus string

const (
	TaskAvailable   TaskStatus = "available"
	TaskClaimed     TaskStatus = "claimed"
	TaskInProgress  TaskStatus = "in_progress"
	TaskBlocked     TaskStatus = "blocked"
	TaskNeedsReview TaskStatus = "needs_review"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
)

// terminal reports whether a task can make no further progress.
func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is one atomic unit of swarm work, scoped to a single file.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Type         TaskType   `json:"type"`
	Priority     Priority   `json:"priority"`
	NodeIDs      []string   `json:"nodeIds"`
	FilePath     string     `json:"filePath"`
	Dependencies []string   `json:"dependencies"`
	Status       TaskStatus `json:"status"`
	ClaimedBy    string     `json:"claimedBy,omitempty"`
	Retryable    bool       `json:"retryable,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// newTaskID builds a sortable unique task id from the creation time in
// base 36 plus a random 6-character suffix.
func newTaskID(now time.Time) string {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("swarm: crypto/rand unavailable: " + err.Error())
	}
	return "task_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + hex.EncodeToString(buf[:])
}
