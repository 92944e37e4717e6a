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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_ClaimHighestPriority(t *testing.T) {
	b := NewBoard()
	b.Add(
		Task{ID: "t_low", Priority: PriorityLow},
		Task{ID: "t_crit", Priority: PriorityCritical},
		Task{ID: "t_norm", Priority: PriorityNormal},
	)

	task, err := b.Claim("a1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t_crit", task.ID)
	assert.Equal(t, TaskClaimed, task.Status)
	assert.Equal(t, "a1", task.ClaimedBy)

	// The claimed task is off the market.
	task, err = b.Claim("a2", nil)
	require.NoError(t, err)
	assert.Equal(t, "t_norm", task.ID)
}

func TestBoard_ClaimSkipPredicate(t *testing.T) {
	b := NewBoard()
	b.Add(
		Task{ID: "t_taken", Priority: PriorityCritical},
		Task{ID: "t_free", Priority: PriorityLow},
	)

	task, err := b.Claim("a1", func(t Task) bool { return t.ID == "t_taken" })
	require.NoError(t, err)
	assert.Equal(t, "t_free", task.ID)
}

func TestBoard_ClaimRespectsDependencies(t *testing.T) {
	b := NewBoard()
	b.Add(
		Task{ID: "t_dep", Priority: PriorityLow},
		Task{ID: "t_main", Priority: PriorityCritical, Dependencies: []string{"t_dep"}},
	)

	// The critical task waits on its dependency despite outranking it.
	task, err := b.Claim("a1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t_dep", task.ID)

	_, err = b.Claim("a2", nil)
	assert.ErrorIs(t, err, ErrNoTask, "dependent stays unclaimable while the dependency runs")

	require.NoError(t, b.Complete("t_dep"))
	task, err = b.Claim("a2", nil)
	require.NoError(t, err)
	assert.Equal(t, "t_main", task.ID)
}

func TestBoard_UnknownDependencyDoesNotBlock(t *testing.T) {
	b := NewBoard()
	b.Add(Task{ID: "t1", Dependencies: []string{"t_elsewhere"}})

	task, err := b.Claim("a1", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
}

func TestBoard_DependentsOfDeadDependencyFail(t *testing.T) {
	b := NewBoard()
	b.Add(
		Task{ID: "t1"},
		Task{ID: "t2", Dependencies: []string{"t1"}},
		Task{ID: "t3", Dependencies: []string{"t2"}},
	)
	require.NoError(t, b.Fail("t1", "bad input", false))

	_, err := b.Claim("a1", nil)
	assert.ErrorIs(t, err, ErrNoTask)

	// The failure cascades down the chain so the board can drain.
	for _, id := range []string{"t2", "t3"} {
		task, err := b.Get(id)
		require.NoError(t, err)
		assert.Equal(t, TaskFailed, task.Status, id)
	}
	assert.True(t, b.Drained())
}

func TestBoard_ClaimEmpty(t *testing.T) {
	b := NewBoard()
	_, err := b.Claim("a1", nil)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestBoard_RetryableFailureReturnsToBoard(t *testing.T) {
	b := NewBoard()
	b.Add(Task{ID: "t1", Priority: PriorityNormal})

	_, err := b.Claim("a1", nil)
	require.NoError(t, err)
	require.NoError(t, b.Start("t1"))
	require.NoError(t, b.Fail("t1", "transient tool failure", true))

	task, err := b.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, TaskAvailable, task.Status)
	assert.Empty(t, task.ClaimedBy)
	assert.True(t, task.Retryable)
	assert.Equal(t, "transient tool failure", task.Error)

	// A second agent can now pick it up.
	task, err = b.Claim("a2", nil)
	require.NoError(t, err)
	assert.Equal(t, "t1", task.ID)
}

func TestBoard_PermanentFailure(t *testing.T) {
	b := NewBoard()
	b.Add(Task{ID: "t1"})
	require.NoError(t, b.Fail("t1", "bad input", false))

	task, err := b.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, task.Status)

	_, err = b.Claim("a1", nil)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestBoard_Drained(t *testing.T) {
	b := NewBoard()
	assert.True(t, b.Drained(), "empty board is drained")

	b.Add(Task{ID: "t1"})
	assert.False(t, b.Drained())

	_, err := b.Claim("a1", nil)
	require.NoError(t, err)
	assert.False(t, b.Drained(), "claimed still counts as live work")

	require.NoError(t, b.Complete("t1"))
	assert.True(t, b.Drained())
}

func TestBoard_UnknownTask(t *testing.T) {
	b := NewBoard()
	assert.ErrorIs(t, b.Complete("t_missing"), ErrTaskNotFound)
	assert.ErrorIs(t, b.Cancel("t_missing"), ErrTaskNotFound)
	_, err := b.Get("t_missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestBoard_ListAndCounts(t *testing.T) {
	b := NewBoard()
	b.Add(Task{ID: "t2"}, Task{ID: "t1"})
	require.NoError(t, b.Cancel("t2"))

	list := b.List()
	require.Len(t, list, 2)
	assert.Equal(t, "t1", list[0].ID, "sorted by id")

	counts := b.Counts()
	assert.Equal(t, 1, counts[TaskAvailable])
	assert.Equal(t, 1, counts[TaskCancelled])
}
