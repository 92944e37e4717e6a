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
	"bytes"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/graph"
)

var taskIDPattern = regexp.MustCompile(`^task_[0-9a-z]+_[0-9a-f]{6}$`)

func TestNewTaskID(t *testing.T) {
	id := newTaskID(time.Now())
	assert.Regexp(t, taskIDPattern, id)

	other := newTaskID(time.Now())
	assert.NotEqual(t, id, other)
}

func TestInferTaskType(t *testing.T) {
	cases := []struct {
		description string
		want        TaskType
	}{
		{"Rename UserService to AccountService", TaskRefactor},
		{"migrate auth to the new API", TaskRefactor},
		{"deprecate the v1 endpoints", TaskRefactor},
		{"Document the parser package", TaskDocument},
		// document outranks migrate in the pattern table
		{"migrate the documentation to the new site", TaskDocument},
		{"fix the off-by-one in pagination", TaskFix},
		{"add tests for the importer", TaskTest},
		{"add retry support to the client", TaskImplement},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, inferTaskType(tc.description), "description %q", tc.description)
	}
}

func TestDecompose_GroupsByFile(t *testing.T) {
	d := NewDecomposer(testLogger())
	nodes := []graph.CodeNode{
		{ID: "n1", Name: "alpha", FilePath: "src/a.ts"},
		{ID: "n2", Name: "beta", FilePath: "src/a.ts"},
		{ID: "n3", Name: "gamma", FilePath: "src/b.ts"},
	}

	dec, err := d.Decompose("fix the rounding error", nodes, nil, PriorityNormal)
	require.NoError(t, err)

	require.Len(t, dec.Tasks, 2, "one task per file")
	assert.Equal(t, TaskFix, dec.Tasks[0].Type)
	assert.Equal(t, "src/a.ts", dec.Tasks[0].FilePath)
	assert.ElementsMatch(t, []string{"n1", "n2"}, dec.Tasks[0].NodeIDs)
	assert.Equal(t, "src/b.ts", dec.Tasks[1].FilePath)
	for _, task := range dec.Tasks {
		assert.Regexp(t, taskIDPattern, task.ID)
		assert.Equal(t, TaskAvailable, task.Status)
	}
}

func TestDecompose_PriorityBumps(t *testing.T) {
	d := NewDecomposer(testLogger())
	nodes := []graph.CodeNode{
		{ID: "n_crit", FilePath: "src/crit.ts"},
		{ID: "n_high", FilePath: "src/high.ts"},
		{ID: "n_low", FilePath: "src/low.ts"},
	}
	impacts := map[string]*analysis.ImpactReport{
		"n_crit": {RiskLevel: analysis.RiskCritical},
		"n_high": {RiskLevel: analysis.RiskHigh},
		"n_low":  {RiskLevel: analysis.RiskLow},
	}

	dec, err := d.Decompose("wire up the cache", nodes, impacts, PriorityNormal)
	require.NoError(t, err)

	byFile := make(map[string]Priority)
	for _, task := range dec.Tasks {
		byFile[task.FilePath] = task.Priority
	}
	assert.Equal(t, PriorityCritical, byFile["src/crit.ts"], "critical impact bumps two rungs")
	assert.Equal(t, PriorityHigh, byFile["src/high.ts"], "high impact bumps one rung")
	assert.Equal(t, PriorityNormal, byFile["src/low.ts"])
}

func TestDecompose_PriorityBumpCaps(t *testing.T) {
	d := NewDecomposer(testLogger())
	nodes := []graph.CodeNode{{ID: "n_high", FilePath: "src/high.ts"}}
	impacts := map[string]*analysis.ImpactReport{
		"n_high": {RiskLevel: analysis.RiskHigh},
	}

	// High impact caps at high; a critical base priority stays critical.
	dec, err := d.Decompose("wire up the cache", nodes, impacts, PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, dec.Tasks[0].Priority)
}

func TestDecompose_DependenciesFromImpact(t *testing.T) {
	d := NewDecomposer(testLogger())
	nodes := []graph.CodeNode{
		{ID: "n_core", FilePath: "src/core.ts"},
		{ID: "n_api", FilePath: "src/api.ts"},
	}
	// Changing the api node ripples into core's file, so the api task
	// depends on the core task.
	impacts := map[string]*analysis.ImpactReport{
		"n_api": {RiskLevel: analysis.RiskLow, AffectedFiles: []string{"src/core.ts"}},
	}

	dec, err := d.Decompose("migrate config loading", nodes, impacts, PriorityNormal)
	require.NoError(t, err)

	var coreTask, apiTask Task
	for _, task := range dec.Tasks {
		switch task.FilePath {
		case "src/core.ts":
			coreTask = task
		case "src/api.ts":
			apiTask = task
		}
	}
	assert.Equal(t, []string{coreTask.ID}, apiTask.Dependencies)
	assert.Empty(t, coreTask.Dependencies)

	// Execution order respects the dependency.
	assert.Equal(t, []string{coreTask.ID, apiTask.ID}, dec.ExecutionOrder)
	assert.Equal(t, []string{coreTask.ID}, dec.Parallelisable)
	assert.Equal(t, []string{apiTask.ID}, dec.Sequential)
}

func TestDecompose_CycleBrokenDeterministically(t *testing.T) {
	d := NewDecomposer(testLogger())
	nodes := []graph.CodeNode{
		{ID: "n_a", FilePath: "src/a.ts"},
		{ID: "n_b", FilePath: "src/b.ts"},
	}
	impacts := map[string]*analysis.ImpactReport{
		"n_a": {AffectedFiles: []string{"src/b.ts"}},
		"n_b": {AffectedFiles: []string{"src/a.ts"}},
	}

	first, err := d.Decompose("rename the service", nodes, impacts, PriorityNormal)
	require.NoError(t, err)
	require.Len(t, first.ExecutionOrder, 2, "every task appears despite the cycle")

	second, err := d.Decompose("rename the service", nodes, impacts, PriorityNormal)
	require.NoError(t, err)

	// Orders map to the same file sequence run over run.
	filesOf := func(dec *Decomposition) []string {
		byID := make(map[string]string)
		for _, task := range dec.Tasks {
			byID[task.ID] = task.FilePath
		}
		out := make([]string, 0, len(dec.ExecutionOrder))
		for _, id := range dec.ExecutionOrder {
			out = append(out, byID[id])
		}
		return out
	}
	assert.Equal(t, filesOf(first), filesOf(second))
}

func TestDecompose_CycleBreakLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDecomposer(logger)

	nodes := []graph.CodeNode{
		{ID: "n_a", FilePath: "src/a.ts"},
		{ID: "n_b", FilePath: "src/b.ts"},
	}
	impacts := map[string]*analysis.ImpactReport{
		"n_a": {AffectedFiles: []string{"src/b.ts"}},
		"n_b": {AffectedFiles: []string{"src/a.ts"}},
	}

	_, err := d.Decompose("rename the service", nodes, impacts, PriorityNormal)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "swarm.decompose.cycle_broken")
}

func TestDecompose_NoNodes(t *testing.T) {
	d := NewDecomposer(testLogger())
	_, err := d.Decompose("do nothing", nil, nil, PriorityNormal)
	assert.Error(t, err)
}

func TestGetParallelizableTasks(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Status: TaskAvailable},
		{ID: "t2", Status: TaskAvailable, Dependencies: []string{"t1"}},
		{ID: "t3", Status: TaskAvailable, Dependencies: []string{"t1", "t2"}},
		{ID: "t4", Status: TaskCompleted},
	}

	ready := GetParallelizableTasks(tasks, nil)
	require.Len(t, ready, 1)
	assert.Equal(t, "t1", ready[0].ID)

	ready = GetParallelizableTasks(tasks, []string{"t1"})
	require.Len(t, ready, 1)
	assert.Equal(t, "t2", ready[0].ID)

	ready = GetParallelizableTasks(tasks, []string{"t1", "t2"})
	require.Len(t, ready, 1)
	assert.Equal(t, "t3", ready[0].ID)
}

func TestPriorityBump(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityNormal.bump(1, PriorityHigh))
	assert.Equal(t, PriorityCritical, PriorityNormal.bump(2, PriorityCritical))
	assert.Equal(t, PriorityHigh, PriorityHigh.bump(1, PriorityHigh))
	assert.Equal(t, PriorityCritical, PriorityCritical.bump(1, PriorityHigh), "never lowered by the cap")
	assert.Equal(t, PriorityNormal, PriorityLow.bump(1, PriorityCritical))
}
