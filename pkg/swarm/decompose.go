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
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// TASK DECOMPOSITION
// =============================================================================

// keywordTypes maps description keywords to task types. First match wins;
// descriptions matching nothing default to implement.
var keywordTypes = []struct {
	keyword string
	typ     TaskType
}{
	{"rename", TaskRefactor},
	{"document", TaskDocument},
	{"migrate", TaskRefactor},
	{"deprecate", TaskRefactor},
	{"fix", TaskFix},
	{"test", TaskTest},
}

// inferTaskType picks a task type from the description keywords.
func inferTaskType(description string) TaskType {
	lower := strings.ToLower(description)
	for _, kt := range keywordTypes {
		if strings.Contains(lower, kt.keyword) {
			return kt.typ
		}
	}
	return TaskImplement
}

// riskRank orders impact risk levels for max-aggregation.
var riskRank = map[analysis.RiskLevel]int{
	analysis.RiskLow:      0,
	analysis.RiskMedium:   1,
	analysis.RiskHigh:     2,
	analysis.RiskCritical: 3,
}

// Decomposition is the result of breaking a work item into atomic tasks.
type Decomposition struct {
	Tasks []Task `json:"tasks"`
	// ExecutionOrder lists task ids in a dependency-respecting order.
	ExecutionOrder []string `json:"executionOrder"`
	// Parallelisable holds ids of tasks with no dependencies.
	Parallelisable []string `json:"parallelisable"`
	// Sequential holds ids of tasks that must wait on others.
	Sequential          []string `json:"sequential"`
	EstimatedComplexity string   `json:"estimatedComplexity"`
}

// Decomposer turns a high-level work description plus the affected graph
// nodes into a dependency-ordered set of per-file tasks.
type Decomposer struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDecomposer creates a decomposer.
func NewDecomposer(logger *slog.Logger) *Decomposer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decomposer{logger: logger, now: time.Now}
}

// Decompose groups the affected nodes by file, one task per file, infers
// the task type from the description, adjusts priority by impact risk,
// and wires dependencies from each node's impact footprint.
func (d *Decomposer) Decompose(description string, nodes []graph.CodeNode, impacts map[string]*analysis.ImpactReport, basePriority Priority) (*Decomposition, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("decompose: no affected nodes")
	}

	taskType := inferTaskType(description)
	now := d.now()

	byFile := make(map[string][]graph.CodeNode)
	for _, n := range nodes {
		byFile[n.FilePath] = append(byFile[n.FilePath], n)
	}
	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	tasks := make([]Task, 0, len(files))
	taskByFile := make(map[string]int, len(files))
	for i, file := range files {
		group := byFile[file]
		nodeIDs := make([]string, 0, len(group))
		for _, n := range group {
			nodeIDs = append(nodeIDs, n.ID)
		}
		sort.Strings(nodeIDs)

		priority := basePriority
		switch maxRisk(group, impacts) {
		case analysis.RiskCritical:
			priority = priority.bump(2, PriorityCritical)
		case analysis.RiskHigh:
			priority = priority.bump(1, PriorityHigh)
		}

		tasks = append(tasks, Task{
			ID:          newTaskID(now),
			Title:       fmt.Sprintf("%s: %s", taskType, filepath.Base(file)),
			Description: description,
			Type:        taskType,
			Priority:    priority,
			NodeIDs:     nodeIDs,
			FilePath:    file,
			Status:      TaskAvailable,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		taskByFile[file] = i
	}

	// Task T depends on task U when a node in T lists U's file in its
	// impact footprint.
	for i := range tasks {
		deps := make(map[string]bool)
		for _, nodeID := range tasks[i].NodeIDs {
			report := impacts[nodeID]
			if report == nil {
				continue
			}
			for _, affected := range report.AffectedFiles {
				j, ok := taskByFile[affected]
				if ok && j != i {
					deps[tasks[j].ID] = true
				}
			}
		}
		tasks[i].Dependencies = sortedKeys(deps)
	}

	order := topoSort(tasks, d.logger)

	var parallel, sequential []string
	critHigh := 0
	for _, t := range tasks {
		if len(t.Dependencies) == 0 {
			parallel = append(parallel, t.ID)
		} else {
			sequential = append(sequential, t.ID)
		}
		if t.Priority >= PriorityHigh {
			critHigh++
		}
	}

	dec := &Decomposition{
		Tasks:               tasks,
		ExecutionOrder:      order,
		Parallelisable:      parallel,
		Sequential:          sequential,
		EstimatedComplexity: estimateComplexity(tasks, critHigh),
	}
	d.logger.Info("swarm.decompose.complete",
		"tasks", len(tasks),
		"type", string(taskType),
		"parallelisable", len(parallel),
		"complexity", dec.EstimatedComplexity,
	)
	return dec, nil
}

// maxRisk returns the highest impact risk across a group of nodes.
func maxRisk(nodes []graph.CodeNode, impacts map[string]*analysis.ImpactReport) analysis.RiskLevel {
	best := analysis.RiskLow
	for _, n := range nodes {
		report := impacts[n.ID]
		if report == nil {
			continue
		}
		if riskRank[report.RiskLevel] > riskRank[best] {
			best = report.RiskLevel
		}
	}
	return best
}

// topoSort orders tasks so dependencies come before dependents. A cycle
// is broken by skipping the edge back onto the DFS stack and continuing:
// the tasks on the cycle may legitimately run in either order. Traversal
// follows the file-sorted task list, so the result is deterministic.
func topoSort(tasks []Task, logger *slog.Logger) []string {
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	visited := make(map[string]bool, len(tasks))
	done := make(map[string]bool, len(tasks))
	order := make([]string, 0, len(tasks))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		task := byID[id]
		deps := append([]string(nil), task.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			// Visited but not done means dep is still on the DFS stack,
			// so this edge closes a cycle.
			if visited[dep] && !done[dep] {
				logger.Debug("swarm.decompose.cycle_broken", "task_id", id, "dependency", dep)
				continue
			}
			visit(dep)
		}
		done[id] = true
		order = append(order, id)
	}

	for i := range tasks {
		visit(tasks[i].ID)
	}
	return order
}

// estimateComplexity summarises decomposition size for human consumers.
func estimateComplexity(tasks []Task, critHigh int) string {
	maxFanIn := 0
	for _, t := range tasks {
		if len(t.Dependencies) > maxFanIn {
			maxFanIn = len(t.Dependencies)
		}
	}
	score := len(tasks) + 2*critHigh + 3*maxFanIn
	switch {
	case score >= 20:
		return "high"
	case score >= 8:
		return "medium"
	default:
		return "low"
	}
}

// GetParallelizableTasks returns the tasks not yet completed whose every
// dependency is already in completedIDs.
func GetParallelizableTasks(all []Task, completedIDs []string) []Task {
	done := make(map[string]bool, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = true
	}

	var out []Task
	for _, t := range all {
		if done[t.ID] || t.Status.terminal() {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
