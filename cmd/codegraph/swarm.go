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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/contract"
	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
	"github.com/kraklabs/codegraph/pkg/swarm"
)

// impactDepthForPlanning bounds the per-node impact queries that feed
// task prioritisation. Deep traversals add little signal here.
const impactDepthForPlanning = 2

// SwarmPlan is the JSON shape of a decomposition run.
type SwarmPlan struct {
	Description string               `json:"description"`
	Files       []string             `json:"files"`
	Plan        *swarm.Decomposition `json:"plan"`
	Executed    bool                 `json:"executed"`
	Results     []swarm.Task         `json:"results,omitempty"`
}

// runSwarm executes the 'swarm' CLI command: it decomposes a change
// description into a coordinated task plan over the named files, and
// optionally executes the plan with a pool of workers.
//
// Examples:
//
//	codegraph swarm "rename session handling" --file src/auth/session.ts
//	codegraph swarm "migrate to v2 API" --file src/api.ts --execute --agents 4
func runSwarm(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("swarm", flag.ExitOnError)
	files := fs.StringSlice("file", nil, "File to include in the plan (repeatable)")
	agents := fs.Int("agents", 3, "Worker count when executing")
	priority := fs.String("priority", "normal", "Base priority: backlog, low, normal, high or critical")
	execute := fs.Bool("execute", false, "Execute the plan with a local worker pool")
	execCmd := fs.String("exec-cmd", "", "Command run per task when executing (task details in CODEGRAPH_TASK_* env)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph swarm [options] <description> [path]

Decomposes a change description into agent tasks scoped to the files
named with --file. Tasks are prioritised by change impact and ordered
by cross-file dependencies. With --execute the plan runs locally:
workers claim tasks off a shared board and coordinate through
pheromone marks on the graph nodes they touch.

Without --exec-cmd execution is a dry run: each task is claimed,
marked and completed without running anything.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.normalize()

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	description := fs.Arg(0)

	if v := contract.ValidateTaskDescription(description); !v.OK {
		errors.FatalError(errors.NewInputError(
			"Invalid task description",
			v.Message,
			"Provide a short description of the change, e.g. \"rename the session handler\"",
		), globals.JSON)
	}
	if len(*files) == 0 {
		errors.FatalError(errors.NewInputError(
			"No files to plan over",
			"The swarm planner needs at least one --file to scope the decomposition",
			"Add --file <path> for each file the change touches",
		), globals.JSON)
	}

	rt := openRuntime(globals)
	defer func() { _ = rt.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args()[1:])
	outcome := syncParse(ctx, rt, globals, root, pipeline.ParseOptions{})

	nodes, err := collectFileNodes(ctx, rt.Store, outcome.ProjectID, *files)
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}
	if len(nodes) == 0 {
		errors.FatalError(errors.NewNotFoundError(
			"No graph nodes in the named files",
			"None of the --file paths match parsed files in this project",
			"Paths are relative to the workspace root; check 'codegraph status'",
		), globals.JSON)
	}

	impactEngine := analysis.NewImpactEngine(rt.Store, rt.Logger)
	impacts := make(map[string]*analysis.ImpactReport, len(nodes))
	for _, n := range nodes {
		report, err := impactEngine.Analyze(ctx, outcome.ProjectID, n.ID, impactDepthForPlanning, analysis.FrameworkConfig{})
		if err != nil {
			rt.Logger.Warn("swarm.plan.impact_failed", "node", n.ID, "err", err)
			continue
		}
		impacts[n.ID] = report
	}

	decomposer := swarm.NewDecomposer(rt.Logger)
	plan, err := decomposer.Decompose(description, nodes, impacts, parsePriority(*priority))
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	result := &SwarmPlan{
		Description: description,
		Files:       *files,
		Plan:        plan,
	}

	if *execute {
		result.Results = executePlan(ctx, rt.Logger, plan, *agents, *execCmd, globals)
		result.Executed = true
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	printSwarmPlan(result)
}

// collectFileNodes loads the graph nodes for each named file.
func collectFileNodes(ctx context.Context, store graph.Store, projectID string, files []string) ([]graph.CodeNode, error) {
	var nodes []graph.CodeNode
	for _, file := range files {
		res, err := store.Invoke(ctx, graph.GetNodesByFile, graph.Params{
			"project_id": projectID,
			"file_path":  file,
		})
		if err != nil {
			return nil, fmt.Errorf("nodes for %s: %w", file, err)
		}
		for _, row := range res.Rows {
			nodes = append(nodes, graph.CodeNode{
				ID:           graph.AsString(row["id"]),
				Name:         graph.AsString(row["name"]),
				CoreType:     graph.AsString(row["core_type"]),
				SemanticType: graph.AsString(row["semantic_type"]),
				FilePath:     graph.AsString(row["file_path"]),
				LineNumber:   int(graph.AsInt(row["line_number"])),
				IsExported:   graph.AsBool(row["is_exported"]),
				Visibility:   graph.AsString(row["visibility"]),
			})
		}
	}
	return nodes, nil
}

func parsePriority(s string) swarm.Priority {
	switch strings.ToLower(s) {
	case "backlog":
		return swarm.PriorityBacklog
	case "low":
		return swarm.PriorityLow
	case "high":
		return swarm.PriorityHigh
	case "critical":
		return swarm.PriorityCritical
	default:
		return swarm.PriorityNormal
	}
}

// executePlan runs the decomposition on a local worker pool and returns
// the terminal task states.
func executePlan(ctx context.Context, logger *slog.Logger, plan *swarm.Decomposition, agents int, execCmd string, globals GlobalFlags) []swarm.Task {
	board := swarm.NewBoard()
	board.Add(plan.Tasks...)
	pheromones := swarm.NewPheromoneStore(logger)

	executor := func(ctx context.Context, task swarm.Task) error {
		if execCmd == "" {
			return nil // dry run
		}
		cmd := exec.CommandContext(ctx, "sh", "-c", execCmd)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Env = append(os.Environ(),
			"CODEGRAPH_TASK_ID="+task.ID,
			"CODEGRAPH_TASK_TITLE="+task.Title,
			"CODEGRAPH_TASK_TYPE="+string(task.Type),
			"CODEGRAPH_TASK_FILE="+task.FilePath,
		)
		return cmd.Run()
	}

	orchestrator := swarm.NewOrchestrator(board, pheromones, executor, logger)
	if err := orchestrator.Run(ctx, agents); err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}
	return board.List()
}

func printSwarmPlan(result *SwarmPlan) {
	plan := result.Plan
	ui.Header("Swarm Plan")
	fmt.Printf("Change:        %s\n", result.Description)
	fmt.Printf("Files:         %s\n", strings.Join(result.Files, ", "))
	fmt.Printf("Tasks:         %s (%s complexity)\n", ui.CountText(len(plan.Tasks)), plan.EstimatedComplexity)
	fmt.Println()

	ui.SubHeader("Tasks")
	byID := make(map[string]swarm.Task, len(plan.Tasks))
	for _, t := range plan.Tasks {
		byID[t.ID] = t
	}
	for i, id := range plan.ExecutionOrder {
		t := byID[id]
		fmt.Printf("  %2d. [%-11s p%d] %s\n", i+1, t.Type, t.Priority, t.Title)
		if len(t.Dependencies) > 0 {
			fmt.Printf("      %s\n", ui.DimText("after: "+strings.Join(t.Dependencies, ", ")))
		}
	}

	fmt.Println()
	fmt.Printf("Parallelisable: %d tasks\n", len(plan.Parallelisable))
	fmt.Printf("Sequential:     %d tasks\n", len(plan.Sequential))

	if result.Executed {
		fmt.Println()
		ui.SubHeader("Execution")
		completed, failed := 0, 0
		for _, t := range result.Results {
			switch t.Status {
			case swarm.TaskCompleted:
				completed++
			case swarm.TaskFailed:
				failed++
				ui.Errorf("  failed: %s (%s)", t.Title, t.Error)
			}
		}
		if failed == 0 {
			ui.Successf("All %d tasks completed", completed)
		} else {
			ui.Warningf("%d completed, %d failed", completed, failed)
		}
	}
}
