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
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID   string    `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Path        string    `json:"path"`
	Status      string    `json:"status"`
	Nodes       int64     `json:"nodes"`
	Edges       int64     `json:"edges"`
	FilesTotal  int       `json:"files_total"`
	FilesParsed int       `json:"files_parsed"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command. It refreshes the graph
// with an incremental parse (unchanged files are skipped) and prints
// the project's graph statistics.
//
// Examples:
//
//	codegraph status            Status of the current repository
//	codegraph status --json     Output as JSON for programmatic use
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph status [options] [path]

Shows graph statistics for the workspace at path (default: current
directory). Runs an incremental parse first so the numbers reflect the
workspace as it is now.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.normalize()

	rt := openRuntime(globals)
	defer func() { _ = rt.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args())
	outcome := syncParse(ctx, rt, globals, root, pipeline.ParseOptions{})

	result := &StatusResult{
		ProjectID:   outcome.ProjectID,
		ProjectName: outcome.ProjectName,
		FilesTotal:  outcome.FilesTotal,
		FilesParsed: outcome.FilesParsed,
		Timestamp:   time.Now(),
	}

	listed, err := rt.Store.Invoke(ctx, graph.ListProjects, graph.Params{})
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}
	for _, row := range listed.Rows {
		if graph.AsString(row["id"]) != outcome.ProjectID {
			continue
		}
		result.Path = graph.AsString(row["path"])
		result.Status = graph.AsString(row["status"])
		result.Nodes = graph.AsInt(row["node_count"])
		result.Edges = graph.AsInt(row["edge_count"])
		result.UpdatedAt = graph.AsString(row["updated_at"])
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	printStatus(result)
}

func printStatus(result *StatusResult) {
	ui.Header("Code Graph Status")
	fmt.Printf("Project:       %s (%s)\n", result.ProjectName, result.ProjectID)
	fmt.Printf("Path:          %s\n", result.Path)
	fmt.Printf("Status:        %s\n", result.Status)
	fmt.Println()

	fmt.Println("Graph:")
	fmt.Printf("  Nodes:         %s\n", ui.CountText(int(result.Nodes)))
	fmt.Printf("  Edges:         %s\n", ui.CountText(int(result.Edges)))
	fmt.Printf("  Files:         %d tracked, %d parsed this run\n", result.FilesTotal, result.FilesParsed)
}
