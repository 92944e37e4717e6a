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
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/jobs"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// jobPollInterval is how often parse waits between job status checks.
const jobPollInterval = 200 * time.Millisecond

// runParse executes the 'parse' CLI command: it parses a workspace into
// the code graph as a tracked background job and waits for completion.
//
// Flags:
//   - --full: Clear the project and reparse everything
//   - --name: Override the friendly project name
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//
// Examples:
//
//	codegraph parse                  Incremental parse of the current repo
//	codegraph parse --full ./api     Full reparse of ./api
func runParse(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	full := fs.Bool("full", false, "Clear the project and reparse everything")
	name := fs.String("name", "", "Override the friendly project name")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph parse [options] [path]

Parses the workspace at path (default: current directory) into the code
graph. Unchanged files are skipped; --full clears the project first.

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

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			rt.Logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				rt.Logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args())
	job, err := rt.Runner.StartParse(ctx, root, pipeline.ParseOptions{
		ProjectName: *name,
		Full:        *full,
	})
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	done := waitForJob(ctx, rt, globals, job.ID)
	if done.Status == jobs.StatusFailed {
		errors.FatalError(errors.NewInternalError(
			"Parse failed",
			done.Error,
			"Rerun with -vv for debug logs",
			nil,
		), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(done); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	printOutcome(done.Result)
}

// waitForJob polls the job manager until the job reaches a terminal
// state, driving a progress bar from the job's recorded progress. The
// runner shares ctx, so cancellation surfaces as a failed job.
func waitForJob(ctx context.Context, rt *bootstrap.Runtime, globals GlobalFlags, jobID string) *jobs.Job {
	progressCfg := NewProgressConfig(globals)
	var bar *progressbar.ProgressBar
	var barPhase pipeline.Phase

	for {
		job, err := rt.Jobs.GetJob(jobID)
		if err != nil {
			errors.FatalError(errors.Classify(err), globals.JSON)
		}
		if job.Status == jobs.StatusCompleted || job.Status == jobs.StatusFailed {
			if bar != nil {
				_ = bar.Finish()
			}
			return job
		}

		p := job.Progress
		current, total := p.FilesProcessed, p.FilesTotal
		if p.Phase == pipeline.PhaseParsing || p.Phase == pipeline.PhaseImporting {
			current, total = p.CurrentChunk, p.TotalChunks
		}
		if total > 0 {
			if p.Phase != barPhase {
				if bar != nil {
					_ = bar.Finish()
				}
				bar = NewProgressBar(progressCfg, int64(total), phaseDescription(p.Phase))
				barPhase = p.Phase
			}
			if bar != nil {
				_ = bar.Set(current)
			}
		}

		// Cancellation propagates through the runner's context, so the
		// loop just keeps polling until the job turns terminal.
		time.Sleep(jobPollInterval)
	}
}

func printOutcome(outcome *pipeline.ParseOutcome) {
	if outcome == nil {
		return
	}
	ui.Header("Parse Complete")
	fmt.Printf("Project:       %s (%s)\n", outcome.ProjectName, outcome.ProjectID)
	fmt.Printf("Mode:          %s\n", outcome.Mode)
	fmt.Printf("Files:         %d parsed / %d total", outcome.FilesParsed, outcome.FilesTotal)
	if outcome.FilesDeleted > 0 {
		fmt.Printf(" (%d deleted)", outcome.FilesDeleted)
	}
	fmt.Println()
	fmt.Printf("Nodes:         %s\n", ui.CountText(outcome.NodesImported))
	fmt.Printf("Edges:         %s\n", ui.CountText(outcome.EdgesImported))
	fmt.Printf("Duration:      %s\n", outcome.Duration.Round(time.Millisecond))
}
