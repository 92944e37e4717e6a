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
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// runDeadCode executes the 'deadcode' CLI command: finds exports nobody
// imports, private symbols nobody calls, and interfaces nobody
// implements or references.
//
// Examples:
//
//	codegraph deadcode                        Summary plus findings
//	codegraph deadcode --summary              Counts only
//	codegraph deadcode --min-confidence HIGH  High-confidence findings
func runDeadCode(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("deadcode", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum findings to return")
	offset := fs.Int("offset", 0, "Findings to skip (pagination)")
	minConfidence := fs.String("min-confidence", "", "Minimum confidence: HIGH, MEDIUM or LOW")
	category := fs.String("category", "all", "Category filter: library-export, ui-component, internal-unused or all")
	exclude := fs.StringSlice("exclude", nil, "Glob patterns for files to exclude (repeatable)")
	summary := fs.Bool("summary", false, "Counts only, no individual findings")
	includeEntries := fs.Bool("include-entry-points", false, "List the framework entry points that were excluded")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph deadcode [options] [path]

Detects unreferenced code in the workspace at path (default: current
directory). Framework entry points (routes, handlers, main files) are
excluded automatically.

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

	engine := analysis.NewDeadCodeEngine(rt.Store, rt.Logger)
	report, err := engine.Detect(ctx, outcome.ProjectID, analysis.DeadCodeOptions{
		ExcludePatterns:    *exclude,
		MinConfidence:      analysis.Confidence(*minConfidence),
		Category:           analysis.Category(*category),
		Limit:              *limit,
		Offset:             *offset,
		SummaryOnly:        *summary,
		IncludeEntryPoints: *includeEntries,
	})
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(report); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	printDeadCode(report)
}

func printDeadCode(report *analysis.DeadCodeReport) {
	ui.Header("Dead Code Report")
	fmt.Printf("Findings:      %s", ui.CountText(report.Total))
	if report.EntryExcluded > 0 {
		fmt.Printf(" (%d entry points excluded)", report.EntryExcluded)
	}
	fmt.Println()

	fmt.Printf("Risk:          %s\n", ui.RiskText(string(report.RiskLevel)))
	fmt.Println()

	ui.SubHeader("By Confidence")
	for _, c := range []analysis.Confidence{analysis.ConfidenceHigh, analysis.ConfidenceMedium, analysis.ConfidenceLow} {
		if n := report.ByConfidence[c]; n > 0 {
			fmt.Printf("  %-8s %d\n", c, n)
		}
	}

	if len(report.ByCoreType) > 0 {
		fmt.Println()
		ui.SubHeader("By Type")
		types := make([]string, 0, len(report.ByCoreType))
		for t := range report.ByCoreType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Printf("  %-12s %d\n", t, report.ByCoreType[t])
		}
	}

	if len(report.TopFiles) > 0 {
		fmt.Println()
		ui.SubHeader("Densest Files")
		for _, f := range report.TopFiles {
			fmt.Printf("  %3d  %s\n", f.Count, f.FilePath)
		}
	}

	if len(report.Findings) > 0 {
		fmt.Println()
		ui.SubHeader("Findings")
		for _, f := range report.Findings {
			fmt.Printf("  [%s] %-10s %-30s %s:%d\n", ui.ConfidenceText(string(f.Confidence)), f.CoreType, f.Name, f.FilePath, f.LineNumber)
			fmt.Printf("         %s\n", ui.DimText(f.Reason))
		}
		if report.Total > report.Offset+len(report.Findings) {
			fmt.Println()
			ui.Infof("Showing %d-%d of %d. Use --offset to page.", report.Offset+1, report.Offset+len(report.Findings), report.Total)
		}
	}

	if len(report.EntryPoints) > 0 {
		fmt.Println()
		ui.SubHeader("Excluded Entry Points")
		for _, ep := range report.EntryPoints {
			fmt.Printf("  %-30s %s (%s)\n", ep.Name, ep.FilePath, ep.Reason)
		}
	}
}
