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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// runImpact executes the 'impact' CLI command: "what breaks if I modify
// this?". The target is either a node ID or a file path relative to the
// workspace root.
//
// Examples:
//
//	codegraph impact src/auth/service.ts          All entities in a file
//	codegraph impact func:3fa4... --depth 5       A single node, deeper
func runImpact(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("impact", flag.ExitOnError)
	depth := fs.Int("depth", 3, "Maximum transitive traversal depth")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph impact [options] <target> [path]

Analyzes the blast radius of modifying a target. The target is a node
ID or a file path; path is the workspace root (default: current
directory).

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
	target := fs.Arg(0)

	rt := openRuntime(globals)
	defer func() { _ = rt.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args()[1:])
	outcome := syncParse(ctx, rt, globals, root, pipeline.ParseOptions{})

	engine := analysis.NewImpactEngine(rt.Store, rt.Logger)
	report, err := engine.Analyze(ctx, outcome.ProjectID, target, *depth, analysis.FrameworkConfig{})
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	if globals.JSON {
		if err := output.JSON(report); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	printImpact(report)
}

func printImpact(report *analysis.ImpactReport) {
	ui.Header("Impact Analysis")
	fmt.Printf("Target:        %s (%s mode)\n", report.Target, report.Mode)
	if report.Mode == "file" {
		fmt.Printf("Entities:      %d\n", report.EntityCount)
	}
	fmt.Println()

	fmt.Printf("Risk:          %s (score %.2f)\n", ui.RiskText(string(report.RiskLevel)), report.RiskScore)
	fmt.Printf("Direct:        %s dependents (avg weight %.2f)\n", ui.CountText(report.DirectCount), report.AvgWeight)
	fmt.Printf("Transitive:    %s dependents\n", ui.CountText(report.TransitiveCount))
	fmt.Printf("Files:         %d affected\n", len(report.AffectedFiles))

	if len(report.CriticalPaths) > 0 {
		fmt.Println()
		ui.SubHeader("Critical Paths")
		for _, p := range report.CriticalPaths {
			fmt.Printf("  %s\n", p)
		}
	}

	if len(report.Direct) > 0 {
		fmt.Println()
		ui.SubHeader("Direct Dependents")
		for _, d := range report.Direct {
			fmt.Printf("  %-10s %-30s %s (%s, %.2f)\n", d.CoreType, d.Name, d.FilePath, d.Relationship, d.Weight)
		}
	}
}
