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
	"github.com/kraklabs/codegraph/pkg/analysis"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// runTraverse executes the 'traverse' CLI command: a breadth-first
// exploration of everything connected to a node, grouped by depth and
// relationship chain.
//
// Examples:
//
//	codegraph traverse func:3fa4...            Default depth 3
//	codegraph traverse type:9bc2... --depth 5  Deeper exploration
func runTraverse(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("traverse", flag.ExitOnError)
	depth := fs.Int("depth", 3, "Maximum traversal depth")
	limit := fs.Int("limit", 100, "Maximum connections to collect")
	details := fs.Bool("details", false, "Include the start node's source excerpt")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph traverse [options] <node-id> [path]

Explores all connections reachable from a node, both directions, out to
the requested depth. path is the workspace root (default: current
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
	nodeID := fs.Arg(0)

	rt := openRuntime(globals)
	defer func() { _ = rt.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args()[1:])
	syncParse(ctx, rt, globals, root, pipeline.ParseOptions{})

	engine := analysis.NewTraversalEngine(rt.Store, rt.Logger)
	report, err := engine.TraverseFromNode(ctx, nodeID, analysis.TraversalOptions{
		MaxDepth:            *depth,
		Limit:               *limit,
		IncludeStartDetails: *details,
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
	fmt.Println(report.Text)
}
