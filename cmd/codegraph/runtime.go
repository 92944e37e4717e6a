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
	"os"
	"os/signal"
	"syscall"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// openRuntime assembles the runtime for one command invocation.
func openRuntime(globals GlobalFlags) *bootstrap.Runtime {
	rt, err := bootstrap.New(bootstrap.Options{
		ConfigPath: globals.ConfigPath,
		Logger:     newLogger(globals),
	})
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Check the --config path or run 'codegraph init' to create one",
			err,
		), globals.JSON)
	}
	return rt
}

// commandContext returns a context cancelled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// workspaceArg resolves the optional trailing path argument. Defaults
// to the current directory.
func workspaceArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}

// syncParse runs an incremental parse of the workspace with a progress
// bar, returning the outcome. The analysis commands call this first so
// the graph reflects the workspace they are asked about.
func syncParse(ctx context.Context, rt *bootstrap.Runtime, globals GlobalFlags, root string, opts pipeline.ParseOptions) *pipeline.ParseOutcome {
	progressCfg := NewProgressConfig(globals)
	bar := NewSpinner(progressCfg, "parsing "+root)
	progress := func(phase pipeline.Phase, current, total int, details string) {
		if bar == nil {
			return
		}
		bar.Describe(string(phase) + " " + details)
		_ = bar.Add(1)
	}

	outcome, err := rt.Coordinator.Parse(ctx, root, opts, progress)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}
	return outcome
}
