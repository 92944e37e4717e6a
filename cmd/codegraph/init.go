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
	"path/filepath"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// runInit executes the 'init' CLI command: it writes the default
// pipeline configuration so users have a file to edit. Refuses to
// overwrite an existing config unless --force is given.
//
// Examples:
//
//	codegraph init                   Write ~/.codegraph/config.yaml
//	codegraph init --path ./cg.yaml  Write a project-local config
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "", "Where to write the config (default: ~/.codegraph/config.yaml)")
	force := fs.Bool("force", false, "Overwrite an existing config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph init [options]

Writes the default configuration file. Edit it to tune source globs,
chunk sizes and worker counts, then pass it with --config or keep it
at the default location where every command picks it up.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.normalize()

	target := *path
	if target == "" {
		target = bootstrap.DefaultConfigPath()
	}

	if _, err := os.Stat(target); err == nil && !*force {
		errors.FatalError(errors.NewInputError(
			"Config file already exists",
			target,
			"Pass --force to overwrite it",
		), globals.JSON)
	}

	data, err := yaml.Marshal(pipeline.DefaultConfig())
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot create config directory",
			filepath.Dir(target),
			"Check directory permissions",
			err,
		), globals.JSON)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		errors.FatalError(errors.NewPermissionError(
			"Cannot write config file",
			target,
			"Check directory permissions",
			err,
		), globals.JSON)
	}

	ui.Successf("Wrote %s", target)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  Edit the file to match your repository layout")
	fmt.Println("  codegraph parse    Parse with the new configuration")
}
