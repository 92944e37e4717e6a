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
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/ui"
)

// GlobalFlags are the flags shared by every command.
type GlobalFlags struct {
	// JSON switches output to machine-readable JSON. Implies Quiet.
	JSON bool

	// Quiet suppresses progress bars and informational chatter.
	Quiet bool

	// NoColor disables colored output.
	NoColor bool

	// Verbose raises log verbosity. 0 warn, 1 info, 2+ debug.
	Verbose int

	// ConfigPath points at a pipeline config file.
	ConfigPath string
}

// RegisterGlobalFlags binds the global flags onto a flag set and returns
// the struct they fill.
func RegisterGlobalFlags(fs *flag.FlagSet) *GlobalFlags {
	g := &GlobalFlags{}
	fs.BoolVar(&g.JSON, "json", false, "Output machine-readable JSON")
	fs.BoolVarP(&g.Quiet, "quiet", "q", false, "Suppress progress output")
	fs.BoolVar(&g.NoColor, "no-color", false, "Disable colored output")
	fs.CountVarP(&g.Verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	fs.StringVar(&g.ConfigPath, "config", "", "Path to config.yaml (default: ~/.codegraph/config.yaml)")
	return g
}

// normalize applies flag interactions: JSON output must not be polluted
// by progress bars or colored text.
func (g *GlobalFlags) normalize() {
	if g.JSON {
		g.Quiet = true
		g.NoColor = true
	}
	ui.InitColors(g.NoColor)
}

// newLogger builds the command logger. Logs go to stderr so stdout
// stays clean for command output.
func newLogger(g GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case g.Verbose >= 2:
		level = slog.LevelDebug
	case g.Verbose == 1:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
