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

// Package main implements the codegraph CLI for parsing repositories
// into a code graph and running analyses and swarm planning on it.
//
// Usage:
//
//	codegraph parse [path]                Parse a workspace into the graph
//	codegraph status [path] [--json]      Show project status
//	codegraph impact <target> [path]      Blast-radius analysis
//	codegraph deadcode [path]             Dead code detection
//	codegraph traverse <node> [path]      Layered connection traversal
//	codegraph swarm <description> [path]  Decompose work into agent tasks
//	codegraph embed [path]                Generate embeddings for the graph
//	codegraph query <name> [--params]     Invoke a named store query
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	globalFS := flag.NewFlagSet("codegraph", flag.ExitOnError)
	globals := RegisterGlobalFlags(globalFS)
	showVersion := globalFS.Bool("version", false, "Show version and exit")
	globalFS.SetInterspersed(false)

	globalFS.Usage = func() {
		fmt.Fprintf(os.Stderr, `codegraph - code graph indexing and analysis

codegraph parses TypeScript/JavaScript repositories into a property
graph and answers questions about it: blast radius of a change, dead
code, connection chains, and how to split a change across a swarm of
agents.

Usage:
  codegraph <command> [options]

Commands:
  parse         Parse a workspace into the code graph
  status        Show project status and graph counts
  impact        Analyze the blast radius of changing a node or file
  deadcode      Detect unreferenced exports and uncalled private methods
  traverse      Explore layered connections from a node
  swarm         Decompose a change description into agent tasks
  embed         Generate embeddings for graph nodes
  query         Invoke a named store query directly
  init          Write a default config file
  install-hook  Install git post-commit hook for auto-parsing
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --config      Path to config.yaml (default: ~/.codegraph/config.yaml)
  --json        Output machine-readable JSON
  -q, --quiet   Suppress progress output
  --no-color    Disable colored output
  -v, --verbose Increase log verbosity (repeatable)
  --version     Show version and exit

Examples:
  codegraph parse                        Parse the current repository
  codegraph parse --full ./backend       Full reparse of ./backend
  codegraph impact src/auth/session.ts   Who breaks if this file changes
  codegraph deadcode --limit 20          Top dead-code findings
  codegraph swarm "rename the session handler" --agents 4
  codegraph status --json

For detailed command help: codegraph <command> --help

`)
	}

	if err := globalFS.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("codegraph version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := globalFS.Args()
	if len(args) == 0 {
		globalFS.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "parse":
		runParse(cmdArgs, *globals)
	case "status":
		runStatus(cmdArgs, *globals)
	case "impact":
		runImpact(cmdArgs, *globals)
	case "deadcode":
		runDeadCode(cmdArgs, *globals)
	case "traverse":
		runTraverse(cmdArgs, *globals)
	case "swarm":
		runSwarm(cmdArgs, *globals)
	case "embed":
		runEmbed(cmdArgs, *globals)
	case "query":
		runQuery(cmdArgs, *globals)
	case "init":
		runInit(cmdArgs, *globals)
	case "install-hook":
		runInstallHook(cmdArgs, *globals)
	case "completion":
		runCompletion(cmdArgs, *globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		globalFS.Usage()
		os.Exit(1)
	}
}
