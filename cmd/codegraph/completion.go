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
)

// bashCompletionTemplate provides command and flag completion for bash.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for codegraph
# Installation:
#   source <(codegraph completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(codegraph completion bash)' >> ~/.bashrc

_codegraph_completion() {
    local cur prev commands
    commands="parse status impact deadcode traverse swarm embed query init install-hook completion"

    # Current word being completed
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --config --json --quiet --no-color --verbose" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    # Command-specific flag completion
    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        parse)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--full --name --metrics-addr" -- ${cur}) )
            fi
            ;;
        impact)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--depth" -- ${cur}) )
            fi
            ;;
        deadcode)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--limit --offset --min-confidence --category --exclude --summary --include-entry-points" -- ${cur}) )
            fi
            ;;
        traverse)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--depth --limit --details" -- ${cur}) )
            fi
            ;;
        swarm)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--file --agents --priority --execute --exec-cmd" -- ${cur}) )
            fi
            ;;
        embed)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--batch-size" -- ${cur}) )
            fi
            ;;
        query)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--params --no-parse" -- ${cur}) )
            fi
            ;;
        init)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--path --force" -- ${cur}) )
            fi
            ;;
        install-hook)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--force --remove" -- ${cur}) )
            fi
            ;;
        completion)
            # Complete shell names for completion command
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _codegraph_completion codegraph
`

// zshCompletionTemplate provides command and flag completion for zsh.
const zshCompletionTemplate = `#compdef codegraph

# Zsh completion script for codegraph
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      codegraph completion zsh > "${fpath[1]}/_codegraph"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_codegraph() {
    local -a commands
    commands=(
        'parse:Parse a workspace into the code graph'
        'status:Show project status and graph counts'
        'impact:Analyze the blast radius of changing a node or file'
        'deadcode:Detect unreferenced exports and uncalled private methods'
        'traverse:Explore layered connections from a node'
        'swarm:Decompose a change description into agent tasks'
        'embed:Generate embeddings for graph nodes'
        'query:Invoke a named store query directly'
        'init:Write a default config file'
        'install-hook:Install git post-commit hook'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--config[Path to config.yaml]:config file:_files -g "*.yaml"' \
        '--json[Output machine-readable JSON]' \
        '(-q --quiet)'{-q,--quiet}'[Suppress progress output]' \
        '--no-color[Disable colored output]' \
        '(-v --verbose)'{-v,--verbose}'[Increase log verbosity]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                parse)
                    _arguments \
                        '--full[Clear the project and reparse everything]' \
                        '--name[Override the friendly project name]:name:' \
                        '--metrics-addr[Prometheus metrics address]:address:'
                    ;;
                impact)
                    _arguments \
                        '--depth[Maximum transitive traversal depth]:depth:' \
                        '1:target:'
                    ;;
                deadcode)
                    _arguments \
                        '--limit[Maximum findings to return]:limit:' \
                        '--offset[Findings to skip]:offset:' \
                        '--min-confidence[Minimum confidence]:confidence:(HIGH MEDIUM LOW)' \
                        '--category[Category filter]:category:(library-export ui-component internal-unused all)' \
                        '--summary[Counts only, no individual findings]' \
                        '--include-entry-points[List excluded framework entry points]'
                    ;;
                traverse)
                    _arguments \
                        '--depth[Maximum traversal depth]:depth:' \
                        '--limit[Maximum connections to collect]:limit:' \
                        '--details[Include the start node source excerpt]' \
                        '1:node id:'
                    ;;
                swarm)
                    _arguments \
                        '--file[File to include in the plan]:file:_files' \
                        '--agents[Worker count when executing]:agents:' \
                        '--priority[Base priority]:priority:(backlog low normal high critical)' \
                        '--execute[Execute the plan with a local worker pool]' \
                        '--exec-cmd[Command run per task when executing]:command:' \
                        '1:description:'
                    ;;
                embed)
                    _arguments \
                        '--batch-size[Items per provider batch]:size:'
                    ;;
                query)
                    _arguments \
                        '--params[Query parameters as a JSON object]:json:' \
                        '--no-parse[Skip the refresh parse before querying]' \
                        '1:query name:'
                    ;;
                init)
                    _arguments \
                        '--path[Where to write the config]:path:_files' \
                        '--force[Overwrite an existing config file]'
                    ;;
                install-hook)
                    _arguments \
                        '--force[Overwrite existing hook]' \
                        '--remove[Remove the hook]'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_codegraph
`

// fishCompletionTemplate provides command and flag completion for fish.
const fishCompletionTemplate = `# Fish completion script for codegraph
# Installation:
#   1. Load completions for current session:
#      codegraph completion fish | source
#   2. Install permanently:
#      codegraph completion fish > ~/.config/fish/completions/codegraph.fish

# Commands
complete -c codegraph -f -n "__fish_use_subcommand" -a "parse" -d "Parse a workspace into the code graph"
complete -c codegraph -f -n "__fish_use_subcommand" -a "status" -d "Show project status and graph counts"
complete -c codegraph -f -n "__fish_use_subcommand" -a "impact" -d "Analyze the blast radius of a change"
complete -c codegraph -f -n "__fish_use_subcommand" -a "deadcode" -d "Detect unreferenced code"
complete -c codegraph -f -n "__fish_use_subcommand" -a "traverse" -d "Explore layered connections from a node"
complete -c codegraph -f -n "__fish_use_subcommand" -a "swarm" -d "Decompose a change into agent tasks"
complete -c codegraph -f -n "__fish_use_subcommand" -a "embed" -d "Generate embeddings for graph nodes"
complete -c codegraph -f -n "__fish_use_subcommand" -a "query" -d "Invoke a named store query directly"
complete -c codegraph -f -n "__fish_use_subcommand" -a "init" -d "Write a default config file"
complete -c codegraph -f -n "__fish_use_subcommand" -a "install-hook" -d "Install git post-commit hook"
complete -c codegraph -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c codegraph -l version -d "Show version and exit"
complete -c codegraph -l config -d "Path to config.yaml" -r
complete -c codegraph -l json -d "Output machine-readable JSON"
complete -c codegraph -s q -l quiet -d "Suppress progress output"
complete -c codegraph -l no-color -d "Disable colored output"
complete -c codegraph -s v -l verbose -d "Increase log verbosity"

# parse command flags
complete -c codegraph -n "__fish_seen_subcommand_from parse" -l full -d "Clear the project and reparse everything"
complete -c codegraph -n "__fish_seen_subcommand_from parse" -l name -d "Override the friendly project name" -r
complete -c codegraph -n "__fish_seen_subcommand_from parse" -l metrics-addr -d "Prometheus metrics address" -r

# impact command flags
complete -c codegraph -n "__fish_seen_subcommand_from impact" -l depth -d "Maximum transitive traversal depth" -r

# deadcode command flags
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l limit -d "Maximum findings to return" -r
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l offset -d "Findings to skip" -r
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l min-confidence -d "Minimum confidence" -r
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l category -d "Category filter" -r
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l summary -d "Counts only"
complete -c codegraph -n "__fish_seen_subcommand_from deadcode" -l include-entry-points -d "List excluded entry points"

# traverse command flags
complete -c codegraph -n "__fish_seen_subcommand_from traverse" -l depth -d "Maximum traversal depth" -r
complete -c codegraph -n "__fish_seen_subcommand_from traverse" -l limit -d "Maximum connections to collect" -r
complete -c codegraph -n "__fish_seen_subcommand_from traverse" -l details -d "Include the start node source excerpt"

# swarm command flags
complete -c codegraph -n "__fish_seen_subcommand_from swarm" -l file -d "File to include in the plan" -r
complete -c codegraph -n "__fish_seen_subcommand_from swarm" -l agents -d "Worker count when executing" -r
complete -c codegraph -n "__fish_seen_subcommand_from swarm" -l priority -d "Base priority" -r
complete -c codegraph -n "__fish_seen_subcommand_from swarm" -l execute -d "Execute the plan with a local worker pool"
complete -c codegraph -n "__fish_seen_subcommand_from swarm" -l exec-cmd -d "Command run per task when executing" -r

# embed command flags
complete -c codegraph -n "__fish_seen_subcommand_from embed" -l batch-size -d "Items per provider batch" -r

# query command flags
complete -c codegraph -n "__fish_seen_subcommand_from query" -l params -d "Query parameters as a JSON object" -r
complete -c codegraph -n "__fish_seen_subcommand_from query" -l no-parse -d "Skip the refresh parse before querying"

# init command flags
complete -c codegraph -n "__fish_seen_subcommand_from init" -l path -d "Where to write the config" -r
complete -c codegraph -n "__fish_seen_subcommand_from init" -l force -d "Overwrite an existing config file"

# install-hook command flags
complete -c codegraph -n "__fish_seen_subcommand_from install-hook" -l force -d "Overwrite existing hook"
complete -c codegraph -n "__fish_seen_subcommand_from install-hook" -l remove -d "Remove the hook"

# completion command arguments
complete -c codegraph -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c codegraph -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c codegraph -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, generating
// shell-specific completion scripts for bash, zsh, or fish.
//
// Examples:
//
//	codegraph completion bash                Output bash completion script
//	source <(codegraph completion bash)      Load completions in current shell
//	codegraph completion fish | source       Load fish completions
func runCompletion(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph completion <shell>

Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Installation:

Bash:
  source <(codegraph completion bash)
  echo 'source <(codegraph completion bash)' >> ~/.bashrc

Zsh:
  codegraph completion zsh > "${fpath[1]}/_codegraph"

Fish:
  codegraph completion fish > ~/.config/fish/completions/codegraph.fish

After installing completions, restart your shell or source your rc file.

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'codegraph completion bash', 'codegraph completion zsh', or 'codegraph completion fish'",
		), false)
	}

	shell := fs.Arg(0)

	switch shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'codegraph completion bash', 'codegraph completion zsh', or 'codegraph completion fish'",
		), false)
	}
}
