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
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// runQuery executes the 'query' CLI command: it invokes a named store
// query directly and prints the rows as JSON. Intended for debugging
// and for agents driving the graph programmatically.
//
// Examples:
//
//	codegraph query LIST_PROJECTS
//	codegraph query GET_NODES_BY_FILE --params '{"file_path":"src/a.ts"}'
func runQuery(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	paramsJSON := fs.String("params", "{}", "Query parameters as a JSON object")
	noParse := fs.Bool("no-parse", false, "Skip the refresh parse before querying")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph query [options] <query-name> [path]

Invokes a named store query against the graph of the workspace at path
(default: current directory) and prints the result rows as JSON. The
project_id parameter is filled in automatically unless provided.

Query names are the store's named queries, e.g. LIST_PROJECTS,
GET_NODES_BY_FILE, GET_NODE_IMPACT, FIND_UNREFERENCED_EXPORTS.

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
	queryName := fs.Arg(0)

	params := graph.Params{}
	if err := json.Unmarshal([]byte(*paramsJSON), &params); err != nil {
		errors.FatalError(errors.NewInputError(
			"Invalid --params",
			err.Error(),
			"Pass a JSON object, e.g. --params '{\"file_path\":\"src/a.ts\"}'",
		), globals.JSON)
	}

	rt := openRuntime(globals)
	defer func() { _ = rt.Close() }()

	ctx, cancel := commandContext()
	defer cancel()

	root := workspaceArg(fs.Args()[1:])
	if !*noParse {
		outcome := syncParse(ctx, rt, globals, root, pipeline.ParseOptions{})
		if _, ok := params["project_id"]; !ok {
			params["project_id"] = outcome.ProjectID
		}
	}

	res, err := rt.Store.Invoke(ctx, graph.NamedQuery(queryName), params)
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	if err := output.JSON(res.Rows); err != nil {
		errors.FatalError(errors.Classify(err), true)
	}
}
