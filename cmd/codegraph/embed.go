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
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/embed"
	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// EmbedResult summarises an embedding run for JSON output.
type EmbedResult struct {
	ProjectID string        `json:"project_id"`
	Nodes     int           `json:"nodes"`
	Dimension int           `json:"dimension"`
	Duration  time.Duration `json:"duration_ns"`
}

// runEmbed executes the 'embed' CLI command: it generates an embedding
// vector per graph node. With OPENAI_API_KEY set the OpenAI-compatible
// provider is used; otherwise a deterministic mock provider.
//
// Examples:
//
//	codegraph embed                 Embed the current repository's graph
//	OPENAI_API_KEY=... codegraph embed ./api
func runEmbed(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 0, "Items per provider batch (0 for the default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph embed [options] [path]

Generates an embedding per graph node of the workspace at path
(default: current directory). Nodes are embedded as "name type file"
signatures in provider batches with rate-limit aware retry.

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

	texts, err := collectNodeSignatures(ctx, rt.Store, outcome.ProjectID)
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}
	if len(texts) == 0 {
		errors.FatalError(errors.NewNotFoundError(
			"Nothing to embed",
			"The project has no graph nodes",
			"Run 'codegraph parse' first, or check the workspace path",
		), globals.JSON)
	}

	batcher := embed.NewBatcher(rt.Embedder, embed.BatcherOptions{BatchSize: *batchSize}, rt.Logger)

	start := time.Now()
	vectors, err := batcher.EmbedAll(ctx, texts)
	if err != nil {
		errors.FatalError(errors.Classify(err), globals.JSON)
	}

	result := &EmbedResult{
		ProjectID: outcome.ProjectID,
		Nodes:     len(vectors),
		Duration:  time.Since(start),
	}
	if len(vectors) > 0 {
		result.Dimension = len(vectors[0])
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(errors.Classify(err), true)
		}
		return
	}
	ui.Header("Embedding Complete")
	fmt.Printf("Nodes:         %s\n", ui.CountText(result.Nodes))
	fmt.Printf("Dimension:     %d\n", result.Dimension)
	fmt.Printf("Duration:      %s\n", result.Duration.Round(time.Millisecond))
}

// collectNodeSignatures walks every tracked file and renders each of
// its nodes as a short "name type file" signature for embedding.
func collectNodeSignatures(ctx context.Context, store graph.Store, projectID string) ([]string, error) {
	tracked, err := store.Invoke(ctx, graph.GetSourceFileTrackingInfo, graph.Params{
		"project_id": projectID,
	})
	if err != nil {
		return nil, fmt.Errorf("tracked files: %w", err)
	}

	var texts []string
	for _, fileRow := range tracked.Rows {
		filePath := graph.AsString(fileRow["file_path"])
		res, err := store.Invoke(ctx, graph.GetNodesByFile, graph.Params{
			"project_id": projectID,
			"file_path":  filePath,
		})
		if err != nil {
			return nil, fmt.Errorf("nodes for %s: %w", filePath, err)
		}
		for _, row := range res.Rows {
			texts = append(texts, fmt.Sprintf("%s %s %s",
				graph.AsString(row["name"]),
				graph.AsString(row["core_type"]),
				filePath,
			))
		}
	}
	return texts, nil
}
