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

// Package bootstrap assembles the codegraph runtime: config, graph
// store, AST parser factory, parse coordinator, background job manager,
// and embedding provider.
//
// Every CLI command builds one Runtime, uses its collaborators, and
// closes it on the way out:
//
//	rt, err := bootstrap.New(bootstrap.Options{ConfigPath: flagConfig})
//	if err != nil {
//	    return err
//	}
//	defer rt.Close()
//
//	job, err := rt.Runner.StartParse(ctx, projectRoot, pipeline.ParseOptions{})
//
// # Configuration
//
// Config resolution order:
//
//  1. An explicit --config path (must exist)
//  2. ~/.codegraph/config.yaml when present
//  3. Built-in defaults
//
// # Embeddings
//
// The embedding backend is selected from the environment. When
// OPENAI_API_KEY is set the OpenAI-compatible HTTP provider is used;
// CODEGRAPH_EMBED_BASE_URL and CODEGRAPH_EMBED_MODEL override the
// endpoint and model. Without a key the deterministic offline provider
// keeps every command runnable.
package bootstrap
