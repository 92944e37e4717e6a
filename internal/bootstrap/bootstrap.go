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

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/codegraph/pkg/embed"
	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/graph/memstore"
	"github.com/kraklabs/codegraph/pkg/jobs"
	"github.com/kraklabs/codegraph/pkg/pipeline"
	"github.com/kraklabs/codegraph/pkg/tsparse"
)

// defaultMaxJobs caps concurrently tracked background parse jobs.
const defaultMaxJobs = 4

// mockEmbedDimensions is the vector size of the offline provider.
const mockEmbedDimensions = 768

// Options configures runtime assembly. The zero value gives a fully
// working in-memory runtime with default config.
type Options struct {
	// ConfigPath points at a YAML pipeline config. Empty falls back to
	// DefaultConfigPath() if that file exists, else built-in defaults.
	ConfigPath string

	// Store overrides the graph store. Default: in-memory store.
	Store graph.Store

	// ParserFactory overrides the AST parser. Default: Tree-sitter.
	ParserFactory pipeline.ParserFactory

	// MaxJobs caps tracked background jobs. Default: 4.
	MaxJobs int

	Logger *slog.Logger
}

// Runtime holds the wired collaborators every CLI command works
// against.
type Runtime struct {
	Logger      *slog.Logger
	Config      pipeline.Config
	Store       graph.Store
	Jobs        *jobs.Manager
	Coordinator *pipeline.Coordinator
	Runner      *jobs.Runner
	Embedder    embed.Provider
}

// DefaultConfigPath is where the CLI looks for config when none is
// given: ~/.codegraph/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codegraph", "config.yaml")
}

// New assembles a runtime. Close it when done.
func New(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store = memstore.New()
	}

	factory := opts.ParserFactory
	if factory == nil {
		factory = tsparse.New(cfg, logger)
	}

	maxJobs := opts.MaxJobs
	if maxJobs <= 0 {
		maxJobs = defaultMaxJobs
	}

	coord := pipeline.NewCoordinator(store, cfg, factory, logger)
	manager := jobs.NewManager(maxJobs, logger)

	rt := &Runtime{
		Logger:      logger,
		Config:      cfg,
		Store:       store,
		Jobs:        manager,
		Coordinator: coord,
		Runner:      jobs.NewRunner(manager, coord, logger),
		Embedder:    embedProvider(logger),
	}

	logger.Debug("bootstrap.runtime.ready", "max_jobs", maxJobs)
	return rt, nil
}

// Close stops the job sweeper and releases the store.
func (rt *Runtime) Close() error {
	rt.Jobs.Close()
	return rt.Store.Close()
}

// loadConfig resolves the effective pipeline config. An explicit path
// that cannot be read is an error; the implicit default path is
// optional.
func loadConfig(path string) (pipeline.Config, error) {
	if path != "" {
		cfg, err := pipeline.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	if p := DefaultConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			cfg, err := pipeline.LoadConfig(p)
			if err != nil {
				return cfg, fmt.Errorf("load config: %w", err)
			}
			return cfg, nil
		}
	}
	return pipeline.DefaultConfig(), nil
}

// embedProvider picks the embedding backend from the environment. With
// no API key the deterministic offline provider is used, which keeps
// every command runnable without credentials.
func embedProvider(logger *slog.Logger) embed.Provider {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		baseURL := os.Getenv("CODEGRAPH_EMBED_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := os.Getenv("CODEGRAPH_EMBED_MODEL")
		if model == "" {
			model = "text-embedding-3-small"
		}
		return embed.NewOpenAIProvider(key, baseURL, model, logger)
	}
	return embed.NewMockProvider(mockEmbedDimensions, logger)
}
