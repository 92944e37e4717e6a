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

package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls the parse pipeline behavior.
type Config struct {
	// ProjectType primes the parser with framework heuristics
	// ("nestjs", "react", "node", ...). Empty means generic.
	ProjectType string `yaml:"project_type"`

	// TSConfigPath is forwarded to the parser when the workspace has one.
	TSConfigPath string `yaml:"tsconfig_path"`

	// ParallelThreshold is the file count at which the coordinator
	// switches from streaming import to the worker pool.
	ParallelThreshold int `yaml:"parallel_threshold"`

	// ChunkSize is the number of files per chunk.
	ChunkSize int `yaml:"chunk_size"`

	// WorkerCount overrides the pool's CPU-derived size when > 0.
	WorkerCount int `yaml:"worker_count"`

	// SourceGlobs are patterns for candidate source files.
	SourceGlobs []string `yaml:"source_globs"`

	// ExcludeGlobs are patterns for files/directories to skip.
	ExcludeGlobs []string `yaml:"exclude_globs"`

	// MaxFileSizeBytes skips files exceeding this size (default: 1MB).
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// TempDir holds pipelined-import spill files. Empty means os.TempDir.
	TempDir string `yaml:"temp_dir"`

	// Timeouts for the pipeline's collaborators.
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig holds per-collaborator timeouts.
type TimeoutConfig struct {
	StoreQuery   time.Duration `yaml:"store_query"`
	StoreConnect time.Duration `yaml:"store_connect"`
	Embedding    time.Duration `yaml:"embedding"`
	Worker       time.Duration `yaml:"worker"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ParallelThreshold: 50,
		ChunkSize:         20,
		SourceGlobs: []string{
			"**/*.ts", "**/*.tsx", "**/*.js", "**/*.jsx",
			"**/*.mts", "**/*.cts", "**/*.vue",
		},
		ExcludeGlobs: []string{
			"node_modules/**",
			"dist/**",
			"build/**",
			"coverage/**",
			"**/*.d.ts",
			"**/*.spec.ts",
			"**/*.test.ts",
		},
		MaxFileSizeBytes: 1048576, // 1MB
		Timeouts: TimeoutConfig{
			StoreQuery:   30 * time.Second,
			StoreConnect: 10 * time.Second,
			Embedding:    60 * time.Second,
			Worker:       30 * time.Minute,
		},
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
