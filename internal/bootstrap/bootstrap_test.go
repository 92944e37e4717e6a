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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/embed"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_Defaults(t *testing.T) {
	rt, err := New(Options{Logger: testLogger()})
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Close()) }()

	assert.NotNil(t, rt.Store)
	assert.NotNil(t, rt.Jobs)
	assert.NotNil(t, rt.Coordinator)
	assert.NotNil(t, rt.Runner)
	assert.NotNil(t, rt.Embedder)
	assert.Equal(t, 20, rt.Config.ChunkSize, "built-in defaults apply without a config file")
}

func TestNew_ExplicitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 7\nproject_type: nestjs\n"), 0o644))

	rt, err := New(Options{ConfigPath: path, Logger: testLogger()})
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	assert.Equal(t, 7, rt.Config.ChunkSize)
	assert.Equal(t, "nestjs", rt.Config.ProjectType)
}

func TestNew_MissingExplicitConfig(t *testing.T) {
	_, err := New(Options{
		ConfigPath: filepath.Join(t.TempDir(), "nope.yaml"),
		Logger:     testLogger(),
	})
	require.Error(t, err)
}

func TestEmbedProvider_OfflineWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, ok := embedProvider(testLogger()).(*embed.MockProvider)
	assert.True(t, ok)
}

func TestEmbedProvider_OpenAIWithKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	_, ok := embedProvider(testLogger()).(*embed.OpenAIProvider)
	assert.True(t, ok)
}
