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

package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProjectID_Deterministic(t *testing.T) {
	path := "/Users/dev/my-api"

	id1 := GenerateProjectID(path)
	id2 := GenerateProjectID(path)
	assert.Equal(t, id1, id2, "project ID must be a pure function of the path")

	// Must equal proj_ + first 12 hex of SHA-256(path).
	sum := sha256.Sum256([]byte(path))
	want := "proj_" + hex.EncodeToString(sum[:])[:12]
	assert.Equal(t, want, id1)
	assert.True(t, ValidateProjectID(id1))
}

func TestGenerateProjectID_DifferentPaths(t *testing.T) {
	assert.NotEqual(t, GenerateProjectID("/a"), GenerateProjectID("/b"))
}

func TestValidateProjectID(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"proj_0123456789ab", true},
		{"proj_0123456789AB", false}, // uppercase hex rejected
		{"proj_0123456789", false},   // too short
		{"proj_0123456789abc", false},
		{"job_0123456789ab", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidateProjectID(tc.in), "input %q", tc.in)
	}
}

func TestGenerateEdgeID_Deterministic(t *testing.T) {
	id1 := GenerateEdgeID("n1", "CALLS", "n2")
	id2 := GenerateEdgeID("n1", "CALLS", "n2")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, GenerateEdgeID("n2", "CALLS", "n1"))
	assert.NotEqual(t, id1, GenerateEdgeID("n1", "IMPORTS", "n2"))
}

func TestResolveProjectID(t *testing.T) {
	store := &stubStore{rows: []Row{
		{"id": "proj_aaaaaaaaaaaa", "name": "my-api", "path": "/srv/my-api"},
	}}
	ctx := t.Context()

	t.Run("id passthrough", func(t *testing.T) {
		id, err := ResolveProjectID(ctx, "proj_0123456789ab", store)
		require.NoError(t, err)
		assert.Equal(t, "proj_0123456789ab", id)
	})

	t.Run("by name", func(t *testing.T) {
		id, err := ResolveProjectID(ctx, "my-api", store)
		require.NoError(t, err)
		assert.Equal(t, "proj_aaaaaaaaaaaa", id)
	})

	t.Run("by path", func(t *testing.T) {
		id, err := ResolveProjectID(ctx, "/srv/my-api", store)
		require.NoError(t, err)
		assert.Equal(t, "proj_aaaaaaaaaaaa", id)
	})

	t.Run("derive from unindexed path", func(t *testing.T) {
		id, err := ResolveProjectID(ctx, "/somewhere/else", store)
		require.NoError(t, err)
		assert.Equal(t, GenerateProjectID("/somewhere/else"), id)
	})

	t.Run("windows path derives", func(t *testing.T) {
		id, err := ResolveProjectID(ctx, `C:\repos\app`, store)
		require.NoError(t, err)
		assert.Equal(t, GenerateProjectID(`C:\repos\app`), id)
	})

	t.Run("unknown name fails", func(t *testing.T) {
		_, err := ResolveProjectID(ctx, "no-such-project", store)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

// stubStore answers ListProjects with fixed rows.
type stubStore struct {
	rows []Row
}

func (s *stubStore) Invoke(_ context.Context, q NamedQuery, _ Params) (*Result, error) {
	if q == ListProjects {
		return &Result{Rows: s.rows}, nil
	}
	return &Result{}, nil
}

func (s *stubStore) Close() error { return nil }
