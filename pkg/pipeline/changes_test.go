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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/graph/memstore"
)

const testProjectID = "proj_0123456789ab"

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func newDetector(store graph.Store) *ChangeDetector {
	return NewChangeDetector(store, DefaultConfig(), testLogger())
}

func TestDetectChanges_NewProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export const a = 1")
	writeFile(t, root, "src/util.ts", "export const b = 2")
	writeFile(t, root, "readme.md", "not source")

	changes, err := newDetector(memstore.New()).DetectChanges(t.Context(), root, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts", "src/util.ts"}, changes.FilesToReparse)
	assert.Empty(t, changes.FilesToDelete)
}

func TestDetectChanges_UnchangedShortCircuit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export const a = 1")

	store := memstore.New()
	ctx := t.Context()

	// Index the file exactly as it sits on disk.
	snap, err := SnapshotFile(root, "src/app.ts")
	require.NoError(t, err)
	_, err = store.Invoke(ctx, graph.UpsertSourceFileTracking, graph.Params{
		"project_id": testProjectID, "files": []graph.IndexedFile{snap},
	})
	require.NoError(t, err)

	changes, err := newDetector(store).DetectChanges(ctx, root, testProjectID)
	require.NoError(t, err)
	assert.Empty(t, changes.FilesToReparse, "bit-identical file with identical metadata never reparses")
	assert.Empty(t, changes.FilesToDelete)
	assert.False(t, changes.HasChanges())
}

func TestDetectChanges_ContentChangeSameSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export const a = 1")

	store := memstore.New()
	ctx := t.Context()
	snap, err := SnapshotFile(root, "src/app.ts")
	require.NoError(t, err)

	// Same mtime and size, different content hash.
	snap.ContentHash = "deadbeefdeadbeef"
	_, err = store.Invoke(ctx, graph.UpsertSourceFileTracking, graph.Params{
		"project_id": testProjectID, "files": []graph.IndexedFile{snap},
	})
	require.NoError(t, err)

	changes, err := newDetector(store).DetectChanges(ctx, root, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts"}, changes.FilesToReparse)
}

func TestDetectChanges_DeletedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "export const a = 1")

	store := memstore.New()
	ctx := t.Context()
	_, err := store.Invoke(ctx, graph.UpsertSourceFileTracking, graph.Params{
		"project_id": testProjectID,
		"files": []graph.IndexedFile{
			{FilePath: "src/gone.ts", MtimeMs: 1700000000000, Size: 2048, ContentHash: "abcd"},
		},
	})
	require.NoError(t, err)

	changes, err := newDetector(store).DetectChanges(ctx, root, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/gone.ts"}, changes.FilesToDelete)
	assert.Equal(t, []string{"src/app.ts"}, changes.FilesToReparse)
}

func TestDetectChanges_ExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/app.ts", "code")
	writeFile(t, root, "node_modules/lib/index.ts", "dep")
	writeFile(t, root, "dist/app.ts", "built")
	writeFile(t, root, "src/app.spec.ts", "test")
	writeFile(t, root, "src/types.d.ts", "decls")

	changes, err := newDetector(memstore.New()).DetectChanges(t.Context(), root, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts"}, changes.FilesToReparse)
}

func TestDetectChanges_SymlinkEscapeDropped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, root, "src/app.ts", "code")
	writeFile(t, outside, "secret.ts", "outside the root")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.ts"), filepath.Join(root, "src", "link.ts")))

	changes, err := newDetector(memstore.New()).DetectChanges(t.Context(), root, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.ts"}, changes.FilesToReparse, "escaping symlink never enters the reparse set")
}

func TestSnapshotFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.ts", "hello")

	snap, err := SnapshotFile(root, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, "a.ts", snap.FilePath)
	assert.Equal(t, int64(5), snap.Size)
	assert.NotEmpty(t, snap.ContentHash)

	again, err := SnapshotFile(root, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, snap.ContentHash, again.ContentHash)
}
