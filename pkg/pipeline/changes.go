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
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// CHANGE DETECTION
// =============================================================================
//
// This module diffs the on-disk file set against the indexed snapshot so a
// re-parse touches only what moved. A file is unchanged iff ALL of mtime,
// size, and content hash match its snapshot.
//
// Security: every candidate is canonicalised via symlink resolution, and
// files whose real path escapes the canonical project root are dropped.

// ChangeSet is the result of change detection.
type ChangeSet struct {
	// FilesToReparse are new or modified files, root-relative.
	FilesToReparse []string

	// FilesToDelete are previously-indexed files no longer on disk.
	FilesToDelete []string
}

// HasChanges returns true if anything needs re-parsing or cleanup.
func (c *ChangeSet) HasChanges() bool {
	return len(c.FilesToReparse) > 0 || len(c.FilesToDelete) > 0
}

// ChangeDetector compares the workspace against the indexed snapshot.
type ChangeDetector struct {
	logger *slog.Logger
	store  graph.Store
	cfg    Config
}

// NewChangeDetector creates a detector bound to a store.
func NewChangeDetector(store graph.Store, cfg Config, logger *slog.Logger) *ChangeDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeDetector{logger: logger, store: store, cfg: cfg}
}

// DetectChanges diffs projectRoot against the snapshot stored for projectID.
func (cd *ChangeDetector) DetectChanges(ctx context.Context, projectRoot, projectID string) (*ChangeSet, error) {
	canonicalRoot, err := filepath.EvalSymlinks(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	snapshot, err := cd.loadSnapshot(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load indexed snapshot: %w", err)
	}

	candidates, err := cd.enumerate(canonicalRoot)
	if err != nil {
		return nil, fmt.Errorf("enumerate source files: %w", err)
	}

	changes := &ChangeSet{}
	seen := make(map[string]bool, len(candidates))
	unchanged := 0

	for _, rel := range candidates {
		full := filepath.Join(canonicalRoot, rel)

		// Drop anything whose canonical path escapes the root.
		real, err := filepath.EvalSymlinks(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Raced with a delete between enumerate and stat.
				continue
			}
			if errors.Is(err, fs.ErrPermission) {
				seen[rel] = true
				changes.FilesToReparse = append(changes.FilesToReparse, rel)
				continue
			}
			return nil, fmt.Errorf("resolve %s: %w", rel, err)
		}
		if !isDescendant(canonicalRoot, real) {
			cd.logger.Warn("pipeline.changes.symlink_escape",
				"file", rel,
				"resolved", real,
				"msg", "file resolves outside the project root, dropped",
			)
			continue
		}

		seen[rel] = true

		info, err := os.Stat(full)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				delete(seen, rel)
				continue
			}
			if errors.Is(err, fs.ErrPermission) {
				changes.FilesToReparse = append(changes.FilesToReparse, rel)
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", rel, err)
		}

		prev, indexed := snapshot[rel]
		if indexed && prev.MtimeMs == info.ModTime().UnixMilli() && prev.Size == info.Size() {
			hash, err := hashFile(full)
			if err == nil && hash == prev.ContentHash {
				unchanged++
				continue
			}
		}
		changes.FilesToReparse = append(changes.FilesToReparse, rel)
	}

	// Previously-indexed files absent from the enumerated set.
	for rel := range snapshot {
		if !seen[rel] {
			changes.FilesToDelete = append(changes.FilesToDelete, rel)
		}
	}

	sort.Strings(changes.FilesToReparse)
	sort.Strings(changes.FilesToDelete)

	cd.logger.Info("pipeline.changes.complete",
		"project_id", projectID,
		"candidates", len(candidates),
		"unchanged", unchanged,
		"reparse", len(changes.FilesToReparse),
		"delete", len(changes.FilesToDelete),
	)

	return changes, nil
}

// SnapshotFile builds the IndexedFile record for a freshly parsed file.
func SnapshotFile(root, rel string) (graph.IndexedFile, error) {
	full := filepath.Join(root, rel)
	info, err := os.Stat(full)
	if err != nil {
		return graph.IndexedFile{}, fmt.Errorf("stat %s: %w", rel, err)
	}
	hash, err := hashFile(full)
	if err != nil {
		return graph.IndexedFile{}, fmt.Errorf("hash %s: %w", rel, err)
	}
	return graph.IndexedFile{
		FilePath:    rel,
		MtimeMs:     info.ModTime().UnixMilli(),
		Size:        info.Size(),
		ContentHash: hash,
	}, nil
}

func (cd *ChangeDetector) loadSnapshot(ctx context.Context, projectID string) (map[string]graph.IndexedFile, error) {
	res, err := cd.store.Invoke(ctx, graph.GetSourceFileTrackingInfo, graph.Params{"project_id": projectID})
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]graph.IndexedFile, len(res.Rows))
	for _, row := range res.Rows {
		f := graph.IndexedFile{
			FilePath:    graph.AsString(row["file_path"]),
			MtimeMs:     graph.AsInt(row["mtime_ms"]),
			Size:        graph.AsInt(row["size"]),
			ContentHash: graph.AsString(row["content_hash"]),
		}
		snapshot[f.FilePath] = f
	}
	return snapshot, nil
}

// enumerate walks the root collecting files that match a source glob and
// no exclude glob. Paths are root-relative with forward slashes.
func (cd *ChangeDetector) enumerate(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && cd.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if cd.excluded(rel) {
			return nil
		}
		if !cd.matchesSource(rel) {
			return nil
		}
		if cd.cfg.MaxFileSizeBytes > 0 {
			if info, err := d.Info(); err == nil && info.Size() > cd.cfg.MaxFileSizeBytes {
				cd.logger.Warn("pipeline.changes.file_too_large", "file", rel, "size", info.Size())
				return nil
			}
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (cd *ChangeDetector) excluded(rel string) bool {
	for _, pattern := range cd.cfg.ExcludeGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// Directory patterns like "dist/**" must also prune "dist/".
		if strings.HasSuffix(rel, "/") {
			if ok, _ := doublestar.Match(pattern, rel+"x"); ok {
				return true
			}
		}
	}
	return false
}

func (cd *ChangeDetector) matchesSource(rel string) bool {
	if len(cd.cfg.SourceGlobs) == 0 {
		return true
	}
	for _, pattern := range cd.cfg.SourceGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// isDescendant reports whether path is root or inside it.
func isDescendant(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := xxhash.Sum64(data)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:]), nil
}
