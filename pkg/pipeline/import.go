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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// importer writes chunk payloads to the store. Each import first spills
// the payload to a uniquely named temp file so a crashed import can be
// inspected; the file is removed in all paths, including errors.
type importer struct {
	logger    *slog.Logger
	store     graph.Store
	projectID string
	tempDir   string
}

func newImporter(store graph.Store, projectID, tempDir string, logger *slog.Logger) *importer {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &importer{logger: logger, store: store, projectID: projectID, tempDir: tempDir}
}

type chunkPayload struct {
	ProjectID string           `json:"projectId"`
	Nodes     []graph.CodeNode `json:"nodes"`
	Edges     []graph.CodeEdge `json:"edges"`
}

// tempFileName builds the unique spill name <prefix>-<epochMs>-<16hex>.json.
func tempFileName(prefix string) string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s-%d-%s.json", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

// ImportChunk persists one chunk's nodes and edges.
func (im *importer) ImportChunk(ctx context.Context, nodes []graph.CodeNode, edges []graph.CodeEdge) error {
	if len(nodes) == 0 && len(edges) == 0 {
		return nil
	}

	spill := filepath.Join(im.tempDir, tempFileName("codegraph-import"))
	payload := chunkPayload{ProjectID: im.projectID, Nodes: nodes, Edges: edges}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chunk payload: %w", err)
	}
	if err := os.WriteFile(spill, data, 0o600); err != nil {
		return fmt.Errorf("write import spill: %w", err)
	}
	defer func() {
		if rmErr := os.Remove(spill); rmErr != nil && !os.IsNotExist(rmErr) {
			im.logger.Warn("pipeline.import.spill_cleanup_failed", "file", spill, "err", rmErr)
		}
	}()

	if len(nodes) > 0 {
		if _, err := im.store.Invoke(ctx, graph.ImportNodes, graph.Params{
			"project_id": im.projectID, "nodes": nodes,
		}); err != nil {
			return fmt.Errorf("import nodes: %w", err)
		}
	}
	if len(edges) > 0 {
		if _, err := im.store.Invoke(ctx, graph.ImportEdges, graph.Params{
			"project_id": im.projectID, "edges": edges,
		}); err != nil {
			return fmt.Errorf("import edges: %w", err)
		}
	}
	return nil
}

// partition splits files into chunks of at most size.
func partition(files []string, size int) [][]string {
	if size <= 0 {
		size = 20
	}
	var chunks [][]string
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[start:end])
	}
	return chunks
}
