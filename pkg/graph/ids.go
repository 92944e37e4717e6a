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
	"fmt"
	"regexp"
	"strings"
)

// projectIDPattern matches a well-formed project identifier.
var projectIDPattern = regexp.MustCompile(`^proj_[0-9a-f]{12}$`)

// windowsPathPattern matches drive-letter paths like C:\repo or C:/repo.
var windowsPathPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)

// GenerateProjectID derives the deterministic project ID for an absolute
// project root path. The ID is a pure function of the path: proj_ followed
// by the first 12 hex characters of SHA-256(absPath).
func GenerateProjectID(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return "proj_" + hex.EncodeToString(sum[:])[:12]
}

// ValidateProjectID reports whether s is a well-formed project ID.
func ValidateProjectID(s string) bool {
	return projectIDPattern.MatchString(s)
}

// GenerateEdgeID derives a deterministic edge ID from the edge triple.
// Re-importing the same relationship always produces the same ID, which
// keeps imports idempotent.
func GenerateEdgeID(sourceNodeID, relationshipType, targetNodeID string) string {
	sum := sha256.Sum256([]byte(sourceNodeID + "|" + relationshipType + "|" + targetNodeID))
	return "edge_" + hex.EncodeToString(sum[:16])
}

// looksLikePath reports whether input is plausibly a filesystem path
// rather than a project name: Unix absolute or relative path markers, or
// a Windows drive-letter prefix.
func looksLikePath(input string) bool {
	if strings.HasPrefix(input, "/") || strings.HasPrefix(input, "./") || strings.HasPrefix(input, "..") {
		return true
	}
	return windowsPathPattern.MatchString(input)
}

// ResolveProjectID resolves flexible user input (project ID, name, or
// path) to a project ID.
//
// Resolution order:
//  1. input already matches the ID pattern: returned as-is.
//  2. a project with that name or path exists in the store: its ID.
//  3. input looks like a filesystem path: derived via GenerateProjectID.
//  4. otherwise: ErrNotFound.
func ResolveProjectID(ctx context.Context, input string, store Store) (string, error) {
	if ValidateProjectID(input) {
		return input, nil
	}

	res, err := store.Invoke(ctx, ListProjects, nil)
	if err != nil {
		return "", fmt.Errorf("list projects: %w", err)
	}
	for _, row := range res.Rows {
		id := AsString(row["id"])
		if AsString(row["name"]) == input || AsString(row["path"]) == input {
			return id, nil
		}
	}

	if looksLikePath(input) {
		return GenerateProjectID(input), nil
	}

	return "", fmt.Errorf("project %q: %w", input, ErrNotFound)
}
