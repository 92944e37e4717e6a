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

// Package embed generates vector embeddings for graph node source text.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// Provider generates embeddings for code text.
type Provider interface {
	// Embed generates a normalized embedding vector (L2 norm = 1.0)
	// for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several texts in one call, returning one vector
	// per input in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// RateLimitError reports that the provider refused work due to quota or
// rate limiting. It is distinct from transport failures so callers can
// back off instead of retrying immediately.
type RateLimitError struct {
	Provider   string
	RetryAfter string
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s rate limited: %s", e.Provider, e.Message)
	}
	return e.Provider + " rate limited"
}

// IsRateLimited reports whether err is (or wraps) a rate-limit failure.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// MockProvider generates deterministic embeddings for testing.
type MockProvider struct {
	dimension int
	logger    *slog.Logger
}

// NewMockProvider creates a mock provider with the given dimension.
func NewMockProvider(dimension int, logger *slog.Logger) *MockProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockProvider{dimension: dimension, logger: logger}
}

// Embed generates a deterministic embedding from a hash of the text. The
// vectors carry no semantic meaning.
func (m *MockProvider) Embed(_ context.Context, text string) ([]float32, error) {
	hash := hashString(text)
	embedding := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		embedding[i] = val*2.0 - 1.0
	}
	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// normalize scales a vector to unit length.
func normalize(embedding []float32) []float32 {
	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}
	normf := float32(norm)
	for i := range embedding {
		embedding[i] /= normf
	}
	return embedding
}
