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

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// BATCHER
// =============================================================================

const (
	// defaultBatchSize is how many texts go to the provider per call.
	defaultBatchSize = 100
	// defaultBatchDelay is the pause between consecutive batches,
	// keeping the request rate under provider quotas.
	defaultBatchDelay = 500 * time.Millisecond
	// defaultMaxRetries bounds per-batch retries on rate limiting.
	defaultMaxRetries = 2
)

// BatcherOptions tune batch embedding.
type BatcherOptions struct {
	BatchSize  int
	BatchDelay time.Duration
	MaxRetries int
}

// Batcher feeds large text sets through a provider in rate-friendly
// batches. Rate-limit failures are retried a bounded number of times
// with the inter-batch delay as backoff; transport failures abort.
type Batcher struct {
	logger   *slog.Logger
	provider Provider
	opts     BatcherOptions
}

// NewBatcher creates a batcher over a provider.
func NewBatcher(provider Provider, opts BatcherOptions, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = defaultBatchDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	return &Batcher{logger: logger, provider: provider, opts: opts}
}

// EmbedAll embeds every text, preserving input order. The result always
// has one vector per input.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	batches := 0
	for start := 0; start < len(texts); start += b.opts.BatchSize {
		end := start + b.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		if batches > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.opts.BatchDelay):
			}
		}

		vecs, err := b.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", batches, err)
		}
		out = append(out, vecs...)
		batches++
	}

	b.logger.Info("embed.batcher.complete", "texts", len(texts), "batches", batches)
	return out, nil
}

func (b *Batcher) embedBatchWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			b.logger.Warn("embed.batcher.rate_limited", "attempt", attempt, "batch_size", len(batch))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.opts.BatchDelay):
			}
		}
		vecs, err := b.provider.EmbedBatch(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		// Only rate limiting earns a retry; transport errors abort.
		if !IsRateLimited(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
