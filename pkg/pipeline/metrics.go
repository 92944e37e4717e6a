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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsPipeline holds Prometheus metrics for the parse pipeline.
type metricsPipeline struct {
	once sync.Once

	chunksProcessed prometheus.Counter
	filesProcessed  prometheus.Counter
	nodesImported   prometheus.Counter
	edgesImported   prometheus.Counter
	parseErrors     prometheus.Counter

	parseDuration prometheus.Histogram
}

var pipeMetrics metricsPipeline

func (m *metricsPipeline) init() {
	m.once.Do(func() {
		m.chunksProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_pipeline_chunks_total", Help: "Chunks parsed and imported"})
		m.filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_pipeline_files_total", Help: "Source files parsed"})
		m.nodesImported = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_pipeline_nodes_total", Help: "Graph nodes imported"})
		m.edgesImported = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_pipeline_edges_total", Help: "Graph edges imported"})
		m.parseErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_pipeline_parse_errors_total", Help: "Chunk parse failures"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
		m.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codegraph_pipeline_parse_seconds", Help: "End-to-end parse duration", Buckets: buckets})

		prometheus.MustRegister(
			m.chunksProcessed, m.filesProcessed, m.nodesImported, m.edgesImported, m.parseErrors,
			m.parseDuration,
		)
	})
}

// recordParseError is called by failure paths that still return an error.
func recordParseError() { pipeMetrics.init(); pipeMetrics.parseErrors.Inc() }
