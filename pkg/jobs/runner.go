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

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kraklabs/codegraph/pkg/graph"
	"github.com/kraklabs/codegraph/pkg/pipeline"
)

// Runner executes parse operations as background jobs.
type Runner struct {
	logger  *slog.Logger
	manager *Manager
	coord   *pipeline.Coordinator
}

// NewRunner ties a job manager to a parse coordinator.
func NewRunner(manager *Manager, coord *pipeline.Coordinator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger, manager: manager, coord: coord}
}

// StartParse creates a job for projectRoot and runs the parse in the
// background. Failures update the job record; they never escape the
// background goroutine.
func (r *Runner) StartParse(ctx context.Context, projectRoot string, opts pipeline.ParseOptions) (*Job, error) {
	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	projectID := graph.GenerateProjectID(absRoot)

	job, err := r.manager.CreateJob(projectID, absRoot)
	if err != nil {
		return nil, err
	}

	go r.run(ctx, job.ID, absRoot, opts)
	return job, nil
}

func (r *Runner) run(ctx context.Context, jobID, absRoot string, opts pipeline.ParseOptions) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("jobs.run.panic", "job_id", jobID, "panic", rec)
			_ = r.manager.FailJob(jobID, fmt.Sprintf("internal panic: %v", rec))
		}
	}()

	if err := r.manager.StartJob(jobID); err != nil {
		r.logger.Error("jobs.run.start", "job_id", jobID, "err", err)
		return
	}

	progress := func(phase pipeline.Phase, current, total int, details string) {
		p := Progress{Phase: phase}
		switch phase {
		case pipeline.PhaseParsing, pipeline.PhaseImporting:
			p.CurrentChunk = current
			p.TotalChunks = total
		default:
			p.FilesProcessed = current
			p.FilesTotal = total
		}
		_ = r.manager.UpdateProgress(jobID, p)
	}

	outcome, err := r.coord.Parse(ctx, absRoot, opts, progress)
	if err != nil {
		_ = r.manager.FailJob(jobID, err.Error())
		return
	}
	_ = r.manager.CompleteJob(jobID, outcome)
}
