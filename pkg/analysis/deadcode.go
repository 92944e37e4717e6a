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

package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// DEAD-CODE DETECTION
// =============================================================================

// Confidence ranks how certain a dead-code finding is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"   // exported but never imported
	ConfidenceMedium Confidence = "MEDIUM" // private with no internal callers
	ConfidenceLow    Confidence = "LOW"
)

// confidenceRank orders confidences for minimum filtering.
func confidenceRank(c Confidence) int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	default:
		return 1
	}
}

// Category classifies a finding by where it lives.
type Category string

const (
	CategoryLibraryExport  Category = "library-export"
	CategoryUIComponent    Category = "ui-component"
	CategoryInternalUnused Category = "internal-unused"
	CategoryAll            Category = "all"
)

var (
	uiPathPattern      = regexp.MustCompile(`/(components/ui|ui/components)/`)
	packagePathPattern = regexp.MustCompile(`/packages/[^/]+/`)
	uiExtensions       = map[string]bool{"tsx": true, "jsx": true, "vue": true}
)

// categorise buckets a finding by its file path.
func categorise(filePath string) Category {
	if uiPathPattern.MatchString("/" + filePath) {
		if dot := strings.LastIndex(filePath, "."); dot >= 0 && uiExtensions[filePath[dot+1:]] {
			return CategoryUIComponent
		}
	}
	if packagePathPattern.MatchString("/" + filePath) {
		return CategoryLibraryExport
	}
	return CategoryInternalUnused
}

// defaultEntryFilePatterns are file shapes frameworks invoke without an
// explicit import; nodes in them are excluded from findings.
var defaultEntryFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(^|/)(main|index|app|server)\.[cm]?[jt]sx?$`),
	regexp.MustCompile(`(^|/)routes?(/|\.)`),
	regexp.MustCompile(`\.(config|setup)\.[cm]?[jt]s$`),
	regexp.MustCompile(`(^|/)pages/`),
	regexp.MustCompile(`(^|/)middleware\.[cm]?[jt]s$`),
}

// DeadCodeOptions filter a detection run.
type DeadCodeOptions struct {
	ExcludePatterns      []string
	ExcludeSemanticTypes []string
	ExcludeCoreTypes     []string
	MinConfidence        Confidence
	Category             Category
	Limit                int
	Offset               int
	SummaryOnly          bool
	IncludeEntryPoints   bool
}

// Finding is one suspected piece of dead code.
type Finding struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CoreType     string     `json:"coreType"`
	SemanticType string     `json:"semanticType,omitempty"`
	FilePath     string     `json:"filePath"`
	LineNumber   int        `json:"lineNumber,omitempty"`
	Reason       string     `json:"reason"`
	Confidence   Confidence `json:"confidence"`
	Category     Category   `json:"category"`
}

// EntryPoint is an excluded framework entry, returned for audit.
type EntryPoint struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FilePath string `json:"filePath"`
	Reason   string `json:"reason"`
}

// FileDensity counts findings per file.
type FileDensity struct {
	FilePath string `json:"filePath"`
	Count    int    `json:"count"`
}

// DeadCodeReport aggregates a detection run.
type DeadCodeReport struct {
	ProjectID     string             `json:"projectId"`
	Total         int                `json:"total"`
	ByConfidence  map[Confidence]int `json:"byConfidence"`
	ByCategory    map[Category]int   `json:"byCategory"`
	ByCoreType    map[string]int     `json:"byCoreType"`
	RiskLevel     RiskLevel          `json:"riskLevel"`
	TopFiles      []FileDensity      `json:"topFiles"`
	Findings      []Finding          `json:"findings,omitempty"`
	Limit         int                `json:"limit,omitempty"`
	Offset        int                `json:"offset,omitempty"`
	EntryPoints   []EntryPoint       `json:"entryPoints,omitempty"`
	SummaryOnly   bool               `json:"summaryOnly"`
	EntryExcluded int                `json:"entryExcluded"`
}

// DeadCodeEngine detects unreferenced code with confidence tiers.
type DeadCodeEngine struct {
	logger *slog.Logger
	store  graph.Store
}

// NewDeadCodeEngine creates an engine over a store.
func NewDeadCodeEngine(store graph.Store, logger *slog.Logger) *DeadCodeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeadCodeEngine{logger: logger, store: store}
}

// Detect runs the four detection queries in parallel and merges their
// results through entry-point exclusion, filtering, and aggregation.
func (e *DeadCodeEngine) Detect(ctx context.Context, projectID string, opts DeadCodeOptions) (*DeadCodeReport, error) {
	var (
		exports, privates, ifaces *graph.Result
		entries                   *graph.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	params := graph.Params{"project_id": projectID}
	g.Go(func() (err error) {
		exports, err = e.store.Invoke(gctx, graph.FindUnreferencedExports, params)
		return err
	})
	g.Go(func() (err error) {
		privates, err = e.store.Invoke(gctx, graph.FindUncalledPrivate, params)
		return err
	})
	g.Go(func() (err error) {
		ifaces, err = e.store.Invoke(gctx, graph.FindUnreferencedIfaces, params)
		return err
	})
	g.Go(func() (err error) {
		entries, err = e.store.Invoke(gctx, graph.GetFrameworkEntryPoints, params)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("dead-code queries: %w", err)
	}

	entryIDs := make(map[string]bool, len(entries.Rows))
	var entryList []EntryPoint
	for _, row := range entries.Rows {
		entryIDs[graph.AsString(row["id"])] = true
		entryList = append(entryList, EntryPoint{
			ID:       graph.AsString(row["id"]),
			Name:     graph.AsString(row["name"]),
			FilePath: graph.AsString(row["file_path"]),
			Reason:   graph.AsString(row["reason"]),
		})
	}

	var findings []Finding
	excluded := 0
	seen := make(map[string]bool)
	collect := func(res *graph.Result) {
		for _, row := range res.Rows {
			f := findingFromRow(row)
			// A node can surface from more than one query (an exported
			// interface, say); the first categorisation wins.
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			if entryIDs[f.ID] || matchesEntryFile(f.FilePath) {
				excluded++
				if !entryIDs[f.ID] {
					entryList = append(entryList, EntryPoint{
						ID: f.ID, Name: f.Name, FilePath: f.FilePath,
						Reason: "entry file pattern",
					})
				}
				continue
			}
			if e.filtered(f, opts) {
				continue
			}
			findings = append(findings, f)
		}
	}
	collect(exports)
	collect(privates)
	collect(ifaces)

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Confidence != findings[j].Confidence {
			return confidenceRank(findings[i].Confidence) > confidenceRank(findings[j].Confidence)
		}
		return findings[i].ID < findings[j].ID
	})

	report := &DeadCodeReport{
		ProjectID:     projectID,
		Total:         len(findings),
		ByConfidence:  make(map[Confidence]int),
		ByCategory:    make(map[Category]int),
		ByCoreType:    make(map[string]int),
		SummaryOnly:   opts.SummaryOnly,
		EntryExcluded: excluded,
	}
	fileCounts := make(map[string]int)
	for _, f := range findings {
		report.ByConfidence[f.Confidence]++
		report.ByCategory[f.Category]++
		report.ByCoreType[f.CoreType]++
		fileCounts[f.FilePath]++
	}
	report.RiskLevel = deadCodeRisk(report.ByConfidence[ConfidenceHigh], report.Total)
	report.TopFiles = topFilesByDensity(fileCounts, 20)

	if opts.IncludeEntryPoints {
		report.EntryPoints = entryList
	}

	if !opts.SummaryOnly {
		report.Limit = opts.Limit
		report.Offset = opts.Offset
		report.Findings = paginate(findings, opts.Limit, opts.Offset)
	}

	e.logger.Info("analysis.deadcode.complete",
		"project_id", projectID,
		"total", report.Total,
		"high", report.ByConfidence[ConfidenceHigh],
		"risk_level", string(report.RiskLevel),
		"entry_excluded", excluded,
	)
	return report, nil
}

func findingFromRow(row graph.Row) Finding {
	reason := graph.AsString(row["reason"])
	f := Finding{
		ID:           graph.AsString(row["id"]),
		Name:         graph.AsString(row["name"]),
		CoreType:     graph.AsString(row["core_type"]),
		SemanticType: graph.AsString(row["semantic_type"]),
		FilePath:     graph.AsString(row["file_path"]),
		LineNumber:   int(graph.AsInt(row["line_number"])),
		Reason:       reason,
	}
	switch {
	case strings.Contains(reason, "never imported"):
		f.Confidence = ConfidenceHigh
	case strings.Contains(reason, "no internal callers"):
		f.Confidence = ConfidenceMedium
	default:
		f.Confidence = ConfidenceLow
	}
	f.Category = categorise(f.FilePath)
	return f
}

func matchesEntryFile(filePath string) bool {
	for _, p := range defaultEntryFilePatterns {
		if p.MatchString(filePath) {
			return true
		}
	}
	return false
}

func (e *DeadCodeEngine) filtered(f Finding, opts DeadCodeOptions) bool {
	for _, pat := range opts.ExcludePatterns {
		if ok, _ := regexp.MatchString(pat, f.FilePath); ok || strings.Contains(f.FilePath, pat) {
			return true
		}
	}
	for _, st := range opts.ExcludeSemanticTypes {
		if f.SemanticType == st {
			return true
		}
	}
	for _, ct := range opts.ExcludeCoreTypes {
		if f.CoreType == ct {
			return true
		}
	}
	if opts.MinConfidence != "" && confidenceRank(f.Confidence) < confidenceRank(opts.MinConfidence) {
		return true
	}
	if opts.Category != "" && opts.Category != CategoryAll && f.Category != opts.Category {
		return true
	}
	return false
}

// deadCodeRisk aggregates finding counts into a project risk level.
func deadCodeRisk(high, total int) RiskLevel {
	switch {
	case high >= 20 || total >= 50:
		return RiskCritical
	case high >= 10 || total >= 25:
		return RiskHigh
	case high >= 5 || total >= 10:
		return RiskMedium
	default:
		return RiskLow
	}
}

func topFilesByDensity(counts map[string]int, n int) []FileDensity {
	out := make([]FileDensity, 0, len(counts))
	for f, c := range counts {
		out = append(out, FileDensity{FilePath: f, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FilePath < out[j].FilePath
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func paginate(findings []Finding, limit, offset int) []Finding {
	if offset >= len(findings) {
		return nil
	}
	findings = findings[offset:]
	if limit > 0 && len(findings) > limit {
		findings = findings[:limit]
	}
	return findings
}
