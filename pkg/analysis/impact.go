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

// Package analysis implements read-only engines over the code graph:
// impact analysis, dead-code detection, and bounded traversal.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kraklabs/codegraph/pkg/graph"
)

// =============================================================================
// IMPACT ANALYSIS
// =============================================================================
//
// Answers "what breaks if I modify this?". Relationship weights reflect
// contract strength: inheritance binds harder than a call site, a call
// site harder than an import.

// RiskLevel buckets a risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// levelFor maps a bounded score to its bucket.
func levelFor(score float64) RiskLevel {
	switch {
	case score >= 0.75:
		return RiskCritical
	case score >= 0.5:
		return RiskHigh
	case score >= 0.25:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DefaultWeights is the built-in relationship severity table. Callers
// merge framework-specific overrides on top at runtime.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"EXTENDS":        0.95,
		"IMPLEMENTS":     0.95,
		"CALLS":          0.75,
		"HAS_MEMBER":     0.65,
		"TYPED_AS":       0.60,
		"IMPORTS":        0.50,
		"EXPORTS":        0.50,
		"DECORATED_WITH": 0.40,
		"CONTAINS":       0.30,
		"HAS_PARAMETER":  0.30,
	}
}

// highRiskThreshold marks edges heavy enough for the critical-path report.
const highRiskThreshold = 0.6

// maxCriticalPaths caps the critical-path list.
const maxCriticalPaths = 10

// FrameworkConfig tunes the engine for a project's framework. Weights
// merge over the default table; HighRiskTypes names relationship types
// the caller considers especially dangerous for this codebase.
type FrameworkConfig struct {
	Weights       map[string]float64 `json:"weights,omitempty"`
	HighRiskTypes []string           `json:"highRiskTypes,omitempty"`
}

// Dependent is one node affected by a change to the target.
type Dependent struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	CoreType     string  `json:"coreType"`
	FilePath     string  `json:"filePath"`
	Relationship string  `json:"relationship"`
	Weight       float64 `json:"weight"`
}

// ImpactReport is the result of an impact analysis.
type ImpactReport struct {
	Target          string      `json:"target"`
	Mode            string      `json:"mode"` // "node" or "file"
	EntityCount     int         `json:"entityCount"`
	DirectCount     int         `json:"directCount"`
	TransitiveCount int         `json:"transitiveCount"`
	RiskScore       float64     `json:"riskScore"`
	RiskLevel       RiskLevel   `json:"riskLevel"`
	AvgWeight       float64     `json:"avgWeight"`
	CriticalPaths   []string    `json:"criticalPaths"`
	Direct          []Dependent `json:"direct"`
	AffectedFiles   []string    `json:"affectedFiles"`
}

// ImpactEngine computes weighted change-impact over the graph.
type ImpactEngine struct {
	logger *slog.Logger
	store  graph.Store
}

// NewImpactEngine creates an engine over a store.
func NewImpactEngine(store graph.Store, logger *slog.Logger) *ImpactEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImpactEngine{logger: logger, store: store}
}

// Analyze computes the impact of modifying target, which is either a
// node ID or a file path. File mode aggregates every Class, Function,
// and Interface in the file, deduplicating dependents by id and keeping
// the maximum weight per duplicate.
func (e *ImpactEngine) Analyze(ctx context.Context, projectID, target string, maxDepth int, fw FrameworkConfig) (*ImpactReport, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	weights := DefaultWeights()
	for k, v := range fw.Weights {
		weights[k] = v
	}

	entities, mode, err := e.resolveTarget(ctx, projectID, target)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("impact target %q: %w", target, graph.ErrNotFound)
	}

	// Direct dependents, deduplicated by id with max weight retained.
	direct := make(map[string]Dependent)
	entityNames := make(map[string]graph.Row, len(entities))
	for _, ent := range entities {
		entityNames[graph.AsString(ent["id"])] = ent
		res, err := e.store.Invoke(ctx, graph.GetNodeImpact, graph.Params{"node_id": graph.AsString(ent["id"])})
		if err != nil {
			return nil, fmt.Errorf("direct dependents: %w", err)
		}
		for _, row := range res.Rows {
			dep := Dependent{
				ID:           graph.AsString(row["id"]),
				Name:         graph.AsString(row["name"]),
				CoreType:     graph.AsString(row["core_type"]),
				FilePath:     graph.AsString(row["file_path"]),
				Relationship: graph.AsString(row["relationship_type"]),
				Weight:       weights[graph.AsString(row["relationship_type"])],
			}
			if prev, ok := direct[dep.ID]; !ok || dep.Weight > prev.Weight {
				direct[dep.ID] = dep
			}
		}
	}

	// Transitive dependents: union over every entity, minus the direct
	// set and the entities themselves.
	transitive := make(map[string]bool)
	for _, ent := range entities {
		res, err := e.store.Invoke(ctx, graph.GetTransitiveDependents, graph.Params{
			"node_id": graph.AsString(ent["id"]), "max_depth": maxDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("transitive dependents: %w", err)
		}
		for _, row := range res.Rows {
			id := graph.AsString(row["id"])
			if _, isDirect := direct[id]; isDirect {
				continue
			}
			if _, isSelf := entityNames[id]; isSelf {
				continue
			}
			transitive[id] = true
		}
	}

	directList := make([]Dependent, 0, len(direct))
	for _, d := range direct {
		directList = append(directList, d)
	}
	sort.Slice(directList, func(i, j int) bool {
		if directList[i].Weight != directList[j].Weight {
			return directList[i].Weight > directList[j].Weight
		}
		return directList[i].ID < directList[j].ID
	})

	score, avgWeight := riskScore(directList, len(transitive), fw.HighRiskTypes)

	report := &ImpactReport{
		Target:          target,
		Mode:            mode,
		EntityCount:     len(entities),
		DirectCount:     len(directList),
		TransitiveCount: len(transitive),
		RiskScore:       score,
		RiskLevel:       levelFor(score),
		AvgWeight:       avgWeight,
		CriticalPaths:   criticalPaths(graph.AsString(entities[0]["name"]), graph.AsString(entities[0]["core_type"]), directList),
		Direct:          directList,
		AffectedFiles:   affectedFiles(directList),
	}

	e.logger.Info("analysis.impact.complete",
		"target", target,
		"mode", mode,
		"direct", report.DirectCount,
		"transitive", report.TransitiveCount,
		"risk_score", fmt.Sprintf("%.3f", report.RiskScore),
		"risk_level", string(report.RiskLevel),
	)
	return report, nil
}

// resolveTarget returns the analysed entities: a single node row for
// node mode, or every Class/Function/Interface in the file for file mode.
func (e *ImpactEngine) resolveTarget(ctx context.Context, projectID, target string) ([]graph.Row, string, error) {
	res, err := e.store.Invoke(ctx, graph.GetNodeByID, graph.Params{"node_id": target})
	if err != nil {
		return nil, "", fmt.Errorf("resolve target: %w", err)
	}
	if row := res.First(); row != nil {
		return []graph.Row{row}, "node", nil
	}

	res, err = e.store.Invoke(ctx, graph.GetNodesByFile, graph.Params{
		"project_id": projectID, "file_path": target,
	})
	if err != nil {
		return nil, "", fmt.Errorf("resolve file target: %w", err)
	}
	var entities []graph.Row
	for _, row := range res.Rows {
		switch graph.AsString(row["core_type"]) {
		case "Class", "Function", "Interface":
			entities = append(entities, row)
		}
	}
	return entities, "file", nil
}

// riskScore computes the bounded [0,1] score:
//
//	min(log10(direct+1)/2, 0.3)                          fan-out
//	+ avgWeight(direct) * 0.3                            relation severity
//	+ min(highRiskHits / max(|highRiskTypes|, 3), 1) * 0.2
//	+ min(log10(transitive+1)/3, 0.2)                    depth
func riskScore(direct []Dependent, transitiveCount int, highRiskTypes []string) (float64, float64) {
	fanOut := math.Min(math.Log10(float64(len(direct)+1))/2, 0.3)

	riskSet := make(map[string]bool, len(highRiskTypes))
	for _, t := range highRiskTypes {
		riskSet[t] = true
	}

	var weightSum float64
	highRiskHits := 0
	for _, d := range direct {
		weightSum += d.Weight
		if riskSet[d.Relationship] {
			highRiskHits++
		}
	}
	avgWeight := 0.0
	if len(direct) > 0 {
		avgWeight = weightSum / float64(len(direct))
	}

	denom := math.Max(float64(len(riskSet)), 3)
	highRisk := math.Min(float64(highRiskHits)/denom, 1) * 0.2

	depth := math.Min(math.Log10(float64(transitiveCount+1))/3, 0.2)

	score := fanOut + avgWeight*0.3 + highRisk + depth
	if score > 1 {
		score = 1
	}
	return score, avgWeight
}

// criticalPaths formats up to maxCriticalPaths high-weight edges as
// "name (type) -[rel]-> target (type)".
func criticalPaths(targetName, targetType string, direct []Dependent) []string {
	var paths []string
	for _, d := range direct {
		if d.Weight < highRiskThreshold {
			continue
		}
		paths = append(paths, fmt.Sprintf("%s (%s) -[%s]-> %s (%s)",
			d.Name, d.CoreType, d.Relationship, targetName, targetType))
		if len(paths) >= maxCriticalPaths {
			break
		}
	}
	return paths
}

func affectedFiles(direct []Dependent) []string {
	seen := make(map[string]bool)
	var files []string
	for _, d := range direct {
		if d.FilePath != "" && !seen[d.FilePath] {
			seen[d.FilePath] = true
			files = append(files, d.FilePath)
		}
	}
	sort.Strings(files)
	return files
}
