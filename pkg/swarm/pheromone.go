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

package swarm

import (
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// =============================================================================
// PHEROMONE STORE
// =============================================================================

// PheromoneType classifies a coordination signal.
type PheromoneType string

const (
	// Workflow states. Mutually exclusive per (agent, node): writing one
	// removes any other workflow state for that pair.
	PheromoneExploring PheromoneType = "exploring"
	PheromoneClaiming  PheromoneType = "claiming"
	PheromoneModifying PheromoneType = "modifying"
	PheromoneCompleted PheromoneType = "completed"
	PheromoneBlocked   PheromoneType = "blocked"

	// Flags. These compose freely with a workflow state and each other.
	PheromoneWarning        PheromoneType = "warning"
	PheromoneProposal       PheromoneType = "proposal"
	PheromoneNeedsReview    PheromoneType = "needs_review"
	PheromoneSessionContext PheromoneType = "session_context"
)

// halfLives maps each type to its decay half-life. A negative value means
// the signal never decays.
var halfLives = map[PheromoneType]time.Duration{
	PheromoneExploring:      2 * time.Minute,
	PheromoneModifying:      10 * time.Minute,
	PheromoneClaiming:       60 * time.Minute,
	PheromoneCompleted:      24 * time.Hour,
	PheromoneWarning:        -1,
	PheromoneBlocked:        5 * time.Minute,
	PheromoneProposal:       60 * time.Minute,
	PheromoneNeedsReview:    30 * time.Minute,
	PheromoneSessionContext: 8 * time.Hour,
}

var workflowStates = map[PheromoneType]bool{
	PheromoneExploring: true,
	PheromoneClaiming:  true,
	PheromoneModifying: true,
	PheromoneCompleted: true,
	PheromoneBlocked:   true,
}

// IsWorkflowState reports whether t is one of the mutually exclusive
// workflow states.
func IsWorkflowState(t PheromoneType) bool { return workflowStates[t] }

// HalfLife returns the decay half-life for a type, or -1 for types that
// never decay. Unknown types decay like exploring.
func HalfLife(t PheromoneType) time.Duration {
	if hl, ok := halfLives[t]; ok {
		return hl
	}
	return halfLives[PheromoneExploring]
}

// senseEpsilon is the intensity floor below which a decayed pheromone is
// treated as evaporated.
const senseEpsilon = 0.05

// Pheromone is one time-decayed coordination signal on a graph node.
type Pheromone struct {
	NodeID    string         `json:"nodeId"`
	AgentID   string         `json:"agentId"`
	SwarmID   string         `json:"swarmId"`
	Type      PheromoneType  `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	Intensity float64        `json:"intensity"`
	Data      map[string]any `json:"data,omitempty"`
}

// decayedIntensity applies exponential half-life decay at time now.
func (p Pheromone) decayedIntensity(now time.Time) float64 {
	hl := HalfLife(p.Type)
	if hl < 0 {
		return p.Intensity
	}
	elapsed := now.Sub(p.CreatedAt)
	if elapsed <= 0 {
		return p.Intensity
	}
	return p.Intensity * math.Pow(0.5, float64(elapsed)/float64(hl))
}

// SenseOptions narrow a Sense call.
type SenseOptions struct {
	// Types restricts the result to the given types. Empty means all.
	Types []PheromoneType
	// ExcludeAgent drops signals written by this agent.
	ExcludeAgent string
}

// PheromoneStore is the in-memory blackboard agents coordinate through.
// All operations are atomic per (agent, node, type).
type PheromoneStore struct {
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
	// keyed by nodeID, then by (agentID, type)
	byNode map[string]map[pheromoneKey]Pheromone
}

type pheromoneKey struct {
	agentID string
	typ     PheromoneType
}

// NewPheromoneStore creates an empty blackboard.
func NewPheromoneStore(logger *slog.Logger) *PheromoneStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PheromoneStore{
		logger: logger,
		now:    time.Now,
		byNode: make(map[string]map[pheromoneKey]Pheromone),
	}
}

// Write records a pheromone. Writing a workflow state replaces any prior
// workflow state for the same (agent, node); flags accumulate.
func (s *PheromoneStore) Write(p Pheromone) {
	if p.Intensity <= 0 {
		p.Intensity = 1.0
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.byNode[p.NodeID]
	if node == nil {
		node = make(map[pheromoneKey]Pheromone)
		s.byNode[p.NodeID] = node
	}
	if IsWorkflowState(p.Type) {
		for key := range node {
			if key.agentID == p.AgentID && IsWorkflowState(key.typ) {
				delete(node, key)
			}
		}
	}
	node[pheromoneKey{agentID: p.AgentID, typ: p.Type}] = p

	s.logger.Debug("swarm.pheromone.write",
		"node_id", p.NodeID,
		"agent_id", p.AgentID,
		"type", string(p.Type),
	)
}

// Remove deletes the signal of the given type written by agentID on nodeID.
func (s *PheromoneStore) Remove(nodeID, agentID string, t PheromoneType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if node := s.byNode[nodeID]; node != nil {
		delete(node, pheromoneKey{agentID: agentID, typ: t})
		if len(node) == 0 {
			delete(s.byNode, nodeID)
		}
	}
}

// Sense returns the current non-negligible pheromones on a node, with
// decay applied. Signals whose decayed intensity falls below the epsilon
// threshold are evaporated in place.
func (s *PheromoneStore) Sense(nodeID string, opts SenseOptions) []Pheromone {
	now := s.now()
	wantType := make(map[PheromoneType]bool, len(opts.Types))
	for _, t := range opts.Types {
		wantType[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.byNode[nodeID]
	if node == nil {
		return nil
	}

	var out []Pheromone
	for key, p := range node {
		intensity := p.decayedIntensity(now)
		if intensity < senseEpsilon {
			delete(node, key)
			continue
		}
		if len(wantType) > 0 && !wantType[p.Type] {
			continue
		}
		if opts.ExcludeAgent != "" && p.AgentID == opts.ExcludeAgent {
			continue
		}
		p.Intensity = intensity
		out = append(out, p)
	}
	if len(node) == 0 {
		delete(s.byNode, nodeID)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// SenseMany senses a set of nodes in one pass.
func (s *PheromoneStore) SenseMany(nodeIDs []string, opts SenseOptions) map[string][]Pheromone {
	out := make(map[string][]Pheromone, len(nodeIDs))
	for _, id := range nodeIDs {
		if ps := s.Sense(id, opts); len(ps) > 0 {
			out[id] = ps
		}
	}
	return out
}

// Evaporate drops every signal whose decayed intensity has fallen below
// the epsilon threshold and returns how many were removed.
func (s *PheromoneStore) Evaporate() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for nodeID, node := range s.byNode {
		for key, p := range node {
			if p.decayedIntensity(now) < senseEpsilon {
				delete(node, key)
				removed++
			}
		}
		if len(node) == 0 {
			delete(s.byNode, nodeID)
		}
	}
	if removed > 0 {
		s.logger.Debug("swarm.pheromone.evaporate", "removed", removed)
	}
	return removed
}
