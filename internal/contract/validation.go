// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"os"
	"strconv"
	"strings"
)

const (
	// DefaultSoftLimitBytes is the baseline soft limit for import batches.
	DefaultSoftLimitBytes = 64 << 20 // 64 MiB

	// TaskDescriptionMaxBytes caps a swarm task description.
	TaskDescriptionMaxBytes = 4096

	// AgentIDMaxBytes is the maximum length for agent identifiers.
	AgentIDMaxBytes = 128
)

// SoftLimitBytes returns the effective soft limit for import payloads.
// Controlled via env CODEGRAPH_SOFT_LIMIT_BYTES; falls back to
// DefaultSoftLimitBytes.
func SoftLimitBytes() int {
	if v := os.Getenv("CODEGRAPH_SOFT_LIMIT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultSoftLimitBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateImportPayload checks an import batch against the soft limit.
func ValidateImportPayload(sizeBytes int) *ValidationResult {
	if sizeBytes > SoftLimitBytes() {
		return &ValidationResult{
			OK:      false,
			Message: "import payload exceeds soft limit",
		}
	}
	return &ValidationResult{OK: true}
}

// ValidateTaskDescription checks a swarm decomposition request.
func ValidateTaskDescription(description string) *ValidationResult {
	if strings.TrimSpace(description) == "" {
		return &ValidationResult{
			OK:      false,
			Message: "task description is empty",
		}
	}
	if len(description) > TaskDescriptionMaxBytes {
		return &ValidationResult{
			OK:      false,
			Message: "task description exceeds maximum length",
		}
	}
	return &ValidationResult{OK: true}
}

// ValidateAgentID checks an agent identifier.
func ValidateAgentID(agentID string) *ValidationResult {
	if strings.TrimSpace(agentID) == "" {
		return &ValidationResult{OK: false, Message: "agent id is empty"}
	}
	if len(agentID) > AgentIDMaxBytes {
		return &ValidationResult{OK: false, Message: "agent id exceeds maximum length"}
	}
	return &ValidationResult{OK: true}
}
