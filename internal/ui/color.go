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

// Package ui renders the human-readable side of codegraph's CLI output:
// status lines, report headers, and the colored severity scale shared by
// the impact and deadcode reports.
//
// All helpers honor the --no-color flag and the NO_COLOR environment
// variable; fatih/color additionally drops colors when stdout is piped.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Shared palette. Red for failures and critical risk, yellow for
// warnings and medium risk, green for success and low risk, cyan for
// neutral info and counters.
var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors applies the --no-color flag globally. Called once from
// main() right after flag parsing, before any output is produced.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// Success prints a green "✓" status line.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf is Success with printf formatting.
func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow "⚠" status line.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Warningf is Warning with printf formatting.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Error prints a red "✗" status line.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Errorf is Error with printf formatting.
func Errorf(format string, args ...any) {
	_, _ = Red.Printf("✗ "+format+"\n", args...)
}

// Info prints a cyan "ℹ" status line.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof is Info with printf formatting.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints a bold report title with an "=" underline, the opening
// line of every codegraph report (Parse Complete, Impact Analysis, ...).
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

// SubHeader prints a bold section title within a report.
func SubHeader(text string) {
	_, _ = Bold.Println(text)
}

// Label returns text in bold for inline field labels.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns text dimmed, used for paths and secondary detail.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan-formatted counter for report statistics.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

// RiskText colors a risk level on the shared severity scale: critical
// and high red, medium yellow, everything else green. The level text is
// passed through unchanged so reports stay grep-able without color.
func RiskText(level string) string {
	switch strings.ToLower(level) {
	case "critical", "high":
		return Red.Sprint(level)
	case "medium":
		return Yellow.Sprint(level)
	default:
		return Green.Sprint(level)
	}
}

// ConfidenceText colors a deadcode confidence tag: HIGH is safe to act
// on (green), MEDIUM needs a look (yellow), LOW is speculative (dim).
func ConfidenceText(level string) string {
	switch strings.ToUpper(level) {
	case "HIGH":
		return Green.Sprint(level)
	case "MEDIUM":
		return Yellow.Sprint(level)
	default:
		return Dim.Sprint(level)
	}
}
