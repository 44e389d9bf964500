// Package output renders the plain-text tables printed by the CLI.
// Tables use ASCII layout with ANSI colors when stdout is a terminal.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/overhaul/internal/store"
)

// ANSI color codes for outcome display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// VersionRow is one line of the versions table.
type VersionRow struct {
	Component string `json:"component"`
	Version   string `json:"version"`
}

// RenderVersionTable renders the installed version per component.
func RenderVersionTable(rows []VersionRow) string {
	if len(rows) == 0 {
		return "No components configured.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-15s %s\n", "Component", "Version"))
	sb.WriteString(strings.Repeat("─", 30))
	sb.WriteString("\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%-15s %s\n", truncate(row.Component, 15), row.Version))
	}
	return sb.String()
}

// RenderAttemptTable renders update-attempt history, newest first.
func RenderAttemptTable(attempts []*store.Attempt) string {
	if len(attempts) == 0 {
		return "No update attempts recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-13s %-10s %-22s %-16s %s\n",
		"Started", "Component", "Versions", "Outcome", "Detail"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, a := range attempts {
		versions := fmt.Sprintf("%s -> %s", a.FromVersion, a.ToVersion)
		sb.WriteString(fmt.Sprintf("%-13s %-10s %-22s %-16s %s\n",
			formatRelativeTime(a.StartedAt),
			truncate(a.Component, 10),
			truncate(versions, 22),
			colorizeOutcome(a.Outcome),
			truncate(a.Detail, 40)))
	}
	return sb.String()
}

// colorizeOutcome pads to the column width before coloring so the invisible
// escape codes do not skew the layout.
func colorizeOutcome(outcome string) string {
	padded := fmt.Sprintf("%-16s", outcome)
	switch outcome {
	case store.OutcomeSucceeded:
		return colorize(colorGreen, padded)
	case store.OutcomeFailed, store.OutcomeRollbackFailed:
		return colorize(colorRed, padded)
	case store.OutcomeRolledBack:
		return colorize(colorYellow, padded)
	case store.OutcomeNoop:
		return colorize(colorGray, padded)
	default:
		return padded
	}
}

// truncate shortens s to max runes, ellipsizing when needed.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// formatRelativeTime renders a time as a compact age ("3d ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
