package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/ragdeck/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders session counters and recent events.
// Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Session Stats"))
	lines = append(lines, fmt.Sprintf("  Requests:   %d ok, %d errors",
		stats[otel.KindAPIRequest], stats[otel.KindAPIError]))
	lines = append(lines, fmt.Sprintf("  Index jobs: %d started, %d settled, %d rejected",
		stats[otel.KindIndexStart], stats[otel.KindIndexSettled], stats[otel.KindIndexReject]))
	lines = append(lines, fmt.Sprintf("  Queries:    %d started, %d complete, %d stale, %d rejected",
		stats[otel.KindQueryStart], stats[otel.KindQueryComplete], stats[otel.KindQueryStale], stats[otel.KindQueryReject]))
	lines = append(lines, fmt.Sprintf("  Models:     %d decisions, %d changes",
		stats[otel.KindModelDecision], stats[otel.KindModelChange]))
	if otel.TraceEnabled() {
		lines = append(lines, fmt.Sprintf("  Trace:      %d messages", ring.CountSubsystem("trace")))
	}
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-16s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Path != "" {
			line += "  " + truncateRunes(e.Path, 24)
		}
		if e.Seq > 0 {
			line += fmt.Sprintf("  #%d", e.Seq)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		if e.RequestID != "" {
			line += "  rid:" + truncateRunes(e.RequestID, 8)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("D") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
