package monitor

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color Palette
var (
	salmonPink = lipgloss.Color("#FFB3BA") // errors and headings
	mintGreen  = lipgloss.Color("#A8E6CF") // translated
	mutedGray  = lipgloss.Color("#6B7280") // secondary text
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	barFilledStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	barEmptyStyle = lipgloss.NewStyle().
			Foreground(mutedGray)
)

// Render returns a one-line summary of s.
func Render(s Status) string {
	var b strings.Builder
	if s.Done {
		b.WriteString(doneStyle.Render("✓ done"))
	} else {
		b.WriteString(headerStyle.Render(s.Label()))
	}
	fmt.Fprintf(&b, " %s", mutedStyle.Render(fmt.Sprintf("%d translated", s.Translated)))
	if s.Failed > 0 {
		fmt.Fprintf(&b, " %s", errorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Pending > 0 {
		fmt.Fprintf(&b, " %s", mutedStyle.Render(fmt.Sprintf("%d pending", s.Pending)))
	}
	if h := handlerLine(s); h != "" {
		fmt.Fprintf(&b, " %s", mutedStyle.Render("· "+h))
	}
	return b.String()
}

// Bar draws a progress bar of the given width for pct in [0, 100].
func Bar(pct float64, width int) string {
	if width < 10 {
		width = 10
	}
	filled := int(float64(width) * pct / 100.0)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return barFilledStyle.Render(strings.Repeat("━", filled)) + barEmptyStyle.Render(strings.Repeat("━", width-filled))
}

func handlerLine(s Status) string {
	switch {
	case s.Done:
		return ""
	case s.Handler == "":
		return "waiting for a worker"
	case s.Alive:
		return "handled by " + s.Handler
	default:
		return "worker " + s.Handler + " is not responding"
	}
}
