// Package tui provides a live terminal dashboard for the player.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays the session state, the playlist position, frame and read
// rates, worker timing and the most recent log events.
package tui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette: a dark screen with teal accents, the player's signal colours.
var (
	accent     = lipgloss.Color("#14B8A6")
	accentDeep = lipgloss.Color("#0F766E")
	green      = lipgloss.Color("#22C55E")
	amber      = lipgloss.Color("#EAB308")
	red        = lipgloss.Color("#DC2626")
	sky        = lipgloss.Color("#38BDF8")
	fg         = lipgloss.Color("#F1F5F9")
	fgMuted    = lipgloss.Color("#94A3B8")
	fgDim      = lipgloss.Color("#64748B")
	rule       = lipgloss.Color("#334155")
)

func fgStyle(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func boldStyle(c lipgloss.Color) lipgloss.Style { return fgStyle(c).Bold(true) }

var (
	mutedStyle = fgStyle(fgMuted)
	dimStyle   = fgStyle(fgDim)

	statusOK      = boldStyle(green)
	statusWarning = boldStyle(amber)
	statusError   = boldStyle(red)
	statusInfo    = boldStyle(sky)

	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(rule).Padding(0, 1)

	headerStyle = boldStyle(fg).Background(accentDeep).Padding(0, 1).MarginBottom(1)

	sectionHeaderStyle = boldStyle(accent).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(rule)

	footerStyle = mutedStyle.MarginTop(1)

	labelStyle = mutedStyle.Width(20)
	valueStyle = boldStyle(fg)

	barFilled  = fgStyle(accent)
	barEmpty   = fgStyle(rule)
	barPercent = boldStyle(fg)
)

// GetStateStyle returns the style for a session state.
func GetStateStyle(state string) lipgloss.Style {
	switch state {
	case "running":
		return statusOK
	case "reconfiguring", "draining":
		return statusWarning
	case "terminated":
		return statusError
	default:
		return statusInfo
	}
}

// GetStateLabel returns a styled state indicator.
func GetStateLabel(state string) string {
	if state == "" {
		state = "idle"
	}
	return GetStateStyle(state).Render("● " + state)
}

// GetLevelStyle returns the style for a log level.
func GetLevelStyle(level slog.Level) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return statusError
	case level >= slog.LevelWarn:
		return statusWarning
	default:
		return mutedStyle
	}
}

// RenderKeyValue renders "label: value" with an aligned label column.
func RenderKeyValue(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders progress (0..1) as a bar followed by a percentage.
func RenderProgressBar(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	return barFilled.Render(strings.Repeat("█", filled)) +
		barEmpty.Render(strings.Repeat("░", width-filled)) +
		barPercent.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}
