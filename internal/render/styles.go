// Package render provides styled terminal output for dispatcher render
// models using lipgloss.
package render

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// SuccessColor indicates confirmed matches and balanced totals.
	SuccessColor = lipgloss.Color("#4ECDC4") // Teal
	// WarningColor indicates items needing review.
	WarningColor = lipgloss.Color("#FFE66D") // Yellow
	// ErrorColor indicates unmatched items and unbalanced totals.
	ErrorColor = lipgloss.Color("#FF6B6B") // Red
	// SubtleColor indicates less prominent UI elements.
	SubtleColor = lipgloss.Color("#666666") // Gray

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	// SuccessStyle formats matched rows and success messages.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	// WarningStyle formats rows awaiting review.
	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor)

	// ErrorStyle formats unmatched rows and error messages.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().
			Foreground(SubtleColor)
)
