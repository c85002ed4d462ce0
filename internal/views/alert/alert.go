// Package alert renders a blocking message box that must be dismissed.
package alert

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wave-portal/waveportal/internal/theme"
)

type Model struct {
	Message string
}

// Show replaces the current message.
func (m *Model) Show(msg string) {
	m.Message = msg
}

func (m *Model) Dismiss() {
	m.Message = ""
}

func (m Model) Active() bool {
	return m.Message != ""
}

// View renders the box centered in width x height.
func (m Model) View(width, height int) string {
	box := lipgloss.NewStyle().
		Padding(1, 4).
		BorderStyle(lipgloss.ThickBorder()).
		BorderForeground(theme.ColorWarning).
		Render(lipgloss.JoinVertical(lipgloss.Center,
			theme.StyleHeader.Render(m.Message),
			"",
			theme.StyleDimmed.Render("enter / esc: OK"),
		))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
