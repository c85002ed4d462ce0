// Package debug renders the log console overlay.
package debug

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/logging"
	"github.com/wave-portal/waveportal/internal/theme"
)

// Capacity is how many log entries the console keeps.
const Capacity = 200

// Model is the console state. Back counts how many entries sit below the
// last visible line; zero means the console follows the tail.
type Model struct {
	entries []logging.Entry
	back    int
}

func New() Model {
	return Model{}
}

// Len returns the number of retained entries.
func (m Model) Len() int { return len(m.entries) }

// Back returns the distance from the tail.
func (m Model) Back() int { return m.back }

// Following reports whether new entries scroll into view.
func (m Model) Following() bool { return m.back == 0 }

// Push records e. While the user is reading history the visible window stays
// on the same entries.
func (m *Model) Push(e logging.Entry) {
	m.entries = append(m.entries, e)
	if n := len(m.entries) - Capacity; n > 0 {
		m.entries = append(m.entries[:0:0], m.entries[n:]...)
	}
	if m.back > 0 {
		m.back = min(m.back+1, len(m.entries)-1)
	}
}

// Older scrolls n entries towards the head.
func (m *Model) Older(n int) {
	m.back = min(m.back+n, max(len(m.entries)-1, 0))
}

// Newer scrolls n entries towards the tail.
func (m *Model) Newer(n int) {
	m.back = max(m.back-n, 0)
}

// View renders the console filling width x height.
func (m Model) View(width, height int) string {
	inner := max(width-6, 20)
	rows := max(height-7, 3)

	var body string
	if len(m.entries) == 0 {
		body = theme.StyleDimmed.Render("nothing logged yet")
	} else {
		end := len(m.entries) - m.back
		start := max(end-rows, 0)
		lines := make([]string, 0, end-start)
		for _, e := range m.entries[start:end] {
			lines = append(lines, line(e, inner))
		}
		body = strings.Join(lines, "\n")
	}

	footer := fmt.Sprintf("%d/%d  ↑/↓ pgup/pgdn  esc", len(m.entries)-m.back, len(m.entries))
	if !m.Following() {
		footer = fmt.Sprintf("paused, %d newer  ", m.back) + footer
	}

	return lipgloss.NewStyle().
		Width(inner).
		Height(height-4).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorAccent).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			theme.StyleHeader.Render("CONSOLE"),
			body,
			"",
			theme.StyleDimmed.Render(footer),
		))
}

func line(e logging.Entry, width int) string {
	tag := lipgloss.NewStyle().
		Foreground(theme.LevelColor(e.Level.String())).
		Width(5).
		Render(levelTag(e.Level))

	text := e.Message
	if e.Component != "" {
		text = e.Component + ": " + text
	}
	// timestamp, tag and separators take 20 cells
	if room := width - 20; room > 3 && len(text) > room {
		text = text[:room-1] + "…"
	}
	return theme.StyleDimmed.Render(e.Time.Format("15:04:05.000")) + " " + tag + " " + text
}

func levelTag(l log.Level) string {
	switch l {
	case log.WarnLevel:
		return "WARN"
	case log.PanicLevel, log.FatalLevel:
		return "FATL"
	case log.ErrorLevel:
		return "ERR"
	case log.DebugLevel:
		return "DBG"
	case log.TraceLevel:
		return "TRC"
	}
	return "INFO"
}
