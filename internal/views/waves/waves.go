// Package waves renders the scrollable list of waves. Messages are treated
// as markdown so shared links stand out.
package waves

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/wave-portal/waveportal/internal/portal"
	"github.com/wave-portal/waveportal/internal/theme"
)

const timeLayout = "Mon Jan 02 2006 15:04:05 MST"

// Model is the wave list. Waves are kept in arrival order.
type Model struct {
	Waves []portal.Wave

	style    string
	width    int
	renderer *glamour.TermRenderer
	viewport viewport.Model
}

// New creates a list that renders markdown with the named glamour style
// ("dark", "light", "notty", ...).
func New(style string) Model {
	return Model{
		style:    style,
		viewport: viewport.New(0, 0),
	}
}

// SetSize resizes the list and re-renders its content.
func (m *Model) SetSize(width, height int) {
	if width != m.width || m.renderer == nil {
		m.width = width
		m.renderer = newRenderer(m.style, width-6)
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.refresh(false)
}

// SetWaves replaces the list, as after a full fetch.
func (m *Model) SetWaves(ws []portal.Wave) {
	m.Waves = append([]portal.Wave(nil), ws...)
	m.refresh(true)
}

// Append adds one wave at the end and follows it if the list was already
// scrolled to the bottom.
func (m *Model) Append(w portal.Wave) {
	follow := m.viewport.AtBottom()
	m.Waves = append(m.Waves, w)
	m.refresh(follow)
}

// Update forwards scroll keys and mouse wheel events to the viewport.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.viewport.View()
}

func (m *Model) refresh(bottom bool) {
	m.viewport.SetContent(m.render())
	if bottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) render() string {
	if len(m.Waves) == 0 {
		return theme.StyleDimmed.Render("  No waves yet. Be the first!")
	}
	boxes := make([]string, 0, len(m.Waves))
	for _, w := range m.Waves {
		boxes = append(boxes, m.renderWave(w))
	}
	return lipgloss.JoinVertical(lipgloss.Left, boxes...)
}

func (m Model) renderWave(w portal.Wave) string {
	label := theme.StyleDimmed.Render
	lines := []string{
		label("Address: ") + theme.StyleAddress.Render(w.Sender),
		label("Time:    ") + formatTime(w.Timestamp),
		label("Message: ") + m.renderMessage(w.Message),
	}

	width := m.width - 2
	if width < 20 {
		width = 20
	}
	return theme.StyleBorder.
		Width(width).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderMessage(msg string) string {
	if m.renderer == nil {
		return msg
	}
	out, err := m.renderer.Render(msg)
	if err != nil {
		log.WithField("component", "tui").Debugf("markdown render: %v", err)
		return msg
	}
	return strings.Trim(out, "\n ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func newRenderer(style string, wrap int) *glamour.TermRenderer {
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		log.WithField("component", "tui").Warnf("markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}
