package status

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/wave-portal/waveportal/internal/theme"
)

// FrameInterval is how often Tick should be called while Animating.
const FrameInterval = time.Second / 30

// Model holds the status bar state. The wave count springs toward its
// latest value.
type Model struct {
	Provider bool
	Checked  bool // provider detection has finished
	Account  string
	Mining   bool
	Width    int

	count    uint64
	hasCount bool
	shown    float64
	velocity float64
	spring   harmonica.Spring
}

// New creates a status bar model.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(30), 6.0, 0.8),
	}
}

// SetCount sets the target count. The first value is shown immediately.
func (m *Model) SetCount(n uint64) {
	if !m.hasCount {
		m.shown = float64(n)
		m.hasCount = true
	}
	m.count = n
}

// Count returns the target count.
func (m Model) Count() uint64 {
	return m.count
}

// Displayed returns the count as currently drawn.
func (m Model) Displayed() uint64 {
	return uint64(math.Round(math.Max(m.shown, 0)))
}

// Animating reports whether the drawn count has not settled yet.
func (m Model) Animating() bool {
	return math.Abs(m.shown-float64(m.count)) >= 0.5 || math.Abs(m.velocity) >= 0.5
}

// Tick advances the count animation by one frame.
func (m *Model) Tick() {
	m.shown, m.velocity = m.spring.Update(m.shown, m.velocity, float64(m.count))
	if !m.Animating() {
		m.shown = float64(m.count)
		m.velocity = 0
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch {
	case m.Account != "":
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● " + theme.ShortAddress(m.Account))
	case !m.Checked:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Render("○ Looking for wallet...")
	case m.Provider:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("○ Wallet not connected")
	default:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ No wallet provider")
	}

	count := fmt.Sprintf("Wave Count: %d", m.Displayed())

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + count
	if m.Mining {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorAccent).Render("Mining...")
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
