// Package theme provides the Lip Gloss color palette and reusable styles
// for the WavePortal TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Brand colors.
var (
	ColorAccent  = lipgloss.Color("#a855f7")
	ColorAddress = lipgloss.Color("#06b6d4")
	ColorTime    = lipgloss.Color("#9ca3af")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// Log level colors.
var (
	ColorDebug = lipgloss.Color("#6b7280")
	ColorInfo  = lipgloss.Color("#2563eb")
	ColorWarn  = lipgloss.Color("#d97706")
	ColorError = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// LevelColor returns the color for a logrus level name.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "trace", "debug":
		return ColorDebug
	case "info":
		return ColorInfo
	case "warning", "warn":
		return ColorWarn
	case "error", "fatal", "panic":
		return ColorError
	default:
		return ColorDefault
	}
}

// ShortAddress abbreviates a hex address to 0x1234…abcd for narrow layouts.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleButton = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright).
			Background(ColorAccent).
			Padding(0, 2)

	StyleAddress = lipgloss.NewStyle().
			Foreground(ColorAddress)
)
