package styles

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha colors used by the session view
var (
	Base     = lipgloss.Color("#1e1e2e")
	Surface0 = lipgloss.Color("#313244")
	Surface1 = lipgloss.Color("#45475a")
	Surface2 = lipgloss.Color("#585b70")
	Overlay0 = lipgloss.Color("#6c7086")
	Subtext0 = lipgloss.Color("#a6adc8")
	Subtext1 = lipgloss.Color("#bac2de")
	Text     = lipgloss.Color("#cdd6f4")

	Blue   = lipgloss.Color("#89b4fa")
	Sky    = lipgloss.Color("#89dceb")
	Green  = lipgloss.Color("#a6e3a1")
	Yellow = lipgloss.Color("#f9e2af")
	Peach  = lipgloss.Color("#fab387")
	Red    = lipgloss.Color("#f38ba8")
	Mauve  = lipgloss.Color("#cba6f7")
)

var (
	// Content area above the input
	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Surface2).
			Padding(0, 1)

	// Side panel holding the counters table
	PanelStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	PanelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Mauve)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(Subtext0)

	EventStyle = lipgloss.NewStyle().
			Foreground(Peach).
			Italic(true)
)

// State is what the status bar indicator shows for the session
type State int

const (
	StateOpening State = iota
	StateOpen
	StateBusy
	StateClosed
	StateError
)

// StateIndicator returns the single character indicator for a state
func StateIndicator(s State) string {
	switch s {
	case StateOpen:
		return lipgloss.NewStyle().Foreground(Green).Render("●")
	case StateBusy:
		return lipgloss.NewStyle().Foreground(Yellow).Render("◐")
	case StateOpening:
		return lipgloss.NewStyle().Foreground(Yellow).Render("○")
	case StateError:
		return lipgloss.NewStyle().Foreground(Red).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(Red).Render("○")
	}
}
