package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-cellcomm/hal"
	"github.com/allbin/go-cellcomm/internal/tui/styles"
)

// SessionState is what the status bar knows about the session
type SessionState struct {
	Line          hal.LineConfig
	State         styles.State
	Err           error
	LastLineError hal.LineError
	CTS           *bool // nil when the device cannot report modem lines
}

type StatusBar struct {
	label string
	width int
	state SessionState
}

func NewStatusBar(label string, line hal.LineConfig) *StatusBar {
	return &StatusBar{
		label: label,
		state: SessionState{Line: line, State: styles.StateOpening},
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) State() SessionState {
	return sb.state
}

func (sb *StatusBar) SetState(state styles.State, err error) {
	sb.state.State = state
	sb.state.Err = err
}

func (sb *StatusBar) SetLastLineError(code hal.LineError) {
	sb.state.LastLineError = code
}

func (sb *StatusBar) SetCTS(cts bool) {
	sb.state.CTS = &cts
}

// LineSummary renders the line parameters as "115200 8N1 rts/cts"
func LineSummary(line hal.LineConfig) string {
	return fmt.Sprintf("%d %d%s%d %s", line.BaudRate, line.DataBits, line.Parity.Letter(), line.StopBits, line.FlowControl)
}

// Render draws the bar: mode, port and state on the left, line settings,
// the last line error and the clock on the right.
func (sb *StatusBar) Render(inputMode, sendingMode string, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeBackground := styles.Blue
	if inputMode == "INSERT" {
		modeBackground = styles.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(styles.Base).
		Background(modeBackground).
		Bold(true).
		Padding(0, 1).
		Render(inputMode)

	port := lipgloss.NewStyle().
		Foreground(styles.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.label)

	indicator := styles.StateIndicator(sb.state.State)

	divider := lipgloss.NewStyle().
		Foreground(styles.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, indicator}
	if inputMode == "INSERT" {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	if sb.state.Err != nil {
		left = append(left, lipgloss.NewStyle().
			Foreground(styles.Red).
			Padding(0, 1).
			Render(sb.state.Err.Error()))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	details := "⚡ " + LineSummary(sb.state.Line)
	if sb.state.CTS != nil {
		if *sb.state.CTS {
			details += " CTS:✓"
		} else {
			details += " CTS:✗"
		}
	}
	if sb.state.LastLineError != 0 {
		details += " err:" + sb.state.LastLineError.String()
	}
	lineDetails := lipgloss.NewStyle().
		Foreground(styles.Subtext0).
		Padding(0, 1).
		Render(details)

	clock := lipgloss.NewStyle().
		Foreground(styles.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, lineDetails, divider, clock)

	spacerWidth := max(terminalWidth-lipgloss.Width(leftSide)-lipgloss.Width(rightSide), 1)
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(styles.Text).
		Background(styles.Surface0).
		Width(terminalWidth).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
