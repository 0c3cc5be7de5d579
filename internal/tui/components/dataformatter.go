package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/go-cellcomm/internal/tui/styles"
)

// Direction tells where a line in the terminal came from
type Direction int

const (
	DirectionRX Direction = iota
	DirectionTX
	DirectionEvent
)

// TxStatus tracks a send from the moment it is queued until Send returns
type TxStatus int

const (
	TxPending TxStatus = iota
	TxSending
	TxSent
	TxPartial
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "PENDING"
	case TxSending:
		return "SENDING"
	case TxSent:
		return "SENT"
	case TxPartial:
		return "PARTIAL"
	case TxFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DataMsg is one terminal line: received bytes, a send, or a session event
type DataMsg struct {
	Seq       uint64 // identifies a send across its status updates
	Timestamp time.Time
	Data      []byte
	Direction Direction
	Status    TxStatus
	Note      string // event text, or the error of a failed send
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

func txIndicator(status TxStatus) string {
	var color lipgloss.Color
	var text string
	switch status {
	case TxPending:
		color, text = styles.Yellow, "TX ○"
	case TxSending:
		color, text = styles.Blue, "TX ⏸"
	case TxSent:
		color, text = styles.Green, "TX ✓"
	case TxPartial:
		color, text = styles.Peach, "TX ◑"
	default:
		color, text = styles.Red, "TX ✗"
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render("↗ " + text)
}

// Printable renders data as ASCII with non-printable bytes replaced by dots
func Printable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		if b >= 32 && b <= 126 {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func (df *DataFormatter) FormatMessage(msg DataMsg) string {
	timestamp := styles.TimestampStyle.Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000")))

	if msg.Direction == DirectionEvent {
		indicator := lipgloss.NewStyle().Foreground(styles.Peach).Bold(true).Render("• EV")
		return fmt.Sprintf("%s %s: %s", timestamp, indicator, styles.EventStyle.Render(msg.Note))
	}

	var indicator string
	if msg.Direction == DirectionTX {
		indicator = txIndicator(msg.Status)
	} else {
		indicator = lipgloss.NewStyle().Foreground(styles.Sky).Bold(true).Render("↙ RX")
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+Printable(msg.Data))
	}
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}
	if msg.Note != "" {
		parts = append(parts, styles.EventStyle.Render("("+msg.Note+")"))
	}

	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}

func (df *DataFormatter) FormatMessages(messages []DataMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}
