/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/allbin/go-cellcomm"
	"github.com/allbin/go-cellcomm/hal"
	"github.com/allbin/go-cellcomm/hal/sim"
	"github.com/allbin/go-cellcomm/hal/tty"
)

// Styled output shared by the one-shot commands
var (
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("40")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	faintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// printer formats counts with thousands separators
var printer = message.NewPrinter(language.English)

// lineConfig builds the line parameters from --baud and --flow-control
func lineConfig() (hal.LineConfig, error) {
	line := hal.DefaultLineConfig()
	line.BaudRate = viper.GetInt("baud")

	switch strings.ToLower(viper.GetString("flow-control")) {
	case "none":
		line.FlowControl = hal.FlowControlNone
	case "rtscts", "":
		line.FlowControl = hal.FlowControlRTSCTS
	default:
		return line, fmt.Errorf("invalid flow control %q (use none or rtscts)", viper.GetString("flow-control"))
	}
	return line, nil
}

// simModem answers like a modem in command mode: it echoes the command and
// replies OK to anything starting with AT, ERROR otherwise.
func simModem(sent []byte) []byte {
	reply := append([]byte(nil), sent...)
	cmd := bytes.ToUpper(bytes.TrimSpace(sent))
	if bytes.HasPrefix(cmd, []byte("AT")) {
		return append(reply, "\r\nOK\r\n"...)
	}
	return append(reply, "\r\nERROR\r\n"...)
}

// portArg returns the port given as an argument, or --port
func portArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return viper.GetString("port")
}

// newDevice returns the device named by --port, or a simulated modem with --sim
func newDevice(line hal.LineConfig) (hal.Device, string) {
	if viper.GetBool("sim") {
		return sim.New(
			sim.WithResponder(simModem),
			sim.WithTransmitDelay(sim.ByteInterval(line.BaudRate)),
			sim.WithByteInterval(sim.ByteInterval(line.BaudRate)),
		), "sim"
	}
	path := viper.GetString("port")
	return tty.New(path), path
}

// newSession creates a closed session on dev from the command line settings
func newSession(dev hal.Device, line hal.LineConfig) (*cellcomm.Session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	return cellcomm.New(dev,
		cellcomm.WithLineConfig(line),
		cellcomm.WithRingCapacity(viper.GetInt("ring-capacity")),
		cellcomm.WithLogger(logger),
	)
}

// openSession opens a session whose callback signals the returned channel
func openSession() (*cellcomm.Session, string, <-chan struct{}, error) {
	line, err := lineConfig()
	if err != nil {
		return nil, "", nil, err
	}
	dev, label := newDevice(line)

	s, err := newSession(dev, line)
	if err != nil {
		return nil, label, nil, err
	}

	ready := make(chan struct{}, 1)
	if err := s.Open(notify, ready); err != nil {
		return nil, label, nil, fmt.Errorf("open %s: %w", label, err)
	}
	return s, label, ready, nil
}

// notify is the receive callback used by the commands. It runs in interrupt
// context and only posts a wake-up.
func notify(userData any, _ *cellcomm.Session) {
	select {
	case userData.(chan struct{}) <- struct{}{}:
	default:
	}
}

// parseHex converts "48 65 6C", "0x48 0x65" or "48656C" to bytes
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", "0x", "", "0X", "", ":", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return nil, fmt.Errorf("empty input")
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(clean))
	}

	out := make([]byte, 0, len(clean)/2)
	for i := 0; i < len(clean); i += 2 {
		b, err := strconv.ParseUint(clean[i:i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte '%s'", clean[i:i+2])
		}
		out = append(out, byte(b))
	}
	return out, nil
}

// printable replaces non-printable bytes with a middle dot
func printable(data []byte) string {
	var sb strings.Builder
	for _, b := range data {
		switch {
		case b == '\r':
			sb.WriteString("\\r")
		case b == '\n':
			sb.WriteString("\\n")
		case b >= 32 && b <= 126:
			sb.WriteByte(b)
		default:
			sb.WriteRune('·')
		}
	}
	return sb.String()
}

// statusLine renders an error with its session status code
func statusLine(err error) string {
	return fmt.Sprintf("%s %v %s", errorStyle.Render("✗"), err,
		faintStyle.Render("["+cellcomm.StatusOf(err).String()+"]"))
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
