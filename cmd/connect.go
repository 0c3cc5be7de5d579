/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/allbin/go-cellcomm"
	"github.com/allbin/go-cellcomm/hal/tty"
	"github.com/allbin/go-cellcomm/internal/tui/components"
	"github.com/allbin/go-cellcomm/internal/tui/keys"
	"github.com/allbin/go-cellcomm/internal/tui/models"
	"github.com/allbin/go-cellcomm/internal/tui/styles"
)

const (
	sendTimeout   = 5 * time.Second
	readSlice     = 20 * time.Millisecond
	readPoll      = 250 * time.Millisecond
	statsInterval = 500 * time.Millisecond
	signalsPoll   = 500 * time.Millisecond
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect [port]",
	Short: "Open an interactive session with the modem",
	Long: `Open a session with the modem and talk to it through an interactive
terminal. Features include:
- Received data streamed with timestamps as the receive callback fires
- AT commands sent with CR LF, or raw bytes in hex mode
- Per-send status: pending, sending, sent, partial or failed
- Session counters (bytes, callbacks, line errors, ring high-water mark)
- CTS monitoring on real ports

Example usage:
  cellcomm connect /dev/ttyACM0
  cellcomm connect --sim
  cellcomm connect /dev/ttyUSB2 --baud 9600 --flow-control none`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			viper.Set("port", args[0])
		}
		return runConnectTUI()
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

// txStatusMsg moves a send along in the terminal
type txStatusMsg struct {
	seq    uint64
	status components.TxStatus
	note   string
}

type statsTickMsg time.Time

type ctsMsg struct {
	cts       bool
	timestamp time.Time
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	*models.SessionModel
	program   *tea.Program
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	stats     *components.StatsPanel
	help      help.Model
	keys      keys.SessionKeys

	width, height int
}

func runConnectTUI() error {
	line, err := lineConfig()
	if err != nil {
		return err
	}
	dev, label := newDevice(line)
	s, err := newSession(dev, line)
	if err != nil {
		return err
	}

	m := &connectModel{
		SessionModel: models.NewSessionModel(label),
		terminal:     components.NewTerminal(0, 0), // sized by WindowSizeMsg
		statusBar:    components.NewStatusBar(label, line),
		input:        components.NewInput(),
		stats:        components.NewStatsPanel(),
		help:         help.New(),
		keys:         keys.NewSessionKeys(),
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	m.program = p

	// Open in the background so a slow device does not hold up the UI
	go func() {
		ready := make(chan struct{}, 1)
		if err := s.Open(notify, ready); err != nil {
			p.Send(models.SessionOpenedMsg{Err: err})
			return
		}
		if !m.SetSession(s) {
			s.Close()
			return
		}
		p.Send(models.SessionOpenedMsg{Session: s})

		m.Go(func(ctx context.Context) { readLoop(ctx, s, ready, p) })
		if port, ok := dev.(*tty.Port); ok {
			m.Go(func(ctx context.Context) { watchSignals(ctx, port, p) })
		}
	}()

	_, err = p.Run()
	m.Cleanup()
	return err
}

// readLoop drains the session whenever the receive callback fires, with a
// slow poll in case a wake-up was coalesced.
func readLoop(ctx context.Context, s *cellcomm.Session, ready <-chan struct{}, p *tea.Program) {
	buf := make([]byte, 1024)
	poll := time.NewTicker(readPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ready:
		case <-poll.C:
		}

		for ctx.Err() == nil {
			n, err := s.Receive(buf, readSlice)
			if n > 0 {
				p.Send(components.DataMsg{
					Timestamp: time.Now(),
					Data:      append([]byte(nil), buf[:n]...),
					Direction: components.DirectionRX,
				})
				continue
			}
			if err != nil && !errors.Is(err, cellcomm.ErrTimeout) {
				p.Send(components.DataMsg{
					Timestamp: time.Now(),
					Direction: components.DirectionEvent,
					Note:      fmt.Sprintf("receive failed: %v", err),
				})
			}
			break
		}
	}
}

// watchSignals reports CTS changes on a real port
func watchSignals(ctx context.Context, port *tty.Port, p *tea.Program) {
	ticker := time.NewTicker(signalsPoll)
	defer ticker.Stop()

	first := true
	var last bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sig, err := port.Signals()
			if err != nil {
				return
			}
			if first || sig.CTS != last {
				p.Send(ctsMsg{cts: sig.CTS, timestamp: time.Now()})
				last, first = sig.CTS, false
			}
		}
	}
}

func statsTick() tea.Cmd {
	return tea.Tick(statsInterval, func(t time.Time) tea.Msg { return statsTickMsg(t) })
}

func (m *connectModel) Init() tea.Cmd {
	return nil
}

// payload turns the input line into the bytes to send
func (m *connectModel) payload() ([]byte, error) {
	value := m.input.Value()
	if m.input.GetSendingMode() == components.SendingModeHex {
		return parseHex(value)
	}
	return []byte(value + "\r\n"), nil
}

// sendCmd runs one Send off the UI goroutine
func (m *connectModel) sendCmd(seq uint64, data []byte) tea.Cmd {
	return func() tea.Msg {
		s := m.LockSend()
		defer m.UnlockSend()
		if s == nil {
			return txStatusMsg{seq: seq, status: components.TxFailed, note: "session closed"}
		}

		m.program.Send(txStatusMsg{seq: seq, status: components.TxSending})

		n, err := s.Send(data, sendTimeout)
		switch {
		case err == nil:
			return txStatusMsg{seq: seq, status: components.TxSent}
		case n > 0:
			return txStatusMsg{seq: seq, status: components.TxPartial, note: fmt.Sprintf("%d of %d bytes", n, len(data))}
		default:
			return txStatusMsg{seq: seq, status: components.TxFailed, note: cellcomm.StatusOf(err).String()}
		}
	}
}

func (m *connectModel) event(note string) {
	m.terminal.AddMessage(components.DataMsg{
		Timestamp: time.Now(),
		Direction: components.DirectionEvent,
		Note:      note,
	})
}

func (m *connectModel) layout() {
	if m.width == 0 {
		return
	}
	// Input box (3), status bar (1) and the content top border (1)
	reserved := 5
	if m.help.ShowAll {
		reserved += lipgloss.Height(m.help.View(m.keys))
	}

	termWidth := m.width
	if m.stats.Visible() {
		termWidth -= components.StatsWidth
	}
	m.terminal.SetSize(max(termWidth, 20), max(m.height-reserved, 1))
	m.input.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.help.Width = m.width
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.SetReady(true)

	case models.SessionOpenedMsg:
		if msg.Err != nil {
			m.SetErr(msg.Err)
			m.statusBar.SetState(styles.StateError, msg.Err)
			m.event(fmt.Sprintf("open failed: %v [%s]", msg.Err, cellcomm.StatusOf(msg.Err)))
			break
		}
		m.statusBar.SetState(styles.StateOpen, nil)
		m.event("session open, " + components.LineSummary(msg.Session.Config().Line))
		m.input.Focus()
		cmds = append(cmds, statsTick())

	case statsTickMsg:
		if s := m.Session(); s != nil {
			st := s.Stats()
			m.stats.Update(st)

			if code := s.LastLineError(); code != m.statusBar.State().LastLineError {
				m.statusBar.SetLastLineError(code)
				if code != 0 {
					m.event("line error: " + code.String())
				}
			}

			switch {
			case !st.Open:
				m.statusBar.SetState(styles.StateClosed, nil)
			case st.Busy:
				m.statusBar.SetState(styles.StateBusy, nil)
			default:
				m.statusBar.SetState(styles.StateOpen, nil)
			}
			cmds = append(cmds, statsTick())
		}

	case ctsMsg:
		m.statusBar.SetCTS(msg.cts)
		state := "CTS: OFF"
		if msg.cts {
			state = "CTS: ON"
		}
		m.terminal.AddMessage(components.DataMsg{
			Timestamp: msg.timestamp,
			Direction: components.DirectionEvent,
			Note:      state,
		})

	case components.DataMsg:
		m.terminal.AddMessage(msg)

	case txStatusMsg:
		m.terminal.UpdateStatus(msg.seq, msg.status, msg.note)

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, nil

			case key.Matches(msg, m.keys.Enter):
				if m.input.Value() == "" {
					return m, nil
				}
				data, err := m.payload()
				if err != nil {
					m.event(fmt.Sprintf("invalid hex input: %v", err))
					return m, nil
				}

				seq := m.NextSeq()
				m.terminal.AddMessage(components.DataMsg{
					Seq:       seq,
					Timestamp: time.Now(),
					Data:      data,
					Direction: components.DirectionTX,
					Status:    components.TxPending,
				})
				m.input.AddToHistory(m.input.Value())
				m.input.SetValue("")
				return m, m.sendCmd(seq, data)

			case key.Matches(msg, m.keys.Up):
				m.input.NavigateHistoryUp()
				return m, nil

			case key.Matches(msg, m.keys.Down):
				m.input.NavigateHistoryDown()
				return m, nil

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
				return m, nil
			}
		} else {
			switch {
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit

			case key.Matches(msg, m.keys.InsertMode):
				m.SetInputMode(models.InputModeInsert)
				m.input.Focus()
				return m, nil

			case key.Matches(msg, m.keys.Clear):
				m.terminal.Clear()

			case key.Matches(msg, m.keys.Help):
				m.help.ShowAll = !m.help.ShowAll
				m.layout()

			case key.Matches(msg, m.keys.ToggleHex):
				m.terminal.ToggleHex()

			case key.Matches(msg, m.keys.ToggleASCII):
				m.terminal.ToggleASCII()

			case key.Matches(msg, m.keys.ToggleStats):
				m.stats.Toggle()
				m.layout()

			case key.Matches(msg, m.keys.GotoTop):
				m.terminal.GotoTop()

			case key.Matches(msg, m.keys.GotoBottom):
				m.terminal.GotoBottom()

			case key.Matches(msg, m.keys.ToggleSendMode):
				m.input.ToggleSendingMode()
			}
		}
	}

	if m.IsInInsertMode() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		_, cmd := m.terminal.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *connectModel) View() string {
	content := "Opening session..."
	if m.IsReady() {
		content = m.terminal.View()
		if m.stats.Visible() {
			content = lipgloss.JoinHorizontal(lipgloss.Top, content, m.stats.View())
		}
	}

	inputMode := m.InputMode().String()
	parts := []string{
		styles.ContentBorderStyle.Render(content),
		m.input.ViewWithMode(m.IsInInsertMode()),
		m.statusBar.Render(inputMode, m.input.GetSendingMode().String(), time.Now().Format("15:04:05")),
	}
	if m.help.ShowAll {
		parts = append(parts, m.help.View(m.keys))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
