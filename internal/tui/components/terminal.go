package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// maxMessages bounds the scrollback kept by a Terminal
const maxMessages = 2000

// Terminal is a scrolling log of DataMsg lines. It keeps the raw messages
// so display toggles and send status updates can re-render them.
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	messages  []DataMsg
	follow    bool
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(false, true),
		follow:    true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
}

func (t *Terminal) Width() int {
	return t.viewport.Width
}

// Messages returns the raw messages currently held
func (t *Terminal) Messages() []DataMsg {
	return t.messages
}

func (t *Terminal) AddMessage(msg DataMsg) {
	t.messages = append(t.messages, msg)
	if len(t.messages) > maxMessages {
		t.messages = t.messages[len(t.messages)-maxMessages:]
	}
	t.refresh()
}

// UpdateStatus changes the status of the send identified by seq. It
// returns false if the send is no longer in the scrollback.
func (t *Terminal) UpdateStatus(seq uint64, status TxStatus, note string) bool {
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := &t.messages[i]
		if m.Direction == DirectionTX && m.Seq == seq {
			m.Status = status
			m.Note = note
			t.refresh()
			return true
		}
	}
	return false
}

func (t *Terminal) Clear() {
	t.messages = nil
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
	t.refresh()
}

func (t *Terminal) ToggleASCII() {
	t.formatter.ToggleASCII()
	t.refresh()
}

func (t *Terminal) GetDisplayMode() DisplayMode {
	return t.formatter.GetDisplayMode()
}

func (t *Terminal) GotoTop() {
	t.follow = false
	t.viewport.GotoTop()
}

func (t *Terminal) GotoBottom() {
	t.follow = true
	t.viewport.GotoBottom()
}

func (t *Terminal) refresh() {
	t.viewport.SetContent(strings.Join(t.formatter.FormatMessages(t.messages), "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

func (t *Terminal) Update(msg tea.Msg) (viewport.Model, tea.Cmd) {
	// Key messages stay with the session view's own bindings
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		t.follow = t.viewport.AtBottom()
		return t.viewport, cmd
	default:
		return t.viewport, nil
	}
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
