package models

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/allbin/go-cellcomm"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// SessionOpenedMsg reports the result of opening the session
type SessionOpenedMsg struct {
	Session *cellcomm.Session
	Err     error
}

// SessionModel is the state the session view shares with its background
// goroutines. Sends are serialized; the reader stops before Close.
type SessionModel struct {
	session *cellcomm.Session
	label   string
	ready   bool
	err     error

	inputMode InputMode
	seq       atomic.Uint64

	ctx     context.Context
	cancel  context.CancelFunc
	readers sync.WaitGroup

	sendMu sync.Mutex
	mu     sync.RWMutex
}

func NewSessionModel(label string) *SessionModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionModel{
		label:     label,
		inputMode: InputModeNormal,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (m *SessionModel) Label() string {
	return m.label
}

func (m *SessionModel) Session() *cellcomm.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// SetSession hands an open session to the model. It returns false when
// the view already shut down, leaving the session to the caller.
func (m *SessionModel) SetSession(s *cellcomm.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return false
	}
	m.session = s
	return true
}

func (m *SessionModel) IsReady() bool {
	return m.ready
}

func (m *SessionModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SessionModel) Err() error {
	return m.err
}

func (m *SessionModel) SetErr(err error) {
	m.err = err
}

func (m *SessionModel) InputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SessionModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SessionModel) IsInInsertMode() bool {
	return m.InputMode() == InputModeInsert
}

// NextSeq numbers a send so its status updates find its terminal line
func (m *SessionModel) NextSeq() uint64 {
	return m.seq.Add(1)
}

func (m *SessionModel) Context() context.Context {
	return m.ctx
}

// Go runs fn as a background reader that Cleanup waits for
func (m *SessionModel) Go(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	m.readers.Add(1)
	go func() {
		defer m.readers.Done()
		fn(m.ctx)
	}()
}

// LockSend serializes sends and reports the session to send on, or nil
// once the view is shutting down. Callers unlock with UnlockSend.
func (m *SessionModel) LockSend() *cellcomm.Session {
	m.sendMu.Lock()
	if m.ctx.Err() != nil {
		return nil
	}
	return m.Session()
}

func (m *SessionModel) UnlockSend() {
	m.sendMu.Unlock()
}

// Cleanup stops the readers, waits out a send in flight and closes the
// session. It is safe to call more than once.
func (m *SessionModel) Cleanup() {
	m.cancel()

	// Go and SetSession check the context under mu, so nothing is added
	// after this point.
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	m.readers.Wait()

	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if s != nil && s.IsOpen() {
		s.Close()
	}
}
