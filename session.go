package cellcomm

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/allbin/go-cellcomm/hal"
	"github.com/allbin/go-cellcomm/internal/event"
	"github.com/allbin/go-cellcomm/internal/ring"
)

// Event bits shared between the interrupt handlers and the session
const (
	evTxDone event.Bits = 1 << iota
	evTxError
	evTxAborted
	evRxDone
	evRxError
	evRxAborted

	evTxMask = evTxDone | evTxError | evTxAborted
	evRxMask = evRxDone | evRxError | evRxAborted
)

// ReceiveCallback is invoked when a byte arrives and no Receive is draining
// the buffer.
//
// IT RUNS IN THE DEVICE'S INTERRUPT CONTEXT. It must not block, sleep, log
// to slow writers, or call Send or Receive. Hand the work to a goroutine,
// for example with a non-blocking send on a buffered channel.
type ReceiveCallback func(userData any, s *Session)

// Interface is the contract the modem command stack consumes
type Interface interface {
	Open(cb ReceiveCallback, userData any) error
	Send(data []byte, timeout time.Duration) (int, error)
	Receive(buf []byte, timeout time.Duration) (int, error)
	Close() error
}

// Ensure Session implements Interface at compile time
var _ Interface = (*Session)(nil)

type receiveHook struct {
	cb       ReceiveCallback
	userData any
}

// Session owns one physical link: the device, the receive ring and the
// event group the interrupt handlers signal through.
//
// At most one Send and one Receive may be in flight at a time, and Open and
// Close must not overlap with each other or with Send/Receive. The session
// takes no locks of its own to enforce this.
type Session struct {
	dev    hal.Device
	config Config
	log    *slog.Logger

	open    atomic.Bool
	rx      *ring.Buffer
	events  *event.Group
	hook    atomic.Pointer[receiveHook]
	reading atomic.Bool
	busy    atomic.Bool

	lastLineError atomic.Uint32
	stats         counters
}

// New creates a closed session on dev
func New(dev hal.Device, opts ...Option) (*Session, error) {
	if dev == nil {
		return nil, ErrBadParameter
	}

	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	return &Session{
		dev:    dev,
		config: config,
		log:    config.Logger,
	}, nil
}

// Open powers the device, configures the line and arms reception.
// cb is required; see ReceiveCallback for its constraints.
func (s *Session) Open(cb ReceiveCallback, userData any) error {
	if s == nil || s.dev == nil || cb == nil {
		return ErrBadParameter
	}
	if s.open.Load() {
		return ErrFailure
	}

	s.reset()

	if err := s.dev.PowerOn(); err != nil {
		return fmt.Errorf("%w: power on: %w", ErrDriverError, err)
	}

	rx, err := ring.New(s.config.RingCapacity)
	if err != nil {
		s.dev.PowerOff()
		return fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	events := event.New()

	if err := s.dev.Init(s.config.Line, &bridge{s: s, rx: rx, events: events}); err != nil {
		events.Close()
		rx.Reset()
		s.dev.PowerOff()
		return fmt.Errorf("%w: configure device: %w", ErrDriverError, err)
	}

	s.rx = rx
	s.events = events
	s.hook.Store(&receiveHook{cb: cb, userData: userData})

	if err := s.dev.StartReceive(); err != nil {
		// Retried after the next send.
		s.busy.Store(true)
		s.stats.rearmFailures.Add(1)
		s.log.Debug("receive not armed on open", "error", err)
	}

	s.open.Store(true)
	s.log.Debug("session opened",
		"baud", s.config.Line.BaudRate,
		"flow", s.config.Line.FlowControl,
		"ring", s.config.RingCapacity)
	return nil
}

// Send transmits data and waits up to timeout for the device to finish.
// It returns the number of bytes that reached the wire; a partial transfer
// comes back with ErrTimeout.
func (s *Session) Send(data []byte, timeout time.Duration) (int, error) {
	if s == nil || len(data) == 0 {
		return 0, ErrBadParameter
	}
	if !s.open.Load() {
		return 0, ErrFailure
	}

	if timeout < 0 {
		timeout = 0
	}
	deadline := time.Now().Add(timeout)
	interval := s.config.SendRetryInterval
	attempts := int(timeout/interval) + 1

	s.events.Clear(evTxMask)

	sent, err := s.transmit(data, deadline, interval, attempts)
	if err == nil {
		s.stats.txBytes.Add(uint64(sent))
	}

	if s.busy.Load() {
		s.rearm()
	}
	return sent, err
}

func (s *Session) transmit(data []byte, deadline time.Time, interval time.Duration, attempts int) (int, error) {
	for ; attempts > 0; attempts-- {
		err := s.dev.StartTransmit(data)
		if errors.Is(err, hal.ErrBusy) {
			s.stats.busyRetries.Add(1)
			time.Sleep(interval)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: start transmit: %w", ErrDriverError, err)
		}

		bits := s.events.Wait(evTxMask, event.ClearOnExit, time.Until(deadline))
		if bits&(evTxError|evTxAborted) != 0 {
			return 0, fmt.Errorf("%w: transmit failed", ErrDriverError)
		}

		n := s.dev.Transferred()
		if n >= len(data) {
			return n, nil
		}
		return n, fmt.Errorf("%w: sent %d of %d bytes", ErrTimeout, n, len(data))
	}

	s.log.Warn("device stayed busy for the whole send timeout", "len", len(data))
	return 0, fmt.Errorf("%w: %w", ErrTimeout, ErrBusy)
}

// rearm retries arming reception that failed in interrupt context
func (s *Session) rearm() {
	tries := int(s.config.RearmTimeout / s.config.SendRetryInterval)
	for ; tries > 0; tries-- {
		if err := s.dev.StartReceive(); err == nil {
			s.busy.Store(false)
			return
		}
		time.Sleep(s.config.SendRetryInterval)
	}
	s.log.Warn("receive still not armed", "timeout", s.config.RearmTimeout)
}

// Receive copies buffered bytes into buf, waiting up to timeout for more.
//
// Any progress counts as success: once at least one byte was copied, a
// timeout, line error or abort ends the call with a nil error and the
// partial count. Only a call that produced nothing reports the failure.
// Callers re-invoke Receive for the remainder.
func (s *Session) Receive(buf []byte, timeout time.Duration) (int, error) {
	if s == nil || len(buf) == 0 {
		return 0, ErrBadParameter
	}
	if !s.open.Load() {
		return 0, ErrFailure
	}

	s.reading.Store(true)
	defer s.reading.Store(false)

	s.events.Clear(evRxMask)

	start := time.Now()
	remain := timeout
	n := 0
	var err error

	for n < len(buf) {
		if b, ok := s.rx.Get(); ok {
			buf[n] = b
			n++
			continue
		}

		if remain <= 0 {
			err = ErrTimeout
			break
		}

		wait := remain
		if n > 0 && wait > s.config.ReceiveWaitInterval {
			wait = s.config.ReceiveWaitInterval
		}

		bits := s.events.Wait(evRxMask, event.ClearOnExit, wait)
		if bits&(evRxError|evRxAborted) != 0 {
			err = fmt.Errorf("%w: receive failed (line error %s)", ErrDriverError, s.LastLineError())
			break
		}
		if bits == 0 {
			err = ErrTimeout
			break
		}

		remain = timeout - time.Since(start)
	}

	if n > 0 {
		return n, nil
	}
	return 0, err
}

// Close aborts any transfer in flight, releases the device and powers it
// off. It waits at most AbortTimeout for the abort to complete.
func (s *Session) Close() error {
	if s == nil {
		return ErrBadParameter
	}
	if !s.open.Load() {
		return ErrFailure
	}

	if err := s.dev.Abort(); err != nil {
		s.log.Warn("abort failed", "error", err)
	}
	bits := s.events.Wait(evTxAborted|evRxAborted, event.ClearOnExit|event.WaitAll, s.config.AbortTimeout)
	if bits == 0 {
		s.log.Warn("abort not confirmed", "timeout", s.config.AbortTimeout)
	}

	if err := s.dev.DeInit(); err != nil {
		s.log.Warn("deinit failed", "error", err)
	}

	s.events.Close()
	s.rx.Reset()
	s.dev.PowerOff()
	s.hook.Store(nil)
	s.open.Store(false)

	s.log.Debug("session closed")
	return nil
}

// IsOpen reports whether the session is open
func (s *Session) IsOpen() bool {
	return s != nil && s.open.Load()
}

// Busy reports whether reception is waiting to be re-armed
func (s *Session) Busy() bool {
	return s != nil && s.busy.Load()
}

// LastLineError returns the most recent error reported by the device
func (s *Session) LastLineError() hal.LineError {
	return hal.LineError(s.lastLineError.Load())
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.config
}

// reset zeroes per-open state
func (s *Session) reset() {
	s.rx = nil
	s.events = nil
	s.hook.Store(nil)
	s.reading.Store(false)
	s.busy.Store(false)
	s.lastLineError.Store(0)
	s.stats.reset()
}
