// Package sim provides a simulated UART implementing hal.Device.
//
// A single goroutine plays the interrupt context: completions, received
// bytes and line errors are delivered one at a time, in order, each handler
// running to completion before the next starts. Bytes injected on the wire
// are latched only while reception is armed, the way RTS/CTS flow control
// holds the peer off while the receiver is not ready.
package sim

import (
	"errors"
	"sync"
	"time"

	"github.com/allbin/go-cellcomm/hal"
)

var (
	ErrNotPowered    = errors.New("sim: device not powered")
	ErrNotConfigured = errors.New("sim: device not configured")
)

// Option configures a UART
type Option func(*UART)

// WithLoopback feeds every transmitted byte back to the receiver
func WithLoopback() Option {
	return func(u *UART) { u.loopback = true }
}

// WithResponder makes the far end answer every completed transmit with the
// bytes fn returns
func WithResponder(fn func(sent []byte) []byte) Option {
	return func(u *UART) { u.responder = fn }
}

// WithTransmitDelay sets how long a transmit takes to complete
func WithTransmitDelay(d time.Duration) Option {
	return func(u *UART) { u.txDelay = d }
}

// WithByteInterval paces received bytes, e.g. 87µs for 115200 baud 8N1
func WithByteInterval(d time.Duration) Option {
	return func(u *UART) { u.byteInterval = d }
}

// WithPowerOnError makes PowerOn fail with err
func WithPowerOnError(err error) Option {
	return func(u *UART) { u.powerOnErr = err }
}

// WithInitError makes Init fail with err
func WithInitError(err error) Option {
	return func(u *UART) { u.initErr = err }
}

// ByteInterval returns the time one 10-bit character takes at baud
func ByteInterval(baud int) time.Duration {
	return time.Second * 10 / time.Duration(baud)
}

type rxItem struct {
	b    byte
	code hal.LineError // non-zero for a line error
}

// UART is a simulated serial device
type UART struct {
	mu sync.Mutex

	loopback     bool
	responder    func([]byte) []byte
	txDelay      time.Duration
	byteInterval time.Duration
	powerOnErr   error
	initErr      error

	powered    bool
	configured bool
	line       hal.LineConfig

	armed    bool
	wire     []rxItem
	pending  []func(hal.Interrupts)
	lastByte time.Time

	txBusy        bool
	txSeq         uint64
	txTimer       *time.Timer
	transferred   int
	written       []byte
	busyTransmits int
	armFailures   int
	partial       int
	stall         bool
	txErr         error
	txFault       bool
	silentAbort   bool

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

var _ hal.Device = (*UART)(nil)

// New creates a powered-off, unconfigured UART
func New(opts ...Option) *UART {
	u := &UART{partial: -1}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UART) PowerOn() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.powerOnErr != nil {
		return u.powerOnErr
	}
	u.powered = true
	return nil
}

func (u *UART) PowerOff() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.powered = false
}

func (u *UART) Init(cfg hal.LineConfig, irq hal.Interrupts) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.powered {
		return ErrNotPowered
	}
	if u.initErr != nil {
		return u.initErr
	}
	if u.configured {
		return hal.ErrBusy
	}

	u.configured = true
	u.line = cfg
	u.armed = false
	u.pending = nil
	u.kick = make(chan struct{}, 1)
	u.stop = make(chan struct{})
	u.done = make(chan struct{})

	go u.run(irq, u.kick, u.stop, u.done)
	if len(u.wire) > 0 {
		u.signal()
	}
	return nil
}

func (u *UART) DeInit() error {
	u.mu.Lock()
	if !u.configured {
		u.mu.Unlock()
		return nil
	}
	u.configured = false
	u.cancelTransmit()
	close(u.stop)
	done := u.done
	u.mu.Unlock()

	<-done

	u.mu.Lock()
	u.armed = false
	u.pending = nil
	u.mu.Unlock()
	return nil
}

func (u *UART) StartReceive() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.configured {
		return ErrNotConfigured
	}
	if u.armFailures > 0 {
		u.armFailures--
		return hal.ErrBusy
	}
	if u.armed {
		return hal.ErrBusy
	}
	u.armed = true
	if len(u.wire) > 0 {
		u.signal()
	}
	return nil
}

func (u *UART) StartTransmit(p []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.configured {
		return ErrNotConfigured
	}
	if u.txErr != nil {
		return u.txErr
	}
	if u.busyTransmits > 0 {
		u.busyTransmits--
		return hal.ErrBusy
	}
	if u.txBusy {
		return hal.ErrBusy
	}

	u.txBusy = true
	u.transferred = 0
	u.txSeq++
	data := append([]byte(nil), p...)

	if u.partial >= 0 && u.partial < len(data) {
		// Move part of the frame, then hang until aborted.
		u.emit(data[:u.partial])
		u.transferred = u.partial
		u.partial = -1
		return nil
	}
	if u.stall {
		return nil
	}

	seq := u.txSeq
	u.txTimer = time.AfterFunc(u.txDelay, func() {
		u.finishTransmit(seq, data)
	})
	return nil
}

func (u *UART) finishTransmit(seq uint64, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if seq != u.txSeq || !u.txBusy || !u.configured {
		return
	}
	if u.txFault {
		u.txFault = false
		u.transferred = 0
		u.txBusy = false
		u.pending = append(u.pending, func(irq hal.Interrupts) { irq.TransmitError() })
		u.signal()
		return
	}
	u.emit(data)
	u.transferred = len(data)
	u.txBusy = false
	if u.responder != nil {
		for _, b := range u.responder(data) {
			u.wire = append(u.wire, rxItem{b: b})
		}
	}
	u.pending = append(u.pending, func(irq hal.Interrupts) { irq.TransmitComplete() })
	u.signal()
}

// emit puts bytes on the outgoing wire. Caller holds mu.
func (u *UART) emit(data []byte) {
	u.written = append(u.written, data...)
	if u.loopback {
		for _, b := range data {
			u.wire = append(u.wire, rxItem{b: b})
		}
		u.signal()
	}
}

func (u *UART) Transferred() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.transferred
}

func (u *UART) Abort() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.configured {
		return ErrNotConfigured
	}
	u.cancelTransmit()
	u.armed = false
	if !u.silentAbort {
		u.pending = append(u.pending, func(irq hal.Interrupts) { irq.AbortComplete(hal.AbortBoth) })
		u.signal()
	}
	return nil
}

// cancelTransmit drops any transmit in flight. Caller holds mu.
func (u *UART) cancelTransmit() {
	u.txSeq++
	u.txBusy = false
	if u.txTimer != nil {
		u.txTimer.Stop()
		u.txTimer = nil
	}
}

// signal wakes the interrupt goroutine. Caller holds mu.
func (u *UART) signal() {
	if u.kick == nil {
		return
	}
	select {
	case u.kick <- struct{}{}:
	default:
	}
}

func (u *UART) run(irq hal.Interrupts, kick, stop, done chan struct{}) {
	defer close(done)

	pace := time.NewTimer(time.Hour)
	pace.Stop()
	defer pace.Stop()

	for {
		select {
		case <-stop:
			return
		case <-kick:
		}

		for {
			handler, wait, ok := u.next()
			if wait > 0 {
				pace.Reset(wait)
				select {
				case <-stop:
					return
				case <-pace.C:
				}
				continue
			}
			if !ok {
				break
			}
			handler(irq)
		}
	}
}

// next picks the next interrupt to deliver. Completions go before wire
// traffic; a byte waits until reception is armed and its slot on the
// wire has come.
func (u *UART) next() (func(hal.Interrupts), time.Duration, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.configured {
		return nil, 0, false
	}
	if len(u.pending) > 0 {
		h := u.pending[0]
		u.pending = u.pending[1:]
		return h, 0, true
	}
	if len(u.wire) == 0 {
		return nil, 0, false
	}

	item := u.wire[0]
	if item.code != 0 {
		u.wire = u.wire[1:]
		u.armed = false
		return func(irq hal.Interrupts) { irq.LineError(item.code) }, 0, true
	}
	if !u.armed {
		return nil, 0, false
	}
	if u.byteInterval > 0 {
		now := time.Now()
		if due := u.lastByte.Add(u.byteInterval); now.Before(due) {
			return nil, due.Sub(now), false
		}
		u.lastByte = now
	}
	u.wire = u.wire[1:]
	u.armed = false
	return func(irq hal.Interrupts) { irq.ReceiveComplete(item.b) }, 0, true
}

// Inject puts bytes on the incoming wire
func (u *UART) Inject(p ...byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, b := range p {
		u.wire = append(u.wire, rxItem{b: b})
	}
	u.signal()
}

// InjectLineError queues a receive error behind any bytes already injected
func (u *UART) InjectLineError(code hal.LineError) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.wire = append(u.wire, rxItem{code: code})
	u.signal()
}

// SetTransmitBusy makes the next n StartTransmit calls report hal.ErrBusy
func (u *UART) SetTransmitBusy(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.busyTransmits = n
}

// SetArmFailures makes the next n StartReceive calls report hal.ErrBusy
func (u *UART) SetArmFailures(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.armFailures = n
}

// SetPartialTransmit makes the next transmit move only n bytes and then
// hang until aborted
func (u *UART) SetPartialTransmit(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.partial = n
}

// SetTransmitStall makes transmits never complete while on
func (u *UART) SetTransmitStall(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stall = on
}

// SetTransmitError makes StartTransmit fail with err; nil clears it
func (u *UART) SetTransmitError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txErr = err
}

// SetTransmitFault makes the next accepted transmit fail without sending
// anything, reported through TransmitError
func (u *UART) SetTransmitFault() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.txFault = true
}

// SetSilentAbort suppresses abort completion interrupts while on
func (u *UART) SetSilentAbort(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.silentAbort = on
}

// Written returns a copy of everything transmitted so far
func (u *UART) Written() []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]byte(nil), u.written...)
}

// Powered reports whether the device is powered
func (u *UART) Powered() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.powered
}

// Configured reports whether Init has run without a matching DeInit
func (u *UART) Configured() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.configured
}

// Armed reports whether reception is armed
func (u *UART) Armed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.armed
}

// LineConfig returns the configuration passed to Init
func (u *UART) LineConfig() hal.LineConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.line
}
