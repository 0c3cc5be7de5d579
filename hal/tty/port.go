// Package tty drives a real serial device as a hal.Device.
//
// The operating system does not hand us per-byte interrupts, so the port
// emulates them: a reader goroutine collects incoming bytes, a writer
// goroutine performs transmits, and a single dispatch goroutine calls the
// hal.Interrupts handlers one at a time. A byte is handed over only while
// reception is armed; until then it waits in the port (and in the kernel
// buffer, where RTS/CTS holds the modem off).
package tty

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allbin/go-cellcomm/hal"
)

// Predefined error types
var (
	ErrNotConfigured  = errors.New("port not configured")
	ErrUnsupported    = errors.New("operation not supported on this platform")
	ErrInvalidBaud    = errors.New("invalid baud rate")
	ErrDeviceNotFound = errors.New("device not found")
)

// readBackoff is the pause after a failed read before trying again
const readBackoff = 100 * time.Millisecond

// dial opens the platform link for a port
var dial = openLink

// link is the platform side of a port
type link interface {
	// Read returns 0, nil when nothing arrived within the poll interval
	Read(p []byte) (int, error)
	// Write sends p, giving up early when cancel is closed
	Write(p []byte, cancel <-chan struct{}) (int, error)
	// Drain waits until written data has left the UART
	Drain() error
	// Flush discards queued input and output
	Flush() error
	Signals() (Signals, error)
	Close() error
}

// Signals holds modem control line states
type Signals struct {
	CTS bool // Clear To Send
	DSR bool // Data Set Ready
	RI  bool // Ring Indicator
	DCD bool // Data Carrier Detect
	RTS bool // Request To Send
	DTR bool // Data Terminal Ready
}

// Option configures a Port
type Option func(*Port)

// WithPower sets the hook that switches modem power, typically a GPIO line.
// The default does nothing.
func WithPower(fn func(on bool) error) Option {
	return func(p *Port) {
		if fn != nil {
			p.power = fn
		}
	}
}

// interrupt is a queued handler call. A disarming interrupt ends the armed
// receive when it is delivered.
type interrupt struct {
	fn     func(hal.Interrupts)
	disarm bool
}

type txJob struct {
	data   []byte
	seq    uint64
	cancel chan struct{}
}

// Port is a serial device at a filesystem path
type Port struct {
	path  string
	power func(on bool) error

	mu          sync.Mutex
	link        link
	configured  bool
	armed       bool
	pending     []byte
	queue       []interrupt
	txBusy      bool
	txSeq       uint64
	txCancel    chan struct{}
	transferred int

	kick chan struct{}
	tx   chan txJob
	stop chan struct{}
	wg   sync.WaitGroup
}

var _ hal.Device = (*Port)(nil)

// New returns a port for the device at path. Nothing is opened until Init.
func New(path string, opts ...Option) *Port {
	p := &Port{
		path:  path,
		power: func(bool) error { return nil },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the device path
func (p *Port) Path() string {
	return p.path
}

func (p *Port) PowerOn() error {
	return p.power(true)
}

func (p *Port) PowerOff() {
	p.power(false)
}

func (p *Port) Init(cfg hal.LineConfig, irq hal.Interrupts) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.configured {
		return hal.ErrBusy
	}

	l, err := dial(p.path, cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", p.path, err)
	}

	p.link = l
	p.configured = true
	p.armed = false
	p.pending = nil
	p.queue = nil
	p.txBusy = false
	p.transferred = 0
	p.kick = make(chan struct{}, 1)
	p.tx = make(chan txJob, 1)
	p.stop = make(chan struct{})

	p.wg.Add(3)
	go p.readLoop(l, p.stop)
	go p.writeLoop(l, p.tx, p.stop)
	go p.dispatchLoop(irq, p.kick, p.stop)
	return nil
}

func (p *Port) DeInit() error {
	p.mu.Lock()
	if !p.configured {
		p.mu.Unlock()
		return nil
	}
	p.configured = false
	p.cancelTransmit()
	l := p.link
	l.Flush()
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.link = nil
	p.pending = nil
	p.queue = nil
	p.mu.Unlock()
	return l.Close()
}

func (p *Port) StartReceive() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return ErrNotConfigured
	}
	if p.armed {
		return hal.ErrBusy
	}
	p.armed = true
	if len(p.pending) > 0 {
		p.signal()
	}
	return nil
}

func (p *Port) StartTransmit(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return ErrNotConfigured
	}
	if p.txBusy {
		return hal.ErrBusy
	}

	p.txBusy = true
	p.transferred = 0
	p.txSeq++
	p.txCancel = make(chan struct{})

	job := txJob{
		data:   append([]byte(nil), data...),
		seq:    p.txSeq,
		cancel: p.txCancel,
	}
	select {
	case p.tx <- job:
	default:
		// The writer still holds an aborted job
		p.txBusy = false
		return hal.ErrBusy
	}
	return nil
}

func (p *Port) Transferred() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transferred
}

func (p *Port) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return ErrNotConfigured
	}
	p.cancelTransmit()
	p.armed = false
	p.pending = nil
	if err := p.link.Flush(); err != nil {
		return err
	}
	p.queue = append(p.queue, interrupt{fn: func(irq hal.Interrupts) { irq.AbortComplete(hal.AbortBoth) }})
	p.signal()
	return nil
}

// Signals returns the modem control line states
func (p *Port) Signals() (Signals, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return Signals{}, ErrNotConfigured
	}
	return p.link.Signals()
}

// cancelTransmit drops the transmit in flight. Caller holds mu.
func (p *Port) cancelTransmit() {
	p.txSeq++
	p.txBusy = false
	if p.txCancel != nil {
		close(p.txCancel)
		p.txCancel = nil
	}
}

// signal wakes the dispatcher. Caller holds mu.
func (p *Port) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// post queues an interrupt for the dispatcher
func (p *Port) post(irq interrupt) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return
	}
	p.queue = append(p.queue, irq)
	p.signal()
}

func (p *Port) readLoop(l link, stop chan struct{}) {
	defer p.wg.Done()

	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := l.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.pending = append(p.pending, buf[:n]...)
			p.signal()
			p.mu.Unlock()
		}
		if err != nil {
			p.post(interrupt{
				fn:     func(irq hal.Interrupts) { irq.LineError(hal.LineErrorDevice) },
				disarm: true,
			})
			select {
			case <-stop:
				return
			case <-time.After(readBackoff):
			}
		}
	}
}

func (p *Port) writeLoop(l link, tx chan txJob, stop chan struct{}) {
	defer p.wg.Done()

	for {
		var job txJob
		select {
		case <-stop:
			return
		case job = <-tx:
		}

		n, err := l.Write(job.data, job.cancel)
		if err == nil {
			err = l.Drain()
		}

		p.mu.Lock()
		if job.seq != p.txSeq || !p.configured {
			p.mu.Unlock()
			continue
		}
		p.transferred = n
		p.txBusy = false
		if err == nil || n > 0 {
			// A short write completes with fewer bytes transferred
			p.queue = append(p.queue, interrupt{fn: func(irq hal.Interrupts) { irq.TransmitComplete() }})
		} else {
			p.queue = append(p.queue, interrupt{fn: func(irq hal.Interrupts) { irq.TransmitError() }})
		}
		p.signal()
		p.mu.Unlock()
	}
}

func (p *Port) dispatchLoop(irq hal.Interrupts, kick, stop chan struct{}) {
	defer p.wg.Done()

	for {
		select {
		case <-stop:
			return
		case <-kick:
		}

		for {
			h := p.next()
			if h == nil {
				break
			}
			h(irq)
		}
	}
}

// next returns the next interrupt to deliver, or nil
func (p *Port) next() func(hal.Interrupts) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.configured {
		return nil
	}
	if len(p.queue) > 0 {
		irq := p.queue[0]
		p.queue = p.queue[1:]
		if irq.disarm {
			p.armed = false
		}
		return irq.fn
	}
	if !p.armed || len(p.pending) == 0 {
		return nil
	}
	b := p.pending[0]
	p.pending = p.pending[1:]
	p.armed = false
	return func(irq hal.Interrupts) { irq.ReceiveComplete(b) }
}
