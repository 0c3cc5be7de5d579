package cellcomm

import (
	"github.com/allbin/go-cellcomm/hal"
	"github.com/allbin/go-cellcomm/internal/event"
	"github.com/allbin/go-cellcomm/internal/ring"
)

// bridge turns device interrupts into ring buffer pushes and event bits.
// Each Open binds a new bridge to that open's ring and event group, so an
// interrupt that races Close only touches resources that are going away.
//
// Everything here runs in interrupt context: no blocking, no allocation,
// no logging.
type bridge struct {
	s      *Session
	rx     *ring.Buffer
	events *event.Group
}

var _ hal.Interrupts = (*bridge)(nil)

func (b *bridge) ReceiveComplete(c byte) {
	s := b.s
	if !b.rx.Put(c) {
		// The link is meant to be flow controlled; losing bytes silently
		// would corrupt the modem protocol.
		panic(ErrOverrun)
	}
	s.stats.rxBytes.Add(1)
	s.stats.observePeak(b.rx.Peak())

	if s.reading.Load() {
		b.events.Set(evRxDone)
		s.stats.rxSignals.Add(1)
	} else if h := s.hook.Load(); h != nil {
		h.cb(h.userData, s)
		s.stats.callbacks.Add(1)
	}

	b.rearm()
}

func (b *bridge) TransmitComplete() {
	b.events.Set(evTxDone)
}

func (b *bridge) TransmitError() {
	b.events.Set(evTxError)
}

func (b *bridge) LineError(code hal.LineError) {
	s := b.s
	s.lastLineError.Store(uint32(code))
	s.stats.lineErrors.Add(1)

	if code&hal.LineErrorClasses != 0 {
		b.events.Set(evRxError)
	}
	b.rearm()
}

func (b *bridge) AbortComplete(kind hal.AbortKind) {
	var bits event.Bits
	if kind&hal.AbortTransmit != 0 {
		bits |= evTxAborted
	}
	if kind&hal.AbortReceive != 0 {
		bits |= evRxAborted
	}
	if bits != 0 {
		b.events.Set(bits)
	}
}

func (b *bridge) rearm() {
	if err := b.s.dev.StartReceive(); err != nil {
		// Send retries once the transmitter is idle.
		b.s.busy.Store(true)
		b.s.stats.rearmFailures.Add(1)
	}
}
