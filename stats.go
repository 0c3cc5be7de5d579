package cellcomm

import "sync/atomic"

// Stats is a snapshot of session counters since the last Open
type Stats struct {
	RxBytes       uint64 // bytes pushed into the ring by the receive handler
	TxBytes       uint64 // bytes confirmed sent by successful Send calls
	Callbacks     uint64 // receive callback invocations
	RxSignals     uint64 // RX_DONE signals raised while Receive was draining
	LineErrors    uint64
	RearmFailures uint64 // times reception could not be re-armed
	BusyRetries   uint64 // transmit attempts rejected by a busy device
	RingPeak      int    // ring high-water mark in bytes
	RingCapacity  int
	Busy          bool
	Open          bool
}

type counters struct {
	rxBytes       atomic.Uint64
	txBytes       atomic.Uint64
	callbacks     atomic.Uint64
	rxSignals     atomic.Uint64
	lineErrors    atomic.Uint64
	rearmFailures atomic.Uint64
	busyRetries   atomic.Uint64
	ringPeak      atomic.Int64
}

// observePeak is only called from the single receive producer
func (c *counters) observePeak(n int) {
	if int64(n) > c.ringPeak.Load() {
		c.ringPeak.Store(int64(n))
	}
}

func (c *counters) reset() {
	c.rxBytes.Store(0)
	c.txBytes.Store(0)
	c.callbacks.Store(0)
	c.rxSignals.Store(0)
	c.lineErrors.Store(0)
	c.rearmFailures.Store(0)
	c.busyRetries.Store(0)
	c.ringPeak.Store(0)
}

// Stats returns the current counters. Safe to call from any goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		RxBytes:       s.stats.rxBytes.Load(),
		TxBytes:       s.stats.txBytes.Load(),
		Callbacks:     s.stats.callbacks.Load(),
		RxSignals:     s.stats.rxSignals.Load(),
		LineErrors:    s.stats.lineErrors.Load(),
		RearmFailures: s.stats.rearmFailures.Load(),
		BusyRetries:   s.stats.busyRetries.Load(),
		RingPeak:      int(s.stats.ringPeak.Load()),
		RingCapacity:  s.config.RingCapacity,
		Busy:          s.busy.Load(),
		Open:          s.open.Load(),
	}
}
