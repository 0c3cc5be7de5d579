// Package event implements an event group: a set of independent flag bits
// that a producer sets without blocking and consumers wait on, any-of or
// all-of a mask, with a timeout.
//
// Waiter wake-up channels are allocated when the group is created, so Set
// never allocates. Each waiter owns its own channel, which keeps a wake-up
// meant for one mask from being consumed by a goroutine waiting on another.
package event

import (
	"sync"
	"time"
)

// Bits is a set of event flags
type Bits uint32

// WaitFlags modify how Wait matches and consumes bits
type WaitFlags uint8

const (
	// ClearOnExit clears the waited-for bits when Wait returns a match
	ClearOnExit WaitFlags = 1 << iota
	// WaitAll requires every bit in the mask instead of any of them
	WaitAll
)

// maxWaiters bounds concurrent waiters that get a dedicated wake-up channel.
// Waiters beyond it fall back to polling.
const maxWaiters = 8

const pollInterval = time.Millisecond

type waiter struct {
	mask  Bits
	flags WaitFlags
	ch    chan struct{}
	used  bool
}

// Group is an event group. The zero value is not usable; call New.
type Group struct {
	mu      sync.Mutex
	bits    Bits
	closed  bool
	done    chan struct{}
	waiters [maxWaiters]waiter
}

// New creates an empty event group
func New() *Group {
	g := &Group{done: make(chan struct{})}
	for i := range g.waiters {
		g.waiters[i].ch = make(chan struct{}, 1)
	}
	return g
}

// Set ORs mask into the group and wakes every waiter it satisfies.
// It never blocks on a waiter and is a no-op after Close.
func (g *Group) Set(mask Bits) Bits {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0
	}
	g.bits |= mask
	for i := range g.waiters {
		w := &g.waiters[i]
		if !w.used || !satisfied(g.bits, w.mask, w.flags) {
			continue
		}
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
	return g.bits
}

// Clear removes mask from the group and returns the bits held before
func (g *Group) Clear(mask Bits) Bits {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.bits
	g.bits &^= mask
	return prev
}

// Get returns the current bits
func (g *Group) Get() Bits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bits
}

// Wait blocks until the bits in mask satisfy flags, the timeout elapses or
// the group is closed. It returns the matched subset of mask, or 0 when the
// wait did not succeed. A timeout of zero or less only tests the bits.
func (g *Group) Wait(mask Bits, flags WaitFlags, timeout time.Duration) Bits {
	if mask == 0 {
		return 0
	}

	g.mu.Lock()
	if got, ok := g.take(mask, flags); ok {
		g.mu.Unlock()
		return got
	}
	if g.closed || timeout <= 0 {
		g.mu.Unlock()
		return 0
	}
	slot := g.claim(mask, flags)
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Exactly one of wake and tick is set; a nil channel never fires.
	var (
		wake <-chan struct{}
		tick <-chan time.Time
	)
	if slot >= 0 {
		wake = g.waiters[slot].ch
	} else {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-wake:
		case <-tick:
		case <-g.done:
			g.release(slot)
			return 0
		case <-timer.C:
			// A bit set right at the deadline still counts.
			g.mu.Lock()
			got, _ := g.take(mask, flags)
			g.releaseLocked(slot)
			g.mu.Unlock()
			return got
		}

		g.mu.Lock()
		if got, ok := g.take(mask, flags); ok {
			g.releaseLocked(slot)
			g.mu.Unlock()
			return got
		}
		g.mu.Unlock()
	}
}

// Close destroys the group. Pending and later waits return 0.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	g.bits = 0
	close(g.done)
}

// take reports whether the bits satisfy the wait and consumes them if asked.
// Caller holds mu.
func (g *Group) take(mask Bits, flags WaitFlags) (Bits, bool) {
	if !satisfied(g.bits, mask, flags) {
		return 0, false
	}
	got := g.bits & mask
	if flags&ClearOnExit != 0 {
		g.bits &^= mask
	}
	return got, true
}

// claim reserves a waiter slot and returns its index, or -1 if all are
// taken. Caller holds mu.
func (g *Group) claim(mask Bits, flags WaitFlags) int {
	for i := range g.waiters {
		w := &g.waiters[i]
		if w.used {
			continue
		}
		w.used = true
		w.mask = mask
		w.flags = flags
		return i
	}
	return -1
}

func (g *Group) release(slot int) {
	g.mu.Lock()
	g.releaseLocked(slot)
	g.mu.Unlock()
}

func (g *Group) releaseLocked(slot int) {
	if slot < 0 {
		return
	}
	w := &g.waiters[slot]
	w.used = false
	select {
	case <-w.ch:
	default:
	}
}

func satisfied(bits, mask Bits, flags WaitFlags) bool {
	if flags&WaitAll != 0 {
		return bits&mask == mask
	}
	return bits&mask != 0
}
