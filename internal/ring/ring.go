// Package ring provides a fixed-capacity byte FIFO for exactly one producer
// and one consumer running in different goroutines.
//
// The producer only ever writes the head index and the consumer only ever
// writes the tail index. Both are published with atomic stores, so a byte
// written before the head advances is visible to the consumer that observes
// the new head. No locks are taken on either side.
package ring

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidCapacity is returned by New for a non-positive capacity
var ErrInvalidCapacity = errors.New("ring buffer capacity must be positive")

// Buffer is a single-producer/single-consumer byte ring
type Buffer struct {
	buf  []byte
	size uint32 // len(buf); one slot is kept free to tell full from empty

	head atomic.Uint32 // next write position, owned by the producer
	tail atomic.Uint32 // next read position, owned by the consumer
	peak atomic.Uint32 // high-water mark of Len, written by the producer
}

// New allocates a buffer that holds up to capacity bytes
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer{
		buf:  make([]byte, capacity+1),
		size: uint32(capacity + 1),
	}, nil
}

// Put appends b. It returns false when the buffer is full; the byte is not
// stored in that case. Producer side only.
func (r *Buffer) Put(b byte) bool {
	head := r.head.Load()
	next := (head + 1) % r.size
	tail := r.tail.Load()
	if next == tail {
		return false
	}
	r.buf[head] = b
	r.head.Store(next)

	used := (next + r.size - tail) % r.size
	if used > r.peak.Load() {
		r.peak.Store(used)
	}
	return true
}

// Get removes the oldest byte. Consumer side only.
func (r *Buffer) Get() (byte, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	b := r.buf[tail]
	r.tail.Store((tail + 1) % r.size)
	return b, true
}

// Len returns the number of buffered bytes. The value is a snapshot when
// called concurrently with Put or Get.
func (r *Buffer) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	return int((head + r.size - tail) % r.size)
}

// Cap returns the number of bytes the buffer can hold
func (r *Buffer) Cap() int {
	return int(r.size - 1)
}

// Peak returns the largest Len observed by the producer since the last Reset
func (r *Buffer) Peak() int {
	return int(r.peak.Load())
}

// Reset discards buffered data. Neither side may be running concurrently.
func (r *Buffer) Reset() {
	r.head.Store(0)
	r.tail.Store(0)
	r.peak.Store(0)
}
