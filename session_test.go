package cellcomm

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/allbin/go-cellcomm/hal"
	"github.com/allbin/go-cellcomm/hal/sim"
	"github.com/allbin/go-cellcomm/internal/event"
	"github.com/allbin/go-cellcomm/internal/ring"
)

// callbackCounter is a ReceiveCallback that only counts
type callbackCounter struct {
	calls atomic.Int64
}

func (c *callbackCounter) callback(_ any, _ *Session) {
	c.calls.Add(1)
}

func newTestSession(t *testing.T, u *sim.UART, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{
		WithSendRetryInterval(time.Millisecond),
		WithRearmTimeout(100 * time.Millisecond),
		WithAbortTimeout(100 * time.Millisecond),
	}, opts...)
	s, err := New(u, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func openTestSession(t *testing.T, u *sim.UART, opts ...Option) (*Session, *callbackCounter) {
	t.Helper()
	s := newTestSession(t, u, opts...)
	cc := &callbackCounter{}
	if err := s.Open(cc.callback, nil); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if s.IsOpen() {
			s.Close()
		}
	})
	return s, cc
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestOpenClose(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	if !s.IsOpen() {
		t.Error("Expected session to be open")
	}
	if !u.Powered() || !u.Configured() {
		t.Error("Expected device powered and configured after Open")
	}
	if u.LineConfig() != hal.DefaultLineConfig() {
		t.Errorf("Expected default line config, got %+v", u.LineConfig())
	}
	if !u.Armed() {
		t.Error("Expected reception armed after Open")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.IsOpen() {
		t.Error("Expected session to be closed")
	}
	if u.Powered() || u.Configured() {
		t.Error("Expected device released after Close")
	}
}

func TestOpenGuards(t *testing.T) {
	var nilSession *Session
	if err := nilSession.Open(func(any, *Session) {}, nil); !errors.Is(err, ErrBadParameter) {
		t.Errorf("Expected ErrBadParameter for nil session, got %v", err)
	}

	s := newTestSession(t, sim.New())
	if err := s.Open(nil, nil); !errors.Is(err, ErrBadParameter) {
		t.Errorf("Expected ErrBadParameter for nil callback, got %v", err)
	}
	if s.IsOpen() {
		t.Error("Expected session to stay closed")
	}
}

func TestDoubleOpen(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	if err := s.Open(func(any, *Session) {}, nil); !errors.Is(err, ErrFailure) {
		t.Errorf("Expected ErrFailure on second Open, got %v", err)
	}

	// The first open is unaffected
	n, err := s.Send([]byte("AT\r\n"), time.Second)
	if err != nil || n != 4 {
		t.Errorf("Expected 4 bytes sent, got %d (%v)", n, err)
	}
}

func TestOpenFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("power on", func(t *testing.T) {
		u := sim.New(sim.WithPowerOnError(boom))
		s := newTestSession(t, u)
		err := s.Open(func(any, *Session) {}, nil)
		if !errors.Is(err, ErrDriverError) || !errors.Is(err, boom) {
			t.Errorf("Expected ErrDriverError wrapping the cause, got %v", err)
		}
		if s.IsOpen() {
			t.Error("Expected session to stay closed")
		}
	})

	t.Run("init", func(t *testing.T) {
		u := sim.New(sim.WithInitError(boom))
		s := newTestSession(t, u)
		err := s.Open(func(any, *Session) {}, nil)
		if !errors.Is(err, ErrDriverError) {
			t.Errorf("Expected ErrDriverError, got %v", err)
		}
		if u.Powered() {
			t.Error("Expected device powered off after failed Init")
		}
		if s.IsOpen() {
			t.Error("Expected session to stay closed")
		}
	})

	t.Run("no memory", func(t *testing.T) {
		u := sim.New()
		s := newTestSession(t, u)
		s.config.RingCapacity = 0
		err := s.Open(func(any, *Session) {}, nil)
		if !errors.Is(err, ErrNoMemory) {
			t.Errorf("Expected ErrNoMemory, got %v", err)
		}
		if u.Powered() {
			t.Error("Expected device powered off after allocation failure")
		}
	})
}

func TestCloseGuards(t *testing.T) {
	var nilSession *Session
	if err := nilSession.Close(); !errors.Is(err, ErrBadParameter) {
		t.Errorf("Expected ErrBadParameter for nil session, got %v", err)
	}

	s := newTestSession(t, sim.New())
	if err := s.Close(); !errors.Is(err, ErrFailure) {
		t.Errorf("Expected ErrFailure for a session never opened, got %v", err)
	}
}

func TestOperationsWhenClosed(t *testing.T) {
	s := newTestSession(t, sim.New())

	if _, err := s.Send([]byte("a"), time.Millisecond); !errors.Is(err, ErrFailure) {
		t.Errorf("Expected ErrFailure from Send, got %v", err)
	}
	if _, err := s.Receive(make([]byte, 1), time.Millisecond); !errors.Is(err, ErrFailure) {
		t.Errorf("Expected ErrFailure from Receive, got %v", err)
	}
	if _, err := s.Send(nil, time.Millisecond); !errors.Is(err, ErrBadParameter) {
		t.Errorf("Expected ErrBadParameter for empty data, got %v", err)
	}
	if _, err := s.Receive(nil, time.Millisecond); !errors.Is(err, ErrBadParameter) {
		t.Errorf("Expected ErrBadParameter for empty buffer, got %v", err)
	}
}

func TestReopen(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	s.Send([]byte("one"), time.Second)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	cc := &callbackCounter{}
	if err := s.Open(cc.callback, nil); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if got := s.Stats().TxBytes; got != 0 {
		t.Errorf("Expected stats reset on reopen, got TxBytes %d", got)
	}

	u.Inject('x')
	waitFor(t, func() bool { return cc.calls.Load() == 1 })
}

func TestReceiveInOrder(t *testing.T) {
	u := sim.New()
	s, cc := openTestSession(t, u)

	want := []byte("+CSQ: 23,99\r\nOK\r\n")
	u.Inject(want...)
	waitFor(t, func() bool { return cc.calls.Load() == int64(len(want)) })

	buf := make([]byte, len(want))
	n, err := s.Receive(buf, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("Expected %q, got %q", want, buf[:n])
	}

	stats := s.Stats()
	if stats.RxBytes != uint64(len(want)) {
		t.Errorf("Expected RxBytes %d, got %d", len(want), stats.RxBytes)
	}
	if stats.RingPeak != len(want) {
		t.Errorf("Expected RingPeak %d, got %d", len(want), stats.RingPeak)
	}
}

func TestReceiveWaitsForData(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	go func() {
		time.Sleep(20 * time.Millisecond)
		u.Inject('O', 'K')
	}()

	buf := make([]byte, 2)
	n, err := s.Receive(buf, time.Second)
	if err != nil || string(buf[:n]) != "OK" {
		t.Errorf("Expected \"OK\", got %q (%v)", buf[:n], err)
	}
}

func TestReceiveTimeout(t *testing.T) {
	s, _ := openTestSession(t, sim.New())
	buf := make([]byte, 8)

	start := time.Now()
	n, err := s.Receive(buf, 0)
	if n != 0 || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected 0, ErrTimeout with zero timeout, got %d, %v", n, err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected immediate return, took %v", elapsed)
	}

	start = time.Now()
	n, err = s.Receive(buf, 30*time.Millisecond)
	if n != 0 || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected 0, ErrTimeout, got %d, %v", n, err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected to wait the full timeout, took %v", elapsed)
	}
}

func TestReceivePartialThenLineError(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u, WithReceiveWaitInterval(2*time.Second))

	go func() {
		time.Sleep(20 * time.Millisecond)
		u.Inject('a', 'b', 'c')
		for s.Stats().RxBytes < 3 {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		u.InjectLineError(hal.LineErrorFraming)
	}()

	buf := make([]byte, 10)
	start := time.Now()
	n, err := s.Receive(buf, 5*time.Second)
	if err != nil {
		t.Errorf("Expected success with partial data, got %v", err)
	}
	if string(buf[:n]) != "abc" {
		t.Errorf("Expected \"abc\", got %q", buf[:n])
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the line error to end the wait, took %v", elapsed)
	}
	if s.LastLineError() != hal.LineErrorFraming {
		t.Errorf("Expected framing error latched, got %v", s.LastLineError())
	}
}

func TestReceiveIgnoresEarlierLineError(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	u.Inject('a', 'b', 'c')
	u.InjectLineError(hal.LineErrorFraming)
	waitFor(t, func() bool { return s.Stats().LineErrors == 1 })

	buf := make([]byte, 10)
	n, err := s.Receive(buf, 50*time.Millisecond)
	if err != nil {
		t.Errorf("Expected success with partial data, got %v", err)
	}
	if string(buf[:n]) != "abc" {
		t.Errorf("Expected \"abc\", got %q", buf[:n])
	}
	if s.LastLineError() != hal.LineErrorFraming {
		t.Errorf("Expected framing error latched, got %v", s.LastLineError())
	}

	// Reception keeps working after the error
	u.Inject('d')
	n, err = s.Receive(buf, time.Second)
	if err != nil || string(buf[:n]) != "d" {
		t.Errorf("Expected \"d\" after the line error, got %q (%v)", buf[:n], err)
	}
}

func TestReceiveLineErrorWithoutData(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)

	go func() {
		time.Sleep(20 * time.Millisecond)
		u.InjectLineError(hal.LineErrorParity)
	}()

	n, err := s.Receive(make([]byte, 4), time.Second)
	if n != 0 || !errors.Is(err, ErrDriverError) {
		t.Errorf("Expected 0, ErrDriverError, got %d, %v", n, err)
	}
}

func TestSend(t *testing.T) {
	u := sim.New(sim.WithTransmitDelay(time.Millisecond))
	s, _ := openTestSession(t, u)

	n, err := s.Send([]byte("AT\r\n"), time.Second)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if n != 4 {
		t.Errorf("Expected 4 bytes sent, got %d", n)
	}
	if got := string(u.Written()); got != "AT\r\n" {
		t.Errorf("Expected %q on the wire, got %q", "AT\r\n", got)
	}
	if got := s.Stats().TxBytes; got != 4 {
		t.Errorf("Expected TxBytes 4, got %d", got)
	}
}

func TestSendBusyRetry(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetTransmitBusy(2)

	n, err := s.Send([]byte("AT"), time.Second)
	if err != nil || n != 2 {
		t.Errorf("Expected 2 bytes sent after retries, got %d (%v)", n, err)
	}
	if got := s.Stats().BusyRetries; got != 2 {
		t.Errorf("Expected 2 busy retries, got %d", got)
	}
}

func TestSendBusyExhausted(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetTransmitBusy(1000)

	n, err := s.Send([]byte("AT"), 10*time.Millisecond)
	if n != 0 {
		t.Errorf("Expected 0 bytes, got %d", n)
	}
	if !errors.Is(err, ErrTimeout) || !errors.Is(err, ErrBusy) {
		t.Errorf("Expected error matching ErrTimeout and ErrBusy, got %v", err)
	}
	if got := s.Stats().BusyRetries; got != 11 {
		t.Errorf("Expected 11 attempts, got %d", got)
	}
}

func TestSendPartial(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetPartialTransmit(2)

	n, err := s.Send([]byte("hello"), 30*time.Millisecond)
	if n != 2 || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected 2, ErrTimeout, got %d, %v", n, err)
	}
}

func TestSendStall(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetTransmitStall(true)

	start := time.Now()
	n, err := s.Send([]byte("hello"), 30*time.Millisecond)
	if n != 0 || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected 0, ErrTimeout, got %d, %v", n, err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected to wait the full timeout, took %v", elapsed)
	}
}

func TestSendDriverError(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetTransmitError(errors.New("boom"))

	n, err := s.Send([]byte("AT"), time.Second)
	if n != 0 || !errors.Is(err, ErrDriverError) {
		t.Errorf("Expected 0, ErrDriverError, got %d, %v", n, err)
	}
}

func TestSendTransmitFault(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u)
	u.SetTransmitFault()

	start := time.Now()
	n, err := s.Send([]byte("AT"), 2*time.Second)
	if n != 0 || !errors.Is(err, ErrDriverError) {
		t.Errorf("Expected 0, ErrDriverError, got %d, %v", n, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected the fault to end the send early, took %v", elapsed)
	}
	if StatusOf(err) != StatusDriverError {
		t.Errorf("Expected %v, got %v", StatusDriverError, StatusOf(err))
	}
}

func TestSendNegativeTimeout(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u, WithSendRetryInterval(10*time.Millisecond))

	_, err := s.Send([]byte("AT"), -time.Second)
	if errors.Is(err, ErrBusy) {
		t.Errorf("Expected a transmit attempt, got %v", err)
	}
	waitFor(t, func() bool { return string(u.Written()) == "AT" })
}

func TestSendRearmsReception(t *testing.T) {
	u := sim.New()
	u.SetArmFailures(1)
	s, cc := openTestSession(t, u)

	if !s.Busy() {
		t.Fatal("Expected session busy after failed arm on Open")
	}

	if _, err := s.Send([]byte("AT"), time.Second); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if s.Busy() {
		t.Error("Expected Send to re-arm reception")
	}

	u.Inject('x')
	waitFor(t, func() bool { return cc.calls.Load() == 1 })
}

func TestRearmAfterInterruptFailure(t *testing.T) {
	u := sim.New()
	s, cc := openTestSession(t, u)

	u.SetArmFailures(1)
	u.Inject('a', 'b')
	waitFor(t, func() bool { return cc.calls.Load() == 1 })

	time.Sleep(10 * time.Millisecond)
	if cc.calls.Load() != 1 {
		t.Fatalf("Expected reception stalled after failed re-arm, got %d callbacks", cc.calls.Load())
	}
	if !s.Busy() || s.Stats().RearmFailures != 1 {
		t.Errorf("Expected busy with one rearm failure, got busy=%v failures=%d", s.Busy(), s.Stats().RearmFailures)
	}

	s.Send([]byte("AT"), time.Second)
	waitFor(t, func() bool { return cc.calls.Load() == 2 })
}

func TestSendRearmGivesUp(t *testing.T) {
	u := sim.New()
	u.SetArmFailures(1000)
	s, _ := openTestSession(t, u)

	start := time.Now()
	n, err := s.Send([]byte("AT"), time.Second)
	if err != nil || n != 2 {
		t.Errorf("Expected the send itself to succeed, got %d (%v)", n, err)
	}
	if !s.Busy() {
		t.Error("Expected session to stay busy")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Expected re-arm attempts bounded by RearmTimeout, took %v", elapsed)
	}
}

func TestSendAndReceiveConcurrently(t *testing.T) {
	u := sim.New(sim.WithLoopback(), sim.WithTransmitDelay(5*time.Millisecond))
	s, _ := openTestSession(t, u)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	buf := make([]byte, 4)
	go func() {
		n, err := s.Receive(buf, time.Second)
		done <- result{n, err}
	}()

	time.Sleep(5 * time.Millisecond)
	if n, err := s.Send([]byte("ping"), time.Second); err != nil || n != 4 {
		t.Fatalf("Expected 4 bytes sent, got %d (%v)", n, err)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("Receive failed: %v", r.err)
	}

	// Receive may return early with a prefix; collect the rest
	got := append([]byte(nil), buf[:r.n]...)
	for len(got) < 4 {
		n, err := s.Receive(buf[:4-len(got)], time.Second)
		if err != nil {
			t.Fatalf("Receive failed: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	if string(got) != "ping" {
		t.Errorf("Expected \"ping\" looped back, got %q", got)
	}
}

func TestCloseBoundedWithoutAbortCompletion(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u, WithAbortTimeout(50*time.Millisecond))
	u.SetSilentAbort(true)

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("Expected Close to wait about AbortTimeout, took %v", elapsed)
	}
	if u.Powered() {
		t.Error("Expected device powered off")
	}
}

func TestCloseWithAbortCompletion(t *testing.T) {
	u := sim.New()
	s, _ := openTestSession(t, u, WithAbortTimeout(time.Second))

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected Close to return once the abort completed, took %v", elapsed)
	}
}

func TestOverrunPanics(t *testing.T) {
	s := newTestSession(t, sim.New())
	rx, err := ring.New(2)
	if err != nil {
		t.Fatalf("ring.New failed: %v", err)
	}
	b := &bridge{s: s, rx: rx, events: event.New()}

	b.ReceiveComplete('a')
	b.ReceiveComplete('b')

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrOverrun) {
			t.Errorf("Expected ErrOverrun panic, got %v", r)
		}
	}()
	b.ReceiveComplete('c')
	t.Error("Expected a panic on a full ring")
}

func TestBridgeAbortBits(t *testing.T) {
	s := newTestSession(t, sim.New())
	rx, _ := ring.New(4)
	events := event.New()
	b := &bridge{s: s, rx: rx, events: events}

	b.AbortComplete(hal.AbortTransmit)
	if got := events.Get(); got != evTxAborted {
		t.Errorf("Expected TX_ABORTED, got %b", got)
	}
	b.AbortComplete(hal.AbortReceive)
	if got := events.Get(); got != evTxAborted|evRxAborted {
		t.Errorf("Expected both abort bits, got %b", got)
	}
}

func TestBridgeDeviceErrorIsLatchedOnly(t *testing.T) {
	s := newTestSession(t, sim.New())
	rx, _ := ring.New(4)
	events := event.New()
	b := &bridge{s: s, rx: rx, events: events}

	b.LineError(hal.LineErrorDevice)
	if events.Get()&evRxError != 0 {
		t.Error("Expected a device error not to fail the receive")
	}
	if s.LastLineError() != hal.LineErrorDevice {
		t.Errorf("Expected device error latched, got %v", s.LastLineError())
	}
}

func TestStressAtLineRate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping line-rate stress test in short mode")
	}

	u := sim.New(sim.WithByteInterval(sim.ByteInterval(115200)))
	s, _ := openTestSession(t, u)

	const total = 1000
	want := make([]byte, total)
	for i := range want {
		want[i] = byte(i)
	}
	u.Inject(want...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make([]byte, total)
	n, err := ReceiveFull(ctx, s, got, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ReceiveFull failed after %d bytes: %v", n, err)
	}
	if !bytes.Equal(got, want) {
		t.Error("Expected every byte in order")
	}
	if peak := s.Stats().RingPeak; peak > s.Config().RingCapacity {
		t.Errorf("Expected ring peak within capacity, got %d", peak)
	}
}

func TestReceiveFull(t *testing.T) {
	u := sim.New()
	s, cc := openTestSession(t, u)

	u.Inject([]byte("0123456789")...)
	waitFor(t, func() bool { return cc.calls.Load() == 10 })

	buf := make([]byte, 10)
	n, err := ReceiveFull(context.Background(), s, buf, 50*time.Millisecond)
	if err != nil || string(buf[:n]) != "0123456789" {
		t.Errorf("Expected all 10 bytes, got %q (%v)", buf[:n], err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ReceiveFull(ctx, s, buf, 50*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	n, err = ReceiveFull(context.Background(), s, buf, 10*time.Millisecond)
	if n != 0 || !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected 0, ErrTimeout on a quiet line, got %d, %v", n, err)
	}
}
