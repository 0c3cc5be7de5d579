package sim

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/allbin/go-cellcomm/hal"
)

// recorder re-arms reception after every byte, like a session does
type recorder struct {
	u *UART

	mu     sync.Mutex
	rx     []byte
	errs   []hal.LineError
	tx     int
	txErrs int
	aborts []hal.AbortKind
}

func (r *recorder) ReceiveComplete(b byte) {
	r.mu.Lock()
	r.rx = append(r.rx, b)
	r.mu.Unlock()
	r.u.StartReceive()
}

func (r *recorder) TransmitComplete() {
	r.mu.Lock()
	r.tx++
	r.mu.Unlock()
}

func (r *recorder) TransmitError() {
	r.mu.Lock()
	r.txErrs++
	r.mu.Unlock()
}

func (r *recorder) LineError(code hal.LineError) {
	r.mu.Lock()
	r.errs = append(r.errs, code)
	r.mu.Unlock()
	r.u.StartReceive()
}

func (r *recorder) AbortComplete(kind hal.AbortKind) {
	r.mu.Lock()
	r.aborts = append(r.aborts, kind)
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]byte, []hal.LineError, int, []hal.AbortKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.rx...), append([]hal.LineError(nil), r.errs...), r.tx, append([]hal.AbortKind(nil), r.aborts...)
}

func eventually(t *testing.T, cond func() bool) {
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

func setup(t *testing.T, opts ...Option) (*UART, *recorder) {
	t.Helper()
	u := New(opts...)
	r := &recorder{u: u}
	if err := u.PowerOn(); err != nil {
		t.Fatalf("PowerOn failed: %v", err)
	}
	if err := u.Init(hal.DefaultLineConfig(), r); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { u.DeInit() })
	return u, r
}

func TestInitRequiresPower(t *testing.T) {
	u := New()
	if err := u.Init(hal.DefaultLineConfig(), &recorder{u: u}); !errors.Is(err, ErrNotPowered) {
		t.Errorf("Expected ErrNotPowered, got %v", err)
	}
}

func TestInjectedErrors(t *testing.T) {
	boom := errors.New("boom")

	u := New(WithPowerOnError(boom))
	if err := u.PowerOn(); !errors.Is(err, boom) {
		t.Errorf("Expected power on error, got %v", err)
	}

	u = New(WithInitError(boom))
	u.PowerOn()
	if err := u.Init(hal.DefaultLineConfig(), &recorder{u: u}); !errors.Is(err, boom) {
		t.Errorf("Expected init error, got %v", err)
	}
	if u.Configured() {
		t.Error("Expected device to stay unconfigured")
	}
}

func TestBytesHeldUntilArmed(t *testing.T) {
	u, r := setup(t)

	u.Inject('a', 'b')
	time.Sleep(20 * time.Millisecond)
	if rx, _, _, _ := r.snapshot(); len(rx) != 0 {
		t.Fatalf("Expected no bytes before arming, got %q", rx)
	}

	if err := u.StartReceive(); err != nil {
		t.Fatalf("StartReceive failed: %v", err)
	}
	eventually(t, func() bool {
		rx, _, _, _ := r.snapshot()
		return string(rx) == "ab"
	})
}

func TestStartReceiveTwiceIsBusy(t *testing.T) {
	u, _ := setup(t)

	if err := u.StartReceive(); err != nil {
		t.Fatalf("StartReceive failed: %v", err)
	}
	if err := u.StartReceive(); !errors.Is(err, hal.ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
}

func TestArmFailures(t *testing.T) {
	u, _ := setup(t)
	u.SetArmFailures(2)

	for i := 0; i < 2; i++ {
		if err := u.StartReceive(); !errors.Is(err, hal.ErrBusy) {
			t.Errorf("Attempt %d: expected ErrBusy, got %v", i, err)
		}
	}
	if err := u.StartReceive(); err != nil {
		t.Errorf("Expected third attempt to arm, got %v", err)
	}
}

func TestLineErrorOrdering(t *testing.T) {
	u, r := setup(t)

	u.Inject('x', 'y')
	u.InjectLineError(hal.LineErrorFraming)
	u.Inject('z')
	u.StartReceive()

	eventually(t, func() bool {
		rx, _, _, _ := r.snapshot()
		return string(rx) == "xyz"
	})
	_, errs, _, _ := r.snapshot()
	if len(errs) != 1 || errs[0] != hal.LineErrorFraming {
		t.Errorf("Expected one framing error, got %v", errs)
	}
}

func TestTransmit(t *testing.T) {
	u, r := setup(t, WithTransmitDelay(time.Millisecond))

	if err := u.StartTransmit([]byte("AT\r\n")); err != nil {
		t.Fatalf("StartTransmit failed: %v", err)
	}
	if err := u.StartTransmit([]byte("x")); !errors.Is(err, hal.ErrBusy) {
		t.Errorf("Expected ErrBusy while transmitting, got %v", err)
	}

	eventually(t, func() bool {
		_, _, tx, _ := r.snapshot()
		return tx == 1
	})
	if got := string(u.Written()); got != "AT\r\n" {
		t.Errorf("Expected written %q, got %q", "AT\r\n", got)
	}
	if u.Transferred() != 4 {
		t.Errorf("Expected 4 bytes transferred, got %d", u.Transferred())
	}
}

func TestTransmitKnobs(t *testing.T) {
	u, r := setup(t)

	u.SetTransmitBusy(1)
	if err := u.StartTransmit([]byte("a")); !errors.Is(err, hal.ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	boom := errors.New("boom")
	u.SetTransmitError(boom)
	if err := u.StartTransmit([]byte("a")); !errors.Is(err, boom) {
		t.Errorf("Expected transmit error, got %v", err)
	}
	u.SetTransmitError(nil)

	u.SetPartialTransmit(2)
	if err := u.StartTransmit([]byte("hello")); err != nil {
		t.Fatalf("StartTransmit failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if u.Transferred() != 2 {
		t.Errorf("Expected 2 bytes transferred, got %d", u.Transferred())
	}
	if _, _, tx, _ := r.snapshot(); tx != 0 {
		t.Errorf("Expected no completion for a partial transmit, got %d", tx)
	}

	if err := u.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	eventually(t, func() bool {
		_, _, _, aborts := r.snapshot()
		return len(aborts) == 1 && aborts[0] == hal.AbortBoth
	})

	// The transmitter is free again after the abort
	if err := u.StartTransmit([]byte("ok")); err != nil {
		t.Errorf("Expected transmit after abort, got %v", err)
	}
}

func TestTransmitFault(t *testing.T) {
	u, r := setup(t)
	u.SetTransmitFault()

	if err := u.StartTransmit([]byte("AT\r\n")); err != nil {
		t.Fatalf("StartTransmit failed: %v", err)
	}
	eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.txErrs == 1
	})
	if _, _, tx, _ := r.snapshot(); tx != 0 {
		t.Errorf("Expected no completion for a failed transmit, got %d", tx)
	}
	if u.Transferred() != 0 || len(u.Written()) != 0 {
		t.Errorf("Expected nothing on the wire, got %d transferred, written %q", u.Transferred(), u.Written())
	}

	// The fault is one-shot
	if err := u.StartTransmit([]byte("ok")); err != nil {
		t.Fatalf("StartTransmit failed: %v", err)
	}
	eventually(t, func() bool {
		_, _, tx, _ := r.snapshot()
		return tx == 1
	})
}

func TestStallAndSilentAbort(t *testing.T) {
	u, r := setup(t)
	u.SetTransmitStall(true)
	u.SetSilentAbort(true)

	u.StartTransmit([]byte("abc"))
	u.Abort()
	time.Sleep(20 * time.Millisecond)

	_, _, tx, aborts := r.snapshot()
	if tx != 0 || len(aborts) != 0 {
		t.Errorf("Expected no interrupts, got tx=%d aborts=%v", tx, aborts)
	}
}

func TestLoopback(t *testing.T) {
	u, r := setup(t, WithLoopback())
	u.StartReceive()

	u.StartTransmit([]byte("ping"))
	eventually(t, func() bool {
		rx, _, _, _ := r.snapshot()
		return string(rx) == "ping"
	})
}

func TestByteIntervalPacing(t *testing.T) {
	interval := 2 * time.Millisecond
	u, r := setup(t, WithByteInterval(interval))
	u.StartReceive()

	start := time.Now()
	u.Inject(make([]byte, 10)...)
	eventually(t, func() bool {
		rx, _, _, _ := r.snapshot()
		return len(rx) == 10
	})
	if elapsed := time.Since(start); elapsed < 9*interval {
		t.Errorf("Expected at least %v for 10 paced bytes, got %v", 9*interval, elapsed)
	}
}

func TestDeInitStopsInterrupts(t *testing.T) {
	u, r := setup(t)

	if err := u.DeInit(); err != nil {
		t.Fatalf("DeInit failed: %v", err)
	}
	if u.Configured() {
		t.Error("Expected device unconfigured after DeInit")
	}
	if err := u.StartReceive(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}

	u.Inject('q')
	time.Sleep(10 * time.Millisecond)
	if rx, _, _, _ := r.snapshot(); len(rx) != 0 {
		t.Errorf("Expected no bytes after DeInit, got %q", rx)
	}
}

func TestByteInterval(t *testing.T) {
	if got := ByteInterval(115200); got != 86805*time.Nanosecond {
		t.Errorf("Expected 86.805µs, got %v", got)
	}
}

func TestResponder(t *testing.T) {
	u, r := setup(t, WithResponder(func(sent []byte) []byte {
		return append(append([]byte(nil), sent...), "OK"...)
	}))
	u.StartReceive()

	u.StartTransmit([]byte("AT"))
	eventually(t, func() bool {
		rx, _, _, _ := r.snapshot()
		return string(rx) == "ATOK"
	})
}
