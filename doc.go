// Package cellcomm provides the serial transport a cellular modem command
// stack talks through: four operations (open, send, receive, close) on top
// of an interrupt-driven byte device.
//
// Received bytes are pushed one at a time by the device's interrupt context
// into a lock-free ring buffer. Completions reach the calling goroutine
// through an event group that supports waiting for any of several
// independent conditions with a timeout.
//
// # Basic Usage
//
// Open a session on a serial device (115200 8N1, RTS/CTS flow control):
//
//	dev := tty.New("/dev/ttyUSB0")
//	s, err := cellcomm.New(dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ready := make(chan struct{}, 1)
//	err = s.Open(func(_ any, _ *cellcomm.Session) {
//	    select {
//	    case ready <- struct{}{}:
//	    default:
//	    }
//	}, nil)
//	defer s.Close()
//
//	n, err := s.Send([]byte("AT\r\n"), time.Second)
//	<-ready
//	buf := make([]byte, 128)
//	n, err = s.Receive(buf, time.Second)
//
// # Receive Callback
//
// The callback passed to Open runs in the device's interrupt context, once
// per received byte while no Receive call is draining the buffer. It must
// not block. Use it to wake a goroutine, never to do the work.
//
// # Partial Results
//
// Receive reports success whenever it copied at least one byte, even if the
// call then ended on a timeout, a line error or an abort. Only a call that
// returned no data reports the failure. Callers loop for the remainder; see
// ReceiveFull.
//
// # Error Handling
//
// Failures are returned as errors matching the sentinels in this package:
//
//	var (
//	    ErrBadParameter // nil session, callback or empty buffer
//	    ErrFailure      // open when open, or operate when closed
//	    ErrNoMemory     // ring buffer or event group unavailable
//	    ErrDriverError  // device configuration, transmit or line failure
//	    ErrBusy         // device stayed busy; wrapped with ErrTimeout
//	    ErrTimeout      // deadline passed
//	)
//
// A receive ring overrun is not returned: the handler panics with
// ErrOverrun, because it can only happen on a link that is not flow
// controlled.
//
// # Default Configuration
//
//   - Line: 115200 baud, 8 data bits, 1 stop bit, no parity, RTS/CTS
//   - RingCapacity: 1600 bytes
//   - SendRetryInterval: 20ms
//   - ReceiveWaitInterval: 5ms
//   - RearmTimeout: 2s
//   - AbortTimeout: 500ms
package cellcomm
