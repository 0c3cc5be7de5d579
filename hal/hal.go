// Package hal defines the boundary between a cellcomm session and the
// physical serial device beneath it.
//
// A Device is driven from the session's task context. The device reports
// completions back through Interrupts from its own interrupt context: a
// goroutine that runs each handler to completion and never expects it to
// block.
package hal

import "errors"

// ErrBusy is returned by StartTransmit while a previous transmit is still in
// flight, and by StartReceive when reception cannot be armed right now.
var ErrBusy = errors.New("device busy")

// FlowControl represents the flow control mode
type FlowControl int

const (
	FlowControlNone FlowControl = iota
	FlowControlRTSCTS
)

func (f FlowControl) String() string {
	switch f {
	case FlowControlNone:
		return "none"
	case FlowControlRTSCTS:
		return "rts/cts"
	default:
		return "unknown"
	}
}

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// Letter returns the conventional one-letter form used in "8N1"
func (p Parity) Letter() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "N"
	}
}

// LineConfig holds the line parameters a device is initialised with
type LineConfig struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	FlowControl FlowControl
}

// DefaultLineConfig returns 115200 8N1 with RTS/CTS flow control
func DefaultLineConfig() LineConfig {
	return LineConfig{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		FlowControl: FlowControlRTSCTS,
	}
}

// LineError is a bitmask of receive-side error conditions
type LineError uint32

const (
	LineErrorParity LineError = 1 << iota
	LineErrorNoise
	LineErrorFraming
	LineErrorOverrun
	// LineErrorDevice reports a failure of the device itself (for example a
	// read error from the OS). It is latched but is not a line error class.
	LineErrorDevice
)

// LineErrorClasses are the conditions that fail an in-progress receive
const LineErrorClasses = LineErrorParity | LineErrorNoise | LineErrorFraming | LineErrorOverrun

func (e LineError) String() string {
	if e == 0 {
		return "none"
	}
	names := []struct {
		bit  LineError
		name string
	}{
		{LineErrorParity, "parity"},
		{LineErrorNoise, "noise"},
		{LineErrorFraming, "framing"},
		{LineErrorOverrun, "overrun"},
		{LineErrorDevice, "device"},
	}
	s := ""
	for _, n := range names {
		if e&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
	}
	return s
}

// AbortKind says which half of the device finished aborting
type AbortKind uint8

const (
	AbortTransmit AbortKind = 1 << iota
	AbortReceive
	AbortBoth = AbortTransmit | AbortReceive
)

// Interrupts receives device completions. Implementations are called from
// the device's interrupt context and must return promptly.
type Interrupts interface {
	// ReceiveComplete delivers one byte. Reception is disarmed until the
	// next StartReceive.
	ReceiveComplete(b byte)
	// TransmitComplete reports that the last StartTransmit finished
	TransmitComplete()
	// TransmitError reports that the last StartTransmit failed before any
	// byte went out
	TransmitError()
	// LineError reports a receive error. Reception is disarmed.
	LineError(code LineError)
	// AbortComplete reports that an Abort finished
	AbortComplete(kind AbortKind)
}

// Device is a byte-oriented asynchronous serial device with modem power
// control.
type Device interface {
	PowerOn() error
	PowerOff()

	// Init configures the line and attaches the interrupt handlers
	Init(cfg LineConfig, irq Interrupts) error
	// DeInit detaches the handlers; no interrupt is delivered afterwards
	DeInit() error

	// StartReceive arms reception of a single byte
	StartReceive() error
	// StartTransmit begins sending p and returns without waiting.
	// The device may keep p until TransmitComplete or Abort.
	StartTransmit(p []byte) error
	// Transferred returns how many bytes of the last transmit went out
	Transferred() int

	// Abort cancels any transmit or receive in flight
	Abort() error
}
