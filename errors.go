package cellcomm

import "errors"

// Predefined error types for robust error handling
var (
	ErrBadParameter = errors.New("bad parameter")
	ErrFailure      = errors.New("invalid session state")
	ErrNoMemory     = errors.New("cannot allocate session resources")
	ErrDriverError  = errors.New("serial driver error")
	ErrBusy         = errors.New("serial device busy")
	ErrTimeout      = errors.New("operation timed out")

	// ErrOverrun is the panic value raised when a received byte finds the
	// ring buffer full. It means the link is not flow controlled.
	ErrOverrun = errors.New("receive ring buffer overrun")
)

// Status is the result code form of the errors above, for callers that
// speak in status values rather than Go errors.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusBadParameter
	StatusNoMemory
	StatusDriverError
	StatusBusy
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusBadParameter:
		return "bad parameter"
	case StatusNoMemory:
		return "no memory"
	case StatusDriverError:
		return "driver error"
	case StatusBusy:
		return "busy"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// StatusOf maps an error returned by a Session to its Status.
// A send that gave up on a busy device reports StatusTimeout.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrBadParameter):
		return StatusBadParameter
	case errors.Is(err, ErrNoMemory):
		return StatusNoMemory
	case errors.Is(err, ErrDriverError):
		return StatusDriverError
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrBusy):
		return StatusBusy
	default:
		return StatusFailure
	}
}
