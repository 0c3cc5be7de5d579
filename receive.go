package cellcomm

import (
	"context"
	"time"
)

// ReceiveFull keeps calling Receive until buf is full, ctx is done, or a
// call returns an error with no data. Each call is bounded by timeout.
//
// It is the loop the modem stack is expected to run on top of Receive's
// partial-success results.
func ReceiveFull(ctx context.Context, s *Session, buf []byte, timeout time.Duration) (int, error) {
	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		step := timeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < step {
				step = remaining
			}
		}

		n, err := s.Receive(buf[total:], step)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
