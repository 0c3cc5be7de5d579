package cellcomm

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusSuccess},
		{"failure", ErrFailure, StatusFailure},
		{"bad parameter", ErrBadParameter, StatusBadParameter},
		{"no memory", fmt.Errorf("%w: ring", ErrNoMemory), StatusNoMemory},
		{"driver error", fmt.Errorf("%w: start transmit: boom", ErrDriverError), StatusDriverError},
		{"busy", ErrBusy, StatusBusy},
		{"timeout", ErrTimeout, StatusTimeout},
		{"busy send timeout", fmt.Errorf("%w: %w", ErrTimeout, ErrBusy), StatusTimeout},
		{"foreign error", errors.New("something else"), StatusFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if StatusDriverError.String() != "driver error" {
		t.Errorf("Expected \"driver error\", got %q", StatusDriverError.String())
	}
	if Status(99).String() != "unknown" {
		t.Errorf("Expected \"unknown\", got %q", Status(99).String())
	}
}
