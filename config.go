package cellcomm

import (
	"io"
	"log/slog"
	"time"

	"github.com/allbin/go-cellcomm/hal"
)

// DefaultRingCapacity is the receive ring size in bytes
const DefaultRingCapacity = 1600

// Config holds the configuration for a session
type Config struct {
	Line         hal.LineConfig
	RingCapacity int

	// SendRetryInterval is the pause between transmit attempts on a busy
	// device, and between attempts to re-arm reception after a send.
	SendRetryInterval time.Duration
	// ReceiveWaitInterval bounds each wait once Receive has some data
	ReceiveWaitInterval time.Duration
	// RearmTimeout bounds the re-arm retries after a send
	RearmTimeout time.Duration
	// AbortTimeout bounds the wait for abort completion in Close
	AbortTimeout time.Duration

	Logger *slog.Logger
}

// Option is a functional option for configuring a session
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		Line:                hal.DefaultLineConfig(),
		RingCapacity:        DefaultRingCapacity,
		SendRetryInterval:   20 * time.Millisecond,
		ReceiveWaitInterval: 5 * time.Millisecond,
		RearmTimeout:        2000 * time.Millisecond,
		AbortTimeout:        500 * time.Millisecond,
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRingCapacity sets the receive ring size in bytes
func WithRingCapacity(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return ErrBadParameter
		}
		c.RingCapacity = n
		return nil
	}
}

// WithLineConfig overrides the line parameters passed to the device
func WithLineConfig(line hal.LineConfig) Option {
	return func(c *Config) error {
		if line.BaudRate <= 0 || line.DataBits < 5 || line.DataBits > 8 {
			return ErrBadParameter
		}
		if line.StopBits != 1 && line.StopBits != 2 {
			return ErrBadParameter
		}
		c.Line = line
		return nil
	}
}

// WithSendRetryInterval sets the busy-device retry interval
func WithSendRetryInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrBadParameter
		}
		c.SendRetryInterval = d
		return nil
	}
}

// WithReceiveWaitInterval sets the tail wait used once data has arrived
func WithReceiveWaitInterval(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return ErrBadParameter
		}
		c.ReceiveWaitInterval = d
		return nil
	}
}

// WithRearmTimeout sets how long a send keeps trying to re-arm reception
func WithRearmTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrBadParameter
		}
		c.RearmTimeout = d
		return nil
	}
}

// WithAbortTimeout sets how long Close waits for the device to abort
func WithAbortTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return ErrBadParameter
		}
		c.AbortTimeout = d
		return nil
	}
}

// WithLogger sets the logger used from task context
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		if l == nil {
			return ErrBadParameter
		}
		c.Logger = l
		return nil
	}
}
