//go:build !linux

package tty

import (
	"errors"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/allbin/go-cellcomm/hal"
)

// tarmLink drives the port through github.com/tarm/serial, which has no
// hardware flow control, drain or modem line access.
type tarmLink struct {
	port *serial.Port
}

func openLink(path string, cfg hal.LineConfig) (link, error) {
	c := &serial.Config{
		Name:        path,
		Baud:        cfg.BaudRate,
		Size:        byte(cfg.DataBits),
		ReadTimeout: 100 * time.Millisecond,
	}

	switch cfg.Parity {
	case hal.ParityOdd:
		c.Parity = serial.ParityOdd
	case hal.ParityEven:
		c.Parity = serial.ParityEven
	default:
		c.Parity = serial.ParityNone
	}

	if cfg.StopBits == 2 {
		c.StopBits = serial.Stop2
	} else {
		c.StopBits = serial.Stop1
	}

	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return &tarmLink{port: port}, nil
}

func (l *tarmLink) Read(p []byte) (int, error) {
	n, err := l.port.Read(p)
	if errors.Is(err, io.EOF) {
		// Read timeout
		return n, nil
	}
	return n, err
}

func (l *tarmLink) Write(p []byte, cancel <-chan struct{}) (int, error) {
	select {
	case <-cancel:
		return 0, errors.New("write cancelled")
	default:
	}
	return l.port.Write(p)
}

func (l *tarmLink) Drain() error {
	return nil
}

func (l *tarmLink) Flush() error {
	return l.port.Flush()
}

func (l *tarmLink) Signals() (Signals, error) {
	return Signals{}, ErrUnsupported
}

func (l *tarmLink) Close() error {
	return l.port.Close()
}
