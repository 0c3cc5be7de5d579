//go:build linux

package tty

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/allbin/go-cellcomm/hal"
)

// pollTimeout bounds every blocking wait so the loops notice stop and cancel
const pollTimeout = 100 // ms

type fdLink struct {
	fd int
}

func openLink(path string, cfg hal.LineConfig) (link, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	if err := configurePort(fd, cfg); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Tell the modem we are present and ready. Non-fatal; pseudo terminals
	// and some adapters have no modem lines.
	_ = setDTR(fd, true)
	if cfg.FlowControl == hal.FlowControlRTSCTS {
		_ = setRTS(fd, true)
	}

	return &fdLink{fd: fd}, nil
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 2000000:
		return unix.B2000000, nil
	case 3000000:
		return unix.B3000000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaud
	}
}

// configurePort puts the line into raw mode with the given parameters
func configurePort(fd int, cfg hal.LineConfig) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %v", err)
	}

	baud, err := getBaudRate(cfg.BaudRate)
	if err != nil {
		return err
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = unix.INPCK
	termios.Oflag = 0
	termios.Lflag = 0
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	switch cfg.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if cfg.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch cfg.Parity {
	case hal.ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case hal.ParityEven:
		termios.Cflag |= unix.PARENB
	default:
		termios.Iflag &^= unix.INPCK
	}

	if cfg.FlowControl == hal.FlowControlRTSCTS {
		termios.Cflag |= unix.CRTSCTS
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %v", err)
	}
	return nil
}

// setDTR sets DTR signal state
func setDTR(fd int, state bool) error {
	if state {
		return unix.IoctlSetInt(fd, unix.TIOCMBIS, unix.TIOCM_DTR)
	}
	return unix.IoctlSetInt(fd, unix.TIOCMBIC, unix.TIOCM_DTR)
}

// setRTS sets RTS signal state
func setRTS(fd int, state bool) error {
	if state {
		return unix.IoctlSetInt(fd, unix.TIOCMBIS, unix.TIOCM_RTS)
	}
	return unix.IoctlSetInt(fd, unix.TIOCMBIC, unix.TIOCM_RTS)
}

// signalsFromStatus decodes a TIOCMGET word
func signalsFromStatus(status int) Signals {
	return Signals{
		CTS: status&unix.TIOCM_CTS != 0,
		DSR: status&unix.TIOCM_DSR != 0,
		RI:  status&unix.TIOCM_RI != 0,
		DCD: status&unix.TIOCM_CAR != 0,
		RTS: status&unix.TIOCM_RTS != 0,
		DTR: status&unix.TIOCM_DTR != 0,
	}
}

// wait polls fd for events, returning false on timeout
func (l *fdLink) wait(events int16) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: events}}
	n, err := unix.Poll(fds, pollTimeout)
	if errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false, fmt.Errorf("poll: revents %#x", fds[0].Revents)
	}
	return n > 0, nil
}

func (l *fdLink) Read(p []byte) (int, error) {
	ready, err := l.wait(unix.POLLIN)
	if err != nil || !ready {
		return 0, err
	}
	n, err := unix.Read(l.fd, p)
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if n < 0 {
		n = 0
	}
	return n, err
}

func (l *fdLink) Write(p []byte, cancel <-chan struct{}) (int, error) {
	written := 0
	for written < len(p) {
		select {
		case <-cancel:
			return written, errors.New("write cancelled")
		default:
		}

		n, err := unix.Write(l.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN):
			// Output queue full, usually CTS deasserted
			if _, err := l.wait(unix.POLLOUT); err != nil {
				return written, err
			}
		case errors.Is(err, unix.EINTR):
		default:
			return written, err
		}
	}
	return written, nil
}

func (l *fdLink) Drain() error {
	return unix.IoctlSetInt(l.fd, unix.TCSBRK, 1)
}

func (l *fdLink) Flush() error {
	return unix.IoctlSetInt(l.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

func (l *fdLink) Signals() (Signals, error) {
	status, err := unix.IoctlGetInt(l.fd, unix.TIOCMGET)
	if err != nil {
		return Signals{}, err
	}
	return signalsFromStatus(status), nil
}

func (l *fdLink) Close() error {
	setDTR(l.fd, false)
	return unix.Close(l.fd)
}
