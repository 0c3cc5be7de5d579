package tty

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var (
	ErrUSBResetNotAvailable = errors.New("usbreset utility not found")
	ErrNotUSB               = errors.New("device is not a USB device")
)

// reenumerateDelay is how long a modem takes to come back after a reset
var reenumerateDelay = 2 * time.Second

// runUSBReset and lookPath are variables so tests can stub the utility
var (
	runUSBReset = func(busDev string) ([]byte, error) {
		return exec.Command("usbreset", busDev).CombinedOutput()
	}
	lookPath = exec.LookPath
)

// USBResetAvailable reports whether the usbreset utility is in PATH
func USBResetAvailable() bool {
	_, err := lookPath("usbreset")
	return err == nil
}

// usbAddress formats bus and device numbers the way usbreset expects them
func usbAddress(info PortInfo) (string, error) {
	bus, err := strconv.Atoi(info.BusNumber)
	if err != nil {
		return "", ErrNotUSB
	}
	dev, err := strconv.Atoi(info.DeviceNumber)
	if err != nil {
		return "", ErrNotUSB
	}
	return fmt.Sprintf("%03d/%03d", bus, dev), nil
}

// ResetUSB performs a USB-level reset of the modem behind path, which
// recovers modems that stopped answering without a power cycle. The port
// path may change when the device re-enumerates. Needs usbreset from
// usbutils and usually root.
func ResetUSB(path string) error {
	info, err := PortInfoFor(path)
	if err != nil {
		return fmt.Errorf("port info: %w", err)
	}
	return resetUSB(info)
}

// ResetUSBBySerial resets the USB device with the given serial number
func ResetUSBBySerial(serial string) error {
	ports, err := ListPorts()
	if err != nil {
		return err
	}
	for _, info := range ports {
		if info.SerialNumber == serial {
			return resetUSB(info)
		}
	}
	return fmt.Errorf("serial %s: %w", serial, ErrDeviceNotFound)
}

func resetUSB(info PortInfo) error {
	addr, err := usbAddress(info)
	if err != nil {
		return err
	}
	if !USBResetAvailable() {
		return ErrUSBResetNotAvailable
	}
	if out, err := runUSBReset(addr); err != nil {
		return fmt.Errorf("usbreset %s failed: %w (output: %s)", addr, err, out)
	}
	time.Sleep(reenumerateDelay)
	return nil
}
