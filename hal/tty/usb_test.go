package tty

import (
	"errors"
	"os/exec"
	"testing"
)

func TestUSBAddress(t *testing.T) {
	tests := []struct {
		name    string
		bus     string
		dev     string
		want    string
		wantErr error
	}{
		{"single digits", "1", "7", "001/007", nil},
		{"three digits", "3", "114", "003/114", nil},
		{"missing bus", "", "7", "", ErrNotUSB},
		{"garbage", "1", "x", "", ErrNotUSB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := usbAddress(PortInfo{BusNumber: tt.bus, DeviceNumber: tt.dev})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func stubUSBReset(t *testing.T, available bool, run func(string) ([]byte, error)) {
	t.Helper()
	oldRun, oldLook, oldDelay := runUSBReset, lookPath, reenumerateDelay
	t.Cleanup(func() { runUSBReset, lookPath, reenumerateDelay = oldRun, oldLook, oldDelay })

	reenumerateDelay = 0
	runUSBReset = run
	lookPath = func(string) (string, error) {
		if available {
			return "/usr/bin/usbreset", nil
		}
		return "", exec.ErrNotFound
	}
}

func TestResetUSB(t *testing.T) {
	var got string
	stubUSBReset(t, true, func(addr string) ([]byte, error) {
		got = addr
		return nil, nil
	})

	if err := resetUSB(PortInfo{BusNumber: "2", DeviceNumber: "5"}); err != nil {
		t.Fatalf("resetUSB failed: %v", err)
	}
	if got != "002/005" {
		t.Errorf("Expected usbreset 002/005, got %q", got)
	}
}

func TestResetUSBFailures(t *testing.T) {
	stubUSBReset(t, false, func(string) ([]byte, error) {
		t.Fatal("usbreset must not run")
		return nil, nil
	})
	if err := resetUSB(PortInfo{}); !errors.Is(err, ErrNotUSB) {
		t.Errorf("Expected ErrNotUSB, got %v", err)
	}
	if err := resetUSB(PortInfo{BusNumber: "1", DeviceNumber: "2"}); !errors.Is(err, ErrUSBResetNotAvailable) {
		t.Errorf("Expected ErrUSBResetNotAvailable, got %v", err)
	}

	boom := errors.New("exit status 1")
	stubUSBReset(t, true, func(string) ([]byte, error) { return []byte("permission denied"), boom })
	if err := resetUSB(PortInfo{BusNumber: "1", DeviceNumber: "2"}); !errors.Is(err, boom) {
		t.Errorf("Expected usbreset error, got %v", err)
	}
}

func TestResetUSBBySerialNotFound(t *testing.T) {
	old := devDir
	devDir = t.TempDir()
	defer func() { devDir = old }()

	if err := ResetUSBBySerial("NOPE"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
}
