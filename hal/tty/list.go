package tty

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// devDir and sysTTYDir are variables so tests can point them at fixtures
var (
	devDir    = "/dev"
	sysTTYDir = "/sys/class/tty"
)

// Serial device name patterns
var portPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^ttyUSB\d+$`),  // USB serial adapters
	regexp.MustCompile(`^ttyACM\d+$`),  // USB CDC/ACM devices, most cellular modems
	regexp.MustCompile(`^ttyS\d+$`),    // Standard serial ports
	regexp.MustCompile(`^ttyAMA\d+$`),  // ARM/Raspberry Pi serial
	regexp.MustCompile(`^ttymxc\d+$`),  // i.MX serial ports
	regexp.MustCompile(`^ttyTHS\d+$`),  // Tegra serial ports
	regexp.MustCompile(`^cu\.usb.+$`),  // macOS USB serial
}

// PortInfo describes a candidate serial device
type PortInfo struct {
	Name         string
	Path         string
	Description  string
	VendorID     string
	ProductID    string
	Manufacturer string
	Product      string
	SerialNumber string
	BusNumber    string // USB bus and device numbers, for reset
	DeviceNumber string
}

// ListPorts returns the serial devices found on the system, sorted by path
func ListPorts() ([]PortInfo, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []PortInfo
	for _, entry := range entries {
		name := entry.Name()
		if !matchesPort(name) {
			continue
		}

		path := filepath.Join(devDir, name)
		if !isCharacterDevice(path) {
			continue
		}

		info := PortInfo{
			Name:        name,
			Path:        path,
			Description: portDescription(name),
		}
		if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
			readUSBInfo(&info)
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// PortInfoFor returns information about a single device path
func PortInfoFor(path string) (PortInfo, error) {
	if !isCharacterDevice(path) {
		return PortInfo{}, ErrDeviceNotFound
	}
	name := filepath.Base(path)
	info := PortInfo{
		Name:        name,
		Path:        path,
		Description: portDescription(name),
	}
	if strings.HasPrefix(name, "ttyUSB") || strings.HasPrefix(name, "ttyACM") {
		readUSBInfo(&info)
	}
	return info, nil
}

func matchesPort(name string) bool {
	for _, pattern := range portPatterns {
		if pattern.MatchString(name) {
			return true
		}
	}
	return false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// portDescription provides human-readable descriptions for different port types
func portDescription(name string) string {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return "USB Serial Port"
	case strings.HasPrefix(name, "ttyACM"):
		return "USB CDC/ACM Device"
	case strings.HasPrefix(name, "ttyAMA"):
		return "ARM Serial Port"
	case strings.HasPrefix(name, "ttymxc"):
		return "i.MX Serial Port"
	case strings.HasPrefix(name, "ttyTHS"):
		return "Tegra Serial Port"
	case strings.HasPrefix(name, "ttyS"):
		return "Standard Serial Port"
	case strings.HasPrefix(name, "cu."):
		return "USB Serial Port"
	default:
		return "Serial Port"
	}
}

// readUSBInfo fills USB descriptor fields from sysfs. The tty's device link
// points at the USB interface; the descriptor files live on the device one
// or two levels up.
func readUSBInfo(info *PortInfo) {
	dev, err := filepath.EvalSymlinks(filepath.Join(sysTTYDir, info.Name, "device"))
	if err != nil {
		return
	}

	for dir := dev; dir != "/" && dir != "."; dir = filepath.Dir(dir) {
		vendor := readSysfs(dir, "idVendor")
		if vendor == "" {
			continue
		}
		info.VendorID = vendor
		info.ProductID = readSysfs(dir, "idProduct")
		info.Manufacturer = readSysfs(dir, "manufacturer")
		info.Product = readSysfs(dir, "product")
		info.SerialNumber = readSysfs(dir, "serial")
		info.BusNumber = readSysfs(dir, "busnum")
		info.DeviceNumber = readSysfs(dir, "devnum")
		if info.Product != "" {
			info.Description = info.Product
		}
		return
	}
}

func readSysfs(dir, name string) string {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
