// Package usb opens the capture device through the Linux usbfs interface
// and exposes its bulk IN endpoint as a capture.Endpoint.
package usb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsUSBPath is the base path for USB devices in sysfs.
const SysfsUSBPath = "/sys/bus/usb/devices"

// DevfsUSBPath is the base path for USB device nodes.
const DevfsUSBPath = "/dev/bus/usb"

var (
	// ErrNoDevice is returned when no device matches the requested IDs.
	ErrNoDevice = errors.New("usb: no device found")

	// ErrUnsupported is returned on platforms without usbfs.
	ErrUnsupported = errors.New("usb: usbfs is only available on linux")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("usb: device closed")
)

// DeviceInfo describes a USB device found in sysfs.
type DeviceInfo struct {
	SysfsPath string
	DevPath   string
	Bus       uint8
	Address   uint8
	VendorID  uint16
	ProductID uint16
	Speed     string
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%04x:%04x bus %03d device %03d", i.VendorID, i.ProductID, i.Bus, i.Address)
}

// Find returns the first device below the sysfs directory root with the
// given vendor and product ID.
func Find(root string, vid, pid uint16) (DeviceInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return DeviceInfo{}, err
	}

	for _, entry := range entries {
		name := entry.Name()

		// devices are named like "1-1" or "1-1.2"; skip root hubs and
		// interfaces
		if strings.HasPrefix(name, "usb") || strings.Contains(name, ":") {
			continue
		}

		info, err := parseDevice(filepath.Join(root, name))
		if err != nil {
			continue
		}
		if info.VendorID == vid && info.ProductID == pid {
			return info, nil
		}
	}
	return DeviceInfo{}, fmt.Errorf("%w: %04x:%04x", ErrNoDevice, vid, pid)
}

func parseDevice(path string) (DeviceInfo, error) {
	info := DeviceInfo{SysfsPath: path}

	bus, err := readUint(filepath.Join(path, "busnum"), 10, 8)
	if err != nil {
		return info, err
	}
	dev, err := readUint(filepath.Join(path, "devnum"), 10, 8)
	if err != nil {
		return info, err
	}
	vid, err := readUint(filepath.Join(path, "idVendor"), 16, 16)
	if err != nil {
		return info, err
	}
	pid, err := readUint(filepath.Join(path, "idProduct"), 16, 16)
	if err != nil {
		return info, err
	}

	info.Bus = uint8(bus)
	info.Address = uint8(dev)
	info.VendorID = uint16(vid)
	info.ProductID = uint16(pid)
	info.DevPath = DevPath(info.Bus, info.Address)
	if s, err := readString(filepath.Join(path, "speed")); err == nil {
		info.Speed = s
	}
	return info, nil
}

// DevPath returns the usbfs node for a bus and device address.
func DevPath(bus, addr uint8) string {
	return fmt.Sprintf("%s/%03d/%03d", DevfsUSBPath, bus, addr)
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readUint(path string, base, bits int) (uint64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, base, bits)
}
