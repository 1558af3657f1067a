package firmware

import (
	"fmt"
	"time"

	"digitalrgb/logging"
)

// FX2 loader constants.
const (
	// RequestWriteRAM is the vendor request handled by the FX2 boot ROM.
	RequestWriteRAM = 0xa0

	// CPUCS is the CPU control and status register; writing 1 holds the
	// 8051 in reset, writing 0 lets it run.
	CPUCS = 0xe600

	// MaxChunk is the largest data stage sent in one request.
	MaxChunk = 64

	requestTypeVendorOut = 0x40
)

// ControlWriter performs control transfers on the default endpoint.
type ControlWriter interface {
	Control(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error)
}

// WriteRAM writes data to FX2 RAM at addr in chunks of at most MaxChunk
// bytes.
func WriteRAM(dev ControlWriter, addr uint32, data []byte, timeout time.Duration) error {
	if addr+uint32(len(data)) > 0x10000 {
		return fmt.Errorf("write %d bytes at %#04x: beyond the 16-bit address space", len(data), addr)
	}
	for i := 0; i < len(data); i += MaxChunk {
		chunk := data[i:min(i+MaxChunk, len(data))]
		at := addr + uint32(i)
		n, err := dev.Control(requestTypeVendorOut, RequestWriteRAM, uint16(at), 0, chunk, timeout)
		if err != nil {
			return fmt.Errorf("write RAM at %#04x (len %d): %w", at, len(chunk), err)
		}
		if n != len(chunk) {
			return fmt.Errorf("write RAM at %#04x: short write %d/%d", at, n, len(chunk))
		}
	}
	return nil
}

// Load holds the CPU in reset, writes every segment of img and then
// starts the CPU.
func Load(dev ControlWriter, img *Image, timeout time.Duration) error {
	if err := WriteRAM(dev, CPUCS, []byte{1}, timeout); err != nil {
		return fmt.Errorf("reset CPU: %w", err)
	}
	for _, s := range img.Segments {
		if err := WriteRAM(dev, s.Addr, s.Data, timeout); err != nil {
			return err
		}
	}
	if err := WriteRAM(dev, CPUCS, []byte{0}, timeout); err != nil {
		return fmt.Errorf("run CPU: %w", err)
	}

	logging.Info(logging.ComponentFirmware, "firmware loaded",
		"segments", len(img.Segments), "bytes", img.Size())
	return nil
}

// LoadFile parses the image at path and loads it. An empty path loads
// nothing and returns false; the board must then already be running
// streaming firmware, so a warning is logged.
func LoadFile(dev ControlWriter, path string, timeout time.Duration) (bool, error) {
	if path == "" {
		logging.Warn(logging.ComponentFirmware,
			"no firmware image configured; a freshly powered board will not stream until one is loaded with -firmware")
		return false, nil
	}
	img, err := ParseFile(path)
	if err != nil {
		return false, err
	}
	if err := Load(dev, img, timeout); err != nil {
		return false, fmt.Errorf("firmware download: %w", err)
	}
	return true, nil
}
