//go:build !linux

package usb

import (
	"time"

	"digitalrgb/capture"
)

// Device is unavailable on this platform.
type Device struct{}

// Open returns ErrUnsupported.
func Open(_, _ uint16) (*Device, error) { return nil, ErrUnsupported }

// OpenPath returns ErrUnsupported.
func OpenPath(_ string) (*Device, error) { return nil, ErrUnsupported }

// Claim returns ErrUnsupported.
func (d *Device) Claim(_, _ int) error { return ErrUnsupported }

// Control returns ErrUnsupported.
func (d *Device) Control(_, _ uint8, _, _ uint16, _ []byte, _ time.Duration) (int, error) {
	return 0, ErrUnsupported
}

// BulkIn returns an endpoint whose operations all fail.
func (d *Device) BulkIn(_ uint8, _ int) *BulkIn { return &BulkIn{} }

// Close does nothing.
func (d *Device) Close() error { return nil }

// BulkIn is unavailable on this platform.
type BulkIn struct{}

var _ capture.Endpoint = (*BulkIn)(nil)

// Submit returns ErrUnsupported.
func (b *BulkIn) Submit(_ int, _ []byte) error { return ErrUnsupported }

// Reap returns ErrUnsupported.
func (b *BulkIn) Reap(_ time.Duration) (capture.Completion, error) {
	return capture.Completion{}, ErrUnsupported
}

// Discard returns ErrUnsupported.
func (b *BulkIn) Discard(_ int) error { return ErrUnsupported }
