// Package signal describes the byte format produced by the capture
// firmware: one byte per pixel clock, laid out as 000VHRGB.
//
// Both sync lines idle high. A sync pulse drives its bit low and the
// rising edge at the end of the pulse marks the start of a frame (VSync)
// or of a scanline (HSync).
package signal

// Bit positions within a captured byte.
const (
	BitVSync = 4
	BitHSync = 3
)

// Masks for the sync bits and the colour bits.
const (
	VSync     byte = 1 << BitVSync
	HSync     byte = 1 << BitHSync
	SyncMask  byte = VSync | HSync
	ColorMask byte = 0x07
)

// Fixed geometry of the captured mode.
const (
	// ActiveWidth is the number of pixel bytes per visible scanline.
	ActiveWidth = 640

	// ActiveLines is the number of visible scanlines per frame.
	ActiveLines = 200

	// VBackPorchLines is the number of HSync pulses between the VSync
	// rising edge and the first visible scanline.
	VBackPorchLines = 36

	// HBackPorch is the number of bytes discarded after the byte that
	// carries the HSync rising edge.
	HBackPorch = 131
)

// IsVSync returns true if the vertical sync line is high in b.
func IsVSync(b byte) bool {
	return b&VSync != 0
}

// IsHSync returns true if the horizontal sync line is high in b.
func IsHSync(b byte) bool {
	return b&HSync != 0
}

// InSync returns true if neither sync line is pulsed in b, which is the
// only valid state for a pixel byte.
func InSync(b byte) bool {
	return ^b&SyncMask == 0
}

// Color returns the 3-bit colour pattern carried by b.
func Color(b byte) uint8 {
	return b & ColorMask
}

// Pixel encodes a colour pattern as an active-video byte.
func Pixel(color uint8) byte {
	return SyncMask | (color & ColorMask)
}
