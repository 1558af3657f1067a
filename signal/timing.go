package signal

// Timing describes the line and frame layout of a generated signal. The
// zero value is not usable; start from DefaultTiming.
type Timing struct {
	// bytes per scanline
	HSyncWidth  int
	PixelStart  int // bytes from the HSync rising edge (inclusive) to the first pixel
	HActive     int
	HFrontPorch int

	// scanlines per frame
	VSyncLines      int
	VBackPorchLines int
	VActive         int
	VFrontPorch     int
}

// DefaultTiming matches the geometry the decoder expects: 896 bytes per
// line and 262 lines per frame.
var DefaultTiming = Timing{
	HSyncWidth:      64,
	PixelStart:      HBackPorch + 1,
	HActive:         ActiveWidth,
	HFrontPorch:     60,
	VSyncLines:      3,
	VBackPorchLines: VBackPorchLines,
	VActive:         ActiveLines,
	VFrontPorch:     23,
}

// LineBytes is the length of one scanline in bytes.
func (t Timing) LineBytes() int {
	return t.HSyncWidth + t.PixelStart + t.HActive + t.HFrontPorch
}

// Lines is the number of scanlines in one frame.
func (t Timing) Lines() int {
	return t.VSyncLines + t.VBackPorchLines + t.VActive + t.VFrontPorch
}

// FrameBytes is the length of one frame in bytes.
func (t Timing) FrameBytes() int {
	return t.LineBytes() * t.Lines()
}

// FirstActiveLine is the scanline index of visible row zero.
func (t Timing) FirstActiveLine() int {
	return t.VSyncLines + t.VBackPorchLines
}

// PixelOffset returns the offset within an encoded frame of the pixel at
// (x, y) in the visible area.
func (t Timing) PixelOffset(x, y int) int {
	line := t.FirstActiveLine() + y
	return line*t.LineBytes() + t.HSyncWidth + t.PixelStart + x
}
