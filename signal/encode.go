package signal

// Pattern returns the colour pattern of the visible pixel at (x, y).
type Pattern func(x, y int) uint8

// Encode appends one complete frame to dst and returns the extended slice.
// The frame starts with the VSync pulse, so a stream made of consecutive
// frames from Encode always begins with a frame boundary.
func Encode(dst []byte, t Timing, p Pattern) []byte {
	first := t.FirstActiveLine()
	for line := 0; line < t.Lines(); line++ {
		v := VSync
		if line < t.VSyncLines {
			v = 0
		}

		y := line - first
		active := y >= 0 && y < t.VActive

		for s := 0; s < t.LineBytes(); s++ {
			if s < t.HSyncWidth {
				dst = append(dst, v)
				continue
			}

			b := v | HSync
			if active {
				x := s - t.HSyncWidth - t.PixelStart
				if x >= 0 && x < t.HActive && p != nil {
					b |= p(x, y) & ColorMask
				}
			}
			dst = append(dst, b)
		}
	}
	return dst
}

// Corrupt pulls the HSync line low at the visible pixel (x, y) of the
// frame starting at frame[0]. The decoder treats this as lost sync.
func (t Timing) Corrupt(frame []byte, x, y int) {
	frame[t.PixelOffset(x, y)] &^= HSync
}
