package video

// Color is a framebuffer pixel in RGB565: rrrrrggggggbbbbb.
type Color uint16

// RGB565 packs an 8-bit per channel colour.
func RGB565(r, g, b uint8) Color {
	rr := Color(r>>3) & 0x1f
	gg := Color(g>>2) & 0x3f
	bb := Color(b>>3) & 0x1f
	return rr<<11 | gg<<5 | bb
}

// RGB expands the colour to 8 bits per channel.
func (c Color) RGB() (r, g, b uint8) {
	rr := (c >> 11) & 0x1f
	gg := (c >> 5) & 0x3f
	bb := c & 0x1f

	r = uint8((uint32(rr) * 255) / 31)
	g = uint8((uint32(gg) * 255) / 63)
	b = uint8((uint32(bb) * 255) / 31)
	return r, g, b
}
