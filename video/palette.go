package video

// RGB is a colour as an 8-bit per channel triple.
type RGB struct {
	Red   uint8
	Green uint8
	Blue  uint8
}

// Palette maps the 3-bit colour pattern of a captured byte to a colour.
type Palette [8]Color

// DigitalRGB lists the eight colours of the 3-bit digital RGB signal, in
// colour pattern order. Bit 0 is blue, bit 1 red and bit 2 green.
var DigitalRGB = [8]RGB{
	{0, 0, 0},       // black
	{0, 0, 255},     // blue
	{255, 0, 0},     // red
	{255, 0, 255},   // magenta
	{0, 255, 0},     // green
	{0, 255, 255},   // cyan
	{255, 255, 0},   // yellow
	{255, 255, 255}, // white
}

// DefaultPalette is DigitalRGB packed for the framebuffer.
var DefaultPalette = NewPalette(DigitalRGB)

// NewPalette packs eight RGB triples.
func NewPalette(colors [8]RGB) Palette {
	var p Palette
	for i, c := range colors {
		p[i] = RGB565(c.Red, c.Green, c.Blue)
	}
	return p
}

// Lookup returns the colour for a 3-bit pattern. Higher bits are ignored.
func (p *Palette) Lookup(pattern uint8) Color {
	return p[pattern&7]
}
