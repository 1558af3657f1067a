package signal

// ColorBars returns a pattern of eight vertical bars in descending
// luminance order: white, yellow, cyan, green, magenta, red, blue, black.
func ColorBars(width int) Pattern {
	barWidth := width / 8
	if barWidth == 0 {
		barWidth = 1
	}
	return func(x, _ int) uint8 {
		bar := x / barWidth
		if bar > 7 {
			bar = 7
		}
		return uint8(7 - bar)
	}
}

// Solid returns a pattern where every pixel has the same colour.
func Solid(color uint8) Pattern {
	return func(_, _ int) uint8 {
		return color & ColorMask
	}
}

// Gradient returns a pattern that cycles through all eight colours along
// both axes, which makes row and column misalignment visible.
func Gradient() Pattern {
	return func(x, y int) uint8 {
		return uint8((x + y) & 7)
	}
}
