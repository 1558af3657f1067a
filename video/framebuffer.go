package video

import (
	"sync"
	"sync/atomic"
)

// Framebuffer is the pixel surface shared between the decoder and the
// display.
//
// The decoder builds each scanline in a private working line and
// publishes it whole with CommitLine. Every row has its own lock: the
// decoder only ever tries the lock and drops the update if the display is
// reading that row, so decoding never waits on the display. The display
// takes the row locks one at a time while copying. The result is that a
// snapshot may mix rows from two consecutive frames but never contains a
// partially written row.
type Framebuffer struct {
	width  int
	height int

	rows []row

	// owned by the decoder
	working    []Color
	workingRow int

	commits atomic.Uint64
	dropped atomic.Uint64
}

type row struct {
	mu  sync.Mutex
	pix []Color
}

// NewFramebuffer allocates a width x height framebuffer cleared to black.
func NewFramebuffer(width, height int) *Framebuffer {
	fb := &Framebuffer{
		width:      width,
		height:     height,
		rows:       make([]row, height),
		working:    make([]Color, width),
		workingRow: -1,
	}
	for i := range fb.rows {
		fb.rows[i].pix = make([]Color, width)
	}
	return fb
}

// Width of the framebuffer in pixels.
func (fb *Framebuffer) Width() int { return fb.width }

// Height of the framebuffer in pixels.
func (fb *Framebuffer) Height() int { return fb.height }

// StrideBytes is the length of one row of a Snapshot.
func (fb *Framebuffer) StrideBytes() int { return fb.width * 2 }

// WritePixel sets the pixel at column col of the working line for row.
// Starting a new row discards whatever was written to the working line
// for a previous row and not committed. Must only be called by the
// decoder.
func (fb *Framebuffer) WritePixel(row, col int, c Color) {
	fb.workingRow = row
	fb.working[col] = c
}

// CommitLine publishes the working line to its row. It returns false if
// the display was reading the row, in which case the row keeps its
// previous contents. Must only be called by the decoder.
func (fb *Framebuffer) CommitLine() bool {
	y := fb.workingRow
	if y < 0 || y >= fb.height {
		return false
	}
	fb.workingRow = -1

	r := &fb.rows[y]
	if !r.mu.TryLock() {
		fb.dropped.Add(1)
		return false
	}
	copy(r.pix, fb.working)
	r.mu.Unlock()

	fb.commits.Add(1)
	return true
}

// DiscardLine abandons the working line without publishing it.
func (fb *Framebuffer) DiscardLine() {
	fb.workingRow = -1
}

// Commits returns the number of rows published since creation.
func (fb *Framebuffer) Commits() uint64 {
	return fb.commits.Load()
}

// Dropped returns the number of row updates lost to display contention.
func (fb *Framebuffer) Dropped() uint64 {
	return fb.dropped.Load()
}

// At returns the published colour at (x, y).
func (fb *Framebuffer) At(x, y int) Color {
	r := &fb.rows[y]
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pix[x]
}

// Snapshot copies the published frame into dst as little-endian RGB565
// and returns it. dst is reallocated if it is too small.
func (fb *Framebuffer) Snapshot(dst []byte) []byte {
	n := fb.StrideBytes() * fb.height
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	i := 0
	for y := range fb.rows {
		r := &fb.rows[y]
		r.mu.Lock()
		for _, c := range r.pix {
			dst[i] = byte(c)
			dst[i+1] = byte(c >> 8)
			i += 2
		}
		r.mu.Unlock()
	}
	return dst
}

// SnapshotRGBA copies the published frame into dst as RGBA8888 with full
// alpha and returns it. dst is reallocated if it is too small.
func (fb *Framebuffer) SnapshotRGBA(dst []byte) []byte {
	n := fb.width * fb.height * 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	i := 0
	for y := range fb.rows {
		r := &fb.rows[y]
		r.mu.Lock()
		for _, c := range r.pix {
			dst[i], dst[i+1], dst[i+2] = c.RGB()
			dst[i+3] = 0xff
			i += 4
		}
		r.mu.Unlock()
	}
	return dst
}
