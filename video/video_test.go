package video

import (
	"sync"
	"testing"
)

func TestPaletteTable(t *testing.T) {
	want := [8]RGB{
		{0, 0, 0},
		{0, 0, 255},
		{255, 0, 0},
		{255, 0, 255},
		{0, 255, 0},
		{0, 255, 255},
		{255, 255, 0},
		{255, 255, 255},
	}
	if DigitalRGB != want {
		t.Fatalf("DigitalRGB = %v, want %v", DigitalRGB, want)
	}

	packed := [8]Color{0x0000, 0x001f, 0xf800, 0xf81f, 0x07e0, 0x07ff, 0xffe0, 0xffff}
	for i, c := range packed {
		if got := DefaultPalette.Lookup(uint8(i)); got != c {
			t.Errorf("Lookup(%d) = %#04x, want %#04x", i, got, c)
		}
		r, g, b := c.RGB()
		if (RGB{r, g, b}) != want[i] {
			t.Errorf("colour %d expands to (%d,%d,%d), want %v", i, r, g, b, want[i])
		}
	}
}

func TestPaletteDistinct(t *testing.T) {
	seen := make(map[Color]int)
	for i, c := range DefaultPalette {
		if j, ok := seen[c]; ok {
			t.Errorf("colours %d and %d are both %#04x", j, i, c)
		}
		seen[c] = i
	}
}

func TestPaletteIgnoresHighBits(t *testing.T) {
	if DefaultPalette.Lookup(0x1d) != DefaultPalette.Lookup(5) {
		t.Error("Lookup should only use the low three bits")
	}
}

func TestCommitLine(t *testing.T) {
	fb := NewFramebuffer(4, 2)

	for x := 0; x < 4; x++ {
		fb.WritePixel(1, x, Color(x+1))
	}
	if fb.At(0, 1) != 0 {
		t.Fatal("pixel visible before commit")
	}
	if !fb.CommitLine() {
		t.Fatal("CommitLine failed without contention")
	}
	for x := 0; x < 4; x++ {
		if got := fb.At(x, 1); got != Color(x+1) {
			t.Errorf("At(%d,1) = %d, want %d", x, got, x+1)
		}
	}
	if fb.Commits() != 1 {
		t.Errorf("Commits() = %d, want 1", fb.Commits())
	}

	// nothing pending after a commit
	if fb.CommitLine() {
		t.Error("second CommitLine should publish nothing")
	}
}

func TestDiscardLine(t *testing.T) {
	fb := NewFramebuffer(2, 1)
	fb.WritePixel(0, 0, 0xffff)
	fb.DiscardLine()
	if fb.CommitLine() {
		t.Error("discarded line was committed")
	}
	if fb.At(0, 0) != 0 {
		t.Error("discarded pixel became visible")
	}
}

func TestCommitDoesNotWaitForDisplay(t *testing.T) {
	fb := NewFramebuffer(2, 1)

	fb.rows[0].mu.Lock()
	fb.WritePixel(0, 0, 7)
	if fb.CommitLine() {
		t.Error("CommitLine succeeded while display held the row")
	}
	fb.rows[0].mu.Unlock()

	if fb.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", fb.Dropped())
	}
	if fb.At(0, 0) != 0 {
		t.Error("dropped row update became visible")
	}
}

func TestSnapshot(t *testing.T) {
	fb := NewFramebuffer(2, 2)
	fb.WritePixel(0, 0, 0x1234)
	fb.WritePixel(0, 1, 0xf800)
	fb.CommitLine()

	snap := fb.Snapshot(nil)
	if len(snap) != 8 {
		t.Fatalf("len(Snapshot) = %d, want 8", len(snap))
	}
	want := []byte{0x34, 0x12, 0x00, 0xf8, 0, 0, 0, 0}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("snap[%d] = %#02x, want %#02x", i, snap[i], want[i])
		}
	}

	rgba := fb.SnapshotRGBA(nil)
	if len(rgba) != 16 {
		t.Fatalf("len(SnapshotRGBA) = %d, want 16", len(rgba))
	}
	if rgba[4] != 255 || rgba[5] != 0 || rgba[6] != 0 || rgba[7] != 255 {
		t.Errorf("second pixel = %v, want opaque red", rgba[4:8])
	}
}

// run with -race: concurrent commits and snapshots must not race
func TestConcurrentSnapshot(t *testing.T) {
	fb := NewFramebuffer(64, 32)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := 0; frame < 50; frame++ {
			for y := 0; y < fb.Height(); y++ {
				for x := 0; x < fb.Width(); x++ {
					fb.WritePixel(y, x, Color(frame))
				}
				fb.CommitLine()
			}
		}
	}()

	var buf []byte
	for i := 0; i < 50; i++ {
		buf = fb.Snapshot(buf)
	}
	wg.Wait()

	// every row is uniform: rows are never torn
	buf = fb.Snapshot(buf)
	for y := 0; y < fb.Height(); y++ {
		first := buf[y*fb.StrideBytes()]
		for x := 0; x < fb.StrideBytes(); x += 2 {
			if buf[y*fb.StrideBytes()+x] != first {
				t.Fatalf("row %d is torn", y)
			}
		}
	}
}
