package capture

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func fillSlot(r *Ring, i int, v byte) {
	s := r.Slot(i)
	for k := range s {
		s[k] = v
	}
}

func readN(t *testing.T, r *Ring, n int) []byte {
	t.Helper()
	out := make([]byte, 0, n)
	for len(out) < n {
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte after %d bytes: %v", len(out), err)
		}
		if r.ReadOffset() > r.WriteOffset() {
			t.Fatalf("read offset %d passed write offset %d", r.ReadOffset(), r.WriteOffset())
		}
		out = append(out, b)
	}
	return out
}

func TestNewRingValidates(t *testing.T) {
	tests := []struct {
		name        string
		slots, size int
	}{
		{"one slot", 1, 512},
		{"zero size", 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRing(tt.slots, tt.size); err == nil {
				t.Error("NewRing succeeded, want error")
			}
		})
	}
}

func TestRingReadBlocksUntilCommit(t *testing.T) {
	r, err := NewRing(4, 8)
	if err != nil {
		t.Fatal(err)
	}

	got := make(chan byte, 1)
	go func() {
		b, err := r.ReadByte()
		if err != nil {
			t.Errorf("ReadByte: %v", err)
		}
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("ReadByte returned before anything was committed")
	case <-time.After(20 * time.Millisecond):
	}

	fillSlot(r, 0, 0x42)
	r.Commit(0, 8)

	select {
	case b := <-got:
		if b != 0x42 {
			t.Errorf("ReadByte = %#x, want 0x42", b)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadByte did not wake after Commit")
	}
}

func TestRingShortSlots(t *testing.T) {
	r, _ := NewRing(4, 4)

	copy(r.Slot(0), []byte{1, 2, 3, 0xff})
	r.Commit(0, 3)
	fillSlot(r, 1, 0xee)
	r.Commit(1, 0)
	copy(r.Slot(2), []byte{4, 5, 6, 7})
	r.Commit(2, 4)

	got := readN(t, r, 7)
	want := []byte{1, 2, 3, 4, 5, 6, 7}
	if !bytes.Equal(got, want) {
		t.Errorf("read %v, want %v", got, want)
	}
	if r.ReadOffset() != r.WriteOffset() {
		t.Errorf("read offset %d, write offset %d: want equal", r.ReadOffset(), r.WriteOffset())
	}
}

func TestRingWrapsAround(t *testing.T) {
	r, _ := NewRing(3, 2)

	var want []byte
	for n := 0; n < 10; n++ {
		i := n % 3
		fillSlot(r, i, byte(n))
		r.Commit(i, 2)
		want = append(want, byte(n), byte(n))

		got := readN(t, r, 2)
		if !bytes.Equal(got, want[len(want)-2:]) {
			t.Fatalf("lap %d: read %v, want %v", n, got, want[len(want)-2:])
		}
	}
	if r.Overruns() != 0 {
		t.Errorf("Overruns() = %d, want 0", r.Overruns())
	}
}

func TestRingOverrun(t *testing.T) {
	r, _ := NewRing(4, 4)

	// six slots into a four slot ring with nobody reading
	for n := 0; n < 6; n++ {
		fillSlot(r, n%4, byte(n))
		r.Commit(n%4, 4)
	}

	got := readN(t, r, 12)
	want := []byte{3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("read %v, want %v", got, want)
	}
	if r.Overruns() != 1 {
		t.Errorf("Overruns() = %d, want 1", r.Overruns())
	}
}

func TestRingOutOfOrderCommit(t *testing.T) {
	tests := []struct {
		name      string
		commits   []int
		published []bool
		want      []byte
	}{
		{
			name:      "ahead of next",
			commits:   []int{2, 0, 1, 2},
			published: []bool{false, true, true, true},
			want:      []byte{0xa, 0xa, 0xb, 0xb, 0xc, 0xc},
		},
		{
			name:      "late predecessor",
			commits:   []int{1, 0, 1, 2},
			published: []bool{false, true, true, true},
			want:      []byte{0xa, 0xa, 0xb, 0xb, 0xc, 0xc},
		},
		{
			name:      "repeated slot",
			commits:   []int{0, 0, 1},
			published: []bool{true, false, true},
			want:      []byte{0xa, 0xa, 0xb, 0xb},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := NewRing(4, 2)
			fillSlot(r, 0, 0xa)
			fillSlot(r, 1, 0xb)
			fillSlot(r, 2, 0xc)

			var stale uint64
			for k, i := range tt.commits {
				if got := r.Commit(i, 2); got != tt.published[k] {
					t.Errorf("commit %d of slot %d = %v, want %v", k, i, got, tt.published[k])
				}
				if !tt.published[k] {
					stale++
				}
			}

			if r.WriteOffset() != uint64(len(tt.want)) {
				t.Errorf("WriteOffset() = %d, want %d", r.WriteOffset(), len(tt.want))
			}
			if r.Stale() != stale {
				t.Errorf("Stale() = %d, want %d", r.Stale(), stale)
			}
			if r.Next() != len(tt.want)/2 {
				t.Errorf("Next() = %d, want %d", r.Next(), len(tt.want)/2)
			}
			if got := readN(t, r, len(tt.want)); !bytes.Equal(got, tt.want) {
				t.Errorf("read %x, want %x", got, tt.want)
			}
		})
	}
}

func TestRingOverrunMidSlot(t *testing.T) {
	const size = 2 * maxSpan
	r, _ := NewRing(4, size)

	fillSlot(r, 0, 0)
	r.Commit(0, size)
	if _, err := r.ReadByte(); err != nil {
		t.Fatal(err)
	}

	// the writer laps the reader while it is inside slot 0
	for n := 1; n <= 5; n++ {
		fillSlot(r, n%4, byte(n))
		r.Commit(n%4, size)
	}

	// the rest of the first span is gone; the next one starts at the
	// oldest intact slot
	got := readN(t, r, maxSpan)
	if got[maxSpan-1] != 3 {
		t.Errorf("first byte after the lap = %d, want 3", got[maxSpan-1])
	}
	if r.Overruns() != 1 {
		t.Errorf("Overruns() = %d, want 1", r.Overruns())
	}
}

func TestRingClose(t *testing.T) {
	r, _ := NewRing(2, 4)

	errc := make(chan error, 1)
	go func() {
		_, err := r.ReadByte()
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("ReadByte = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the reader")
	}

	fillSlot(r, 0, 1)
	r.Commit(0, 4)
	if _, err := r.ReadByte(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadByte after Close = %v, want ErrClosed", err)
	}
	r.Close()
}
