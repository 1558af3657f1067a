// Package capture moves bytes from a bulk USB endpoint into a ring buffer
// and hands them to a single reader one byte at a time.
package capture

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// maxSpan bounds how many bytes the reader takes from a slot before it
// checks the write offset again.
const maxSpan = 4096

// Ring is a slot-organised ring buffer with a single writer (the transfer
// event loop) and a single reader (the decoder).
//
// Positions are logical byte offsets that only grow; the physical index
// is the offset modulo the capacity. The write offset advances one whole
// slot per Commit and the read offset one byte per ReadByte, and the read
// offset never passes the write offset.
//
// The ring is lossy: nothing stops the writer from lapping a slow reader.
// When that happens the reader jumps forward to the oldest slot that has
// not been reused and Overruns is incremented.
type Ring struct {
	slotSize  int
	slotCount int
	capacity  uint64
	buf       []byte
	valid     []atomic.Int32

	write    atomic.Uint64
	overruns atomic.Uint64
	commits  atomic.Uint64
	stale    atomic.Uint64

	mu     sync.Mutex
	cond   *sync.Cond
	closed atomic.Bool

	// owned by the reader
	span    []byte
	spanEnd uint64
}

// NewRing allocates a ring of slotCount slots of slotSize bytes each.
func NewRing(slotCount, slotSize int) (*Ring, error) {
	if slotCount < 2 {
		return nil, fmt.Errorf("capture: need at least 2 slots, got %d", slotCount)
	}
	if slotSize <= 0 {
		return nil, fmt.Errorf("capture: invalid slot size %d", slotSize)
	}
	r := &Ring{
		slotSize:  slotSize,
		slotCount: slotCount,
		capacity:  uint64(slotCount) * uint64(slotSize),
		buf:       make([]byte, slotCount*slotSize),
		valid:     make([]atomic.Int32, slotCount),
	}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// SlotCount returns the number of slots.
func (r *Ring) SlotCount() int { return r.slotCount }

// SlotSize returns the size of one slot in bytes.
func (r *Ring) SlotSize() int { return r.slotSize }

// Slot returns the region of the ring backing slot i.
func (r *Ring) Slot(i int) []byte {
	off := i * r.slotSize
	return r.buf[off : off+r.slotSize : off+r.slotSize]
}

// Next returns the slot the next Commit must publish. Must only be called
// by the writer.
func (r *Ring) Next() int {
	return int(r.write.Load() / uint64(r.slotSize) % uint64(r.slotCount))
}

// Commit publishes slot i with n valid bytes and wakes the reader. n may
// be zero for a failed transfer. Slots must be committed in ring order:
// if i is not Next the commit is dropped, counted as stale and Commit
// returns false. Must only be called by the writer.
func (r *Ring) Commit(i, n int) bool {
	w := r.write.Load()
	if i != int(w/uint64(r.slotSize)%uint64(r.slotCount)) {
		r.stale.Add(1)
		return false
	}
	if n < 0 {
		n = 0
	}
	if n > r.slotSize {
		n = r.slotSize
	}

	r.valid[i].Store(int32(n))
	r.write.Store(w + uint64(r.slotSize))
	r.commits.Add(1)

	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
	return true
}

// Close wakes the reader and makes every further ReadByte fail with
// ErrClosed. It is safe to call more than once.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed.Store(true)
	r.cond.Broadcast()
	r.mu.Unlock()
}

// WriteOffset returns the logical write offset.
func (r *Ring) WriteOffset() uint64 { return r.write.Load() }

// ReadOffset returns the logical read offset. Must only be called by the
// reader.
func (r *Ring) ReadOffset() uint64 { return r.spanEnd - uint64(len(r.span)) }

// Overruns returns how many times the writer was found to have lapped the
// reader. The check runs every maxSpan bytes read, so several laps between
// two checks count once.
func (r *Ring) Overruns() uint64 { return r.overruns.Load() }

// Commits returns the number of slots published.
func (r *Ring) Commits() uint64 { return r.commits.Load() }

// Stale returns the number of commits dropped for being out of order.
func (r *Ring) Stale() uint64 { return r.stale.Load() }

// ReadByte returns the next byte in capture order, blocking until one is
// available. Must only be called by the reader.
func (r *Ring) ReadByte() (byte, error) {
	if r.closed.Load() {
		return 0, ErrClosed
	}
	if len(r.span) == 0 {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	b := r.span[0]
	r.span = r.span[1:]
	return b, nil
}

// fill points span at the next run of valid bytes.
func (r *Ring) fill() error {
	read := r.spanEnd
	slotSize := uint64(r.slotSize)

	for {
		w := r.write.Load()
		if read == w {
			r.mu.Lock()
			for !r.closed.Load() && r.write.Load() == read {
				r.cond.Wait()
			}
			r.mu.Unlock()
			if r.closed.Load() {
				r.span, r.spanEnd = nil, read
				return ErrClosed
			}
			continue
		}

		// the slot at the write position is being refilled
		if w-read > r.capacity-slotSize {
			read = w - (r.capacity - slotSize)
			r.overruns.Add(1)
		}

		slot := int(read / slotSize % uint64(r.slotCount))
		off := int(read % slotSize)
		n := int(r.valid[slot].Load())
		if off >= n {
			read += slotSize - uint64(off)
			continue
		}

		n = min(n, off+maxSpan)
		base := slot * r.slotSize
		r.span = r.buf[base+off : base+n]
		r.spanEnd = read + uint64(n-off)
		return nil
	}
}
