// Package source provides a synthetic capture device for running the
// pipeline without hardware.
package source

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"digitalrgb/capture"
	"digitalrgb/signal"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("source: loopback closed")

// LoopbackConfig configures a Loopback.
type LoopbackConfig struct {
	Timing signal.Timing
	// Patterns are encoded one frame each and played in a loop.
	Patterns []signal.Pattern
	// FrameRate paces completions to this many frames per second. Zero
	// completes reads as fast as they are reaped.
	FrameRate float64
}

// DefaultLoopbackConfig plays scrolling colour bars at 60 frames per
// second.
func DefaultLoopbackConfig() LoopbackConfig {
	return LoopbackConfig{
		Timing:    signal.DefaultTiming,
		Patterns:  ScrollingBars(signal.ActiveWidth, 8),
		FrameRate: 60,
	}
}

// ScrollingBars returns n colour bar patterns, each shifted further to
// the right, so that a looped stream shows movement.
func ScrollingBars(width, n int) []signal.Pattern {
	bars := signal.ColorBars(width)
	step := width / max(n, 1)
	out := make([]signal.Pattern, n)
	for i := range out {
		shift := i * step
		out[i] = func(x, y int) uint8 {
			return bars((x+width-shift)%width, y)
		}
	}
	return out
}

type pendingRead struct {
	slot      int
	buf       []byte
	cancelled bool
}

// Loopback is a capture.Endpoint that fills reads from an encoded signal
// instead of a USB device.
type Loopback struct {
	mu        sync.Mutex
	stream    []byte
	pos       int
	pending   []pendingRead
	closed    bool
	unplugged bool

	rate     float64 // bytes per second, 0 for unpaced
	start    time.Time
	produced uint64

	wake chan struct{}
}

var _ capture.Endpoint = (*Loopback)(nil)

// NewLoopback encodes the configured patterns and returns the endpoint.
func NewLoopback(cfg LoopbackConfig) (*Loopback, error) {
	if len(cfg.Patterns) == 0 {
		return nil, fmt.Errorf("source: no patterns")
	}
	if cfg.Timing.LineBytes() == 0 {
		cfg.Timing = signal.DefaultTiming
	}

	var stream []byte
	for _, p := range cfg.Patterns {
		stream = signal.Encode(stream, cfg.Timing, p)
	}

	return &Loopback{
		stream: stream,
		rate:   cfg.FrameRate * float64(cfg.Timing.FrameBytes()),
		start:  time.Now(),
		wake:   make(chan struct{}, 1),
	}, nil
}

func (l *Loopback) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Submit queues a read into buf for slot.
func (l *Loopback) Submit(slot int, buf []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.unplugged {
		return capture.ErrNoDevice
	}
	l.pending = append(l.pending, pendingRead{slot: slot, buf: buf})
	l.notify()
	return nil
}

// Discard cancels the read on slot.
func (l *Loopback) Discard(slot int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.pending {
		if l.pending[i].slot == slot {
			l.pending[i].cancelled = true
			l.notify()
			return nil
		}
	}
	return fmt.Errorf("source: slot %d not submitted", slot)
}

// Unplug makes every outstanding and future read fail as if the device
// had been removed.
func (l *Loopback) Unplug() {
	l.mu.Lock()
	l.unplugged = true
	l.notify()
	l.mu.Unlock()
}

// Close rejects further submissions.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.notify()
	l.mu.Unlock()
	return nil
}

// Reap completes the oldest read once the signal it carries would have
// arrived, or returns capture.ErrTimeout after timeout.
func (l *Loopback) Reap(timeout time.Duration) (capture.Completion, error) {
	deadline := time.Now().Add(timeout)
	for {
		l.mu.Lock()
		wait := time.Until(deadline)
		if len(l.pending) > 0 {
			r := l.pending[0]
			switch {
			case r.cancelled:
				l.pending = l.pending[1:]
				l.mu.Unlock()
				return capture.Completion{Slot: r.slot, Status: capture.StatusCancelled}, nil
			case l.unplugged:
				l.pending = l.pending[1:]
				l.mu.Unlock()
				return capture.Completion{Slot: r.slot, Status: capture.StatusNoDevice, Err: capture.ErrNoDevice}, nil
			}

			due := l.due(len(r.buf))
			if !time.Now().Before(due) {
				l.pending = l.pending[1:]
				l.fill(r.buf)
				l.mu.Unlock()
				return capture.Completion{Slot: r.slot, Status: capture.StatusCompleted, N: len(r.buf)}, nil
			}
			wait = min(wait, time.Until(due))
		}
		l.mu.Unlock()

		if time.Until(deadline) <= 0 {
			return capture.Completion{}, capture.ErrTimeout
		}
		t := time.NewTimer(max(wait, 0))
		select {
		case <-l.wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// due returns when n more bytes will have been produced.
func (l *Loopback) due(n int) time.Time {
	if l.rate <= 0 {
		return time.Time{}
	}
	secs := float64(l.produced+uint64(n)) / l.rate
	return l.start.Add(time.Duration(secs * float64(time.Second)))
}

// fill copies the next len(buf) bytes of the looped stream into buf.
func (l *Loopback) fill(buf []byte) {
	for i := 0; i < len(buf); {
		n := copy(buf[i:], l.stream[l.pos:])
		i += n
		l.pos += n
		if l.pos >= len(l.stream) {
			l.pos = 0
		}
	}
	l.produced += uint64(len(buf))
}
