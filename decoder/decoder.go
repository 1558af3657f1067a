// Package decoder turns the captured byte stream into pixels by following
// the sync pulses embedded in it.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"digitalrgb/capture"
	"digitalrgb/logging"
	"digitalrgb/signal"
	"digitalrgb/video"
)

// errSyncLost aborts the current frame.
var errSyncLost = errors.New("sync lost")

// Stats are the decoder counters.
type Stats struct {
	Frames     uint64
	SyncLosses uint64
}

// Decoder reads signal bytes from src and draws visible pixels into fb.
//
// Each frame is located from scratch: wait for the VSync rising edge,
// count the back porch HSync pulses, then for every visible line wait for
// the HSync rising edge, skip the horizontal back porch and read the
// pixels. A pixel byte with either sync line pulled low means sync was
// lost; the frame is abandoned and the decoder waits for the next VSync.
// The line being decoded is dropped, lines already committed stay.
type Decoder struct {
	src     io.ByteReader
	fb      *video.Framebuffer
	palette video.Palette

	locked     bool
	frames     atomic.Uint64
	syncLosses atomic.Uint64
}

// New returns a decoder reading from src into fb. fb must be at least
// signal.ActiveWidth x signal.ActiveLines.
func New(src io.ByteReader, fb *video.Framebuffer, palette video.Palette) *Decoder {
	return &Decoder{
		src:     src,
		fb:      fb,
		palette: palette,
	}
}

// Stats returns a copy of the counters. Safe to call from any goroutine.
func (d *Decoder) Stats() Stats {
	return Stats{
		Frames:     d.frames.Load(),
		SyncLosses: d.syncLosses.Load(),
	}
}

// Run decodes frames until the source is closed, in which case it returns
// nil, or ctx is done. Cancelling ctx does not interrupt a blocked read;
// close the source as well.
func (d *Decoder) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := d.frame(ctx)
		switch {
		case err == nil:
			d.frames.Add(1)
			if !d.locked {
				d.locked = true
				logging.Info(logging.ComponentDecoder, "signal locked")
			}
		case errors.Is(err, errSyncLost):
			d.fb.DiscardLine()
			d.syncLosses.Add(1)
			if d.locked {
				d.locked = false
				logging.Info(logging.ComponentDecoder, "signal lost", "reason", err)
			} else {
				logging.Debug(logging.ComponentDecoder, "sync lost", "reason", err)
			}
		case errors.Is(err, capture.ErrClosed), errors.Is(err, io.EOF):
			d.fb.DiscardLine()
			return nil
		default:
			return err
		}
	}
}

func (d *Decoder) frame(ctx context.Context) error {
	// frame start is the VSync rising edge
	if err := d.waitFor(signal.VSync, false); err != nil {
		return err
	}
	if err := d.waitFor(signal.VSync, true); err != nil {
		return err
	}

	for i := 0; i < signal.VBackPorchLines; i++ {
		if err := d.hsync(); err != nil {
			return err
		}
	}

	for y := 0; y < signal.ActiveLines; y++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.line(y); err != nil {
			return err
		}
	}
	return nil
}

func (d *Decoder) line(y int) error {
	if err := d.hsync(); err != nil {
		return err
	}
	for i := 0; i < signal.HBackPorch; i++ {
		if _, err := d.src.ReadByte(); err != nil {
			return err
		}
	}

	for x := 0; x < signal.ActiveWidth; x++ {
		b, err := d.src.ReadByte()
		if err != nil {
			return err
		}
		if !signal.InSync(b) {
			return fmt.Errorf("%w at line %d pixel %d (byte %#02x)", errSyncLost, y, x, b)
		}
		d.fb.WritePixel(y, x, d.palette.Lookup(signal.Color(b)))
	}
	d.fb.CommitLine()
	return nil
}

// hsync consumes one HSync pulse up to and including its rising edge.
func (d *Decoder) hsync() error {
	if err := d.waitFor(signal.HSync, false); err != nil {
		return err
	}
	return d.waitFor(signal.HSync, true)
}

// waitFor reads until the sync line in mask is high (or low).
func (d *Decoder) waitFor(mask byte, high bool) error {
	for {
		b, err := d.src.ReadByte()
		if err != nil {
			return err
		}
		if (b&mask != 0) == high {
			return nil
		}
	}
}
