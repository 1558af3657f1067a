package video

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window sink.
type HeadlessConfig struct {
	Hz int
	// Frames stops the sink after this many refreshes; 0 runs until ctx
	// is done.
	Frames uint64
	// OnFrame, if set, receives every snapshot. The slice is reused.
	OnFrame func(rgb565 []byte) error
}

// RunHeadless refreshes from fb on a ticker without opening a window.
func RunHeadless(ctx context.Context, fb *Framebuffer, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	var (
		buf  []byte
		tick uint64
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			buf = fb.Snapshot(buf)
			if cfg.OnFrame != nil {
				if err := cfg.OnFrame(buf); err != nil {
					return err
				}
			}
			tick++
			if cfg.Frames > 0 && tick >= cfg.Frames {
				return nil
			}
		}
	}
}
