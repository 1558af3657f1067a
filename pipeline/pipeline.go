// Package pipeline wires the transfer manager, ring, decoder and
// framebuffer into one capture session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"digitalrgb/capture"
	"digitalrgb/config"
	"digitalrgb/decoder"
	"digitalrgb/logging"
	"digitalrgb/signal"
	"digitalrgb/status"
	"digitalrgb/video"
)

// Options are the hooks a session reports through.
type Options struct {
	// OnReport receives the combined statistics about once a second.
	OnReport func(status.Report)
	// OnFatal is called once if the transfer stream cannot continue.
	OnFatal func(error)
}

// Pipeline owns every stage of one capture session. Sessions share no
// state, so several can run side by side.
type Pipeline struct {
	Ring        *capture.Ring
	Manager     *capture.Manager
	Decoder     *decoder.Decoder
	Framebuffer *video.Framebuffer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	decodeErr error
	stopOnce  sync.Once
}

// New builds a session reading from ep.
func New(ep capture.Endpoint, cfg config.CaptureConfig, opts Options) (*Pipeline, error) {
	ring, err := capture.NewRing(cfg.Slots, cfg.SlotSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Ring:        ring,
		Framebuffer: video.NewFramebuffer(signal.ActiveWidth, signal.ActiveLines),
	}
	p.Decoder = decoder.New(ring, p.Framebuffer, video.DefaultPalette)
	p.Manager = capture.NewManager(ep, ring, capture.ManagerConfig{
		ReapTimeout:    cfg.ReapTimeout,
		DrainTimeout:   cfg.DrainTimeout,
		ReportInterval: cfg.ReportInterval,
		OnReport: func(s capture.Stats) {
			if opts.OnReport != nil {
				opts.OnReport(p.report(s))
			}
		},
		OnFatal: opts.OnFatal,
	})
	return p, nil
}

// Start submits the transfers and starts decoding.
func (p *Pipeline) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	if err := p.Manager.Start(ctx); err != nil {
		p.cancel()
		return fmt.Errorf("start transfers: %w", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Decoder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error(logging.ComponentDecoder, "decoder stopped", "err", err)
			p.decodeErr = err
		}
	}()
	return nil
}

// Stop cancels the transfers, closes the ring and waits for the decoder.
// No framebuffer row is committed after Stop returns.
func (p *Pipeline) Stop() error {
	var err error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		if serr := p.Manager.Stop(); serr != nil && !errors.Is(serr, capture.ErrNotRunning) {
			err = serr
		}
		// the manager closes the ring, but not if it never started
		p.Ring.Close()
		p.wg.Wait()
		if err == nil {
			err = p.decodeErr
		}

		st := p.Decoder.Stats()
		logging.Info(logging.ComponentMain, "pipeline stopped",
			"frames", st.Frames, "sync_losses", st.SyncLosses,
			"overruns", p.Ring.Overruns(), "dropped_rows", p.Framebuffer.Dropped())
	})
	return err
}

// Report returns the current statistics without transfer rates.
func (p *Pipeline) Report() status.Report {
	return p.report(capture.Stats{
		Errors:    p.Manager.Errors(),
		Resubmits: p.Manager.Resubmits(),
		Overruns:  p.Ring.Overruns(),
	})
}

func (p *Pipeline) report(s capture.Stats) status.Report {
	return status.Report{
		Transfer:    s,
		Decoder:     p.Decoder.Stats(),
		DroppedRows: p.Framebuffer.Dropped(),
	}
}
