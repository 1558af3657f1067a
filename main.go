// Command digitalrgb captures a digital RGB video signal from an EZ-USB
// FX2 board and displays it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"digitalrgb/capture"
	"digitalrgb/config"
	"digitalrgb/firmware"
	"digitalrgb/logging"
	"digitalrgb/pipeline"
	"digitalrgb/source"
	"digitalrgb/status"
	"digitalrgb/usb"
	"digitalrgb/video"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.New()

	level, _ := logging.ParseLevel(cfg.LogLevel)
	format, _ := logging.ParseFormat(cfg.LogFormat)
	logging.SetLevel(level)
	if cfg.TUI {
		// the status view owns the terminal
		f, err := os.OpenFile("digitalrgb.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logging.Configure(f, format)
	} else {
		logging.Configure(os.Stderr, format)
	}

	// 1. Open the signal source (device or synthetic)
	ep, closeSource, err := openSource(cfg)
	if err != nil {
		logging.Error(logging.ComponentMain, "cannot open capture source", "err", err)
		return 1
	}
	defer closeSource()

	// 2. Shutdown on SIGINT/SIGTERM, a fatal transfer error or the UI
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reporter status.Reporter
	if cfg.TUI {
		reporter = status.NewTUI(func() { cancel(nil) })
	} else {
		reporter = status.NewLine(os.Stdout)
	}
	if cfg.StatsviewAddr != "" {
		stopStats := status.StartStatsview(cfg.StatsviewAddr)
		defer stopStats()
	}

	// 3. Start transfers and decoding
	p, err := pipeline.New(ep, cfg.Capture, pipeline.Options{
		OnReport: reporter.Update,
		OnFatal:  func(err error) { cancel(err) },
	})
	if err != nil {
		reporter.Close()
		logging.Error(logging.ComponentMain, "cannot build pipeline", "err", err)
		return 1
	}
	if err := p.Start(ctx); err != nil {
		reporter.Close()
		logging.Error(logging.ComponentMain, "cannot start capture", "err", err)
		return 1
	}
	logging.Info(logging.ComponentMain, "capture running", "display", cfg.Display.Mode, "test", cfg.Test)

	// 4. The display runs on the main goroutine until it is closed or ctx ends
	displayErr := runDisplay(ctx, cfg, p.Framebuffer)
	cancel(nil)

	// 5. Orderly shutdown: transfers, ring, decoder, status
	stopErr := p.Stop()
	reporter.Close()

	code := 0
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		logging.Error(logging.ComponentMain, "capture failed", "err", cause)
		code = 1
	}
	if displayErr != nil && !errors.Is(displayErr, context.Canceled) {
		logging.Error(logging.ComponentDisplay, "display failed", "err", displayErr)
		code = 1
	}
	if stopErr != nil {
		logging.Error(logging.ComponentMain, "shutdown failed", "err", stopErr)
		code = 1
	}
	return code
}

// openSource returns the endpoint to capture from and a function that
// releases it.
func openSource(cfg *config.Config) (capture.Endpoint, func(), error) {
	if cfg.Test {
		logging.Info(logging.ComponentMain, "test mode: decoding synthetic colour bars")
		lb, err := source.NewLoopback(source.DefaultLoopbackConfig())
		if err != nil {
			return nil, nil, err
		}
		return lb, func() { lb.Close() }, nil
	}

	dev, err := usb.Open(uint16(cfg.USB.VendorID), uint16(cfg.USB.ProductID))
	if err != nil {
		return nil, nil, err
	}
	closeDev := func() {
		if err := dev.Close(); err != nil {
			logging.Warn(logging.ComponentUSB, "close device", "err", err)
		}
	}

	if _, err := firmware.LoadFile(dev, cfg.USB.Firmware, cfg.USB.ControlTimeout); err != nil {
		closeDev()
		return nil, nil, err
	}

	if err := dev.Claim(cfg.USB.Interface, cfg.USB.AltSetting); err != nil {
		closeDev()
		return nil, nil, err
	}
	return dev.BulkIn(uint8(cfg.USB.Endpoint), cfg.Capture.Slots), closeDev, nil
}

func runDisplay(ctx context.Context, cfg *config.Config, fb *video.Framebuffer) error {
	switch cfg.Display.Mode {
	case config.DisplayFFplay:
		return video.RunFFplay(ctx, fb, cfg.Display.Hz, cfg.Display.Title)
	case config.DisplayHeadless:
		return video.RunHeadless(ctx, fb, video.HeadlessConfig{Hz: cfg.Display.Hz, Frames: cfg.Display.Frames})
	default:
		return video.RunWindow(ctx, fb, video.WindowConfig{
			Title: cfg.Display.Title,
			Scale: cfg.Display.Scale,
			Hz:    cfg.Display.Hz,
		})
	}
}
