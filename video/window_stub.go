//go:build !cgo

package video

import (
	"context"
	"errors"
)

// WindowConfig controls the desktop window sink.
type WindowConfig struct {
	Title string
	Scale int
	Hz    int
}

// RunWindow always fails; the window sink needs cgo.
func RunWindow(_ context.Context, _ *Framebuffer, _ WindowConfig) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
