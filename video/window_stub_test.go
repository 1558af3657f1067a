//go:build !cgo

package video

import (
	"context"
	"testing"
)

func TestRunWindowWithoutCgo(t *testing.T) {
	fb := NewFramebuffer(4, 2)
	if err := RunWindow(context.Background(), fb, WindowConfig{Title: "t", Scale: 1, Hz: 60}); err == nil {
		t.Error("RunWindow succeeded without cgo")
	}
}
