//go:build cgo

package video

import (
	"context"

	"github.com/hajimehoshi/ebiten/v2"
)

// WindowConfig controls the desktop window sink.
type WindowConfig struct {
	Title string
	Scale int
	Hz    int
}

// RunWindow opens a desktop window that shows fb. The window's refresh
// cadence drives the snapshots. It blocks until the window is closed or
// ctx is done and must be called from the main goroutine.
func RunWindow(ctx context.Context, fb *Framebuffer, cfg WindowConfig) error {
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	g := &windowGame{ctx: ctx, fb: fb}
	ebiten.SetWindowTitle(cfg.Title)
	// source lines are doubled vertically to restore the 4:3 aspect
	ebiten.SetWindowSize(fb.Width()*cfg.Scale, fb.Height()*2*cfg.Scale)
	ebiten.SetTPS(cfg.Hz)
	return ebiten.RunGame(g)
}

type windowGame struct {
	ctx     context.Context
	fb      *Framebuffer
	fbImg   *ebiten.Image
	scratch []byte
}

func (g *windowGame) Update() error {
	select {
	case <-g.ctx.Done():
		return ebiten.Termination
	default:
		return nil
	}
}

func (g *windowGame) Draw(screen *ebiten.Image) {
	if g.fbImg == nil {
		g.fbImg = ebiten.NewImage(g.fb.Width(), g.fb.Height())
	}

	g.scratch = g.fb.SnapshotRGBA(g.scratch)
	g.fbImg.WritePixels(g.scratch)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(1, 2)
	screen.DrawImage(g.fbImg, op)
}

func (g *windowGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.fb.Width(), g.fb.Height() * 2
}
