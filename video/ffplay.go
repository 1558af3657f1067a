package video

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"digitalrgb/logging"
)

// FFplay represents the ffplay process and its input pipe.
type FFplay struct {
	Pipe io.WriteCloser
	Cmd  *exec.Cmd
}

// StartFFplay launches ffplay configured for a raw RGB565 stream of the
// given size.
func StartFFplay(width, height, hz int, title string) (*FFplay, error) {
	ffplayPath, err := exec.LookPath("ffplay")
	if err != nil {
		return nil, fmt.Errorf("ffplay not found in your PATH")
	}

	args := []string{
		"-f", "rawvideo",
		"-pixel_format", "rgb565le",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", hz),
		"-i", "-",
		"-window_title", title,
		"-vf", "scale=iw:ih*2",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
	}

	cmd := exec.Command(ffplayPath, args...)
	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	logging.Info(logging.ComponentDisplay, "ffplay started", "pid", cmd.Process.Pid)
	return &FFplay{Pipe: stdinPipe, Cmd: cmd}, nil
}

// Stop terminates the ffplay process.
func (f *FFplay) Stop() {
	f.Pipe.Close()
	f.Cmd.Process.Kill()
	f.Cmd.Wait()
}

// RunFFplay streams fb to a new ffplay process at hz frames per second
// until ctx is done or ffplay exits.
func RunFFplay(ctx context.Context, fb *Framebuffer, hz int, title string) error {
	if hz <= 0 {
		hz = 60
	}
	ff, err := StartFFplay(fb.Width(), fb.Height(), hz, title)
	if err != nil {
		return err
	}
	defer ff.Stop()

	return Stream(ctx, ff.Pipe, fb, hz, 0)
}

// Stream writes one RGB565 snapshot of fb to w per refresh. A write error
// (ffplay closed its window) ends the stream.
func Stream(ctx context.Context, w io.Writer, fb *Framebuffer, hz int, frames uint64) error {
	return RunHeadless(ctx, fb, HeadlessConfig{
		Hz:     hz,
		Frames: frames,
		OnFrame: func(frame []byte) error {
			if _, err := w.Write(frame); err != nil {
				return fmt.Errorf("display pipe closed: %w", err)
			}
			return nil
		},
	})
}
