// Package status reports capture and decode statistics to the terminal.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"digitalrgb/capture"
	"digitalrgb/decoder"
)

// Report combines the counters of every pipeline stage.
type Report struct {
	Transfer    capture.Stats
	Decoder     decoder.Stats
	DroppedRows uint64
}

// Reporter receives a Report about once a second.
type Reporter interface {
	Update(Report)
	Close() error
}

// Format renders r as a single unstyled line.
func Format(r Report) string {
	return fmt.Sprintf("%s | frames %d | sync lost %d | errors %d | overruns %d",
		r.Transfer, r.Decoder.Frames, r.Decoder.SyncLosses, r.Transfer.Errors, r.Transfer.Overruns)
}

var (
	rateStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Line rewrites one status line in place.
type Line struct {
	mu  sync.Mutex
	w   io.Writer
	out bool
}

// NewLine returns a Line writing to w.
func NewLine(w io.Writer) *Line {
	return &Line{w: w}
}

// Update overwrites the status line with r.
func (l *Line) Update(r Report) {
	text := rateStyle.Render(r.Transfer.String())
	counters := fmt.Sprintf(" | frames %d | sync lost %d", r.Decoder.Frames, r.Decoder.SyncLosses)
	if r.Transfer.Errors > 0 || r.Transfer.Overruns > 0 {
		counters += warnStyle.Render(fmt.Sprintf(" | errors %d | overruns %d", r.Transfer.Errors, r.Transfer.Overruns))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "\r%s%s", text, counters)
	l.out = true
}

// Close ends the status line.
func (l *Line) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out {
		fmt.Fprintln(l.w)
		l.out = false
	}
	return nil
}
