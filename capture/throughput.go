package capture

import (
	"fmt"
	"sync"
	"time"
)

// Stats is a periodic transfer report.
type Stats struct {
	Elapsed time.Duration
	// Bytes received during Elapsed.
	Bytes uint64
	// MBps is the rate over Elapsed in MiB/s; AvgMBps is its moving average.
	MBps    float64
	AvgMBps float64

	Total     uint64
	Errors    uint64
	Resubmits uint64
	Overruns  uint64
}

// String formats s as the one-line throughput report.
func (s Stats) String() string {
	return fmt.Sprintf("Receiving at %.3f MBps (Avg. %.3f MBps)", s.MBps, s.AvgMBps)
}

// Throughput counts received bytes and turns them into a smoothed rate.
type Throughput struct {
	mu    sync.Mutex
	bytes uint64
	total uint64
	avg   float64
	last  time.Time
}

// NewThroughput starts measuring at now.
func NewThroughput(now time.Time) *Throughput {
	return &Throughput{last: now}
}

// Add records n received bytes.
func (t *Throughput) Add(n int) {
	t.mu.Lock()
	t.bytes += uint64(n)
	t.total += uint64(n)
	t.mu.Unlock()
}

// Due reports whether at least interval has passed since the last sample.
func (t *Throughput) Due(now time.Time, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.last) >= interval
}

// Sample resets the byte counter and returns the rate since the previous
// sample. The first non-zero rate seeds the average; after that the
// average moves 5% towards each new sample.
func (t *Throughput) Sample(now time.Time) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := now.Sub(t.last)
	s := Stats{Elapsed: elapsed, Bytes: t.bytes, Total: t.total}
	if elapsed > 0 {
		s.MBps = float64(t.bytes) / elapsed.Seconds() / 1024 / 1024
	}
	if t.avg == 0 {
		t.avg = s.MBps
	} else {
		t.avg = t.avg*0.95 + s.MBps*0.05
	}
	s.AvgMBps = t.avg

	t.bytes = 0
	t.last = now
	return s
}
