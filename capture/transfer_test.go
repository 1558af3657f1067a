package capture

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEndpoint completes submitted reads in submission order, or in
// swapped pairs when swap is set. Each read is filled with its
// submission number and the outcome of the nth completion is chosen by
// status.
type fakeEndpoint struct {
	mu        sync.Mutex
	pending   []int
	bufs      map[int][]byte
	seq       map[int]int
	cancelled map[int]bool
	swap      bool

	limit  int
	done   int
	status func(n int) Status

	submits    int
	discards   int
	failSubmit int
}

func newFakeEndpoint(limit int) *fakeEndpoint {
	return &fakeEndpoint{
		bufs:      make(map[int][]byte),
		seq:       make(map[int]int),
		cancelled: make(map[int]bool),
		limit:     limit,
	}
}

func (f *fakeEndpoint) Submit(slot int, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit > 0 && f.submits >= f.failSubmit {
		return errors.New("submit refused")
	}
	f.seq[slot] = f.submits
	f.submits++
	f.pending = append(f.pending, slot)
	f.bufs[slot] = buf
	return nil
}

func (f *fakeEndpoint) Reap(timeout time.Duration) (Completion, error) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		idx := 0
		if f.swap && f.done%2 == 0 && len(f.pending) > 1 && !f.cancelled[f.pending[1]] {
			idx = 1
		}
		slot := f.pending[idx]
		if f.cancelled[slot] {
			f.pending = slices.Delete(f.pending, idx, idx+1)
			delete(f.cancelled, slot)
			f.mu.Unlock()
			return Completion{Slot: slot, Status: StatusCancelled}, nil
		}
		if f.done < f.limit {
			f.pending = slices.Delete(f.pending, idx, idx+1)
			n := f.done
			f.done++
			buf := f.bufs[slot]
			for i := range buf {
				buf[i] = byte(f.seq[slot])
			}
			st := StatusCompleted
			if f.status != nil {
				st = f.status(n)
			}
			f.mu.Unlock()
			c := Completion{Slot: slot, Status: st}
			if st == StatusCompleted {
				c.N = len(buf)
			} else {
				c.Err = errors.New("stall")
			}
			return c, nil
		}
	}
	f.mu.Unlock()
	time.Sleep(timeout)
	return Completion{}, ErrTimeout
}

func (f *fakeEndpoint) Discard(slot int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discards++
	f.cancelled[slot] = true
	return nil
}

func (f *fakeEndpoint) completed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeEndpoint) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testConfig() ManagerConfig {
	return ManagerConfig{
		ReapTimeout:  2 * time.Millisecond,
		DrainTimeout: time.Second,
	}
}

func TestManagerResubmitsEveryCompletion(t *testing.T) {
	ring, _ := NewRing(4, 16)
	ep := newFakeEndpoint(100)
	m := NewManager(ep, ring, testConfig())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "100 resubmissions", func() bool { return m.Resubmits() == 100 })

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Completions() != 100 {
		t.Errorf("Completions() = %d, want 100", m.Completions())
	}
	if got := ep.submitCount(); got != 104 {
		t.Errorf("submits = %d, want 104", got)
	}
	if ring.Commits() != 100 {
		t.Errorf("ring commits = %d, want 100", ring.Commits())
	}
	if _, err := ring.ReadByte(); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadByte after Stop = %v, want ErrClosed", err)
	}
}

func TestManagerStreamsInOrder(t *testing.T) {
	const slots, size, n = 8, 32, 6
	ring, _ := NewRing(slots, size)
	ep := newFakeEndpoint(n)
	m := NewManager(ep, ring, testConfig())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	for want := 0; want < n; want++ {
		for i := 0; i < size; i++ {
			b, err := ring.ReadByte()
			if err != nil {
				t.Fatalf("ReadByte: %v", err)
			}
			if b != byte(want) {
				t.Fatalf("slot %d byte %d = %d, want %d", want, i, b, want)
			}
		}
	}
}

func TestManagerReordersCompletions(t *testing.T) {
	const slots, size, n = 32, 16, 20
	ring, _ := NewRing(slots, size)
	ep := newFakeEndpoint(n)
	ep.swap = true
	m := NewManager(ep, ring, testConfig())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	for want := 0; want < n; want++ {
		for i := 0; i < size; i++ {
			b, err := ring.ReadByte()
			if err != nil {
				t.Fatalf("ReadByte: %v", err)
			}
			if b != byte(want) {
				t.Fatalf("read %d byte %d = %d, want %d", want, i, b, want)
			}
		}
	}
	waitFor(t, "20 resubmissions", func() bool { return m.Resubmits() == n })
	if ring.Stale() != 0 {
		t.Errorf("ring dropped %d commits", ring.Stale())
	}
	if ring.WriteOffset() != n*size {
		t.Errorf("WriteOffset() = %d, want %d", ring.WriteOffset(), n*size)
	}
}

func TestManagerTransferErrors(t *testing.T) {
	ring, _ := NewRing(4, 16)
	ep := newFakeEndpoint(30)
	ep.status = func(n int) Status {
		if n%3 == 0 {
			return StatusError
		}
		return StatusCompleted
	}
	m := NewManager(ep, ring, testConfig())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "30 resubmissions", func() bool { return m.Resubmits() == 30 })
	m.Stop()

	if m.Errors() != 10 {
		t.Errorf("Errors() = %d, want 10", m.Errors())
	}
	if m.Completions() != 20 {
		t.Errorf("Completions() = %d, want 20", m.Completions())
	}
	// failed reads still advance the ring by one slot
	if ring.WriteOffset() != 30*16 {
		t.Errorf("WriteOffset() = %d, want %d", ring.WriteOffset(), 30*16)
	}
}

func TestManagerFatal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeEndpoint)
		want  error
	}{
		{
			name:  "resubmit fails",
			setup: func(f *fakeEndpoint) { f.failSubmit = 6 },
		},
		{
			name: "device removed",
			setup: func(f *fakeEndpoint) {
				f.status = func(n int) Status {
					if n == 3 {
						return StatusNoDevice
					}
					return StatusCompleted
				}
			},
			want: ErrNoDevice,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring, _ := NewRing(4, 16)
			ep := newFakeEndpoint(50)
			tt.setup(ep)

			var calls atomic.Int32
			errc := make(chan error, 1)
			cfg := testConfig()
			cfg.OnFatal = func(err error) {
				calls.Add(1)
				errc <- err
			}
			m := NewManager(ep, ring, cfg)
			if err := m.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}

			select {
			case err := <-errc:
				if tt.want != nil && !errors.Is(err, tt.want) {
					t.Errorf("fatal error = %v, want %v", err, tt.want)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("fatal hook not called")
			}

			m.Stop()
			if calls.Load() != 1 {
				t.Errorf("fatal hook called %d times, want 1", calls.Load())
			}
			if ep.completed() == 50 {
				t.Error("stream kept running after a fatal error")
			}
		})
	}
}

func TestManagerStartFailure(t *testing.T) {
	ring, _ := NewRing(4, 16)
	ep := newFakeEndpoint(0)
	ep.failSubmit = 2
	m := NewManager(ep, ring, testConfig())

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with a failing endpoint")
	}
	if ep.discards != 2 {
		t.Errorf("discards = %d, want 2", ep.discards)
	}
}

func TestManagerLifecycleErrors(t *testing.T) {
	ring, _ := NewRing(2, 16)
	m := NewManager(newFakeEndpoint(0), ring, testConfig())

	if err := m.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop before Start = %v, want ErrNotRunning", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("second Start = %v, want ErrRunning", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestManagerContextCancel(t *testing.T) {
	ring, _ := NewRing(4, 16)
	ep := newFakeEndpoint(1 << 30)
	m := NewManager(ep, ring, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "some completions", func() bool { return m.Completions() > 10 })
	cancel()

	// the loop winds down on its own; Stop only joins it
	waitFor(t, "submissions to stop", func() bool {
		n := ep.submitCount()
		time.Sleep(20 * time.Millisecond)
		return ep.submitCount() == n
	})
	m.Stop()

	// at most the read being handled when the context ended is not resubmitted
	if c, r := m.Completions(), m.Resubmits(); r > c || c-r > 1 {
		t.Errorf("Resubmits() = %d, Completions() = %d", r, c)
	}
}

func TestManagerReports(t *testing.T) {
	ring, _ := NewRing(4, 16)
	ep := newFakeEndpoint(1 << 30)

	reports := make(chan Stats, 16)
	cfg := testConfig()
	cfg.ReportInterval = 10 * time.Millisecond
	cfg.OnReport = func(s Stats) {
		select {
		case reports <- s:
		default:
		}
	}
	m := NewManager(ep, ring, cfg)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	select {
	case s := <-reports:
		if s.Elapsed < 10*time.Millisecond {
			t.Errorf("report after %v, want >= 10ms", s.Elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no report")
	}
}
