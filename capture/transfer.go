package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"digitalrgb/logging"
)

// Status is the outcome of one bulk read.
type Status int

const (
	// StatusCompleted means the read finished and N bytes were received.
	StatusCompleted Status = iota
	// StatusError covers stalls, timeouts, overflows and I/O errors.
	StatusError
	// StatusCancelled means the read was discarded.
	StatusCancelled
	// StatusNoDevice means the device went away.
	StatusNoDevice
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusCancelled:
		return "cancelled"
	case StatusNoDevice:
		return "no device"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Completion reports a finished read on a slot.
type Completion struct {
	Slot   int
	Status Status
	N      int
	Err    error
}

// Endpoint is a bulk IN endpoint that can keep several reads in flight,
// one per slot.
type Endpoint interface {
	// Submit queues a read of len(buf) bytes into buf for slot.
	Submit(slot int, buf []byte) error
	// Reap waits up to timeout for any submitted read to finish. It
	// returns ErrTimeout if none did.
	Reap(timeout time.Duration) (Completion, error)
	// Discard cancels the read on slot. The slot still completes, with
	// StatusCancelled unless it finished first.
	Discard(slot int) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	ReapTimeout    time.Duration
	DrainTimeout   time.Duration
	ReportInterval time.Duration

	// OnReport receives a Stats about every ReportInterval.
	OnReport func(Stats)
	// OnFatal is called once if the stream cannot continue.
	OnFatal func(error)
}

type slotState int

const (
	slotIdle slotState = iota
	slotSubmitted
	slotHeld // finished ahead of an earlier slot, waiting to be committed
	slotCancelled
)

// Manager keeps one read in flight per ring slot, commits each finished
// read to the ring and resubmits it.
type Manager struct {
	ep   Endpoint
	ring *Ring
	cfg  ManagerConfig

	// owned by the event loop once started
	state []slotState
	held  []int

	running   atomic.Bool
	stopping  atomic.Bool
	stopOnce  sync.Once
	fatalOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	tp          *Throughput
	completions atomic.Uint64
	resubmits   atomic.Uint64
	errors      atomic.Uint64
}

// NewManager returns a manager feeding ring from ep.
func NewManager(ep Endpoint, ring *Ring, cfg ManagerConfig) *Manager {
	if cfg.ReapTimeout <= 0 {
		cfg.ReapTimeout = 100 * time.Millisecond
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 2 * time.Second
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = time.Second
	}
	return &Manager{
		ep:    ep,
		ring:  ring,
		cfg:   cfg,
		state: make([]slotState, ring.SlotCount()),
		held:  make([]int, ring.SlotCount()),
		done:  make(chan struct{}),
		tp:    NewThroughput(time.Now()),
	}
}

// Start submits a read on every slot and starts the event loop. When ctx
// is done the loop stops resubmitting and drains; Stop must still be
// called to join it.
func (m *Manager) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	for i := range m.state {
		if err := m.ep.Submit(i, m.ring.Slot(i)); err != nil {
			m.state[i] = slotIdle
			m.stopping.Store(true)
			m.drain()
			m.ring.Close()
			return fmt.Errorf("submit slot %d: %w", i, err)
		}
		m.state[i] = slotSubmitted
	}
	logging.Info(logging.ComponentTransfer, "transfers submitted",
		"slots", len(m.state), "slot_size", m.ring.SlotSize())

	m.tp = NewThroughput(time.Now())
	m.wg.Add(2)
	go m.loop()
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			m.stopping.Store(true)
		case <-m.done:
		}
	}()
	return nil
}

// Stop stops resubmission, cancels every outstanding read, waits for them
// to finish (bounded by DrainTimeout), joins the event loop and closes
// the ring.
func (m *Manager) Stop() error {
	if !m.running.Load() {
		return ErrNotRunning
	}
	m.stopOnce.Do(func() {
		m.stopping.Store(true)
		m.closeDone()
		m.wg.Wait()
		m.ring.Close()
		logging.Info(logging.ComponentTransfer, "transfers stopped",
			"completions", m.completions.Load(), "errors", m.errors.Load())
	})
	return nil
}

// Completions returns the number of reads that finished successfully.
func (m *Manager) Completions() uint64 { return m.completions.Load() }

// Resubmits returns the number of reads resubmitted after completing.
func (m *Manager) Resubmits() uint64 { return m.resubmits.Load() }

// Errors returns the number of failed reads.
func (m *Manager) Errors() uint64 { return m.errors.Load() }

func (m *Manager) loop() {
	defer m.wg.Done()
	defer m.closeDone()

	for {
		if m.stopping.Load() {
			m.drain()
			return
		}

		c, err := m.ep.Reap(m.cfg.ReapTimeout)
		switch {
		case errors.Is(err, ErrTimeout):
		case err != nil:
			m.fatal(fmt.Errorf("reap: %w", err))
		default:
			m.complete(c)
		}

		now := time.Now()
		if m.tp.Due(now, m.cfg.ReportInterval) {
			s := m.tp.Sample(now)
			s.Errors = m.errors.Load()
			s.Resubmits = m.resubmits.Load()
			s.Overruns = m.ring.Overruns()
			if m.cfg.OnReport != nil {
				m.cfg.OnReport(s)
			}
		}
	}
}

func (m *Manager) complete(c Completion) {
	if c.Slot < 0 || c.Slot >= len(m.state) {
		logging.Warn(logging.ComponentTransfer, "completion for unknown slot", "slot", c.Slot)
		return
	}

	switch c.Status {
	case StatusCompleted:
		m.tp.Add(c.N)
		m.completions.Add(1)
		m.hold(c.Slot, c.N)
	case StatusError:
		m.errors.Add(1)
		logging.Warn(logging.ComponentTransfer, "transfer failed", "slot", c.Slot, "err", c.Err)
		m.hold(c.Slot, 0)
	case StatusCancelled:
		m.state[c.Slot] = slotCancelled
	case StatusNoDevice:
		m.state[c.Slot] = slotIdle
		m.fatal(ErrNoDevice)
	}
}

// hold records a finished read and publishes every held slot that is now
// next in ring order, resubmitting each one unless stopping. Reads are
// submitted in ring order, so a slot that finishes early waits here for
// its predecessors.
func (m *Manager) hold(slot, n int) {
	m.state[slot] = slotHeld
	m.held[slot] = n

	for {
		i := m.ring.Next()
		if m.state[i] != slotHeld {
			return
		}
		m.ring.Commit(i, m.held[i])
		m.state[i] = slotIdle
		if m.stopping.Load() {
			continue
		}
		if err := m.ep.Submit(i, m.ring.Slot(i)); err != nil {
			m.fatal(fmt.Errorf("resubmit slot %d: %w", i, err))
			return
		}
		m.state[i] = slotSubmitted
		m.resubmits.Add(1)
	}
}

// drain cancels every submitted slot and reaps until none is outstanding
// or the drain timeout passes.
func (m *Manager) drain() {
	for i, s := range m.state {
		if s != slotSubmitted {
			continue
		}
		if err := m.ep.Discard(i); err != nil {
			// the read may have finished already
			logging.Debug(logging.ComponentTransfer, "discard failed", "slot", i, "err", err)
		}
	}

	deadline := time.Now().Add(m.cfg.DrainTimeout)
	for m.outstanding() > 0 {
		left := time.Until(deadline)
		if left <= 0 {
			logging.Warn(logging.ComponentTransfer, "transfers still outstanding after drain",
				"slots", m.outstanding())
			return
		}
		c, err := m.ep.Reap(min(left, m.cfg.ReapTimeout))
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			logging.Warn(logging.ComponentTransfer, "reap during drain", "err", err)
			return
		}
		if c.Slot < 0 || c.Slot >= len(m.state) {
			continue
		}
		switch c.Status {
		case StatusCompleted:
			m.tp.Add(c.N)
			m.completions.Add(1)
			m.hold(c.Slot, c.N)
		case StatusError:
			m.hold(c.Slot, 0)
		default:
			m.state[c.Slot] = slotCancelled
		}
	}
}

func (m *Manager) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Manager) outstanding() int {
	n := 0
	for _, s := range m.state {
		if s == slotSubmitted {
			n++
		}
	}
	return n
}

func (m *Manager) fatal(err error) {
	m.stopping.Store(true)
	m.fatalOnce.Do(func() {
		logging.Error(logging.ComponentTransfer, "transfer stream failed", "err", err)
		if m.cfg.OnFatal != nil {
			m.cfg.OnFatal(err)
		}
	})
}
