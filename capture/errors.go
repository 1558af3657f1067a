package capture

import "errors"

var (
	// ErrClosed is returned by ReadByte once the ring has been closed.
	ErrClosed = errors.New("capture: ring closed")

	// ErrNotRunning is returned by Stop on a manager that was never started.
	ErrNotRunning = errors.New("capture: transfer manager not running")

	// ErrRunning is returned by Start on a manager that is already running.
	ErrRunning = errors.New("capture: transfer manager already running")

	// ErrTimeout is returned by Endpoint.Reap when nothing completed in time.
	ErrTimeout = errors.New("capture: reap timeout")

	// ErrNoDevice is reported through the fatal hook when the device goes away.
	ErrNoDevice = errors.New("capture: device disconnected")
)
