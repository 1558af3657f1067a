//go:build linux

package usb

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"digitalrgb/capture"
	"digitalrgb/logging"
)

// Device is an open usbfs device node.
type Device struct {
	mu      sync.Mutex
	fd      int
	path    string
	iface   int
	claimed bool
}

// Open finds the device with the given IDs in sysfs and opens it.
func Open(vid, pid uint16) (*Device, error) {
	info, err := Find(SysfsUSBPath, vid, pid)
	if err != nil {
		return nil, err
	}
	logging.Info(logging.ComponentUSB, "device found", "device", info.String(), "speed", info.Speed)
	return OpenPath(info.DevPath)
}

// OpenPath opens a usbfs device node such as /dev/bus/usb/001/005.
func OpenPath(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{fd: fd, path: path, iface: -1}, nil
}

func (d *Device) ioctl(req uintptr, arg unsafe.Pointer) (int, error) {
	for {
		r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return int(r), errno
		}
		return int(r), nil
	}
}

// Claim detaches any kernel driver from iface, claims it and selects the
// alternate setting alt.
func (d *Device) Claim(iface, alt int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return ErrClosed
	}

	dc := disconnectClaim{iface: uint32(iface)}
	_, err := d.ioctl(ioctlDisconnectClaim, unsafe.Pointer(&dc))
	if errors.Is(err, unix.ENOTTY) {
		// kernels before 3.10 only have the plain claim
		n := uint32(iface)
		_, err = d.ioctl(ioctlClaimInterface, unsafe.Pointer(&n))
	}
	if err != nil {
		return fmt.Errorf("claim interface %d: %w", iface, err)
	}
	d.iface = iface
	d.claimed = true

	si := setInterface{iface: uint32(iface), altSetting: uint32(alt)}
	if _, err := d.ioctl(ioctlSetInterface, unsafe.Pointer(&si)); err != nil {
		return fmt.Errorf("set interface %d alt setting %d: %w", iface, alt, err)
	}
	logging.Info(logging.ComponentUSB, "interface claimed", "interface", iface, "alt", alt)
	return nil
}

// Control performs a synchronous control transfer and returns the number
// of bytes transferred in the data stage.
func (d *Device) Control(requestType, request uint8, value, index uint16, data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return 0, ErrClosed
	}

	ct := ctrlTransfer{
		requestType: requestType,
		request:     request,
		value:       value,
		index:       index,
		length:      uint16(len(data)),
		timeout:     uint32(timeout / time.Millisecond),
	}
	if len(data) > 0 {
		ct.data = uintptr(unsafe.Pointer(&data[0]))
	}
	n, err := d.ioctl(ioctlControl, unsafe.Pointer(&ct))
	if err != nil {
		return 0, fmt.Errorf("control transfer %#02x/%#02x: %w", requestType, request, mapErrno(err))
	}
	return n, nil
}

// BulkIn returns the bulk IN endpoint ep with room for slots concurrent
// reads.
func (d *Device) BulkIn(ep uint8, slots int) *BulkIn {
	return &BulkIn{
		dev:  d,
		ep:   ep,
		urbs: make([]urb, slots),
		bufs: make([][]byte, slots),
	}
}

// Close releases the claimed interface and closes the device node.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	if d.claimed {
		n := uint32(d.iface)
		if _, err := d.ioctl(ioctlReleaseInterface, unsafe.Pointer(&n)); err != nil {
			logging.Debug(logging.ComponentUSB, "release interface", "err", err)
		}
		d.claimed = false
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// BulkIn keeps one asynchronous read (URB) per slot in flight on a bulk
// IN endpoint. Submit, Reap and Discard must be called from one goroutine.
type BulkIn struct {
	dev  *Device
	ep   uint8
	urbs []urb
	// keeps submitted buffers reachable while the kernel owns them
	bufs [][]byte
}

var _ capture.Endpoint = (*BulkIn)(nil)

// Submit queues a read into buf for slot.
func (b *BulkIn) Submit(slot int, buf []byte) error {
	if slot < 0 || slot >= len(b.urbs) {
		return fmt.Errorf("usb: slot %d out of range", slot)
	}
	if len(buf) == 0 {
		return fmt.Errorf("usb: empty buffer for slot %d", slot)
	}

	u := &b.urbs[slot]
	*u = urb{
		typ:          urbTypeBulk,
		endpoint:     b.ep,
		buffer:       uintptr(unsafe.Pointer(&buf[0])),
		bufferLength: int32(len(buf)),
		userContext:  uintptr(slot),
	}
	b.bufs[slot] = buf

	if _, err := b.dev.ioctl(ioctlSubmitURB, unsafe.Pointer(u)); err != nil {
		b.bufs[slot] = nil
		return fmt.Errorf("submit urb: %w", mapErrno(err))
	}
	return nil
}

// Reap waits up to timeout for a read to finish.
func (b *BulkIn) Reap(timeout time.Duration) (capture.Completion, error) {
	deadline := time.Now().Add(timeout)
	for {
		var u *urb
		_, err := b.dev.ioctl(ioctlReapURBNDelay, unsafe.Pointer(&u))
		if err == nil {
			slot := int(u.userContext)
			b.bufs[slot] = nil
			return completion(slot, u.status, int(u.actualLength)), nil
		}
		if !errors.Is(err, unix.EAGAIN) {
			return capture.Completion{}, fmt.Errorf("reap urb: %w", mapErrno(err))
		}

		left := time.Until(deadline)
		if left <= 0 {
			return capture.Completion{}, capture.ErrTimeout
		}
		if err := b.wait(left); err != nil {
			return capture.Completion{}, err
		}
	}
}

// wait blocks until a URB has completed (the fd becomes writable) or d
// has passed.
func (b *BulkIn) wait(d time.Duration) error {
	ms := int(d / time.Millisecond)
	if ms == 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(b.dev.fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, ms)
	if errors.Is(err, unix.EINTR) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if n > 0 && fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 && fds[0].Revents&unix.POLLOUT == 0 {
		return capture.ErrNoDevice
	}
	return nil
}

// Discard cancels the read on slot.
func (b *BulkIn) Discard(slot int) error {
	if slot < 0 || slot >= len(b.urbs) {
		return fmt.Errorf("usb: slot %d out of range", slot)
	}
	if _, err := b.dev.ioctl(ioctlDiscardURB, unsafe.Pointer(&b.urbs[slot])); err != nil {
		return fmt.Errorf("discard urb: %w", err)
	}
	return nil
}

// completion translates a URB status (a negated errno) into a Completion.
func completion(slot int, status int32, n int) capture.Completion {
	c := capture.Completion{Slot: slot, N: n}
	if status == 0 {
		c.Status = capture.StatusCompleted
		return c
	}

	errno := unix.Errno(-status)
	c.Err = errno
	switch errno {
	case unix.ENOENT, unix.ECONNRESET:
		c.Status = capture.StatusCancelled
	case unix.ENODEV, unix.ESHUTDOWN:
		c.Status = capture.StatusNoDevice
	default:
		// EPIPE (stall), ETIMEDOUT, EOVERFLOW, EPROTO, EILSEQ
		c.Status = capture.StatusError
	}
	return c
}

func mapErrno(err error) error {
	if errors.Is(err, unix.ENODEV) {
		return fmt.Errorf("%w: %w", capture.ErrNoDevice, err)
	}
	return err
}
