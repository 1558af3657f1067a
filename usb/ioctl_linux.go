//go:build linux

package usb

import "unsafe"

// ioctl encoding (asm-generic layout):
//
//	bits 0-7:   command number (nr)
//	bits 8-15:  ioctl type (type)
//	bits 16-29: argument size (size)
//	bits 30-31: direction (dir)

const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2
)

const (
	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (typ << iocTypeShift) | (nr << iocNRShift) | (size << iocSizeShift)
}

func ior(typ, nr, size uintptr) uintptr { return ioc(iocRead, typ, nr, size) }
func iow(typ, nr, size uintptr) uintptr { return ioc(iocWrite, typ, nr, size) }
func iowr(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }
func ion(typ, nr uintptr) uintptr { return ioc(iocNone, typ, nr, 0) }

const usbdevfsType = 'U'

// usbdevfs command numbers.
const (
	nrControl          = 0
	nrSetInterface     = 4
	nrSubmitURB        = 10
	nrDiscardURB       = 11
	nrReapURBNDelay    = 13
	nrClaimInterface   = 15
	nrReleaseInterface = 16
	nrDisconnectClaim  = 27
)

// urb matches the kernel's struct usbdevfs_urb without ISO descriptors.
type urb struct {
	typ          uint8
	endpoint     uint8
	status       int32
	flags        uint32
	buffer       uintptr
	bufferLength int32
	actualLength int32
	startFrame   int32
	streamID     uint32
	errorCount   int32
	signr        uint32
	userContext  uintptr
}

// ctrlTransfer matches struct usbdevfs_ctrltransfer.
type ctrlTransfer struct {
	requestType uint8
	request     uint8
	value       uint16
	index       uint16
	length      uint16
	timeout     uint32
	data        uintptr
}

// setInterface matches struct usbdevfs_setinterface.
type setInterface struct {
	iface      uint32
	altSetting uint32
}

// disconnectClaim matches struct usbdevfs_disconnect_claim.
type disconnectClaim struct {
	iface  uint32
	flags  uint32
	driver [256]byte
}

const urbTypeBulk = 3

var (
	ioctlControl          = iowr(usbdevfsType, nrControl, unsafe.Sizeof(ctrlTransfer{}))
	ioctlSetInterface     = ior(usbdevfsType, nrSetInterface, unsafe.Sizeof(setInterface{}))
	ioctlSubmitURB        = ior(usbdevfsType, nrSubmitURB, unsafe.Sizeof(urb{}))
	ioctlDiscardURB       = ion(usbdevfsType, nrDiscardURB)
	ioctlReapURBNDelay    = iow(usbdevfsType, nrReapURBNDelay, unsafe.Sizeof(uintptr(0)))
	ioctlClaimInterface   = ior(usbdevfsType, nrClaimInterface, unsafe.Sizeof(uint32(0)))
	ioctlReleaseInterface = ior(usbdevfsType, nrReleaseInterface, unsafe.Sizeof(uint32(0)))
	ioctlDisconnectClaim  = ior(usbdevfsType, nrDisconnectClaim, unsafe.Sizeof(disconnectClaim{}))
)
