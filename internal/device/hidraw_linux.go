// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

//go:build linux

package device

import (
	"bytes"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/relabs-tech/head_tracker/internal/fusion"
)

// hidraw ioctl numbers from linux/hidraw.h.
const (
	iocWrite = 1
	iocRead  = 2

	hidNrGetRawInfo = 0x03
	hidNrGetRawName = 0x04
	hidNrSetFeature = 0x06
	hidNrGetFeature = 0x07
	hidNrGetRawUniq = 0x08

	hidStringSize = 256
)

func hidIoc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | uintptr('H')<<8 | nr
}

type hidrawDevInfo struct {
	BusType uint32
	Vendor  int16
	Product int16
}

type hidrawDevice struct {
	mu     sync.Mutex
	fd     int
	path   string
	info   fusion.SensorInfo
	closed bool
}

// OpenHIDRaw opens a Linux hidraw node such as /dev/hidraw0.
func OpenHIDRaw(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	d := &hidrawDevice{fd: fd, path: path}

	var raw hidrawDevInfo
	if err := d.ioctl(hidIoc(iocRead, hidNrGetRawInfo, unsafe.Sizeof(raw)), unsafe.Pointer(&raw)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("device: %s raw info: %w", path, err)
	}
	d.info = fusion.SensorInfo{
		Product:      d.ioctlString(hidNrGetRawName),
		VendorID:     uint16(raw.Vendor),
		ProductID:    uint16(raw.Product),
		SerialNumber: d.ioctlString(hidNrGetRawUniq),
	}
	return d, nil
}

func (d *hidrawDevice) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// ioctlString reads one of the string ioctls. Older kernels lack
// HIDIOCGRAWUNIQ, so failures read as empty.
func (d *hidrawDevice) ioctlString(nr uintptr) string {
	buf := make([]byte, hidStringSize)
	if err := d.ioctl(hidIoc(iocRead, nr, hidStringSize), unsafe.Pointer(&buf[0])); err != nil {
		return ""
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

func (d *hidrawDevice) ReadReport(buf []byte) (int, error) {
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		d.mu.Lock()
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("device: read %s: %w", d.path, err)
	}
	return n, nil
}

func (d *hidrawDevice) SetFeature(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("device: empty feature report")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	req := hidIoc(iocRead|iocWrite, hidNrSetFeature, uintptr(len(buf)))
	if err := d.ioctl(req, unsafe.Pointer(&buf[0])); err != nil {
		return fmt.Errorf("device: set feature %d: %w", buf[0], err)
	}
	return nil
}

func (d *hidrawDevice) GetFeature(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("device: empty feature buffer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	req := hidIoc(iocRead|iocWrite, hidNrGetFeature, uintptr(len(buf)))
	n, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, fmt.Errorf("device: get feature %d: %w", buf[0], errno)
	}
	return int(n), nil
}

func (d *hidrawDevice) Info() fusion.SensorInfo { return d.info }

func (d *hidrawDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}
