//go:build linux

package hwport

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ppdev ioctl requests, see linux/ppdev.h.
const (
	ppClaim   = 0x708b     // _IO('p', 0x8b)
	ppRelease = 0x708c     // _IO('p', 0x8c)
	ppWData   = 0x40017086 // _IOW('p', 0x86, unsigned char)
)

// ParallelPort drives the data lines of a PC parallel port through the
// Linux ppdev interface (/dev/parportN).
type ParallelPort struct {
	mu     sync.Mutex
	fd     int
	path   string
	closed bool
}

// OpenParallelPort opens and claims the parallel port at path.
func OpenParallelPort(path string) (*ParallelPort, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := ioctl(fd, ppClaim, nil); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("claim %s: %w", path, err)
	}
	return &ParallelPort{fd: fd, path: path}, nil
}

// WriteValue sets the eight data lines to v.
func (p *ParallelPort) WriteValue(v byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPortClosed
	}
	b := v
	if err := ioctl(p.fd, ppWData, unsafe.Pointer(&b)); err != nil {
		return fmt.Errorf("write %s: %w", p.path, err)
	}
	return nil
}

// Close releases and closes the port. The data lines keep their last value.
func (p *ParallelPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	relErr := ioctl(p.fd, ppRelease, nil)
	if err := unix.Close(p.fd); err != nil {
		return err
	}
	return relErr
}

// ioctl converts arg to uintptr in the Syscall call itself so the pointed-to
// value stays valid for the duration of the call.
func ioctl(fd int, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
