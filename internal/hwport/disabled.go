package hwport

import (
	"errors"
	"sync"
)

// ErrPortClosed is returned by writes after Close.
var ErrPortClosed = errors.New("output port closed")

// DisabledPort is a no-op Port used when no trigger hardware is attached
// (--port-kind=disabled). It counts writes so a dry run still reports how
// many trigger values would have gone out.
type DisabledPort struct {
	mu     sync.Mutex
	writes uint64
	last   byte
	closed bool
}

func NewDisabledPort() *DisabledPort {
	return &DisabledPort{}
}

func (d *DisabledPort) WriteValue(v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrPortClosed
	}
	d.writes++
	d.last = v
	return nil
}

// Writes returns the number of values written and the last value.
func (d *DisabledPort) Writes() (uint64, byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes, d.last
}

func (d *DisabledPort) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
