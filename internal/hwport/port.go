// Package hwport drives the digital output port that carries trigger codes
// to the external recording system. The port is write-only and
// fire-and-forget: there is no read-back and no acknowledgement.
package hwport

import (
	"fmt"
	"io"
)

// ErrWriteFailed reports a short write to the underlying device.
var ErrWriteFailed = fmt.Errorf("failed to write to output port")

// Port accepts 8-bit values. Each WriteValue sets all eight data lines at
// once; the lines keep their state until the next write.
type Port interface {
	WriteValue(v byte) error
	Close() error
}

// Writer is the minimal device handle a byte-oriented port needs.
// This abstraction enables unit testing without real hardware.
type Writer interface {
	io.Writer
	io.Closer
}

// Kind selects a port implementation.
type Kind string

const (
	KindSerial   Kind = "serial"
	KindParallel Kind = "parallel"
	KindDisabled Kind = "disabled"
)

// ParseKind validates a port kind given on the command line.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSerial, KindParallel, KindDisabled:
		return k, nil
	case "none", "":
		return KindDisabled, nil
	default:
		return "", fmt.Errorf("unknown port kind %q: expected serial, parallel or disabled", s)
	}
}
