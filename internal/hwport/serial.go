package hwport

import (
	"sync"

	"go.bug.st/serial"
)

// SerialPort writes trigger values to a serial-attached trigger box, one
// byte per value. The box latches each received byte onto its eight output
// lines.
type SerialPort[T Writer] struct {
	port    T
	writeMu sync.Mutex
	closed  bool
	buf     [1]byte
}

// NewSerialPort wraps an already opened device handle.
func NewSerialPort[T Writer](port T) *SerialPort[T] {
	return &SerialPort[T]{port: port}
}

// OpenSerialPort opens the serial device at path with the given options.
func OpenSerialPort(path string, opts PortOptions) (*SerialPort[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewSerialPort[serial.Port](port), nil
}

// WriteValue sends v to the trigger box.
func (s *SerialPort[T]) WriteValue(v byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrPortClosed
	}
	s.buf[0] = v
	n, err := s.port.Write(s.buf[:])
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrWriteFailed
	}
	return nil
}

// Close releases the device. Closing twice is a no-op.
func (s *SerialPort[T]) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
