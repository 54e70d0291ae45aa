package hwport

import (
	"bytes"
	"errors"
	"sync"
)

// TestablePort implements Port with configurable behaviour for testing.
// It records every value written, in order.
type TestablePort struct {
	mu sync.Mutex

	values []byte

	// WriteError is returned by every WriteValue call once FailAfter
	// successful writes have happened. FailAfter of 0 fails immediately.
	WriteError error
	FailAfter  int

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// CloseCalls records the number of Close calls
	CloseCalls int
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	return &TestablePort{}
}

// WriteValue records v, or fails as configured.
func (t *TestablePort) WriteValue(v byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return ErrPortClosed
	}
	if t.WriteError != nil && len(t.values) >= t.FailAfter {
		return t.WriteError
	}
	t.values = append(t.values, v)
	return nil
}

// Close marks the port as closed.
func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.CloseCalls++
	return t.CloseError
}

// Values returns a copy of all values written so far.
func (t *TestablePort) Values() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]byte, len(t.values))
	copy(out, t.values)
	return out
}

// IsClosed reports whether Close has been called.
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// TestableWriter implements Writer for exercising SerialPort without a
// device. It captures written bytes and can simulate errors and short writes.
type TestableWriter struct {
	mu sync.Mutex

	// WriteBuffer captures data written to the device
	WriteBuffer *bytes.Buffer

	// WriteError is returned by the next Write call if set
	WriteError error

	// ShortWrite makes Write report zero bytes written without an error
	ShortWrite bool

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// WriteCalls records the number of Write calls
	WriteCalls int
}

// NewTestableWriter creates a new TestableWriter for testing.
func NewTestableWriter() *TestableWriter {
	return &TestableWriter{WriteBuffer: bytes.NewBuffer(nil)}
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableWriter) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errors.New("device closed")
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.ShortWrite {
		return 0, nil
	}

	return t.WriteBuffer.Write(p)
}

// Close marks the device as closed.
func (t *TestableWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// GetWrittenData returns all data written to the device.
func (t *TestableWriter) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]byte(nil), t.WriteBuffer.Bytes()...)
}
