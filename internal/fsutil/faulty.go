package fsutil

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by FaultyFileSystem.
var ErrInjected = errors.New("injected filesystem failure")

// FaultyFileSystem wraps a FileSystem and fails selected operations, for
// exercising error paths (disk full, permission denied) in tests.
type FaultyFileSystem struct {
	FileSystem

	mu sync.Mutex

	// Err is returned by failing operations; ErrInjected when nil.
	Err error

	// FailMkdir makes MkdirAll fail.
	FailMkdir bool

	// FailCreate makes Create fail for names containing this substring.
	FailCreate string

	// FailWriteFileAfter makes WriteFile fail once this many WriteFile
	// calls have succeeded. Negative disables the fault.
	FailWriteFileAfter int

	// FailHandleWritesAfter makes writes through Create handles fail once
	// this many have succeeded. Negative disables the fault.
	FailHandleWritesAfter int

	writeFiles   int
	handleWrites int
}

// NewFaultyFileSystem wraps inner with all faults disabled.
func NewFaultyFileSystem(inner FileSystem) *FaultyFileSystem {
	return &FaultyFileSystem{
		FileSystem:            inner,
		FailWriteFileAfter:    -1,
		FailHandleWritesAfter: -1,
	}
}

func (f *FaultyFileSystem) err() error {
	if f.Err != nil {
		return f.Err
	}
	return ErrInjected
}

// MkdirAll fails when FailMkdir is set.
func (f *FaultyFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if f.FailMkdir {
		return f.err()
	}
	return f.FileSystem.MkdirAll(path, perm)
}

// Create fails for matching names and wraps the handle otherwise.
func (f *FaultyFileSystem) Create(name string) (io.WriteCloser, error) {
	if f.FailCreate != "" && strings.Contains(name, f.FailCreate) {
		return nil, f.err()
	}
	w, err := f.FileSystem.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultyWriter{WriteCloser: w, fs: f}, nil
}

// WriteFile fails after FailWriteFileAfter successful calls.
func (f *FaultyFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	f.mu.Lock()
	fail := f.FailWriteFileAfter >= 0 && f.writeFiles >= f.FailWriteFileAfter
	if !fail {
		f.writeFiles++
	}
	f.mu.Unlock()
	if fail {
		return f.err()
	}
	return f.FileSystem.WriteFile(name, data, perm)
}

type faultyWriter struct {
	io.WriteCloser
	fs *FaultyFileSystem
}

func (w *faultyWriter) Write(p []byte) (int, error) {
	w.fs.mu.Lock()
	fail := w.fs.FailHandleWritesAfter >= 0 && w.fs.handleWrites >= w.fs.FailHandleWritesAfter
	if !fail {
		w.fs.handleWrites++
	}
	w.fs.mu.Unlock()
	if fail {
		return 0, w.fs.err()
	}
	return w.WriteCloser.Write(p)
}
