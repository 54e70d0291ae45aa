// Package errs defines the error kinds a recording session can fail with.
//
// Call sites wrap one of the kinds together with the underlying cause, e.g.
//
//	fmt.Errorf("%w: write frame %d: %w", errs.ErrIO, seq, err)
//
// so callers can classify failures with errors.Is. None of these kinds is
// recoverable inside a session.
package errs

import "errors"

var (
	// ErrConfiguration reports a malformed pin mapping, an out-of-range
	// trigger code or any other invalid configuration value. It is raised
	// before any hardware or file I/O takes place.
	ErrConfiguration = errors.New("configuration error")

	// ErrDirectory reports that the session output directory could not be
	// created.
	ErrDirectory = errors.New("directory error")

	// ErrIO reports a failed frame, log or snapshot write.
	ErrIO = errors.New("i/o error")

	// ErrDevice reports a sensor or output port that stopped responding.
	ErrDevice = errors.New("device error")
)
