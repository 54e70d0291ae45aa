// Package recorder persists captured frames as sequence-numbered files and
// keeps the per-session timestamp log.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/fsutil"
)

// ErrSequence is returned when a frame does not carry the next sequence
// number.
var ErrSequence = errors.New("frame sequence out of order")

// FrameEvent is one captured frame. Frame is nil when the device signalled
// a frame but delivered no pixel data.
type FrameEvent struct {
	Sequence  uint64
	Timestamp time.Time
	Frame     *frame.Frame
}

// Recorder writes frame files and timestamp log lines into one session
// directory.
type Recorder struct {
	fs      fsutil.FileSystem
	dir     string
	layout  Layout
	enc     Encoder
	surface *frame.Surface

	mu      sync.Mutex
	log     io.WriteCloser
	lastSeq uint64
	closed  bool
}

// New creates the timestamp log in dir. The directory must already exist.
func New(fs fsutil.FileSystem, dir string, layout Layout, enc Encoder, surface *frame.Surface) (*Recorder, error) {
	if enc == nil || surface == nil {
		return nil, fmt.Errorf("recorder needs an encoder and a surface")
	}
	logPath := filepath.Join(dir, layout.LogName)
	log, err := fs.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", errs.ErrIO, logPath, err)
	}
	return &Recorder{
		fs:      fs,
		dir:     dir,
		layout:  layout,
		enc:     enc,
		surface: surface,
		log:     log,
	}, nil
}

// NextSequence returns the sequence number the next Record call must use.
func (r *Recorder) NextSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq + 1
}

// Record draws the frame, writes its file and then appends the log line.
// A frame without pixel data still produces both, holding whatever the
// surface last showed.
func (r *Recorder) Record(ev FrameEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("%w: recorder is closed", errs.ErrIO)
	}
	if ev.Sequence != r.lastSeq+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrSequence, ev.Sequence, r.lastSeq+1)
	}

	if _, err := r.surface.Draw(ev.Frame); err != nil {
		return fmt.Errorf("%w: frame %d: %w", errs.ErrDevice, ev.Sequence, err)
	}

	data, err := r.enc.Encode(r.surface)
	if err != nil {
		return fmt.Errorf("%w: encode frame %d: %w", errs.ErrIO, ev.Sequence, err)
	}
	name := filepath.Join(r.dir, r.layout.FrameName(ev.Sequence, r.enc.Ext()))
	if err := r.fs.WriteFile(name, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %w", errs.ErrIO, name, err)
	}

	// one Write per line on an unbuffered handle
	if _, err := io.WriteString(r.log, LogLine(ev.Sequence, ev.Timestamp)); err != nil {
		return fmt.Errorf("%w: log frame %d: %w", errs.ErrIO, ev.Sequence, err)
	}

	r.lastSeq = ev.Sequence
	return nil
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// Path returns the session directory.
func (r *Recorder) Path() string {
	return r.dir
}

// LogPath returns the path of the timestamp log.
func (r *Recorder) LogPath() string {
	return filepath.Join(r.dir, r.layout.LogName)
}

// Close closes the timestamp log. Calling Close more than once is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.log.Close(); err != nil {
		return fmt.Errorf("%w: close log: %w", errs.ErrIO, err)
	}
	return nil
}
