package sensor

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/monitoring"
)

// PipeSource reads raw little-endian uint16 frames of a fixed geometry from
// a stream, normally the stdout of a capture helper process. A reader
// goroutine keeps only the most recent frame; older unread frames are
// replaced.
type PipeSource struct {
	desc frame.Description
	r    io.ReadCloser

	cmd    *exec.Cmd
	cancel context.CancelFunc

	mu      sync.Mutex
	latest  *frame.Frame
	fresh   bool
	err     error
	read    uint64
	dropped uint64

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewPipeSource starts reading frames from r.
func NewPipeSource(desc frame.Description, r io.ReadCloser) (*PipeSource, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	s := &PipeSource{
		desc: desc,
		r:    r,
		done: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// StartCapture runs the capture helper and reads frames from its stdout.
// The process is killed when the source is closed.
func StartCapture(desc frame.Description, name string, args ...string) (*PipeSource, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: capture stdout: %w", errs.ErrDevice, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start %s: %w", errs.ErrDevice, name, err)
	}
	monitoring.Logf("capture helper %s started (pid %d)", name, cmd.Process.Pid)

	s, err := NewPipeSource(desc, out)
	if err != nil {
		cancel()
		cmd.Wait()
		return nil, err
	}
	s.cmd = cmd
	s.cancel = cancel
	return s, nil
}

func (s *PipeSource) readLoop() {
	defer close(s.done)

	br := bufio.NewReaderSize(s.r, 2*s.desc.Pixels())
	buf := make([]byte, 2*s.desc.Pixels())
	for {
		if _, err := io.ReadFull(br, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrStreamEnded
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		f := frame.NewFrame(s.desc)
		for i := range f.Pix {
			f.Pix[i] = binary.LittleEndian.Uint16(buf[2*i:])
		}

		s.mu.Lock()
		if s.fresh {
			s.dropped++
		}
		s.latest = f
		s.fresh = true
		s.read++
		s.mu.Unlock()
	}
}

// Description returns the frame geometry.
func (s *PipeSource) Description() frame.Description {
	return s.desc
}

// HasNewFrame reports whether an unread frame is waiting. Once the stream
// has failed and no unread frame remains, the failure is returned as a
// device error.
func (s *PipeSource) HasNewFrame() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fresh {
		return true, nil
	}
	if s.err != nil {
		return false, fmt.Errorf("%w: %w", errs.ErrDevice, s.err)
	}
	return false, nil
}

// LatestFrame returns the most recent frame and marks it read.
func (s *PipeSource) LatestFrame() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fresh = false
	return s.latest, nil
}

// Stats returns how many frames were read from the stream and how many
// were replaced before being consumed.
func (s *PipeSource) Stats() (read, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read, s.dropped
}

// Close stops the capture helper, closes the stream and waits for the
// reader goroutine.
func (s *PipeSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.closeErr = s.r.Close()
		<-s.done
		if s.cmd != nil {
			// killed by cancel, so the exit status is not interesting
			s.cmd.Wait()
		}
	})
	return s.closeErr
}
