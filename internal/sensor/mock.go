package sensor

import (
	"sync"

	"github.com/banshee-data/sync-recorder/internal/frame"
)

// Step is one scripted poll result for TestableSource.
type Step struct {
	// Ready is what HasNewFrame reports.
	Ready bool
	// Frame is what the following LatestFrame returns when Ready.
	Frame *frame.Frame
	// Err is returned from HasNewFrame instead of a result.
	Err error
	// FrameErr is returned from LatestFrame.
	FrameErr error
}

// TestableSource replays a fixed script of polls for tests. When the
// script runs out, HasNewFrame reports false and OnExhausted is called
// once.
type TestableSource struct {
	Desc        frame.Description
	Steps       []Step
	OnExhausted func()

	// OnPoll, when set, is called before each HasNewFrame with the number
	// of frames delivered so far.
	OnPoll func(delivered int)

	// CloseError is returned from Close.
	CloseError error

	mu        sync.Mutex
	pos       int
	current   *Step
	delivered int
	exhausted bool
	polls     int
	closed    bool
}

// Description returns Desc.
func (s *TestableSource) Description() frame.Description {
	return s.Desc
}

// HasNewFrame plays the next step.
func (s *TestableSource) HasNewFrame() (bool, error) {
	s.mu.Lock()
	onPoll := s.OnPoll
	delivered := s.delivered
	s.mu.Unlock()
	if onPoll != nil {
		onPoll(delivered)
	}

	s.mu.Lock()
	s.polls++
	if s.pos >= len(s.Steps) {
		fire := !s.exhausted && s.OnExhausted != nil
		s.exhausted = true
		s.mu.Unlock()
		if fire {
			s.OnExhausted()
		}
		return false, nil
	}
	step := s.Steps[s.pos]
	s.pos++
	if step.Err != nil {
		s.mu.Unlock()
		return false, step.Err
	}
	if step.Ready {
		s.current = &step
	}
	s.mu.Unlock()
	return step.Ready, nil
}

// LatestFrame returns the frame of the last ready step.
func (s *TestableSource) LatestFrame() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	step := s.current
	s.current = nil
	if step.FrameErr != nil {
		return nil, step.FrameErr
	}
	s.delivered++
	return step.Frame, nil
}

// Polls returns how many times HasNewFrame was called.
func (s *TestableSource) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Close records the call and returns CloseError.
func (s *TestableSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseError
}

// IsClosed reports whether Close was called.
func (s *TestableSource) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
