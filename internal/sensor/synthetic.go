package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/frame"
	"github.com/banshee-data/sync-recorder/internal/timeutil"
)

// SyntheticSource produces a moving depth ramp at a fixed frame period,
// paced by a Clock. It stands in for a sensor on machines without one.
type SyntheticSource struct {
	desc   frame.Description
	clock  timeutil.Clock
	period time.Duration

	// DropPixelsEvery makes every Nth frame arrive without pixel data.
	// Zero disables it.
	DropPixelsEvery uint64

	mu      sync.Mutex
	next    time.Time
	started bool
	pending bool
	count   uint64
	closed  bool
}

// NewSyntheticSource returns a source delivering fps frames per second.
func NewSyntheticSource(desc frame.Description, fps float64, clock timeutil.Clock) (*SyntheticSource, error) {
	if err := desc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrConfiguration, err)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("%w: frame rate must be positive, got %v", errs.ErrConfiguration, fps)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticSource{
		desc:   desc,
		clock:  clock,
		period: time.Duration(float64(time.Second) / fps),
	}, nil
}

// Description returns the frame geometry.
func (s *SyntheticSource) Description() frame.Description {
	return s.desc
}

// HasNewFrame reports true once per elapsed frame period. Periods missed
// while the caller was busy collapse into a single frame.
func (s *SyntheticSource) HasNewFrame() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("%w: %w", errs.ErrDevice, ErrStreamEnded)
	}
	if s.pending {
		return true, nil
	}
	now := s.clock.Now()
	if !s.started {
		s.started = true
		s.next = now
	}
	if now.Before(s.next) {
		return false, nil
	}
	for !now.Before(s.next) {
		s.next = s.next.Add(s.period)
	}
	s.pending = true
	return true, nil
}

// LatestFrame returns the current ramp frame, or nil on dropped frames.
func (s *SyntheticSource) LatestFrame() (*frame.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: %w", errs.ErrDevice, ErrStreamEnded)
	}
	s.pending = false
	s.count++
	if s.DropPixelsEvery > 0 && s.count%s.DropPixelsEvery == 0 {
		return nil, nil
	}

	f := frame.NewFrame(s.desc)
	span := frame.DepthMax - frame.DepthMin
	shift := int(s.count) * 16
	for y := 0; y < s.desc.Height; y++ {
		for x := 0; x < s.desc.Width; x++ {
			v := (x*span/s.desc.Width + shift) % span
			f.Pix[y*s.desc.Width+x] = uint16(frame.DepthMin + v)
		}
	}
	return f, nil
}

// Close stops the source. Later calls report ErrStreamEnded.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
