package frame

import (
	"fmt"
	"sync"
)

// Surface is the back buffer shared by the preview window and the frame
// recorder. Drawing a frame replaces its contents; a frame without pixel
// data leaves the previous contents in place, so whatever was drawn last
// (or the initial blank buffer) is what the recorder persists next.
type Surface struct {
	mu    sync.RWMutex
	desc  Description
	raw   []uint16
	gray  []uint8
	draws uint64
}

// NewSurface returns a blank surface of the given geometry.
func NewSurface(desc Description) (*Surface, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &Surface{
		desc: desc,
		raw:  make([]uint16, desc.Pixels()),
		gray: make([]uint8, desc.Pixels()),
	}, nil
}

// Description returns the surface geometry.
func (s *Surface) Description() Description {
	return s.desc
}

// Draw copies f into the surface. A nil frame or a frame with no samples is
// ignored and Draw reports false.
func (s *Surface) Draw(f *Frame) (bool, error) {
	if f == nil || len(f.Pix) == 0 {
		return false, nil
	}
	if f.Width != s.desc.Width || f.Height != s.desc.Height {
		return false, fmt.Errorf("frame size %dx%d does not match surface %dx%d",
			f.Width, f.Height, s.desc.Width, s.desc.Height)
	}
	if err := f.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.raw, f.Pix)
	for i, v := range f.Pix {
		s.gray[i] = DepthTo8Bit(v)
	}
	s.draws++
	return true, nil
}

// Raw returns a copy of the last drawn 16-bit samples.
func (s *Surface) Raw() []uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint16, len(s.raw))
	copy(out, s.raw)
	return out
}

// Gray returns a copy of the 8-bit rendering of the last drawn frame.
func (s *Surface) Gray() []uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint8, len(s.gray))
	copy(out, s.gray)
	return out
}

// Draws returns how many frames have been drawn so far.
func (s *Surface) Draws() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draws
}
