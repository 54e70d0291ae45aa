// Package epoch decides which logical trigger code accompanies each
// captured frame.
//
// Every IntervalFrames-th frame carries a cycling epoch code 1, 2, ...,
// EpochCount-1, 1, 2, ...; all other frames carry the background code.
// Session start and end codes are emitted by the session itself and never
// come from the scheduler.
package epoch

import (
	"fmt"

	"github.com/banshee-data/sync-recorder/internal/errs"
)

// Kind classifies a decision.
type Kind int

const (
	Background Kind = iota
	Epoch
)

func (k Kind) String() string {
	switch k {
	case Background:
		return "background"
	case Epoch:
		return "epoch"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Decision is the code chosen for one frame.
type Decision struct {
	Sequence uint64
	Code     int
	Kind     Kind
}

// Scheduler holds the epoch cursor for one session. It is not safe for
// concurrent use; the acquisition loop owns it.
type Scheduler struct {
	intervalFrames uint64
	epochCount     int
	backgroundCode int

	counter int

	epochs      uint64
	backgrounds uint64
}

// New returns a scheduler with the cursor at 1.
func New(intervalFrames, epochCount, backgroundCode int) (*Scheduler, error) {
	if intervalFrames < 1 {
		return nil, fmt.Errorf("%w: interval frames must be at least 1, got %d", errs.ErrConfiguration, intervalFrames)
	}
	if epochCount < 2 {
		return nil, fmt.Errorf("%w: epoch count must be at least 2, got %d", errs.ErrConfiguration, epochCount)
	}
	return &Scheduler{
		intervalFrames: uint64(intervalFrames),
		epochCount:     epochCount,
		backgroundCode: backgroundCode,
		counter:        1,
	}, nil
}

// Next returns the decision for the frame with sequence number seq.
//
// The wrap check runs before the interval test, so a frame can both reset
// the counter and carry the reset value.
func (s *Scheduler) Next(seq uint64) Decision {
	if s.counter == s.epochCount {
		s.counter = 1
	}
	if seq%s.intervalFrames == 0 {
		d := Decision{Sequence: seq, Code: s.counter, Kind: Epoch}
		s.counter++
		s.epochs++
		return d
	}
	s.backgrounds++
	return Decision{Sequence: seq, Code: s.backgroundCode, Kind: Background}
}

// Counter returns the code the next interval frame will carry, before any
// pending wrap is applied.
func (s *Scheduler) Counter() int {
	return s.counter
}

// Counts returns how many epoch and background decisions were made.
func (s *Scheduler) Counts() (epochs, backgrounds uint64) {
	return s.epochs, s.backgrounds
}
