// Package sensor defines the frame source the acquisition loop polls and
// the adapters that feed it.
package sensor

import (
	"errors"

	"github.com/banshee-data/sync-recorder/internal/frame"
)

// ErrStreamEnded is reported once a source can deliver no further frames.
var ErrStreamEnded = errors.New("sensor stream ended")

// Source is a non-blocking view of a sensor stream. HasNewFrame reports
// whether a frame arrived since the last LatestFrame call. LatestFrame may
// return a nil frame without error when the device signalled a frame but
// carried no pixel data.
type Source interface {
	Description() frame.Description
	HasNewFrame() (bool, error)
	LatestFrame() (*frame.Frame, error)
	Close() error
}
