// Package frame holds the sensor frame type and the preview surface that
// keeps the most recently drawn image between frames.
package frame

import "fmt"

// Depth clipping range in millimetres, and the divisor that maps the
// clipped range onto 8 bits.
const (
	DepthMin     = 1
	DepthMax     = 4000
	DepthDivisor = 16
)

// Description gives the fixed geometry of a sensor stream.
type Description struct {
	Width  int
	Height int
}

// Pixels returns Width*Height.
func (d Description) Pixels() int {
	return d.Width * d.Height
}

// Validate checks that the geometry is usable.
func (d Description) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", d.Width, d.Height)
	}
	return nil
}

// Frame is one image from the sensor: row-major 16-bit samples (depth in
// millimetres or infrared intensity).
type Frame struct {
	Width  int
	Height int
	Pix    []uint16
}

// NewFrame allocates a zeroed frame with the given geometry.
func NewFrame(desc Description) *Frame {
	return &Frame{
		Width:  desc.Width,
		Height: desc.Height,
		Pix:    make([]uint16, desc.Pixels()),
	}
}

// Validate checks that the pixel slice matches the frame geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame has %d samples, want %d", len(f.Pix), f.Width*f.Height)
	}
	return nil
}

// DepthTo8Bit maps a depth sample to the 8-bit preview scale.
func DepthTo8Bit(v uint16) uint8 {
	if v < DepthMin {
		v = DepthMin
	}
	if v > DepthMax {
		v = DepthMax
	}
	return uint8(v / DepthDivisor)
}
