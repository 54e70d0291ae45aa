// Package preview renders the recording surface with OpenCV: a live
// window and the PNG encoding used for depth frames.
package preview

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/sync-recorder/internal/frame"
)

// surfaceMat returns the 8-bit rendering of s as a three-channel BGR Mat.
// The caller closes it.
func surfaceMat(s *frame.Surface) (gocv.Mat, error) {
	desc := s.Description()
	gray, err := gocv.NewMatFromBytes(desc.Height, desc.Width, gocv.MatTypeCV8UC1, s.Gray())
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("gray mat: %w", err)
	}
	defer gray.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr, nil
}

// PNGEncoder stores the depth rendering as a 24-bit PNG.
type PNGEncoder struct{}

// Ext returns ".png".
func (PNGEncoder) Ext() string { return ".png" }

// Encode renders the surface and compresses it.
func (PNGEncoder) Encode(s *frame.Surface) ([]byte, error) {
	mat, err := surfaceMat(s)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory released by Close
	return append([]byte(nil), buf.GetBytes()...), nil
}
