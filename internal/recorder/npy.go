package recorder

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/sync-recorder/internal/frame"
)

// Encoder turns the current surface contents into the bytes of one frame
// file.
type Encoder interface {
	// Ext is the file extension including the dot.
	Ext() string
	Encode(s *frame.Surface) ([]byte, error)
}

var npyMagic = []byte("\x93NUMPY")

// NPYEncoder writes the raw 16-bit samples as a NumPy version 1.0 array of
// shape (height, width), little-endian uint16.
type NPYEncoder struct{}

// Ext returns ".npy".
func (NPYEncoder) Ext() string { return ".npy" }

// Encode serialises the surface's raw samples.
func (NPYEncoder) Encode(s *frame.Surface) ([]byte, error) {
	desc := s.Description()
	raw := s.Raw()

	header := fmt.Sprintf("{'descr': '<u2', 'fortran_order': False, 'shape': (%d, %d), }",
		desc.Height, desc.Width)
	// magic(6) + version(2) + header length(2) + header + '\n' is padded
	// to a multiple of 64 bytes.
	total := len(npyMagic) + 4 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += string(bytes.Repeat([]byte{' '}, 64-rem))
	}
	header += "\n"
	if len(header) > 0xffff {
		return nil, fmt.Errorf("npy header too long: %d bytes", len(header))
	}

	var buf bytes.Buffer
	buf.Grow(len(npyMagic) + 4 + len(header) + 2*len(raw))
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if err := binary.Write(&buf, binary.LittleEndian, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeNPY reads back an array written by NPYEncoder. Only the exact
// header shape NPYEncoder produces is accepted.
func DecodeNPY(data []byte) (*frame.Frame, error) {
	if len(data) < 10 || !bytes.Equal(data[:6], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}
	if data[6] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", data[6], data[7])
	}
	hlen := int(binary.LittleEndian.Uint16(data[8:10]))
	if len(data) < 10+hlen {
		return nil, fmt.Errorf("truncated npy header")
	}
	header := string(data[10 : 10+hlen])

	var h, w int
	if _, err := fmt.Sscanf(header, "{'descr': '<u2', 'fortran_order': False, 'shape': (%d, %d), }", &h, &w); err != nil {
		return nil, fmt.Errorf("parse npy header %q: %w", header, err)
	}
	f := frame.NewFrame(frame.Description{Width: w, Height: h})
	body := data[10+hlen:]
	if len(body) != 2*len(f.Pix) {
		return nil, fmt.Errorf("npy body has %d bytes, want %d", len(body), 2*len(f.Pix))
	}
	for i := range f.Pix {
		f.Pix[i] = binary.LittleEndian.Uint16(body[2*i:])
	}
	return f, nil
}
