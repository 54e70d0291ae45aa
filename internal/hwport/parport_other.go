//go:build !linux

package hwport

import "errors"

// ParallelPort is only available on Linux.
type ParallelPort struct{}

func OpenParallelPort(path string) (*ParallelPort, error) {
	return nil, errors.New("parallel port output requires linux ppdev")
}

func (p *ParallelPort) WriteValue(v byte) error { return ErrPortClosed }

func (p *ParallelPort) Close() error { return nil }
