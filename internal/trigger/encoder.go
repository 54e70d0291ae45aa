package trigger

import (
	"fmt"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/hwport"
)

// Pattern is the value written to the output port.
type Pattern byte

// ValidateCode checks that code fits in 8 bits.
func ValidateCode(code int) error {
	if code < 0 || code > MaxCode {
		return fmt.Errorf("%w: trigger code %d out of range 0..%d", errs.ErrConfiguration, code, MaxCode)
	}
	return nil
}

// Encode reorders the bits of code so that physical bit i carries logical
// bit order[i].
func Encode(code int, order PinOrder) (Pattern, error) {
	if err := order.Validate(); err != nil {
		return 0, err
	}
	if err := ValidateCode(code); err != nil {
		return 0, err
	}
	var p Pattern
	for i, pin := range order {
		if code>>pin&1 == 1 {
			p |= 1 << i
		}
	}
	return p, nil
}

// Decode recovers the logical code from a physical pattern.
func Decode(p Pattern, order PinOrder) (int, error) {
	if err := order.Validate(); err != nil {
		return 0, err
	}
	code := 0
	for i, pin := range order {
		if p>>i&1 == 1 {
			code |= 1 << pin
		}
	}
	return code, nil
}

// Emit writes p to port holdTicks times back to back. The port is not reset
// afterwards, so the lines stay at p until the next trigger. Pulse width is
// governed by the repetition count alone, not by wall-clock time.
func Emit(port hwport.Port, p Pattern, holdTicks int) error {
	for i := 0; i < holdTicks; i++ {
		if err := port.WriteValue(byte(p)); err != nil {
			return fmt.Errorf("%w: write trigger %#02x (tick %d/%d): %w", errs.ErrDevice, byte(p), i+1, holdTicks, err)
		}
	}
	return nil
}

// Encoder binds a port to a pin order and hold-tick count.
type Encoder struct {
	port      hwport.Port
	order     PinOrder
	holdTicks int
	sent      uint64
}

// NewEncoder validates order and holdTicks and returns an Encoder.
func NewEncoder(port hwport.Port, order PinOrder, holdTicks int) (*Encoder, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil output port", errs.ErrConfiguration)
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	if holdTicks < 1 {
		return nil, fmt.Errorf("%w: hold ticks must be at least 1, got %d", errs.ErrConfiguration, holdTicks)
	}
	return &Encoder{port: port, order: order, holdTicks: holdTicks}, nil
}

// Send encodes code and emits it.
func (e *Encoder) Send(code int) error {
	p, err := Encode(code, e.order)
	if err != nil {
		return err
	}
	if err := Emit(e.port, p, e.holdTicks); err != nil {
		return err
	}
	e.sent++
	return nil
}

// Sent returns how many codes have been emitted successfully.
func (e *Encoder) Sent() uint64 {
	return e.sent
}

// PinOrder returns the wiring the encoder was built with.
func (e *Encoder) PinOrder() PinOrder {
	return e.order
}
