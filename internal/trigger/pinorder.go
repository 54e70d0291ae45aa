// Package trigger turns logical trigger codes into physical pin patterns and
// writes them to the output port.
//
// A PinOrder describes the wiring between the output port and the recording
// amplifier: physical bit i carries logical bit PinOrder[i]. Encoding is a
// pure bit permutation, so every logical code maps to a distinct pattern and
// Decode(Encode(c)) == c for a valid PinOrder.
package trigger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/sync-recorder/internal/errs"
)

// Bits is the width of a trigger code and of the output port.
const Bits = 8

// MaxCode is the largest logical trigger code.
const MaxCode = 1<<Bits - 1

// PinOrder maps physical bit positions to logical bit positions.
type PinOrder [Bits]int

// IdentityPinOrder wires logical bit i to physical bit i.
var IdentityPinOrder = PinOrder{0, 1, 2, 3, 4, 5, 6, 7}

// ParsePinOrder parses a comma separated list of eight bit positions,
// e.g. "7,6,5,4,3,2,1,0".
func ParsePinOrder(s string) (PinOrder, error) {
	var order PinOrder
	fields := strings.Split(s, ",")
	if len(fields) != Bits {
		return order, fmt.Errorf("%w: pin order %q has %d entries, want %d",
			errs.ErrConfiguration, s, len(fields), Bits)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return order, fmt.Errorf("%w: pin order entry %d: %w", errs.ErrConfiguration, i, err)
		}
		order[i] = v
	}
	if err := order.Validate(); err != nil {
		return order, err
	}
	return order, nil
}

// Validate checks that the order is a permutation of 0..7.
func (o PinOrder) Validate() error {
	var seen [Bits]bool
	for i, pin := range o {
		if pin < 0 || pin >= Bits {
			return fmt.Errorf("%w: pin order entry %d is %d, want 0..%d",
				errs.ErrConfiguration, i, pin, Bits-1)
		}
		if seen[pin] {
			return fmt.Errorf("%w: pin order repeats bit %d", errs.ErrConfiguration, pin)
		}
		seen[pin] = true
	}
	return nil
}

// Inverse returns the order that undoes o. It assumes o is valid.
func (o PinOrder) Inverse() PinOrder {
	var inv PinOrder
	for i, pin := range o {
		inv[pin] = i
	}
	return inv
}

// String formats the order the way it is written in configuration files.
func (o PinOrder) String() string {
	parts := make([]string, Bits)
	for i, pin := range o {
		parts[i] = strconv.Itoa(pin)
	}
	return strings.Join(parts, ",")
}
