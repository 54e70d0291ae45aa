package trigger

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sync-recorder/internal/errs"
	"github.com/banshee-data/sync-recorder/internal/hwport"
)

func randomPinOrders(n int) []PinOrder {
	r := rand.New(rand.NewPCG(1, 2))
	orders := []PinOrder{IdentityPinOrder, {7, 6, 5, 4, 3, 2, 1, 0}}
	for len(orders) < n {
		o := IdentityPinOrder
		r.Shuffle(Bits, func(i, j int) { o[i], o[j] = o[j], o[i] })
		orders = append(orders, o)
	}
	return orders
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, order := range randomPinOrders(200) {
		seen := make(map[Pattern]int, MaxCode+1)
		for code := 0; code <= MaxCode; code++ {
			p, err := Encode(code, order)
			if err != nil {
				t.Fatalf("Encode(%d, %v) error = %v", code, order, err)
			}
			if prev, dup := seen[p]; dup {
				t.Fatalf("order %v maps %d and %d to the same pattern %#x", order, prev, code, p)
			}
			seen[p] = code

			got, err := Decode(p, order)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != code {
				t.Fatalf("Decode(Encode(%d)) = %d with order %v", code, got, order)
			}

			// decoding with the inverse order is the same as encoding with it
			viaInverse, err := Encode(int(p), order.Inverse())
			if err != nil {
				t.Fatal(err)
			}
			if int(viaInverse) != code {
				t.Fatalf("Encode(p, inverse) = %d, want %d", viaInverse, code)
			}
		}
	}
}

func TestEncodeReversal(t *testing.T) {
	order := PinOrder{7, 6, 5, 4, 3, 2, 1, 0}
	p, err := Encode(0b00000001, order)
	if err != nil {
		t.Fatal(err)
	}
	if p != 0b10000000 {
		t.Errorf("Encode(1, reversed) = %08b, want 10000000", p)
	}
}

func TestEncodeIdentity(t *testing.T) {
	for code := 0; code <= MaxCode; code++ {
		p, _ := Encode(code, IdentityPinOrder)
		if int(p) != code {
			t.Fatalf("identity Encode(%d) = %d", code, p)
		}
	}
}

func TestEncodeSwap(t *testing.T) {
	// physical bit 0 carries logical bit 1 and vice versa
	order := PinOrder{1, 0, 2, 3, 4, 5, 6, 7}
	tests := []struct {
		code int
		want Pattern
	}{
		{0b01, 0b10},
		{0b10, 0b01},
		{0b11, 0b11},
		{0b100, 0b100},
	}
	for _, tc := range tests {
		got, err := Encode(tc.code, order)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("Encode(%b) = %b, want %b", tc.code, got, tc.want)
		}
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		order PinOrder
	}{
		{"negative code", -1, IdentityPinOrder},
		{"code too large", 256, IdentityPinOrder},
		{"repeated pin", 1, PinOrder{0, 0, 2, 3, 4, 5, 6, 7}},
		{"pin out of range", 1, PinOrder{0, 1, 2, 3, 4, 5, 6, 8}},
		{"negative pin", 1, PinOrder{-1, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.code, tc.order)
			if !errors.Is(err, errs.ErrConfiguration) {
				t.Errorf("Encode() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestParsePinOrder(t *testing.T) {
	got, err := ParsePinOrder(" 7, 6,5,4,3,2,1,0 ")
	if err != nil {
		t.Fatalf("ParsePinOrder() error = %v", err)
	}
	if diff := cmp.Diff(PinOrder{7, 6, 5, 4, 3, 2, 1, 0}, got); diff != "" {
		t.Errorf("ParsePinOrder() mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "7,6,5,4,3,2,1,0" {
		t.Errorf("String() = %q", got.String())
	}

	for _, bad := range []string{"", "0,1,2", "0,1,2,3,4,5,6,x", "0,1,2,3,4,5,6,6", "0,1,2,3,4,5,6,7,8"} {
		if _, err := ParsePinOrder(bad); !errors.Is(err, errs.ErrConfiguration) {
			t.Errorf("ParsePinOrder(%q) error = %v, want ErrConfiguration", bad, err)
		}
	}
}

func TestEmitHoldTicks(t *testing.T) {
	port := hwport.NewTestablePort()
	if err := Emit(port, 0x5a, 4); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	want := []byte{0x5a, 0x5a, 0x5a, 0x5a}
	if diff := cmp.Diff(want, port.Values()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitDoesNotReset(t *testing.T) {
	port := hwport.NewTestablePort()
	Emit(port, 3, 2)
	Emit(port, 9, 1)
	want := []byte{3, 3, 9}
	if diff := cmp.Diff(want, port.Values()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
}

func TestEmitPortFailure(t *testing.T) {
	port := hwport.NewTestablePort()
	port.WriteError = errors.New("cable pulled")
	port.FailAfter = 1
	err := Emit(port, 1, 3)
	if !errors.Is(err, errs.ErrDevice) {
		t.Errorf("Emit() error = %v, want ErrDevice", err)
	}
	if !errors.Is(err, port.WriteError) {
		t.Errorf("Emit() error = %v, want it to wrap the port error", err)
	}
}

func TestEncoderSend(t *testing.T) {
	port := hwport.NewTestablePort()
	enc, err := NewEncoder(port, PinOrder{7, 6, 5, 4, 3, 2, 1, 0}, 2)
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	if err := enc.Send(1); err != nil {
		t.Fatal(err)
	}
	if err := enc.Send(0x0f); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x80, 0x80, 0xf0, 0xf0}
	if diff := cmp.Diff(want, port.Values()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
	if enc.Sent() != 2 {
		t.Errorf("Sent() = %d, want 2", enc.Sent())
	}

	if err := enc.Send(300); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("Send(300) error = %v, want ErrConfiguration", err)
	}
	if len(port.Values()) != 4 {
		t.Error("invalid code reached the port")
	}
}

func TestNewEncoderValidation(t *testing.T) {
	port := hwport.NewTestablePort()
	if _, err := NewEncoder(port, IdentityPinOrder, 0); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("hold ticks 0: error = %v", err)
	}
	if _, err := NewEncoder(port, PinOrder{}, 1); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("zero pin order: error = %v", err)
	}
	if _, err := NewEncoder(nil, IdentityPinOrder, 1); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("nil port: error = %v", err)
	}
}
