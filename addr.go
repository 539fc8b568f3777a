package btcore

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressType is the controller-level address kind carried alongside a
// 48-bit address, per Vol 6, Part B, 1.3.
type AddressType uint8

const (
	AddressTypePublic AddressType = 0
	AddressTypeRandom AddressType = 1
)

func (t AddressType) String() string {
	if t == AddressTypeRandom {
		return "random"
	}
	return "public"
}

// Address is a 48-bit Bluetooth device address tagged with its type.
type Address struct {
	Bytes [6]byte
	Type  AddressType
}

// NewAddress parses a colon-separated MAC string ("aa:bb:cc:dd:ee:ff") into
// an Address of the given type.
func NewAddress(s string, t AddressType) (Address, error) {
	hexStr := strings.ReplaceAll(strings.ToLower(s), ":", "")
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Address{}, fmt.Errorf("btcore: invalid address %q: %w", s, err)
	}
	if len(b) != 6 {
		return Address{}, fmt.Errorf("btcore: address %q is not 6 bytes", s)
	}
	var a Address
	copy(a.Bytes[:], b)
	a.Type = t
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a.Bytes[0], a.Bytes[1], a.Bytes[2], a.Bytes[3], a.Bytes[4], a.Bytes[5])
}

// IsZero reports whether the address is the all-zero placeholder used
// before an advertiser has ever minted one.
func (a Address) IsZero() bool {
	return a.Bytes == [6]byte{}
}

// Resolvable reports whether the two top bits of a random address mark it
// as resolvable (01) vs non-resolvable (00) or static (11).
func (a Address) Resolvable() bool {
	return a.Type == AddressTypeRandom && (a.Bytes[5]>>6) == 0b01
}
