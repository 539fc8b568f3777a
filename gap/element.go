// Package gap implements the advertising data codec (§4.4, C4): GAP
// element serialization, length gating, fragmentation, and AES-128-CCM
// sealing for encrypted advertising data.
//
// Element framing follows the teacher's linux/adv/packet.go and
// parser/parser.go length-type-value convention; the data-type constants
// below are the ones spec.md names plus the handful parser.go already
// carried (flags, tx power, manufacturer data).
package gap

import "fmt"

// Data types used by the components this repo implements. Most GAP types
// exist only to be round-tripped opaquely; only FLAGS, TX_POWER_LEVEL and
// ENCRYPTED_ADVERTISING_DATA get special handling.
const (
	DataTypeFlags                    byte = 0x01
	DataTypeTxPowerLevel             byte = 0x0A
	DataTypeEncryptedAdvertisingData byte = 0x31
)

// Flags bits (§6 "Flags LTV").
const (
	FlagLimitedDiscoverable byte = 0x01
	FlagGeneralDiscoverable byte = 0x02
)

// MaxElementLength is the largest value a single GAP element's payload may
// carry; above this the element is rejected regardless of the set's
// overall data-length budget (§4.4).
const MaxElementLength = 254

// Element is one Length-Type-Value advertising data entry (§3 "Advertising
// GAP-data element").
type Element struct {
	Type  byte
	Bytes []byte
}

// ErrElementTooLarge is returned by validate (and so by Encode) when a
// single element's payload exceeds MaxElementLength.
type ErrElementTooLarge struct {
	Type   byte
	Length int
}

func (e ErrElementTooLarge) Error() string {
	return fmt.Sprintf("gap: element type 0x%02x has %d bytes, max %d", e.Type, e.Length, MaxElementLength)
}

// wireLen is the length this element occupies on the wire: 1 (length
// prefix) + 1 (type) + payload.
func (e Element) wireLen() int {
	return 2 + len(e.Bytes)
}

func (e Element) validate() error {
	if len(e.Bytes) > MaxElementLength {
		return ErrElementTooLarge{Type: e.Type, Length: len(e.Bytes)}
	}
	return nil
}

// appendLTV appends the length-prefixed triple for e to b.
func appendLTV(b []byte, e Element) []byte {
	b = append(b, byte(1+len(e.Bytes)), e.Type)
	b = append(b, e.Bytes...)
	return b
}

// serialize concatenates elements into their raw LTV byte stream, with no
// length gating (callers validate first).
func serialize(elements []Element) []byte {
	out := make([]byte, 0, 32)
	for _, e := range elements {
		out = appendLTV(out, e)
	}
	return out
}

// parse decodes a raw LTV byte stream back into elements. Used for the
// fragmentation round-trip property and to recover plaintext after an
// Open().
func parse(b []byte) ([]Element, error) {
	var out []Element
	for i := 0; i < len(b); {
		if i+1 >= len(b) {
			return nil, fmt.Errorf("gap: truncated element header at offset %d", i)
		}
		length := int(b[i])
		if length < 1 {
			return nil, fmt.Errorf("gap: invalid zero length at offset %d", i)
		}
		typ := b[i+1]
		end := i + 1 + length
		if end > len(b) {
			return nil, fmt.Errorf("gap: element at offset %d overruns buffer", i)
		}
		value := make([]byte, length-1)
		copy(value, b[i+2:end])
		out = append(out, Element{Type: typ, Bytes: value})
		i = end
	}
	return out, nil
}

// hasType reports whether elements already contains one of type t.
func hasType(elements []Element, t byte) bool {
	for _, e := range elements {
		if e.Type == t {
			return true
		}
	}
	return false
}

// withAutoFlags returns elements with a FLAGS element prepended when the
// set is connectable and discoverable and one isn't already present (§3,
// §6). durationNonZero selects limited vs general discoverable.
func withAutoFlags(elements []Element, connectable, discoverable, durationNonZero bool) []Element {
	if !connectable || !discoverable || hasType(elements, DataTypeFlags) {
		return elements
	}
	flag := FlagGeneralDiscoverable
	if durationNonZero {
		flag = FlagLimitedDiscoverable
	}
	out := make([]Element, 0, len(elements)+1)
	out = append(out, Element{Type: DataTypeFlags, Bytes: []byte{flag}})
	out = append(out, elements...)
	return out
}

// withPatchedTxPower returns elements with any TX_POWER_LEVEL element's
// value overwritten by the set's calibrated power (§3).
func withPatchedTxPower(elements []Element, calibratedTxPower int8) []Element {
	out := make([]Element, len(elements))
	copy(out, elements)
	for i, e := range out {
		if e.Type == DataTypeTxPowerLevel {
			out[i] = Element{Type: DataTypeTxPowerLevel, Bytes: []byte{byte(calibratedTxPower)}}
		}
	}
	return out
}
