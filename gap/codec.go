package gap

import "fmt"

// MaxFragmentLength is kLeMaximumFragmentLength (§4.4): the largest chunk
// the extended-advertising fragmented-write commands accept.
const MaxFragmentLength = 252

// LegacyMaxLength is the hard 31-byte cap on legacy-PDU advertising data.
const LegacyMaxLength = 31

// Operation is the fragmentation op code carried on each
// LE_Set_Extended_Advertising_Data-family command (§6).
type Operation byte

const (
	OpComplete     Operation = 0x03
	OpFirst        Operation = 0x01
	OpIntermediate Operation = 0x00
	OpLast         Operation = 0x02
)

func (o Operation) String() string {
	switch o {
	case OpComplete:
		return "COMPLETE"
	case OpFirst:
		return "FIRST"
	case OpIntermediate:
		return "INTERMEDIATE"
	case OpLast:
		return "LAST"
	default:
		return "UNKNOWN"
	}
}

// ErrDataTooLarge is returned when a payload, after auto-FLAGS insertion,
// exceeds the controller or legacy maximum (§7, §8 "Length gate").
type ErrDataTooLarge struct {
	Length, Max int
}

func (e ErrDataTooLarge) Error() string {
	return fmt.Sprintf("gap: serialized length %d exceeds max %d", e.Length, e.Max)
}

// Fragment is one piece of a fragmented write: the bytes to send with this
// operation code.
type Fragment struct {
	Op    Operation
	Bytes []byte
}

// Options configures the codec behaviors gated by the host config flags
// in §6.
type Options struct {
	// MaxControllerLength is the controller-reported max advertising data
	// length (controller.GetLeMaximumAdvertisingDataLength()).
	MaxControllerLength int
	// LegacyPDU additionally caps serialized length at LegacyMaxLength
	// when ble_check_data_length_on_legacy_advertising is set.
	LegacyPDU bool
	// DivideLongSingleGapData allows a single element's LTV triple to
	// exceed MaxFragmentLength by splitting it across fragments at the
	// raw byte level instead of rejecting it.
	DivideLongSingleGapData bool
}

// Encode validates and serializes elements (with FLAGS auto-insertion and
// TX_POWER_LEVEL patching already applied by the caller — see
// PrepareAdvertisement/PreparePassthrough) and returns either a single
// COMPLETE fragment or a FIRST/INTERMEDIATE*/LAST sequence.
func Encode(elements []Element, opts Options) ([]Fragment, error) {
	for _, e := range elements {
		if err := e.validate(); err != nil {
			return nil, err
		}
	}

	raw := serialize(elements)

	max := opts.MaxControllerLength
	if opts.LegacyPDU && (max == 0 || max > LegacyMaxLength) {
		max = LegacyMaxLength
	}
	if max > 0 && len(raw) > max {
		return nil, ErrDataTooLarge{Length: len(raw), Max: max}
	}

	if len(raw) <= MaxFragmentLength {
		return []Fragment{{Op: OpComplete, Bytes: raw}}, nil
	}

	if !opts.DivideLongSingleGapData {
		for _, e := range elements {
			if e.wireLen() > MaxFragmentLength {
				return nil, fmt.Errorf("gap: element type 0x%02x (%d bytes on wire) cannot fit a single fragment without divide_long_single_gap_data", e.Type, e.wireLen())
			}
		}
	}

	return fragmentRaw(raw), nil
}

// fragmentRaw splits a raw byte stream into FIRST, INTERMEDIATE*, LAST
// chunks of at most MaxFragmentLength bytes each (§4.4, §8 "Fragmentation
// idempotence").
func fragmentRaw(raw []byte) []Fragment {
	var frags []Fragment
	for off := 0; off < len(raw); off += MaxFragmentLength {
		end := off + MaxFragmentLength
		if end > len(raw) {
			end = len(raw)
		}
		frags = append(frags, Fragment{Bytes: raw[off:end]})
	}
	for i := range frags {
		switch {
		case i == 0:
			frags[i].Op = OpFirst
		case i == len(frags)-1:
			frags[i].Op = OpLast
		default:
			frags[i].Op = OpIntermediate
		}
	}
	return frags
}

// PrepareAdvertisement applies the auto-FLAGS and TX-power-patch rules
// that only apply to the primary advertisement payload, not scan response
// or periodic data.
func PrepareAdvertisement(elements []Element, connectable, discoverable, durationNonZero bool, calibratedTxPower int8) []Element {
	out := withAutoFlags(elements, connectable, discoverable, durationNonZero)
	return withPatchedTxPower(out, calibratedTxPower)
}

// PreparePassthrough only applies the TX-power patch — used for scan
// response and periodic data, which never get an auto-inserted FLAGS
// element.
func PreparePassthrough(elements []Element, calibratedTxPower int8) []Element {
	return withPatchedTxPower(elements, calibratedTxPower)
}

// Reassemble concatenates fragment payloads back into the original raw
// stream and parses it, used to verify fragmentation idempotence.
func Reassemble(frags []Fragment) ([]Element, error) {
	raw := make([]byte, 0, len(frags)*MaxFragmentLength)
	for _, f := range frags {
		raw = append(raw, f.Bytes...)
	}
	return parse(raw)
}
