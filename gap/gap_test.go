package gap

import (
	"bytes"
	"testing"
)

func seqBytes(start byte, n int) [16]byte {
	var b [16]byte
	for i := 0; i < n; i++ {
		b[i] = start + byte(i)
	}
	return b
}

// TestSealOpenRoundTrip is §8's "Sealed-then-unsealed round trip" property.
func TestSealOpenRoundTrip(t *testing.T) {
	key := seqBytes(0x00, 16)
	iv := seqBytes(0x10, 16)

	plaintext := []Element{
		{Type: 0xFF, Bytes: []byte{0xBE, 0xEF}},
		{Type: 0x09, Bytes: []byte("dev")},
	}

	sealed, randomizer, err := Seal(key, iv, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if sealed.Type != DataTypeEncryptedAdvertisingData {
		t.Fatalf("sealed type = 0x%02x, want 0x31", sealed.Type)
	}
	if randomizer == ([RandomizerLen]byte{}) {
		t.Fatal("randomizer was not populated")
	}

	opened, err := Open(key, iv, sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if len(opened) != len(plaintext) {
		t.Fatalf("opened %d elements, want %d", len(opened), len(plaintext))
	}
	for i := range plaintext {
		if opened[i].Type != plaintext[i].Type || !bytes.Equal(opened[i].Bytes, plaintext[i].Bytes) {
			t.Fatalf("element %d = %+v, want %+v", i, opened[i], plaintext[i])
		}
	}
}

// TestSealWithRandomizerDeterministic follows §8 S3's known-input seal:
// same key/iv/randomizer/plaintext always produces the same ciphertext and
// MIC, and the element carries the reversed randomizer up front.
func TestSealWithRandomizerDeterministic(t *testing.T) {
	key := seqBytes(0x00, 16)
	iv := seqBytes(0x10, 16)
	randomizer := [RandomizerLen]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4}
	plaintext := []Element{{Type: 0xFF, Bytes: []byte{0xBE, 0xEF}}}

	e1, err := SealWithRandomizer(key, iv, randomizer, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := SealWithRandomizer(key, iv, randomizer, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(e1.Bytes, e2.Bytes) {
		t.Fatal("SealWithRandomizer is not deterministic for identical inputs")
	}

	wantPrefix := []byte{0xA4, 0xA3, 0xA2, 0xA1, 0xA0} // reverse(randomizer)
	if !bytes.Equal(e1.Bytes[:5], wantPrefix) {
		t.Fatalf("randomizer prefix = % X, want % X", e1.Bytes[:5], wantPrefix)
	}

	opened, err := Open(key, iv, e1)
	if err != nil {
		t.Fatal(err)
	}
	if len(opened) != 1 || opened[0].Type != 0xFF || !bytes.Equal(opened[0].Bytes, []byte{0xBE, 0xEF}) {
		t.Fatalf("round trip produced %+v", opened)
	}
}

func TestOpenRejectsTamperedMIC(t *testing.T) {
	key := seqBytes(0, 16)
	iv := seqBytes(0x10, 16)
	sealed, _, err := Seal(key, iv, []Element{{Type: 0xFF, Bytes: []byte{1, 2, 3}}})
	if err != nil {
		t.Fatal(err)
	}
	tampered := sealed
	tampered.Bytes = append([]byte{}, sealed.Bytes...)
	tampered.Bytes[len(tampered.Bytes)-1] ^= 0xFF

	if _, err := Open(key, iv, tampered); err == nil {
		t.Fatal("expected MIC verification failure on tampered ciphertext")
	}
}

// TestFragmentationIdempotence is §8's fragmentation property.
func TestFragmentationIdempotence(t *testing.T) {
	elements := []Element{
		{Type: 0x09, Bytes: bytes.Repeat([]byte{0x41}, 200)},
		{Type: 0xFF, Bytes: bytes.Repeat([]byte{0x42}, 100)},
	}
	frags, err := Encode(elements, Options{MaxControllerLength: 1650})
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) < 2 {
		t.Fatalf("expected fragmentation, got %d fragment(s)", len(frags))
	}
	if frags[0].Op != OpFirst {
		t.Fatalf("first op = %v, want FIRST", frags[0].Op)
	}
	if frags[len(frags)-1].Op != OpLast {
		t.Fatalf("last op = %v, want LAST", frags[len(frags)-1].Op)
	}
	for _, f := range frags[1 : len(frags)-1] {
		if f.Op != OpIntermediate {
			t.Fatalf("middle op = %v, want INTERMEDIATE", f.Op)
		}
	}
	for _, f := range frags {
		if len(f.Bytes) > MaxFragmentLength {
			t.Fatalf("fragment of %d bytes exceeds max %d", len(f.Bytes), MaxFragmentLength)
		}
	}

	reassembled, err := Reassemble(frags)
	if err != nil {
		t.Fatal(err)
	}
	if len(reassembled) != len(elements) {
		t.Fatalf("reassembled %d elements, want %d", len(reassembled), len(elements))
	}
	for i := range elements {
		if reassembled[i].Type != elements[i].Type || !bytes.Equal(reassembled[i].Bytes, elements[i].Bytes) {
			t.Fatalf("element %d mismatch after reassembly", i)
		}
	}
}

func TestShortPayloadIsSingleComplete(t *testing.T) {
	frags, err := Encode([]Element{{Type: 0x09, Bytes: []byte("dev")}}, Options{MaxControllerLength: 1650})
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 1 || frags[0].Op != OpComplete {
		t.Fatalf("got %+v, want single COMPLETE fragment", frags)
	}
}

// TestLengthGate is §8's "Length gate" property: over-length data returns
// an error and produces no fragments at all (so the manager can issue zero
// HCI commands).
func TestLengthGate(t *testing.T) {
	elements := []Element{{Type: 0x09, Bytes: bytes.Repeat([]byte{0x41}, 40)}}
	_, err := Encode(elements, Options{MaxControllerLength: 31})
	if err == nil {
		t.Fatal("expected DATA_TOO_LARGE-equivalent error")
	}
	var tooLarge ErrDataTooLarge
	if _, ok := err.(ErrDataTooLarge); !ok {
		t.Fatalf("got error %v (%T), want ErrDataTooLarge", err, err)
	}
	_ = tooLarge
}

func TestElementOver254BytesIsAlwaysAnError(t *testing.T) {
	big := Element{Type: 0xFF, Bytes: make([]byte, 255)}
	if err := big.validate(); err == nil {
		t.Fatal("expected ErrElementTooLarge for a 255-byte element")
	}
}

func TestFlagsAutoInsertedWhenConnectableAndDiscoverable(t *testing.T) {
	out := PrepareAdvertisement([]Element{{Type: 0x09, Bytes: []byte("dev")}}, true, true, false, 0)
	if len(out) != 2 || out[0].Type != DataTypeFlags {
		t.Fatalf("got %+v, want FLAGS prepended", out)
	}
	if out[0].Bytes[0] != FlagGeneralDiscoverable {
		t.Fatalf("flags = 0x%02x, want general discoverable", out[0].Bytes[0])
	}
}

func TestFlagsNotDuplicatedIfAlreadyPresent(t *testing.T) {
	in := []Element{{Type: DataTypeFlags, Bytes: []byte{0x06}}}
	out := PrepareAdvertisement(in, true, true, false, 0)
	if len(out) != 1 {
		t.Fatalf("got %d elements, want FLAGS left untouched and not duplicated", len(out))
	}
}

func TestFlagsLimitedWhenDurationNonZero(t *testing.T) {
	out := PrepareAdvertisement(nil, true, true, true, 0)
	if out[0].Bytes[0] != FlagLimitedDiscoverable {
		t.Fatalf("flags = 0x%02x, want limited discoverable", out[0].Bytes[0])
	}
}

func TestFlagsNotInsertedWhenNotConnectable(t *testing.T) {
	out := PrepareAdvertisement([]Element{{Type: 0x09, Bytes: []byte("dev")}}, false, true, false, 0)
	if len(out) != 1 {
		t.Fatalf("got %+v, expected no auto FLAGS for non-connectable set", out)
	}
}

func TestTxPowerLevelPatchedAtEmitTime(t *testing.T) {
	in := []Element{{Type: DataTypeTxPowerLevel, Bytes: []byte{0x00}}}
	out := PreparePassthrough(in, -7)
	if int8(out[0].Bytes[0]) != -7 {
		t.Fatalf("tx power = %d, want -7", int8(out[0].Bytes[0]))
	}
}
