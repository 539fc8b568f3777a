package gap

import (
	"crypto/rand"
	"fmt"

	"github.com/rigado/btcore/sliceops"
)

// RandomizerLen and KeyLen/IVLen are the encrypted-advertising key
// material sizes (§3 "enc_key_value (32 bytes = 16-byte key + 16-byte
// IV)", §4.4).
const (
	RandomizerLen = 5
	KeyLen        = 16
	IVLen         = 16
)

// associatedData is the fixed "ad" octet the Core Spec defines for
// Encrypted Advertising Data (§4.4 "ad := 0xEA").
const associatedData byte = 0xEA

// Seal serializes plaintext into its raw GAP byte stream, mints a fresh 5
// byte randomizer, and AES-128-CCM encrypts it, returning the emitted
// ENCRYPTED_ADVERTISING_DATA element and the randomizer used (the caller
// persists the randomizer on the Advertiser record so a later re-send can
// call SealWithRandomizer again — though §3 requires a fresh one "before
// every seal", so in practice every real call goes through Seal, not
// SealWithRandomizer).
func Seal(key, iv [16]byte, plaintext []Element) (Element, [RandomizerLen]byte, error) {
	var randomizer [RandomizerLen]byte
	if _, err := rand.Read(randomizer[:]); err != nil {
		return Element{}, randomizer, err
	}
	e, err := SealWithRandomizer(key, iv, randomizer, plaintext)
	return e, randomizer, err
}

// SealWithRandomizer is Seal with an explicit randomizer; exposed for
// testing against the known-answer vector in §8 S3.
func SealWithRandomizer(key, iv [16]byte, randomizer [RandomizerLen]byte, plaintext []Element) (Element, error) {
	raw := serialize(plaintext)

	nonce := append(sliceops.SwapBuf(randomizer[:]), sliceops.SwapBuf(iv[:])[:8]...)
	ciphertext, mic, err := ccmSeal(key[:], nonce, associatedData, raw)
	if err != nil {
		return Element{}, err
	}

	body := make([]byte, 0, RandomizerLen+len(ciphertext)+ccmTagLen)
	body = append(body, sliceops.SwapBuf(randomizer[:])...)
	body = append(body, ciphertext...)
	body = append(body, mic...)

	return Element{Type: DataTypeEncryptedAdvertisingData, Bytes: body}, nil
}

// Open is Seal's inverse: given the encrypted-advertising element, it
// recovers and parses the plaintext GAP elements, verifying the MIC.
func Open(key, iv [16]byte, e Element) ([]Element, error) {
	if e.Type != DataTypeEncryptedAdvertisingData {
		return nil, fmt.Errorf("gap: element type 0x%02x is not encrypted advertising data", e.Type)
	}
	if len(e.Bytes) < RandomizerLen+ccmTagLen {
		return nil, fmt.Errorf("gap: encrypted advertising element too short (%d bytes)", len(e.Bytes))
	}

	randomizerRev := e.Bytes[:RandomizerLen]
	ciphertext := e.Bytes[RandomizerLen : len(e.Bytes)-ccmTagLen]
	mic := e.Bytes[len(e.Bytes)-ccmTagLen:]

	nonce := append(append([]byte{}, randomizerRev...), sliceops.SwapBuf(iv[:])[:8]...)
	raw, err := ccmOpen(key[:], nonce, associatedData, ciphertext, mic)
	if err != nil {
		return nil, err
	}
	return parse(raw)
}
