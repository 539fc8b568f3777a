// Package addrpolicy implements the address policy module (§4.2, C2): it
// narrows a requested advertiser address type against the host's privacy
// policy, mints resolvable/non-resolvable random addresses, and carries
// the identity-resolving key used to announce an IRK change.
package addrpolicy

import (
	"crypto/aes"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/rigado/btcore"
)

// Resolve picks the strictest of a requested address type and the host
// policy, per the §4.2 table. Strictness ascends RPA -> NRPA -> Public.
func Resolve(requested btcore.AdvertiserAddressType, policy btcore.AddressPolicy) btcore.AdvertiserAddressType {
	switch policy {
	case btcore.AddressPolicyPublicOnly, btcore.AddressPolicyStaticOnly:
		return btcore.AdvertiserAddressPublic
	case btcore.AddressPolicyRPA:
		return requested
	case btcore.AddressPolicyNRPA:
		if requested == btcore.AdvertiserAddressResolvableRandom {
			return btcore.AdvertiserAddressNonResolvableRandom
		}
		return requested
	default:
		return btcore.AdvertiserAddressPublic
	}
}

// ResolveNonConnectable is Resolve's non-connectable sibling: under a
// Public/Static policy, a requested RPA is narrowed to NRPA instead of
// Public, so non-connectable traffic never reveals the identity address.
func ResolveNonConnectable(requested btcore.AdvertiserAddressType, policy btcore.AddressPolicy) btcore.AdvertiserAddressType {
	switch policy {
	case btcore.AddressPolicyPublicOnly, btcore.AddressPolicyStaticOnly:
		if requested == btcore.AdvertiserAddressResolvableRandom {
			return btcore.AdvertiserAddressNonResolvableRandom
		}
		return requested
	default:
		return Resolve(requested, policy)
	}
}

// Module mints addresses and carries the identity key material.
//
// A single instance is shared by every advertising set; it is registered
// with at most once (on the first advertiser created) and unregistered
// when the last one is removed, mirroring the registry's reference count
// (§4.5 "reset... unregisters from the address manager if no sets
// remain").
type Module struct {
	mu sync.Mutex

	// Identity is the device's public or static-random address, returned
	// whenever policy narrowing resolves to "Public" in the §4.2 table.
	Identity btcore.Address

	irk [16]byte

	// legacyRPA is the one RPA shared by every set under Legacy API,
	// since the legacy advertising command set has no per-set random
	// address slot (§4.2).
	legacyRPA    btcore.Address
	haveLegacy   bool
	refCount     int
	rotationCB   func()
}

// New constructs a Module with the given identity address.
func New(identity btcore.Address) *Module {
	return &Module{Identity: identity}
}

// SetIRK installs the identity resolving key used for future RPA minting.
func (m *Module) SetIRK(irk [16]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.irk = irk
	m.haveLegacy = false // a fresh IRK invalidates the shared legacy RPA
}

// RegisterRotationCallback installs the hook IRKChanged invokes. Only the
// advertising manager should call this, once, at start.
func (m *Module) RegisterRotationCallback(cb func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotationCB = cb
}

// Register and Unregister implement the refcounted registration described
// in §4.5: the module only matters to the address manager while at least
// one advertising set is in use.
func (m *Module) Register() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCount++
}

// Unregister returns true if this was the last registered set.
func (m *Module) Unregister() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refCount > 0 {
		m.refCount--
	}
	return m.refCount == 0
}

// IRKChanged asks the manager to rotate every enabled set's address
// synchronously (§4.2, §4.6 "on_irk_change"). The callback runs on the
// caller's goroutine; it is the manager's job to have that be the single
// main handler.
func (m *Module) IRKChanged() {
	m.mu.Lock()
	cb := m.rotationCB
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// NewAddress mints the address to use for effective, the address type
// already narrowed by Resolve/ResolveNonConnectable. Under Legacy api,
// every RPA set shares the same initiator address.
func (m *Module) NewAddress(effective btcore.AdvertiserAddressType, api btcore.ApiType) (btcore.Address, error) {
	switch effective {
	case btcore.AdvertiserAddressPublic:
		return m.Identity, nil

	case btcore.AdvertiserAddressNonResolvableRandom:
		return randomNonResolvable()

	case btcore.AdvertiserAddressResolvableRandom:
		m.mu.Lock()
		defer m.mu.Unlock()
		if api == btcore.ApiLegacy {
			if m.haveLegacy {
				return m.legacyRPA, nil
			}
			a, err := m.mintRPALocked()
			if err != nil {
				return btcore.Address{}, err
			}
			m.legacyRPA = a
			m.haveLegacy = true
			return a, nil
		}
		return m.mintRPALocked()

	default:
		return btcore.Address{}, fmt.Errorf("addrpolicy: unknown address type %d", effective)
	}
}

func (m *Module) mintRPALocked() (btcore.Address, error) {
	prand, err := randomPrand()
	if err != nil {
		return btcore.Address{}, err
	}
	hash, err := ah(m.irk, prand)
	if err != nil {
		return btcore.Address{}, err
	}
	var b [6]byte
	copy(b[0:3], hash[:])
	copy(b[3:6], prand[:])
	return btcore.Address{Bytes: b, Type: btcore.AddressTypeRandom}, nil
}

// randomPrand returns a 3-byte prand with the resolvable-random marker
// bits (the top two bits of the most significant octet set to 01), per
// Core Spec Vol 6, Part B, 1.3.2.2.
func randomPrand() ([3]byte, error) {
	var p [3]byte
	if _, err := rand.Read(p[:]); err != nil {
		return p, err
	}
	p[2] = (p[2] & 0x3f) | 0x40
	return p, nil
}

// randomNonResolvable mints a 6-byte non-resolvable random address: the
// top two bits of the most significant octet are 00 (Core Spec 1.3.2.1).
func randomNonResolvable() (btcore.Address, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return btcore.Address{}, err
	}
	b[5] &= 0x3f
	return btcore.Address{Bytes: b, Type: btcore.AddressTypeRandom}, nil
}

// ah implements the Core Spec 1.3.2.3 "ah" function used to derive the
// resolvable part of an RPA from the IRK and a 3-byte prand: the prand is
// placed in the last 3 bytes of a 16-byte block preceded by zeroes, AES-128 encrypted under the
// IRK, and the low 3 octets of the result are the hash.
func ah(irk [16]byte, r [3]byte) ([3]byte, error) {
	var hash [3]byte
	block, err := aes.NewCipher(irk[:])
	if err != nil {
		return hash, err
	}
	var in, out [16]byte
	copy(in[13:], r[:])
	block.Encrypt(out[:], in[:])
	copy(hash[:], out[13:])
	return hash, nil
}
