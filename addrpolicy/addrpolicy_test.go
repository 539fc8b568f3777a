package addrpolicy

import (
	"testing"

	"github.com/rigado/btcore"
)

func TestResolveTable(t *testing.T) {
	cases := []struct {
		requested btcore.AdvertiserAddressType
		policy    btcore.AddressPolicy
		want      btcore.AdvertiserAddressType
	}{
		{btcore.AdvertiserAddressPublic, btcore.AddressPolicyPublicOnly, btcore.AdvertiserAddressPublic},
		{btcore.AdvertiserAddressPublic, btcore.AddressPolicyRPA, btcore.AdvertiserAddressPublic},
		{btcore.AdvertiserAddressPublic, btcore.AddressPolicyNRPA, btcore.AdvertiserAddressPublic},

		{btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyPublicOnly, btcore.AdvertiserAddressPublic},
		{btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyRPA, btcore.AdvertiserAddressResolvableRandom},
		{btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyNRPA, btcore.AdvertiserAddressNonResolvableRandom},

		{btcore.AdvertiserAddressNonResolvableRandom, btcore.AddressPolicyPublicOnly, btcore.AdvertiserAddressPublic},
		{btcore.AdvertiserAddressNonResolvableRandom, btcore.AddressPolicyRPA, btcore.AdvertiserAddressNonResolvableRandom},
		{btcore.AdvertiserAddressNonResolvableRandom, btcore.AddressPolicyNRPA, btcore.AdvertiserAddressNonResolvableRandom},
	}

	for _, c := range cases {
		got := Resolve(c.requested, c.policy)
		if got != c.want {
			t.Errorf("Resolve(%v, %v) = %v, want %v", c.requested, c.policy, got, c.want)
		}
	}
}

func TestResolveNonConnectableNarrowsToNRPA(t *testing.T) {
	got := ResolveNonConnectable(btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyPublicOnly)
	if got != btcore.AdvertiserAddressNonResolvableRandom {
		t.Fatalf("ResolveNonConnectable under PublicOnly = %v, want NRPA", got)
	}

	// Static-only behaves the same as public-only here.
	got = ResolveNonConnectable(btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyStaticOnly)
	if got != btcore.AdvertiserAddressNonResolvableRandom {
		t.Fatalf("ResolveNonConnectable under StaticOnly = %v, want NRPA", got)
	}

	// Outside Public/Static, falls back to Resolve's behavior.
	got = ResolveNonConnectable(btcore.AdvertiserAddressResolvableRandom, btcore.AddressPolicyRPA)
	if got != btcore.AdvertiserAddressResolvableRandom {
		t.Fatalf("ResolveNonConnectable under RPA = %v, want RPA", got)
	}
}

func TestNewAddressNRPAMarkerBits(t *testing.T) {
	m := New(btcore.Address{})
	a, err := m.NewAddress(btcore.AdvertiserAddressNonResolvableRandom, btcore.ApiExtended)
	if err != nil {
		t.Fatal(err)
	}
	if top := a.Bytes[5] >> 6; top != 0b00 {
		t.Fatalf("NRPA top bits = %02b, want 00", top)
	}
}

func TestNewAddressRPAMarkerBitsAndDeterminism(t *testing.T) {
	m := New(btcore.Address{})
	m.SetIRK([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	a, err := m.NewAddress(btcore.AdvertiserAddressResolvableRandom, btcore.ApiExtended)
	if err != nil {
		t.Fatal(err)
	}
	if top := a.Bytes[5] >> 6; top != 0b01 {
		t.Fatalf("RPA top bits = %02b, want 01", top)
	}

	// ah() must be deterministic for a fixed irk/prand.
	h1, err := ah(m.irk, [3]byte{0x40, 0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ah(m.irk, [3]byte{0x40, 0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("ah() not deterministic: %v != %v", h1, h2)
	}
}

func TestLegacyAPISharesOneRPAAcrossSets(t *testing.T) {
	m := New(btcore.Address{})
	m.SetIRK([16]byte{9})

	a1, err := m.NewAddress(btcore.AdvertiserAddressResolvableRandom, btcore.ApiLegacy)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := m.NewAddress(btcore.AdvertiserAddressResolvableRandom, btcore.ApiLegacy)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatalf("legacy API minted two different RPAs: %v != %v", a1, a2)
	}

	// Extended API mints a fresh one each call.
	a3, err := m.NewAddress(btcore.AdvertiserAddressResolvableRandom, btcore.ApiExtended)
	if err != nil {
		t.Fatal(err)
	}
	// Vanishingly unlikely to collide; if it does, the RNG is broken.
	if a3 == a1 {
		t.Fatalf("extended API minted the same RPA as the legacy shared one")
	}
}

func TestRegisterUnregisterRefcount(t *testing.T) {
	m := New(btcore.Address{})
	m.Register()
	m.Register()
	if last := m.Unregister(); last {
		t.Fatal("unregister reported last set too early")
	}
	if last := m.Unregister(); !last {
		t.Fatal("unregister did not report last set")
	}
}

func TestIRKChangedInvokesRotationCallback(t *testing.T) {
	m := New(btcore.Address{})
	called := false
	m.RegisterRotationCallback(func() { called = true })
	m.IRKChanged()
	if !called {
		t.Fatal("IRKChanged did not invoke the rotation callback")
	}
}
