// Package advertising implements the Advertising Set Registry (C5) and
// the Advertising Manager (C6): the per-set start/update/rotate/enable/
// terminate state machine built on the HCI dispatcher (hci), address
// policy (addrpolicy), alarm service (alarm) and data codec (gap).
package advertising

import (
	"github.com/rigado/btcore"
	"github.com/rigado/btcore/gap"
)

// AddressKind is the address type an advertiser requested, before policy
// narrowing (§3 "requested_address_type").
type AddressKind uint8

const (
	AddressKindPublic AddressKind = iota
	AddressKindResolvableRandom
	AddressKindNonResolvableRandom
)

// Config is the parameter set carried by set_parameters/create_extended
// (§4.6); it mirrors the Advertiser record's flag and address fields that
// a caller supplies up front.
type Config struct {
	RequestedAddressKind AddressKind
	IntervalMin          uint32
	IntervalMax          uint32
	ChannelMap           uint8
	FilterPolicy         uint8
	TxPower              int8

	Legacy        bool
	Connectable   bool
	Scannable     bool
	Discoverable  bool
	Directed      bool
	Anonymous     bool
	IncludeTxPower bool
}

// KeyMaterial is the 16-byte key + 16-byte IV persisted per §6 under
// BTIF_STORAGE_KEY_ENCR_DATA, used to seal encrypted advertising data.
type KeyMaterial struct {
	Key [16]byte
	IV  [16]byte
}

// Advertiser is the per-set record described in §3.
type Advertiser struct {
	id      btcore.AdvertiserID
	inUse   bool
	started bool

	regID    uint16
	clientID uint16

	requestedAddressKind AddressKind
	effectiveAddressType btcore.AdvertiserAddressType
	currentAddress       btcore.Address

	config Config

	txPower           int8
	calibratedTxPower int8

	durationTicks     uint16
	maxExtendedEvents uint8

	isPeriodic  bool
	includeADI  bool

	advertisement    []gap.Element
	advertisementEnc []gap.Element
	scanResponse     []gap.Element
	scanResponseEnc  []gap.Element
	periodicData     []gap.Element
	periodicDataEnc  []gap.Element

	keyMaterial *KeyMaterial
	randomizer  [gap.RandomizerLen]byte

	rotationScheduled bool

	pendingEnable bool // paused at enable time; §4.6 "pending_enabled_sets"
}

// ID returns the advertiser's allocated id.
func (a *Advertiser) ID() btcore.AdvertiserID { return a.id }

// Started reports whether the set's last Enable(true) completed.
func (a *Advertiser) Started() bool { return a.started }

// CurrentAddress returns the address last committed to the controller.
func (a *Advertiser) CurrentAddress() btcore.Address { return a.currentAddress }

func (a *Advertiser) hasEncryptedPayloads() bool {
	return len(a.advertisementEnc) > 0 || len(a.scanResponseEnc) > 0 || len(a.periodicDataEnc) > 0
}

func (a *Advertiser) reset() {
	*a = Advertiser{id: a.id}
}
