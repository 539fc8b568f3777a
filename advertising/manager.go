package advertising

import (
	"fmt"
	"sync"
	"time"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/addrpolicy"
	"github.com/rigado/btcore/alarm"
	"github.com/rigado/btcore/gap"
	"github.com/rigado/btcore/hci"
)

// Manager is the Advertising Manager (C6): the state machine of start,
// update, rotate, enable and terminate for every advertising set, built
// on the dispatcher (C1), address policy (C2), alarm service (C3), data
// codec (C4) and registry (C5).
//
// All state is owned by a single handler goroutine (§5): public methods
// post a closure to it and block for the result, mirroring "public entry
// points post a task to this handler; cross-thread access is forbidden".
type Manager struct {
	work chan func()
	done chan struct{}
	stop sync.Once

	dispatcher *hci.Dispatcher
	addrMod    *addrpolicy.Module
	alarms     *alarm.Service
	registry   *Registry
	apiType    btcore.ApiType
	logger     btcore.Logger

	callbacks     Callbacks
	scanCallbacks ScanCallbacks

	maxControllerDataLen int
	rotationInterval     time.Duration
	addressPolicy        btcore.AddressPolicy
	txPathLossCompDb     int
	nrpaNonConnectable   bool
	divideLongGapData    bool
	checkDataLenLegacy   bool

	paused            bool
	pausedEnabledSets map[btcore.AdvertiserID]bool
	rotationTokens    map[btcore.AdvertiserID]alarm.Token

	registeredWithAddrMod bool
}

// NewManager builds a manager for the given API type and controller
// instance count, driving commands through dispatcher and addresses
// through addrMod.
func NewManager(apiType btcore.ApiType, maxInstances int, dispatcher *hci.Dispatcher, addrMod *addrpolicy.Module, callbacks Callbacks) *Manager {
	m := &Manager{
		work:                  make(chan func()),
		done:                  make(chan struct{}),
		dispatcher:            dispatcher,
		addrMod:               addrMod,
		registry:              NewRegistry(apiType, maxInstances),
		apiType:               apiType,
		logger:                btcore.GetLogger(),
		callbacks:             callbacks,
		maxControllerDataLen:  1650,
		rotationInterval:      15 * time.Minute,
		addressPolicy:         btcore.AddressPolicyRPA,
		pausedEnabledSets:     make(map[btcore.AdvertiserID]bool),
		rotationTokens:        make(map[btcore.AdvertiserID]alarm.Token),
	}
	m.alarms = alarm.New(m.onAlarmFire)
	go m.loop()
	addrMod.RegisterRotationCallback(m.OnIRKChange)
	return m
}

// onAlarmFire is the alarm service's single dispatch point. It runs on
// the alarm service's own goroutine, so it hands off to the manager's
// handler via post rather than touching manager state directly (§5: the
// HCI dispatcher and alarm service may run on their own threads but must
// deliver back to the main handler).
func (m *Manager) onAlarmFire(token alarm.Token) {
	m.post(func() {
		for id, t := range m.rotationTokens {
			if t == token {
				m.rotateLocked(id)
				return
			}
		}
	})
}

// SetScanCallbacks wires the scan-request-received delivery target.
func (m *Manager) SetScanCallbacks(cb ScanCallbacks) {
	m.post(func() { m.scanCallbacks = cb })
}

// SetRotationInterval overrides the default private-address rotation
// period (§5 "host-configured interval").
func (m *Manager) SetRotationInterval(d time.Duration) {
	m.post(func() { m.rotationInterval = d })
}

// SetTxPathLossCompDb sets bluetooth.hardware.radio.le_tx_path_loss_comp_db
// (§6): added to every requested tx power, clipped to [-127, 20].
func (m *Manager) SetTxPathLossCompDb(db int) {
	m.post(func() { m.txPathLossCompDb = db })
}

// SetNRPANonConnectableAdv sets the nrpa_non_connectable_adv flag (§6):
// when set, non-connectable advertisements under a Public/Static address
// policy use NRPA instead of Public.
func (m *Manager) SetNRPANonConnectableAdv(v bool) {
	m.post(func() { m.nrpaNonConnectable = v })
}

// SetDivideLongSingleGapData sets the divide_long_single_gap_data flag
// (§6): when set, a GAP element may exceed 252 bytes and the codec splits
// it across fragments by raw byte count.
func (m *Manager) SetDivideLongSingleGapData(v bool) {
	m.post(func() { m.divideLongGapData = v })
}

// SetBLECheckDataLengthOnLegacyAdvertising sets the
// ble_check_data_length_on_legacy_advertising flag (§6): when set,
// legacy-PDU advertising data is additionally capped at 31 bytes.
func (m *Manager) SetBLECheckDataLengthOnLegacyAdvertising(v bool) {
	m.post(func() { m.checkDataLenLegacy = v })
}

func clipTxPower(v int) int8 {
	if v < -127 {
		v = -127
	}
	if v > 20 {
		v = 20
	}
	return int8(v)
}

// SetAddressPolicy overrides the host privacy policy used to narrow
// requested address types (§4.2).
func (m *Manager) SetAddressPolicy(p btcore.AddressPolicy) {
	m.post(func() { m.addressPolicy = p })
}

func (m *Manager) loop() {
	for {
		select {
		case <-m.done:
			return
		case fn := <-m.work:
			fn()
		}
	}
}

// post runs fn on the handler goroutine and blocks until it completes.
func (m *Manager) post(fn func()) {
	reply := make(chan struct{})
	select {
	case m.work <- func() { fn(); close(reply) }:
		<-reply
	case <-m.done:
	}
}

// Stop halts the handler; no further public method has any effect.
func (m *Manager) Stop() {
	m.stop.Do(func() { close(m.done) })
}

// RegisterAdvertiser allocates an id without configuring it (§4.6
// "register_advertiser() -> AdvertiserId").
func (m *Manager) RegisterAdvertiser() (btcore.AdvertiserID, error) {
	var id btcore.AdvertiserID
	var err error
	m.post(func() {
		var a *Advertiser
		a, err = m.registry.Allocate()
		if err == nil {
			id = a.id
			m.registerWithAddrModLocked()
		}
	})
	return id, err
}

func (m *Manager) registerWithAddrModLocked() {
	if !m.registeredWithAddrMod {
		m.addrMod.Register()
		m.registeredWithAddrMod = true
	}
}

func (m *Manager) unregisterFromAddrModIfEmptyLocked() {
	if m.registry.InUseCount() == 0 && m.registeredWithAddrMod {
		m.addrMod.Unregister()
		m.registeredWithAddrMod = false
	}
}

// CreateExtendedAdvertiser allocates and configures a set in one step
// (§4.6 "create_extended_advertiser").
func (m *Manager) CreateExtendedAdvertiser(clientID, regID uint16, cfg Config, durationTicks uint16, maxEvents uint8) (btcore.AdvertiserID, error) {
	var id btcore.AdvertiserID
	var err error
	m.post(func() {
		var a *Advertiser
		a, err = m.registry.Allocate()
		if err != nil {
			return
		}
		m.registerWithAddrModLocked()
		id = a.id
		a.clientID = clientID
		a.regID = regID
		a.durationTicks = durationTicks
		a.maxExtendedEvents = maxEvents
		m.applyConfigLocked(a, cfg)
	})
	return id, err
}

func (m *Manager) applyConfigLocked(a *Advertiser, cfg Config) {
	a.config = cfg
	a.requestedAddressKind = cfg.RequestedAddressKind
	a.txPower = cfg.TxPower
}

// SetParameters updates a set's configuration and re-issues the HCI
// parameters command (§4.6 "set_parameters").
func (m *Manager) SetParameters(id btcore.AdvertiserID, cfg Config) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		m.applyConfigLocked(a, cfg)
		m.sendSetParametersLocked(a)
	})
	return err
}

func (m *Manager) sendSetParametersLocked(a *Advertiser) {
	cfg := a.config
	cmd := hci.LESetExtAdvertisingParameters{
		AdvertisingHandle: uint8(a.id),
		IntervalMin:       cfg.IntervalMin,
		IntervalMax:       cfg.IntervalMax,
		ChannelMap:        cfg.ChannelMap,
		FilterPolicy:      cfg.FilterPolicy,
		TxPower:           clipTxPower(int(cfg.TxPower) + m.txPathLossCompDb),
	}
	id := a.id
	m.dispatcher.Enqueue(cmd, func(evt hci.CommandCompleteEvent, err error) {
		m.post(func() {
			a := m.registry.Get(id)
			if a == nil {
				return
			}
			status := completionStatus(evt, err)
			if status == btcore.StatusSuccess && len(evt.ReturnBody) > 0 {
				a.calibratedTxPower = int8(evt.ReturnBody[0])
			}
			if m.callbacks != nil {
				m.callbacks.OnParamsUpdated(id, status)
			}
		})
	})
}

// SetData sets advertisement or scan-response data (§4.4, §4.6 "set_data").
// encPlaintext is stored on the set and is sealed and appended as encrypted
// advertising data only when the set carries key material; no Manager
// method installs key material, so the payload sent is plaintext alone.
func (m *Manager) SetData(id btcore.AdvertiserID, isScanResponse bool, plaintext []gap.Element, encPlaintext []gap.Element) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		if isScanResponse {
			a.scanResponse = plaintext
			a.scanResponseEnc = encPlaintext
		} else {
			a.advertisement = plaintext
			a.advertisementEnc = encPlaintext
		}
		err = m.sendDataLocked(a, isScanResponse)
	})
	return err
}

func (m *Manager) sendDataLocked(a *Advertiser, isScanResponse bool) error {
	elements, _ := a.plaintext(isScanResponse)
	if len(a.encElements(isScanResponse)) > 0 && a.keyMaterial != nil {
		sealed, randomizer, sealErr := gap.Seal(a.keyMaterial.Key, a.keyMaterial.IV, a.encElements(isScanResponse))
		if sealErr != nil {
			return sealErr
		}
		a.randomizer = randomizer
		elements = append(append([]gap.Element{}, elements...), sealed)
	}

	var prepared []gap.Element
	if isScanResponse {
		prepared = gap.PreparePassthrough(elements, a.calibratedTxPower)
	} else {
		durationNonZero := a.durationTicks != 0
		prepared = gap.PrepareAdvertisement(elements, a.config.Connectable, a.config.Discoverable, durationNonZero, a.calibratedTxPower)
	}

	frags, err := gap.Encode(prepared, gap.Options{
		MaxControllerLength:     m.maxControllerDataLen,
		LegacyPDU:               a.config.Legacy && m.checkDataLenLegacy,
		DivideLongSingleGapData: m.divideLongGapData,
	})
	if err != nil {
		if m.callbacks != nil {
			if isScanResponse {
				m.callbacks.OnScanResponseSet(a.id, btcore.StatusDataTooLarge)
			} else {
				m.callbacks.OnDataSet(a.id, btcore.StatusDataTooLarge)
			}
		}
		return err
	}

	id := a.id
	for i, f := range frags {
		final := i == len(frags)-1
		m.enqueueDataFragment(id, isScanResponse, f, final)
	}
	return nil
}

func (a *Advertiser) plaintext(isScanResponse bool) ([]gap.Element, int) {
	if isScanResponse {
		return a.scanResponse, len(a.scanResponse)
	}
	return a.advertisement, len(a.advertisement)
}

func (a *Advertiser) encElements(isScanResponse bool) []gap.Element {
	if isScanResponse {
		return a.scanResponseEnc
	}
	return a.advertisementEnc
}

// enqueueDataFragment issues one fragment of a data write; only the
// final fragment surfaces a callback (§4.4 "Completion callbacks fire
// only at COMPLETE or LAST").
func (m *Manager) enqueueDataFragment(id btcore.AdvertiserID, isScanResponse bool, f gap.Fragment, final bool) {
	var cmd hci.Command
	if isScanResponse {
		cmd = hci.LESetExtScanResponseData{AdvertisingHandle: uint8(id), Operation: uint8(f.Op), Data: f.Bytes}
	} else {
		cmd = hci.LESetExtAdvertisingData{AdvertisingHandle: uint8(id), Operation: uint8(f.Op), Data: f.Bytes}
	}
	m.dispatcher.Enqueue(cmd, func(evt hci.CommandCompleteEvent, err error) {
		if !final {
			return
		}
		m.post(func() {
			status := completionStatus(evt, err)
			if m.callbacks == nil {
				return
			}
			if isScanResponse {
				m.callbacks.OnScanResponseSet(id, status)
			} else {
				m.callbacks.OnDataSet(id, status)
			}
		})
	})
}

// Enable starts or stops a set, following the Start flow in §4.6.
func (m *Manager) Enable(id btcore.AdvertiserID, enable bool, durationTicks uint16, maxEvents uint8) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		a.durationTicks = durationTicks
		a.maxExtendedEvents = maxEvents
		if !enable {
			m.disableLocked(a)
			return
		}
		if m.paused {
			a.pendingEnable = true
			return
		}
		m.startLocked(a)
	})
	return err
}

// startLocked runs the Start flow (§4.6): mint address, set it if
// non-public, schedule rotation, then enable.
func (m *Manager) startLocked(a *Advertiser) {
	effective, addr, err := m.mintAddressLocked(a)
	if err != nil {
		if m.callbacks != nil {
			m.callbacks.OnEnabled(a.id, true, btcore.StatusInternalError)
		}
		return
	}
	a.effectiveAddressType = effective
	a.currentAddress = addr

	if effective != btcore.AdvertiserAddressPublic {
		m.sendSetRandomAddressLocked(a)
	}
	// Only a resolvable private address needs periodic re-minting; an NRPA
	// is random but never resolved against an IRK, so it never rotates
	// (§4.6 step 5 "if random and not NRPA").
	if effective == btcore.AdvertiserAddressResolvableRandom {
		m.scheduleRotationLocked(a)
	}

	m.sendEnableLocked(a, true)
}

func (m *Manager) mintAddressLocked(a *Advertiser) (btcore.AdvertiserAddressType, btcore.Address, error) {
	requested := requestedEffective(a.requestedAddressKind)
	var effective btcore.AdvertiserAddressType
	if a.config.Connectable || !m.nrpaNonConnectable {
		effective = addrpolicy.Resolve(requested, m.addressPolicy)
	} else {
		effective = addrpolicy.ResolveNonConnectable(requested, m.addressPolicy)
	}
	addr, err := m.addrMod.NewAddress(effective, m.apiType)
	return effective, addr, err
}

func requestedEffective(k AddressKind) btcore.AdvertiserAddressType {
	switch k {
	case AddressKindResolvableRandom:
		return btcore.AdvertiserAddressResolvableRandom
	case AddressKindNonResolvableRandom:
		return btcore.AdvertiserAddressNonResolvableRandom
	default:
		return btcore.AdvertiserAddressPublic
	}
}

func (m *Manager) sendSetRandomAddressLocked(a *Advertiser) {
	id := a.id
	addr := a.currentAddress
	m.dispatcher.Enqueue(hci.LESetAdvertisingSetRandomAddress{AdvertisingHandle: uint8(id), Address: addr.Bytes}, func(evt hci.CommandCompleteEvent, err error) {
		m.post(func() {
			a := m.registry.Get(id)
			if a == nil {
				return
			}
			if completionStatus(evt, err) == btcore.StatusSuccess {
				a.currentAddress = addr
			}
		})
	})
}

func (m *Manager) scheduleRotationLocked(a *Advertiser) {
	id := a.id
	token := rotationToken(id)
	m.rotationTokens[id] = token
	a.rotationScheduled = true
	m.alarms.SchedulePeriodic(token, m.rotationInterval)
}

func rotationToken(id btcore.AdvertiserID) alarm.Token {
	return alarm.Token(fmt.Sprintf("adv-rotate-%d", id))
}

func (m *Manager) sendEnableLocked(a *Advertiser, enable bool) {
	id := a.id
	entry := hci.ExtAdvertisingEnableEntry{AdvertisingHandle: uint8(id), Duration: a.durationTicks, MaxExtendedEvents: a.maxExtendedEvents}
	cmd := hci.LESetExtAdvertisingEnable{Enable: enable, Sets: []hci.ExtAdvertisingEnableEntry{entry}}
	m.dispatcher.Enqueue(cmd, func(evt hci.CommandCompleteEvent, err error) {
		m.post(func() {
			a := m.registry.Get(id)
			if a == nil {
				return
			}
			status := completionStatus(evt, err)
			a.started = enable && status == btcore.StatusSuccess
			if m.callbacks != nil {
				if enable && status == btcore.StatusSuccess {
					m.callbacks.OnSetStarted(a.regID, id, a.calibratedTxPower, status)
				} else {
					m.callbacks.OnEnabled(id, enable, status)
				}
			}
		})
	})
}

func (m *Manager) disableLocked(a *Advertiser) {
	m.sendEnableLocked(a, false)
}

// GetOwnAddress delivers the set's current address via the callback
// surface (§4.6 "get_own_address").
func (m *Manager) GetOwnAddress(id btcore.AdvertiserID) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		if m.callbacks != nil {
			m.callbacks.OnOwnAddressRead(id, a.currentAddress)
		}
	})
	return err
}

// RemoveAdvertiser deallocates a set in the controller and destroys its
// record (§4.5).
func (m *Manager) RemoveAdvertiser(id btcore.AdvertiserID) error {
	var err error
	m.post(func() {
		if m.registry.Get(id) == nil {
			err = ErrUnknownAdvertiser
			return
		}
		m.dispatcher.Enqueue(hci.LERemoveAdvertisingSet{AdvertisingHandle: uint8(id)}, nil)
		m.destroyLocked(id)
	})
	return err
}

// ResetAdvertiser tears down a set's host-side state without removing
// it from the controller (§4.5 "reset_advertiser").
func (m *Manager) ResetAdvertiser(id btcore.AdvertiserID) error {
	var err error
	m.post(func() {
		if m.registry.Get(id) == nil {
			err = ErrUnknownAdvertiser
			return
		}
		m.destroyLocked(id)
	})
	return err
}

func (m *Manager) destroyLocked(id btcore.AdvertiserID) {
	if token, ok := m.rotationTokens[id]; ok {
		m.alarms.Cancel(token)
		delete(m.rotationTokens, id)
	}
	delete(m.pausedEnabledSets, id)
	m.registry.Reset(id)
	m.unregisterFromAddrModIfEmptyLocked()
}

// SetPeriodicParameters configures periodic advertising interval for an
// already-created set (§4.6).
func (m *Manager) SetPeriodicParameters(id btcore.AdvertiserID, intervalMin, intervalMax uint16) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		a.isPeriodic = true
		m.dispatcher.Enqueue(hci.LESetPeriodicAdvertisingParameters{AdvertisingHandle: uint8(id), IntervalMin: intervalMin, IntervalMax: intervalMax}, func(evt hci.CommandCompleteEvent, cerr error) {
			m.post(func() {
				if m.callbacks != nil {
					m.callbacks.OnPeriodicParamsUpdated(id, completionStatus(evt, cerr))
				}
			})
		})
	})
	return err
}

// SetPeriodicData writes periodic advertising data (§4.6).
func (m *Manager) SetPeriodicData(id btcore.AdvertiserID, elements []gap.Element) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		a.periodicData = elements
		prepared := gap.PreparePassthrough(elements, a.calibratedTxPower)
		frags, encErr := gap.Encode(prepared, gap.Options{
			MaxControllerLength:     m.maxControllerDataLen,
			DivideLongSingleGapData: m.divideLongGapData,
		})
		if encErr != nil {
			err = encErr
			if m.callbacks != nil {
				m.callbacks.OnPeriodicDataSet(id, btcore.StatusDataTooLarge)
			}
			return
		}
		for i, f := range frags {
			final := i == len(frags)-1
			m.dispatcher.Enqueue(hci.LESetPeriodicAdvertisingData{AdvertisingHandle: uint8(id), Operation: uint8(f.Op), Data: f.Bytes}, func(evt hci.CommandCompleteEvent, cerr error) {
				if !final {
					return
				}
				m.post(func() {
					if m.callbacks != nil {
						m.callbacks.OnPeriodicDataSet(id, completionStatus(evt, cerr))
					}
				})
			})
		}
	})
	return err
}

// EnablePeriodic enables or disables periodic advertising for a set
// (§4.6 "enable_periodic").
func (m *Manager) EnablePeriodic(id btcore.AdvertiserID, enable bool, includeADI bool) error {
	var err error
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			err = ErrUnknownAdvertiser
			return
		}
		a.includeADI = includeADI
		m.dispatcher.Enqueue(hci.LESetPeriodicAdvertisingEnable{Enable: enable, AdvertisingHandle: uint8(id)}, func(evt hci.CommandCompleteEvent, cerr error) {
			m.post(func() {
				if m.callbacks != nil {
					m.callbacks.OnPeriodicEnabled(id, enable, completionStatus(evt, cerr))
				}
			})
		})
	})
	return err
}

func completionStatus(evt hci.CommandCompleteEvent, err error) btcore.StatusCode {
	if err != nil {
		return btcore.StatusInternalError
	}
	return evt.Status
}

// Errors surfaced by the public API; HCI-path errors are delivered
// through the callback surface as btcore.StatusCode instead (§7).
var (
	ErrUnknownAdvertiser = errUnknownAdvertiser{}
)

type errUnknownAdvertiser struct{}

func (errUnknownAdvertiser) Error() string { return "advertising: unknown advertiser id" }
