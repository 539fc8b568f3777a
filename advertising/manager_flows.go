package advertising

import (
	"github.com/rigado/btcore"
	"github.com/rigado/btcore/hci"
)

// rotateLocked implements the Address rotation flow (§4.6): disable if
// connectable, mint a new address, re-seal encrypted payloads, re-enable
// if connectable and not paused. Every step is enqueued synchronously to
// the dispatcher so the FIFO ordering is the correctness argument.
func (m *Manager) rotateLocked(id btcore.AdvertiserID) {
	a := m.registry.Get(id)
	if a == nil {
		return
	}
	if !a.started {
		// set no longer enabled: drop the alarm (§4.6 "if set no longer
		// enabled, drop alarm").
		m.alarms.Cancel(rotationToken(id))
		delete(m.rotationTokens, id)
		return
	}

	connectable := a.config.Connectable
	if connectable {
		m.sendEnableLocked(a, false)
	}

	effective, addr, err := m.mintAddressLocked(a)
	if err != nil {
		return
	}
	a.effectiveAddressType = effective
	a.currentAddress = addr
	m.sendSetRandomAddressLocked(a)

	if a.hasEncryptedPayloads() {
		if len(a.advertisementEnc) > 0 {
			m.sendDataLocked(a, false)
		}
		if len(a.scanResponseEnc) > 0 {
			m.sendDataLocked(a, true)
		}
	}

	if connectable && !m.paused {
		m.sendEnableLocked(a, true)
	}
	// Re-scheduling is handled by the alarm service itself: rotation
	// alarms are periodic (§4.6 "Re-schedule the alarm").
}

// onSetTerminated handles controller-originated LE_Advertising_Set_Terminated
// (§4.6 "Set-terminated handling").
func (m *Manager) onSetTerminated(evt hci.AdvertisingSetTerminated) {
	id := btcore.AdvertiserID(evt.AdvertisingHandle)
	m.post(func() {
		a := m.registry.Get(id)
		if a == nil {
			return
		}
		if token, ok := m.rotationTokens[id]; ok {
			m.alarms.Cancel(token)
			delete(m.rotationTokens, id)
		}
		a.started = false

		switch evt.Status {
		case btcore.StatusLimitReached, btcore.StatusAdvertisingTimeout:
			if m.callbacks != nil {
				if a.regID == btcore.LocalRegistrationID {
					m.callbacks.OnTimeout(id, evt.Status)
				} else {
					m.callbacks.OnEnabled(id, false, evt.Status)
				}
			}
		default:
			indefinite := a.durationTicks == 0 && a.maxExtendedEvents == 0
			if indefinite && !a.config.Directed {
				m.startLocked(a)
			}
		}
	})
}

// onScanRequestReceived handles LE_Scan_Request_Received (§4.6
// "Scan-request-received"): deliver if registered, drop otherwise.
func (m *Manager) onScanRequestReceived(evt hci.ScanRequestReceived) {
	id := btcore.AdvertiserID(evt.AdvertisingHandle)
	m.post(func() {
		if m.registry.Get(id) == nil || m.scanCallbacks == nil {
			return
		}
		m.scanCallbacks.OnScanRequestReceived(id, evt.ScannerAddress)
	})
}

// Pause implements on_pause (§4.6): disable every enabled set, remember
// which ids were enabled so Resume can restore exactly them.
func (m *Manager) Pause() {
	m.post(func() {
		if m.paused {
			return
		}
		m.paused = true
		m.pausedEnabledSets = make(map[btcore.AdvertiserID]bool)
		for _, a := range m.registry.All() {
			if a.started {
				m.pausedEnabledSets[a.id] = true
				m.sendEnableLocked(a, false)
			}
		}
	})
}

// Resume implements on_resume (§4.6): re-enable exactly the set of ids
// that were enabled at Pause time, including any that were asked to
// start while paused.
func (m *Manager) Resume() {
	m.post(func() {
		if !m.paused {
			return
		}
		m.paused = false
		for id := range m.pausedEnabledSets {
			if a := m.registry.Get(id); a != nil {
				m.startLocked(a)
			}
		}
		m.pausedEnabledSets = make(map[btcore.AdvertiserID]bool)

		for _, a := range m.registry.All() {
			if a.pendingEnable {
				a.pendingEnable = false
				m.startLocked(a)
			}
		}
	})
}

// OnIRKChange implements on_irk_change (§4.6): synchronously rotate every
// enabled set whose effective address is resolvable; sets on a public or
// non-resolvable address are left as they are. NewManager registers it as
// the address policy module's rotation callback.
func (m *Manager) OnIRKChange() {
	m.post(func() {
		for _, a := range m.registry.All() {
			if a.started && a.effectiveAddressType == btcore.AdvertiserAddressResolvableRandom {
				m.rotateLocked(a.id)
			}
		}
	})
}

// HandleAdvertisingSetTerminated forwards a decoded controller event;
// the HCI transport layer (out of scope, §1) is responsible for routing
// raw LE Meta sub-events here.
func (m *Manager) HandleAdvertisingSetTerminated(evt hci.AdvertisingSetTerminated) {
	m.onSetTerminated(evt)
}

// HandleScanRequestReceived forwards a decoded controller event.
func (m *Manager) HandleScanRequestReceived(evt hci.ScanRequestReceived) {
	m.onScanRequestReceived(evt)
}
