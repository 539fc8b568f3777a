package pm

import (
	"time"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/hci"
)

// ConnStatusChange is the system's connection-state notification (§4.9
// input 1, grounded on bta_dm_pm_cback): a service reports a new state
// for peer. It updates the Connected-Services Table and re-drives the
// power-mode decision for peer.
func (m *Manager) ConnStatusChange(status ConnStatus, id ServiceID, appID AppID, peer btcore.Address) {
	m.post(func() {
		spec, ok := m.serviceSpecLocked(id, appID)
		if !ok {
			return
		}

		// A service switching state cancels whatever timer it had
		// itself previously armed (grounded on bta_dm_pm_cback's
		// leading stop_timer_by_srvc_id call).
		m.timers.StopByServiceID(peer, id)

		actionSpec := spec.Actions[status]
		noPref := actionSpec.Action == ActionNoPref
		m.table.Update(status, id, appID, peer, noPref)

		if noPref && m.table.Count(peer) == 0 {
			delete(m.peers, peer)
		} else {
			p := m.peerLocked(peer)
			p.PMModeAttempted = ActionNoAction
			p.PMModeFailed = 0
		}

		m.handleSSRLocked(status, id, spec, peer)

		if m.table.Count(peer) == 0 {
			return
		}

		// Stop every timer for the peer before recomputing: the PM
		// action table may now call for a different mode than
		// whatever was previously armed (generic stop_timer, §4.8 —
		// pm_action is deliberately left stale on every index).
		m.timers.StopAll(peer)

		kind := KindNew
		if m.table.Count(peer) > 0 {
			kind = KindRestart
		}
		m.setModeLocked(peer, ActionNoAction, kind)
	})
}

// handleSSRLocked implements the §4.9 SSR selection rule. Grounded on
// bta_dm_pm_cback's index computation: CONN_OPEN with USE_SSR set takes
// the service's configured index; A2DP takes SSR4 on CONN_BUSY and its
// configured index back on CONN_IDLE; SCO_OPEN/SCO_CLOSE only reach the
// zero/restore branch because neither condition above matches them, so
// their resolved index is always the SSR0 default.
func (m *Manager) handleSSRLocked(status ConnStatus, id ServiceID, spec ServiceSpec, peer btcore.Address) {
	index := SSRIndexZero
	switch {
	case status == ConnOpen && m.peers[peer] != nil && m.peers[peer].UseSSR:
		index = spec.SSRIndex
	case id == ServiceAV && status == ConnBusy:
		index = SSRIndexA2DPBusy
	case id == ServiceAV && status == ConnIdle:
		index = spec.SSRIndex
	}

	resolved := m.resolveSSR(peer, index, m.hidQuery)

	if resolved.MaxLatency > 0 || index == SSRIndexHID {
		if id != ServiceAV || status != ConnBusy {
			m.applySSRLocked(peer, resolved)
		}
		return
	}

	switch status {
	case SCOOpen:
		m.dispatcher.Enqueue(m.ssrCommand(peer, SSRSpec{}), nil)
	case SCOClose:
		m.applySSRLocked(peer, m.ssrTable[SSRIndexZero])
	}
}

// setModeLocked implements set_mode(peer, requested, kind), §4.9 steps
// 1-7.
func (m *Manager) setModeLocked(peer btcore.Address, requested Action, kind Kind) {
	p, ok := m.peers[peer]
	if !ok {
		return
	}

	pmAction := ActionNoAction
	var allowed, preferred ActionMask
	var timeout time.Duration
	var timerSrvc ServiceID

	for _, e := range m.table.ForPeer(peer) {
		spec, ok := m.serviceSpecLocked(e.ID, e.AppID)
		if !ok {
			continue
		}
		allowed |= spec.AllowMask
		actionSpec := spec.Actions[e.State]
		if actionSpec.Action == ActionNoPref {
			continue
		}
		if p.PMModeFailed&actionBit(actionSpec.Action) != 0 {
			continue
		}
		preferred |= actionBit(actionSpec.Action)
		if actionSpec.Action >= pmAction {
			pmAction = actionSpec.Action
			if kind != KindNew || e.NewRequest {
				timeout = actionSpec.Timeout
				timerSrvc = e.ID
				m.table.ClearNewRequest(e.ID, e.AppID, peer)
			}
		}
	}

	if pmAction == ActionPark || pmAction == ActionSniff {
		if allowed&actionBit(pmAction) == 0 {
			pmAction = strictestIn(allowed & (maskPark | maskSniff) & preferred)
			if pmAction == ActionNoAction {
				timeout = 0
			}
		}
	}

	if kind != KindExecute && timeout > 0 {
		idx, hasTimer := ActionTimerIndex(pmAction)
		if !hasTimer {
			return
		}
		if remaining, armed := m.timers.Remaining(peer, idx); armed {
			if remaining <= timeout {
				return // an earlier-or-equal deadline is already armed
			}
			m.timers.Stop(peer, idx)
		}
		if err := m.timers.Start(peer, idx, timeout, timerSrvc, pmAction); err != nil {
			btcore.GetLogger().Warnf("pm: no timer slots available for peer %s", peer)
		}
		return
	}

	if kind == KindExecute && requested < pmAction {
		return
	}

	switch pmAction {
	case ActionPark:
		p.PMModeAttempted = ActionPark
		m.dispatcher.Enqueue(hci.SetPowerMode{Peer: peer.Bytes, Mode: hci.PowerModePark}, nil)
	case ActionSniff:
		if m.linkPolicy != nil && !m.linkPolicy.SniffAllowed(peer) {
			return
		}
		if p.CurrentMode == StatusSniff && p.AcpSniff && p.UseSSR {
			// already accepted remote sniff params under SSR: avoid
			// a sniff-renegotiation loop with aggressive remotes.
			return
		}
		p.PMModeAttempted = ActionSniff
		p.SetSniff = true
		p.IntSniff = false
		p.AcpSniff = false
		m.dispatcher.Enqueue(hci.SetPowerMode{
			Peer:        peer.Bytes,
			Mode:        hci.PowerModeSniff,
			IntervalMin: m.sniffParams.Min,
			IntervalMax: m.sniffParams.Max,
			Attempt:     m.sniffParams.Attempt,
			Timeout:     m.sniffParams.Timeout,
		}, nil)
	default:
		// NoAction or Suspend: no command is issued. NoAction leaves the
		// link as it is, and the HCI surface this core emits has no
		// distinct SUSPEND command (§6).
	}
}

// PMBtmStatus is the controller's power-mode notification (§4.9 input 2,
// pm_btm_status).
func (m *Manager) PMBtmStatus(peer btcore.Address, status PowerStatus, value uint16, hciStatus uint8) {
	m.post(func() {
		p, ok := m.peers[peer]
		if !ok {
			return
		}

		switch status {
		case StatusActive:
			if hciStatus != 0 {
				p.IntSniff, p.AcpSniff, p.SetSniff = false, false, false
				if p.PMModeAttempted == ActionPark || p.PMModeAttempted == ActionSniff {
					p.PMModeFailed |= actionBit(p.PMModeAttempted) & (maskPark | maskSniff)
					if idx, ok := ActionTimerIndex(p.PMModeAttempted); ok {
						m.timers.Stop(peer, idx)
					}
					p.CurrentMode = StatusActive
					m.setModeLocked(peer, ActionNoAction, KindRestart)
				}
				return
			}
			if p.PrevLow != StatusActive {
				m.applySSRLocked(peer, m.ssrTable[SSRIndexZero])
			}
			p.PrevLow = StatusActive
			p.CurrentMode = StatusActive
			m.timers.StopAll(peer)
			m.setModeLocked(peer, ActionNoAction, KindRestart)

		case StatusPark, StatusHold:
			if p.UseSSR {
				p.PrevLow = status
			}
			p.CurrentMode = status

		case StatusSSR:
			if hciStatus == 0 {
				p.UseSSR = value != 0
			}

		case StatusSniff:
			p.CurrentMode = StatusSniff
			if hciStatus == 0 {
				m.timers.StopAll(peer) // remote beat us to it
			} else {
				wasSetSniff := p.SetSniff
				p.IntSniff, p.AcpSniff, p.SetSniff = false, false, false
				if wasSetSniff {
					p.IntSniff = true
				} else {
					p.AcpSniff = true
				}
			}

		case StatusError:
			p.SetSniff = false
		}
	})
}
