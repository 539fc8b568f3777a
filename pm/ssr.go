package pm

import "github.com/rigado/btcore"

// HIDQuery resolves a live per-connection SSR preference for HID links,
// replacing the static table entry (§4.9 "for HID, use its per-connection
// preference via the HID query interface").
type HIDQuery interface {
	SSRParams(peer btcore.Address) (spec SSRSpec, ok bool)
}

// resolveSSR returns the SSRSpec a ServiceSpec's ssrIndex names, querying
// hidQuery when the index is the reserved HID slot.
func (m *Manager) resolveSSR(peer btcore.Address, index int, hid HIDQuery) SSRSpec {
	if index == SSRIndexHID && hid != nil {
		if spec, ok := hid.SSRParams(peer); ok {
			return spec
		}
	}
	if index < 0 || index >= len(m.ssrTable) {
		return m.ssrTable[SSRIndexZero]
	}
	return m.ssrTable[index]
}

// applySSRLocked issues BTM_SetSsrParams for peer unless SCO is active on
// it (§4.9 "suppress SSR while SCO is active"), and only when the
// resolved spec actually asks for a non-zero latency.
func (m *Manager) applySSRLocked(peer btcore.Address, spec SSRSpec) {
	if m.table.SCOActive(peer) {
		return
	}
	if spec.MaxLatency == 0 {
		return
	}
	m.dispatcher.Enqueue(m.ssrCommand(peer, spec), nil)
}
