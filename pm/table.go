package pm

import "github.com/rigado/btcore"

// ServiceEntry is one row of the Connected-Services Table (§3 "PM
// service entry").
type ServiceEntry struct {
	ID         ServiceID
	AppID      AppID
	State      ConnStatus
	Peer       btcore.Address
	NewRequest bool
}

// Table is the Connected-Services Table (C7, §4.7): a flat, bounded list
// of active (service, app, state) entries per peer, driving PM
// decisions. Lookup is linear, matching the small expected N.
type Table struct {
	maxEntries int
	entries    []ServiceEntry
}

// NewTable builds an empty table bounded at maxEntries (BTA_DM_NUM_CONN_SRVS).
func NewTable(maxEntries int) *Table {
	return &Table{maxEntries: maxEntries}
}

// Update finds or creates the entry for (id, appID, peer) and sets its
// state. If noPref is set (the spec's action for (id, status) is NO_PREF),
// the entry is removed instead (compaction preserves relative order of the
// rest, since that order is observable to the strictness algorithm).
// Returns whether an entry now exists (false if it was removed, or if the
// table was full).
func (t *Table) Update(status ConnStatus, id ServiceID, appID AppID, peer btcore.Address, noPref bool) (found bool) {
	idx := t.find(id, appID, peer)

	if noPref {
		if idx < 0 {
			return false
		}
		t.entries = append(t.entries[:idx], t.entries[idx+1:]...)
		return false
	}

	if idx >= 0 {
		t.entries[idx].State = status
		return true
	}

	if len(t.entries) >= t.maxEntries {
		return false
	}
	t.entries = append(t.entries, ServiceEntry{
		ID: id, AppID: appID, State: status, Peer: peer, NewRequest: true,
	})
	return true
}

// MarkNewRequest sets NewRequest on the matching entry, used when a
// service re-reports the same state and wants another evaluation pass.
func (t *Table) MarkNewRequest(id ServiceID, appID AppID, peer btcore.Address) {
	if idx := t.find(id, appID, peer); idx >= 0 {
		t.entries[idx].NewRequest = true
	}
}

// ClearNewRequest is called by the strictness algorithm once a service's
// pending request has been evaluated (§3 invariant).
func (t *Table) ClearNewRequest(id ServiceID, appID AppID, peer btcore.Address) {
	if idx := t.find(id, appID, peer); idx >= 0 {
		t.entries[idx].NewRequest = false
	}
}

// ForPeer returns every entry currently recorded for peer.
func (t *Table) ForPeer(peer btcore.Address) []ServiceEntry {
	var out []ServiceEntry
	for _, e := range t.entries {
		if e.Peer == peer {
			out = append(out, e)
		}
	}
	return out
}

// Count reports the number of entries for peer.
func (t *Table) Count(peer btcore.Address) int {
	n := 0
	for _, e := range t.entries {
		if e.Peer == peer {
			n++
		}
	}
	return n
}

// SCOActive reports whether an audio-gateway entry on peer is currently in
// SCOOpen state (§4.9 "bta_dm_get_sco_index").
func (t *Table) SCOActive(peer btcore.Address) bool {
	for _, e := range t.entries {
		if e.Peer == peer && e.ID == ServiceAG && e.State == SCOOpen {
			return true
		}
	}
	return false
}

func (t *Table) find(id ServiceID, appID AppID, peer btcore.Address) int {
	for i, e := range t.entries {
		if e.ID == id && e.AppID == appID && e.Peer == peer {
			return i
		}
	}
	return -1
}
