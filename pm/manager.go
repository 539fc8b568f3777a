package pm

import (
	"sync"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/hci"
)

// LinkPolicy gates whether SNIFF may be initiated for a peer
// (§4.9 "consult the link-policy gate"). A nil LinkPolicy always allows.
type LinkPolicy interface {
	SniffAllowed(peer btcore.Address) bool
}

// SniffParams is the base SNIFF power-mode parameter set
// (bluetooth.core.classic.sniff_{max,min}_intervals / attempts / timeouts).
type SniffParams struct {
	Max, Min, Attempt, Timeout uint16
}

// DefaultSniffParams is a representative SNIFF parameter set; hosts
// override via Manager.SetSniffParams.
var DefaultSniffParams = SniffParams{Max: 800, Min: 400, Attempt: 4, Timeout: 1}

// SniffParamsFromLists builds a SniffParams from the four
// bluetooth.core.classic.sniff_{max_intervals,min_intervals,attempts,timeouts}
// override lists (§6), taking entry 0 of each — the base power-mode
// table index every ServiceSpec's ConnIdle/ConnBusy action resolves to in
// this implementation's simplified (non-indexed) sniff-parameter model.
// Falls back to base for any list that is empty or too short.
func SniffParamsFromLists(maxIntervals, minIntervals, attempts, timeouts []uint16, base SniffParams) SniffParams {
	out := base
	if len(maxIntervals) > 0 {
		out.Max = maxIntervals[0]
	}
	if len(minIntervals) > 0 {
		out.Min = minIntervals[0]
	}
	if len(attempts) > 0 {
		out.Attempt = attempts[0]
	}
	if len(timeouts) > 0 {
		out.Timeout = timeouts[0]
	}
	return out
}

// Manager is the Power Manager state machine (C9, §4.9): reconciles
// per-peer desired power mode from the Connected-Services Table (C7),
// schedules delayed transitions via the PM Timer Bank (C8), and
// dispatches SET_POWER_MODE / BTM_SetSsrParams over the HCI dispatcher
// (C1). All state is owned by a single handler goroutine (§5).
type Manager struct {
	dispatcher *hci.Dispatcher
	table      *Table
	timers     *TimerBank

	specs       []ServiceSpec
	ssrTable    [8]SSRSpec
	sniffParams SniffParams
	linkPolicy  LinkPolicy
	hidQuery    HIDQuery

	peers map[btcore.Address]*Peer

	work chan func()
	done chan struct{}
	once sync.Once
}

// NewManager builds a Manager dispatching commands over d and using
// DefaultServiceSpecs / DefaultSSRTable / DefaultSniffParams until
// overridden.
func NewManager(d *hci.Dispatcher, numTimerSlots int) *Manager {
	m := &Manager{
		dispatcher:  d,
		table:       NewTable(64),
		specs:       append([]ServiceSpec(nil), DefaultServiceSpecs...),
		ssrTable:    DefaultSSRTable,
		sniffParams: DefaultSniffParams,
		peers:       make(map[btcore.Address]*Peer),
		work:        make(chan func(), 256),
		done:        make(chan struct{}),
	}
	m.timers = NewTimerBank(numTimerSlots, m.onTimerFire)
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for {
		select {
		case fn := <-m.work:
			fn()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) post(fn func()) {
	done := make(chan struct{})
	select {
	case m.work <- func() { fn(); close(done) }:
		<-done
	case <-m.done:
	}
}

// Stop shuts the manager down; no further work is processed.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.done)
		m.timers.Close()
	})
}

// RegisterServiceSpec adds or replaces the static PM configuration for a
// (ServiceID, AppID) pair.
func (m *Manager) RegisterServiceSpec(spec ServiceSpec) {
	m.post(func() {
		for i, s := range m.specs {
			if s.ID == spec.ID && s.AppID == spec.AppID {
				m.specs[i] = spec
				return
			}
		}
		m.specs = append(m.specs, spec)
	})
}

// SetSSRTable overrides the sniff-subrating parameter table. The §6
// bluetooth.core.classic.sniff_* lists are not applied here; they go to
// SetSniffParams via SniffParamsFromLists.
func (m *Manager) SetSSRTable(t [8]SSRSpec) {
	m.post(func() { m.ssrTable = t })
}

// SetSniffParams overrides the base SNIFF power-mode parameter set.
func (m *Manager) SetSniffParams(p SniffParams) {
	m.post(func() { m.sniffParams = p })
}

// SetLinkPolicy wires the link-policy gate consulted before SNIFF.
func (m *Manager) SetLinkPolicy(lp LinkPolicy) {
	m.post(func() { m.linkPolicy = lp })
}

// SetHIDQuery wires the live per-connection SSR preference source for
// HID links.
func (m *Manager) SetHIDQuery(q HIDQuery) {
	m.post(func() { m.hidQuery = q })
}

func (m *Manager) serviceSpecLocked(id ServiceID, appID AppID) (ServiceSpec, bool) {
	for _, s := range m.specs {
		if s.ID == id && (s.AppID == AppIDAny || s.AppID == appID) {
			return s, true
		}
	}
	return ServiceSpec{}, false
}

func (m *Manager) peerLocked(peer btcore.Address) *Peer {
	p, ok := m.peers[peer]
	if !ok {
		p = &Peer{Addr: peer}
		m.peers[peer] = p
	}
	return p
}

func (m *Manager) ssrCommand(peer btcore.Address, spec SSRSpec) hci.BTMSetSsrParams {
	return hci.BTMSetSsrParams{
		Peer:             peer.Bytes,
		MaxLatency:       spec.MaxLatency,
		MinRemoteTimeout: spec.MinRemoteTimeout,
		MinLocalTimeout:  spec.MinLocalTimeout,
	}
}

// onTimerFire is the PM Timer Bank's onFire callback; it runs on the
// timer bank's own alarm goroutine and must hand off to the manager's
// handler before touching shared state (§4.8 "forwards pm_timer(peer,
// pm_action)").
func (m *Manager) onTimerFire(peer btcore.Address, action Action) {
	m.post(func() {
		m.setModeLocked(peer, action, KindExecute)
	})
}
