package pm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/alarm"
)

// TimerIndex selects one of the three per-peer timer slots (§3 "PM timer
// slot"). Order matches the original's SUSPEND, PARK, SNIFF layout.
type TimerIndex uint8

const (
	TimerSuspend TimerIndex = iota
	TimerPark
	TimerSniff
	numTimerIndex
)

// ActionTimerIndex maps an Action to the timer index that arms it, or
// ok=false for actions with no timer (NoAction).
func ActionTimerIndex(a Action) (TimerIndex, bool) {
	switch a {
	case ActionSuspend:
		return TimerSuspend, true
	case ActionPark:
		return TimerPark, true
	case ActionSniff:
		return TimerSniff, true
	default:
		return 0, false
	}
}

type timerPerIdx struct {
	srvcID   ServiceID
	hasSrvc  bool
	pmAction Action
	deadline time.Time
}

type timerSlot struct {
	inUse       bool
	peer        btcore.Address
	activeCount int
	perIdx      [numTimerIndex]timerPerIdx
}

// ErrNoTimerSlots is returned when every slot in the bank is claimed by a
// different peer (§4.8 "log 'no more timers'").
var ErrNoTimerSlots = fmt.Errorf("pm: no more timer slots")

// TimerBank is the PM Timer Bank (C8, §4.8): a fixed pool of per-peer
// timer slots, one slot per peer with one timer index per power mode. It owns its own alarm.Service,
// following the pattern the advertising manager uses for its rotation
// alarms, since alarm.Service supports only one global fire callback.
type TimerBank struct {
	mu     sync.Mutex
	slots  []timerSlot
	alarms *alarm.Service

	onFire func(peer btcore.Address, action Action)
}

// NewTimerBank builds a bank of n slots that calls onFire on the alarm
// service's handler goroutine when a slot's timer fires.
func NewTimerBank(n int, onFire func(peer btcore.Address, action Action)) *TimerBank {
	tb := &TimerBank{
		slots:  make([]timerSlot, n),
		onFire: onFire,
	}
	tb.alarms = alarm.New(tb.fire)
	return tb
}

func slotToken(slot int, idx TimerIndex) alarm.Token {
	return alarm.Token(fmt.Sprintf("pm-timer-%d-%d", slot, idx))
}

// Start claims (or reuses) peer's slot and arms idx for timeout. If the
// index was idle, active_count is incremented; pm_action takes the
// stricter of the existing and requested value (§4.8).
func (tb *TimerBank) Start(peer btcore.Address, idx TimerIndex, timeout time.Duration, srvcID ServiceID, action Action) error {
	tb.mu.Lock()
	slot, err := tb.claimLocked(peer)
	if err != nil {
		tb.mu.Unlock()
		return err
	}
	s := &tb.slots[slot]
	if !s.perIdx[idx].hasSrvc {
		s.activeCount++
	}
	if action > s.perIdx[idx].pmAction {
		s.perIdx[idx].pmAction = action
	}
	s.perIdx[idx].srvcID = srvcID
	s.perIdx[idx].hasSrvc = true
	s.perIdx[idx].deadline = time.Now().Add(timeout)
	tb.mu.Unlock()

	tb.alarms.Schedule(slotToken(slot, idx), timeout)
	return nil
}

// Remaining reports the time left on peer's idx timer, or false if it is
// not armed (used by set_mode's "cancel and restart at earlier deadline"
// rule, §4.9 step 5).
func (tb *TimerBank) Remaining(peer btcore.Address, idx TimerIndex) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	slot := tb.findLocked(peer)
	if slot < 0 || !tb.slots[slot].perIdx[idx].hasSrvc {
		return 0, false
	}
	return time.Until(tb.slots[slot].perIdx[idx].deadline), true
}

// Stop cancels peer's idx timer. It deliberately does NOT clear
// pm_action (§4.8 "a deliberate quirk ... preserve this behavior for
// compatibility").
func (tb *TimerBank) Stop(peer btcore.Address, idx TimerIndex) {
	tb.mu.Lock()
	slot := tb.findLocked(peer)
	if slot < 0 || !tb.slots[slot].perIdx[idx].hasSrvc {
		tb.mu.Unlock()
		return
	}
	tb.stopIndexLocked(slot, idx)
	tb.mu.Unlock()
}

// StopAll cancels every armed timer for peer (the generic "stop_timer"
// called before a fresh set_mode pass). pm_action is left stale on every
// index, same quirk as Stop.
func (tb *TimerBank) StopAll(peer btcore.Address) {
	tb.mu.Lock()
	slot := tb.findLocked(peer)
	if slot < 0 {
		tb.mu.Unlock()
		return
	}
	for idx := TimerIndex(0); idx < numTimerIndex; idx++ {
		if tb.slots[slot].perIdx[idx].hasSrvc {
			tb.stopIndexLocked(slot, idx)
		}
	}
	tb.mu.Unlock()
}

// StopByServiceID cancels whichever index peer's slot has assigned to
// srvcID, if any.
func (tb *TimerBank) StopByServiceID(peer btcore.Address, srvcID ServiceID) {
	tb.mu.Lock()
	slot := tb.findLocked(peer)
	if slot < 0 {
		tb.mu.Unlock()
		return
	}
	for idx := TimerIndex(0); idx < numTimerIndex; idx++ {
		if tb.slots[slot].perIdx[idx].hasSrvc && tb.slots[slot].perIdx[idx].srvcID == srvcID {
			tb.stopIndexLocked(slot, idx)
			break
		}
	}
	tb.mu.Unlock()
}

// PMAction reports the last recorded pm_action for peer's idx, which may
// be stale per the Stop quirk above. A slot that Stop released still
// reports its value until the slot is claimed again.
func (tb *TimerBank) PMAction(peer btcore.Address, idx TimerIndex) Action {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	slot := tb.findLocked(peer)
	if slot < 0 {
		for i := range tb.slots {
			if tb.slots[i].peer == peer {
				slot = i
				break
			}
		}
	}
	if slot < 0 {
		return ActionNoAction
	}
	return tb.slots[slot].perIdx[idx].pmAction
}

// InUse reports whether peer holds a slot with at least one active
// index (§8 "in_use iff active_count > 0").
func (tb *TimerBank) InUse(peer btcore.Address) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	slot := tb.findLocked(peer)
	return slot >= 0 && tb.slots[slot].inUse
}

// ActiveCount reports peer's slot's active_count (test/observability
// hook for the timer-slot-accounting property, §8).
func (tb *TimerBank) ActiveCount(peer btcore.Address) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	slot := tb.findLocked(peer)
	if slot < 0 {
		return 0
	}
	return tb.slots[slot].activeCount
}

// Close shuts down the bank's alarm service.
func (tb *TimerBank) Close() { tb.alarms.Stop() }

func (tb *TimerBank) stopIndexLocked(slot int, idx TimerIndex) {
	s := &tb.slots[slot]
	s.perIdx[idx].hasSrvc = false
	s.perIdx[idx].srvcID = 0
	s.activeCount--
	if s.activeCount <= 0 {
		s.activeCount = 0
		s.inUse = false
	}
	tb.alarms.Cancel(slotToken(slot, idx))
}

func (tb *TimerBank) findLocked(peer btcore.Address) int {
	for i := range tb.slots {
		if tb.slots[i].inUse && tb.slots[i].peer == peer {
			return i
		}
	}
	return -1
}

// claimLocked returns peer's existing slot, or claims the first free
// one, or ErrNoTimerSlots.
func (tb *TimerBank) claimLocked(peer btcore.Address) (int, error) {
	if i := tb.findLocked(peer); i >= 0 {
		return i, nil
	}
	for i := range tb.slots {
		if !tb.slots[i].inUse {
			tb.slots[i] = timerSlot{inUse: true, peer: peer}
			return i, nil
		}
	}
	return 0, ErrNoTimerSlots
}

// fire runs on the alarm service's handler goroutine: decode which slot
// and index fired, release it, and hand the stale-on-purpose pm_action
// off to the PM state machine (§4.8 "forwards pm_timer(peer, pm_action)").
func (tb *TimerBank) fire(token alarm.Token) {
	var slot int
	var idx TimerIndex
	if _, err := fmt.Sscanf(string(token), "pm-timer-%d-%d", &slot, &idx); err != nil {
		return
	}

	tb.mu.Lock()
	if slot < 0 || slot >= len(tb.slots) || !tb.slots[slot].inUse || !tb.slots[slot].perIdx[idx].hasSrvc {
		tb.mu.Unlock()
		return
	}
	peer := tb.slots[slot].peer
	action := tb.slots[slot].perIdx[idx].pmAction
	tb.stopIndexLocked(slot, idx)
	tb.mu.Unlock()

	if tb.onFire != nil {
		tb.onFire(peer, action)
	}
}
