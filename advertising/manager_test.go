package advertising

import (
	"sync"
	"testing"
	"time"

	"github.com/rigado/btcore"
	"github.com/rigado/btcore/addrpolicy"
	"github.com/rigado/btcore/hci"
)

type recordedCmd struct {
	opcode uint16
	subOp  uint8
	raw    []byte
}

type fakeSender struct {
	mu  sync.Mutex
	log [][]byte
}

func (f *fakeSender) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, append([]byte{}, b...))
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.log)
}

// opcodeAt decodes the opcode of the nth sent packet (HCI framing: byte0
// packet type, bytes 1-2 little-endian opcode).
func (f *fakeSender) opcodeAt(i int) uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.log[i]
	return uint16(b[1]) | uint16(b[2])<<8
}

type recordingCallbacks struct {
	NopCallbacks
	mu       sync.Mutex
	started  []btcore.StatusCode
	enabled  []btcore.StatusCode
	timeouts []btcore.StatusCode
	lastTx   int8
}

func (r *recordingCallbacks) OnSetStarted(regID uint16, id btcore.AdvertiserID, txPower int8, status btcore.StatusCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, status)
	r.lastTx = txPower
}

func (r *recordingCallbacks) OnEnabled(id btcore.AdvertiserID, enable bool, status btcore.StatusCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = append(r.enabled, status)
}

func (r *recordingCallbacks) OnTimeout(id btcore.AdvertiserID, status btcore.StatusCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts = append(r.timeouts, status)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func newTestManager(t *testing.T) (*Manager, *fakeSender, *hci.Dispatcher, *recordingCallbacks) {
	t.Helper()
	sender := &fakeSender{}
	d := hci.NewDispatcher(sender)
	addrMod := addrpolicy.New(btcore.Address{Bytes: [6]byte{1, 2, 3, 4, 5, 6}, Type: btcore.AddressTypePublic})
	cb := &recordingCallbacks{}
	m := NewManager(btcore.ApiExtended, 4, d, addrMod, cb)
	t.Cleanup(func() {
		m.Stop()
		d.Stop()
	})
	return m, sender, d, cb
}

// ackNext waits until more than have commands were sent, then completes
// the one at index have with SUCCESS (so callers can step through a known
// sequence one stage at a time).
func ackNext(t *testing.T, sender *fakeSender, d *hci.Dispatcher, have int) {
	t.Helper()
	waitFor(t, func() bool { return sender.count() > have })
	op := sender.opcodeAt(have)
	d.HandleCommandComplete(op, 0, hci.CommandCompleteEvent{Status: btcore.StatusSuccess})
}

// TestStartFlowOrdering matches §8 S5's command ordering for an enabled
// connectable RPA set: parameters, then random address, then enable.
func TestStartFlowOrdering(t *testing.T) {
	m, sender, d, cb := newTestManager(t)

	id, err := m.RegisterAdvertiser()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetParameters(id, Config{
		RequestedAddressKind: AddressKindResolvableRandom,
		Connectable:          true,
		Discoverable:         true,
	}); err != nil {
		t.Fatal(err)
	}

	ackNext(t, sender, d, 0) // ack the SetParameters command just issued

	if err := m.Enable(id, true, 0, 0); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return sender.count() > 1 })
	if got := sender.opcodeAt(1); got != (hci.LESetAdvertisingSetRandomAddress{}).OpCode() {
		t.Fatalf("second command opcode = 0x%04x, want LESetAdvertisingSetRandomAddress (0x%04x)", got, (hci.LESetAdvertisingSetRandomAddress{}).OpCode())
	}
	ackNext(t, sender, d, 1)

	waitFor(t, func() bool { return sender.count() > 2 })
	if got := sender.opcodeAt(2); got != (hci.LESetExtAdvertisingEnable{}).OpCode() {
		t.Fatalf("third command opcode = 0x%04x, want LESetExtAdvertisingEnable (0x%04x)", got, (hci.LESetExtAdvertisingEnable{}).OpCode())
	}
	d.HandleCommandComplete((hci.LESetExtAdvertisingEnable{}).OpCode(), 0, hci.CommandCompleteEvent{Status: btcore.StatusSuccess})

	waitFor(t, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return len(cb.started) == 1
	})
	if cb.started[0] != btcore.StatusSuccess {
		t.Fatalf("OnSetStarted status = %v, want SUCCESS", cb.started[0])
	}
}

// TestRegisterAllocatesDistinctIDs exercises the registry accounting (C5).
func TestRegisterAllocatesDistinctIDs(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	ids := map[btcore.AdvertiserID]bool{}
	for i := 0; i < 4; i++ {
		id, err := m.RegisterAdvertiser()
		if err != nil {
			t.Fatal(err)
		}
		if ids[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		ids[id] = true
	}
	if _, err := m.RegisterAdvertiser(); err != ErrTooManyAdvertisers {
		t.Fatalf("5th allocation error = %v, want ErrTooManyAdvertisers", err)
	}
}

// TestRemoveAdvertiserFreesID ensures Reset/Remove frees the id for reuse.
func TestRemoveAdvertiserFreesID(t *testing.T) {
	m, _, _, _ := newTestManager(t)
	id, err := m.RegisterAdvertiser()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.RemoveAdvertiser(id); err != nil {
		t.Fatal(err)
	}
	id2, err := m.RegisterAdvertiser()
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Fatalf("freed id %d was not reused, got %d", id, id2)
	}
}

// TestSetTerminatedAdvertisingTimeoutSuppressesReEnable: a set that was not
// registered locally and is terminated by ADVERTISING_TIMEOUT gets
// OnEnabled(false, ADVERTISING_TIMEOUT) and is not transparently re-enabled.
func TestSetTerminatedAdvertisingTimeoutSuppressesReEnable(t *testing.T) {
	m, sender, d, cb := newTestManager(t)

	id, _ := m.RegisterAdvertiser()
	_ = m.SetParameters(id, Config{RequestedAddressKind: AddressKindResolvableRandom, Connectable: true, Discoverable: true})
	ackNext(t, sender, d, 0)
	_ = m.Enable(id, true, 100, 0)

	// random address then enable
	ackNext(t, sender, d, 1)
	ackNext(t, sender, d, 2)

	before := sender.count()
	m.HandleAdvertisingSetTerminated(hci.AdvertisingSetTerminated{
		Status:            btcore.StatusAdvertisingTimeout,
		AdvertisingHandle: uint8(id),
	})

	waitFor(t, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return len(cb.enabled) == 1
	})
	if cb.enabled[0] != btcore.StatusAdvertisingTimeout {
		t.Fatalf("OnEnabled status = %v, want ADVERTISING_TIMEOUT", cb.enabled[0])
	}
	time.Sleep(20 * time.Millisecond)
	if sender.count() != before {
		t.Fatalf("sent %d more commands after a timeout termination, want 0 (no auto re-enable)", sender.count()-before)
	}
}

// TestSetTerminatedTimeoutWithLocalRegDeliversOnTimeout is §8 S6: a
// locally-registered set (reg_id == LocalRegistrationID) terminated by
// ADVERTISING_TIMEOUT gets the one-shot OnTimeout callback instead of
// OnEnabled, and is not re-enabled.
func TestSetTerminatedTimeoutWithLocalRegDeliversOnTimeout(t *testing.T) {
	m, sender, d, cb := newTestManager(t)

	id, err := m.CreateExtendedAdvertiser(0, btcore.LocalRegistrationID,
		Config{RequestedAddressKind: AddressKindResolvableRandom, Connectable: true, Discoverable: true}, 100, 0)
	if err != nil {
		t.Fatalf("CreateExtendedAdvertiser: %v", err)
	}
	_ = m.SetParameters(id, Config{RequestedAddressKind: AddressKindResolvableRandom, Connectable: true, Discoverable: true})
	ackNext(t, sender, d, 0)
	_ = m.Enable(id, true, 100, 0)

	// random address then enable
	ackNext(t, sender, d, 1)
	ackNext(t, sender, d, 2)

	before := sender.count()
	m.HandleAdvertisingSetTerminated(hci.AdvertisingSetTerminated{
		Status:            btcore.StatusAdvertisingTimeout,
		AdvertisingHandle: uint8(id),
	})

	waitFor(t, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return len(cb.timeouts) == 1
	})
	if cb.timeouts[0] != btcore.StatusAdvertisingTimeout {
		t.Fatalf("OnTimeout status = %v, want ADVERTISING_TIMEOUT", cb.timeouts[0])
	}
	cb.mu.Lock()
	gotEnabled := len(cb.enabled)
	cb.mu.Unlock()
	if gotEnabled != 0 {
		t.Fatalf("OnEnabled delivered %d times for a local-reg timeout, want 0", gotEnabled)
	}
	time.Sleep(20 * time.Millisecond)
	if sender.count() != before {
		t.Fatalf("sent %d more commands after a timeout termination, want 0 (no auto re-enable)", sender.count()-before)
	}
}

// TestIndefiniteSetTerminatedReEnables is §4.6's auto-resume rule: an
// indefinite (duration=0, max_events=0), non-directed set that the
// controller tears down for any other reason is transparently re-enabled.
func TestIndefiniteSetTerminatedReEnables(t *testing.T) {
	m, sender, d, _ := newTestManager(t)

	id, _ := m.RegisterAdvertiser()
	_ = m.SetParameters(id, Config{RequestedAddressKind: AddressKindResolvableRandom, Connectable: true, Discoverable: true})
	ackNext(t, sender, d, 0)
	_ = m.Enable(id, true, 0, 0)
	ackNext(t, sender, d, 1)
	ackNext(t, sender, d, 2)

	before := sender.count()
	m.HandleAdvertisingSetTerminated(hci.AdvertisingSetTerminated{
		Status:            btcore.StatusSuccess,
		AdvertisingHandle: uint8(id),
	})

	waitFor(t, func() bool { return sender.count() > before })
}

// TestPauseDisablesAndResumeRestoresEnabledSets is §4.6's pause/resume
// contract.
func TestPauseDisablesAndResumeRestoresEnabledSets(t *testing.T) {
	m, sender, d, cb := newTestManager(t)

	id, _ := m.RegisterAdvertiser()
	_ = m.SetParameters(id, Config{RequestedAddressKind: AddressKindResolvableRandom, Connectable: true, Discoverable: true})
	ackNext(t, sender, d, 0)
	_ = m.Enable(id, true, 0, 0)
	ackNext(t, sender, d, 1)
	ackNext(t, sender, d, 2)
	waitFor(t, func() bool {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		return len(cb.started) == 1
	})

	before := sender.count()
	m.Pause()
	waitFor(t, func() bool { return sender.count() > before })
	ackNext(t, sender, d, before)

	before = sender.count()
	m.Resume()
	waitFor(t, func() bool { return sender.count() > before })
}
