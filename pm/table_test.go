package pm

import (
	"testing"

	"github.com/rigado/btcore"
)

func testPeer(b byte) btcore.Address {
	return btcore.Address{Bytes: [6]byte{b, b, b, b, b, b}}
}

func TestTableUpdateAddsAndCompacts(t *testing.T) {
	tbl := NewTable(4)
	peer := testPeer(1)

	if found := tbl.Update(ConnOpen, ServiceAV, AppIDAny, peer, false); !found {
		t.Fatalf("expected entry to be created")
	}
	if n := tbl.Count(peer); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	// Re-reporting the same (id, appID, peer) updates state in place.
	tbl.Update(ConnBusy, ServiceAV, AppIDAny, peer, false)
	entries := tbl.ForPeer(peer)
	if len(entries) != 1 || entries[0].State != ConnBusy {
		t.Fatalf("expected state updated to ConnBusy, got %+v", entries)
	}

	// NO_PREF compacts the entry out.
	tbl.Update(ConnClose, ServiceAV, AppIDAny, peer, true)
	if n := tbl.Count(peer); n != 0 {
		t.Fatalf("count after NO_PREF = %d, want 0", n)
	}
}

func TestTableMaxEntries(t *testing.T) {
	tbl := NewTable(1)
	peer := testPeer(2)

	tbl.Update(ConnOpen, ServiceAG, AppIDAny, peer, false)
	if found := tbl.Update(ConnOpen, ServiceAV, AppIDAny, peer, false); found {
		t.Fatalf("expected table full, second entry should not be added")
	}
	if n := tbl.Count(peer); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestTableSCOActive(t *testing.T) {
	tbl := NewTable(4)
	peer := testPeer(3)

	tbl.Update(ConnOpen, ServiceAG, AppIDAny, peer, false)
	if tbl.SCOActive(peer) {
		t.Fatalf("SCO should not be active before SCOOpen")
	}

	tbl.Update(SCOOpen, ServiceAG, AppIDAny, peer, false)
	if !tbl.SCOActive(peer) {
		t.Fatalf("SCO should be active after SCOOpen on the audio gateway entry")
	}

	tbl.Update(SCOClose, ServiceAG, AppIDAny, peer, false)
	if tbl.SCOActive(peer) {
		t.Fatalf("SCO should not be active after SCOClose")
	}
}

func TestTableNewRequestFlags(t *testing.T) {
	tbl := NewTable(4)
	peer := testPeer(4)

	tbl.Update(ConnIdle, ServiceHID, AppIDAny, peer, false)
	entries := tbl.ForPeer(peer)
	if !entries[0].NewRequest {
		t.Fatalf("a freshly created entry should start with NewRequest set")
	}

	tbl.ClearNewRequest(ServiceHID, AppIDAny, peer)
	if tbl.ForPeer(peer)[0].NewRequest {
		t.Fatalf("ClearNewRequest should unset NewRequest")
	}

	tbl.MarkNewRequest(ServiceHID, AppIDAny, peer)
	if !tbl.ForPeer(peer)[0].NewRequest {
		t.Fatalf("MarkNewRequest should set NewRequest")
	}
}
