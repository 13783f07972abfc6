package locks

import (
	"testing"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

func newTestHarness(t *testing.T) (*Manager, *core.HostData, *engine.Realm, chan core.MacroTask) {
	t.Helper()
	bus := make(chan core.MacroTask, 64)
	hd := core.NewHostData(bus)
	agent := engine.NewAgent(engine.Options{})
	realm, err := agent.NewRealm(nil)
	if err != nil {
		t.Fatalf("NewRealm: %v", err)
	}
	return NewManager(), hd, realm, bus
}

func TestManager_ImmediateExclusiveGrant(t *testing.T) {
	m, hd, realm, _ := newTestHarness(t)

	res, err := m.Request(hd, realm, "a", core.LockExclusive, false, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.Granted {
		t.Fatal("uncontended exclusive request must grant immediately")
	}

	snap := m.Query()
	if len(snap.Held) != 1 || snap.Held[0].Mode != string(core.LockExclusive) {
		t.Errorf("snapshot = %+v, want one exclusive hold", snap)
	}
}

func TestManager_ExclusiveBlocksSecond(t *testing.T) {
	m, hd, realm, _ := newTestHarness(t)

	first, _ := m.Request(hd, realm, "a", core.LockExclusive, false, false)
	second, err := m.Request(hd, realm, "a", core.LockExclusive, false, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if second.Granted {
		t.Fatal("second exclusive request must not grant while first is held")
	}
	if second.Pending == nil {
		t.Fatal("second request must be pending")
	}
	if hd.InFlight() != 1 {
		t.Errorf("pending request should park one task, in-flight = %d", hd.InFlight())
	}

	snap := m.Query()
	if len(snap.Held) != 1 || len(snap.Pending) != 1 {
		t.Errorf("snapshot = %+v, want 1 held 1 pending", snap)
	}
	_ = first
}

func TestManager_SharedLocksCoexist(t *testing.T) {
	m, hd, realm, _ := newTestHarness(t)

	a, _ := m.Request(hd, realm, "s", core.LockShared, false, false)
	b, _ := m.Request(hd, realm, "s", core.LockShared, false, false)
	if !a.Granted || !b.Granted {
		t.Fatal("two shared requests must both grant")
	}

	excl, _ := m.Request(hd, realm, "s", core.LockExclusive, true, false)
	if !excl.NotAvailable {
		t.Error("exclusive ifAvailable must miss while shared locks are active")
	}
}

func TestManager_ReleasePumpsQueue(t *testing.T) {
	m, hd, realm, bus := newTestHarness(t)

	first, _ := m.Request(hd, realm, "a", core.LockExclusive, false, false)
	second, _ := m.Request(hd, realm, "a", core.LockExclusive, false, false)

	if err := m.Release(hd, "a", first.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	select {
	case task := <-bus:
		acq, ok := task.(core.AcquireLock)
		if !ok {
			t.Fatalf("bus task = %T, want AcquireLock", task)
		}
		if acq.Promise != second.Pending {
			t.Error("granted promise is not the pending request's promise")
		}
	default:
		t.Fatal("Release must post an AcquireLock for the queued request")
	}

	snap := m.Query()
	if len(snap.Held) != 1 || len(snap.Pending) != 0 {
		t.Errorf("snapshot after pump = %+v", snap)
	}
}

func TestManager_IfAvailableMiss(t *testing.T) {
	m, hd, realm, _ := newTestHarness(t)

	m.Request(hd, realm, "a", core.LockExclusive, false, false)
	res, err := m.Request(hd, realm, "a", core.LockExclusive, true, false)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.NotAvailable || res.Granted || res.Pending != nil {
		t.Errorf("result = %+v, want NotAvailable only", res)
	}
	if hd.InFlight() != 0 {
		t.Errorf("ifAvailable miss must not park a task, in-flight = %d", hd.InFlight())
	}
}

func TestManager_StealDropsPendingAndActive(t *testing.T) {
	m, hd, realm, _ := newTestHarness(t)

	m.Request(hd, realm, "a", core.LockExclusive, false, false)
	pending, _ := m.Request(hd, realm, "a", core.LockExclusive, false, false)

	res, err := m.Request(hd, realm, "a", core.LockExclusive, false, true)
	if err != nil {
		t.Fatalf("steal: %v", err)
	}
	if !res.Granted {
		t.Fatal("steal must grant")
	}
	if len(res.Aborted) != 1 {
		t.Fatalf("aborted = %d, want 1", len(res.Aborted))
	}
	if res.Aborted[0].Promise != pending.Pending {
		t.Error("abort task must carry the dropped request's promise")
	}
	if hd.InFlight() != 0 {
		t.Errorf("steal must retire parked tasks, in-flight = %d", hd.InFlight())
	}

	snap := m.Query()
	if len(snap.Held) != 1 || len(snap.Pending) != 0 {
		t.Errorf("snapshot after steal = %+v", snap)
	}
}

func TestManager_AbortPendingRequest(t *testing.T) {
	m, hd, realm, bus := newTestHarness(t)

	m.Request(hd, realm, "a", core.LockExclusive, false, false)
	pending, _ := m.Request(hd, realm, "a", core.LockExclusive, false, false)

	snap := m.Query()
	if len(snap.Pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(snap.Pending))
	}
	if err := m.Abort(hd, "a", snap.Pending[0].ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	select {
	case task := <-bus:
		ab, ok := task.(core.AbortLockRequest)
		if !ok {
			t.Fatalf("bus task = %T, want AbortLockRequest", task)
		}
		if ab.Promise != pending.Pending {
			t.Error("abort must reject the pending request's promise")
		}
	default:
		t.Fatal("Abort must post an AbortLockRequest")
	}
	if hd.InFlight() != 0 {
		t.Errorf("abort must retire the parked task, in-flight = %d", hd.InFlight())
	}
}

func TestManager_QueryEmpty(t *testing.T) {
	m, _, _, _ := newTestHarness(t)
	snap := m.Query()
	if snap.Held == nil || snap.Pending == nil {
		t.Error("snapshot slices must be non-nil for JSON encoding")
	}
	if len(snap.Held)+len(snap.Pending) != 0 {
		t.Errorf("fresh manager snapshot = %+v", snap)
	}
}

func TestValidateName_RejectsLeadingDash(t *testing.T) {
	if err := ValidateName("-reserved"); err == nil {
		t.Error("names starting with '-' are reserved")
	}
	if err := ValidateName("fine"); err != nil {
		t.Errorf("ValidateName(fine) = %v", err)
	}
}
