package core

import (
	"context"
	"testing"
	"time"
)

func TestHostData_RetireOncePerTask(t *testing.T) {
	bus := make(chan MacroTask, 16)
	hd := NewHostData(bus)

	id := hd.SpawnMacroTask(func(ctx context.Context, _ TaskID) {})
	if hd.InFlight() != 1 {
		t.Fatalf("InFlight after spawn = %d, want 1", hd.InFlight())
	}

	hd.RetireTask(id)
	hd.RetireTask(id) // second retire is a no-op
	if hd.InFlight() != 0 {
		t.Errorf("InFlight after double retire = %d, want 0", hd.InFlight())
	}
}

func TestHostData_AbortCancelsContext(t *testing.T) {
	bus := make(chan MacroTask, 16)
	hd := NewHostData(bus)

	done := make(chan struct{})
	id := hd.SpawnMacroTask(func(ctx context.Context, _ TaskID) {
		<-ctx.Done()
		close(done)
	})

	hd.AbortMacroTask(id)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}

	// Abort does not retire; the abort path pairs it with RetireTask.
	if hd.InFlight() != 1 {
		t.Errorf("InFlight after abort = %d, want 1", hd.InFlight())
	}
	hd.RetireTask(id)
	if hd.InFlight() != 0 {
		t.Errorf("InFlight after retire = %d, want 0", hd.InFlight())
	}
}

func TestHostData_PostDeliversInOrder(t *testing.T) {
	bus := make(chan MacroTask, 16)
	hd := NewHostData(bus)

	hd.Post(RunInterval{ID: 1})
	hd.Post(RunInterval{ID: 2})

	first := (<-bus).(RunInterval)
	second := (<-bus).(RunInterval)
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("bus order = %d, %d; want 1, 2", first.ID, second.ID)
	}
}

func TestHostData_PostBeyondCapacityDoesNotBlock(t *testing.T) {
	bus := make(chan MacroTask, 2)
	hd := NewHostData(bus)

	// More posts than the bus holds; none may block the caller.
	done := make(chan struct{})
	go func() {
		for i := uint32(1); i <= 10; i++ {
			hd.Post(RunInterval{ID: IntervalID(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post blocked on a full bus")
	}
	if hd.Pending() != 10 {
		t.Fatalf("Pending = %d, want 10", hd.Pending())
	}

	// Draining alternates receive and flush, the way the driver does,
	// and must observe every task in post order.
	for want := uint32(1); want <= 10; want++ {
		hd.Flush()
		got := (<-bus).(RunInterval)
		if uint32(got.ID) != want {
			t.Fatalf("task %d out of order: got ID %d", want, got.ID)
		}
	}
	if hd.Pending() != 0 {
		t.Errorf("Pending after drain = %d, want 0", hd.Pending())
	}
}

func TestHostData_SpawnHandsTaskItsOwnID(t *testing.T) {
	bus := make(chan MacroTask, 16)
	hd := NewHostData(bus)

	seen := make(chan TaskID, 1)
	id := hd.SpawnMacroTask(func(ctx context.Context, task TaskID) {
		seen <- task
	})
	select {
	case got := <-seen:
		if got != id {
			t.Errorf("task saw ID %d, spawn returned %d", got, id)
		}
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	hd.RetireTask(id)
}

func TestHostData_ManyTasksDrainToZero(t *testing.T) {
	bus := make(chan MacroTask, 2048)
	hd := NewHostData(bus)

	ids := make([]TaskID, 0, 1000)
	for i := 0; i < 1000; i++ {
		ids = append(ids, hd.SpawnMacroTask(func(ctx context.Context, _ TaskID) {}))
	}
	if hd.InFlight() != 1000 {
		t.Fatalf("InFlight = %d, want 1000", hd.InFlight())
	}
	for _, id := range ids {
		hd.AbortMacroTask(id)
		hd.RetireTask(id)
	}
	if hd.InFlight() != 0 {
		t.Errorf("InFlight after mass retire = %d, want 0", hd.InFlight())
	}
}

func TestStorage_InitAndFetch(t *testing.T) {
	s := NewStorage()
	type timerish struct{ n int }

	InitState(s, &timerish{n: 7})
	got := State[*timerish](s)
	if got.n != 7 {
		t.Errorf("State = %+v, want n=7", got)
	}

	if _, ok := StateOK[string](s); ok {
		t.Error("StateOK for missing type must report false")
	}
}
