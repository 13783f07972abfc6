package timers

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

func TestClampDelay(t *testing.T) {
	cases := []struct {
		ms   float64
		want time.Duration
	}{
		{0, 0},
		{-5, 0},
		{math.NaN(), 0},
		{1.0, time.Millisecond},
		{1500, 1500 * time.Millisecond},
		{math.Inf(1), time.Duration(math.MaxUint32) * time.Millisecond},
		{math.MaxUint32 + 1, time.Duration(math.MaxUint32) * time.Millisecond},
	}
	for _, tc := range cases {
		if got := ClampDelay(tc.ms); got != tc.want {
			t.Errorf("ClampDelay(%v) = %v, want %v", tc.ms, got, tc.want)
		}
	}
}

func newTimerHarness(t *testing.T) (*State, *core.HostData, *engine.Realm, chan core.MacroTask) {
	t.Helper()
	bus := make(chan core.MacroTask, 64)
	hd := core.NewHostData(bus)
	agent := engine.NewAgent(engine.Options{})
	realm, err := agent.NewRealm(nil)
	if err != nil {
		t.Fatalf("NewRealm: %v", err)
	}
	return NewState(zap.NewNop()), hd, realm, bus
}

func rootedNoop(t *testing.T, realm *engine.Realm) *engine.Rooted {
	t.Helper()
	v, err := realm.VM().RunString("(function () {})")
	if err != nil {
		t.Fatalf("building callback: %v", err)
	}
	return realm.Root(v)
}

func TestAddTimeout_PostsFire(t *testing.T) {
	st, hd, realm, bus := newTimerHarness(t)

	id := st.AddTimeout(hd, rootedNoop(t, realm), 1)
	if hd.InFlight() != 1 {
		t.Fatalf("in-flight = %d, want 1", hd.InFlight())
	}

	select {
	case task := <-bus:
		fire, ok := task.(core.RunAndClearTimeout)
		if !ok || fire.ID != id {
			t.Fatalf("bus task = %#v, want RunAndClearTimeout{%d}", task, id)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout task never posted")
	}

	if !st.FireTimeout(realm, hd, id) {
		t.Error("FireTimeout on live entry should invoke")
	}
	if hd.InFlight() != 0 {
		t.Errorf("in-flight after fire = %d, want 0", hd.InFlight())
	}
	if !st.Timeouts.IsEmpty() {
		t.Error("entry not removed after fire")
	}
}

func TestMarkClearedTimeout_SuppressesFire(t *testing.T) {
	st, hd, realm, _ := newTimerHarness(t)

	id := st.AddTimeout(hd, rootedNoop(t, realm), 0)
	if !st.MarkClearedTimeout(id) {
		t.Fatal("MarkClearedTimeout on live entry should report true")
	}
	if st.MarkClearedTimeout(id) {
		t.Error("second mark should report false")
	}

	// A fire racing ahead of the clear on the bus must be discarded.
	if st.FireTimeout(realm, hd, id) {
		t.Error("cleared entry must not fire")
	}

	st.ClearTimeout(hd, id)
	if hd.InFlight() != 0 {
		t.Errorf("in-flight after clear = %d, want 0", hd.InFlight())
	}
	if !st.Timeouts.IsEmpty() {
		t.Error("entry not removed by ClearTimeout")
	}
}

func TestInterval_FiresUntilCleared(t *testing.T) {
	st, hd, realm, bus := newTimerHarness(t)

	id := st.AddInterval(hd, rootedNoop(t, realm), 1)

	for i := 0; i < 2; i++ {
		select {
		case task := <-bus:
			if _, ok := task.(core.RunInterval); !ok {
				t.Fatalf("bus task = %#v, want RunInterval", task)
			}
		case <-time.After(time.Second):
			t.Fatal("interval never ticked")
		}
	}
	if !st.FireInterval(realm, id) {
		t.Error("FireInterval on live entry should invoke")
	}
	if st.Intervals.IsEmpty() {
		t.Error("interval entry must survive a fire")
	}

	st.MarkClearedInterval(id)
	st.ClearInterval(hd, id)
	if hd.InFlight() != 0 {
		t.Errorf("in-flight after clear = %d, want 0", hd.InFlight())
	}
	if !st.Intervals.IsEmpty() {
		t.Error("interval entry not removed by ClearInterval")
	}
}

func TestClearTimeout_UnknownIDIsNoop(t *testing.T) {
	st, hd, _, _ := newTimerHarness(t)
	st.ClearTimeout(hd, 12345)
	if hd.InFlight() != 0 {
		t.Errorf("in-flight = %d, want 0", hd.InFlight())
	}
}
