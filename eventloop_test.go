package andromeda

import (
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/andromeda-rt/andromeda/internal/core"
)

func TestNullResolutionSignalsEndOfStream(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	pc := rt.Realm().NewPromise()
	rt.HostData().Post(core.ResolveWithNull{Promise: pc})
	if !rt.Tick() {
		t.Fatal("posted task was not dispatched")
	}

	p, ok := pc.Value().Export().(*goja.Promise)
	if !ok {
		t.Fatal("capability does not carry a promise")
	}
	if p.State() != goja.PromiseStateFulfilled {
		t.Fatalf("promise state = %v, want fulfilled", p.State())
	}
	if !goja.IsNull(p.Result()) {
		t.Errorf("promise result = %v, want null", p.Result())
	}
}

func TestLocks_MutualExclusion(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	start := time.Now()
	runScript(t, rt, `
const hold = () => Andromeda.sleep(50);
const a = navigator.locks.request("x", hold);
const b = navigator.locks.request("x", hold);
Promise.all([a, b]).then(() => {
  navigator.locks.query().then((snap) => {
    console.log("held=" + snap.held.length + " pending=" + snap.pending.length);
  });
});
`)
	elapsed := time.Since(start)

	if got := strings.TrimSpace(rt.stdout.String()); got != "held=0 pending=0" {
		t.Errorf("final query = %q, want held=0 pending=0", got)
	}
	if elapsed < 100*time.Millisecond {
		t.Errorf("two exclusive 50ms holds took %v, want >= 100ms", elapsed)
	}
}

func TestLocks_SharedLocksOverlap(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	start := time.Now()
	runScript(t, rt, `
const hold = () => Andromeda.sleep(50);
const opts = { mode: "shared" };
Promise.all([
  navigator.locks.request("s", opts, hold),
  navigator.locks.request("s", opts, hold),
]).then(() => console.log("done"));
`)
	elapsed := time.Since(start)

	if got := strings.TrimSpace(rt.stdout.String()); got != "done" {
		t.Fatalf("stdout = %q", got)
	}
	if elapsed > 95*time.Millisecond {
		t.Errorf("two shared 50ms holds took %v, want them to overlap", elapsed)
	}
}

func TestLocks_IfAvailable(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `
navigator.locks.request("y", async () => {
  await navigator.locks.request("y", { ifAvailable: true }, (lock) => {
    console.log("lock=" + String(lock));
  });
  await Andromeda.sleep(1);
});
`)

	if got := strings.TrimSpace(rt.stdout.String()); got != "lock=null" {
		t.Errorf("stdout = %q, want lock=null", got)
	}
}

func TestLocks_QueryDuringHold(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `
navigator.locks.request("q", async () => {
  const snap = await navigator.locks.query();
  const held = snap.held.filter((l) => l.name === "q");
  console.log("held=" + held.length + " mode=" + (held[0] && held[0].mode));
});
`)

	if got := strings.TrimSpace(rt.stdout.String()); got != "held=1 mode=exclusive" {
		t.Errorf("stdout = %q", got)
	}
}

func TestLocks_StealAbortsPending(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `
navigator.locks.request("z", () => Andromeda.sleep(40));
navigator.locks.request("z", () => "never")
  .then(() => console.log("pending resolved"))
  .catch((e) => console.log("pending aborted"));
setTimeout(() => {
  navigator.locks.request("z", { steal: true }, () => "stolen")
    .then(() => console.log("steal done"));
}, 10);
`)

	out := rt.stdout.String()
	if !strings.Contains(out, "pending aborted") {
		t.Errorf("stdout = %q, missing pending aborted", out)
	}
	if !strings.Contains(out, "steal done") {
		t.Errorf("stdout = %q, missing steal done", out)
	}
	if strings.Contains(out, "pending resolved") {
		t.Error("aborted pending request must not resolve with success")
	}
	if rt.hd.InFlight() != 0 {
		t.Errorf("in-flight after drain = %d, want 0", rt.hd.InFlight())
	}
}

func TestBroadcast_FanOut(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `
const a = new BroadcastChannel("room");
const b = new BroadcastChannel("room");
b.onmessage = (ev) => {
  console.log("b got " + ev.data);
  a.close();
  b.close();
};
a.postMessage("ping");
`)

	if got := strings.TrimSpace(rt.stdout.String()); got != "b got ping" {
		t.Errorf("stdout = %q, want \"b got ping\"", got)
	}
	if rt.hd.InFlight() != 0 {
		t.Errorf("in-flight after drain = %d, want 0", rt.hd.InFlight())
	}
}

func TestBroadcast_SenderDoesNotReceiveOwnMessage(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `
const a = new BroadcastChannel("solo");
a.onmessage = () => console.log("echo");
a.postMessage("x");
setTimeout(() => { a.close(); console.log("done"); }, 20);
`)

	out := strings.TrimSpace(rt.stdout.String())
	if out != "done" {
		t.Errorf("stdout = %q, want only done", out)
	}
}

// evalScript evaluates without driving the event loop, for scripts that
// register long-lived work such as cron jobs.
func evalScript(t *testing.T, rt *testRuntime, src string) {
	t.Helper()
	script, diags, err := rt.realm.ParseScript("test.js", src, true)
	if err != nil {
		t.Fatalf("parse: %v (%v)", err, diags)
	}
	if _, err := rt.realm.Evaluate(script); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
}

func TestCron_InvalidNameRegistersNothing(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	evalScript(t, rt, `
console.log(Andromeda.cron("-bad", "* * * * *", () => {}));
console.log(Andromeda.cron("ok", "* * * * *", () => {}));
`)

	lines := strings.Split(strings.TrimSpace(rt.stdout.String()), "\n")
	if len(lines) != 2 || lines[0] != "undefined" || lines[1] != "undefined" {
		t.Fatalf("cron() must return undefined without throwing, got %q", rt.stdout.String())
	}
	if got := rt.cron.Jobs.Len(); got != 1 {
		t.Errorf("registered jobs = %d, want 1 (only the valid name)", got)
	}
}

func TestCron_InvalidScheduleRegistersNothing(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	evalScript(t, rt, `Andromeda.cron("job", "61 * * * *", () => {});`)

	if got := rt.cron.Jobs.Len(); got != 0 {
		t.Errorf("registered jobs = %d, want 0", got)
	}
}

func TestCron_RegistrationObservableViaMetrics(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	evalScript(t, rt, `
Andromeda.cron("-bad", "* * * * *", () => {});
Andromeda.cron("ok", "* * * * *", () => {});
`)

	families, err := rt.cfg.Metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var registered float64
	for _, mf := range families {
		if mf.GetName() == "andromeda_crons_registered_total" {
			registered = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if registered != 1 {
		t.Errorf("crons registered = %v, want 1", registered)
	}
}

func TestMetrics_CountsDispatches(t *testing.T) {
	rt := newTestRuntime(t, Config{})

	runScript(t, rt, `setTimeout(() => {}, 1);`)

	families, err := rt.cfg.Metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var dispatched float64
	for _, mf := range families {
		if mf.GetName() == "andromeda_macrotasks_dispatched_total" {
			dispatched = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if dispatched < 1 {
		t.Errorf("dispatched = %v, want >= 1", dispatched)
	}
}
