package engine

import (
	"errors"
	"testing"

	"github.com/dop251/goja"
)

func newTestRealm(t *testing.T) *Realm {
	t.Helper()
	a := NewAgent(Options{})
	r, err := a.NewRealm(nil)
	if err != nil {
		t.Fatalf("NewRealm: %v", err)
	}
	return r
}

func TestPromiseCapability_ResolveFulfills(t *testing.T) {
	r := newTestRealm(t)

	pc := r.NewPromise()
	pc.Resolve("done")

	p, ok := pc.Value().Export().(*goja.Promise)
	if !ok {
		t.Fatal("capability value is not a promise")
	}
	if p.State() != goja.PromiseStateFulfilled {
		t.Fatalf("state = %v, want fulfilled", p.State())
	}
	if got := p.Result().String(); got != "done" {
		t.Errorf("result = %q, want done", got)
	}
	if !pc.Settled() {
		t.Error("capability must report settled")
	}
}

func TestPromiseCapability_RejectCarriesReason(t *testing.T) {
	r := newTestRealm(t)

	pc := r.NewPromise()
	pc.Reject(r.ErrorValue("went wrong"))

	p := pc.Value().Export().(*goja.Promise)
	if p.State() != goja.PromiseStateRejected {
		t.Fatalf("state = %v, want rejected", p.State())
	}
}

func TestThrowTypeError_FormatsMessage(t *testing.T) {
	r := newTestRealm(t)

	obj := r.ThrowTypeError("expected %s, got %s", "string", "number")
	msg := obj.Get("message").String()
	if msg != "expected string, got number" {
		t.Errorf("message = %q", msg)
	}
}

func TestEvaluate_InterruptUnwrapsCause(t *testing.T) {
	r := newTestRealm(t)

	cause := errors.New("stop requested")
	if err := r.Global().Set("halt", func() {
		r.VM().Interrupt(cause)
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	script, _, err := r.ParseScript("halt.js", `halt(); var after = 1;`, false)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if _, err := r.Evaluate(script); !errors.Is(err, cause) {
		t.Fatalf("Evaluate error = %v, want the interrupt cause", err)
	}

	// The interrupt is cleared; the realm keeps working.
	again, _, err := r.ParseScript("next.js", `1 + 1`, false)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	v, err := r.Evaluate(again)
	if err != nil {
		t.Fatalf("realm unusable after interrupt: %v", err)
	}
	if v.ToInteger() != 2 {
		t.Errorf("result = %v, want 2", v)
	}
}
