package ext

import (
	"testing"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

func newInstallTarget(t *testing.T) (*engine.Agent, *engine.Realm) {
	t.Helper()
	a := engine.NewAgent(engine.Options{})
	a.SetHostData(core.NewHostData(make(chan core.MacroTask, 4)))
	r, err := a.NewRealm(nil)
	if err != nil {
		t.Fatalf("NewRealm: %v", err)
	}
	return a, r
}

type greetState struct{ msg string }

// The console and process shims call their ops while they evaluate, so
// ops and storage must exist before the first builtin script runs.
func TestInstall_ScriptsSeeOpsAndState(t *testing.T) {
	a, r := newInstallTarget(t)

	called := false
	x := Extension{
		Name: "greeter",
		Ops: []Op{{
			Name: "internal_greet",
			Fn: func(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
				called = true
				hd := a.HostData().(*core.HostData)
				return r.String(core.State[*greetState](hd.Storage()).msg), nil
			},
		}},
		Scripts: []Script{{
			Name:   "ext:greeter/greeter.js",
			Source: `globalThis.greeting = globalThis.__andromeda__.internal_greet();`,
		}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, &greetState{msg: "hi"})
		},
	}

	if err := Install(a, r, x, zap.NewNop()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if !called {
		t.Fatal("op never ran during builtin evaluation")
	}
	if got := r.Global().Get("greeting").String(); got != "hi" {
		t.Errorf("greeting = %q, want hi", got)
	}
}

func TestInstall_ScriptRuntimeFailureIsFatal(t *testing.T) {
	a, r := newInstallTarget(t)

	x := Extension{
		Name:    "broken",
		Scripts: []Script{{Name: "ext:broken/broken.js", Source: `throw new Error("nope");`}},
	}

	err := Install(a, r, x, zap.NewNop())
	if err == nil {
		t.Fatal("a throwing builtin must fail the install")
	}
	if core.KindOf(err) != core.KindExtensionInit {
		t.Errorf("error kind = %v, want %v", core.KindOf(err), core.KindExtensionInit)
	}
}

func TestInstall_TypeMismatchBecomesTypeError(t *testing.T) {
	a, r := newInstallTarget(t)

	x := Extension{
		Name: "picky",
		Ops: []Op{{
			Name: "internal_want_string",
			Fn: func(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
				return nil, core.OpError(core.KindTypeMismatch, "internal_want_string", "value must be a string")
			},
		}},
	}
	if err := Install(a, r, x, zap.NewNop()); err != nil {
		t.Fatalf("Install: %v", err)
	}

	script, _, err := r.ParseScript("t.js", `
var kind = "none";
try { globalThis.__andromeda__.internal_want_string(1); }
catch (e) { kind = e instanceof TypeError ? "TypeError" : "other"; }
kind;
`, false)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	v, err := r.Evaluate(script)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.String() != "TypeError" {
		t.Errorf("thrown kind = %q, want TypeError", v.String())
	}
}
