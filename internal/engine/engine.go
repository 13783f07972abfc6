// Package engine wraps the embedded ECMAScript engine (dop251/goja) behind
// the small surface the rest of the runtime depends on: agents, realms,
// value construction, rooted handles, promise capabilities, and parsing.
// Nothing outside this package imports goja directly except through the
// Value alias.
package engine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Value is an engine value handle. Scoped validity: a Value obtained during
// one re-entry must not be stashed across re-entries — use Rooted for that.
type Value = goja.Value

// Options configures a new Agent.
type Options struct {
	// DisableGC is accepted for interface parity; goja is collected by the
	// Go GC and has no manual collection cycle to disable.
	DisableGC bool
	// PrintInternals makes thrown values render with their Go-side detail.
	PrintInternals bool
}

// Agent owns a set of realms and the process-wide host-data slot.
// All methods are engine-thread confined.
type Agent struct {
	opts     Options
	hostData any
	realms   []*Realm
}

// NewAgent creates an Agent with the given options.
func NewAgent(opts Options) *Agent {
	return &Agent{opts: opts}
}

// SetHostData stores arbitrary process-wide state retrievable from any op.
func (a *Agent) SetHostData(v any) { a.hostData = v }

// HostData returns the value stored by SetHostData.
func (a *Agent) HostData() any { return a.hostData }

// Options returns the options the Agent was created with.
func (a *Agent) Options() Options { return a.opts }

// Realm is an ECMAScript execution context with its own global object.
// goja has no intra-runtime realm support, so each Realm owns a runtime.
type Realm struct {
	agent *Agent
	vm    *goja.Runtime
}

// NewRealm creates a realm, optionally running an initializer against the
// fresh global object before any script has executed.
func (a *Agent) NewRealm(initGlobal func(a *Agent, global *goja.Object) error) (*Realm, error) {
	r := &Realm{agent: a, vm: goja.New()}
	a.realms = append(a.realms, r)
	if initGlobal != nil {
		if err := initGlobal(a, r.vm.GlobalObject()); err != nil {
			return nil, fmt.Errorf("initializing realm global: %w", err)
		}
	}
	return r, nil
}

// Agent returns the owning agent.
func (r *Realm) Agent() *Agent { return r.agent }

// VM exposes the underlying runtime for value construction and calls.
func (r *Realm) VM() *goja.Runtime { return r.vm }

// Global returns the realm's global object.
func (r *Realm) Global() *goja.Object { return r.vm.GlobalObject() }

// RunInRealm synchronously re-enters the engine. The callback must not
// retain scoped values past its return.
func (r *Realm) RunInRealm(fn func(a *Agent, vm *goja.Runtime) error) error {
	return fn(r.agent, r.vm)
}

// Call invokes a script function value with the given this and arguments.
// A throw from script comes back as a *goja.Exception. goja drains the
// microtask queue before returning control here. An op-raised interrupt
// (exit) is unwrapped to the op's error and cleared so the realm stays
// usable for the next dispatch.
func (r *Realm) Call(fn Value, this Value, args ...Value) (Value, error) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("value is not callable")
	}
	v, err := callable(this, args...)
	if err != nil {
		var intr *goja.InterruptedError
		if errors.As(err, &intr) {
			r.vm.ClearInterrupt()
			if cause, ok := intr.Value().(error); ok {
				return nil, cause
			}
		}
	}
	return v, err
}

// Rooted is a global (rooted) handle: it keeps a script value reachable
// across engine re-entries and must be released exactly once. Releasing
// twice is a fatal bug and panics. Rooted handles are engine-thread
// confined; background tasks may carry them only as opaque tokens.
type Rooted struct {
	v        Value
	released bool
}

// Root converts a scoped value into a rooted handle.
func (r *Realm) Root(v Value) *Rooted {
	return &Rooted{v: v}
}

// Value returns the rooted value. Panics if the handle was released.
func (g *Rooted) Value() Value {
	if g.released {
		panic("engine: use of released rooted handle")
	}
	return g.v
}

// Release drops the root. Must be called exactly once.
func (g *Rooted) Release() {
	if g.released {
		panic("engine: rooted handle released twice")
	}
	g.released = true
	g.v = nil
}

// Released reports whether the handle has been released.
func (g *Rooted) Released() bool { return g.released }
