// Package ext is the op and extension registry: it declares the native
// surface (ops and bundled builtin scripts grouped into named extensions)
// and realizes it onto a realm's global object at install time.
package ext

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// NamespaceName is the global object ops install under when they are not
// flagged global.
const NamespaceName = "__andromeda__"

// OpFn is the native op signature. Ops type-check their own arguments and
// surface failures as returned errors, which the install wrapper turns
// into engine thrown exceptions. Ops never panic on bad input.
type OpFn func(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error)

// Op describes one native function: a plain function pointer plus
// metadata. No v-tables.
type Op struct {
	Name   string
	Fn     OpFn
	Arity  int
	Global bool
}

// Script is a bundled builtin source evaluated at install time.
type Script struct {
	Name   string
	Source string
}

// Extension is a named group of ops, preloaded scripts, and an optional
// storage initializer depositing per-extension state.
type Extension struct {
	Name        string
	Ops         []Op
	Scripts     []Script
	InitStorage func(s *core.Storage)
}

// Install realizes the extension in the realm: ops onto the global
// object or the __andromeda__ namespace first, then the storage
// initializer, then the builtin scripts — the scripts call ops eagerly
// while they build their shims, so the native surface and its state
// must exist before the first script evaluates.
//
// Any failure is fatal and returned: a half-installed extension leaves
// user code without its documented surface. A panicking InitStorage
// propagates.
func Install(a *engine.Agent, r *engine.Realm, x Extension, log *zap.Logger) error {
	ns, err := namespaceObject(r)
	if err != nil {
		return core.WrapError(core.KindExtensionInit, x.Name, err)
	}

	for _, op := range x.Ops {
		target := ns
		if op.Global {
			target = r.Global()
		}
		if err := target.Set(op.Name, wrapOp(a, r, op)); err != nil {
			return core.OpError(core.KindExtensionInit, x.Name, "installing op %s: %v", op.Name, err)
		}
	}

	if x.InitStorage != nil {
		hd, ok := a.HostData().(*core.HostData)
		if !ok {
			return core.OpError(core.KindExtensionInit, x.Name, "agent has no host data")
		}
		x.InitStorage(hd.Storage())
	}

	for _, s := range x.Scripts {
		script, diags, err := r.ParseScript(s.Name, s.Source, false)
		if err != nil {
			for _, d := range diags {
				log.Error("builtin parse error", zap.String("extension", x.Name), zap.String("diag", d.String()))
			}
			return core.WrapError(core.KindExtensionInit, x.Name+"/"+s.Name, err)
		}
		if _, err := r.Evaluate(script); err != nil {
			log.Error("builtin script failed at runtime",
				zap.String("extension", x.Name),
				zap.String("script", s.Name),
				zap.Error(err))
			return core.WrapError(core.KindExtensionInit, x.Name+"/"+s.Name, err)
		}
	}
	return nil
}

// wrapOp adapts an OpFn to a goja native function. A returned error is
// thrown into script as an engine exception; type-mismatch errors throw
// a proper TypeError. An error carrying an exit code bypasses the
// catchable exception path entirely: the vm is interrupted so script
// try/catch cannot swallow an exit.
func wrapOp(a *engine.Agent, r *engine.Realm, op Op) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		res, err := op.Fn(a, r, call.This, call.Arguments)
		if err != nil {
			var exit interface{ ExitCode() int }
			if errors.As(err, &exit) {
				r.VM().Interrupt(err)
				return goja.Undefined()
			}
			if core.KindOf(err) == core.KindTypeMismatch {
				panic(r.ThrowTypeError("%s", err.Error()))
			}
			panic(r.Throw(err))
		}
		if res == nil {
			return goja.Undefined()
		}
		return res
	}
}

func namespaceObject(r *Realm) (*goja.Object, error) {
	global := r.Global()
	if v := global.Get(NamespaceName); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		return v.ToObject(r.VM()), nil
	}
	ns := r.VM().NewObject()
	if err := global.Set(NamespaceName, ns); err != nil {
		return nil, fmt.Errorf("creating %s namespace: %w", NamespaceName, err)
	}
	return ns, nil
}

// Realm aliases keep the signatures here readable.
type Realm = engine.Realm
