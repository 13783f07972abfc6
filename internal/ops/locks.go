package ops

import (
	"github.com/dop251/goja"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/locks"
	"github.com/andromeda-rt/andromeda/internal/metrics"
)

// Locks exposes the Web Locks ops plus the navigator.locks shim.
func Locks() ext.Extension {
	return ext.Extension{
		Name: "locks",
		Ops: []ext.Op{
			{Name: "internal_locks_request", Fn: opLocksRequest, Arity: 4},
			{Name: "internal_locks_release", Fn: opLocksRelease, Arity: 2},
			{Name: "internal_locks_query", Fn: opLocksQuery, Arity: 0},
			{Name: "internal_locks_abort", Fn: opLocksAbort, Arity: 2},
		},
		Scripts: []ext.Script{{Name: "ext:locks/navigator_locks.js", Source: locksJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, locks.NewManager())
		},
	}
}

func lockManager(a *engine.Agent) *locks.Manager {
	return core.State[*locks.Manager](hostData(a).Storage())
}

func lockHandle(r *engine.Realm, name string, mode core.LockMode, id uint64) *goja.Object {
	obj := r.VM().NewObject()
	obj.Set("name", name)
	obj.Set("mode", string(mode))
	obj.Set("id", id)
	return obj
}

// opLocksRequest takes (name, mode, ifAvailable, steal) and returns a
// promise. Grants resolve with a handle object; an ifAvailable miss
// resolves with the string "not_available".
func opLocksRequest(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	name, err := stringArg(args, 0, "locks.request", "name")
	if err != nil {
		return nil, err
	}
	mode := core.LockExclusive
	if len(args) > 1 && isString(args[1]) && args[1].String() == string(core.LockShared) {
		mode = core.LockShared
	}
	ifAvailable := len(args) > 2 && args[2].ToBoolean()
	steal := len(args) > 3 && args[3].ToBoolean()

	if err := locks.ValidateName(name); err != nil {
		return nil, core.WrapError(core.KindTypeMismatch, "locks.request", err)
	}
	if steal && mode != core.LockExclusive {
		return nil, core.OpError(core.KindTypeMismatch, "locks.request", "steal requires exclusive mode")
	}

	hd := hostData(a)
	res, err := lockManager(a).Request(hd, r, name, mode, ifAvailable, steal)
	if err != nil {
		return nil, err
	}
	for _, abort := range res.Aborted {
		hd.Post(abort)
	}
	m, hasMetrics := core.StateOK[*metrics.Metrics](hd.Storage())
	if hasMetrics && steal && res.Granted {
		m.LocksStolen.Inc()
	}
	pc := r.NewPromise()
	switch {
	case res.Granted:
		if hasMetrics {
			m.LocksGranted.Inc()
		}
		pc.Resolve(lockHandle(r, name, mode, res.ID))
	case res.NotAvailable:
		pc.Resolve("not_available")
	default:
		// Pending: the manager holds its own capability and resolves it
		// through the bus when the lock is granted or aborted.
		return res.Pending.Value(), nil
	}
	return pc.Value(), nil
}

func opLocksRelease(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	name, err := stringArg(args, 0, "locks.release", "name")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "locks.release", "missing lock id")
	}
	id := uint64(args[1].ToInteger())
	if err := lockManager(a).Release(hostData(a), name, id); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opLocksQuery(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	snap := lockManager(a).Query()
	return r.VM().ToValue(map[string]any{
		"held":    lockInfos(r, snap.Held),
		"pending": lockInfos(r, snap.Pending),
	}), nil
}

func lockInfos(r *engine.Realm, infos []locks.LockInfo) []any {
	out := make([]any, len(infos))
	for i, in := range infos {
		out[i] = map[string]any{"name": in.Name, "mode": in.Mode, "clientId": in.ID}
	}
	return out
}

func opLocksAbort(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	name, err := stringArg(args, 0, "locks.abort", "name")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "locks.abort", "missing lock id")
	}
	id := uint64(args[1].ToInteger())
	if err := lockManager(a).Abort(hostData(a), name, id); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

const locksJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;

  async function request(name, optionsOrCallback, maybeCallback) {
    let options = {};
    let callback = optionsOrCallback;
    if (typeof optionsOrCallback !== "function") {
      options = optionsOrCallback || {};
      callback = maybeCallback;
    }
    if (typeof callback !== "function") {
      throw new TypeError("locks.request requires a callback");
    }
    const mode = options.mode || "exclusive";
    const grant = await ns.internal_locks_request(
      String(name), mode, !!options.ifAvailable, !!options.steal);
    if (grant === "not_available") {
      return await callback(null);
    }
    try {
      return await callback({ name: grant.name, mode: grant.mode });
    } finally {
      ns.internal_locks_release(grant.name, grant.id);
    }
  }

  function query() {
    return Promise.resolve(ns.internal_locks_query());
  }

  const navigator = globalThis.navigator || (globalThis.navigator = {});
  Object.defineProperty(navigator, "locks", {
    value: { request, query },
    writable: true, configurable: true,
  });
})(globalThis);
`
