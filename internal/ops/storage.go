package ops

import (
	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/webstore"
)

// Storage exposes the Web Storage area ops plus the localStorage and
// sessionStorage shims. dir is the on-disk root for persistent areas.
func Storage(dir string) ext.Extension {
	return ext.Extension{
		Name: "storage",
		Ops: []ext.Op{
			{Name: "storage_new", Fn: opStorageNew, Arity: 2},
			{Name: "storage_length", Fn: opStorageLength, Arity: 1},
			{Name: "storage_key", Fn: opStorageKey, Arity: 2},
			{Name: "storage_getItem", Fn: opStorageGetItem, Arity: 2},
			{Name: "storage_setItem", Fn: opStorageSetItem, Arity: 3},
			{Name: "storage_removeItem", Fn: opStorageRemoveItem, Arity: 2},
			{Name: "storage_clear", Fn: opStorageClear, Arity: 1},
			{Name: "storage_iterate_keys", Fn: opStorageIterateKeys, Arity: 1},
		},
		Scripts: []ext.Script{{Name: "ext:storage/webstorage.js", Source: storageJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, webstore.NewState(dir))
		},
	}
}

func storeState(a *engine.Agent) *webstore.State {
	return core.State[*webstore.State](hostData(a).Storage())
}

func areaArg(a *engine.Agent, args []engine.Value, op string) (*webstore.Area, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, op, "missing storage rid")
	}
	rid := core.RID(engine.ToUint32Clamped(args[0]))
	return storeState(a).Areas.Get(rid, op)
}

// opStorageNew takes (areaID, persistent) and returns a storage RID.
func opStorageNew(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	id, err := stringArg(args, 0, "storage_new", "area id")
	if err != nil {
		return nil, err
	}
	persistent := len(args) > 1 && args[1].ToBoolean()
	area, err := storeState(a).Open(id, persistent)
	if err != nil {
		return nil, err
	}
	rid := storeState(a).Areas.Push(area)
	return r.Int32(int32(rid)), nil
}

func opStorageLength(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_length")
	if err != nil {
		return nil, err
	}
	n, err := area.Length()
	if err != nil {
		return nil, err
	}
	return r.Int32(int32(n)), nil
}

func opStorageKey(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_key")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "storage_key", "missing index")
	}
	key, ok, err := area.Key(int(args[1].ToInteger()))
	if err != nil {
		return nil, err
	}
	if !ok {
		return r.Null(), nil
	}
	return r.String(key), nil
}

func opStorageGetItem(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_getItem")
	if err != nil {
		return nil, err
	}
	key, err := stringArg(args, 1, "storage_getItem", "key")
	if err != nil {
		return nil, err
	}
	val, ok, err := area.GetItem(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return r.Null(), nil
	}
	return r.String(val), nil
}

func opStorageSetItem(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_setItem")
	if err != nil {
		return nil, err
	}
	key, err := stringArg(args, 1, "storage_setItem", "key")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, core.OpError(core.KindTypeMismatch, "storage_setItem", "missing value")
	}
	if err := area.SetItem(key, args[2].String()); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opStorageRemoveItem(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_removeItem")
	if err != nil {
		return nil, err
	}
	key, err := stringArg(args, 1, "storage_removeItem", "key")
	if err != nil {
		return nil, err
	}
	if err := area.RemoveItem(key); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opStorageClear(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_clear")
	if err != nil {
		return nil, err
	}
	if err := area.Clear(); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opStorageIterateKeys(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	area, err := areaArg(a, args, "storage_iterate_keys")
	if err != nil {
		return nil, err
	}
	keys, err := area.Keys()
	if err != nil {
		return nil, err
	}
	return r.VM().ToValue(keys), nil
}

const storageJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;

  function makeStorage(areaId, persistent) {
    let rid = null;
    // The backing area opens on first use, not at startup.
    const open = () => (rid === null ? (rid = ns.storage_new(areaId, persistent)) : rid);
    const target = {
      get length() { return ns.storage_length(open()); },
      key(n) { return ns.storage_key(open(), n); },
      getItem(key) { return ns.storage_getItem(open(), String(key)); },
      setItem(key, value) { ns.storage_setItem(open(), String(key), String(value)); },
      removeItem(key) { ns.storage_removeItem(open(), String(key)); },
      clear() { ns.storage_clear(open()); },
    };
    return new Proxy(target, {
      get(t, prop) {
        if (prop in t) return t[prop];
        if (typeof prop === "string") {
          const v = t.getItem(prop);
          return v === null ? undefined : v;
        }
        return undefined;
      },
      set(t, prop, value) {
        if (typeof prop === "string") t.setItem(prop, value);
        return true;
      },
      deleteProperty(t, prop) {
        if (typeof prop === "string") t.removeItem(prop);
        return true;
      },
      ownKeys() { return ns.storage_iterate_keys(open()); },
      getOwnPropertyDescriptor(t, prop) {
        const v = t.getItem(String(prop));
        if (v === null) return undefined;
        return { value: v, writable: true, enumerable: true, configurable: true };
      },
    });
  }

  Object.defineProperty(globalThis, "localStorage", {
    value: makeStorage("default", true),
    writable: true, configurable: true,
  });
  Object.defineProperty(globalThis, "sessionStorage", {
    value: makeStorage("session", false),
    writable: true, configurable: true,
  });
})(globalThis);
`
