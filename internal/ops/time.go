package ops

import (
	"context"
	"time"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/timers"
)

// Time installs the timer globals and the sleep op. setTimeout and
// friends live on the global object; internal_sleep stays namespaced.
func Time(ts *timers.State) ext.Extension {
	return ext.Extension{
		Name: "time",
		Ops: []ext.Op{
			{Name: "internal_sleep", Fn: opSleep, Arity: 1},
			{Name: "setTimeout", Fn: opSetTimeout, Arity: 2, Global: true},
			{Name: "clearTimeout", Fn: opClearTimeout, Arity: 1, Global: true},
			{Name: "setInterval", Fn: opSetInterval, Arity: 2, Global: true},
			{Name: "clearInterval", Fn: opClearInterval, Arity: 1, Global: true},
		},
		Scripts: []ext.Script{{Name: "ext:time/time.js", Source: timeJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, ts)
		},
	}
}

const timeJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  const Andromeda = globalThis.Andromeda || (globalThis.Andromeda = {});
  Andromeda.sleep = (ms) => ns.internal_sleep(ms);
})(globalThis);
`

func timerState(a *engine.Agent) *timers.State {
	return core.State[*timers.State](hostData(a).Storage())
}

// opSleep resolves its promise after ms milliseconds.
func opSleep(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	var ms float64
	if len(args) > 0 {
		ms = args[0].ToFloat()
	}
	d := timers.ClampDelay(ms)
	hd := hostData(a)
	pc := r.NewPromise()
	hd.SpawnMacroTask(func(ctx context.Context, task core.TaskID) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		hd.Post(core.ResolvePromise{Promise: pc, Task: task})
	})
	return pc.Value(), nil
}

func opSetTimeout(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	cb, err := callableArg(args, 0, "setTimeout")
	if err != nil {
		return nil, err
	}
	var ms float64
	if len(args) > 1 {
		ms = args[1].ToFloat()
	}
	id := timerState(a).AddTimeout(hostData(a), r.Root(cb), ms)
	return r.Float64(float64(id)), nil
}

func opClearTimeout(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 || isUndefinedOrNull(args[0]) {
		return r.Undefined(), nil
	}
	id := core.TimeoutID(engine.ToUint32Clamped(args[0]))
	st := timerState(a)
	// Mark synchronously so an already-posted fire sees the clear first.
	if st.MarkClearedTimeout(id) {
		hostData(a).Post(core.ClearTimeout{ID: id})
	}
	return r.Undefined(), nil
}

func opSetInterval(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	cb, err := callableArg(args, 0, "setInterval")
	if err != nil {
		return nil, err
	}
	var ms float64
	if len(args) > 1 {
		ms = args[1].ToFloat()
	}
	id := timerState(a).AddInterval(hostData(a), r.Root(cb), ms)
	return r.Float64(float64(id)), nil
}

func opClearInterval(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 || isUndefinedOrNull(args[0]) {
		return r.Undefined(), nil
	}
	id := core.IntervalID(engine.ToUint32Clamped(args[0]))
	st := timerState(a)
	if st.MarkClearedInterval(id) {
		hostData(a).Post(core.ClearInterval{ID: id})
	}
	return r.Undefined(), nil
}
