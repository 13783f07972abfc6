package andromeda

import (
	"github.com/dop251/goja"

	"github.com/andromeda-rt/andromeda/internal/core"
)

// Run drives the event loop: receive one macrotask from the bus,
// dispatch it on the engine thread, repeat. The engine drains its own
// microtask queue inside every dispatch that settles a promise or calls
// into script. Run returns when no background task is in flight and no
// macrotask is queued. Overflow posts are flushed onto the bus at the
// top of each iteration; after a flush a non-empty overflow implies a
// full bus, so the receive below cannot block while work is queued.
func (rt *Runtime) Run() error {
	m := rt.cfg.Metrics
	for {
		rt.hd.Flush()
		if rt.hd.InFlight() == 0 && rt.hd.Pending() == 0 {
			return nil
		}
		t := <-rt.bus
		rt.dispatch(t)
		m.MacrotasksDispatched.Inc()
		m.MacrotasksInFlight.Set(float64(rt.hd.InFlight()))
		if rt.cfg.EventLoopHandler != nil {
			rt.cfg.EventLoopHandler(t)
		}
	}
}

// Tick dispatches at most one pending macrotask without blocking and
// reports whether one was handled.
func (rt *Runtime) Tick() bool {
	rt.hd.Flush()
	select {
	case t := <-rt.bus:
		rt.dispatch(t)
		rt.cfg.Metrics.MacrotasksDispatched.Inc()
		if rt.cfg.EventLoopHandler != nil {
			rt.cfg.EventLoopHandler(t)
		}
		return true
	default:
		return false
	}
}

func (rt *Runtime) dispatch(t core.MacroTask) {
	m := rt.cfg.Metrics
	switch t := t.(type) {
	case core.ResolvePromise:
		t.Promise.Resolve(goja.Undefined())
		rt.hd.RetireTask(t.Task)

	case core.ResolveWithString:
		t.Promise.Resolve(t.Value)
		rt.hd.RetireTask(t.Task)

	case core.ResolveWithBytes:
		t.Promise.Resolve(rt.realm.ArrayBuffer(t.Value))
		rt.hd.RetireTask(t.Task)

	case core.ResolveWithNull:
		t.Promise.Resolve(goja.Null())
		rt.hd.RetireTask(t.Task)

	case core.ResolveWithStrings:
		t.Promise.Resolve(t.Values)
		rt.hd.RetireTask(t.Task)

	case core.RejectPromise:
		t.Promise.Reject(rt.realm.ErrorValue(t.Message))
		rt.hd.RetireTask(t.Task)

	case core.RegisterResource:
		rid := t.Insert()
		t.Promise.Resolve(uint32(rid))
		rt.hd.RetireTask(t.Task)

	case core.RunAndClearTimeout:
		if rt.timers.FireTimeout(rt.realm, rt.hd, t.ID) {
			m.TimersFired.Inc()
		}

	case core.RunInterval:
		if rt.timers.FireInterval(rt.realm, t.ID) {
			m.TimersFired.Inc()
		}

	case core.ClearTimeout:
		rt.timers.ClearTimeout(rt.hd, t.ID)
		m.TimersCleared.Inc()

	case core.ClearInterval:
		rt.timers.ClearInterval(rt.hd, t.ID)
		m.TimersCleared.Inc()

	case core.RunCron:
		if rt.cron.Fire(rt.realm, t.ID) {
			m.CronsFired.Inc()
		}

	case core.AcquireLock:
		handle := rt.realm.VM().NewObject()
		handle.Set("name", t.Name)
		handle.Set("mode", string(t.Mode))
		handle.Set("id", t.ID)
		t.Promise.Resolve(handle)
		rt.hd.RetireTask(t.Task)
		m.LocksGranted.Inc()

	case core.ReleaseLock:
		if err := rt.Locks().Release(rt.hd, t.Name, t.ID); err != nil {
			rt.log.Warn("releasing lock: " + err.Error())
		}

	case core.AbortLockRequest:
		t.Promise.Reject(rt.realm.ErrorValue("lock request for '" + t.Name + "' was aborted"))
		rt.hd.RetireTask(t.Task)
		m.LocksAborted.Inc()

	case core.UserTask:
		// Only observable through the EventLoopHandler.
	}
}
