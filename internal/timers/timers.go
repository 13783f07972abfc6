// Package timers implements the setTimeout/setInterval tables. Each entry
// owns one rooted callback and one background task that sleeps and posts a
// macrotask; the callback is reached only by table lookup on the engine
// thread, and the background task holds the task ID, never the callback.
package timers

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// Entry is one pending timeout or interval. cleared is flipped
// synchronously by the clear ops so that an already-posted fire is
// discarded by the lookup-miss path even when it is ahead of the clear on
// the bus.
type Entry struct {
	Period   time.Duration
	Callback *engine.Rooted
	Task     core.TaskID
	cleared  bool
}

// State is the timer subsystem's per-extension storage: two parallel
// tables, engine-thread confined.
type State struct {
	Timeouts  *core.ResourceTable[*Entry]
	Intervals *core.ResourceTable[*Entry]
	log       *zap.Logger
}

// NewState creates empty timer tables.
func NewState(log *zap.Logger) *State {
	return &State{
		Timeouts:  core.NewResourceTable[*Entry](),
		Intervals: core.NewResourceTable[*Entry](),
		log:       log,
	}
}

// ClampDelay converts a millisecond count to a duration: non-finite and
// negative clamp to 0, values above the uint32 range clamp to the max.
func ClampDelay(ms float64) time.Duration {
	if math.IsNaN(ms) || ms < 0 {
		return 0
	}
	if math.IsInf(ms, 1) || ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	return time.Duration(ms) * time.Millisecond
}

// AddTimeout roots are owned by the caller; the table takes ownership of
// cb. The background task sleeps the period and posts RunAndClearTimeout.
func (s *State) AddTimeout(hd *core.HostData, cb *engine.Rooted, ms float64) core.TimeoutID {
	d := ClampDelay(ms)
	entry := &Entry{Period: d, Callback: cb}
	id := core.TimeoutID(s.Timeouts.Push(entry))
	entry.Task = hd.SpawnMacroTask(func(ctx context.Context, _ core.TaskID) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			hd.Post(core.RunAndClearTimeout{ID: id})
		}
	})
	return id
}

// AddInterval registers a repeating timer posting RunInterval at a fixed
// period until cleared.
func (s *State) AddInterval(hd *core.HostData, cb *engine.Rooted, ms float64) core.IntervalID {
	d := ClampDelay(ms)
	if d == 0 {
		d = time.Millisecond
	}
	entry := &Entry{Period: d, Callback: cb}
	id := core.IntervalID(s.Intervals.Push(entry))
	entry.Task = hd.SpawnMacroTask(func(ctx context.Context, _ core.TaskID) {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hd.Post(core.RunInterval{ID: id})
			}
		}
	})
	return id
}

// MarkClearedTimeout flips the cleared flag synchronously on the engine
// thread and reports whether a live entry was marked. The authoritative
// teardown happens when the driver dispatches the posted ClearTimeout.
func (s *State) MarkClearedTimeout(id core.TimeoutID) bool {
	e, err := s.Timeouts.Get(core.RID(id), "clearTimeout")
	if err != nil || e.cleared {
		return false
	}
	e.cleared = true
	return true
}

// MarkClearedInterval is the interval counterpart of MarkClearedTimeout.
func (s *State) MarkClearedInterval(id core.IntervalID) bool {
	e, err := s.Intervals.Get(core.RID(id), "clearInterval")
	if err != nil || e.cleared {
		return false
	}
	e.cleared = true
	return true
}

// FireTimeout dispatches RunAndClearTimeout: invoke the rooted callback,
// then remove the entry, release the root, and retire the background
// task. A cleared or already-removed entry is a no-op.
func (s *State) FireTimeout(r *engine.Realm, hd *core.HostData, id core.TimeoutID) bool {
	e, err := s.Timeouts.Get(core.RID(id), "runTimeout")
	if err != nil || e.cleared {
		return false
	}
	s.invoke(r, e, "setTimeout")
	s.Timeouts.Remove(core.RID(id))
	e.Callback.Release()
	hd.RetireTask(e.Task)
	return true
}

// FireInterval dispatches RunInterval; the entry remains.
func (s *State) FireInterval(r *engine.Realm, id core.IntervalID) bool {
	e, err := s.Intervals.Get(core.RID(id), "runInterval")
	if err != nil || e.cleared {
		return false
	}
	s.invoke(r, e, "setInterval")
	return true
}

// ClearTimeout dispatches the posted clear: remove the entry, abort and
// retire the background task, release the callback.
func (s *State) ClearTimeout(hd *core.HostData, id core.TimeoutID) {
	e, ok := s.Timeouts.Remove(core.RID(id))
	if !ok {
		return
	}
	hd.AbortMacroTask(e.Task)
	hd.RetireTask(e.Task)
	e.Callback.Release()
}

// ClearInterval is the interval counterpart of ClearTimeout.
func (s *State) ClearInterval(hd *core.HostData, id core.IntervalID) {
	e, ok := s.Intervals.Remove(core.RID(id))
	if !ok {
		return
	}
	hd.AbortMacroTask(e.Task)
	hd.RetireTask(e.Task)
	e.Callback.Release()
}

// invoke calls the entry's callback with no arguments. A throwing timer
// callback is logged, not propagated; the loop keeps running.
func (s *State) invoke(r *engine.Realm, e *Entry, what string) {
	if _, err := r.Call(e.Callback.Value(), r.Undefined()); err != nil {
		s.log.Warn("timer callback threw", zap.String("kind", what), zap.Error(err))
	}
}
