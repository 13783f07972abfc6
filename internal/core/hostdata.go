package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// TaskID identifies one spawned background task.
type TaskID uint64

type taskHandle struct {
	cancel  context.CancelFunc
	retired atomic.Bool
}

// HostData is the process-wide state reachable from every op through the
// engine's host-data slot: the ops storage, the macrotask bus sender, the
// in-flight counter the driver uses to detect quiescence, and the handles
// of spawned background tasks for cancellation.
type HostData struct {
	storage *Storage
	tx      chan MacroTask

	inFlight atomic.Int64
	nextTask atomic.Uint64

	mu    sync.Mutex
	tasks map[TaskID]*taskHandle

	qmu      sync.Mutex
	overflow []MacroTask
}

// NewHostData constructs host data around the given bus channel.
func NewHostData(bus chan MacroTask) *HostData {
	return &HostData{
		storage: NewStorage(),
		tx:      bus,
		tasks:   make(map[TaskID]*taskHandle),
	}
}

// Storage returns the ops storage map.
func (h *HostData) Storage() *Storage { return h.storage }

// Bus returns the macrotask sender.
func (h *HostData) Bus() chan<- MacroTask { return h.tx }

// Post enqueues a macrotask. It never blocks: when the bus is full the
// task spills into an overflow queue the driver flushes onto the bus
// before each receive. Ops may therefore post from the engine thread
// while the driver is not draining. Once the overflow is non-empty,
// later posts append behind it so FIFO order holds per producer.
func (h *HostData) Post(t MacroTask) {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	if len(h.overflow) == 0 {
		select {
		case h.tx <- t:
			return
		default:
		}
	}
	h.overflow = append(h.overflow, t)
}

// Flush moves overflow tasks onto the bus while there is space. After
// Flush, a non-empty overflow implies a full bus, so the driver's next
// receive cannot block on an empty channel.
func (h *HostData) Flush() {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	for len(h.overflow) > 0 {
		select {
		case h.tx <- h.overflow[0]:
			h.overflow = h.overflow[1:]
		default:
			return
		}
	}
}

// Pending counts macrotasks queued on the bus or in the overflow.
func (h *HostData) Pending() int {
	h.qmu.Lock()
	n := len(h.overflow)
	h.qmu.Unlock()
	return n + len(h.tx)
}

// SpawnMacroTask increments the in-flight counter, runs fn on its own
// goroutine with a cancelable context, and returns the task's ID. The
// ID is allocated and registered before the goroutine starts and handed
// to fn as a parameter, so the task can tag its terminal macrotask
// without racing the caller. The counter is decremented exactly once
// per task, by RetireTask — either from the dispatch path of the task's
// terminal macrotask or from the abort path. fn must observe ctx and
// return promptly on cancellation.
func (h *HostData) SpawnMacroTask(fn func(ctx context.Context, task TaskID)) TaskID {
	id := TaskID(h.nextTask.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	handle := &taskHandle{cancel: cancel}

	h.inFlight.Add(1)
	h.mu.Lock()
	h.tasks[id] = handle
	h.mu.Unlock()

	go func() {
		defer cancel()
		fn(ctx, id)
	}()
	return id
}

// AbortMacroTask cancels the spawned task if it is still tracked. It does
// not retire it; the caller pairs every abort with a RetireTask.
func (h *HostData) AbortMacroTask(id TaskID) {
	h.mu.Lock()
	handle, ok := h.tasks[id]
	h.mu.Unlock()
	if ok {
		handle.cancel()
	}
}

// RetireTask removes the task's handle and decrements the in-flight
// counter. Safe to call more than once per task; only the first call
// decrements.
func (h *HostData) RetireTask(id TaskID) {
	h.mu.Lock()
	handle, ok := h.tasks[id]
	if ok {
		delete(h.tasks, id)
	}
	h.mu.Unlock()
	if ok && handle.retired.CompareAndSwap(false, true) {
		h.inFlight.Add(-1)
	}
}

// InFlight returns the number of not-yet-retired background tasks. The
// driver drains the loop when this reaches zero.
func (h *HostData) InFlight() int64 { return h.inFlight.Load() }
