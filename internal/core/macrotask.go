package core

import "github.com/andromeda-rt/andromeda/internal/engine"

// LockMode is the Web Locks mode.
type LockMode string

const (
	LockExclusive LockMode = "exclusive"
	LockShared    LockMode = "shared"
)

// MacroTask is a scheduled event that re-enters the engine from the
// driver's event loop. Rooted promise capabilities ride the variants as
// opaque tokens; only the dispatcher, on the engine thread, touches them.
type MacroTask interface{ macroTask() }

// ResolvePromise resolves the carried promise with undefined.
type ResolvePromise struct {
	Promise *engine.PromiseCapability
	Task    TaskID // spawning task, retired on dispatch
}

// ResolveWithString resolves the promise with an engine string.
type ResolveWithString struct {
	Promise *engine.PromiseCapability
	Value   string
	Task    TaskID
}

// ResolveWithBytes resolves the promise with a fresh ArrayBuffer.
type ResolveWithBytes struct {
	Promise *engine.PromiseCapability
	Value   []byte
	Task    TaskID
}

// ResolveWithNull resolves the promise with null. Read ops use it to
// signal end of stream.
type ResolveWithNull struct {
	Promise *engine.PromiseCapability
	Task    TaskID
}

// ResolveWithStrings resolves the promise with an array of strings.
type ResolveWithStrings struct {
	Promise *engine.PromiseCapability
	Values  []string
	Task    TaskID
}

// RejectPromise rejects the promise with an error built from Message.
type RejectPromise struct {
	Promise *engine.PromiseCapability
	Message string
	Task    TaskID
}

// RegisterResource inserts a freshly created native resource into its
// table and resolves the promise with the new RID. Insert runs on the
// engine thread, keeping all table mutation there.
type RegisterResource struct {
	Promise *engine.PromiseCapability
	Insert  func() RID
	Task    TaskID
}

// RunInterval fires an interval callback; the entry remains.
type RunInterval struct{ ID IntervalID }

// RunAndClearTimeout fires a timeout callback, then removes the entry and
// releases its rooted callback.
type RunAndClearTimeout struct{ ID TimeoutID }

// ClearInterval removes an interval entry and aborts its background task.
type ClearInterval struct{ ID IntervalID }

// ClearTimeout removes a timeout entry and aborts its background task.
type ClearTimeout struct{ ID TimeoutID }

// RunCron fires a cron callback.
type RunCron struct{ ID CronID }

// AcquireLock resolves a waiting lock request's promise with a handle
// object exposing the grant.
type AcquireLock struct {
	Promise *engine.PromiseCapability
	ID      uint64
	Name    string
	Mode    LockMode
	Task    TaskID
}

// ReleaseLock releases a held lock by name and grant id.
type ReleaseLock struct {
	Name string
	ID   uint64
}

// AbortLockRequest rejects a dropped pending lock request with an abort
// error.
type AbortLockRequest struct {
	Promise *engine.PromiseCapability
	Name    string
	ID      uint64
	Task    TaskID
}

// UserTask is the extensibility escape: the driver hands the payload to
// the configured event-loop handler.
type UserTask struct{ Payload any }

func (ResolvePromise) macroTask()     {}
func (ResolveWithString) macroTask()  {}
func (ResolveWithBytes) macroTask()   {}
func (ResolveWithNull) macroTask()    {}
func (ResolveWithStrings) macroTask() {}
func (RejectPromise) macroTask()      {}
func (RegisterResource) macroTask()   {}
func (RunInterval) macroTask()        {}
func (RunAndClearTimeout) macroTask() {}
func (ClearInterval) macroTask()      {}
func (ClearTimeout) macroTask()       {}
func (RunCron) macroTask()            {}
func (AcquireLock) macroTask()        {}
func (ReleaseLock) macroTask()        {}
func (AbortLockRequest) macroTask()   {}
func (UserTask) macroTask()           {}
