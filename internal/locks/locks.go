// Package locks implements the Web Locks manager: a named
// exclusive/shared lock service with FIFO queueing, stealing, ifAvailable,
// and abort semantics, shared across the process.
package locks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// ActiveLock is one granted lock.
type ActiveLock struct {
	ID       uint64
	Mode     core.LockMode
	Acquired time.Time
}

// request is a queued pending grant. The promise is carried here as an
// opaque rooted token; only macrotask dispatch settles it.
type request struct {
	id      uint64
	mode    core.LockMode
	aborted bool
	task    core.TaskID
	promise *engine.PromiseCapability
}

// lockState is the per-name record. While any active lock is exclusive,
// there is exactly one active lock; otherwise all active locks are shared.
type lockState struct {
	active  []ActiveLock
	pending []*request
}

// Manager is the process-wide lock service. The single mutex guards the
// whole map; ops acquire it on the engine thread only, and background
// tasks talk to the manager exclusively through the bus.
type Manager struct {
	mu     sync.Mutex
	names  map[string]*lockState
	nextID uint64
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]*lockState)}
}

// ValidateName rejects reserved lock names.
func ValidateName(name string) error {
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("lock name must not start with '-'")
	}
	return nil
}

// RequestResult describes the synchronous outcome of Request.
type RequestResult struct {
	// Granted is set when the lock was acquired immediately or stolen.
	Granted bool
	ID      uint64
	// NotAvailable is set for a failed ifAvailable probe.
	NotAvailable bool
	// Pending is the promise for an enqueued request.
	Pending *engine.PromiseCapability
	// Aborted carries AbortLockRequest tasks for pending requests dropped
	// by a steal; the caller posts them so their promises reject.
	Aborted []core.AbortLockRequest
}

// Request implements the request algorithm: steal, immediate grant,
// ifAvailable probe, or FIFO enqueue with a parked background task that
// keeps the event loop alive until activation.
func (m *Manager) Request(hd *core.HostData, r *engine.Realm, name string, mode core.LockMode, ifAvailable, steal bool) (RequestResult, error) {
	if err := ValidateName(name); err != nil {
		return RequestResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(name)

	if steal {
		res := RequestResult{Granted: true}
		for _, req := range st.pending {
			req.aborted = true
			hd.AbortMacroTask(req.task)
			hd.RetireTask(req.task)
			res.Aborted = append(res.Aborted, core.AbortLockRequest{
				Promise: req.promise,
				Name:    name,
				ID:      req.id,
			})
		}
		st.pending = nil
		st.active = nil
		res.ID = m.grant(st, core.LockExclusive)
		return res, nil
	}

	if st.canGrant(mode) {
		return RequestResult{Granted: true, ID: m.grant(st, mode)}, nil
	}

	if ifAvailable {
		return RequestResult{NotAvailable: true}, nil
	}

	m.nextID++
	req := &request{
		id:      m.nextID,
		mode:    mode,
		promise: r.NewPromise(),
	}
	// Parked task: holds the in-flight count up while the request waits.
	// Grant and abort paths cancel and retire it.
	req.task = hd.SpawnMacroTask(func(ctx context.Context, _ core.TaskID) {
		<-ctx.Done()
	})
	st.pending = append(st.pending, req)
	return RequestResult{Pending: req.promise}, nil
}

// Release removes the active lock by id and grants every compatible
// pending request from the head of the FIFO queue, posting an AcquireLock
// macrotask per grant.
func (m *Manager) Release(hd *core.HostData, name string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.names[name]
	if !ok {
		return fmt.Errorf("no lock named %q", name)
	}
	if !st.removeActive(id) {
		return fmt.Errorf("lock %q has no active grant %d", name, id)
	}
	m.pump(hd, name, st)
	m.gc(name, st)
	return nil
}

// Abort cancels a request by id: an active grant is released; a pending
// request is marked aborted and its promise rejected via the bus.
func (m *Manager) Abort(hd *core.HostData, name string, id uint64) error {
	m.mu.Lock()
	st, ok := m.names[name]
	if ok {
		for i, req := range st.pending {
			if req.id == id && !req.aborted {
				req.aborted = true
				st.pending = append(st.pending[:i], st.pending[i+1:]...)
				hd.AbortMacroTask(req.task)
				hd.RetireTask(req.task)
				m.gc(name, st)
				m.mu.Unlock()
				hd.Post(core.AbortLockRequest{Promise: req.promise, Name: name, ID: id})
				return nil
			}
		}
		for _, a := range st.active {
			if a.ID == id {
				m.mu.Unlock()
				return m.Release(hd, name, id)
			}
		}
	}
	m.mu.Unlock()
	return fmt.Errorf("lock %q has no request %d", name, id)
}

// LockInfo is one held or pending lock in a query snapshot.
type LockInfo struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
	ID   uint64 `json:"clientId"`
}

// Snapshot is a consistent view of the manager under its mutex.
type Snapshot struct {
	Held    []LockInfo `json:"held"`
	Pending []LockInfo `json:"pending"`
}

// Query returns a consistent snapshot of all held and pending locks.
func (m *Manager) Query() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{Held: []LockInfo{}, Pending: []LockInfo{}}
	for name, st := range m.names {
		for _, a := range st.active {
			snap.Held = append(snap.Held, LockInfo{Name: name, Mode: string(a.Mode), ID: a.ID})
		}
		for _, req := range st.pending {
			if !req.aborted {
				snap.Pending = append(snap.Pending, LockInfo{Name: name, Mode: string(req.mode), ID: req.id})
			}
		}
	}
	return snap
}

// pump grants from the head of the queue: every compatible request up to
// the first incompatible one, skipping aborted entries. Shared runs may
// grant several; an exclusive grant stops the scan.
func (m *Manager) pump(hd *core.HostData, name string, st *lockState) {
	for len(st.pending) > 0 {
		req := st.pending[0]
		if req.aborted {
			st.pending = st.pending[1:]
			continue
		}
		if !st.canGrant(req.mode) {
			return
		}
		st.pending = st.pending[1:]
		st.active = append(st.active, ActiveLock{ID: req.id, Mode: req.mode, Acquired: time.Now()})
		hd.AbortMacroTask(req.task)
		hd.Post(core.AcquireLock{
			Promise: req.promise,
			ID:      req.id,
			Name:    name,
			Mode:    req.mode,
			Task:    req.task,
		})
		if req.mode == core.LockExclusive {
			return
		}
	}
}

func (m *Manager) grant(st *lockState, mode core.LockMode) uint64 {
	m.nextID++
	st.active = append(st.active, ActiveLock{ID: m.nextID, Mode: mode, Acquired: time.Now()})
	return m.nextID
}

func (m *Manager) state(name string) *lockState {
	st, ok := m.names[name]
	if !ok {
		st = &lockState{}
		m.names[name] = st
	}
	return st
}

// gc drops an empty per-name record.
func (m *Manager) gc(name string, st *lockState) {
	if len(st.active) == 0 && len(st.pending) == 0 {
		delete(m.names, name)
	}
}

func (st *lockState) canGrant(mode core.LockMode) bool {
	if mode == core.LockExclusive {
		return len(st.active) == 0
	}
	for _, a := range st.active {
		if a.Mode == core.LockExclusive {
			return false
		}
	}
	return true
}

func (st *lockState) removeActive(id uint64) bool {
	for i, a := range st.active {
		if a.ID == id {
			st.active = append(st.active[:i], st.active[i+1:]...)
			return true
		}
	}
	return false
}
