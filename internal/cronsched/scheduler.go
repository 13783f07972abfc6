package cronsched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// Spec is the registration record for one job.
type Spec struct {
	Name     string
	Schedule *Schedule
	// Backoff, when non-empty, is the retry sleep sequence used after a
	// throwing callback (indexed by retry count, last entry repeating).
	Backoff []time.Duration
}

// Entry is one registered cron job. Retries and Success are mutated on the
// engine thread only; retryDelay is the cross-thread handoff to the
// scheduler goroutine.
type Entry struct {
	ID       core.CronID
	Spec     Spec
	Callback *engine.Rooted
	Task     core.TaskID
	Success  int
	Retries  int

	retryDelay atomic.Int64 // nanoseconds; 0 means follow the schedule
	expo       *backoff.ExponentialBackOff
}

// State holds the cron table and the retry policy flag. The retry-on-throw
// behavior is reserved and ships disabled by default.
type State struct {
	Jobs         *core.ResourceTable[*Entry]
	RetryOnThrow bool
	MaxRetries   int
	log          *zap.Logger
}

// NewState creates an empty cron table.
func NewState(log *zap.Logger, retryOnThrow bool) *State {
	return &State{
		Jobs:         core.NewResourceTable[*Entry](),
		RetryOnThrow: retryOnThrow,
		MaxRetries:   5,
		log:          log,
	}
}

// Register inserts the job and starts its scheduler task. The task
// computes the next fire from wall-clock UTC, sleeps the delta, posts
// RunCron, and loops; it exits when the expression can never fire again
// or the task is aborted.
func (s *State) Register(hd *core.HostData, spec Spec, cb *engine.Rooted) core.CronID {
	entry := &Entry{Spec: spec, Callback: cb}
	entry.expo = backoff.NewExponentialBackOff()
	entry.expo.MaxElapsedTime = 0
	entry.ID = core.CronID(s.Jobs.Push(entry))
	id := entry.ID

	entry.Task = hd.SpawnMacroTask(func(ctx context.Context, _ core.TaskID) {
		for {
			var wait time.Duration
			if d := entry.takeRetryDelay(); d > 0 {
				wait = d
			} else {
				next, ok := spec.Schedule.Next(time.Now().UTC())
				if !ok {
					return
				}
				wait = time.Until(next)
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				hd.Post(core.RunCron{ID: id})
			}
		}
	})
	return id
}

// Remove tears a job down: abort and retire its scheduler task, release
// the rooted callback.
func (s *State) Remove(hd *core.HostData, id core.CronID) {
	e, ok := s.Jobs.Remove(core.RID(id))
	if !ok {
		return
	}
	hd.AbortMacroTask(e.Task)
	hd.RetireTask(e.Task)
	e.Callback.Release()
}

// Fire dispatches RunCron: invoke the rooted callback under the realm. A
// throwing callback increments Retries; with RetryOnThrow set the next
// sleep comes from the backoff sequence instead of the schedule.
func (s *State) Fire(r *engine.Realm, id core.CronID) bool {
	e, err := s.Jobs.Get(core.RID(id), "runCron")
	if err != nil {
		return false
	}
	if _, callErr := r.Call(e.Callback.Value(), r.Undefined()); callErr != nil {
		e.Retries++
		s.log.Warn("cron callback threw",
			zap.String("name", e.Spec.Name),
			zap.Int("retries", e.Retries),
			zap.Error(callErr))
		if s.RetryOnThrow && e.Retries <= s.MaxRetries {
			e.retryDelay.Store(int64(e.nextRetryDelay()))
		}
		return true
	}
	e.Success++
	e.Retries = 0
	e.expo.Reset()
	return true
}

// nextRetryDelay picks from the explicit backoff schedule when present,
// otherwise from the exponential policy.
func (e *Entry) nextRetryDelay() time.Duration {
	if n := len(e.Spec.Backoff); n > 0 {
		i := e.Retries - 1
		if i >= n {
			i = n - 1
		}
		return e.Spec.Backoff[i]
	}
	d := e.expo.NextBackOff()
	if d == backoff.Stop {
		return 0
	}
	return d
}

func (e *Entry) takeRetryDelay() time.Duration {
	return time.Duration(e.retryDelay.Swap(0))
}
