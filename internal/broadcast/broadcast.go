// Package broadcast implements the BroadcastChannel hub: named in-process
// channels where a send fans out to every other subscriber of the name.
// Delivery to a waiting receiver goes through the macrotask bus so the
// promise resolves on the engine thread.
package broadcast

import (
	"context"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// Subscriber is one subscription to a named channel. At most one recv can
// be outstanding; further messages queue in order.
type Subscriber struct {
	Name   string
	queue  []string
	waiter *engine.PromiseCapability
	task   core.TaskID
}

// State is the hub, stored in ops storage and engine-thread confined.
type State struct {
	Subs *core.ResourceTable[*Subscriber]
}

// NewState creates an empty hub.
func NewState() *State {
	return &State{Subs: core.NewResourceTable[*Subscriber]()}
}

// Subscribe registers a subscriber for name and returns its RID.
func (s *State) Subscribe(name string) core.RID {
	return s.Subs.Push(&Subscriber{Name: name})
}

// Unsubscribe removes the subscription. A parked recv is retired; its
// promise stays forever pending, matching a closed channel.
func (s *State) Unsubscribe(hd *core.HostData, rid core.RID) error {
	sub, ok := s.Subs.Remove(rid)
	if !ok {
		return core.ResourceNotFound(rid, "op_broadcast_unsubscribe")
	}
	if sub.waiter != nil {
		sub.waiter.Release()
		sub.waiter = nil
		hd.AbortMacroTask(sub.task)
		hd.RetireTask(sub.task)
	}
	return nil
}

// Send delivers data to every other subscriber of the sender's name.
// Subscribers with a parked recv get a ResolveWithString posted; the rest
// queue the message.
func (s *State) Send(hd *core.HostData, from core.RID, data string) error {
	sender, err := s.Subs.Get(from, "op_broadcast_send")
	if err != nil {
		return err
	}
	s.Subs.Range(func(rid core.RID, sub *Subscriber) bool {
		if rid == from || sub.Name != sender.Name {
			return true
		}
		if sub.waiter != nil {
			pc := sub.waiter
			task := sub.task
			sub.waiter = nil
			hd.AbortMacroTask(task)
			hd.Post(core.ResolveWithString{Promise: pc, Value: data, Task: task})
			return true
		}
		sub.queue = append(sub.queue, data)
		return true
	})
	return nil
}

// Recv returns a promise for the next message. A queued message resolves
// immediately; otherwise the promise parks with a background task that
// keeps the event loop alive until a send or unsubscribe.
func (s *State) Recv(hd *core.HostData, r *engine.Realm, rid core.RID) (engine.Value, error) {
	sub, err := s.Subs.Get(rid, "op_broadcast_recv")
	if err != nil {
		return nil, err
	}
	pc := r.NewPromise()
	if len(sub.queue) > 0 {
		msg := sub.queue[0]
		sub.queue = sub.queue[1:]
		pc.Resolve(r.String(msg))
		return pc.Value(), nil
	}
	if sub.waiter != nil {
		return nil, core.OpError(core.KindTask, "op_broadcast_recv", "receive already pending on channel %q", sub.Name)
	}
	sub.waiter = pc
	sub.task = hd.SpawnMacroTask(func(ctx context.Context, _ core.TaskID) {
		<-ctx.Done()
	})
	return pc.Value(), nil
}
