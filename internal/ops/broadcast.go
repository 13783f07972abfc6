package ops

import (
	"github.com/andromeda-rt/andromeda/internal/broadcast"
	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// Broadcast exposes the channel fan-out ops and the BroadcastChannel shim.
func Broadcast() ext.Extension {
	return ext.Extension{
		Name: "broadcast",
		Ops: []ext.Op{
			{Name: "op_broadcast_subscribe", Fn: opBroadcastSubscribe, Arity: 1},
			{Name: "op_broadcast_unsubscribe", Fn: opBroadcastUnsubscribe, Arity: 1},
			{Name: "op_broadcast_send", Fn: opBroadcastSend, Arity: 2},
			{Name: "op_broadcast_recv", Fn: opBroadcastRecv, Arity: 1},
		},
		Scripts: []ext.Script{{Name: "ext:broadcast/channel.js", Source: broadcastJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, broadcast.NewState())
		},
	}
}

func broadcastState(a *engine.Agent) *broadcast.State {
	return core.State[*broadcast.State](hostData(a).Storage())
}

func opBroadcastSubscribe(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	name, err := stringArg(args, 0, "op_broadcast_subscribe", "channel name")
	if err != nil {
		return nil, err
	}
	rid := broadcastState(a).Subscribe(name)
	return r.Int32(int32(rid)), nil
}

func opBroadcastUnsubscribe(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "op_broadcast_unsubscribe", "missing subscription rid")
	}
	rid := core.RID(engine.ToUint32Clamped(args[0]))
	if err := broadcastState(a).Unsubscribe(hostData(a), rid); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opBroadcastSend(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) < 2 {
		return nil, core.OpError(core.KindTypeMismatch, "op_broadcast_send", "rid and message are required")
	}
	rid := core.RID(engine.ToUint32Clamped(args[0]))
	if err := broadcastState(a).Send(hostData(a), rid, args[1].String()); err != nil {
		return nil, err
	}
	return r.Undefined(), nil
}

func opBroadcastRecv(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	if len(args) == 0 {
		return nil, core.OpError(core.KindTypeMismatch, "op_broadcast_recv", "missing subscription rid")
	}
	rid := core.RID(engine.ToUint32Clamped(args[0]))
	return broadcastState(a).Recv(hostData(a), r, rid)
}

const broadcastJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;

  class BroadcastChannel {
    constructor(name) {
      this.name = String(name);
      this.onmessage = null;
      this._rid = ns.op_broadcast_subscribe(this.name);
      this._closed = false;
      this._pump();
    }

    async _pump() {
      while (!this._closed) {
        let data;
        try {
          data = await ns.op_broadcast_recv(this._rid);
        } catch (_) {
          return;
        }
        if (this._closed) return;
        if (typeof this.onmessage === "function") {
          this.onmessage({ data: JSON.parse(data) });
        }
      }
    }

    postMessage(message) {
      if (this._closed) throw new Error("BroadcastChannel is closed");
      ns.op_broadcast_send(this._rid, JSON.stringify(message));
    }

    close() {
      if (this._closed) return;
      this._closed = true;
      ns.op_broadcast_unsubscribe(this._rid);
    }
  }

  Object.defineProperty(globalThis, "BroadcastChannel", {
    value: BroadcastChannel, writable: true, configurable: true,
  });
})(globalThis);
`
