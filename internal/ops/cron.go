package ops

import (
	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/cronsched"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/metrics"
)

// Cron exposes the cron(name, expr, callback) op under the Andromeda
// namespace. Invalid names or expressions log a warning and register
// nothing rather than throwing.
func Cron(sched *cronsched.State, log *zap.Logger) ext.Extension {
	return ext.Extension{
		Name: "cron",
		Ops: []ext.Op{
			{Name: "cron", Fn: makeCronOp(log), Arity: 3},
		},
		Scripts: []ext.Script{{Name: "ext:cron/cron.js", Source: cronJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, sched)
		},
	}
}

func cronState(a *engine.Agent) *cronsched.State {
	return core.State[*cronsched.State](hostData(a).Storage())
}

func makeCronOp(log *zap.Logger) ext.OpFn {
	return func(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
		if len(args) < 3 {
			log.Warn("cron: expected (name, schedule, callback)")
			return r.Undefined(), nil
		}
		if !isString(args[0]) || !isString(args[1]) || !engine.IsCallable(args[2]) {
			log.Warn("cron: bad argument types")
			return r.Undefined(), nil
		}
		name, expr := args[0].String(), args[1].String()
		if err := cronsched.ValidateName(name); err != nil {
			log.Warn("cron: rejected job name", zap.String("name", name), zap.Error(err))
			return r.Undefined(), nil
		}
		sched, err := cronsched.Parse(expr)
		if err != nil {
			log.Warn("cron: rejected schedule", zap.String("name", name), zap.Error(err))
			return r.Undefined(), nil
		}
		cronState(a).Register(hostData(a), cronsched.Spec{Name: name, Schedule: sched}, r.Root(args[2]))
		if m, ok := core.StateOK[*metrics.Metrics](hostData(a).Storage()); ok {
			m.CronsRegistered.Inc()
		}
		return r.Undefined(), nil
	}
}

const cronJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  const Andromeda = globalThis.Andromeda || (globalThis.Andromeda = {});
  Andromeda.cron = (name, schedule, callback) => ns.cron(name, schedule, callback);
})(globalThis);
`
