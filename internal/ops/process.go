package ops

import (
	"os"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// ProcessState pins the CLI argument slice seen by scripts. The embedder
// sets it from its own parsed command line.
type ProcessState struct {
	Args []string
}

// Process exposes CLI arguments and environment ops.
func Process(args []string) ext.Extension {
	return ext.Extension{
		Name: "process",
		Ops: []ext.Op{
			{Name: "internal_get_cli_args", Fn: opGetCliArgs, Arity: 0},
			{Name: "internal_get_env", Fn: opGetEnv, Arity: 1},
			{Name: "internal_set_env", Fn: opSetEnv, Arity: 2},
			{Name: "internal_delete_env", Fn: opDeleteEnv, Arity: 1},
			{Name: "internal_get_env_keys", Fn: opGetEnvKeys, Arity: 0},
		},
		Scripts: []ext.Script{{Name: "ext:process/process.js", Source: processJS}},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, &ProcessState{Args: args})
		},
	}
}

func opGetCliArgs(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	hd := hostData(a)
	st := core.State[*ProcessState](hd.Storage())
	return r.VM().ToValue(st.Args), nil
}

func opGetEnv(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := stringArg(args, 0, "internal_get_env", "key")
	if err != nil {
		return nil, err
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		return r.Undefined(), nil
	}
	return r.String(val), nil
}

func opSetEnv(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := stringArg(args, 0, "internal_set_env", "key")
	if err != nil {
		return nil, err
	}
	val, err := stringArg(args, 1, "internal_set_env", "value")
	if err != nil {
		return nil, err
	}
	if err := os.Setenv(key, val); err != nil {
		return nil, core.WrapError(core.KindConfig, "internal_set_env", err)
	}
	return r.Undefined(), nil
}

func opDeleteEnv(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	key, err := stringArg(args, 0, "internal_delete_env", "key")
	if err != nil {
		return nil, err
	}
	if err := os.Unsetenv(key); err != nil {
		return nil, core.WrapError(core.KindConfig, "internal_delete_env", err)
	}
	return r.Undefined(), nil
}

func opGetEnvKeys(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	env := os.Environ()
	keys := make([]string, 0, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				keys = append(keys, kv[:i])
				break
			}
		}
	}
	return r.VM().ToValue(keys), nil
}

const processJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  const Andromeda = globalThis.Andromeda || (globalThis.Andromeda = {});
  Andromeda.args = ns.internal_get_cli_args();
  Andromeda.env = {
    get: (key) => ns.internal_get_env(key),
    set: (key, value) => ns.internal_set_env(key, value),
    remove: (key) => ns.internal_delete_env(key),
    keys: () => ns.internal_get_env_keys(),
  };
})(globalThis);
`
