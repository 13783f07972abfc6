package ops

import (
	"reflect"

	"github.com/dop251/goja"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

func isString(v engine.Value) bool {
	return v != nil && v.ExportType() != nil && v.ExportType().Kind() == reflect.String
}

func stringArg(args []engine.Value, n int, op, what string) (string, error) {
	if len(args) <= n || !isString(args[n]) {
		return "", core.OpError(core.KindTypeMismatch, op, "%s must be a string", what)
	}
	return args[n].String(), nil
}

func callableArg(args []engine.Value, n int, op string) (engine.Value, error) {
	if len(args) <= n || !engine.IsCallable(args[n]) {
		return nil, core.OpError(core.KindTypeMismatch, op, "callback must be a function")
	}
	return args[n], nil
}

func hostData(a *engine.Agent) *core.HostData {
	return a.HostData().(*core.HostData)
}

func isUndefinedOrNull(v engine.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
