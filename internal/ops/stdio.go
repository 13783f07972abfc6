// Package ops provides the built-in extensions: each file contributes
// one extension bundling native ops with the scripts that surface them.
package ops

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
)

// StdioState carries the process streams. Tests swap these for buffers.
type StdioState struct {
	In  *bufio.Reader
	Out io.Writer
	Err io.Writer
}

// ExitError is returned from script evaluation when the script called
// exit(). The driver unwinds to the embedder instead of killing the
// process.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("runtime exit with code %d", e.Code)
}

// ExitCode marks the error as an uncatchable exit for the op wrapper.
func (e *ExitError) ExitCode() int { return e.Code }

// Stdio exposes the raw stream ops plus the console shim.
func Stdio(in io.Reader, out, errw io.Writer) ext.Extension {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errw == nil {
		errw = os.Stderr
	}
	return ext.Extension{
		Name: "stdio",
		Ops: []ext.Op{
			{Name: "internal_read", Fn: opRead, Arity: 0},
			{Name: "internal_read_line", Fn: opReadLine, Arity: 0},
			{Name: "internal_write", Fn: opWrite, Arity: 1},
			{Name: "internal_write_line", Fn: opWriteLine, Arity: 1},
			{Name: "internal_print", Fn: opPrint, Arity: 1},
			{Name: "internal_exit", Fn: opExit, Arity: 1},
		},
		Scripts: []ext.Script{
			{Name: "ext:stdio/console.js", Source: consoleJS},
			{Name: "ext:stdio/stdio.js", Source: stdioJS},
		},
		InitStorage: func(s *core.Storage) {
			core.InitState(s, &StdioState{In: bufio.NewReader(in), Out: out, Err: errw})
		},
	}
}

func stdioState(a *engine.Agent) *StdioState {
	hd := a.HostData().(*core.HostData)
	return core.State[*StdioState](hd.Storage())
}

func opRead(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	st := stdioState(a)
	buf := make([]byte, 1)
	if _, err := io.ReadFull(st.In, buf); err != nil {
		if err == io.EOF {
			return r.Int32(-1), nil
		}
		return nil, core.WrapError(core.KindFilesystem, "internal_read", err)
	}
	return r.Int32(int32(buf[0])), nil
}

func opReadLine(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	st := stdioState(a)
	line, err := st.In.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, core.WrapError(core.KindFilesystem, "internal_read_line", err)
	}
	if line == "" && err == io.EOF {
		return r.Null(), nil
	}
	return r.String(strings.TrimRight(line, "\r\n")), nil
}

func opWrite(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	st := stdioState(a)
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteString(arg.String())
	}
	if _, err := io.WriteString(st.Out, sb.String()); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_write", err)
	}
	return r.Undefined(), nil
}

func opWriteLine(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	st := stdioState(a)
	var sb strings.Builder
	for _, arg := range args {
		sb.WriteString(arg.String())
	}
	sb.WriteByte('\n')
	if _, err := io.WriteString(st.Out, sb.String()); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_write_line", err)
	}
	return r.Undefined(), nil
}

// opPrint takes the already-formatted text and a flag selecting stderr.
func opPrint(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	st := stdioState(a)
	if len(args) == 0 {
		return r.Undefined(), nil
	}
	w := st.Out
	if len(args) > 1 && args[1].ToBoolean() {
		w = st.Err
	}
	if _, err := io.WriteString(w, args[0].String()); err != nil {
		return nil, core.WrapError(core.KindFilesystem, "internal_print", err)
	}
	return r.Undefined(), nil
}

func opExit(a *engine.Agent, r *engine.Realm, this engine.Value, args []engine.Value) (engine.Value, error) {
	code := 0
	if len(args) > 0 {
		code = int(args[0].ToInteger())
	}
	return nil, &ExitError{Code: code}
}

const stdioJS = `
(function (globalThis) {
  "use strict";
  const ns = globalThis.__andromeda__;
  const Andromeda = globalThis.Andromeda || (globalThis.Andromeda = {});
  Andromeda.read = () => ns.internal_read();
  Andromeda.readLine = () => ns.internal_read_line();
  Andromeda.write = (...args) => ns.internal_write(...args);
  Andromeda.writeLine = (...args) => ns.internal_write_line(...args);
  Andromeda.exit = (code) => ns.internal_exit(code ?? 0);
})(globalThis);
`

const consoleJS = `
(function (globalThis) {
  "use strict";
  const internal_print = globalThis.__andromeda__.internal_print;

  function inspect(value, seen) {
    if (value === null) return "null";
    switch (typeof value) {
      case "undefined": return "undefined";
      case "string": return value;
      case "number":
      case "boolean":
      case "bigint":
      case "symbol":
        return String(value);
      case "function":
        return "[Function: " + (value.name || "anonymous") + "]";
    }
    if (seen.has(value)) return "[Circular]";
    seen.add(value);
    try {
      if (Array.isArray(value)) {
        return "[ " + value.map((v) => inspect(v, seen)).join(", ") + " ]";
      }
      if (value instanceof Error) {
        return value.stack || String(value);
      }
      const parts = [];
      for (const key of Object.keys(value)) {
        parts.push(key + ": " + inspect(value[key], seen));
      }
      return "{ " + parts.join(", ") + " }";
    } finally {
      seen.delete(value);
    }
  }

  function format(args) {
    return args.map((a) => inspect(a, new Set())).join(" ") + "\n";
  }

  const console = {
    log(...args) { internal_print(format(args), false); },
    info(...args) { internal_print(format(args), false); },
    debug(...args) { internal_print(format(args), false); },
    warn(...args) { internal_print(format(args), true); },
    error(...args) { internal_print(format(args), true); },
    assert(cond, ...args) {
      if (!cond) internal_print("Assertion failed: " + format(args), true);
    },
  };

  Object.defineProperty(globalThis, "console", {
    value: console, writable: true, configurable: true,
  });
})(globalThis);
`
