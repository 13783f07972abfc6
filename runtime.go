package andromeda

import (
	"errors"
	"fmt"
	gort "runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/cronsched"
	"github.com/andromeda-rt/andromeda/internal/engine"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/locks"
	"github.com/andromeda-rt/andromeda/internal/modules"
	"github.com/andromeda-rt/andromeda/internal/ops"
	"github.com/andromeda-rt/andromeda/internal/timers"
	"github.com/andromeda-rt/andromeda/internal/webstore"
)

// Runtime owns one engine realm, its host data, and the macrotask bus
// that drives it. A Runtime is confined to the goroutine that created
// it; background work reaches it only through the bus.
type Runtime struct {
	cfg Config
	log *zap.Logger

	agent *engine.Agent
	realm *engine.Realm
	hd    *core.HostData
	bus   chan core.MacroTask

	timers *timers.State
	cron   *cronsched.State
	loader *modules.Loader
}

// ExitError surfaces a script's exit() call to the embedder.
type ExitError = ops.ExitError

// ThrownError carries an uncaught thrown value and its stack.
type ThrownError = engine.ThrownError

// DiagnosticsError reports parse failures in user code. The CLI renders
// each diagnostic with a source snippet.
type DiagnosticsError struct {
	Diagnostics []engine.Diagnostic
}

func (e *DiagnosticsError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return strings.Join(msgs, "\n")
}

// New builds a Runtime, installs the default extensions, and leaves the
// realm ready for Execute.
func New(cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	bus := make(chan core.MacroTask, cfg.BusCapacity)
	hd := core.NewHostData(bus)
	core.InitState(hd.Storage(), cfg.Metrics)

	agent := engine.NewAgent(engine.Options{
		DisableGC:      cfg.DisableGC,
		PrintInternals: cfg.Verbose,
	})
	agent.SetHostData(hd)

	realm, err := agent.NewRealm(nil)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:    cfg,
		log:    log,
		agent:  agent,
		realm:  realm,
		hd:     hd,
		bus:    bus,
		timers: timers.NewState(log),
		cron:   cronsched.NewState(log, cfg.CronRetryOnThrow),
	}

	var im *modules.ImportMap
	if cfg.ImportMapPath != "" {
		im, err = modules.LoadImportMap(cfg.ImportMapPath)
		if err != nil {
			return nil, err
		}
	}
	rt.loader = modules.NewLoader(im, log)

	exts := ops.Defaults(ops.Options{
		Stdin:      cfg.Stdin,
		Stdout:     cfg.Stdout,
		Stderr:     cfg.Stderr,
		CLIArgs:    cfg.CLIArgs,
		StorageDir: cfg.StorageDir,
		Timers:     rt.timers,
		Cron:       rt.cron,
		Log:        log,
	})
	for _, x := range exts {
		if err := ext.Install(agent, realm, x, log); err != nil {
			return nil, fmt.Errorf("installing extension %s: %w", x.Name, err)
		}
	}
	if cfg.ExposeGC {
		// goja collects through the Go runtime; gc() forces a cycle so
		// scripts written against manual-collector hosts keep working.
		if err := realm.VM().Set("gc", func() { gort.GC() }); err != nil {
			return nil, fmt.Errorf("installing gc hook: %w", err)
		}
	}
	if !cfg.ExposeInternals && !cfg.Verbose {
		// The shims hold their own reference to the namespace object;
		// only the global binding goes away.
		realm.Global().Delete(ext.NamespaceName)
	}
	return rt, nil
}

// Realm exposes the underlying realm for embedders that install their
// own extensions.
func (rt *Runtime) Realm() *engine.Realm { return rt.realm }

// HostData exposes the macrotask bus and storage.
func (rt *Runtime) HostData() *core.HostData { return rt.hd }

// InstallExtension adds an extension after the defaults.
func (rt *Runtime) InstallExtension(x ext.Extension) error {
	return ext.Install(rt.agent, rt.realm, x, rt.log)
}

// Execute evaluates source as a classic script and then drives the
// event loop until it drains. The returned value is the script's
// completion value.
func (rt *Runtime) Execute(name, source string) (engine.Value, error) {
	script, diags, err := rt.realm.ParseScript(name, source, rt.cfg.Strict)
	if err != nil {
		if len(diags) > 0 {
			return nil, &DiagnosticsError{Diagnostics: diags}
		}
		return nil, err
	}
	val, err := rt.realm.Evaluate(script)
	if err != nil {
		var exit *ops.ExitError
		if errors.As(err, &exit) {
			return nil, exit
		}
		return nil, err
	}
	if err := rt.Run(); err != nil {
		return val, err
	}
	return val, nil
}

// ExecuteFile loads path through the module loader (TypeScript is
// transpiled, ESM graphs are bundled) and executes the result.
func (rt *Runtime) ExecuteFile(path string) (engine.Value, error) {
	src, err := rt.loader.LoadEntry(path)
	if err != nil {
		return nil, err
	}
	return rt.Execute(path, src)
}

// ExecuteSource runs already-loaded text, transpiling when typescript
// is set. The name appears in stack traces and diagnostics.
func (rt *Runtime) ExecuteSource(name, text string, typescript bool) (engine.Value, error) {
	src, err := rt.loader.LoadSource(name, text, typescript)
	if err != nil {
		return nil, err
	}
	return rt.Execute(name, src)
}

// Close releases host resources: open storage areas and files. The
// realm itself needs no teardown.
func (rt *Runtime) Close() error {
	var firstErr error
	if ws, ok := core.StateOK[*webstore.State](rt.hd.Storage()); ok {
		ws.Areas.Range(func(_ core.RID, a *webstore.Area) bool {
			if err := a.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			return true
		})
	}
	return firstErr
}

// Locks exposes the Web Locks manager, mainly for tests and metrics.
func (rt *Runtime) Locks() *locks.Manager {
	return core.State[*locks.Manager](rt.hd.Storage())
}
