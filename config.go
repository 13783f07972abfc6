// Package andromeda embeds a JavaScript and TypeScript runtime: an
// engine agent driven by a macrotask event loop, with host ops exposed
// through installable extensions.
package andromeda

import (
	"io"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/metrics"
)

// DefaultBusCapacity bounds the macrotask channel. The macrotask
// counter bounds outstanding work, so a modest buffer suffices.
const DefaultBusCapacity = 256

// Config controls a Runtime. The zero value is usable.
type Config struct {
	// Strict evaluates scripts in strict mode. The CLI flips this off
	// with --no-strict.
	Strict bool

	// Verbose enables debug logging and internal-op exposure.
	Verbose bool

	// ExposeInternals keeps the op namespace reachable from scripts
	// after the builtin shims ran.
	ExposeInternals bool

	// DisableGC forwards to the engine agent.
	DisableGC bool

	// ExposeGC installs a global gc() function. The engine collects on
	// its own, so the hook only forces a Go GC cycle; scripts written
	// against runtimes with a manual collector keep working.
	ExposeGC bool

	// BusCapacity overrides DefaultBusCapacity when positive.
	BusCapacity int

	// CronRetryOnThrow re-runs a throwing cron callback with
	// exponential backoff instead of waiting for the next tick.
	CronRetryOnThrow bool

	// StorageDir is the root directory for persistent Web Storage
	// areas. Empty means the current directory.
	StorageDir string

	// CLIArgs is what scripts see from Andromeda.args.
	CLIArgs []string

	// ImportMapPath optionally points at an import map JSON file used
	// when loading module entry points.
	ImportMapPath string

	// Stdin, Stdout, Stderr default to the process streams. Tests
	// substitute buffers.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to a nop logger.
	Logger *zap.Logger

	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics

	// EventLoopHandler observes every dispatched macrotask, after the
	// built-in dispatch ran. Used by embedders and tests.
	EventLoopHandler func(t core.MacroTask)
}

func (c Config) withDefaults() Config {
	if c.BusCapacity <= 0 {
		c.BusCapacity = DefaultBusCapacity
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	return c
}
