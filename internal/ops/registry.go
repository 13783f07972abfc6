package ops

import (
	"io"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/cronsched"
	"github.com/andromeda-rt/andromeda/internal/ext"
	"github.com/andromeda-rt/andromeda/internal/timers"
)

// Options configures the default extension set.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// CLIArgs is what internal_get_cli_args reports.
	CLIArgs []string

	// StorageDir is the root for persistent Web Storage areas.
	StorageDir string

	Timers *timers.State
	Cron   *cronsched.State

	Log *zap.Logger
}

// Defaults returns the built-in extensions in install order. Later
// extensions may rely on globals installed by earlier ones.
func Defaults(o Options) []ext.Extension {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Timers == nil {
		o.Timers = timers.NewState(o.Log)
	}
	if o.Cron == nil {
		o.Cron = cronsched.NewState(o.Log, false)
	}
	return []ext.Extension{
		Stdio(o.Stdin, o.Stdout, o.Stderr),
		Web(),
		Process(o.CLIArgs),
		Fs(),
		Time(o.Timers),
		Crypto(),
		Storage(o.StorageDir),
		Broadcast(),
		Locks(),
		Cron(o.Cron, o.Log),
		Net(),
	}
}
