// Command andromeda runs JavaScript and TypeScript files, and compiles
// them into self-contained executables.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda"
	"github.com/andromeda-rt/andromeda/internal/modules"
)

func main() {
	// A compiled binary ignores its command line and runs the embedded
	// script directly.
	if script, ok, err := modules.ExtractSection(modules.SectionBincode); err == nil && ok {
		os.Exit(runEmbedded(string(script)))
	}

	app := &cli.App{
		Name:  "andromeda",
		Usage: "JavaScript and TypeScript runtime",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a script",
				ArgsUsage: "<file> [args...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable debug logging and internal ops"},
					&cli.BoolFlag{Name: "no-strict", Usage: "evaluate in sloppy mode"},
					&cli.StringFlag{Name: "import-map", Usage: "path to an import map JSON file"},
					&cli.StringFlag{Name: "storage-dir", Usage: "directory for persistent Web Storage", Value: "."},
					&cli.BoolFlag{Name: "expose-gc", Usage: "expose a global gc() function"},
				},
				Action: runAction,
			},
			{
				Name:      "compile",
				Usage:     "build a self-contained executable from a script",
				ArgsUsage: "<file> -o <output>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "output executable path"},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
					&cli.BoolFlag{Name: "no-strict"},
					&cli.StringFlag{Name: "import-map"},
				},
				Action: compileAction,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "andromeda:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func runAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("run: missing script file", 1)
	}
	path := c.Args().First()
	log := newLogger(c.Bool("verbose"))
	defer log.Sync()

	rt, err := andromeda.New(andromeda.Config{
		Strict:        !c.Bool("no-strict"),
		Verbose:       c.Bool("verbose"),
		ExposeGC:      c.Bool("expose-gc"),
		ImportMapPath: c.String("import-map"),
		StorageDir:    c.String("storage-dir"),
		CLIArgs:       c.Args().Tail(),
		Logger:        log,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	_, err = rt.ExecuteFile(path)
	return reportRunError(path, err)
}

// reportRunError renders parse diagnostics and thrown values itself and
// converts them to a bare exit code, so the cli framework does not
// double-print them.
func reportRunError(path string, err error) error {
	if err == nil {
		return nil
	}
	var exit *andromeda.ExitError
	if errors.As(err, &exit) {
		if exit.Code == 0 {
			return nil
		}
		return cli.Exit("", exit.Code)
	}
	var diags *andromeda.DiagnosticsError
	if errors.As(err, &diags) {
		src, readErr := os.ReadFile(path)
		if readErr != nil {
			src = nil
		}
		modules.RenderDiagnostics(os.Stderr, string(src), diags.Diagnostics)
		return cli.Exit("", 1)
	}
	var thrown *andromeda.ThrownError
	if errors.As(err, &thrown) {
		fmt.Fprintln(os.Stderr, "Uncaught", thrown.Error())
		if thrown.Stack != "" {
			fmt.Fprintln(os.Stderr, thrown.Stack)
		}
		return cli.Exit("", 1)
	}
	return err
}

func compileAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("compile: missing script file", 1)
	}
	path := c.Args().First()
	output := c.String("output")

	// Bundle the entry so the embedded script has no imports left.
	loader, err := newCompileLoader(c.String("import-map"))
	if err != nil {
		return err
	}
	src, err := loader.LoadEntry(path)
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return err
	}
	cfg := modules.EmbeddedConfig{
		Verbose:  c.Bool("verbose"),
		NoStrict: c.Bool("no-strict"),
	}
	if err := modules.EmbedSections(self, output, []byte(src), cfg); err != nil {
		return err
	}
	fmt.Println("compiled", path, "->", output)
	return nil
}

func newCompileLoader(importMapPath string) (*modules.Loader, error) {
	var im *modules.ImportMap
	if importMapPath != "" {
		var err error
		im, err = modules.LoadImportMap(importMapPath)
		if err != nil {
			return nil, err
		}
	}
	return modules.NewLoader(im, zap.NewNop()), nil
}

func runEmbedded(script string) int {
	cfg := andromeda.Config{Strict: true}
	self, err := os.Executable()
	if err == nil {
		if embedded, ok, err := modules.ExtractConfig(self); err == nil && ok {
			cfg.Verbose = embedded.Verbose
			cfg.Strict = !embedded.NoStrict
		}
	}
	cfg.Logger = newLogger(cfg.Verbose)
	cfg.CLIArgs = os.Args[1:]

	rt, err := andromeda.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "andromeda:", err)
		return 1
	}
	defer rt.Close()

	if _, err := rt.Execute("main.js", script); err != nil {
		var exit *andromeda.ExitError
		if errors.As(err, &exit) {
			return exit.Code
		}
		fmt.Fprintln(os.Stderr, "Uncaught", err.Error())
		return 1
	}
	return 0
}
