package modules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
	"github.com/andromeda-rt/andromeda/internal/engine"
)

// Loader turns an entry path into a single script the engine can run:
// TypeScript is transpiled, ES modules are bundled, import maps applied,
// and import cycles rejected with a cycle description.
type Loader struct {
	ImportMap *ImportMap
	log       *zap.Logger
}

// NewLoader creates a loader; im may be nil.
func NewLoader(im *ImportMap, log *zap.Logger) *Loader {
	return &Loader{ImportMap: im, log: log}
}

// tsExtensions are treated as TypeScript input.
var tsExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".mts": true, ".cts": true,
}

// LoadEntry reads path and returns runnable script source. Plain scripts
// without imports pass through untouched; anything with import/export
// syntax goes through the bundler.
func (l *Loader) LoadEntry(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", core.WrapError(core.KindModuleIO, path, err)
	}
	text := string(src)
	isTS := tsExtensions[strings.ToLower(filepath.Ext(path))]
	if !isTS && !needsBundling(text) {
		return text, nil
	}
	if !needsBundling(text) {
		return l.transpile(path, text)
	}
	return l.bundle(path)
}

// LoadSource handles in-memory sources (embedded scripts, eval input).
func (l *Loader) LoadSource(name, text string, typescript bool) (string, error) {
	if typescript {
		return l.transpile(name, text)
	}
	return text, nil
}

// needsBundling mirrors a cheap syntactic probe: only sources with ESM
// import/export statements go through the bundler.
func needsBundling(src string) bool {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "import{") ||
			strings.HasPrefix(trimmed, "export ") || strings.HasPrefix(trimmed, "import(") {
			return true
		}
	}
	return false
}

func (l *Loader) transpile(name, text string) (string, error) {
	result := esbuild.Transform(text, esbuild.TransformOptions{
		Loader:     esbuild.LoaderTS,
		Target:     esbuild.ES2022,
		Sourcefile: name,
	})
	if len(result.Errors) > 0 {
		return "", moduleError(core.KindModuleParse, name, result.Errors)
	}
	return string(result.Code), nil
}

// bundle resolves and flattens the module graph rooted at entry into one
// script. The import map applies before path resolution; the metafile's
// input graph is checked for cycles afterwards.
func (l *Loader) bundle(entry string) (string, error) {
	absEntry, err := filepath.Abs(entry)
	if err != nil {
		return "", core.WrapError(core.KindModuleIO, entry, err)
	}

	opts := esbuild.BuildOptions{
		EntryPoints: []string{absEntry},
		Bundle:      true,
		Write:       false,
		Metafile:    true,
		Format:      esbuild.FormatIIFE,
		Platform:    esbuild.PlatformNeutral,
		Target:      esbuild.ES2022,
		LogLevel:    esbuild.LogLevelSilent,
	}
	if l.ImportMap != nil {
		opts.Plugins = []esbuild.Plugin{l.importMapPlugin(absEntry)}
	}

	result := esbuild.Build(opts)
	if len(result.Errors) > 0 {
		return "", moduleError(core.KindModuleResolution, entry, result.Errors)
	}
	if err := checkCycles(result.Metafile); err != nil {
		return "", err
	}
	if len(result.OutputFiles) == 0 {
		return "", core.OpError(core.KindInternal, entry, "bundler produced no output")
	}
	return string(result.OutputFiles[0].Contents), nil
}

// importMapPlugin rewrites specifiers through the import map before
// esbuild's own resolution runs.
func (l *Loader) importMapPlugin(entry string) esbuild.Plugin {
	im := l.ImportMap
	return esbuild.Plugin{
		Name: "andromeda-import-map",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: `.*`}, func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
				referrer := args.Importer
				if referrer == "" {
					referrer = entry
				}
				mapped, ok := im.Resolve(args.Path, referrer)
				if !ok {
					return esbuild.OnResolveResult{}, nil
				}
				if !filepath.IsAbs(mapped) && !strings.HasPrefix(mapped, ".") {
					return esbuild.OnResolveResult{Path: mapped, External: true}, nil
				}
				resolved := mapped
				if !filepath.IsAbs(resolved) {
					resolved = filepath.Join(filepath.Dir(referrer), mapped)
				}
				return esbuild.OnResolveResult{Path: resolved}, nil
			})
		},
	}
}

// metaInputs is the slice of the esbuild metafile the cycle check needs.
type metaInputs struct {
	Inputs map[string]struct {
		Imports []struct {
			Path string `json:"path"`
			Kind string `json:"kind"`
		} `json:"imports"`
	} `json:"inputs"`
}

// checkCycles walks the bundled input graph and rejects import cycles,
// naming the cycle path in the error.
func checkCycles(metafile string) error {
	var meta metaInputs
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return core.WrapError(core.KindInternal, "metafile", err)
	}

	graph := make(map[string][]string, len(meta.Inputs))
	for file, in := range meta.Inputs {
		for _, imp := range in.Imports {
			if imp.Kind == "import-statement" || imp.Kind == "dynamic-import" {
				graph[file] = append(graph[file], imp.Path)
			}
		}
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))
	var stack []string

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = grey
		stack = append(stack, node)
		for _, dep := range graph[node] {
			switch color[dep] {
			case grey:
				start := 0
				for i, n := range stack {
					if n == dep {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), dep)
				return core.OpError(core.KindCircularImport, dep,
					"circular import: %s", strings.Join(cycle, " -> "))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[node] = black
		return nil
	}

	roots := make([]string, 0, len(graph))
	for node := range graph {
		roots = append(roots, node)
	}
	sort.Strings(roots)
	for _, node := range roots {
		if color[node] == white {
			if err := visit(node); err != nil {
				return err
			}
		}
	}
	return nil
}

// moduleError converts esbuild messages into one RuntimeError carrying
// the first message's position, and Diagnostics for rendering.
func moduleError(kind core.Kind, name string, msgs []esbuild.Message) error {
	first := msgs[0]
	if first.Location != nil {
		return core.OpError(kind, name, "%s:%d:%d: %s",
			first.Location.File, first.Location.Line, first.Location.Column, first.Text)
	}
	return core.OpError(kind, name, "%s", first.Text)
}

// DiagnosticsOf converts esbuild messages to engine diagnostics.
func DiagnosticsOf(msgs []esbuild.Message) []engine.Diagnostic {
	out := make([]engine.Diagnostic, 0, len(msgs))
	for _, m := range msgs {
		d := engine.Diagnostic{Message: m.Text, Line: 1, Column: 1}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column
		}
		out = append(out, d)
	}
	return out
}
