package modules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/andromeda-rt/andromeda/internal/core"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestImportMap_Resolve(t *testing.T) {
	im := &ImportMap{
		Imports: map[string]string{
			"lodash":  "./vendor/lodash.js",
			"assets/": "./static/",
		},
	}

	if got, ok := im.Resolve("lodash", ""); !ok || got != "./vendor/lodash.js" {
		t.Errorf("Resolve(lodash) = %q, %v", got, ok)
	}
	if got, ok := im.Resolve("assets/logo.js", ""); !ok || got != "./static/logo.js" {
		t.Errorf("Resolve(assets/logo.js) = %q, %v", got, ok)
	}
	if _, ok := im.Resolve("unmapped", ""); ok {
		t.Error("unmapped specifier must not resolve")
	}
}

func TestImportMap_ScopesWinOverImports(t *testing.T) {
	im := &ImportMap{
		Imports: map[string]string{"dep": "./global/dep.js"},
		Scopes: map[string]map[string]string{
			"./scoped/": {"dep": "./scoped/dep.js"},
		},
	}

	if got, ok := im.Resolve("dep", "./scoped/main.js"); !ok || got != "./scoped/dep.js" {
		t.Errorf("scoped Resolve = %q, %v", got, ok)
	}
	if got, ok := im.Resolve("dep", "./other/main.js"); !ok || got != "./global/dep.js" {
		t.Errorf("global Resolve = %q, %v", got, ok)
	}
}

func TestLoadImportMap(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "import_map.json", `{
  "imports": { "react": "./vendor/react.js" }
}`)

	im, err := LoadImportMap(path)
	if err != nil {
		t.Fatalf("LoadImportMap: %v", err)
	}
	if got, ok := im.Resolve("react", ""); !ok || got != "./vendor/react.js" {
		t.Errorf("Resolve(react) = %q, %v", got, ok)
	}
}

func TestLoader_PlainScriptPassesThrough(t *testing.T) {
	l := NewLoader(nil, zap.NewNop())
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.js", "var x = 1;\nconsole.log(x);\n")

	src, err := l.LoadEntry(path)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	if !strings.Contains(src, "console.log(x)") {
		t.Errorf("passthrough lost content: %q", src)
	}
}

func TestLoader_TranspilesTypeScript(t *testing.T) {
	l := NewLoader(nil, zap.NewNop())

	src, err := l.LoadSource("main.ts", "const n: number = 2;\nconsole.log(n);", true)
	if err != nil {
		t.Fatalf("LoadSource: %v", err)
	}
	if strings.Contains(src, ": number") {
		t.Errorf("type annotation survived transpilation: %q", src)
	}
	if !strings.Contains(src, "console.log(n)") {
		t.Errorf("output lost logic: %q", src)
	}
}

func TestLoader_BundlesImports(t *testing.T) {
	l := NewLoader(nil, zap.NewNop())
	dir := t.TempDir()
	writeFile(t, dir, "dep.js", "export const value = 41;\n")
	entry := writeFile(t, dir, "main.js", `import { value } from "./dep.js";
console.log(value + 1);
`)

	src, err := l.LoadEntry(entry)
	if err != nil {
		t.Fatalf("LoadEntry: %v", err)
	}
	if strings.Contains(src, "import ") {
		t.Errorf("bundle still contains import statements: %q", src)
	}
	if !strings.Contains(src, "41") {
		t.Errorf("bundle lost dependency content: %q", src)
	}
}

func TestLoader_RejectsCircularImports(t *testing.T) {
	l := NewLoader(nil, zap.NewNop())
	dir := t.TempDir()
	writeFile(t, dir, "a.js", `import { b } from "./b.js"; export const a = b + 1;`)
	writeFile(t, dir, "b.js", `import { a } from "./a.js"; export const b = a + 1;`)
	entry := writeFile(t, dir, "entry.js", `import { a } from "./a.js"; console.log(a);`)

	_, err := l.LoadEntry(entry)
	if err == nil {
		t.Fatal("circular import graph must be rejected")
	}
	if core.KindOf(err) != core.KindCircularImport {
		t.Errorf("error kind = %v, want %v", core.KindOf(err), core.KindCircularImport)
	}
}

func TestLoader_MissingImportFails(t *testing.T) {
	l := NewLoader(nil, zap.NewNop())
	dir := t.TempDir()
	entry := writeFile(t, dir, "main.js", `import { x } from "./nope.js"; console.log(x);`)

	if _, err := l.LoadEntry(entry); err == nil {
		t.Fatal("import of a missing file must fail")
	}
}

func TestEmbedded_TrailerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	// A plain file stands in for an executable; section extraction falls
	// back to the trailer scan for unknown formats.
	src := writeFile(t, dir, "host", "not a real executable\n")
	dst := filepath.Join(dir, "out")

	script := []byte(`console.log("embedded");`)
	cfg := EmbeddedConfig{Verbose: true, NoStrict: false}
	if err := EmbedSections(src, dst, script, cfg); err != nil {
		t.Fatalf("EmbedSections: %v", err)
	}

	got, ok, err := ExtractSectionFrom(dst, SectionBincode)
	if err != nil || !ok {
		t.Fatalf("ExtractSectionFrom(bincode) = %v, %v", ok, err)
	}
	if string(got) != string(script) {
		t.Errorf("bincode = %q, want %q", got, script)
	}

	gotCfg, ok, err := ExtractConfig(dst)
	if err != nil || !ok {
		t.Fatalf("ExtractConfig = %v, %v", ok, err)
	}
	if !gotCfg.Verbose || gotCfg.NoStrict {
		t.Errorf("config = %+v", gotCfg)
	}
}

func TestEmbedded_NoSectionsInPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain", "just text")

	_, ok, err := ExtractSectionFrom(path, SectionBincode)
	if err != nil {
		t.Fatalf("ExtractSectionFrom: %v", err)
	}
	if ok {
		t.Error("plain file must not report an embedded section")
	}
}
