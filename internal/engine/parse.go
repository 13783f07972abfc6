package engine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
)

// Diagnostic is one parse failure with its source position.
type Diagnostic struct {
	File    string
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
}

// Script is a parsed, compiled program ready for evaluation in its realm.
type Script struct {
	Name string
	prog *goja.Program
}

// ParseScript parses and compiles source text. On failure the diagnostics
// carry positions; the returned error wraps the first of them.
func (r *Realm) ParseScript(name, src string, strict bool) (*Script, []Diagnostic, error) {
	ast, err := parser.ParseFile(nil, name, src, 0)
	if err != nil {
		diags := toDiagnostics(name, err)
		return nil, diags, fmt.Errorf("parsing %s: %s", name, diags[0].Message)
	}
	prog, err := goja.CompileAST(ast, strict)
	if err != nil {
		diags := toDiagnostics(name, err)
		return nil, diags, fmt.Errorf("compiling %s: %s", name, diags[0].Message)
	}
	return &Script{Name: name, prog: prog}, nil, nil
}

// Evaluate runs a parsed script in the realm. A script throw comes back as
// a ThrownError carrying the thrown value. An interrupt raised by an op
// (exit) is unwrapped to the op's own error and the vm is cleared so the
// realm stays usable.
func (r *Realm) Evaluate(s *Script) (Value, error) {
	v, err := r.vm.RunProgram(s.prog)
	if err != nil {
		var intr *goja.InterruptedError
		if errors.As(err, &intr) {
			r.vm.ClearInterrupt()
			if cause, ok := intr.Value().(error); ok {
				return nil, cause
			}
			return nil, err
		}
		var ex *goja.Exception
		if errors.As(err, &ex) {
			return nil, &ThrownError{Value: ex.Value(), Stack: ex.String()}
		}
		return nil, err
	}
	return v, nil
}

// ThrownError wraps an uncaught script exception. The driver hands it to
// the caller, which decides whether to exit.
type ThrownError struct {
	Value Value
	Stack string
}

func (e *ThrownError) Error() string {
	return fmt.Sprintf("uncaught exception: %s", e.Stack)
}

func toDiagnostics(name string, err error) []Diagnostic {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		out := make([]Diagnostic, 0, len(list))
		for _, e := range list {
			out = append(out, Diagnostic{
				File:    positionFile(e.Position.Filename, name),
				Line:    e.Position.Line,
				Column:  e.Position.Column,
				Message: e.Message,
			})
		}
		return out
	}
	return []Diagnostic{{File: name, Line: 1, Column: 1, Message: err.Error()}}
}

func positionFile(f, fallback string) string {
	if f == "" {
		return fallback
	}
	return f
}
