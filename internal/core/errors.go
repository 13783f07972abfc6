// Package core holds the shared spine of the runtime: the resource tables,
// the per-extension storage map, the host data record and the macrotask bus
// that every subsystem funnels completions through.
package core

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime failure. Kinds are stable strings so they can
// surface in diagnostics and logs without exposing Go type names to script.
type Kind string

const (
	KindFilesystem       Kind = "filesystem"
	KindParse            Kind = "parse"
	KindRuntime          Kind = "runtime"
	KindExtensionInit    Kind = "extension-init"
	KindResourceNotFound Kind = "resource-not-found"
	KindTask             Kind = "task"
	KindNetwork          Kind = "network"
	KindEncoding         Kind = "encoding"
	KindConfig           Kind = "config"
	KindTypeMismatch     Kind = "type-mismatch"
	KindMemory           Kind = "memory"
	KindModuleNotFound   Kind = "module-not-found"
	KindModuleParse      Kind = "module-parse"
	KindModuleResolution Kind = "module-resolution"
	KindModuleRuntime    Kind = "module-runtime"
	KindCircularImport   Kind = "circular-import"
	KindImportNotFound   Kind = "import-not-found"
	KindAmbiguousExport  Kind = "ambiguous-export"
	KindInvalidSpecifier Kind = "invalid-specifier"
	KindModuleIO         Kind = "module-io"
	KindInternal         Kind = "internal"
)

// RuntimeError is the error type ops and subsystems produce. Op-local
// failures become engine thrown exceptions carrying Error(); background
// failures ride a RejectPromise macrotask as the message text.
type RuntimeError struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *RuntimeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Errorf builds a RuntimeError with a formatted message.
func Errorf(kind Kind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// OpError builds a RuntimeError attributed to an op.
func OpError(kind Kind, op, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WrapError attributes err to an op under the given kind.
func WrapError(kind Kind, op string, err error) *RuntimeError {
	return &RuntimeError{Kind: kind, Op: op, Err: err}
}

// ResourceNotFound is the diagnostic for a dead or foreign RID.
func ResourceNotFound(rid RID, op string) *RuntimeError {
	return &RuntimeError{
		Kind:    KindResourceNotFound,
		Op:      op,
		Message: fmt.Sprintf("resource %d not found", rid),
	}
}

// KindOf extracts the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
