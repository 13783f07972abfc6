package core

import "github.com/samber/do"

// Storage is the heterogeneous per-extension state map. Each extension
// deposits exactly one value per Go type at install time; ops look their
// state up by type. Access is engine-thread only — an op that re-enters
// the engine must not hold references it obtained here across the
// re-entry if the callee may mutate the same state.
type Storage struct {
	injector *do.Injector
}

// NewStorage creates an empty storage map.
func NewStorage() *Storage {
	return &Storage{injector: do.New()}
}

// InitState deposits v under its type. At most one value per type; a
// second deposit of the same type panics, which install treats as a fatal
// extension-init bug.
func InitState[T any](s *Storage, v T) {
	do.ProvideValue(s.injector, v)
}

// State returns the value deposited for T. Panics when no extension
// registered T — ops only ask for state their own extension installed.
func State[T any](s *Storage) T {
	return do.MustInvoke[T](s.injector)
}

// StateOK is the non-panicking lookup, for cross-extension probes.
func StateOK[T any](s *Storage) (T, bool) {
	v, err := do.Invoke[T](s.injector)
	return v, err == nil
}
