package core

// RID is a resource ID: a non-negative 32-bit integer unique within its
// table. 0 is valid. IDs are dense and monotonic per table; an ID may be
// reused after removal once the counter wraps.
type RID uint32

// Identifiers for scheduler table entries. Structurally these are RIDs of
// their own tables; distinct types keep them from being exchanged.
type (
	TimeoutID  uint32
	IntervalID uint32
	CronID     uint32
)

// ResourceTable maps RIDs to owned native resources of one kind. Each kind
// owns its own instance, stored in the ops storage. Tables are mutated on
// the engine thread only, so there is no lock; background tasks hold their
// own reference to the native object, never the table.
type ResourceTable[T any] struct {
	entries map[RID]T
	next    RID
}

// NewResourceTable creates an empty table.
func NewResourceTable[T any]() *ResourceTable[T] {
	return &ResourceTable[T]{entries: make(map[RID]T)}
}

// Push inserts v and returns a fresh RID. Never fails. If the counter
// lands on a still-live ID (after 2^32 pushes) it skips forward.
func (t *ResourceTable[T]) Push(v T) RID {
	for {
		id := t.next
		t.next++
		if _, live := t.entries[id]; live {
			continue
		}
		t.entries[id] = v
		return id
	}
}

// Get returns the resource for rid, or a resource-not-found diagnostic
// naming the failing op.
func (t *ResourceTable[T]) Get(rid RID, op string) (T, error) {
	v, ok := t.entries[rid]
	if !ok {
		var zero T
		return zero, ResourceNotFound(rid, op)
	}
	return v, nil
}

// Remove returns ownership of the stored value if present. Subsequent
// lookups for rid fail until the ID is reused.
func (t *ResourceTable[T]) Remove(rid RID) (T, bool) {
	v, ok := t.entries[rid]
	if ok {
		delete(t.entries, rid)
	}
	return v, ok
}

// Contains reports whether rid is live.
func (t *ResourceTable[T]) Contains(rid RID) bool {
	_, ok := t.entries[rid]
	return ok
}

// Len returns the number of live resources.
func (t *ResourceTable[T]) Len() int { return len(t.entries) }

// IsEmpty reports whether the table holds no resources.
func (t *ResourceTable[T]) IsEmpty() bool { return len(t.entries) == 0 }

// Range calls fn for every live entry until fn returns false.
func (t *ResourceTable[T]) Range(fn func(RID, T) bool) {
	for id, v := range t.entries {
		if !fn(id, v) {
			return
		}
	}
}
