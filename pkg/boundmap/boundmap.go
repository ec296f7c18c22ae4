// Package boundmap implements the fixed capacity
// concurrent tables shared by the trackers.
//
// Unlike the builtin map, a table never grows past the
// capacity given at creation: an insert that would exceed
// it reports failure and leaves the table unchanged. The
// trackers discard that failure, which keeps their memory
// bounded under load at the price of silently dropped
// state.
package boundmap

import "sync"

// Table is a capacity bounded hash table safe for
// concurrent use by many handler invocations at once.
//
// Each operation is independently atomic. Read-modify-
// write sequences must go through Upsert so that updates
// from concurrent invocations can never be lost.
type Table[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[K]V
}

// New creates an empty table bounded to capacity entries.
func New[K comparable, V any](capacity int) *Table[K, V] {
	return &Table[K, V]{
		capacity: capacity,
		entries:  make(map[K]V),
	}
}

// Len reports the number of entries in the table.
func (t *Table[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Get returns the value stored under key.
func (t *Table[K, V]) Get(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.entries[key]
	return value, ok
}

// Put stores value under key, replacing any previous
// entry. Put fails only when the key is absent and the
// table is full; replacing never fails.
func (t *Table[K, V]) Put(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok &&
		len(t.entries) >= t.capacity {
		return false
	}
	t.entries[key] = value
	return true
}

// Upsert atomically replaces the value under key with the
// result of update. The update function observes the
// current value, or the zero value when the key is
// absent, while no other operation may interleave. Upsert
// fails only when the key is absent and the table is
// full, in which case update is not called.
func (t *Table[K, V]) Upsert(
	key K, update func(old V, ok bool) V,
) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.entries[key]
	if !ok && len(t.entries) >= t.capacity {
		return false
	}
	t.entries[key] = update(old, ok)
	return true
}

// Take removes and returns the entry under key.
func (t *Table[K, V]) Take(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return value, ok
}
