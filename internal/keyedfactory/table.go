// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package keyedfactory implements the weakly-memoized keyed factory: a
// lookup table that materializes a value for a key on first access and lets
// the value (and its slot) be reclaimed once nothing outside the table
// still references it. It backs the per-identity semaphores, leaky buckets,
// and maintenance state the guard filters key by request identity.
package keyedfactory

import (
	"runtime"
	"sync"
	"weak"
)

// Table lazily materializes one V per K. The table itself only ever holds a
// weak.Pointer to V, so V becomes eligible for garbage collection (and the
// table's slot for removal) as soon as no caller is still holding the
// strong pointer Get returned them.
type Table[K comparable, V any] struct {
	values  sync.Map // K -> weak.Pointer[V]
	install sync.Map // K -> *sync.Mutex, present only while a Get is installing k
}

// New creates an empty Table.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{}
}

// Get returns the live V for k, calling factory(k) to materialize a fresh
// one if k has no live value (first access, or the prior value has already
// been reclaimed). Concurrent first accesses for the same k collapse to a
// single factory call.
func (t *Table[K, V]) Get(k K, factory func(K) *V) *V {
	if v := t.liveValue(k); v != nil {
		return v
	}

	lockAny, _ := t.install.LoadOrStore(k, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()
	defer t.install.Delete(k)

	// Re-check under the per-key lock: another goroutine may have installed
	// (or a cleanup may have just evicted) between our first check and
	// taking the lock.
	if v := t.liveValue(k); v != nil {
		return v
	}

	v := factory(k)
	wp := weak.Make(v)
	t.values.Store(k, wp)
	runtime.AddCleanup(v, t.evictIfStale, cleanupArg[K, V]{table: t, key: k, wp: wp})
	return v
}

func (t *Table[K, V]) liveValue(k K) *V {
	raw, ok := t.values.Load(k)
	if !ok {
		return nil
	}
	return raw.(weak.Pointer[V]).Value()
}

type cleanupArg[K comparable, V any] struct {
	table *Table[K, V]
	key   K
	wp    weak.Pointer[V]
}

// evictIfStale removes k's slot once its value has been collected, but only
// if the slot still points at the exact weak.Pointer this cleanup was
// registered for — a fresh install for the same key (after a prior
// reclaim) must not be evicted by a late-running cleanup of the old value.
func (t *Table[K, V]) evictIfStale(arg cleanupArg[K, V]) {
	raw, ok := arg.table.values.Load(arg.key)
	if !ok {
		return
	}
	if raw.(weak.Pointer[V]) == arg.wp {
		arg.table.values.Delete(arg.key)
	}
}

// Len reports the number of currently-live entries. It is best-effort and
// does not itself force reclamation of any pending-cleanup slots.
func (t *Table[K, V]) Len() int {
	n := 0
	t.values.Range(func(_, raw any) bool {
		if raw.(weak.Pointer[V]).Value() != nil {
			n++
		}
		return true
	})
	return n
}
