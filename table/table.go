/*
Copyright (C) 2026  txdb contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package table implements the typed entity container (spec.md §4.3/§4.4):
// a Table[T] keyed by a monotonically assigned id, backed by a B-tree
// (github.com/google/btree, generalizing the teacher's use of the same
// library in storage/index.go for ordered scans) so Iter walks entities
// in a deterministic, cache-friendly id order instead of Go map order.
//
// Mutation is interposed through a single explicit method, Mutate,
// rather than through an overloaded accessor: spec.md §9's re-
// architecture guidance calls out exactly this ("avoid language-
// specific operator overloading — make the mutation site explicit").
package table

import (
	"sync"

	"github.com/google/btree"

	"github.com/launix-de/txdb/txn"
)

// Codec is the external byte-level serializer spec.md §1 assumes as a
// collaborator outside this engine's scope. Embedding applications
// supply one per row type; it is only ever invoked to take an undo
// snapshot or to restore one during rollback.
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(b []byte) T
}

// Entity is a row: the stored value plus the bookkeeping the undo
// machinery needs. Entities are owned exclusively by their table.
type Entity[T any] struct {
	id                uint64
	value             T
	lastSnapshotTxnID uint64
}

// ID returns the entity's (table-scoped) identity.
func (e *Entity[T]) ID() uint64 { return e.id }

type row[T any] struct {
	id     uint64
	entity *Entity[T]
}

func rowLess[T any](a, b row[T]) bool { return a.id < b.id }

// Table is a typed container of Entity[T], indexed by a monotonically
// increasing id. The zero value is not usable; construct with New.
type Table[T any] struct {
	name    string
	tableID uint64
	mgr     *txn.Manager
	codec   Codec[T]

	mu     sync.RWMutex
	tree   *btree.BTreeG[row[T]]
	nextID uint64
}

// New constructs a table named name, backed by mgr's transaction
// manager. table_id is derived deterministically from name (StableID)
// so it survives process restarts and Go version upgrades — required
// because it is the value a journaled undo entry (and the Database's
// dispatch table) keys on.
func New[T any](name string, mgr *txn.Manager, codec Codec[T]) *Table[T] {
	return &Table[T]{
		name:    name,
		tableID: StableID(name),
		mgr:     mgr,
		codec:   codec,
		tree:    btree.NewG(32, rowLess[T]),
		nextID:  1,
	}
}

// Name returns the table's declared name.
func (t *Table[T]) Name() string { return t.name }

// TableID returns the table's stable 64-bit id.
func (t *Table[T]) TableID() uint64 { return t.tableID }

// Len returns the number of live entities.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tree.Len()
}

// NextID returns the id that will be assigned to the next Add call.
func (t *Table[T]) NextID() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextID
}

// Get returns a copy of the stored value by shared (read-only) access.
// Returning by value, rather than by pointer into the table, is the Go
// substitute for spec.md §4.2's "immutable access exposes the stored
// value by shared reference": it makes accidental mutation outside
// Mutate a compile-time impossibility instead of a convention.
func (t *Table[T]) Get(id uint64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.tree.Get(row[T]{id: id})
	if !ok {
		var zero T
		return zero, false
	}
	return r.entity.value, true
}

// Add assigns the next id, inserts value, and — if a transaction is
// running — records a KindNotExisting undo entry for it. Ids are never
// reused, including across rollbacks: nextID only ever increases.
func (t *Table[T]) Add(value T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.tree.ReplaceOrInsert(row[T]{id: id, entity: &Entity[T]{id: id, value: value}})
	t.mgr.NoteInsert(t.tableID, id)
	return id
}

// Remove deletes the entity with id, if present, recording a
// KindWasPresent undo entry when a transaction is running so the
// removal is undone on rollback (spec.md §9 open-question #2).
func (t *Table[T]) Remove(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.tree.Get(row[T]{id: id})
	if !ok {
		return false
	}
	value := r.entity.value
	t.tree.Delete(row[T]{id: id})
	t.mgr.NoteRemove(t.tableID, id, func() []byte { return t.codec.Encode(value) })
	return true
}

// Mutate grants fn exclusive access to the entity's value, recording a
// one-time pre-transaction snapshot first if a transaction is running
// and this entity has not yet been touched within it (spec.md §4.2).
// It reports whether the entity existed.
func (t *Table[T]) Mutate(id uint64, fn func(*T)) bool {
	t.mu.RLock()
	r, ok := t.tree.Get(row[T]{id: id})
	t.mu.RUnlock()
	if !ok {
		return false
	}
	entity := r.entity
	t.mgr.NoteMutation(t.tableID, id, &entity.lastSnapshotTxnID, func() []byte {
		return t.codec.Encode(entity.value)
	})
	fn(&entity.value)
	return true
}

// Iter walks every live entity in ascending id order. fn returning
// false stops iteration early, matching btree's ascend contract.
func (t *Table[T]) Iter(fn func(id uint64, value T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.tree.Ascend(func(r row[T]) bool {
		return fn(r.id, r.entity.value)
	})
}

// restore replaces (or inserts) the entity at id with value decoded
// from prior, resetting lastSnapshotTxnID to 0 — a post-rollback
// mutation of this id is therefore snapshotted again from scratch.
// Callers must hold t.mu.
func (t *Table[T]) restore(id uint64, prior []byte) {
	t.tree.Delete(row[T]{id: id})
	value := t.codec.Decode(prior)
	t.tree.ReplaceOrInsert(row[T]{id: id, entity: &Entity[T]{id: id, value: value}})
}

// RollbackToExisting implements txn.RollbackTarget.
func (t *Table[T]) RollbackToExisting(entityID uint64, prior []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restore(entityID, prior)
}

// RollbackToNotExisting implements txn.RollbackTarget.
func (t *Table[T]) RollbackToNotExisting(entityID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tree.Delete(row[T]{id: entityID})
}

// RollbackToWasPresent implements txn.RollbackTarget: it reinserts a
// row removed during the transaction, identically to undoing a plain
// mutation, since from the table's perspective both are "this id must
// hold exactly this byte image again".
func (t *Table[T]) RollbackToWasPresent(entityID uint64, prior []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restore(entityID, prior)
}
