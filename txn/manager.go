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

// Package txn implements the transaction manager: the undo log and the
// begin/commit/rollback state machine that the rest of txdb builds on.
// It is the generalization of the teacher repo's cursor-stability mode
// in storage/transaction.go (UndoEntry/UndoLog/Commit/Rollback), stripped
// of memcp's ACID/OCC snapshot-isolation mode, which this engine has no
// use for: only one writer ever runs, so optimistic concurrency control
// has nothing to arbitrate.
package txn

import (
	"fmt"
	"sync"

	txdberrors "github.com/launix-de/txdb/errors"
)

// EntryKind tags the three undo-log entry shapes.
type EntryKind uint8

const (
	// KindExisting records that the entity existed before this
	// transaction; Prior is its pre-transaction byte image.
	KindExisting EntryKind = iota
	// KindNotExisting records that the entity was created by this
	// transaction and did not exist before it.
	KindNotExisting
	// KindWasPresent records that the entity was removed by this
	// transaction; Prior is its byte image at the moment of removal.
	// This is the spec's open-question #2 resolved in favor of
	// recording removals: without it a Table.Remove inside a
	// transaction would survive a rollback.
	KindWasPresent
)

// UndoEntry is one reversible mutation recorded during the currently
// running transaction.
type UndoEntry struct {
	Kind     EntryKind
	TableID  uint64
	EntityID uint64
	Prior    []byte // unused for KindNotExisting
}

// RollbackTarget is the capability set a table exposes to the
// transaction manager so rollback can undo mutations without knowing
// the table's element type. Implementations must make every method
// idempotent against being invoked more than once for the same id,
// since a create-then-remove (or mutate-then-remove) within one
// transaction produces more than one undo entry for the same entity
// and rollback walks them in reverse.
type RollbackTarget interface {
	RollbackToExisting(entityID uint64, prior []byte)
	RollbackToNotExisting(entityID uint64)
	RollbackToWasPresent(entityID uint64, prior []byte)
}

// TableResolver maps a table id to its rollback capability set. The
// Database façade implements this; Manager.Rollback calls it once per
// undo entry, never caching the result across entries, since entries
// for different tables are interleaved in mutation order.
type TableResolver interface {
	ResolveTable(tableID uint64) (RollbackTarget, bool)
}

// Savepoint is an opaque marker returned by Manager.Savepoint, good for
// exactly one RollbackToSavepoint call. It generalizes the teacher's
// storage/transaction.go Savepoint (there keyed on undo-log length per
// shard map; here a single slice length since the log is a flat slice).
type Savepoint struct {
	len int
}

// Manager tracks the single active transaction's id and undo log. Only
// the current writer (and the Entity/Table mutation paths it invokes)
// ever touches a Manager; readers never do, matching spec.md §5.
type Manager struct {
	mu      sync.Mutex
	current uint64 // current (or, between transactions, last-used) txn id
	running bool
	entries []UndoEntry
}

// NewManager returns a Manager with current txn id 1; the first Begin
// advances it to 2, so transaction ids observed by callers start at 2.
func NewManager() *Manager {
	return &Manager{current: 1}
}

// Begin starts a new transaction. It is an error to call Begin while
// one is already running.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("txn: %w", txdberrors.ErrTransactionActive)
	}
	m.current++
	m.running = true
	m.entries = m.entries[:0]
	return nil
}

// Commit drops the undo log and ends the transaction.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("txn: commit: %w", txdberrors.ErrNoTransaction)
	}
	m.running = false
	m.entries = nil
	return nil
}

// Rollback walks the undo log in reverse insertion order, dispatching
// each entry to the table resolver, then ends the transaction. Reverse
// order is spec.md §9 open-question #1's resolution: with KindWasPresent
// entries in play (a removal can be followed, in log order, by nothing
// further touching that id, but a create can be followed by a removal
// of the very row it created) the two entries for one id must be undone
// in the opposite order they were recorded, or the final state is
// wrong. Forward iteration only happened to work in the source because
// it never recorded removals at all.
func (m *Manager) Rollback(resolver TableResolver) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("txn: rollback: %w", txdberrors.ErrNoTransaction)
	}
	entries := m.entries
	m.entries = nil
	m.running = false
	m.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		target, ok := resolver.ResolveTable(e.TableID)
		if !ok {
			panic(fmt.Sprintf("txn: %v: id %d — engine invariant violated", txdberrors.ErrUnknownTable, e.TableID))
		}
		switch e.Kind {
		case KindExisting:
			target.RollbackToExisting(e.EntityID, e.Prior)
		case KindNotExisting:
			target.RollbackToNotExisting(e.EntityID)
		case KindWasPresent:
			target.RollbackToWasPresent(e.EntityID, e.Prior)
		default:
			panic(fmt.Sprintf("txn: unknown undo entry kind %d", e.Kind))
		}
	}
	return nil
}

// Savepoint captures the current undo-log length for a later
// RollbackToSavepoint. Used by nested command logic that wants to
// discard part of its own work without failing the whole transaction.
func (m *Manager) Savepoint() Savepoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Savepoint{len: len(m.entries)}
}

// RollbackToSavepoint undoes every entry recorded since sp was taken,
// in reverse order, without ending the transaction.
func (m *Manager) RollbackToSavepoint(resolver TableResolver, sp Savepoint) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("txn: rollback-to-savepoint: %w", txdberrors.ErrNoTransaction)
	}
	if sp.len > len(m.entries) {
		m.mu.Unlock()
		return fmt.Errorf("txn: savepoint does not belong to the current transaction")
	}
	tail := append([]UndoEntry(nil), m.entries[sp.len:]...)
	m.entries = m.entries[:sp.len]
	m.mu.Unlock()

	for i := len(tail) - 1; i >= 0; i-- {
		e := tail[i]
		target, ok := resolver.ResolveTable(e.TableID)
		if !ok {
			panic(fmt.Sprintf("txn: %v: id %d — engine invariant violated", txdberrors.ErrUnknownTable, e.TableID))
		}
		switch e.Kind {
		case KindExisting:
			target.RollbackToExisting(e.EntityID, e.Prior)
		case KindNotExisting:
			target.RollbackToNotExisting(e.EntityID)
		case KindWasPresent:
			target.RollbackToWasPresent(e.EntityID, e.Prior)
		}
	}
	return nil
}

// IsRunning reports whether a transaction is currently active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CurrentTxnID returns the id of the running (or, if none is running,
// the most recently run) transaction.
func (m *Manager) CurrentTxnID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// NoteMutation is the sole undo-capture site for an existing entity's
// mutable access (spec.md §4.2). lastSnapshotTxnID is the entity's own
// last-snapshotted-at field; snapshot is called at most once, lazily,
// only the first time the entity is touched within the running
// transaction. Table.Mutate calls this before handing out exclusive
// access to the stored value.
func (m *Manager) NoteMutation(tableID, entityID uint64, lastSnapshotTxnID *uint64, snapshot func() []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	if *lastSnapshotTxnID < m.current {
		m.entries = append(m.entries, UndoEntry{
			Kind:     KindExisting,
			TableID:  tableID,
			EntityID: entityID,
			Prior:    snapshot(),
		})
		*lastSnapshotTxnID = m.current
	}
}

// NoteInsert appends a KindNotExisting entry for a freshly added
// entity, if a transaction is running. Table.Add calls this while
// holding the manager's view of IsRunning consistent with the insert.
func (m *Manager) NoteInsert(tableID, entityID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.entries = append(m.entries, UndoEntry{Kind: KindNotExisting, TableID: tableID, EntityID: entityID})
	}
}

// NoteRemove appends a KindWasPresent entry for a removed entity, if a
// transaction is running. snapshot is only invoked when needed.
func (m *Manager) NoteRemove(tableID, entityID uint64, snapshot func() []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.entries = append(m.entries, UndoEntry{
			Kind:     KindWasPresent,
			TableID:  tableID,
			EntityID: entityID,
			Prior:    snapshot(),
		})
	}
}
