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

// Package database implements the Database façade (spec.md §4.4): the
// fixed reader/writer lock around an embedding application's declared
// tables, plus the one dynamic, type-erased operation rollback needs —
// dispatching a table_id to its rollback capability set. It generalizes
// the teacher's storage/database.go, which plays the same role (a
// schemalock-guarded map of tables) for memcp's column-store tables.
//
// Application code does not store typed tables here: Go has no way to
// hold a map of Table[T] for varying T behind one value. Instead an
// embedding application declares its own struct with *table.Table[X]
// fields and an embedded *Database, registering each table with
// Register at construction. The Database only ever sees tables through
// the type-erased TableBase interface.
package database

import (
	"sync"

	"github.com/launix-de/txdb/txn"
)

// TableBase is the rollback-facing capability set every table exposes
// to its owning Database, plus enough identity for dispatch.
type TableBase interface {
	txn.RollbackTarget
	TableID() uint64
}

// Database is a fixed record of named tables declared by an embedding
// application, reachable only for rollback dispatch and for the
// exclusive/shared locking spec.md §5 requires between the single
// writer and any number of concurrent readers.
type Database struct {
	mu sync.RWMutex

	// tablesMu guards only the dispatch map, separately from mu, so that
	// ResolveTable can be called by a rollback running under Lock.
	tablesMu sync.RWMutex
	tables   map[uint64]TableBase
}

// New returns an empty Database. Call Register once per declared table
// before starting the command engine.
func New() *Database {
	return &Database{tables: make(map[uint64]TableBase)}
}

// Register adds t to the database's dispatch table. Panics if another
// table with the same id (equivalently, the same declared name) is
// already registered — a colliding table_id is a schema-declaration bug
// that must be caught at startup, not papered over.
func (db *Database) Register(t TableBase) {
	db.tablesMu.Lock()
	defer db.tablesMu.Unlock()
	if _, exists := db.tables[t.TableID()]; exists {
		panic("database: duplicate table id — two tables hash to the same stable id")
	}
	db.tables[t.TableID()] = t
}

// ResolveTable implements txn.TableResolver: it is the "get_table_mut"
// dynamic operation spec.md §4.4 specifies. An id with no registered
// table is an engine bug (an undo entry that can never have been
// produced by this process), so callers that get ok==false should
// treat it as fatal rather than recoverable — txn.Manager.Rollback
// already does.
func (db *Database) ResolveTable(tableID uint64) (txn.RollbackTarget, bool) {
	db.tablesMu.RLock()
	defer db.tablesMu.RUnlock()
	t, ok := db.tables[tableID]
	return t, ok
}

// Lock acquires exclusive write access. The single writer (command
// engine) holds this for the entire duration of a command handler,
// including any rollback it triggers, so readers never observe
// intermediate state (spec.md §4.8).
func (db *Database) Lock() { db.mu.Lock() }

// Unlock releases exclusive write access.
func (db *Database) Unlock() { db.mu.Unlock() }

// RLock acquires shared read access. Any number of readers may hold it
// concurrently; it excludes the writer and vice versa.
func (db *Database) RLock() { db.mu.RLock() }

// RUnlock releases shared read access.
func (db *Database) RUnlock() { db.mu.RUnlock() }

// Facade is what the command and query engines require of an
// embedding application's database type: the locking and rollback-
// dispatch surface a struct gets for free by embedding *Database.
type Facade interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
	ResolveTable(tableID uint64) (txn.RollbackTarget, bool)
}
