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

// Package query implements the query engine (spec.md §4.8, C8): a
// read-only handle onto the database that any number of readers may
// hold concurrently, excluding the single writer and vice versa.
package query

// ReadLocker is what Engine requires of the embedding application's
// database facade: shared read locking. database.Database satisfies
// this directly.
type ReadLocker interface {
	RLock()
	RUnlock()
}

// Engine is the query engine: it hands out a Guard over db, never
// mutating it itself.
type Engine[D ReadLocker] struct {
	db D
}

// New returns a query engine over db.
func New[D ReadLocker](db D) *Engine[D] {
	return &Engine[D]{db: db}
}

// Guard is a shared read handle on a database. While held, the single
// writer cannot acquire its exclusive lock, so every read through DB
// observes a consistent, fully-committed snapshot — never a
// transaction's intermediate state (spec.md §4.8). Release exactly
// once, typically via defer immediately after ReadDB returns.
type Guard[D any] struct {
	db       D
	released bool
	unlock   func()
}

// DB returns the guarded database. Valid only before Release is called.
func (g *Guard[D]) DB() D { return g.db }

// Release gives up the shared read lock. Calling it more than once
// panics: that would indicate a double-unlock bug at the call site.
func (g *Guard[D]) Release() {
	if g.released {
		panic("query: guard released twice")
	}
	g.released = true
	g.unlock()
}

// ReadDB acquires a shared read guard over the database (spec.md
// §4.8's read_db). Callers must call Release on the returned guard
// exactly once.
func (e *Engine[D]) ReadDB() *Guard[D] {
	e.db.RLock()
	return &Guard[D]{db: e.db, unlock: e.db.RUnlock}
}
