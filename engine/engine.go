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

// Package engine wires the transaction manager, command engine, and
// query engine into the single entry point an embedding application
// calls to stand up a database (spec.md §6, Engine::start). It
// generalizes the teacher's storage/database.go CreateDatabase and
// storage/settings.go's onexit.Register shutdown-hook pattern.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dc0d/onexit"
	"golang.org/x/sync/errgroup"

	"github.com/launix-de/txdb/command"
	"github.com/launix-de/txdb/config"
	"github.com/launix-de/txdb/journal"
	"github.com/launix-de/txdb/query"
	"github.com/launix-de/txdb/txn"
)

// Database is the combined capability set Start requires of an
// embedding application's database facade: exclusive write locking and
// table dispatch for the command engine, shared read locking for the
// query engine. database.Database satisfies this directly.
type Database interface {
	command.Database
	query.ReadLocker
}

// Engine bundles the constructed query and command engines together
// with the supervised async writer loop, if any.
type Engine[D Database] struct {
	Query   *query.Engine[D]
	Command *command.Engine[D]

	cancel       context.CancelFunc
	group        *errgroup.Group
	shutdownOnce sync.Once
	shutdownErr  error
}

// Start is the engine entry point spec.md §6 names: it builds the
// command engine (which replays jr's full contents against db), runs
// initFn only if the journal replayed zero records (spec.md §9 open
// question 3 — a fresh database gets seeded exactly once, never
// double-seeded on restart), and, in Asynchronous mode, launches the
// writer loop under an errgroup whose shutdown is registered with
// onexit so it drains cleanly on process exit.
func Start[D Database](db D, dir *command.Directory[D], jr journal.Journal, mgr *txn.Manager, mode command.Mode, initFn func(D)) (*Engine[D], error) {
	cmdEngine, err := command.NewEngine[D](db, dir, jr, mgr, mode)
	if err != nil {
		return nil, err
	}
	return finish(db, mode, cmdEngine, initFn)
}

// StartWithSettings is Start driven by a loaded config.Settings instead
// of a caller-assembled Journal and Mode: settings.JournalDir selects a
// file-backed journal.FileJournal over journal.LocalStorage, rotated at
// settings.RotateThresholdBytes() (an empty JournalDir falls back to an
// ephemeral journal.NullJournal, matching spec.md §4.6's test/ephemeral
// double); settings.Async selects Asynchronous mode; and
// settings.WriterQueueCapacity sizes the writer channel, generalizing
// the teacher's storage.SettingsT-driven bootstrap (storage/settings.go)
// to this engine's own tunables.
func StartWithSettings[D Database](db D, dir *command.Directory[D], settings config.Settings, mgr *txn.Manager, initFn func(D)) (*Engine[D], error) {
	jr, err := journalFromSettings(settings)
	if err != nil {
		return nil, err
	}

	mode := command.Synchronous
	if settings.Async {
		mode = command.Asynchronous
	}

	cmdEngine, err := command.NewEngineWithQueueCapacity[D](db, dir, jr, mgr, mode, settings.WriterQueueCapacity)
	if err != nil {
		return nil, err
	}
	return finish(db, mode, cmdEngine, initFn)
}

// journalFromSettings builds the Journal settings.JournalDir names. An
// empty JournalDir means "no durability" — the ephemeral NullJournal —
// rather than an error, so tests and throwaway databases can use
// config.Settings without carving out a directory.
func journalFromSettings(settings config.Settings) (journal.Journal, error) {
	if settings.JournalDir == "" {
		return journal.NullJournal{}, nil
	}
	storage, err := journal.NewLocalStorage(settings.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("engine: creating journal storage at %s: %w", settings.JournalDir, err)
	}
	jr, err := journal.NewFileJournal(storage, settings.RotateThresholdBytes())
	if err != nil {
		return nil, fmt.Errorf("engine: opening file journal at %s: %w", settings.JournalDir, err)
	}
	return jr, nil
}

// finish runs initFn if replay seeded nothing, then wraps cmdEngine in
// a query engine and, in Asynchronous mode, launches and supervises its
// writer loop. Shared by Start and StartWithSettings so the two
// construction paths can never drift on writer-loop/shutdown wiring.
func finish[D Database](db D, mode command.Mode, cmdEngine *command.Engine[D], initFn func(D)) (*Engine[D], error) {
	if cmdEngine.ReplayedRecords() == 0 && initFn != nil {
		db.Lock()
		initFn(db)
		db.Unlock()
	}

	e := &Engine[D]{
		Query:   query.New[D](db),
		Command: cmdEngine,
	}

	if mode == command.Asynchronous {
		ctx, cancel := context.WithCancel(context.Background())
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return cmdEngine.RunWriterLoop(gctx) })
		e.cancel = cancel
		e.group = g

		onexit.Register(func() {
			e.Shutdown()
		})
	}

	return e, nil
}

// Shutdown closes the writer queue, waits for the writer loop to drain
// and exit, and cancels its context. A no-op in Synchronous mode, and
// safe to call more than once — later calls return the first call's
// result.
func (e *Engine[D]) Shutdown() error {
	if e.group == nil {
		return nil
	}
	e.shutdownOnce.Do(func() {
		e.Command.Shutdown()
		e.shutdownErr = e.group.Wait()
		e.cancel()
	})
	return e.shutdownErr
}
