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

package command

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	txdberrors "github.com/launix-de/txdb/errors"
	"github.com/launix-de/txdb/journal"
	"github.com/launix-de/txdb/txn"
)

// Mode selects how Push drives a submitted command (spec.md §4.7).
type Mode int

const (
	// Synchronous runs a command inline, within the Push call.
	Synchronous Mode = iota
	// Asynchronous enqueues a command for the writer loop and returns
	// immediately; callers observe completion via Status or WaitFor.
	Asynchronous
)

// Status is a transaction's execution state (spec.md §3).
type Status int

const (
	NotExecuted Status = iota
	Completed
	Failed
)

func (s Status) String() string {
	switch s {
	case NotExecuted:
		return "NotExecuted"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Database is what Engine requires of the embedding application's
// database facade: exclusive-write locking plus the table-dispatch
// operation rollback needs. database.Database satisfies this directly.
type Database interface {
	Lock()
	Unlock()
	ResolveTable(tableID uint64) (txn.RollbackTarget, bool)
}

// Metrics holds plain operational counters (submitted/committed/failed
// commands; queue depth is reported by Engine.QueueDepth instead),
// generalizing the teacher's storage/dashboard.go without pulling in
// its HTTP surface, which is out of scope here.
type Metrics struct {
	Submitted atomic.Uint64
	Committed atomic.Uint64
	Failed    atomic.Uint64
}

type queuedCommand[D any] struct {
	txnID uint64
	cmd   *BoundCommand[D]
}

// Engine is the command engine (C7): it drains the journal on
// construction, then accepts submissions either inline (Synchronous) or
// through a FIFO writer loop (Asynchronous) that RunWriterLoop drives.
type Engine[D Database] struct {
	db  D
	dir *Directory[D]
	jr  journal.Journal
	mgr *txn.Manager

	mode Mode

	// submitMu serializes Push end to end: journal append, txn-id
	// assignment, and (in Asynchronous mode) the writer-queue enqueue
	// all happen while it is held, so that journal order, txn-id order,
	// and writer-queue order are the same total order regardless of how
	// many goroutines call Push concurrently. Without it, two
	// submitters can interleave between txn-id assignment and enqueue
	// and hand the writer loop ids out of order.
	submitMu sync.Mutex

	mu            sync.Mutex
	cond          *sync.Cond
	lastSubmitted uint64
	lastProcessed uint64
	failed        map[uint64]struct{}

	queue chan queuedCommand[D]

	replayedRecords int

	Metrics Metrics
}

// defaultQueueCapacity is the nominal writer-channel bound spec.md
// §4.7.3 names, used when NewEngine's caller does not need a different
// one. config.Settings.WriterQueueCapacity overrides it for callers
// that build their engine from a loaded configuration (see
// engine.StartWithSettings).
const defaultQueueCapacity = 100

// NewEngine constructs an Engine with the default writer-queue capacity
// (spec.md §4.7.3's nominal bound of 100). See NewEngineWithQueueCapacity
// to size the queue explicitly.
func NewEngine[D Database](db D, dir *Directory[D], jr journal.Journal, mgr *txn.Manager, mode Mode) (*Engine[D], error) {
	return NewEngineWithQueueCapacity[D](db, dir, jr, mgr, mode, defaultQueueCapacity)
}

// NewEngineWithQueueCapacity constructs an Engine, replaying jr's full
// contents against db before returning (spec.md §4.7.1). Replay asserts
// success: a replayed command that now returns an error is a fatal
// ReplayDivergence (schema or command-handler version skew), matching
// the source's `.expect(...)` on the replay path (lib.rs) — only an
// UnknownCommand name is a distinct fatal kind during replay.
//
// queueCapacity bounds the Asynchronous writer channel; it is ignored
// in Synchronous mode. A value <= 0 falls back to defaultQueueCapacity.
func NewEngineWithQueueCapacity[D Database](db D, dir *Directory[D], jr journal.Journal, mgr *txn.Manager, mode Mode, queueCapacity int) (*Engine[D], error) {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	e := &Engine[D]{
		db:     db,
		dir:    dir,
		jr:     jr,
		mgr:    mgr,
		mode:   mode,
		failed: make(map[uint64]struct{}),
	}
	e.cond = sync.NewCond(&e.mu)

	records, err := jr.Replay()
	if err != nil {
		return nil, fmt.Errorf("command: replaying journal: %w", err)
	}
	for rec := range records {
		e.replayOne(rec)
		e.replayedRecords++
	}
	e.lastSubmitted = e.lastProcessed
	log.Printf("command: replay complete: %d record(s) replayed, last processed txn %d", e.replayedRecords, e.lastProcessed)

	if mode == Asynchronous {
		e.queue = make(chan queuedCommand[D], queueCapacity)
	}
	return e, nil
}

// ReplayedRecords reports how many journal records were replayed during
// construction. The embedding application's engine wiring uses this to
// decide whether to run its seed function (spec.md §9 open question 3:
// only when the journal replayed zero records).
func (e *Engine[D]) ReplayedRecords() int { return e.replayedRecords }

func (e *Engine[D]) replayOne(rec journal.Record) {
	desc, ok := e.dir.resolve(rec.Name)
	if !ok {
		panic(fmt.Sprintf("command: replay: %v: %q", txdberrors.ErrUnknownCommand, rec.Name))
	}
	cmd := desc.CreateFromSerialized(rec.Params)
	txnID := e.lastProcessed + 1
	if runErr := e.runTransaction(txnID, cmd); runErr != nil {
		panic(fmt.Sprintf("command: replay: %v: txn %d (%s) diverged: %v", txdberrors.ErrReplayDivergence, txnID, cmd.Name(), runErr))
	}
}

// Push submits cmd: it is journaled before it is allowed to run, then
// executed inline (Synchronous) or handed to the writer loop
// (Asynchronous). The returned id is the position at which cmd will
// execute (spec.md §4.7.2). Push may be called concurrently from any
// number of goroutines in either mode: submitMu holds append, txn-id
// assignment, and enqueue together as one step, so the order cmd's are
// journaled in, the order their txn ids increase in, and (in
// Asynchronous mode) the order the writer loop dequeues them in are
// always the same order, matching spec.md §4.7.2/§5's linearization
// guarantee "across submitters".
func (e *Engine[D]) Push(cmd *BoundCommand[D]) uint64 {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	rec := journal.Record{Name: cmd.Name(), Params: cmd.SerializedParameters()}
	if err := e.jr.Append(rec); err != nil {
		panic(fmt.Sprintf("command: %v: %v", txdberrors.ErrJournalIO, err))
	}

	e.mu.Lock()
	e.lastSubmitted++
	txnID := e.lastSubmitted
	e.mu.Unlock()
	e.Metrics.Submitted.Add(1)

	switch e.mode {
	case Synchronous:
		e.runTransaction(txnID, cmd)
	case Asynchronous:
		e.queue <- queuedCommand[D]{txnID: txnID, cmd: cmd}
	}
	return txnID
}

// runTransaction executes cmd as transaction txnID under the database's
// exclusive write lock: begin, run, then commit on success or rollback
// on error. It is the sole execution path shared by replay, synchronous
// Push, and the writer loop, so status bookkeeping only happens here.
// It returns the handler's error, if any, so replayOne can treat it as
// a fatal ReplayDivergence.
//
// lastProcessed, the failed set, and the broadcast are all published
// together in one e.mu critical section, taken only after commit/
// rollback has already happened: publishing the bump any earlier (the
// source's own mistake, corrected here) would let a concurrent Status
// or WaitFor observe "processed" before the transaction's outcome —
// commit vs. rollback — is actually settled.
func (e *Engine[D]) runTransaction(txnID uint64, cmd *BoundCommand[D]) error {
	e.db.Lock()
	defer e.db.Unlock()

	if err := e.mgr.Begin(); err != nil {
		panic(fmt.Sprintf("command: %v", err))
	}

	runErr := cmd.Run(e.db)
	if runErr != nil {
		if err := e.mgr.Rollback(e.db); err != nil {
			panic(fmt.Sprintf("command: %v", err))
		}
		e.Metrics.Failed.Add(1)
		log.Printf("command: txn %d %q (%s) rolled back: %v", txnID, cmd.Name(), cmd.CorrelationID(), runErr)
	} else {
		if err := e.mgr.Commit(); err != nil {
			panic(fmt.Sprintf("command: %v", err))
		}
		e.Metrics.Committed.Add(1)
		log.Printf("command: txn %d %q (%s) committed", txnID, cmd.Name(), cmd.CorrelationID())
	}

	e.mu.Lock()
	e.lastProcessed = txnID
	if runErr != nil {
		e.failed[txnID] = struct{}{}
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	return runErr
}

// RunWriterLoop is the async writer task (spec.md §4.7.3): it consumes
// queued commands strictly in FIFO submission order until ctx is
// canceled or Shutdown closes the queue. Callers should supervise it
// with an errgroup (see package engine) rather than a bare goroutine.
func (e *Engine[D]) RunWriterLoop(ctx context.Context) error {
	if e.queue == nil {
		return fmt.Errorf("command: RunWriterLoop called on a Synchronous engine")
	}
	log.Print("command: writer loop starting")
	for {
		select {
		case <-ctx.Done():
			log.Print("command: writer loop stopping: context canceled")
			return nil
		case qc, ok := <-e.queue:
			if !ok {
				log.Print("command: writer loop stopping: queue closed")
				return nil
			}
			e.runTransaction(qc.txnID, qc.cmd)
		}
	}
}

// Shutdown closes the writer queue, which drains to empty and ends
// RunWriterLoop (spec.md §5's cancellation model). A no-op in
// Synchronous mode.
func (e *Engine[D]) Shutdown() {
	if e.queue != nil {
		close(e.queue)
	}
}

// Status reports txnID's execution state (spec.md §4.7.4).
func (e *Engine[D]) Status(txnID uint64) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	if txnID > e.lastProcessed {
		return NotExecuted
	}
	if _, failed := e.failed[txnID]; failed {
		return Failed
	}
	return Completed
}

// WaitFor blocks until txnID has been processed. Spurious wakeups are
// tolerated: the wait condition is rechecked in a loop.
func (e *Engine[D]) WaitFor(txnID uint64) {
	e.cond.L.Lock()
	defer e.cond.L.Unlock()
	for txnID > e.lastProcessed {
		e.cond.Wait()
	}
}

// LastSubmittedTxnID returns the id of the most recently submitted
// transaction (or, before any submission, the id replay left off at).
func (e *Engine[D]) LastSubmittedTxnID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSubmitted
}

// LastProcessedTxnID returns the id of the most recently processed
// transaction.
func (e *Engine[D]) LastProcessedTxnID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastProcessed
}

// QueueDepth reports how many submitted commands are waiting for the
// writer loop to process them. Always 0 in Synchronous mode.
func (e *Engine[D]) QueueDepth() int {
	return len(e.queue)
}
