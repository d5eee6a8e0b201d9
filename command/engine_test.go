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

package command_test

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/launix-de/txdb/command"
	"github.com/launix-de/txdb/database"
	"github.com/launix-de/txdb/journal"
	"github.com/launix-de/txdb/table"
	"github.com/launix-de/txdb/txn"
)

// counterDB is a minimal test Database: one table of int counters, plus
// a Log table used only to observe submission/execution ordering. Every
// row is created through the "create" command, not Table.Add directly,
// so journal replay reproduces it identically.
type counterDB struct {
	*database.Database
	Counters *table.Table[int]
	Log      *table.Table[int]
}

func newCounterDB(mgr *txn.Manager) *counterDB {
	db := database.New()
	log := table.New[int]("log", mgr, intCodec{})
	counters := table.New[int]("counters", mgr, intCodec{})
	db.Register(counters)
	db.Register(log)
	return &counterDB{Database: db, Counters: counters, Log: log}
}

type intCodec struct{}

func (intCodec) Encode(v int) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}
func (intCodec) Decode(b []byte) int { return int(binary.LittleEndian.Uint64(b)) }

type emptyParams struct{}
type emptyCodec struct{}

func (emptyCodec) Encode(emptyParams) []byte { return nil }
func (emptyCodec) Decode([]byte) emptyParams { return emptyParams{} }

func createHandler(db *counterDB, _ emptyParams) error {
	db.Counters.Add(0)
	return nil
}

type addParams struct {
	ID    uint64
	Delta int
}

type addCodec struct{}

func (addCodec) Encode(p addParams) []byte {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:8], p.ID)
	binary.LittleEndian.PutUint64(b[8:16], uint64(int64(p.Delta)))
	return b[:]
}
func (addCodec) Decode(b []byte) addParams {
	return addParams{
		ID:    binary.LittleEndian.Uint64(b[0:8]),
		Delta: int(int64(binary.LittleEndian.Uint64(b[8:16]))),
	}
}

func addHandler(db *counterDB, p addParams) error {
	ok := db.Counters.Mutate(p.ID, func(v *int) { *v += p.Delta })
	if !ok {
		return errors.New("no such counter")
	}
	return nil
}

// appendParams/appendHandler exist solely to observe submission and
// execution order: each append command records one value into the Log
// table, in execution order, with no dependency on its own value —
// letting a test compare "which txn id was this goroutine assigned" to
// "where did its value land in Log" without the two ever being
// entangled by the command's own logic.
type appendParams struct {
	Value int
}
type appendCodec struct{}

func (appendCodec) Encode(p appendParams) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(int64(p.Value)))
	return b[:]
}
func (appendCodec) Decode(b []byte) appendParams {
	return appendParams{Value: int(int64(binary.LittleEndian.Uint64(b)))}
}

func appendHandler(db *counterDB, p appendParams) error {
	db.Log.Add(p.Value)
	return nil
}

func newTestDirectory() *command.Directory[*counterDB] {
	dir := command.NewDirectory[*counterDB]()
	command.Register(dir, command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler))
	command.Register(dir, command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler))
	command.Register(dir, command.NewDescriptor[*counterDB]("append", appendCodec{}, appendHandler))
	return dir
}

func newTestEngine(t *testing.T, jr journal.Journal, mode command.Mode) (*command.Engine[*counterDB], *counterDB) {
	t.Helper()
	mgr := txn.NewManager()
	db := newCounterDB(mgr)
	dir := newTestDirectory()
	eng, err := command.NewEngine[*counterDB](db, dir, jr, mgr, mode)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng, db
}

func TestPushSynchronousCommit(t *testing.T) {
	eng, db := newTestEngine(t, journal.NewMemJournal(), command.Synchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	eng.Push(createDesc.Create(emptyParams{}))
	id := uint64(1)

	addDesc := command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler)
	txnID := eng.Push(addDesc.Create(addParams{ID: id, Delta: 5}))

	if got := eng.Status(txnID); got != command.Completed {
		t.Fatalf("status = %v, want Completed", got)
	}
	v, _ := db.Counters.Get(id)
	if v != 5 {
		t.Fatalf("counter = %d, want 5", v)
	}
}

func TestPushSynchronousRollbackOnError(t *testing.T) {
	eng, db := newTestEngine(t, journal.NewMemJournal(), command.Synchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	eng.Push(createDesc.Create(emptyParams{}))
	id := uint64(1)
	addDesc := command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler)
	eng.Push(addDesc.Create(addParams{ID: id, Delta: 10}))

	badID := id + 999
	txnID := eng.Push(addDesc.Create(addParams{ID: badID, Delta: 5}))

	if got := eng.Status(txnID); got != command.Failed {
		t.Fatalf("status = %v, want Failed", got)
	}
	v, _ := db.Counters.Get(id)
	if v != 10 {
		t.Fatalf("counter = %d, want unchanged 10", v)
	}
}

func TestMonotonicTxnIDs(t *testing.T) {
	eng, _ := newTestEngine(t, journal.NewMemJournal(), command.Synchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	eng.Push(createDesc.Create(emptyParams{}))
	id := uint64(1)
	addDesc := command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler)

	var last uint64
	for i := 0; i < 10; i++ {
		txnID := eng.Push(addDesc.Create(addParams{ID: id, Delta: 1}))
		if txnID <= last {
			t.Fatalf("txn id %d did not increase past %d", txnID, last)
		}
		last = txnID
	}
}

func TestReplayEquivalence(t *testing.T) {
	jr := journal.NewMemJournal()

	eng1, db1 := newTestEngine(t, jr, command.Synchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	eng1.Push(createDesc.Create(emptyParams{}))
	id := uint64(1)
	addDesc := command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler)
	for i := 0; i < 10; i++ {
		eng1.Push(addDesc.Create(addParams{ID: id, Delta: 1}))
	}
	if eng1.LastProcessedTxnID() != 11 {
		t.Fatalf("last processed = %d, want 11", eng1.LastProcessedTxnID())
	}
	v1, _ := db1.Counters.Get(id)
	if v1 != 10 {
		t.Fatalf("pre-restart counter = %d, want 10", v1)
	}

	eng2, db2 := newTestEngine(t, jr, command.Synchronous)
	if eng2.ReplayedRecords() != 11 {
		t.Fatalf("replayed %d records, want 11", eng2.ReplayedRecords())
	}
	if eng2.LastProcessedTxnID() != 11 {
		t.Fatalf("last processed after replay = %d, want 11", eng2.LastProcessedTxnID())
	}
	v2, _ := db2.Counters.Get(id)
	if v2 != 10 {
		t.Fatalf("replayed counter = %d, want 10", v2)
	}

	next := eng2.Push(addDesc.Create(addParams{ID: id, Delta: 1}))
	if next != 12 {
		t.Fatalf("next txn id = %d, want 12", next)
	}
}

func TestAsyncOrderingAndWaitFor(t *testing.T) {
	eng, db := newTestEngine(t, journal.NewMemJournal(), command.Asynchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	eng.Push(createDesc.Create(emptyParams{}))
	id := uint64(1)
	addDesc := command.NewDescriptor[*counterDB]("add", addCodec{}, addHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.RunWriterLoop(ctx)
	}()

	eng.WaitFor(1) // ensure "create" has run before the adds race ahead of it

	var last uint64
	for i := 0; i < 100; i++ {
		last = eng.Push(addDesc.Create(addParams{ID: id, Delta: 1}))
	}
	eng.WaitFor(last)

	for i := uint64(1); i <= last; i++ {
		if got := eng.Status(i); got != command.Completed {
			t.Fatalf("txn %d status = %v, want Completed", i, got)
		}
	}
	v, _ := db.Counters.Get(id)
	if v != 100 {
		t.Fatalf("counter = %d, want 100", v)
	}

	eng.Shutdown()
	wg.Wait()
}

// TestConcurrentPushLinearizesAcrossSubmitters pushes from many
// goroutines at once and checks that the txn id Push returns to each
// goroutine always matches the position its value lands at in Log:
// submitMu holds journal append, txn-id assignment, and writer-queue
// enqueue together as one step, so the order commands are journaled in,
// assigned ids in, and executed in never diverge, regardless of how
// many callers race into Push (spec.md §4.7.2/§5: commands linearize
// "across submitters").
func TestConcurrentPushLinearizesAcrossSubmitters(t *testing.T) {
	eng, db := newTestEngine(t, journal.NewMemJournal(), command.Asynchronous)
	appendDesc := command.NewDescriptor[*counterDB]("append", appendCodec{}, appendHandler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.RunWriterLoop(ctx)
	}()

	const n = 64
	txnIDs := make([]uint64, n)
	var submitWG sync.WaitGroup
	submitWG.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer submitWG.Done()
			txnIDs[i] = eng.Push(appendDesc.Create(appendParams{Value: i}))
		}()
	}
	submitWG.Wait()

	var maxID uint64
	for _, id := range txnIDs {
		if id > maxID {
			maxID = id
		}
	}
	eng.WaitFor(maxID)

	valueByTxnID := make(map[uint64]int, n)
	for goroutine, id := range txnIDs {
		valueByTxnID[id] = goroutine
	}

	var entityID uint64
	db.Log.Iter(func(id uint64, v int) bool {
		entityID++
		if id != entityID {
			t.Fatalf("Log has a hole: expected entity id %d, found %d", entityID, id)
		}
		want, ok := valueByTxnID[entityID]
		if !ok {
			t.Fatalf("no goroutine was assigned txn id %d, but Log entity %d exists", entityID, entityID)
		}
		if v != want {
			t.Fatalf("Log entity %d = %d, want %d (the value pushed by whichever goroutine was assigned txn id %d) — submission order diverged from execution order", entityID, v, want, entityID)
		}
		return true
	})
	if entityID != uint64(n) {
		t.Fatalf("Log has %d entries, want %d", entityID, n)
	}

	eng.Shutdown()
	wg.Wait()
}

func TestUnknownCommandIsFatalDuringReplay(t *testing.T) {
	jr := journal.NewMemJournal()
	if err := jr.Append(journal.Record{Name: "no-such-command", Params: nil}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an unresolvable replayed command name")
		}
	}()
	mgr := txn.NewManager()
	db := newCounterDB(mgr)
	dir := newTestDirectory()
	command.NewEngine[*counterDB](db, dir, jr, mgr, command.Synchronous)
}

func TestWaitForDoesNotBlockPastDeadline(t *testing.T) {
	eng, _ := newTestEngine(t, journal.NewMemJournal(), command.Synchronous)
	createDesc := command.NewDescriptor[*counterDB]("create", emptyCodec{}, createHandler)
	txnID := eng.Push(createDesc.Create(emptyParams{}))

	done := make(chan struct{})
	go func() {
		eng.WaitFor(txnID)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor blocked on an already-processed transaction")
	}
}
