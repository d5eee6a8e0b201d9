package txn

import "testing"

type fakeTarget struct {
	existing    []uint64
	notExisting []uint64
	wasPresent  []uint64
	order       []string
}

func (f *fakeTarget) RollbackToExisting(id uint64, prior []byte) {
	f.existing = append(f.existing, id)
	f.order = append(f.order, "existing")
}
func (f *fakeTarget) RollbackToNotExisting(id uint64) {
	f.notExisting = append(f.notExisting, id)
	f.order = append(f.order, "notExisting")
}
func (f *fakeTarget) RollbackToWasPresent(id uint64, prior []byte) {
	f.wasPresent = append(f.wasPresent, id)
	f.order = append(f.order, "wasPresent")
}

type fakeResolver struct {
	targets map[uint64]RollbackTarget
}

func (r *fakeResolver) ResolveTable(tableID uint64) (RollbackTarget, bool) {
	t, ok := r.targets[tableID]
	return t, ok
}

func TestBeginCommitClearsLog(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("expected not running before Begin")
	}
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if got := m.CurrentTxnID(); got != 2 {
		t.Fatalf("expected first txn id 2, got %d", got)
	}
	var last uint64
	m.NoteMutation(1, 1, &last, func() []byte { return []byte("x") })
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
	if m.IsRunning() {
		t.Fatal("expected not running after commit")
	}
}

func TestBeginWhileRunningFails(t *testing.T) {
	m := NewManager()
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := m.Begin(); err == nil {
		t.Fatal("expected error re-entering begin")
	}
}

func TestOneSnapshotPerEntityPerTransaction(t *testing.T) {
	m := NewManager()
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	var last uint64
	calls := 0
	snap := func() []byte { calls++; return []byte("v") }
	m.NoteMutation(1, 42, &last, snap)
	m.NoteMutation(1, 42, &last, snap)
	m.NoteMutation(1, 42, &last, snap)
	if calls != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", calls)
	}
	if len(m.entries) != 1 {
		t.Fatalf("expected exactly one undo entry, got %d", len(m.entries))
	}
}

func TestRollbackReverseOrderCancelsCreateThenRemove(t *testing.T) {
	m := NewManager()
	target := &fakeTarget{}
	resolver := &fakeResolver{targets: map[uint64]RollbackTarget{7: target}}

	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	m.NoteInsert(7, 100)                                  // create
	m.NoteRemove(7, 100, func() []byte { return []byte{} }) // then remove it again

	if err := m.Rollback(resolver); err != nil {
		t.Fatal(err)
	}

	// reverse order: WasPresent (reinsert) undone first, then NotExisting
	// (remove) — net effect must be "never existed".
	if len(target.wasPresent) != 1 || target.wasPresent[0] != 100 {
		t.Fatalf("expected WasPresent rollback for id 100, got %v", target.wasPresent)
	}
	if len(target.notExisting) != 1 || target.notExisting[0] != 100 {
		t.Fatalf("expected NotExisting rollback for id 100, got %v", target.notExisting)
	}
	if len(target.order) != 2 || target.order[0] != "wasPresent" || target.order[1] != "notExisting" {
		t.Fatalf("expected rollback order [wasPresent notExisting], got %v", target.order)
	}
	if m.IsRunning() {
		t.Fatal("expected transaction to end after rollback")
	}
}

func TestRollbackUnknownTablePanics(t *testing.T) {
	m := NewManager()
	resolver := &fakeResolver{targets: map[uint64]RollbackTarget{}}
	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	m.NoteInsert(99, 1)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for unresolved table id")
		}
	}()
	m.Rollback(resolver)
}

func TestSavepointRollsBackOnlyTail(t *testing.T) {
	m := NewManager()
	target := &fakeTarget{}
	resolver := &fakeResolver{targets: map[uint64]RollbackTarget{1: target}}

	if err := m.Begin(); err != nil {
		t.Fatal(err)
	}
	m.NoteInsert(1, 1)
	sp := m.Savepoint()
	m.NoteInsert(1, 2)
	if err := m.RollbackToSavepoint(resolver, sp); err != nil {
		t.Fatal(err)
	}
	if len(target.notExisting) != 1 || target.notExisting[0] != 2 {
		t.Fatalf("expected only id 2 undone, got %v", target.notExisting)
	}
	if !m.IsRunning() {
		t.Fatal("expected transaction to remain active after savepoint rollback")
	}
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestMonotonicTxnIDsAcrossTransactions(t *testing.T) {
	m := NewManager()
	var ids []uint64
	for i := 0; i < 5; i++ {
		if err := m.Begin(); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.CurrentTxnID())
		if err := m.Commit(); err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("expected strictly increasing ids, got %v", ids)
		}
	}
}
