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

// Package journal implements the transaction journal (spec.md §4.6/§6):
// an append-only, length-prefixed record stream that is the durability
// and replay source for the command engine. It generalizes the
// teacher's storage/persistence.go PersistenceEngine/PersistenceLogfile
// split — there, one logfile per shard holding column mutations; here,
// one logfile for the whole database holding submitted commands —
// behind the same idea of a pluggable Storage backend (file, S3, Ceph).
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	txdberrors "github.com/launix-de/txdb/errors"
)

// Record is one submitted command as it is written to and read back
// from the journal.
type Record struct {
	Name   string
	Params []byte
}

// Journal is the durability and replay source for the command engine.
type Journal interface {
	// Append durably records rec before the command it describes is
	// allowed to execute. A non-nil error here is fatal (§7
	// JournalIOError): a submission that appears to succeed without
	// being durable would violate the engine's ACID contract.
	Append(rec Record) error
	// Replay streams every previously-appended record, in append
	// order, for startup recovery. The returned channel is closed
	// after the last record (or immediately, for an empty journal).
	Replay() (<-chan Record, error)
	// Close flushes and releases any underlying resources.
	Close() error
}

// encode writes one length-prefixed record: u64 name length, name
// bytes, u64 params length, params bytes — all little-endian, per
// spec.md §6.
func encode(w io.Writer, rec Record) error {
	var lenbuf [8]byte
	binary.LittleEndian.PutUint64(lenbuf[:], uint64(len(rec.Name)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return err
	}
	if _, err := io.WriteString(w, rec.Name); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(lenbuf[:], uint64(len(rec.Params)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return err
	}
	if len(rec.Params) > 0 {
		if _, err := w.Write(rec.Params); err != nil {
			return err
		}
	}
	return nil
}

// decodeAll reads every record from r until EOF, sending each on out.
// A short read in the middle of a record (a segment truncated by a
// crash between Append's partial writes) is treated the same as a
// clean EOF: whatever was durably flushed before the crash is the
// durable journal.
func decodeAll(r io.Reader, out chan<- Record) error {
	br := bufio.NewReader(r)
	var lenbuf [8]byte
	for {
		if _, err := io.ReadFull(br, lenbuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("%w: reading record name length: %v", txdberrors.ErrJournalIO, err)
		}
		nameLen := binary.LittleEndian.Uint64(lenbuf[:])
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("%w: reading record name: %v", txdberrors.ErrJournalIO, err)
		}
		if _, err := io.ReadFull(br, lenbuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("%w: reading record params length: %v", txdberrors.ErrJournalIO, err)
		}
		paramsLen := binary.LittleEndian.Uint64(lenbuf[:])
		params := make([]byte, paramsLen)
		if _, err := io.ReadFull(br, params); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("%w: reading record params: %v", txdberrors.ErrJournalIO, err)
		}
		out <- Record{Name: string(name), Params: params}
	}
}

// NullJournal discards every write and always replays empty. It is the
// test/ephemeral-database double spec.md §4.6 specifies.
type NullJournal struct{}

func (NullJournal) Append(Record) error { return nil }
func (NullJournal) Replay() (<-chan Record, error) {
	ch := make(chan Record)
	close(ch)
	return ch, nil
}
func (NullJournal) Close() error { return nil }

var _ Journal = NullJournal{}

// memJournal is an in-memory Journal, useful for tests that want real
// append/replay semantics without touching a filesystem.
type memJournal struct {
	mu      sync.Mutex
	records []Record
}

// NewMemJournal returns a Journal backed by an in-process slice.
func NewMemJournal() Journal { return &memJournal{} }

func (j *memJournal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := Record{Name: rec.Name, Params: append([]byte(nil), rec.Params...)}
	j.records = append(j.records, cp)
	return nil
}

func (j *memJournal) Replay() (<-chan Record, error) {
	j.mu.Lock()
	snapshot := append([]Record(nil), j.records...)
	j.mu.Unlock()
	ch := make(chan Record, len(snapshot))
	for _, r := range snapshot {
		ch <- r
	}
	close(ch)
	return ch, nil
}

func (j *memJournal) Close() error { return nil }

var _ Journal = (*memJournal)(nil)
