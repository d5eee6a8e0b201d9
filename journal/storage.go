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

package journal

import (
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Storage is the pluggable durable-object backend a FileJournal writes
// its rotated segments through. It generalizes the teacher's
// PersistenceEngine (storage/persistence.go): there, per-shard schema/
// column/log objects; here, one family of named segment blobs making
// up the single journal "transactions.bin" spec.md §6 names.
type Storage interface {
	// OpenAppend opens segment for appending; it is created if absent.
	// Called for the current (last, still-growing) segment and for the
	// compressed copy written when a segment is compressed.
	OpenAppend(segment string) (io.WriteCloser, error)
	// OpenRead opens segment for sequential reading.
	OpenRead(segment string) (io.ReadCloser, error)
	// List returns every segment name, sorted oldest-first.
	List() ([]string, error)
	// Remove deletes segment. Used only once a segment has been
	// superseded by its compressed form (at rotation, and by
	// ArchiveColdSegment).
	Remove(segment string) error
}

// LocalStorage is the default Storage: a directory of plain files, one
// per segment, matching spec.md §6's "single file in a caller-chosen
// directory" baseline (segmented here for rotation, §3 of SPEC_FULL.md).
type LocalStorage struct {
	Dir string
}

// NewLocalStorage returns a LocalStorage rooted at dir, creating it if
// it does not already exist.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &LocalStorage{Dir: dir}, nil
}

func (s *LocalStorage) path(segment string) string {
	return filepath.Join(s.Dir, segment)
}

func (s *LocalStorage) OpenAppend(segment string) (io.WriteCloser, error) {
	return os.OpenFile(s.path(segment), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

func (s *LocalStorage) OpenRead(segment string) (io.ReadCloser, error) {
	return os.Open(s.path(segment))
}

func (s *LocalStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *LocalStorage) Remove(segment string) error {
	return os.Remove(s.path(segment))
}

var _ Storage = (*LocalStorage)(nil)
