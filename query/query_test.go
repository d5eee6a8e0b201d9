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

package query_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launix-de/txdb/query"
)

type fakeDB struct {
	mu    sync.RWMutex
	count int
}

func (d *fakeDB) RLock()   { d.mu.RLock() }
func (d *fakeDB) RUnlock() { d.mu.RUnlock() }

func TestReadDBExcludesWriter(t *testing.T) {
	db := &fakeDB{}
	eng := query.New[*fakeDB](db)

	guard := eng.ReadDB()
	var writerDone atomic.Bool
	go func() {
		db.mu.Lock()
		defer db.mu.Unlock()
		writerDone.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	if writerDone.Load() {
		t.Fatal("writer acquired exclusive lock while a read guard was held")
	}
	guard.Release()

	time.Sleep(20 * time.Millisecond)
	if !writerDone.Load() {
		t.Fatal("writer never proceeded after the read guard was released")
	}
}

func TestReadDBAllowsConcurrentReaders(t *testing.T) {
	db := &fakeDB{count: 7}
	eng := query.New[*fakeDB](db)

	g1 := eng.ReadDB()
	g2 := eng.ReadDB()
	if g1.DB().count != 7 || g2.DB().count != 7 {
		t.Fatal("concurrent readers did not observe the same state")
	}
	g1.Release()
	g2.Release()
}

func TestGuardDoubleReleasePanics(t *testing.T) {
	db := &fakeDB{}
	eng := query.New[*fakeDB](db)
	guard := eng.ReadDB()
	guard.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic releasing a guard twice")
		}
	}()
	guard.Release()
}
