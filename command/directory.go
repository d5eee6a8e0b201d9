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

import "sync"

// Directory is the name -> descriptor registry spec.md §4.5 specifies.
// Every journaled command name must resolve here; an embedding
// application registers each command once, at startup, before the
// engine replays the journal.
type Directory[D any] struct {
	mu          sync.RWMutex
	descriptors map[string]descriptor[D]
}

// NewDirectory returns an empty command directory.
func NewDirectory[D any]() *Directory[D] {
	return &Directory[D]{descriptors: make(map[string]descriptor[D])}
}

// Register adds desc to dir under its name. A package-level function,
// not a method, because it introduces the parameter type P that dir's
// own type does not carry — Go methods cannot add type parameters
// beyond their receiver's. Panics on a duplicate name: two commands
// sharing a name is a declaration bug that must surface at startup.
func Register[D any, P any](dir *Directory[D], desc *Descriptor[D, P]) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	if _, exists := dir.descriptors[desc.Name()]; exists {
		panic("command: duplicate command name " + desc.Name())
	}
	dir.descriptors[desc.Name()] = desc
}

// resolve looks up a command by name, as journal replay and async
// dispatch both require.
func (dir *Directory[D]) resolve(name string) (descriptor[D], bool) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()
	d, ok := dir.descriptors[name]
	return d, ok
}
