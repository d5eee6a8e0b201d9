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

package table

import "github.com/cespare/xxhash/v2"

// StableID derives a table's 64-bit id from its declared name. This
// resolves spec.md §9 open-question #5: the source hashed table names
// with the standard library's default hasher, whose output is stable
// within a process but documented as unstable across library versions —
// fine for an in-process map key, fatal for a value baked into a journal
// that must still resolve after a library upgrade. xxhash is
// deterministic across processes, platforms, and versions, which is
// the only property that matters here.
func StableID(name string) uint64 {
	return xxhash.Sum64String(name)
}
