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

// Package command implements the command directory and engine (spec.md
// §4.5/§4.7, C6/C7): a name -> descriptor registry, and the engine that
// turns a submitted command into a journaled, executed, status-tracked
// transaction. D is the embedding application's database facade type
// (typically a struct embedding *database.Database); P is one command's
// parameter type.
package command

import "github.com/google/uuid"

// Codec serializes a command's parameter value. Embedding applications
// supply one per command, mirroring table.Codec's role for row values.
type Codec[P any] interface {
	Encode(P) []byte
	Decode([]byte) P
}

// BoundCommand is an executable binding of a command name, its live and
// serialized parameters, and the handler closure — type-erased over P
// so a Directory[D] can hold bindings for many different parameter
// types. Construct one via Descriptor.Create or
// Descriptor.CreateFromSerialized.
type BoundCommand[D any] struct {
	name          string
	params        []byte
	correlationID uuid.UUID
	run           func(D) error
}

// Name returns the command's registered name.
func (c *BoundCommand[D]) Name() string { return c.name }

// SerializedParameters returns the encoded parameter bytes, exactly as
// they are (or will be) written to the journal.
func (c *BoundCommand[D]) SerializedParameters() []byte { return c.params }

// CorrelationID identifies this particular binding for log correlation.
// It has no relation to the serial transaction id assigned at
// submission time.
func (c *BoundCommand[D]) CorrelationID() uuid.UUID { return c.correlationID }

// Run executes the command's handler against db.
func (c *BoundCommand[D]) Run(db D) error { return c.run(db) }

// descriptor is the type-erased registration surface a Directory[D]
// stores, letting it resolve a journaled record by name without naming
// that command's parameter type.
type descriptor[D any] interface {
	Name() string
	CreateFromSerialized(params []byte) *BoundCommand[D]
}

// Descriptor wraps a named command handler together with its parameter
// codec (spec.md §4.5). Construct with NewDescriptor and register it
// with Register.
type Descriptor[D any, P any] struct {
	name    string
	codec   Codec[P]
	handler func(db D, params P) error
}

// NewDescriptor builds a command descriptor. handler must be
// deterministic given db's state and params: it is re-run verbatim
// during journal replay, where any error it returns is a fatal
// ReplayDivergence (spec.md §9 open question 4).
func NewDescriptor[D any, P any](name string, codec Codec[P], handler func(db D, params P) error) *Descriptor[D, P] {
	return &Descriptor[D, P]{name: name, codec: codec, handler: handler}
}

// Name returns the command's registered name.
func (d *Descriptor[D, P]) Name() string { return d.name }

// Create binds live parameters p into an executable command, serializing
// them immediately so the binding's SerializedParameters matches exactly
// what Create produced (it is this byte slice the engine journals).
func (d *Descriptor[D, P]) Create(p P) *BoundCommand[D] {
	return &BoundCommand[D]{
		name:          d.name,
		params:        d.codec.Encode(p),
		correlationID: newCorrelationID(),
		run:           func(db D) error { return d.handler(db, p) },
	}
}

// CreateFromSerialized decodes raw into parameters and binds them,
// exactly as journal replay and a resolved async dispatch require.
func (d *Descriptor[D, P]) CreateFromSerialized(raw []byte) *BoundCommand[D] {
	p := d.codec.Decode(raw)
	return &BoundCommand[D]{
		name:          d.name,
		params:        raw,
		correlationID: newCorrelationID(),
		run:           func(db D) error { return d.handler(db, p) },
	}
}

var _ descriptor[any] = (*Descriptor[any, any])(nil)
