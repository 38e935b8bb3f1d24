// Copyright 2024 Rene Hartmann.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package recmap defines the record-map abstraction: a
// uniform key/value table interface implemented by pluggable backends
// (recmap/tree, recmap/kvstore).
package recmap

import (
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
)

// Flag bits passed to Create.
type Flag int

const (
	// Unique marks the record map's key as unique; required for both
	// supported backends.
	Unique Flag = 1 << iota
	// Ordered marks the record map as comparison-ordered rather than
	// hash-ordered, enabling range scans and index range probes.
	Ordered
)

// CmpField describes one field of the user-visible sort order.
type CmpField struct {
	FieldNo int
	Descending bool
}

// Row is a decoded record: one byte slice per field, in field-number
// order, spanning both the key and value halves.
type Row [][]byte

// Record is a pair of encoded record halves as stored in the backend.
type Record struct {
	Key []byte
	Value []byte
}

// Map is the capability surface the core invokes on a backend:
// insert, get, update, delete, contains, cursor, estimated size, plus
// the field layout needed by callers constructing keys.
type Map interface {
	Name() string
	Layout() field.Layout
	CmpFields() []CmpField
	KeyFieldCount() int

	// Insert fails with duroerr.ErrKeyViolation if the key is already
	// present.
	Insert(tx rdbtx.Tx, row Row) error
	// Get fails with duroerr.ErrNotFound if the key is absent.
	Get(tx rdbtx.Tx, key Row, wanted []int) (Row, error)
	// Update rewrites the named fields of the record identified by key.
	Update(tx rdbtx.Tx, key Row, updates map[int][]byte) error
	Delete(tx rdbtx.Tx, key Row) error
	// Contains reports whether fields matches a stored record exactly.
	Contains(tx rdbtx.Tx, row Row) (bool, error)

	Cursor(tx rdbtx.Tx, writable bool) (Cursor, error)

	// EstSize is a heuristic row count for the optimizer; may return 0
	// if unknown.
	EstSize() int64
	// SetEstSize lets is_empty/count feed cardinality back.
	SetEstSize(n int64)

	Indexes() []Index
	AddIndex(ix Index)
	RemoveIndex(name string)

	Close() error
	Drop(tx rdbtx.Tx) error
}

// Index is the subset of index.Index the recmap package needs to
// maintain without importing the index package back (broken via this
// narrow interface to avoid a cycle: recmap <- index <- recmap).
type Index interface {
	Name() string
	// Fields returns the parent field numbers the index covers, in
	// index-attribute order; used by Map.Update to decide whether an
	// update forces index maintenance.
	Fields() []int
	OnInsert(tx rdbtx.Tx, row Row) error
	OnDelete(tx rdbtx.Tx, row Row) error
	Drop(tx rdbtx.Tx) error
}

// Cursor is the stateful iterator.
type Cursor interface {
	First() error
	Next() error
	Prev() error
	// Seek positions at the first record whose leading fields are
	// greater than or equal to vals, or returns NOT_FOUND if none is.
	Seek(vals Row) error

	// Get borrows field no of the current record.
	Get(no int) ([]byte, error)
	Row() (Row, error)

	// Set updates the current record, rejecting key-field updates.
	Set(updates map[int][]byte) error
	// Delete removes the current record and advances to the next
	// position atomically with respect to index maintenance.
	Delete() error

	Close() error
}
