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

// Package index implements the secondary index: a
// key→primary-key store maintained synchronously with its parent record
// map. Only unique indexes are implemented.
package index

import (
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

// Store is the minimal storage surface an index needs from a backend:
// an ordered key/value map keyed by the encoded index key, with a
// cursor for range probes. Both recmap/tree.Table and
// recmap/kvstore.Table satisfy this (a record map whose key half is the
// index fields and whose value half is the parent's key fields), so an
// Index reuses whichever backend its parent record map uses.
type Store interface {
	Insert(tx rdbtx.Tx, row recmap.Row) error
	Get(tx rdbtx.Tx, key recmap.Row, wanted []int) (recmap.Row, error)
	Delete(tx rdbtx.Tx, key recmap.Row) error
	Cursor(tx rdbtx.Tx, writable bool) (recmap.Cursor, error)
	Layout() field.Layout
	Drop(tx rdbtx.Tx) error
}

// Index associates a tuple of parent fields with the parent's primary
// key.
type Index struct {
	name string
	parentNos []int // parent field numbers, in index-attribute order
	asc []bool
	unique bool
	store Store // keyed by parentNos fields; value is the primary key row
	parentKeyC int // number of parent key fields
}

var _ recmap.Index = (*Index)(nil)

// New wires an Index over an already-created Store (typically an empty
// tree.Table/kvstore.Table keyed on the index fields). parentNos names
// the parent field numbers the index covers, in order; parentKeyCount
// is the parent's key-field count.
func New(name string, parentNos []int, asc []bool, unique bool, store Store, parentKeyCount int) *Index {
	return &Index{name: name, parentNos: parentNos, asc: asc, unique: unique, store: store, parentKeyC: parentKeyCount}
}

func (ix *Index) Name() string { return ix.name }
func (ix *Index) Fields() []int { return ix.parentNos }
func (ix *Index) Unique() bool { return ix.unique }
func (ix *Index) Ascending() []bool { return ix.asc }

// indexRow builds the index store's row: index fields at positions
// 0..n-1 (the index's own field numbering), followed by the parent's
// key fields re-numbered to follow, acting as the value half (the
// locator that finds R by primary key).
func (ix *Index) indexRow(parentRow recmap.Row) recmap.Row {
	row := make(recmap.Row, len(ix.parentNos)+ix.parentKeyC)
	for i, no := range ix.parentNos {
		row[i] = parentRow[no]
	}
	for i := 0; i < ix.parentKeyC; i++ {
		row[len(ix.parentNos)+i] = parentRow[i]
	}
	return row
}

func (ix *Index) indexKey(parentRow recmap.Row) recmap.Row {
	row := make(recmap.Row, len(ix.parentNos))
	for i, no := range ix.parentNos {
		row[i] = parentRow[no]
	}
	return row
}

// OnInsert computes the encoded index key from the inserted record; if
// unique, probing happens implicitly via the store's own key-violation
// check.
func (ix *Index) OnInsert(tx rdbtx.Tx, row recmap.Row) error {
	if err := ix.store.Insert(tx, ix.indexRow(row)); err != nil {
		return err
	}
	return nil
}

// OnDelete recomputes the encoded index key from the record being
// deleted and erases it.
func (ix *Index) OnDelete(tx rdbtx.Tx, row recmap.Row) error {
	return ix.store.Delete(tx, ix.indexKey(row))
}

// Drop releases the index's storage. The parent record map is
// responsible for detaching it from its index list.
func (ix *Index) Drop(tx rdbtx.Tx) error {
	return ix.store.Drop(tx)
}

// Probe seeks the index for the given leading field values, returning a
// cursor positioned at the first match.
func (ix *Index) Probe(tx rdbtx.Tx, vals recmap.Row) (recmap.Cursor, error) {
	cur, err := ix.store.Cursor(tx, false)
	if err != nil {
		return nil, err
	}
	if err := cur.Seek(vals); err != nil {
		return nil, err
	}
	return cur, nil
}

// PrimaryKey extracts the primary-key row out of an index store row
// produced by Probe's cursor.
func (ix *Index) PrimaryKey(row recmap.Row) recmap.Row {
	key := make(recmap.Row, ix.parentKeyC)
	for i := 0; i < ix.parentKeyC; i++ {
		key[i] = row[len(ix.parentNos)+i]
	}
	return key
}

// ErrNoSuchField is returned when a field name cannot be resolved to a
// parent field number while building an index.
var ErrNoSuchField = duroerr.ErrName.New("index field")
