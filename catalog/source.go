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

package catalog

import (
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/qresult"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

// boundTable is a base table bound to the transaction in scope; it
// implements qresult.Source so package qresult's Open dispatcher can
// drive a scan or an index probe over it.
type boundTable struct {
	tx rdbtx.Tx
	def *tableDef
}

var _ qresult.Source = (*boundTable)(nil)
var _ qresult.IndexSource = (*boundIndex)(nil)

func (b *boundTable) TableName() string { return b.def.name }

func (b *boundTable) Scan() (recmap.Cursor, error) {
	return b.def.m.Cursor(b.tx, false)
}

func (b *boundTable) DecodeRow(row recmap.Row) (*object.Object, error) {
	return b.def.layout.decodeRow(row)
}

func (b *boundTable) GetByKey(key recmap.Row) (recmap.Row, error) {
	return b.def.m.Get(b.tx, key, nil)
}

// SetEstSize lets COUNT feed an exact cardinality back into the record
// map's optimizer estimate.
func (b *boundTable) SetEstSize(n int64) { b.def.m.SetEstSize(n) }

func (b *boundTable) IndexScan(name string) (qresult.IndexSource, bool) {
	ixd, ok := b.def.indexes[name]
	if !ok {
		return nil, false
	}
	return &boundIndex{tx: b.tx, ixd: ixd}, true
}

// boundIndex is a secondary index bound to the transaction in scope.
type boundIndex struct {
	tx rdbtx.Tx
	ixd *indexDef
}

// Probe encodes vals against the index's attribute types, in index
// order, and seeks the index store.
func (b *boundIndex) Probe(vals []*object.Object) (recmap.Cursor, error) {
	row := make(recmap.Row, 0, len(vals))
	for i, a := range b.ixd.attrs {
		if i >= len(vals) {
			break
		}
		enc, err := encodeScalar(b.ixd.parent.typ.Attrs[a], vals[i])
		if err != nil {
			return nil, err
		}
		row = append(row, enc)
	}
	return b.ixd.ix.Probe(b.tx, row)
}

func (b *boundIndex) PrimaryKey(row recmap.Row) recmap.Row {
	return b.ixd.ix.PrimaryKey(row)
}
