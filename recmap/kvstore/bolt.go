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

// Package kvstore implements the remote-KV record-map backend on top
// of github.com/boltdb/bolt, an ordered embedded KV store with
// cursor-based range scans.
//
// EncodeTableKey/EncodeIndexKey build the stable flat key encoding
// ("t/"+name+"/"+key, "i/"+name+"/"+key) for any caller that needs
// one. Storage itself uses one bolt bucket per record map, so the
// prefix is implicit in the bucket boundary rather than literally
// prepended to every key; bolt has no shared global keyspace to prefix
// into. Cursors support Seek (built on bolt's own cursor Seek) but not
// backward traversal: Prev returns NOT_SUPPORTED.
package kvstore

import (
	bolt "github.com/boltdb/bolt"
	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

var log = logrus.WithField("component", "recmap.kvstore")

// EncodeTableKey builds the stable base-table record key.
func EncodeTableKey(tableName string, primaryKey []byte) []byte {
	return append([]byte("t/"+tableName+"/"), primaryKey...)
}

// EncodeIndexKey builds the stable secondary-index key.
func EncodeIndexKey(indexName string, indexKey []byte) []byte {
	return append([]byte("i/"+indexName+"/"), indexKey...)
}

// RangeEnd computes the half-open range end for a prefix scan: the last
// byte of prefix incremented by one.
func RangeEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	// all 0xff: no finite end; caller must scan to bucket end.
	return nil
}

// DB wraps a *bolt.DB as a rdbtx.Manager, giving every record map
// created against it snapshot isolation for free from bolt's own MVCC.
type DB struct {
	bdb *bolt.DB
}

func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening bolt database")
	}
	return &DB{bdb: bdb}, nil
}

func (d *DB) Close() error { return d.bdb.Close() }

var _ rdbtx.Manager = (*DB)(nil)

// Begin implements rdbtx.Manager. Bolt does not nest transactions, so a
// "sub-transaction" over a bolt-backed database shares the same
// underlying *bolt.Tx as its parent; only the outermost Tx actually
// commits or rolls back, matching bolt's single-writer model while
// still presenting the nestable-scope contract requires.
func (d *DB) Begin(parent rdbtx.Tx) (rdbtx.Tx, error) {
	if p, ok := parent.(*Tx); ok {
		return &Tx{baseTx: newChild(p), btx: p.btx, child: true}, nil
	}
	btx, err := d.bdb.Begin(true)
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return &Tx{baseTx: newRoot(), btx: btx}, nil
}

type baseTx struct {
	id string
	parent rdbtx.Tx
}

func newRoot() baseTx { return baseTx{id: uuid.NewV4().String()} }
func newChild(p rdbtx.Tx) baseTx {
	return baseTx{id: uuid.NewV4().String(), parent: p}
}

// Tx wraps a *bolt.Tx to satisfy rdbtx.Tx.
type Tx struct {
	baseTx
	btx *bolt.Tx
	child bool
	retryable bool
}

var _ rdbtx.Tx = (*Tx)(nil)

func (t *Tx) ID() string { return t.id }
func (t *Tx) Parent() rdbtx.Tx { return t.parent }
func (t *Tx) Retryable() bool { return t.retryable }

func (t *Tx) Commit() error {
	if t.child {
		log.WithField("tx", t.id).Debug("subtransaction commit (deferred to root)")
		return nil
	}
	log.WithField("tx", t.id).Debug("commit")
	err := mapBoltErr(t.btx.Commit())
	if duroerr.Retryable(err) {
		t.retryable = true
	}
	return err
}

func (t *Tx) Rollback() error {
	if t.child {
		log.WithField("tx", t.id).Debug("subtransaction rollback (deferred to root)")
		return nil
	}
	log.WithField("tx", t.id).Debug("rollback")
	return mapBoltErr(t.btx.Rollback())
}

func mapBoltErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case bolt.ErrTxClosed, bolt.ErrDatabaseNotOpen:
		return duroerr.NewConcurrency(true, err)
	default:
		return duroerr.ErrSystem.New(err.Error())
	}
}

// Table is a bolt-bucket-backed recmap.Map: one bucket per record map,
// keyed by the encoded primary key.
type Table struct {
	name string
	layout field.Layout
	cmpFields []recmap.CmpField
	bucket []byte
	estSize int64
	indexes []recmap.Index
}

var _ recmap.Map = (*Table)(nil)

// Create opens (creating if absent) the bucket backing a record map.
func Create(tx rdbtx.Tx, name string, layout field.Layout, cmpFields []recmap.CmpField, flags recmap.Flag) (*Table, error) {
	if flags&recmap.Unique == 0 {
		return nil, duroerr.ErrNotSupported.New("non-unique record maps")
	}
	btx, err := boltTx(tx)
	if err != nil {
		return nil, err
	}
	if _, err := btx.CreateBucketIfNotExists([]byte(name)); err != nil {
		return nil, mapBoltErr(err)
	}
	return &Table{name: name, layout: layout, cmpFields: cmpFields, bucket: []byte(name)}, nil
}

func boltTx(tx rdbtx.Tx) (*bolt.Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, duroerr.ErrInvalidArgument.New("not a bolt transaction")
	}
	return t.btx, nil
}

func (t *Table) Name() string { return t.name }
func (t *Table) Layout() field.Layout { return t.layout }
func (t *Table) CmpFields() []recmap.CmpField { return t.cmpFields }
func (t *Table) KeyFieldCount() int { return t.layout.KeyFieldCount }
func (t *Table) EstSize() int64 { return t.estSize }
func (t *Table) SetEstSize(n int64) { t.estSize = n }
func (t *Table) Indexes() []recmap.Index { return t.indexes }
func (t *Table) AddIndex(ix recmap.Index) { t.indexes = append(t.indexes, ix) }

func (t *Table) RemoveIndex(name string) {
	out := t.indexes[:0]
	for _, ix := range t.indexes {
		if ix.Name() != name {
			out = append(out, ix)
		}
	}
	t.indexes = out
}

func (t *Table) Close() error { return nil }

func (t *Table) Drop(tx rdbtx.Tx) error {
	for _, ix := range t.indexes {
		if err := ix.Drop(tx); err != nil {
			return err
		}
	}
	t.indexes = nil
	btx, err := boltTx(tx)
	if err != nil {
		return err
	}
	return mapBoltErr(btx.DeleteBucket(t.bucket))
}

func (t *Table) rowToRecord(row recmap.Row) (recmap.Record, error) {
	keyFields := make([]field.FieldValue, 0, t.layout.KeyFieldCount)
	valFields := make([]field.FieldValue, 0, len(row)-t.layout.KeyFieldCount)
	for no, data := range row {
		if no < t.layout.KeyFieldCount {
			keyFields = append(keyFields, field.FieldValue{No: no, Data: data})
		} else {
			valFields = append(valFields, field.FieldValue{No: no, Data: data})
		}
	}
	key, err := field.Encode(t.layout, true, keyFields)
	if err != nil {
		return recmap.Record{}, err
	}
	val, err := field.Encode(t.layout, false, valFields)
	if err != nil {
		return recmap.Record{}, err
	}
	return recmap.Record{Key: key, Value: val}, nil
}

func (t *Table) recordToRow(rec recmap.Record) (recmap.Row, error) {
	row := make(recmap.Row, len(t.layout.Fields))
	for no := range t.layout.Fields {
		half := rec.Key
		if no >= t.layout.KeyFieldCount {
			half = rec.Value
		}
		v, err := field.Field(t.layout, no, half)
		if err != nil {
			return nil, err
		}
		row[no] = v
	}
	return row, nil
}

func (t *Table) keyBytes(key recmap.Row) ([]byte, error) {
	fields := make([]field.FieldValue, 0, len(key))
	for no, data := range key {
		if no >= t.layout.KeyFieldCount {
			break
		}
		fields = append(fields, field.FieldValue{No: no, Data: data})
	}
	return field.Encode(t.layout, true, fields)
}

func (t *Table) Insert(tx rdbtx.Tx, row recmap.Row) error {
	btx, err := boltTx(tx)
	if err != nil {
		return err
	}
	rec, err := t.rowToRecord(row)
	if err != nil {
		return err
	}
	b := btx.Bucket(t.bucket)
	if b.Get(rec.Key) != nil {
		return duroerr.ErrKeyViolation.New()
	}
	for _, ix := range t.indexes {
		if err := ix.OnInsert(tx, row); err != nil {
			return err
		}
	}
	if err := b.Put(rec.Key, rec.Value); err != nil {
		return mapBoltErr(err)
	}
	t.estSize++
	return nil
}

func (t *Table) Get(tx rdbtx.Tx, key recmap.Row, wanted []int) (recmap.Row, error) {
	btx, err := boltTx(tx)
	if err != nil {
		return nil, err
	}
	kb, err := t.keyBytes(key)
	if err != nil {
		return nil, err
	}
	v := btx.Bucket(t.bucket).Get(kb)
	if v == nil {
		return nil, duroerr.ErrNotFound.New()
	}
	row, err := t.recordToRow(recmap.Record{Key: kb, Value: v})
	if err != nil {
		return nil, err
	}
	if wanted == nil {
		return row, nil
	}
	out := make(recmap.Row, len(row))
	for _, no := range wanted {
		out[no] = row[no]
	}
	return out, nil
}

func (t *Table) Contains(tx rdbtx.Tx, row recmap.Row) (bool, error) {
	btx, err := boltTx(tx)
	if err != nil {
		return false, err
	}
	rec, err := t.rowToRecord(row)
	if err != nil {
		return false, err
	}
	v := btx.Bucket(t.bucket).Get(rec.Key)
	if v == nil {
		return false, nil
	}
	return string(v) == string(rec.Value), nil
}

func (t *Table) indexedOrKeyFieldsChanged(updates map[int][]byte) bool {
	for no := range updates {
		if no < t.layout.KeyFieldCount {
			return true
		}
	}
	for _, ix := range t.indexes {
		for _, ixNo := range ix.Fields() {
			if _, ok := updates[ixNo]; ok {
				return true
			}
		}
	}
	return false
}

func (t *Table) Update(tx rdbtx.Tx, key recmap.Row, updates map[int][]byte) error {
	btx, err := boltTx(tx)
	if err != nil {
		return err
	}
	b := btx.Bucket(t.bucket)
	kb, err := t.keyBytes(key)
	if err != nil {
		return err
	}
	v := b.Get(kb)
	if v == nil {
		return duroerr.ErrNotFound.New()
	}
	oldRow, err := t.recordToRow(recmap.Record{Key: kb, Value: v})
	if err != nil {
		return err
	}

	if t.indexedOrKeyFieldsChanged(updates) {
		newRow := make(recmap.Row, len(oldRow))
		copy(newRow, oldRow)
		for no, nv := range updates {
			newRow[no] = nv
		}
		newRec, err := t.rowToRecord(newRow)
		if err != nil {
			return err
		}
		if string(newRec.Key) != string(kb) && b.Get(newRec.Key) != nil {
			return duroerr.ErrKeyViolation.New()
		}
		for _, ix := range t.indexes {
			if err := ix.OnDelete(tx, oldRow); err != nil {
				return err
			}
		}
		for _, ix := range t.indexes {
			if err := ix.OnInsert(tx, newRow); err != nil {
				for _, ix2 := range t.indexes {
					_ = ix2.OnInsert(tx, oldRow)
				}
				return err
			}
		}
		if err := b.Delete(kb); err != nil {
			return mapBoltErr(err)
		}
		return mapBoltErr(b.Put(newRec.Key, newRec.Value))
	}

	newValFields := make([]field.FieldValue, 0, len(t.layout.Fields)-t.layout.KeyFieldCount)
	for no := t.layout.KeyFieldCount; no < len(t.layout.Fields); no++ {
		val := oldRow[no]
		if nv, ok := updates[no]; ok {
			val = nv
		}
		newValFields = append(newValFields, field.FieldValue{No: no, Data: val})
	}
	newVal, err := field.Encode(t.layout, false, newValFields)
	if err != nil {
		return err
	}
	return mapBoltErr(b.Put(kb, newVal))
}

func (t *Table) Delete(tx rdbtx.Tx, key recmap.Row) error {
	btx, err := boltTx(tx)
	if err != nil {
		return err
	}
	b := btx.Bucket(t.bucket)
	kb, err := t.keyBytes(key)
	if err != nil {
		return err
	}
	v := b.Get(kb)
	if v == nil {
		return duroerr.ErrNotFound.New()
	}
	row, err := t.recordToRow(recmap.Record{Key: kb, Value: v})
	if err != nil {
		return err
	}
	for _, ix := range t.indexes {
		if err := ix.OnDelete(tx, row); err != nil {
			return err
		}
	}
	t.estSize--
	return mapBoltErr(b.Delete(kb))
}

// Cursor opens a forward-only cursor (Prev is not supported). Seek
// positions it through the bolt bucket cursor's own Seek.
func (t *Table) Cursor(tx rdbtx.Tx, writable bool) (recmap.Cursor, error) {
	btx, err := boltTx(tx)
	if err != nil {
		return nil, err
	}
	return &cursor{table: t, tx: tx, bc: btx.Bucket(t.bucket).Cursor()}, nil
}

type cursor struct {
	table *Table
	tx rdbtx.Tx
	bc *bolt.Cursor
	k, v []byte
	ok bool
}

var _ recmap.Cursor = (*cursor)(nil)

func (c *cursor) First() error {
	c.k, c.v = c.bc.First()
	c.ok = c.k != nil
	if !c.ok {
		return duroerr.ErrNotFound.New()
	}
	return nil
}

func (c *cursor) Next() error {
	c.k, c.v = c.bc.Next()
	c.ok = c.k != nil
	if !c.ok {
		return duroerr.ErrNotFound.New()
	}
	return nil
}

// Prev is not supported by the KV backend.
func (c *cursor) Prev() error {
	return duroerr.ErrNotSupported.New("kvstore backend does not support Prev")
}

func (c *cursor) Seek(vals recmap.Row) error {
	fields := make([]field.FieldValue, 0, len(vals))
	for no, v := range vals {
		fields = append(fields, field.FieldValue{No: no, Data: v})
	}
	prefix, err := partialKey(c.table.layout, fields)
	if err != nil {
		return err
	}
	c.k, c.v = c.bc.Seek(prefix)
	c.ok = c.k != nil
	if !c.ok {
		return duroerr.ErrNotFound.New()
	}
	return nil
}

// partialKey concatenates the raw bytes of the supplied fields, in
// order, to seed a bolt cursor Seek. Field lengths and positions are
// not checked against the layout.
func partialKey(l field.Layout, fields []field.FieldValue) ([]byte, error) {
	var out []byte
	for _, fv := range fields {
		out = append(out, fv.Data...)
	}
	return out, nil
}

func (c *cursor) Get(no int) ([]byte, error) {
	if !c.ok {
		return nil, duroerr.ErrNotFound.New()
	}
	half := c.k
	if no >= c.table.layout.KeyFieldCount {
		half = c.v
	}
	return field.Field(c.table.layout, no, half)
}

func (c *cursor) Row() (recmap.Row, error) {
	if !c.ok {
		return nil, duroerr.ErrNotFound.New()
	}
	return c.table.recordToRow(recmap.Record{Key: c.k, Value: c.v})
}

func (c *cursor) Set(updates map[int][]byte) error {
	for no := range updates {
		if no < c.table.layout.KeyFieldCount {
			return duroerr.ErrInvalidArgument.New("cannot update key field via cursor")
		}
	}
	row, err := c.Row()
	if err != nil {
		return err
	}
	return c.table.Update(c.tx, row[:c.table.layout.KeyFieldCount], updates)
}

func (c *cursor) Delete() error {
	row, err := c.Row()
	if err != nil {
		return err
	}
	key := row[:c.table.layout.KeyFieldCount]
	if err := c.table.Delete(c.tx, key); err != nil {
		return err
	}
	return c.Next()
}

func (c *cursor) Close() error { return nil }
