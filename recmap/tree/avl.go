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

// Package tree implements the in-memory AVL-tree record-map backend: a
// self-balancing binary search tree keyed by the encoded key bytes,
// compared field-wise using the record map's comparison-field vector.
//
// Nodes store no parent pointers: parent links are needed only for
// cursor traversal, so Cursor carries an explicit ancestor stack
// instead and recomputes its position from it.
package tree

import (
	"bytes"
	"sync"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

type node struct {
	key, value []byte
	left, right *node
	height int8
}

func height(n *node) int8 {
	if n == nil {
		return 0
	}
	return n.height
}

func balanceFactor(n *node) int {
	return int(height(n.left)) - int(height(n.right))
}

func fixHeight(n *node) {
	lh, rh := height(n.left), height(n.right)
	if lh > rh {
		n.height = lh + 1
	} else {
		n.height = rh + 1
	}
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	fixHeight(n)
	fixHeight(l)
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	fixHeight(n)
	fixHeight(r)
	return r
}

// rebalance restores the AVL invariant (balance factor in {-1,0,1}) at
// n, returning the possibly-new subtree root.
func rebalance(n *node) *node {
	fixHeight(n)
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

// Table is the AVL-backed recmap.Map.
type Table struct {
	mu sync.RWMutex
	name string
	layout field.Layout
	cmpFields []recmap.CmpField
	root *node
	count int64
	indexes []recmap.Index
}

var _ recmap.Map = (*Table)(nil)

// Create returns a fresh, empty AVL-backed record map. flags must include recmap.Unique.
func Create(name string, layout field.Layout, cmpFields []recmap.CmpField, flags recmap.Flag) (*Table, error) {
	if flags&recmap.Unique == 0 {
		return nil, duroerr.ErrNotSupported.New("non-unique record maps")
	}
	return &Table{name: name, layout: layout, cmpFields: cmpFields}, nil
}

func (t *Table) Name() string { return t.name }
func (t *Table) Layout() field.Layout { return t.layout }
func (t *Table) CmpFields() []recmap.CmpField { return t.cmpFields }
func (t *Table) KeyFieldCount() int { return t.layout.KeyFieldCount }
func (t *Table) EstSize() int64 { return t.count }
func (t *Table) SetEstSize(n int64) { t.count = n }
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

// Drop destroys the record map's data, dropping all dependent indexes
// first.
func (t *Table) Drop(tx rdbtx.Tx) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ix := range t.indexes {
		if err := ix.Drop(tx); err != nil {
			return err
		}
	}
	t.indexes = nil
	t.root = nil
	t.count = 0
	return nil
}

// compareKeyBytes implements the tie-broken field-wise comparison:
// compare by cmp-field vector with direction, falling back to raw byte
// comparison of the full key if fewer cmp-fields than key fields are
// given.
func (t *Table) compareKeyBytes(a, b []byte) int {
	if len(t.cmpFields) < t.layout.KeyFieldCount {
		c := bytes.Compare(a, b)
		if len(t.cmpFields) == 0 {
			return c
		}
	}
	for _, cf := range t.cmpFields {
		av, err := field.Field(t.layout, cf.FieldNo, a)
		if err != nil {
			return bytes.Compare(a, b)
		}
		bv, err := field.Field(t.layout, cf.FieldNo, b)
		if err != nil {
			return bytes.Compare(a, b)
		}
		c := bytes.Compare(av, bv)
		if cf.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	if len(t.cmpFields) < t.layout.KeyFieldCount {
		return bytes.Compare(a, b)
	}
	return 0
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

func (t *Table) find(key []byte) *node {
	n := t.root
	for n != nil {
		c := t.compareKeyBytes(key, n.key)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

// Insert implements insert: fails with KEY_VIOLATION if the
// key is present, else writes and maintains dependent indexes.
func (t *Table) Insert(tx rdbtx.Tx, row recmap.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, err := t.rowToRecord(row)
	if err != nil {
		return err
	}
	if t.find(rec.Key) != nil {
		return duroerr.ErrKeyViolation.New()
	}
	for _, ix := range t.indexes {
		if err := ix.OnInsert(tx, row); err != nil {
			return err
		}
	}
	t.root = insertNode(t, t.root, &node{key: rec.Key, value: rec.Value})
	t.count++
	return nil
}

func insertNode(t *Table, n *node, nw *node) *node {
	if n == nil {
		return nw
	}
	c := t.compareKeyBytes(nw.key, n.key)
	if c < 0 {
		n.left = insertNode(t, n.left, nw)
	} else {
		n.right = insertNode(t, n.right, nw)
	}
	return rebalance(n)
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

// Get implements get.
func (t *Table) Get(tx rdbtx.Tx, key recmap.Row, wanted []int) (recmap.Row, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	kb, err := t.keyBytes(key)
	if err != nil {
		return nil, err
	}
	n := t.find(kb)
	if n == nil {
		return nil, duroerr.ErrNotFound.New()
	}
	row, err := t.recordToRow(recmap.Record{Key: n.key, Value: n.value})
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

// Contains implements contains.
func (t *Table) Contains(tx rdbtx.Tx, row recmap.Row) (bool, error) {
	rec, err := t.rowToRecord(row)
	if err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.find(rec.Key)
	if n == nil {
		return false, nil
	}
	return bytes.Equal(n.value, rec.Value), nil
}

// indexedOrKeyFieldsChanged reports whether any field touched by
// updates participates in the key or in any dependent index, which
// forces delete+reinsert semantics.
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

// Update implements / update: if the update touches a key
// field, it is handled as delete+reinsert (S6); otherwise fields are
// rewritten in place and indexes are updated only if an indexed field
// changed.
func (t *Table) Update(tx rdbtx.Tx, key recmap.Row, updates map[int][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, err := t.keyBytes(key)
	if err != nil {
		return err
	}
	n := t.find(kb)
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	oldRow, err := t.recordToRow(recmap.Record{Key: n.key, Value: n.value})
	if err != nil {
		return err
	}

	if t.indexedOrKeyFieldsChanged(updates) {
		newRow := make(recmap.Row, len(oldRow))
		copy(newRow, oldRow)
		for no, v := range updates {
			newRow[no] = v
		}
		newRec, err := t.rowToRecord(newRow)
		if err != nil {
			return err
		}
		if !bytes.Equal(newRec.Key, kb) {
			if t.find(newRec.Key) != nil {
				return duroerr.ErrKeyViolation.New()
			}
		}
		for _, ix := range t.indexes {
			if err := ix.OnDelete(tx, oldRow); err != nil {
				return err
			}
		}
		for _, ix := range t.indexes {
			if err := ix.OnInsert(tx, newRow); err != nil {
				// best-effort reinsert of the original record, then
				// surface the error.
				for _, ix2 := range t.indexes {
					_ = ix2.OnInsert(tx, oldRow)
				}
				return err
			}
		}
		t.root = deleteNode(t, t.root, kb)
		t.root = insertNode(t, t.root, &node{key: newRec.Key, value: newRec.Value})
		return nil
	}

	newValFields := make([]field.FieldValue, 0, len(t.layout.Fields)-t.layout.KeyFieldCount)
	for no := t.layout.KeyFieldCount; no < len(t.layout.Fields); no++ {
		v := oldRow[no]
		if nv, ok := updates[no]; ok {
			v = nv
		}
		newValFields = append(newValFields, field.FieldValue{No: no, Data: v})
	}
	newVal, err := field.Encode(t.layout, false, newValFields)
	if err != nil {
		return err
	}
	n.value = newVal
	return nil
}

// Delete implements delete.
func (t *Table) Delete(tx rdbtx.Tx, key recmap.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, err := t.keyBytes(key)
	if err != nil {
		return err
	}
	n := t.find(kb)
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	row, err := t.recordToRow(recmap.Record{Key: n.key, Value: n.value})
	if err != nil {
		return err
	}
	for _, ix := range t.indexes {
		if err := ix.OnDelete(tx, row); err != nil {
			return err
		}
	}
	t.root = deleteNode(t, t.root, kb)
	t.count--
	return nil
}

func minNode(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}

func deleteNode(t *Table, n *node, key []byte) *node {
	if n == nil {
		return nil
	}
	c := t.compareKeyBytes(key, n.key)
	switch {
	case c < 0:
		n.left = deleteNode(t, n.left, key)
	case c > 0:
		n.right = deleteNode(t, n.right, key)
	default:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := minNode(n.right)
		n.key, n.value = succ.key, succ.value
		n.right = deleteNode(t, n.right, succ.key)
	}
	return rebalance(n)
}

// Cursor opens a stateful iterator over the table. Since
// nodes carry no parent pointer, the cursor keeps an explicit ancestor
// stack and recomputes it on Seek.
func (t *Table) Cursor(tx rdbtx.Tx, writable bool) (recmap.Cursor, error) {
	return &cursor{table: t, writable: writable}, nil
}

type cursor struct {
	table *Table
	writable bool
	stack []*node // ancestors with cur at stack[len-1]
}

var _ recmap.Cursor = (*cursor)(nil)

func (c *cursor) cur() *node {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// First positions at the leftmost node.
func (c *cursor) First() error {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	c.stack = c.stack[:0]
	n := c.table.root
	for n != nil {
		c.stack = append(c.stack, n)
		n = n.left
	}
	if len(c.stack) == 0 {
		return duroerr.ErrNotFound.New()
	}
	return nil
}

func (c *cursor) last() error {
	c.stack = c.stack[:0]
	n := c.table.root
	for n != nil {
		c.stack = append(c.stack, n)
		n = n.right
	}
	if len(c.stack) == 0 {
		return duroerr.ErrNotFound.New()
	}
	return nil
}

// Next advances to the in-order successor: the right subtree's leftmost
// node if any, else ascend while current is a right child.
func (c *cursor) Next() error {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	n := c.cur()
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	if n.right != nil {
		m := n.right
		for m != nil {
			c.stack = append(c.stack, m)
			m = m.left
		}
		return nil
	}
	for len(c.stack) > 1 {
		child := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.stack[len(c.stack)-1]
		if parent.left == child {
			return nil
		}
	}
	c.stack = c.stack[:0]
	return duroerr.ErrNotFound.New()
}

// Prev is the symmetric reverse traversal.
func (c *cursor) Prev() error {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	n := c.cur()
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	if n.left != nil {
		m := n.left
		for m != nil {
			c.stack = append(c.stack, m)
			m = m.right
		}
		return nil
	}
	for len(c.stack) > 1 {
		child := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		parent := c.stack[len(c.stack)-1]
		if parent.right == child {
			return nil
		}
	}
	c.stack = c.stack[:0]
	return duroerr.ErrNotFound.New()
}

// Seek positions at the first record whose leading fields are >= vals:
// standard BST descent comparing only the supplied leading fields,
// keeping the closest node >= target on the stack so prefix range
// scans (index probes) can begin here even without an exact match.
func (c *cursor) Seek(vals recmap.Row) error {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	prefix := make([]field.FieldValue, 0, len(vals))
	for no, v := range vals {
		prefix = append(prefix, field.FieldValue{No: no, Data: v})
	}
	c.stack = c.stack[:0]
	n := c.table.root
	var candidate []*node
	for n != nil {
		c.stack = append(c.stack, n)
		cmp := comparePrefix(c.table.layout, c.table.cmpFields, prefix, n.key)
		if cmp <= 0 {
			// First record >= the prefix so far; an equal prefix may
			// still have an earlier match in the left subtree, so keep
			// descending left.
			candidate = append([]*node(nil), c.stack...)
			n = n.left
		} else {
			n = n.right
		}
	}
	if candidate != nil {
		c.stack = candidate
		return nil
	}
	c.stack = c.stack[:0]
	return duroerr.ErrNotFound.New()
}

func comparePrefix(l field.Layout, cmpFields []recmap.CmpField, prefix []field.FieldValue, key []byte) int {
	dirs := map[int]bool{}
	for _, cf := range cmpFields {
		dirs[cf.FieldNo] = cf.Descending
	}
	for _, fv := range prefix {
		kv, err := field.Field(l, fv.No, key)
		if err != nil {
			return bytes.Compare(fv.Data, key)
		}
		c := bytes.Compare(fv.Data, kv)
		if dirs[fv.No] {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (c *cursor) Get(no int) ([]byte, error) {
	n := c.cur()
	if n == nil {
		return nil, duroerr.ErrNotFound.New()
	}
	half := n.key
	if no >= c.table.layout.KeyFieldCount {
		half = n.value
	}
	return field.Field(c.table.layout, no, half)
}

func (c *cursor) Row() (recmap.Row, error) {
	n := c.cur()
	if n == nil {
		return nil, duroerr.ErrNotFound.New()
	}
	return c.table.recordToRow(recmap.Record{Key: n.key, Value: n.value})
}

// Set updates the current record, rejecting key-field updates.
func (c *cursor) Set(updates map[int][]byte) error {
	if !c.writable {
		return duroerr.ErrNotSupported.New("read-only cursor")
	}
	for no := range updates {
		if no < c.table.layout.KeyFieldCount {
			return duroerr.ErrInvalidArgument.New("cannot update key field via cursor")
		}
	}
	n := c.cur()
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	key, err := c.table.recordToRow(recmap.Record{Key: n.key, Value: n.value})
	if err != nil {
		return err
	}
	return c.table.Update(nil, key[:c.table.layout.KeyFieldCount], updates)
}

// Delete removes the current record and advances the cursor to the next
// position.
func (c *cursor) Delete() error {
	if !c.writable {
		return duroerr.ErrNotSupported.New("read-only cursor")
	}
	n := c.cur()
	if n == nil {
		return duroerr.ErrNotFound.New()
	}
	row, err := c.table.recordToRow(recmap.Record{Key: n.key, Value: n.value})
	if err != nil {
		return err
	}
	key := row[:c.table.layout.KeyFieldCount]
	nextKey, hasNext := c.peekNextKey()
	if err := c.table.Delete(nil, key); err != nil {
		return err
	}
	if !hasNext {
		c.stack = c.stack[:0]
		return nil
	}
	return c.Seek(nextKey)
}

// peekNextKey computes the key of the record that will follow the
// current one once deleted, by walking a copy of the cursor forward.
func (c *cursor) peekNextKey() (recmap.Row, bool) {
	tmp := &cursor{table: c.table, stack: append([]*node(nil), c.stack...)}
	if err := tmp.Next(); err != nil {
		return nil, false
	}
	row, err := tmp.Row()
	if err != nil {
		return nil, false
	}
	return row[:c.table.layout.KeyFieldCount], true
}

func (c *cursor) Close() error { return nil }
