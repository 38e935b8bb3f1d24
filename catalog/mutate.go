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
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

// InsertTuple implements the base-table insert step of the assignment
// engine's resolved operation list.
func (c *Catalog) InsertTuple(tableName string, tup *object.Object) error {
	td, tx, err := c.boundTableDef(tableName)
	if err != nil {
		return err
	}
	row, err := td.layout.rowFromTuple(tup)
	if err != nil {
		return err
	}
	if err := td.m.Insert(tx, row); err != nil {
		return err
	}
	log.WithField("table", tableName).Debug("tuple inserted")
	return nil
}

// IndexCount reports how many secondary indexes tableName carries, used
// by the assignment engine to decide whether a lone insert still needs
// a subtransaction.
func (c *Catalog) IndexCount(tableName string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.tables[tableName]
	if !ok {
		return 0
	}
	return len(td.indexes)
}

func (c *Catalog) boundTableDef(tableName string) (*tableDef, rdbtx.Tx, error) {
	c.mu.RLock()
	td, ok := c.tables[tableName]
	tx := c.tx
	c.mu.RUnlock()
	if !ok {
		return nil, nil, duroerr.ErrName.New(tableName)
	}
	if tx == nil {
		return nil, nil, duroerr.ErrNoRunningTx.New()
	}
	return td, tx, nil
}

// UpdateMatching scans tableName's stored tuples, calling match on each
// decoded tuple; for every tuple match accepts, apply computes the
// changed attribute values, which are written back through the
// record-map's Update. The full set of matching keys and
// their changes is collected before any write so that mutating the
// table mid-scan can never disturb the record map's own traversal
// order; the same snapshot-then-apply shape package qresult's sorter
// uses for its own materialize-then-replay iterator.
func (c *Catalog) UpdateMatching(tableName string, match func(*object.Object) (bool, error), apply func(*object.Object) (map[string]*object.Object, error)) (int, error) {
	td, tx, err := c.boundTableDef(tableName)
	if err != nil {
		return 0, err
	}
	type pending struct {
		key recmap.Row
		updates map[int][]byte
	}
	var plan []pending
	if err := c.scanRows(td, tx, func(row recmap.Row, tup *object.Object) error {
			ok, err := match(tup)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			changes, err := apply(tup)
			if err != nil {
				return err
			}
			updates := make(map[int][]byte, len(changes))
			for name, v := range changes {
				no, ok := td.layout.no[name]
				if !ok {
					return duroerr.ErrName.New(name)
				}
				b, err := encodeScalar(td.layout.types[name], v)
				if err != nil {
					return err
				}
				updates[no] = b
			}
			keyRow := make(recmap.Row, len(td.keyAttrs))
			copy(keyRow, row[:len(td.keyAttrs)])
			plan = append(plan, pending{key: keyRow, updates: updates})
			return nil
		}); err != nil {
		return 0, err
	}
	for _, p := range plan {
		if err := td.m.Update(tx, p.key, p.updates); err != nil {
			return 0, err
		}
	}
	log.WithField("table", tableName).WithField("count", len(plan)).Debug("tuples updated")
	return len(plan), nil
}

// DeleteMatching scans and deletes every tuple match accepts, collecting
// keys before deleting for the same reason UpdateMatching does.
func (c *Catalog) DeleteMatching(tableName string, match func(*object.Object) (bool, error)) (int, error) {
	td, tx, err := c.boundTableDef(tableName)
	if err != nil {
		return 0, err
	}
	var keys []recmap.Row
	if err := c.scanRows(td, tx, func(row recmap.Row, tup *object.Object) error {
			ok, err := match(tup)
			if err != nil {
				return err
			}
			if ok {
				keyRow := make(recmap.Row, len(td.keyAttrs))
				copy(keyRow, row[:len(td.keyAttrs)])
				keys = append(keys, keyRow)
			}
			return nil
		}); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := td.m.Delete(tx, k); err != nil {
			return 0, err
		}
	}
	log.WithField("table", tableName).WithField("count", len(keys)).Debug("tuples deleted")
	return len(keys), nil
}

// scanRows walks every stored row of td front to back, decoding each
// into a tuple and invoking fn.
func (c *Catalog) scanRows(td *tableDef, tx rdbtx.Tx, fn func(recmap.Row, *object.Object) error) error {
	cur, err := td.m.Cursor(tx, false)
	if err != nil {
		return err
	}
	defer cur.Close()
	if err := cur.First(); err != nil {
		if duroerr.IsNotFound(err) {
			return nil
		}
		return err
	}
	for {
		row, err := cur.Row()
		if err != nil {
			return err
		}
		tup, err := td.layout.decodeRow(row)
		if err != nil {
			return err
		}
		if err := fn(row, tup); err != nil {
			return err
		}
		if err := cur.Next(); err != nil {
			if duroerr.IsNotFound(err) {
				return nil
			}
			return err
		}
	}
}
