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

// Package catalog ties record maps, secondary indexes and their field
// layouts together into named base tables, and implements the narrow
// resolver interfaces package eval, package optimize and package
// qresult each need (eval.Catalog, optimize.Catalog,
// qresult.Source/qresult.IndexSource) without those packages depending
// on storage directly.
package catalog

import (
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/index"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/optimize"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/recmap"
	"github.com/rehartmann/durodbms-sub001/recmap/kvstore"
	"github.com/rehartmann/durodbms-sub001/recmap/tree"
)

var log = logrus.WithField("component", "catalog")

// backend abstracts the two recmap implementations' differing Create
// signatures (tree.Create takes no transaction; kvstore.Create requires
// one bound to a live *bolt.Tx) behind one call the catalog can use
// uniformly regardless of which backend it was opened with.
type backend interface {
	createTable(tx rdbtx.Tx, name string, layout field.Layout, cmpFields []recmap.CmpField) (recmap.Map, error)
	manager() rdbtx.Manager
}

type memBackend struct{ mgr rdbtx.Manager }

func (b memBackend) createTable(tx rdbtx.Tx, name string, layout field.Layout, cmpFields []recmap.CmpField) (recmap.Map, error) {
	return tree.Create(name, layout, cmpFields, recmap.Unique)
}
func (b memBackend) manager() rdbtx.Manager { return b.mgr }

type boltBackend struct{ db *kvstore.DB }

func (b boltBackend) createTable(tx rdbtx.Tx, name string, layout field.Layout, cmpFields []recmap.CmpField) (recmap.Map, error) {
	return kvstore.Create(tx, name, layout, cmpFields, recmap.Unique)
}
func (b boltBackend) manager() rdbtx.Manager { return b.db }

// indexDef is one secondary index registered over a table.
type indexDef struct {
	name string
	attrs []string
	asc []bool
	parent *tableDef
	ix *index.Index
}

// tableDef is one registered base table: its relation type, field
// layout, backing record map, and dependent indexes.
type tableDef struct {
	name string
	typ durotype.Type
	keyAttrs []string
	layout attrLayout
	m recmap.Map
	indexes map[string]*indexDef
}

// Catalog is the registry of base tables and indexes for one
// database. It tracks the transaction currently in scope so the
// narrow Source/IndexSource views it hands to package qresult can bind
// every storage call to it without qresult needing to know about
// transactions at all.
type Catalog struct {
	mu sync.RWMutex
	backend backend
	tx rdbtx.Tx
	tables map[string]*tableDef
}

// NewMem opens an in-memory catalog backed by the AVL tree record-map
// implementation, the default for a fresh database.
func NewMem() *Catalog {
	return &Catalog{backend: memBackend{mgr: rdbtx.NewMemManager()}, tables: map[string]*tableDef{}}
}

// NewBolt opens (creating if absent) a boltdb-backed catalog at path.
func NewBolt(path string) (*Catalog, error) {
	db, err := kvstore.Open(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{backend: boltBackend{db: db}, tables: map[string]*tableDef{}}, nil
}

// Manager exposes the backend's transaction manager to the engine
// driving query execution and assignments (package duro, package
// assign).
func (c *Catalog) Manager() rdbtx.Manager { return c.backend.manager() }

// Close releases the backend's resources. The tree backend holds
// nothing to release; the bolt backend closes its underlying file.
func (c *Catalog) Close() error {
	if b, ok := c.backend.(boltBackend); ok {
		return b.db.Close()
	}
	return nil
}

// UseTx binds the catalog to the transaction currently in scope, or
// clears the binding with nil once it ends. Every Source/IndexSource the
// catalog hands out for the lifetime of the binding reads and writes
// through tx.
func (c *Catalog) UseTx(tx rdbtx.Tx) {
	c.mu.Lock()
	c.tx = tx
	c.mu.Unlock()
}

// withAutoTx runs fn under c.tx if one is bound, else opens and commits
// a throwaway top-level transaction around it.
func (c *Catalog) withAutoTx(fn func(tx rdbtx.Tx) error) error {
	c.mu.Lock()
	tx := c.tx
	c.mu.Unlock()
	if tx != nil {
		return fn(tx)
	}
	tx, err := c.backend.manager().Begin(nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// CreateTable registers a new base table of the given relation type,
// keyed by keyAttrs.
func (c *Catalog) CreateTable(name string, typ durotype.Type, keyAttrs []string) error {
	if typ.Kind() != durotype.KindRelation {
		return duroerr.ErrTypeMismatch.New("base table type must be a relation")
	}
	c.mu.Lock()
	if _, exists := c.tables[name]; exists {
		c.mu.Unlock()
		return duroerr.ErrElementExists.New(name)
	}
	c.mu.Unlock()
	al, err := newAttrLayout(typ, keyAttrs)
	if err != nil {
		return err
	}
	layout, err := al.fieldLayout(len(keyAttrs))
	if err != nil {
		return err
	}
	cmpFields := make([]recmap.CmpField, len(keyAttrs))
	for i := range keyAttrs {
		cmpFields[i] = recmap.CmpField{FieldNo: i}
	}

	var m recmap.Map
	if err := c.withAutoTx(func(tx rdbtx.Tx) error {
			var err error
			m, err = c.backend.createTable(tx, name, layout, cmpFields)
			return err
		}); err != nil {
		return err
	}

	td := &tableDef{name: name, typ: typ, keyAttrs: keyAttrs, layout: al, m: m, indexes: map[string]*indexDef{}}
	c.mu.Lock()
	c.tables[name] = td
	c.mu.Unlock()
	log.WithField("table", name).Info("table created")
	return nil
}

// DropTable removes a base table, dropping every index defined over it
// first.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	td, ok := c.tables[name]
	if !ok {
		c.mu.Unlock()
		return duroerr.ErrName.New(name)
	}
	delete(c.tables, name)
	c.mu.Unlock()
	return c.withAutoTx(func(tx rdbtx.Tx) error {
			return td.m.Drop(tx)
		})
}

// CreateIndex builds a secondary index over table tableName covering
// attrs, in order.
func (c *Catalog) CreateIndex(tableName, indexName string, attrs []string, asc []bool) error {
	c.mu.Lock()
	td, ok := c.tables[tableName]
	c.mu.Unlock()
	if !ok {
		return duroerr.ErrName.New(tableName)
	}
	if len(asc) != len(attrs) {
		asc = make([]bool, len(attrs))
		for i := range asc {
			asc[i] = true
		}
	}

	parentNos := make([]int, len(attrs))
	ixFields := make([]field.Info, 0, len(attrs)+len(td.keyAttrs))
	for i, a := range attrs {
		no, ok := td.layout.no[a]
		if !ok {
			return duroerr.ErrName.New(a)
		}
		parentNos[i] = no
		l, err := fixedLen(td.typ.Attrs[a])
		if err != nil {
			return err
		}
		ixFields = append(ixFields, field.Info{Name: a, Len: l})
	}
	for i, a := range td.keyAttrs {
		l, err := fixedLen(td.typ.Attrs[a])
		if err != nil {
			return err
		}
		ixFields = append(ixFields, field.Info{Name: "_pk" + strconv.Itoa(i), Len: l})
	}
	ixLayout := field.Layout{Fields: ixFields, KeyFieldCount: len(attrs)}
	cmpFields := make([]recmap.CmpField, len(attrs))
	for i, a := range asc {
		cmpFields[i] = recmap.CmpField{FieldNo: i, Descending: !a}
	}

	var store recmap.Map
	if err := c.withAutoTx(func(tx rdbtx.Tx) error {
			var err error
			store, err = c.backend.createTable(tx, tableName+"$"+indexName, ixLayout, cmpFields)
			return err
		}); err != nil {
		return err
	}

	ix := index.New(indexName, parentNos, asc, true, store, len(td.keyAttrs))
	c.mu.Lock()
	td.m.AddIndex(ix)
	td.indexes[indexName] = &indexDef{name: indexName, attrs: attrs, asc: asc, parent: td, ix: ix}
	c.mu.Unlock()
	log.WithField("table", tableName).WithField("index", indexName).Info("index created")
	return nil
}

// ResolveTable implements eval.Catalog: it wraps the named base table as
// an Object bound to the transaction currently in scope.
func (c *Catalog) ResolveTable(name string) (*object.Object, bool) {
	c.mu.RLock()
	td, ok := c.tables[name]
	tx := c.tx
	c.mu.RUnlock()
	if !ok || tx == nil {
		return nil, false
	}
	return object.NewTable(&boundTable{tx: tx, def: td}, &td.typ), true
}

// ResolveType implements expr.Resolver for both package eval and
// package optimize.
func (c *Catalog) ResolveType(name string) (durotype.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.tables[name]
	if !ok {
		return durotype.Type{}, false
	}
	return td.typ, true
}

// TableIndexes implements optimize.Catalog.
func (c *Catalog) TableIndexes(tableName string) []optimize.IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	td, ok := c.tables[tableName]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(td.indexes))
	for n := range td.indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]optimize.IndexInfo, len(names))
	for i, n := range names {
		ixd := td.indexes[n]
		out[i] = optimize.IndexInfo{Name: ixd.name, FieldNames: ixd.attrs, Ascending: ixd.asc, Unique: true}
	}
	return out
}

// TableSize implements optimize.Catalog.
func (c *Catalog) TableSize(tableName string) int64 {
	c.mu.RLock()
	td, ok := c.tables[tableName]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return td.m.EstSize()
}
