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

// Package duro is the engine's entry point: a Database owning one
// catalog and constraint set, and an Engine executing expression
// queries and multi-assignments against it. There is no query-language
// parser; callers hand the Engine an already-built expression tree or
// assignment batch.
package duro

import (
	"github.com/sirupsen/logrus"

	"github.com/rehartmann/durodbms-sub001/catalog"
	"github.com/rehartmann/durodbms-sub001/constraint"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
)

var log = logrus.WithField("component", "duro")

// Database owns one catalog's base tables, indexes and registered
// constraints.
type Database struct {
	Cat *catalog.Catalog
	Constraints *constraint.Set
}

// Open returns a fresh in-memory database, backed by the AVL-tree
// record-map implementation.
func Open() *Database {
	return &Database{Cat: catalog.NewMem(), Constraints: constraint.NewSet()}
}

// OpenBolt opens (creating if absent) a boltdb-backed database at
// path, surviving process restarts.
func OpenBolt(path string) (*Database, error) {
	cat, err := catalog.NewBolt(path)
	if err != nil {
		return nil, err
	}
	return &Database{Cat: cat, Constraints: constraint.NewSet()}, nil
}

// Close releases the database's storage resources.
func (db *Database) Close() error {
	return db.Cat.Close()
}

// CreateTable registers a new base table.
func (db *Database) CreateTable(name string, typ durotype.Type, keyAttrs []string) error {
	return db.Cat.CreateTable(name, typ, keyAttrs)
}

// DropTable removes a base table and its indexes.
func (db *Database) DropTable(name string) error {
	return db.Cat.DropTable(name)
}

// CreateIndex builds a secondary index over an existing table.
func (db *Database) CreateIndex(tableName, indexName string, attrs []string, asc []bool) error {
	return db.Cat.CreateIndex(tableName, indexName, attrs, asc)
}

// AddConstraint registers a named boolean expression every future
// assignment must keep true.
func (db *Database) AddConstraint(name string, e *expr.Expr) {
	db.Constraints.Add(name, e)
	log.WithField("constraint", name).Info("constraint added")
}

// RemoveConstraint drops a named constraint.
func (db *Database) RemoveConstraint(name string) {
	db.Constraints.Remove(name)
}

// Begin opens a new top-level transaction against the database's
// backend and binds the catalog to it, so ResolveTable/ResolveType
// calls made through an eval.Context built by Engine.Context observe it.
func (db *Database) Begin() (rdbtx.Tx, error) {
	tx, err := db.Cat.Manager().Begin(nil)
	if err != nil {
		return nil, err
	}
	db.Cat.UseTx(tx)
	return tx, nil
}

// Commit commits tx and unbinds the catalog from it.
func (db *Database) Commit(tx rdbtx.Tx) error {
	defer db.Cat.UseTx(nil)
	return tx.Commit()
}

// Rollback rolls tx back and unbinds the catalog from it.
func (db *Database) Rollback(tx rdbtx.Tx) error {
	defer db.Cat.UseTx(nil)
	return tx.Rollback()
}
