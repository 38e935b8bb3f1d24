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

package duro

import (
	"github.com/rehartmann/durodbms-sub001/assign"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/optimize"
	"github.com/rehartmann/durodbms-sub001/qresult"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
	"github.com/rehartmann/durodbms-sub001/xform"
)

// Engine ties one Database to the scalar-operator registry and
// assignment engine needed to run queries and multi-assignments
// against it.
type Engine struct {
	DB *Database
	Ops *eval.Registry
	Assigner *assign.Engine
}

// NewEngine builds an Engine bound to db, with the default scalar
// operator set and a fresh assignment engine wired to db's
// catalog and constraints.
func NewEngine(db *Database) *Engine {
	return &Engine{
		DB: db,
		Ops: eval.NewDefaultRegistry(),
		Assigner: assign.New(db.Cat, db.Constraints),
	}
}

// Context builds the eval.Context a Query/Execute call runs under,
// bound to tx.
func (e *Engine) Context(tx rdbtx.Tx) *eval.Context {
	return &eval.Context{Catalog: e.DB.Cat, Ops: e.Ops, TxActive: tx != nil}
}

// Query evaluates an expression tree to completion: transform
// (algebraic rewrites plus any declared-empty hints from the
// database's constraints), optimize (index selection), then open a
// row iterator over the result if it is relation-valued.
//
// A non-relation result (a scalar, tuple, or array expression) is
// returned directly as its evaluated Object with a nil iterator.
func (e *Engine) Query(ctx *eval.Context, e0 *expr.Expr) (*object.Object, qresult.Iterator, error) {
	transformed, err := xform.Transform(e0, e.DB.Cat)
	if err != nil {
		return nil, nil, err
	}
	for _, hint := range e.DB.Constraints.Hints() {
		transformed, err = xform.ReplaceProvenEmpty(transformed, hint, e.DB.Cat)
		if err != nil {
			return nil, nil, err
		}
	}
	optimized, err := optimize.Optimize(transformed, e.DB.Cat)
	if err != nil {
		return nil, nil, err
	}

	typ, err := expr.Infer(optimized, nil, e.DB.Cat)
	if err != nil {
		return nil, nil, err
	}
	if typ.Kind() != durotype.KindRelation {
		v, err := eval.Eval(ctx, optimized)
		return v, nil, err
	}

	obj, err := eval.Eval(ctx, optimized)
	if err != nil {
		return nil, nil, err
	}
	it, err := qresult.Open(ctx, obj)
	if err != nil {
		return nil, nil, err
	}
	return nil, it, nil
}

// Execute runs one multi-assignment batch to completion under tx.
func (e *Engine) Execute(ctx *eval.Context, tx rdbtx.Tx, b assign.Batch) error {
	return e.Assigner.Execute(ctx, tx, b)
}
