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

// Package assign implements the multi-assignment engine: a single
// atomic batch of inserts, updates, deletes and copies against virtual
// or base tables, resolved down to base-table operations,
// constraint-checked, and run inside a subtransaction.
package assign

import (
	"github.com/sirupsen/logrus"

	"github.com/rehartmann/durodbms-sub001/catalog"
	"github.com/rehartmann/durodbms-sub001/constraint"
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/rdbtx"
)

var log = logrus.WithField("component", "assign")

// UpdateAttr is one "attr := expr" pair of an UpdateOp.
type UpdateAttr struct {
	Name string
	Expr *expr.Expr
}

// InsertOp inserts Value into Target.
type InsertOp struct {
	Target *expr.Expr
	Value *object.Object
}

// UpdateOp updates every tuple of Target matching Cond (nil means every
// tuple), per Attrs.
type UpdateOp struct {
	Target *expr.Expr
	Cond *expr.Expr
	Attrs []UpdateAttr
}

// DeleteOp deletes every tuple of Target matching Cond (nil means
// every tuple).
type DeleteOp struct {
	Target *expr.Expr
	Cond *expr.Expr
}

// CopyOp replaces Dst's contents with Src's.
type CopyOp struct {
	Dst *expr.Expr
	Src *expr.Expr
}

// Batch is the multi-assignment input: four parallel
// operation lists executed atomically.
type Batch struct {
	Inserts []InsertOp
	Updates []UpdateOp
	Deletes []DeleteOp
	Copies []CopyOp
}

func (b Batch) count() int {
	return len(b.Inserts) + len(b.Updates) + len(b.Deletes) + len(b.Copies)
}

// Engine executes Batches against one catalog, checking the catalog's
// constraint set before committing any change.
type Engine struct {
	Cat *catalog.Catalog
	Constraints *constraint.Set
}

// New builds an assignment engine bound to cat's tables and cs's
// constraints.
func New(cat *catalog.Catalog, cs *constraint.Set) *Engine {
	return &Engine{Cat: cat, Constraints: cs}
}

// baseInsert, baseUpdate and baseDelete are the concrete base-table
// operations virtual targets resolve down to.
type baseInsert struct {
	table string
	tuple *object.Object
}

type baseUpdate struct {
	table string
	cond *expr.Expr
	attrs []UpdateAttr
}

type baseDelete struct {
	table string
	cond *expr.Expr
}

// Execute runs one multi-assignment to completion: typecheck, resolve,
// reject double-targeting, check constraints, execute under a
// subtransaction when more than one effective operation is present, and
// commit or roll back.
func (eng *Engine) Execute(ctx *eval.Context, tx rdbtx.Tx, b Batch) error {
	if tx == nil {
		return duroerr.ErrNoRunningTx.New()
	}
	if b.count() == 0 {
		return nil
	}

	var bis []baseInsert
	var bus []baseUpdate
	var bds []baseDelete
	targets := map[string]bool{}

	for _, op := range b.Inserts {
		table, tup, err := eng.resolveInsertTarget(ctx, op.Target, op.Value.Copy())
		if err != nil {
			return err
		}
		if err := eng.checkAssignable(ctx, table, tup); err != nil {
			return err
		}
		if targets[table] {
			return duroerr.ErrInvalidArgument.New("table targeted twice in one assignment: " + table)
		}
		targets[table] = true
		bis = append(bis, baseInsert{table: table, tuple: tup})
	}
	for _, op := range b.Updates {
		table, cond, attrs, err := eng.resolveUpdateTarget(ctx, op.Target, op.Cond, op.Attrs)
		if err != nil {
			return err
		}
		if targets[table] {
			return duroerr.ErrInvalidArgument.New("table targeted twice in one assignment: " + table)
		}
		targets[table] = true
		bus = append(bus, baseUpdate{table: table, cond: cond, attrs: attrs})
	}
	for _, op := range b.Deletes {
		table, cond, err := eng.resolveDeleteTarget(ctx, op.Target, op.Cond)
		if err != nil {
			return err
		}
		if targets[table] {
			return duroerr.ErrInvalidArgument.New("table targeted twice in one assignment: " + table)
		}
		targets[table] = true
		bds = append(bds, baseDelete{table: table, cond: cond})
	}
	var copies []CopyOp
	for _, op := range b.Copies {
		dstName, err := tableRefName(op.Dst)
		if err != nil {
			return err
		}
		if targets[dstName] {
			return duroerr.ErrInvalidArgument.New("table targeted twice in one assignment: " + dstName)
		}
		for _, src := range sourceTables(op.Src) {
			if targets[src] {
				return duroerr.ErrInvalidArgument.New("table is both target and later source: " + src)
			}
		}
		targets[dstName] = true
		copies = append(copies, op)
	}

	effects, err := eng.buildEffects(bis, bus, bds, copies)
	if err != nil {
		return err
	}
	if err := constraint.CheckSet(ctx, eng.Cat, eng.Constraints, effects); err != nil {
		return err
	}

	needsSubtx := b.count() > 1 || eng.singleInsertNeedsSubtx(bis)
	execTx := tx
	if needsSubtx {
		sub, err := eng.Cat.Manager().Begin(tx)
		if err != nil {
			return err
		}
		execTx = sub
	}
	eng.Cat.UseTx(execTx)

	if err := eng.apply(ctx, bis, bus, bds, copies); err != nil {
		if needsSubtx {
			execTx.Rollback()
			eng.Cat.UseTx(tx)
		}
		return err
	}
	if needsSubtx {
		if err := execTx.Commit(); err != nil {
			eng.Cat.UseTx(tx)
			return err
		}
		eng.Cat.UseTx(tx)
	}
	log.WithField("ops", b.count()).Debug("assignment committed")
	return nil
}

// singleInsertNeedsSubtx reports whether a lone insert must still open a
// subtransaction because its target table carries two or more indexes.
func (eng *Engine) singleInsertNeedsSubtx(bis []baseInsert) bool {
	if len(bis) != 1 {
		return false
	}
	return eng.Cat.IndexCount(bis[0].table) >= 2
}

func (eng *Engine) apply(ctx *eval.Context, bis []baseInsert, bus []baseUpdate, bds []baseDelete, copies []CopyOp) error {
	for _, ins := range bis {
		if err := eng.Cat.InsertTuple(ins.table, ins.tuple); err != nil {
			return err
		}
	}
	for _, upd := range bus {
		match := condMatcher(ctx, upd.cond)
		apply := func(tup *object.Object) (map[string]*object.Object, error) {
			changes := make(map[string]*object.Object, len(upd.attrs))
			for _, a := range upd.attrs {
				v, err := evalOverTuple(ctx, a.Expr, tup)
				if err != nil {
					return nil, err
				}
				changes[a.Name] = v
			}
			return changes, nil
		}
		if _, err := eng.Cat.UpdateMatching(upd.table, match, apply); err != nil {
			return err
		}
	}
	for _, del := range bds {
		match := condMatcher(ctx, del.cond)
		if _, err := eng.Cat.DeleteMatching(del.table, match); err != nil {
			return err
		}
	}
	for _, cp := range copies {
		if err := eng.execCopy(ctx, cp); err != nil {
			return err
		}
	}
	return nil
}

// condMatcher adapts an optional boolean expression into the
// match-per-tuple callback UpdateMatching/DeleteMatching need,
// evaluating the condition with the tuple's own attributes shadowing
// the ambient scope (the same pattern package qresult's scopedEval
// uses for WHERE/EXTEND predicates).
func condMatcher(ctx *eval.Context, cond *expr.Expr) func(*object.Object) (bool, error) {
	if cond == nil {
		return func(*object.Object) (bool, error) { return true, nil }
	}
	return func(tup *object.Object) (bool, error) {
		v, err := evalOverTuple(ctx, cond, tup)
		if err != nil {
			return false, err
		}
		return v.Kind() == object.BoolKind && v.Bool(), nil
	}
}

func evalOverTuple(ctx *eval.Context, e *expr.Expr, tup *object.Object) (*object.Object, error) {
	scoped := *ctx
	scoped.Lookup = func(name string) (*object.Object, bool) {
		if v, ok := tup.GetAttr(name); ok {
			return v, true
		}
		if ctx.Lookup != nil {
			return ctx.Lookup(name)
		}
		return nil, false
	}
	return eval.Eval(&scoped, e)
}

// sourceTables collects every table name an expression reads from.
func sourceTables(e *expr.Expr) []string {
	var out []string
	expr.Walk(e, func(n *expr.Expr) {
		if n.Kind == expr.KindTableRef {
			out = append(out, n.TableRefName)
		}
	})
	return out
}

func tableRefName(e *expr.Expr) (string, error) {
	switch e.Kind {
	case expr.KindTableRef:
		return e.TableRefName, nil
	case expr.KindVar:
		return e.VarName, nil
	}
	return "", duroerr.ErrNotSupported.New("target is not a table reference")
}

func (eng *Engine) checkAssignable(ctx *eval.Context, table string, tup *object.Object) error {
	declared, ok := eng.Cat.ResolveType(table)
	if !ok {
		return duroerr.ErrName.New(table)
	}
	tupType := declared.TupleType()
	for name, at := range tupType.Attrs {
		v, ok := tup.GetAttr(name)
		if !ok {
			return duroerr.ErrInvalidArgument.New("missing attribute: " + name)
		}
		if v.Type() != nil && !v.Type().Equal(at) {
			return duroerr.ErrTypeMismatch.New("attribute " + name + " has wrong type")
		}
	}
	return nil
}
