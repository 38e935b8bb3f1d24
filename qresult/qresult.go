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

// Package qresult implements the pull-based tuple iterators that drive
// the lazily-evaluated relational expressions the eval package builds:
// each node type gets an Iterator whose Next returns one tuple at a
// time (or the duroerr NOT_FOUND sentinel at end-of-sequence), and
// package init wires itself into eval via eval.RegisterOpener so
// is_empty/count/the aggregates can open any virtual or stored table
// without eval needing to import qresult.
package qresult

import (
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

func init() {
	eval.RegisterOpener(openerImpl{})
}

type openerImpl struct{}

func (openerImpl) Open(ctx *eval.Context, table *object.Object) (eval.RowIter, error) {
	return Open(ctx, table)
}

// Iterator is the pull interface every qresult implementation satisfies;
// it is exactly eval.RowIter, named locally so call sites in this
// package don't need to import eval for the type alone.
type Iterator = eval.RowIter

// Source is implemented by a catalog-bound stored table: a record map
// already tied to the transaction in scope, exposing just enough to
// drive a scan or an index probe without qresult depending on rdbtx or
// the catalog package directly.
type Source interface {
	object.Table
	// Scan opens a cursor over every stored record.
	Scan() (recmap.Cursor, error)
	// DecodeRow converts a stored Row into a tuple Object.
	DecodeRow(row recmap.Row) (*object.Object, error)
	// GetByKey fetches one record's full row by its key fields.
	GetByKey(key recmap.Row) (recmap.Row, error)
	// IndexScan resolves a named secondary index, if any.
	IndexScan(name string) (IndexSource, bool)
}

// IndexSource is the probe surface of a secondary index bound to a
// transaction.
type IndexSource interface {
	Probe(vals []*object.Object) (recmap.Cursor, error)
	PrimaryKey(row recmap.Row) recmap.Row
}

// Open dispatches on the kind of table a virtual or stored Object
// wraps, building the iterator that drives its tuple stream lazily.
func Open(ctx *eval.Context, tableObj *object.Object) (Iterator, error) {
	if tableObj == nil || tableObj.Kind() != object.TableKind {
		return nil, duroerr.ErrTypeMismatch.New("not a table value")
	}
	switch t := tableObj.Table().(type) {
	case Source:
		return openStoredScan(t)
	case *sliceSource:
		return newSliceIter(t.rows), nil
	case *expr.Expr:
		return openExpr(ctx, t)
	}
	return nil, duroerr.ErrInternal.New("table has no opener")
}

func openChild(ctx *eval.Context, argExpr *expr.Expr) (Iterator, error) {
	obj, err := eval.Eval(ctx, argExpr)
	if err != nil {
		return nil, err
	}
	return Open(ctx, obj)
}

// sourceOf evaluates argExpr and, if it resolves to a stored table,
// returns its Source; used by the index-select fast path in openWhere.
func sourceOf(ctx *eval.Context, argExpr *expr.Expr) (Source, bool) {
	obj, err := eval.Eval(ctx, argExpr)
	if err != nil {
		return nil, false
	}
	if obj.Kind() != object.TableKind {
		return nil, false
	}
	src, ok := obj.Table().(Source)
	return src, ok
}

func materializeAll(ctx *eval.Context, argExpr *expr.Expr) ([]*object.Object, error) {
	it, err := openChild(ctx, argExpr)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []*object.Object
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, tup)
	}
	return out, nil
}

func openExpr(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	switch e.Op {
	case expr.OpRelation:
		return openRelationLiteral(ctx, e)
	case expr.OpWhere:
		return openWhere(ctx, e)
	case expr.OpProject:
		return openProject(ctx, e)
	case expr.OpRemove:
		return openRemove(ctx, e)
	case expr.OpRename:
		return openRename(ctx, e)
	case expr.OpExtend:
		return openExtend(ctx, e)
	case expr.OpWrap:
		return openWrap(ctx, e)
	case expr.OpUnwrap:
		return openUnwrap(ctx, e)
	case expr.OpUnion:
		return openUnion(ctx, e)
	case expr.OpMinus:
		return openMinus(ctx, e)
	case expr.OpSemiminus:
		return openSemiminus(ctx, e)
	case expr.OpIntersect:
		return openIntersect(ctx, e)
	case expr.OpSemijoin:
		return openSemijoin(ctx, e)
	case expr.OpJoin:
		return openJoin(ctx, e)
	case expr.OpDivide:
		return openDivide(ctx, e)
	case expr.OpSummarize:
		return openSummarize(ctx, e)
	case expr.OpGroup:
		return openGroup(ctx, e)
	case expr.OpUngroup:
		return openUngroup(ctx, e)
	case expr.OpTclose:
		return openTclose(ctx, e)
	case "sort":
		return openSort(ctx, e)
	}
	return nil, duroerr.ErrOperatorNotFound.New(e.Op)
}

// scopedEval evaluates e with tuple's attributes shadowing the
// surrounding lookup scope, the same pattern eval.go's perTupleValue
// uses for aggregate per-tuple expressions.
func scopedEval(ctx *eval.Context, tuple *object.Object, e *expr.Expr) (*object.Object, error) {
	scoped := *ctx
	scoped.Lookup = func(name string) (*object.Object, bool) {
		if v, ok := tuple.GetAttr(name); ok {
			return v, true
		}
		if ctx.Lookup != nil {
			return ctx.Lookup(name)
		}
		return nil, false
	}
	return eval.Eval(&scoped, e)
}

// openRelationLiteral evaluates each Args[i] as a tuple literal; used
// for RELATION{...} constants and, via package xform, for the empty
// relation a proven-empty sub-expression is replaced by.
func openRelationLiteral(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rows := make([]*object.Object, 0, len(e.Args))
	for _, a := range e.Args {
		v, err := eval.Eval(ctx, a)
		if err != nil {
			return nil, err
		}
		rows = append(rows, v)
	}
	return newSliceIter(rows), nil
}

// sliceSource wraps an in-memory tuple slice as an object.Table so it
// can flow through Object/Open exactly like a stored or virtual table
// (used for per-group relations built by GROUP).
type sliceSource struct {
	name string
	rows []*object.Object
}

func (s *sliceSource) TableName() string { return s.name }

// newSliceTable wraps rows as a queryable table Object of the given
// relation type, for building per-group sub-relations (GROUP)
// on the fly without a defining expression or backing store.
func newSliceTable(rows []*object.Object, typ durotype.Type) *object.Object {
	return object.NewTable(&sliceSource{name: "$group", rows: rows}, &typ)
}
