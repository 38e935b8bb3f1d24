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

// Package eval implements the expression evaluator: it
// reduces an expression to an Object, building relational results
// lazily as a virtual-table Object wrapping the defining expression
// rather than eagerly materializing rows.
package eval

import (
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// Lookup resolves a VAR node to an already-bound Object (e.g. a loop
// variable inside an iterator, or a tuple attribute in scope); returning
// ok=false lets Eval fall through to catalog/table resolution.
type Lookup func(name string) (*object.Object, bool)

// Catalog resolves a table name to a stored table's Object, used when a
// VAR or TABLE-REF name isn't found in Lookup and a transaction is
// active.
type Catalog interface {
	ResolveTable(name string) (*object.Object, bool)
	expr.Resolver
}

// Context carries everything Eval needs: the scalar-operator registry,
// variable lookup, and catalog. TxActive reports whether a transaction
// is open, gating catalog fallback.
type Context struct {
	Lookup   Lookup
	Catalog  Catalog
	TxActive bool
	Ops      *Registry
}

// ScalarOp is a registered scalar operator implementation.
type ScalarOp func(ctx *Context, args []*object.Object) (*object.Object, error)

// Registry maps operator names the evaluator doesn't special-case to
// their implementation.
type Registry struct {
	ops map[string]ScalarOp
}

func NewRegistry() *Registry { return &Registry{ops: map[string]ScalarOp{}} }

func (r *Registry) Register(name string, op ScalarOp) { r.ops[name] = op }

func (r *Registry) Lookup(name string) (ScalarOp, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Eval reduces e to an Object.
func Eval(ctx *Context, e *expr.Expr) (*object.Object, error) {
	switch e.Kind {
	case expr.KindObject:
		return e.Obj.Copy(), nil
	case expr.KindTableRef:
		return resolveName(ctx, e.TableRefName)
	case expr.KindVar:
		return resolveName(ctx, e.VarName)
	case expr.KindOp:
		return evalOp(ctx, e)
	}
	return nil, duroerr.ErrInternal.New("unknown expression kind")
}

func resolveName(ctx *Context, name string) (*object.Object, error) {
	if ctx.Lookup != nil {
		if v, ok := ctx.Lookup(name); ok {
			return v, nil
		}
	}
	if ctx.TxActive && ctx.Catalog != nil {
		if v, ok := ctx.Catalog.ResolveTable(name); ok {
			return v, nil
		}
	}
	return nil, duroerr.ErrName.New(name)
}

var relationalOps = map[string]bool{
	expr.OpWhere: true, expr.OpProject: true, expr.OpRemove: true, expr.OpRename: true,
	expr.OpExtend: true, expr.OpUnion: true, expr.OpMinus: true, expr.OpSemiminus: true,
	expr.OpIntersect: true, expr.OpSemijoin: true, expr.OpJoin: true, expr.OpDivide: true,
	expr.OpSummarize: true, expr.OpGroup: true, expr.OpUngroup: true, expr.OpTclose: true,
	expr.OpWrap: true, expr.OpUnwrap: true, expr.OpRelation: true, expr.OpUpdate: true,
	"sort": true,
}

func evalOp(ctx *Context, e *expr.Expr) (*object.Object, error) {
	switch e.Op {
	case expr.OpIf:
		return evalIf(ctx, e)
	case expr.OpIsEmpty:
		return evalIsEmpty(ctx, e)
	case expr.OpCount:
		return evalCount(ctx, e)
	case expr.OpSum, expr.OpAvg, expr.OpMin, expr.OpMax, expr.OpAll, expr.OpAny:
		return evalAggregate(ctx, e)
	case expr.OpTuple:
		return evalTuple(ctx, e)
	case expr.OpArray:
		return evalArray(ctx, e)
	case expr.OpDot:
		return evalDot(ctx, e)
	case expr.OpIndex:
		return evalIndexOp(ctx, e)
	}

	if relationalOps[e.Op] {
		rt, err := expr.Infer(e, nil, ctx.Catalog)
		if err != nil {
			return nil, err
		}
		return object.NewTable(e, &rt), nil
	}

	// Generic scalar operator: evaluate args then dispatch.
	args := make([]*object.Object, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(ctx, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if ctx.Ops != nil {
		if op, ok := ctx.Ops.Lookup(e.Op); ok {
			return op(ctx, args)
		}
	}
	return nil, duroerr.ErrOperatorNotFound.New(e.Op)
}

// evalIf evaluates exactly one of the two branches.
func evalIf(ctx *Context, e *expr.Expr) (*object.Object, error) {
	cond, err := Eval(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	if cond.Kind() != object.BoolKind {
		return nil, duroerr.ErrTypeMismatch.New("IF condition must be BOOLEAN")
	}
	if cond.Bool() {
		return Eval(ctx, e.Args[1])
	}
	return Eval(ctx, e.Args[2])
}

// Opener is implemented by whatever can open a tuple iterator over a
// virtual or stored table; qresult implements it. Kept as a narrow
// interface here to avoid eval<->qresult import cycle (qresult calls
// back into eval for WHERE/EXTEND predicate evaluation).
type Opener interface {
	Open(ctx *Context, table *object.Object) (RowIter, error)
}

// RowIter is the minimal pull interface eval needs for is_empty/count/
// aggregates: qresult.Iterator satisfies it.
type RowIter interface {
	Next() (*object.Object, error)
	Close() error
}

// opener is installed by the qresult package at init time via
// RegisterOpener, breaking the import cycle eval<->qresult would
// otherwise require.
var opener Opener

// RegisterOpener lets qresult install itself as the table-opening
// implementation used by is_empty/count/aggregates.
func RegisterOpener(o Opener) { opener = o }

// Open opens a tuple iterator over a virtual or stored table Object,
// delegating to whichever package registered itself via RegisterOpener.
// Exported so callers outside the evaluator itself (package assign's
// COPY execution) can materialize a table without importing qresult
// directly.
func Open(ctx *Context, table *object.Object) (RowIter, error) {
	if opener == nil {
		return nil, duroerr.ErrInternal.New("no table opener registered")
	}
	return opener.Open(ctx, table)
}

func evalIsEmpty(ctx *Context, e *expr.Expr) (*object.Object, error) {
	tbl, err := Eval(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, duroerr.ErrInternal.New("no table opener registered")
	}
	it, err := opener.Open(ctx, tbl)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	_, err = it.Next()
	if duroerr.IsNotFound(err) {
		return object.NewBool(true), nil
	}
	if err != nil {
		return nil, err
	}
	return object.NewBool(false), nil
}

// evalCount removes duplicates then consumes the result. The counted
// cardinality is fed back into a stored table's size estimate so the
// optimizer's next plan starts from a real row count.
func evalCount(ctx *Context, e *expr.Expr) (*object.Object, error) {
	tbl, err := Eval(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, duroerr.ErrInternal.New("no table opener registered")
	}
	it, err := opener.Open(ctx, tbl)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	seen := map[uint64]bool{}
	var n int64
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		h, err := tup.Hash()
		if err != nil {
			return nil, err
		}
		if seen[h] {
			continue
		}
		seen[h] = true
		n++
	}
	if tbl.Kind() == object.TableKind {
		if st, ok := tbl.Table().(interface{ SetEstSize(int64) }); ok {
			st.SetEstSize(n)
		}
	}
	return object.NewInt(n), nil
}

func evalAggregate(ctx *Context, e *expr.Expr) (*object.Object, error) {
	tbl, err := Eval(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	if opener == nil {
		return nil, duroerr.ErrInternal.New("no table opener registered")
	}
	it, err := opener.Open(ctx, tbl)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var perTupleExpr *expr.Expr
	if len(e.Args) > 1 {
		perTupleExpr = e.Args[1]
	}

	switch e.Op {
	case expr.OpAll:
		return reduceBool(ctx, it, perTupleExpr, true)
	case expr.OpAny:
		return reduceBool(ctx, it, perTupleExpr, false)
	case expr.OpMin, expr.OpMax:
		return reduceMinMax(ctx, it, perTupleExpr, e.Op == expr.OpMax)
	case expr.OpSum:
		return reduceSum(ctx, it, perTupleExpr)
	case expr.OpAvg:
		return reduceAvg(ctx, it, perTupleExpr)
	}
	return nil, duroerr.ErrOperatorNotFound.New(e.Op)
}

func perTupleValue(ctx *Context, tuple *object.Object, e *expr.Expr) (*object.Object, error) {
	if e == nil {
		return tuple, nil
	}
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
	return Eval(&scoped, e)
}

func reduceBool(ctx *Context, it RowIter, e *expr.Expr, all bool) (*object.Object, error) {
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := perTupleValue(ctx, tup, e)
		if err != nil {
			return nil, err
		}
		if all && !v.Bool() {
			return object.NewBool(false), nil
		}
		if !all && v.Bool() {
			return object.NewBool(true), nil
		}
	}
	return object.NewBool(all), nil
}

func reduceMinMax(ctx *Context, it RowIter, e *expr.Expr, max bool) (*object.Object, error) {
	var best *object.Object
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := perTupleValue(ctx, tup, e)
		if err != nil {
			return nil, err
		}
		if best == nil {
			best = v
			continue
		}
		if less(v, best) == max {
			continue
		}
		best = v
	}
	if best == nil {
		return nil, duroerr.ErrAggregateUndefined.New()
	}
	return best, nil
}

func less(a, b *object.Object) bool {
	switch a.Kind() {
	case object.IntKind:
		return a.Int() < b.Int()
	case object.FloatKind:
		return a.Float() < b.Float()
	case object.BinKind:
		return a.String() < b.String()
	case object.TimeKind:
		return a.Time().Before(b.Time())
	}
	return false
}

// reduceSum checks for int64 overflow, raising TYPE_CONSTRAINT_VIOLATION
// rather than silently wrapping.
func reduceSum(ctx *Context, it RowIter, e *expr.Expr) (*object.Object, error) {
	var isFloat bool
	var isum int64
	var fsum float64
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := perTupleValue(ctx, tup, e)
		if err != nil {
			return nil, err
		}
		if v.Kind() == object.FloatKind {
			isFloat = true
			fsum += v.Float()
			continue
		}
		next := isum + v.Int()
		if (v.Int() > 0 && next < isum) || (v.Int() < 0 && next > isum) {
			return nil, duroerr.ErrTypeConstraintViolation.New("sum overflow")
		}
		isum = next
	}
	if isFloat {
		return object.NewFloat(fsum + float64(isum)), nil
	}
	return object.NewInt(isum), nil
}

// reduceAvg raises AGGREGATE_UNDEFINED on an empty relation.
func reduceAvg(ctx *Context, it RowIter, e *expr.Expr) (*object.Object, error) {
	var sum float64
	var n int64
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		v, err := perTupleValue(ctx, tup, e)
		if err != nil {
			return nil, err
		}
		if v.Kind() == object.FloatKind {
			sum += v.Float()
		} else {
			sum += float64(v.Int())
		}
		n++
	}
	if n == 0 {
		return nil, duroerr.ErrAggregateUndefined.New()
	}
	return object.NewFloat(sum / float64(n)), nil
}

func evalTuple(ctx *Context, e *expr.Expr) (*object.Object, error) {
	attrs := map[string]*object.Object{}
	for i := 0; i+1 < len(e.Args); i += 2 {
		v, err := Eval(ctx, e.Args[i+1])
		if err != nil {
			return nil, err
		}
		attrs[e.Args[i].VarName] = v
	}
	return object.NewTuple(attrs), nil
}

func evalArray(ctx *Context, e *expr.Expr) (*object.Object, error) {
	elems := make([]*object.Object, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(ctx, a)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	var et durotype.Type
	if len(elems) > 0 {
		et = *elems[0].Type()
	}
	return object.NewArray(elems, &et), nil
}

// evalDot implements "." attribute/property access: first
// tuple-attribute, then scalar-property via a getter, falling back to a
// qualified variable name.
func evalDot(ctx *Context, e *expr.Expr) (*object.Object, error) {
	name := e.Args[1].VarName
	left, err := Eval(ctx, e.Args[0])
	if err != nil {
		// An unresolvable left side may still form a qualified
		// variable name ("t.attr" bound as one unit).
		if duroerr.ErrName.Is(err) && e.Args[0].Kind == expr.KindVar {
			return resolveName(ctx, e.Args[0].VarName+"."+name)
		}
		return nil, err
	}
	if left.Kind() == object.TupleKind {
		if v, ok := left.GetAttr(name); ok {
			return v, nil
		}
	}
	if left.Type() != nil {
		getterName := left.Type().String() + "_" + name
		if ctx.Ops != nil {
			if op, ok := ctx.Ops.Lookup(getterName); ok {
				return op(ctx, []*object.Object{left})
			}
		}
	}
	return resolveName(ctx, name)
}

func evalIndexOp(ctx *Context, e *expr.Expr) (*object.Object, error) {
	left, err := Eval(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	idx, err := Eval(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	switch left.Kind() {
	case object.ArrayKind:
		i := idx.Int()
		if i < 0 || i >= int64(len(left.Array())) {
			return nil, duroerr.ErrInvalidArgument.New("array index out of range")
		}
		return left.Array()[i], nil
	case object.TupleKind:
		if v, ok := left.GetAttr(idx.String()); ok {
			return v, nil
		}
		return nil, duroerr.ErrName.New(idx.String())
	}
	return nil, duroerr.ErrTypeMismatch.New("[] requires an array or tuple")
}
