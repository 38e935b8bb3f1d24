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

package qresult

import (
	"sort"
	"strconv"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

// sliceIter replays an already-materialized tuple slice; every
// eager/grouping operator (SUMMARIZE, sort, GROUP, UNGROUP, TCLOSE,
// UNION and DIVIDE) ultimately hands its result to one of these.
type sliceIter struct {
	rows []*object.Object
	pos  int
}

func newSliceIter(rows []*object.Object) *sliceIter { return &sliceIter{rows: rows} }

func (it *sliceIter) Next() (*object.Object, error) {
	if it.pos >= len(it.rows) {
		return nil, duroerr.ErrNotFound.New()
	}
	r := it.rows[it.pos]
	it.pos++
	return r, nil
}

func (it *sliceIter) Close() error { return nil }

// storedScanIter walks a record map's cursor front to back, decoding
// each row into a tuple Object.
type storedScanIter struct {
	src    Source
	cursor recmap.Cursor
	first  bool
	done   bool
}

func openStoredScan(src Source) (Iterator, error) {
	cur, err := src.Scan()
	if err != nil {
		return nil, err
	}
	return &storedScanIter{src: src, cursor: cur}, nil
}

func (it *storedScanIter) Next() (*object.Object, error) {
	if it.done {
		return nil, duroerr.ErrNotFound.New()
	}
	var err error
	if !it.first {
		err = it.cursor.First()
		it.first = true
	} else {
		err = it.cursor.Next()
	}
	if duroerr.IsNotFound(err) {
		it.done = true
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	row, err := it.cursor.Row()
	if err != nil {
		return nil, err
	}
	return it.src.DecodeRow(row)
}

func (it *storedScanIter) Close() error { return it.cursor.Close() }

// indexProbeIter walks an index cursor, fetching the parent record by
// primary key for each match, stopping either at the cursor's natural
// end or at stopExpr.
type indexProbeIter struct {
	ctx      *eval.Context
	src      Source
	cursor   recmap.Cursor
	ix       IndexSource
	stopExpr *expr.Expr
	done     bool
}

func openIndexProbe(ctx *eval.Context, src Source, ix IndexSource, sel *expr.IndexSelect) (Iterator, error) {
	cur, err := ix.Probe(sel.ObjPV)
	if err != nil {
		return nil, err
	}
	return &indexProbeIter{ctx: ctx, src: src, cursor: cur, ix: ix, stopExpr: sel.StopExpr}, nil
}

func (it *indexProbeIter) Next() (*object.Object, error) {
	if it.done {
		return nil, duroerr.ErrNotFound.New()
	}
	row, err := it.cursor.Row()
	if err != nil {
		if duroerr.IsNotFound(err) {
			it.done = true
		}
		return nil, err
	}
	key := it.ix.PrimaryKey(row)
	full, err := it.src.GetByKey(key)
	if err != nil {
		return nil, err
	}
	tup, err := it.src.DecodeRow(full)
	if err != nil {
		return nil, err
	}
	if it.stopExpr != nil {
		stop, err := scopedEval(it.ctx, tup, it.stopExpr)
		if err != nil {
			return nil, err
		}
		if stop.Bool() {
			it.done = true
			return nil, duroerr.ErrNotFound.New()
		}
	}
	if err := it.cursor.Next(); duroerr.IsNotFound(err) {
		it.done = true
	} else if err != nil {
		return nil, err
	}
	return tup, nil
}

func (it *indexProbeIter) Close() error { return it.cursor.Close() }

// openWhere takes the optimizer's index-select fast path when present,
// otherwise wraps a plain predicate filter.
func openWhere(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	if sel := e.IndexSelect(); sel != nil {
		tableExpr := e.Args[0]
		var projNames []string
		if tableExpr.Kind == expr.KindOp && tableExpr.Op == expr.OpProject {
			for _, a := range tableExpr.Args[1:] {
				projNames = append(projNames, a.VarName)
			}
			tableExpr = tableExpr.Args[0]
		}
		if src, ok := sourceOf(ctx, tableExpr); ok {
			if ix, ok := src.IndexScan(sel.IndexName); ok {
				probe, err := openIndexProbe(ctx, src, ix, sel)
				if err != nil {
					return nil, err
				}
				// The probe only honors the leading index prefix; the
				// full predicate still runs as the residual filter.
				var it Iterator = &filterIter{ctx: ctx, child: probe, pred: e.Args[1]}
				if projNames != nil {
					it = &projectIter{child: it, names: projNames, seen: map[string]bool{}}
				}
				return it, nil
			}
		}
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &filterIter{ctx: ctx, child: child, pred: e.Args[1]}, nil
}

type filterIter struct {
	ctx   *eval.Context
	child Iterator
	pred  *expr.Expr
}

func (it *filterIter) Next() (*object.Object, error) {
	for {
		tup, err := it.child.Next()
		if err != nil {
			return nil, err
		}
		v, err := scopedEval(it.ctx, tup, it.pred)
		if err != nil {
			return nil, err
		}
		if v.Bool() {
			return tup, nil
		}
	}
}

func (it *filterIter) Close() error { return it.child.Close() }

// openProject streams distinct projections, eliminating duplicates
// produced by dropping attributes.
func openProject(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	names := make([]string, len(e.Args)-1)
	for i, a := range e.Args[1:] {
		names[i] = a.VarName
	}
	return &projectIter{child: child, names: names, seen: map[string]bool{}}, nil
}

type projectIter struct {
	child Iterator
	names []string
	seen  map[string]bool
}

func (it *projectIter) Next() (*object.Object, error) {
	for {
		tup, err := it.child.Next()
		if err != nil {
			return nil, err
		}
		out := map[string]*object.Object{}
		for _, n := range it.names {
			v, ok := tup.GetAttr(n)
			if !ok {
				return nil, duroerr.ErrName.New(n)
			}
			out[n] = v
		}
		projected := object.NewTuple(out)
		key := tupleKey(projected)
		if it.seen[key] {
			continue
		}
		it.seen[key] = true
		return projected, nil
	}
}

func (it *projectIter) Close() error { return it.child.Close() }

// openRemove computes the complement attribute set against the child's
// inferred type and projects onto it; REMOVE ordinarily never reaches
// here since package xform rewrites it to PROJECT, but evaluating a
// tree ahead of transformation (e.g. from a test) still works.
func openRemove(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rt, err := expr.Infer(e.Args[0], nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	removed := map[string]bool{}
	for _, a := range e.Args[1:] {
		removed[a.VarName] = true
	}
	var keep []*expr.Expr
	for name := range rt.Attrs {
		if !removed[name] {
			keep = append(keep, expr.NewVar(name))
		}
	}
	proj := expr.NewOp(expr.OpProject, append([]*expr.Expr{e.Args[0]}, keep...)...)
	return openProject(ctx, proj)
}

func openRename(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &renameIter{child: child, pairs: e.Renames}, nil
}

type renameIter struct {
	child Iterator
	pairs []expr.RenamePair
}

func (it *renameIter) Next() (*object.Object, error) {
	tup, err := it.child.Next()
	if err != nil {
		return nil, err
	}
	out := map[string]*object.Object{}
	renamed := map[string]bool{}
	for _, p := range it.pairs {
		v, ok := tup.GetAttr(p.From)
		if !ok {
			return nil, duroerr.ErrName.New(p.From)
		}
		out[p.To] = v
		renamed[p.From] = true
	}
	for _, n := range tup.AttrNames() {
		if renamed[n] {
			continue
		}
		v, _ := tup.GetAttr(n)
		out[n] = v
	}
	return object.NewTuple(out), nil
}

func (it *renameIter) Close() error { return it.child.Close() }

func openExtend(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &extendIter{ctx: ctx, child: child, attrs: e.Extends}, nil
}

type extendIter struct {
	ctx   *eval.Context
	child Iterator
	attrs []expr.ExtendAttr
}

func (it *extendIter) Next() (*object.Object, error) {
	tup, err := it.child.Next()
	if err != nil {
		return nil, err
	}
	out := tup.Copy()
	for _, a := range it.attrs {
		v, err := scopedEval(it.ctx, tup, a.Expr)
		if err != nil {
			return nil, err
		}
		out.SetAttr(a.Name, v)
	}
	return out, nil
}

func (it *extendIter) Close() error { return it.child.Close() }

// openWrap combines the attributes named in e.Args[1:len-1] into a
// single tuple-valued attribute named by the last argument.
func openWrap(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	names := e.Args[1 : len(e.Args)-1]
	wrapName := e.Args[len(e.Args)-1].VarName
	wrapped := make([]string, len(names))
	for i, a := range names {
		wrapped[i] = a.VarName
	}
	return &wrapIter{child: child, wrapped: wrapped, wrapName: wrapName}, nil
}

type wrapIter struct {
	child    Iterator
	wrapped  []string
	wrapName string
}

func (it *wrapIter) Next() (*object.Object, error) {
	tup, err := it.child.Next()
	if err != nil {
		return nil, err
	}
	inner := map[string]*object.Object{}
	wset := map[string]bool{}
	for _, n := range it.wrapped {
		v, ok := tup.GetAttr(n)
		if !ok {
			return nil, duroerr.ErrName.New(n)
		}
		inner[n] = v
		wset[n] = true
	}
	out := map[string]*object.Object{}
	for _, n := range tup.AttrNames() {
		if wset[n] {
			continue
		}
		v, _ := tup.GetAttr(n)
		out[n] = v
	}
	out[it.wrapName] = object.NewTuple(inner)
	return object.NewTuple(out), nil
}

func (it *wrapIter) Close() error { return it.child.Close() }

// openUnwrap flattens each named tuple-valued attribute's fields back
// into the outer tuple.
func openUnwrap(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	names := make([]string, len(e.Args)-1)
	for i, a := range e.Args[1:] {
		names[i] = a.VarName
	}
	return &unwrapIter{child: child, names: names}, nil
}

type unwrapIter struct {
	child Iterator
	names []string
}

func (it *unwrapIter) Next() (*object.Object, error) {
	tup, err := it.child.Next()
	if err != nil {
		return nil, err
	}
	unwrapped := map[string]bool{}
	out := map[string]*object.Object{}
	for _, n := range it.names {
		v, ok := tup.GetAttr(n)
		if !ok || v.Kind() != object.TupleKind {
			return nil, duroerr.ErrTypeMismatch.New("unwrap attribute must be TUPLE-valued")
		}
		for _, inner := range v.AttrNames() {
			iv, _ := v.GetAttr(inner)
			out[inner] = iv
		}
		unwrapped[n] = true
	}
	for _, n := range tup.AttrNames() {
		if unwrapped[n] {
			continue
		}
		v, _ := tup.GetAttr(n)
		out[n] = v
	}
	return object.NewTuple(out), nil
}

func (it *unwrapIter) Close() error { return it.child.Close() }

// tupleKey builds a canonical string for set-membership / dedup
// comparisons, derived from the tuple's structural hash rather than a
// hand-rolled deep-equal.
func tupleKey(o *object.Object) string {
	h, err := o.Hash()
	if err != nil {
		return ""
	}
	return strconv.FormatUint(h, 16)
}

// subKey builds a tupleKey restricted to a named attribute subset, used
// by the join family to compare tuples on their common attributes.
func subKey(o *object.Object, names []string) string {
	attrs := make(map[string]*object.Object, len(names))
	for _, n := range names {
		v, _ := o.GetAttr(n)
		attrs[n] = v
	}
	return tupleKey(object.NewTuple(attrs))
}

// commonAttrs returns the sorted names present in both tuple types.
func commonAttrs(a, b map[string]durotype.Type) []string {
	var names []string
	for n := range a {
		if _, ok := b[n]; ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}
