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
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// openUnion materializes both operands to eliminate cross-operand
// duplicates (set union has bag-of-tuples semantics collapsed to a
// set), then replays the result.
func openUnion(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	a, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := make([]*object.Object, 0, len(a)+len(b))
	for _, t := range a {
		k := tupleKey(t)
		if !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		k := tupleKey(t)
		if !seen[k] {
			seen[k] = true
			out = append(out, t)
		}
	}
	return newSliceIter(out), nil
}

// openMinus materializes the subtrahend into a membership set, then
// streams the minuend past it.
func openMinus(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	bSet := map[string]bool{}
	for _, t := range b {
		bSet[tupleKey(t)] = true
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &predicateSkipIter{child: child, keep: func(t *object.Object) bool { return !bSet[tupleKey(t)] }}, nil
}

// openIntersect keeps minuend tuples that are also present in the
// materialized second operand.
func openIntersect(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	bSet := map[string]bool{}
	for _, t := range b {
		bSet[tupleKey(t)] = true
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &predicateSkipIter{child: child, keep: func(t *object.Object) bool { return bSet[tupleKey(t)] }}, nil
}

// predicateSkipIter filters an already-open child stream by a plain Go
// predicate (no scalar-expression evaluation needed), shared by MINUS/
// INTERSECT/SEMIJOIN/SEMIMINUS.
type predicateSkipIter struct {
	child Iterator
	keep func(*object.Object) bool
}

func (it *predicateSkipIter) Next() (*object.Object, error) {
	for {
		tup, err := it.child.Next()
		if err != nil {
			return nil, err
		}
		if it.keep(tup) {
			return tup, nil
		}
	}
}

func (it *predicateSkipIter) Close() error { return it.child.Close() }

// commonOfSides infers both operand relation types and returns the
// attribute names they share, used by SEMIJOIN/SEMIMINUS/JOIN to match
// tuples the way a natural join does.
func commonOfSides(ctx *eval.Context, a, b *expr.Expr) ([]string, error) {
	at, err := expr.Infer(a, nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	bt, err := expr.Infer(b, nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	return commonAttrs(at.Attrs, bt.Attrs), nil
}

// openSemijoin keeps A tuples that have at least one match in B on
// their common attributes.
func openSemijoin(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	common, err := commonOfSides(ctx, e.Args[0], e.Args[1])
	if err != nil {
		return nil, err
	}
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	bSet := map[string]bool{}
	for _, t := range b {
		bSet[subKey(t, common)] = true
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &predicateSkipIter{child: child, keep: func(t *object.Object) bool { return bSet[subKey(t, common)] }}, nil
}

// openSemiminus keeps A tuples with no match in B on their common
// attributes.
func openSemiminus(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	common, err := commonOfSides(ctx, e.Args[0], e.Args[1])
	if err != nil {
		return nil, err
	}
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	bSet := map[string]bool{}
	for _, t := range b {
		bSet[subKey(t, common)] = true
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &predicateSkipIter{child: child, keep: func(t *object.Object) bool { return !bSet[subKey(t, common)] }}, nil
}

// openJoin computes a natural join: group B by its common-attribute
// subkey, then for each A tuple probe the group and merge. With no common attributes it degenerates to a cartesian
// product, since every subKey collapses to the empty string.
func openJoin(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	common, err := commonOfSides(ctx, e.Args[0], e.Args[1])
	if err != nil {
		return nil, err
	}
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	groups := map[string][]*object.Object{}
	for _, t := range b {
		k := subKey(t, common)
		groups[k] = append(groups[k], t)
	}
	child, err := openChild(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	return &joinIter{ctx: ctx, child: child, groups: groups, common: common}, nil
}

type joinIter struct {
	ctx     *eval.Context
	child   Iterator
	groups  map[string][]*object.Object
	common  []string
	pending []*object.Object
	left    *object.Object
	idx     int
}

func (it *joinIter) Next() (*object.Object, error) {
	for {
		if it.idx < len(it.pending) {
			right := it.pending[it.idx]
			it.idx++
			return mergeTuples(it.left, right), nil
		}
		tup, err := it.child.Next()
		if err != nil {
			return nil, err
		}
		it.left = tup
		it.pending = it.groups[subKey(tup, it.common)]
		it.idx = 0
	}
}

func (it *joinIter) Close() error { return it.child.Close() }

func mergeTuples(a, b *object.Object) *object.Object {
	out := a.Copy()
	for _, n := range b.AttrNames() {
		v, _ := b.GetAttr(n)
		out.SetAttr(n, v)
	}
	return out
}

// openDivide implements relational division: the quotient keeps every
// distinct projection of A onto (attrs(A) minus attrs(B)) for which A
// contains a matching tuple for every tuple of B.
func openDivide(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	at, err := expr.Infer(e.Args[0], nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	bt, err := expr.Infer(e.Args[1], nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	var xAttrs []string
	for n := range at.Attrs {
		if _, ok := bt.Attrs[n]; !ok {
			xAttrs = append(xAttrs, n)
		}
	}
	bAttrs := commonAttrs(bt.Attrs, bt.Attrs)

	a, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	b, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, duroerr.ErrInvalidArgument.New("DIVIDE requires a non-empty divisor")
	}

	// pairSet[x][y] records that some A tuple has this x/y combination.
	pairSet := map[string]map[string]bool{}
	xVals := map[string]*object.Object{}
	for _, t := range a {
		xk := subKey(t, xAttrs)
		yk := subKey(t, bAttrs)
		xVals[xk] = projectAttrs(t, xAttrs)
		if pairSet[xk] == nil {
			pairSet[xk] = map[string]bool{}
		}
		pairSet[xk][yk] = true
	}

	var out []*object.Object
	for xk, ys := range pairSet {
		ok := true
		for _, brow := range b {
			if !ys[subKey(brow, bAttrs)] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, xVals[xk])
		}
	}
	return newSliceIter(out), nil
}

func projectAttrs(t *object.Object, names []string) *object.Object {
	out := map[string]*object.Object{}
	for _, n := range names {
		v, _ := t.GetAttr(n)
		out[n] = v
	}
	return object.NewTuple(out)
}
