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

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// openSummarize groups the summand by the attributes its PER relation
// exposes and computes one aggregate extend-attribute per group. By
// convention each e.Extends[i].Expr is either a no-arg COUNT or a
// unary aggregate whose single argument is the per-tuple value
// expression, evaluated against each grouped tuple in turn (the
// aggregate never references a nested sub-relation directly, since the
// grouping here is structural rather than expression-driven).
func openSummarize(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	perT, err := expr.Infer(e.Args[1], nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	perNames := commonAttrs(perT.Attrs, perT.Attrs)

	rows, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}

	type group struct {
		key  *object.Object
		rows []*object.Object
	}
	groups := map[string]*group{}
	var order []string
	for _, t := range rows {
		k := subKey(t, perNames)
		g, ok := groups[k]
		if !ok {
			g = &group{key: projectAttrs(t, perNames)}
			groups[k] = g
			order = append(order, k)
		}
		g.rows = append(g.rows, t)
	}
	// PER may enumerate group keys with no matching summand tuple;
	// those groups appear too, with the aggregate's zero/undefined
	// default (COUNT 0, SUM 0, ALL TRUE, ANY FALSE; AVG, MIN and MAX
	// raise on empty).
	perRows, err := materializeAll(ctx, e.Args[1])
	if err != nil {
		return nil, err
	}
	for _, t := range perRows {
		k := subKey(t, perNames)
		if _, ok := groups[k]; !ok {
			groups[k] = &group{key: projectAttrs(t, perNames)}
			order = append(order, k)
		}
	}

	out := make([]*object.Object, 0, len(order))
	for _, k := range order {
		g := groups[k]
		tup := g.key.Copy()
		for _, ext := range e.Extends {
			v, err := computeAgg(ctx, ext.Expr, g.rows)
			if err != nil {
				return nil, err
			}
			tup.SetAttr(ext.Name, v)
		}
		out = append(out, tup)
	}
	return newSliceIter(out), nil
}

// computeAgg evaluates one SUMMARIZE ADD clause against a group's rows.
func computeAgg(ctx *eval.Context, aggExpr *expr.Expr, rows []*object.Object) (*object.Object, error) {
	var valueExpr *expr.Expr
	if len(aggExpr.Args) > 0 {
		valueExpr = aggExpr.Args[0]
	}
	switch aggExpr.Op {
	case expr.OpCount:
		return object.NewInt(int64(len(rows))), nil
	case expr.OpSum:
		var isum int64
		var fsum float64
		var isFloat bool
		for _, t := range rows {
			v, err := scopedEval(ctx, t, valueExpr)
			if err != nil {
				return nil, err
			}
			if v.Kind() == object.FloatKind {
				isFloat = true
				fsum += v.Float()
			} else {
				isum += v.Int()
			}
		}
		if isFloat {
			return object.NewFloat(fsum + float64(isum)), nil
		}
		return object.NewInt(isum), nil
	case expr.OpAvg:
		if len(rows) == 0 {
			return nil, duroerr.ErrAggregateUndefined.New()
		}
		var sum float64
		for _, t := range rows {
			v, err := scopedEval(ctx, t, valueExpr)
			if err != nil {
				return nil, err
			}
			if v.Kind() == object.FloatKind {
				sum += v.Float()
			} else {
				sum += float64(v.Int())
			}
		}
		return object.NewFloat(sum / float64(len(rows))), nil
	case expr.OpMin, expr.OpMax:
		if len(rows) == 0 {
			return nil, duroerr.ErrAggregateUndefined.New()
		}
		var best *object.Object
		for _, t := range rows {
			v, err := scopedEval(ctx, t, valueExpr)
			if err != nil {
				return nil, err
			}
			if best == nil {
				best = v
				continue
			}
			c, err := eval.Compare(v, best)
			if err != nil {
				return nil, err
			}
			if (aggExpr.Op == expr.OpMax && c > 0) || (aggExpr.Op == expr.OpMin && c < 0) {
				best = v
			}
		}
		return best, nil
	case expr.OpAll, expr.OpAny:
		for _, t := range rows {
			v, err := scopedEval(ctx, t, valueExpr)
			if err != nil {
				return nil, err
			}
			if aggExpr.Op == expr.OpAll && !v.Bool() {
				return object.NewBool(false), nil
			}
			if aggExpr.Op == expr.OpAny && v.Bool() {
				return object.NewBool(true), nil
			}
		}
		return object.NewBool(aggExpr.Op == expr.OpAll), nil
	}
	return nil, duroerr.ErrOperatorNotFound.New(aggExpr.Op)
}

// openGroup partitions the argument by every attribute not named in
// e.Args[1:len-1], collecting the named attributes of each partition
// into a nested relation under e's last argument's name.
func openGroup(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rt, err := expr.Infer(e, nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	groupAttrName := e.Args[len(e.Args)-1].VarName
	groupedT := rt.Attrs[groupAttrName]

	grouped := map[string]bool{}
	for _, a := range e.Args[1 : len(e.Args)-1] {
		grouped[a.VarName] = true
	}
	var keptNames []string
	for n := range rt.Attrs {
		if n != groupAttrName {
			keptNames = append(keptNames, n)
		}
	}

	rows, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	type bucket struct {
		key  *object.Object
		rows []*object.Object
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, t := range rows {
		k := subKey(t, keptNames)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: projectAttrs(t, keptNames)}
			buckets[k] = b
			order = append(order, k)
		}
		var names []string
		for n := range grouped {
			names = append(names, n)
		}
		b.rows = append(b.rows, projectAttrs(t, names))
	}

	out := make([]*object.Object, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		tup := b.key.Copy()
		tup.SetAttr(groupAttrName, newSliceTable(b.rows, groupedT))
		out = append(out, tup)
	}
	return newSliceIter(out), nil
}

// openUngroup reverses GROUP: each outer tuple's nested relation
// attribute is expanded, one output tuple per nested row merged with
// the outer tuple's remaining attributes.
func openUngroup(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rows, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	groupAttrName := e.Args[1].VarName
	var out []*object.Object
	for _, t := range rows {
		sub, ok := t.GetAttr(groupAttrName)
		if !ok || sub.Kind() != object.TableKind {
			return nil, duroerr.ErrTypeMismatch.New("ungroup attribute must be RELATION-valued")
		}
		outer := map[string]*object.Object{}
		for _, n := range t.AttrNames() {
			if n == groupAttrName {
				continue
			}
			v, _ := t.GetAttr(n)
			outer[n] = v
		}
		it, err := Open(ctx, sub)
		if err != nil {
			return nil, err
		}
		for {
			inner, err := it.Next()
			if duroerr.IsNotFound(err) {
				break
			}
			if err != nil {
				it.Close()
				return nil, err
			}
			merged := map[string]*object.Object{}
			for k, v := range outer {
				merged[k] = v
			}
			for _, n := range inner.AttrNames() {
				v, _ := inner.GetAttr(n)
				merged[n] = v
			}
			out = append(out, object.NewTuple(merged))
		}
		it.Close()
	}
	return newSliceIter(out), nil
}

// openTclose computes the transitive closure of a binary relation by
// repeated join-and-union until a fixpoint.
func openTclose(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rt, err := expr.Infer(e.Args[0], nil, ctx.Catalog)
	if err != nil {
		return nil, err
	}
	names := commonAttrs(rt.Attrs, rt.Attrs)
	if len(names) != 2 {
		return nil, duroerr.ErrTypeMismatch.New("TCLOSE requires a binary relation")
	}
	x, y := names[0], names[1]

	rows, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	set := map[string]*object.Object{}
	for _, t := range rows {
		set[tupleKey(t)] = t
	}
	for {
		grown := false
		current := make([]*object.Object, 0, len(set))
		for _, t := range set {
			current = append(current, t)
		}
		for _, a := range current {
			ay, _ := a.GetAttr(y)
			for _, b := range current {
				bx, _ := b.GetAttr(x)
				eq, err := eval.Compare(ay, bx)
				if err != nil {
					return nil, err
				}
				if eq != 0 {
					continue
				}
				ax, _ := a.GetAttr(x)
				by, _ := b.GetAttr(y)
				nt := object.NewTuple(map[string]*object.Object{x: ax, y: by})
				k := tupleKey(nt)
				if _, ok := set[k]; !ok {
					set[k] = nt
					grown = true
				}
			}
		}
		if !grown {
			break
		}
	}
	out := make([]*object.Object, 0, len(set))
	for _, t := range set {
		out = append(out, t)
	}
	return newSliceIter(out), nil
}

// openSort materializes and orders the argument by its Seq fields,
// used for ORDER BY-style ARRAY(T) requests.
func openSort(ctx *eval.Context, e *expr.Expr) (Iterator, error) {
	rows, err := materializeAll(ctx, e.Args[0])
	if err != nil {
		return nil, err
	}
	seq := e.Seq
	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range seq {
			vi, _ := rows[i].GetAttr(s.Attr)
			vj, _ := rows[j].GetAttr(s.Attr)
			c, err := eval.Compare(vi, vj)
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if s.Asc {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return newSliceIter(rows), nil
}
