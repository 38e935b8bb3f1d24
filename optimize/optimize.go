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

// Package optimize implements the cost-based optimizer: it walks an
// already-transformed expression tree looking for WHERE nodes whose
// predicate can be served by a secondary index instead of a full scan,
// estimates the cost of each candidate plan, and attaches the
// cheapest one's probe parameters to the node as an IndexSelect.
package optimize

import (
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// IndexInfo describes one candidate index over a named table, supplied
// by the catalog without optimize needing to import it directly.
type IndexInfo struct {
	Name       string
	FieldNames []string // parent attribute names, in index order
	Ascending  []bool
	Unique     bool
}

// Catalog is the slice of catalog behavior the optimizer needs: index
// metadata and a cardinality estimate per named table.
type Catalog interface {
	expr.Resolver
	TableIndexes(tableName string) []IndexInfo
	TableSize(tableName string) int64
}

// DefaultMutationFanout bounds how many alternative plans "mutate"
// considers per WHERE node before picking the cheapest.
const DefaultMutationFanout = 256

// Optimize walks e bottom-up, attaching an IndexSelect to every WHERE
// node whose predicate a candidate index can serve more cheaply than a
// full scan.
func Optimize(e *expr.Expr, cat Catalog) (*expr.Expr, error) {
	if e == nil || e.Kind != expr.KindOp {
		return e, nil
	}
	if e.Optimized() {
		return e, nil
	}
	for i, a := range e.Args {
		na, err := Optimize(a, cat)
		if err != nil {
			return nil, err
		}
		e.Args[i] = na
	}
	for i := range e.Extends {
		na, err := Optimize(e.Extends[i].Expr, cat)
		if err != nil {
			return nil, err
		}
		e.Extends[i].Expr = na
	}

	if e.Op == expr.OpWhere {
		if err := selectIndex(e, cat); err != nil {
			return nil, err
		}
	}
	if e.Op == "sort" {
		reconcileSortOrder(e, cat)
	}
	e.SetOptimized(true)
	return e, nil
}

// reconcileSortOrder drops a child WHERE's chosen index when that
// index's natural direction conflicts with the sort request's leading
// attribute and a plain scan-then-sort is cheaper: an index scan already producing the requested order
// is free to keep; one producing the opposite order only earns its
// keep if probing still beats materializing and sorting from scratch.
func reconcileSortOrder(e *expr.Expr, cat Catalog) {
	if len(e.Seq) == 0 {
		return
	}
	child := e.Args[0]
	if child.Kind != expr.KindOp || child.Op != expr.OpWhere {
		return
	}
	sel := child.IndexSelect()
	if sel == nil || len(sel.ObjPV) == 0 {
		return
	}
	if sel.Asc == e.Seq[0].Asc {
		return
	}
	tableExpr := child.Args[0]
	if tableExpr.Kind != expr.KindTableRef {
		return
	}
	size := cat.TableSize(tableExpr.TableRefName)
	indexCost := probeCost(size, len(sel.ObjPV), len(sel.ObjPV))
	scanThenSort := scanCost(size) + sortPenalty(size)
	if scanThenSort < indexCost {
		child.SetIndexSelect(nil)
	}
}

// conjunct is one leaf of a top-level AND-decomposed WHERE predicate:
// an equality or inequality comparing an attribute to a literal.
type conjunct struct {
	attr string
	op string
	val *expr.Expr
}

// decomposeAnd flattens nested AND nodes into their leaf conjuncts.
func decomposeAnd(e *expr.Expr) []conjunct {
	if e.Kind != expr.KindOp {
		return nil
	}
	if e.Op == expr.OpAnd {
		return append(decomposeAnd(e.Args[0]), decomposeAnd(e.Args[1])...)
	}
	switch e.Op {
	case expr.OpEq, expr.OpNe, expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		if e.Args[0].Kind == expr.KindVar && e.Args[1].Kind == expr.KindObject {
			return []conjunct{{attr: e.Args[0].VarName, op: e.Op, val: e.Args[1]}}
		}
	case expr.OpLike:
		if e.Args[0].Kind == expr.KindVar && e.Args[1].Kind == expr.KindObject {
			if prefix, ok := likePrefix(e.Args[1]); ok {
				return []conjunct{{attr: e.Args[0].VarName, op: "like_prefix", val: prefixBound(prefix)}}
			}
		}
	}
	return nil
}

// likePrefix extracts the literal run before the first '*'/'?' wildcard
// from a LIKE pattern literal, deriving a range bound an index probe
// can use directly.
func likePrefix(patternObj *expr.Expr) (string, bool) {
	if patternObj.Obj == nil || patternObj.Obj.Kind() != object.BinKind {
		return "", false
	}
	s := patternObj.Obj.String()
	for i, r := range s {
		if r == '*' || r == '?' {
			if i == 0 {
				return "", false
			}
			return s[:i], true
		}
	}
	return s, true
}

func prefixBound(prefix string) *expr.Expr {
	return expr.NewObject(object.NewString(prefix))
}

// selectIndex picks the cheapest of a full scan and every candidate
// index able to serve (some prefix of) the WHERE predicate's leading
// equalities, attaching the winner's probe parameters to e.
func selectIndex(e *expr.Expr, cat Catalog) error {
	tableExpr := e.Args[0]
	// A projection over a stored table is still index-probeable; the
	// probe runs against the underlying table and the projection is
	// re-applied above it.
	if tableExpr.Kind == expr.KindOp && tableExpr.Op == expr.OpProject {
		tableExpr = tableExpr.Args[0]
	}
	if tableExpr.Kind != expr.KindTableRef {
		return nil
	}
	conjuncts := decomposeAnd(e.Args[1])
	if len(conjuncts) == 0 {
		return nil
	}
	byAttr := map[string][]conjunct{}
	for _, c := range conjuncts {
		byAttr[c.attr] = append(byAttr[c.attr], c)
	}

	indexes := cat.TableIndexes(tableExpr.TableRefName)
	size := cat.TableSize(tableExpr.TableRefName)
	bestCost := scanCost(size)
	var best *expr.IndexSelect

	fanout := DefaultMutationFanout
	for i, ix := range indexes {
		if i >= fanout {
			break
		}
		sel, matched := matchIndex(ix, byAttr)
		if matched == 0 {
			continue
		}
		cost := probeCost(size, matched, len(ix.FieldNames))
		if cost < bestCost {
			bestCost = cost
			best = sel
		}
	}
	if best != nil {
		e.SetIndexSelect(best)
	}
	return nil
}

// matchIndex builds an IndexSelect from the longest leading run of
// equality conjuncts ix's fields satisfy, followed by at most one
// inequality/LIKE-prefix bound supplying an ordered stop point for a
// range scan.
func matchIndex(ix IndexInfo, byAttr map[string][]conjunct) (*expr.IndexSelect, int) {
	var objs []*expr.Expr
	allEq := true
	matched := 0
	var stop *expr.Expr

	for _, name := range ix.FieldNames {
		cs, ok := byAttr[name]
		if !ok {
			break
		}
		c, ok := pickBound(cs, expr.OpEq)
		if ok {
			objs = append(objs, c.val)
			matched++
			continue
		}
		// A range bound ends the prefix: seed the probe with the low
		// bound and derive the stop expression (stop when TRUE) from
		// the matching high bound, if any.
		low, ok := pickLowBound(cs)
		if !ok {
			break
		}
		objs = append(objs, low.val)
		matched++
		allEq = false
		if low.op == "like_prefix" {
			stop = expr.NewOp(expr.OpNot,
				expr.NewOp("starts_with", expr.NewVar(name), low.val))
		} else if high, ok := pickHighBound(cs); ok {
			stop = expr.NewOp(stopOp[high.op], expr.NewVar(name), high.val)
		}
		break
	}
	if matched == 0 {
		return nil, 0
	}
	objVals := make([]*object.Object, len(objs))
	for i, o := range objs {
		objVals[i] = o.Obj
	}
	return &expr.IndexSelect{
		IndexName: ix.Name,
		ObjPV:     objVals,
		Asc:       true,
		AllEq:     allEq,
		StopExpr:  stop,
	}, matched
}

// stopOp maps a high-bound comparison to the stop condition the index
// probe evaluates per tuple: scanning past "attr <= C" stops once
// "attr > C" holds.
var stopOp = map[string]string{
	expr.OpLe: expr.OpGt,
	expr.OpLt: expr.OpGe,
}

func pickBound(cs []conjunct, op string) (conjunct, bool) {
	for _, c := range cs {
		if c.op == op {
			return c, true
		}
	}
	return conjunct{}, false
}

func pickLowBound(cs []conjunct) (conjunct, bool) {
	for _, c := range cs {
		switch c.op {
		case expr.OpGe, expr.OpGt, "like_prefix":
			return c, true
		}
	}
	return conjunct{}, false
}

func pickHighBound(cs []conjunct) (conjunct, bool) {
	for _, c := range cs {
		switch c.op {
		case expr.OpLe, expr.OpLt:
			return c, true
		}
	}
	return conjunct{}, false
}

// scanCost is the full-scan cost estimate: proportional to estimated
// row count.
func scanCost(size int64) float64 {
	if size <= 0 {
		size = 1000
	}
	return float64(size)
}

// probeCost estimates an index probe's cost: a small constant for the
// descent plus a selectivity-scaled share of the table, divided by eight
// per leading field matched (an equality on more fields narrows
// the scan range geometrically in a balanced ordered index).
func probeCost(size int64, matchedFields, totalFields int) float64 {
	if size <= 0 {
		size = 1000
	}
	selectivity := 1.0
	for i := 0; i < matchedFields; i++ {
		selectivity /= 8
	}
	cost := float64(size)*selectivity + 2
	return cost
}

// sortPenalty adds the cost of an explicit sort step when a plan's
// natural output order doesn't already satisfy a requested ordering:
// O(n log n) over the estimated size.
func sortPenalty(size int64) float64 {
	if size <= 1 {
		return 0
	}
	n := float64(size)
	logn := 0.0
	for t := n; t > 1; t /= 2 {
		logn++
	}
	return n * logn
}
