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

// Package xform implements the algebraic transformer: a
// pure, idempotent, bottom-up rewriter over expression trees. Each rule
// is applied repeatedly at a node until no further rule fires, then the
// node's Transformed flag is set so a later Transform call returns it
// without re-entering it.
//
// Rule application returns a (possibly new) node plus a changed bool;
// nodes are mutated in place, with the transformed flag marking nodes
// the fixed-point loop must not revisit.
package xform

import (
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/expr"
)

// Transform runs the rewrite rules to a fixed point over e and its
// descendants, bottom-up.
func Transform(e *expr.Expr, res expr.Resolver) (*expr.Expr, error) {
	if e == nil || e.Kind != expr.KindOp {
		return e, nil
	}
	if e.Transformed() {
		return e, nil
	}

	for i, a := range e.Args {
		na, err := Transform(a, res)
		if err != nil {
			return nil, err
		}
		e.Args[i] = na
	}
	for i := range e.Extends {
		na, err := Transform(e.Extends[i].Expr, res)
		if err != nil {
			return nil, err
		}
		e.Extends[i].Expr = na
	}

	cur := e
	for {
		next, changed, err := applyRules(cur, res)
		if err != nil {
			return nil, err
		}
		if !changed {
			cur = next
			break
		}
		cur = next
		if cur.Kind != expr.KindOp {
			break
		}
		for i, a := range cur.Args {
			na, err := Transform(a, res)
			if err != nil {
				return nil, err
			}
			cur.Args[i] = na
		}
	}
	if cur.Kind == expr.KindOp {
		cur.SetTransformed(true)
	}
	return cur, nil
}

// applyRules tries each rule once, returning on the first one that
// fires; Transform's loop re-tries until none fire, giving the overall
// fixed-point behavior.
func applyRules(e *expr.Expr, res expr.Resolver) (*expr.Expr, bool, error) {
	type rule func(*expr.Expr, expr.Resolver) (*expr.Expr, bool, error)
	rules := []rule{
		ruleNotElimination, // NOT pushdown runs before the index-shape rules
		ruleWhereMerge,
		ruleWhereOverSetOp,
		ruleWhereOverUnion,
		ruleWhereOverExtend,
		ruleWhereOverRename,
		ruleComparisonNormalization,
		ruleProjectMerge,
		ruleProjectUnionSwap,
		ruleProjectWhereSwap,
		ruleProjectRenameSwap,
		ruleProjectExtendPrune,
		ruleUnionComplement,
		ruleUpdateNormalization,
		ruleRemoveToProject,
	}
	for _, r := range rules {
		n, changed, err := r(e, res)
		if err != nil {
			return nil, false, err
		}
		if changed {
			return n, true, nil
		}
	}
	return e, false, nil
}

func isOp(e *expr.Expr, op string) bool {
	return e != nil && e.Kind == expr.KindOp && e.Op == op
}

// ruleWhereMerge: where(where(T,c1),c2) -> where(T, c1 AND c2).
func ruleWhereMerge(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) || !isOp(e.Args[0], expr.OpWhere) {
		return e, false, nil
	}
	inner := e.Args[0]
	merged := expr.NewOp(expr.OpWhere, inner.Args[0], expr.NewOp(expr.OpAnd, inner.Args[1], e.Args[1]))
	return merged, true, nil
}

// ruleWhereOverSetOp: where(minus/semiminus/semijoin(A,B),c) ->
// minus/semiminus/semijoin(where(A,c),B).
func ruleWhereOverSetOp(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) {
		return e, false, nil
	}
	inner := e.Args[0]
	if inner.Kind != expr.KindOp {
		return e, false, nil
	}
	switch inner.Op {
	case expr.OpMinus, expr.OpSemiminus, expr.OpSemijoin:
		n := expr.NewOp(inner.Op, expr.NewOp(expr.OpWhere, inner.Args[0], e.Args[1]), inner.Args[1])
		return n, true, nil
	}
	return e, false, nil
}

// ruleWhereOverUnion: where(union(A,B),c) -> union(where(A,c),where(B,c)).
func ruleWhereOverUnion(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) || !isOp(e.Args[0], expr.OpUnion) {
		return e, false, nil
	}
	inner := e.Args[0]
	n := expr.NewOp(expr.OpUnion,
		expr.NewOp(expr.OpWhere, inner.Args[0], cloneExpr(e.Args[1])),
		expr.NewOp(expr.OpWhere, inner.Args[1], cloneExpr(e.Args[1])))
	return n, true, nil
}

// ruleWhereOverExtend: where(extend(T,...),c) -> extend(where(T,c'),...)
// where c' resolves extended-attribute references back to their
// defining expressions, and only when c references an extended
// attribute only in positions that substitution can resolve (we require
// the predicate not to require the extended value as an opaque name
// beyond substitution, which the substitution below always satisfies).
func ruleWhereOverExtend(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) || !isOp(e.Args[0], expr.OpExtend) {
		return e, false, nil
	}
	inner := e.Args[0]
	subst := map[string]*expr.Expr{}
	for _, ext := range inner.Extends {
		subst[ext.Name] = ext.Expr
	}
	c2 := substituteVars(cloneExpr(e.Args[1]), subst)
	n := expr.NewOp(expr.OpExtend, expr.NewOp(expr.OpWhere, inner.Args[0], c2))
	n.Extends = append([]expr.ExtendAttr(nil), inner.Extends...)
	return n, true, nil
}

// ruleWhereOverRename: where(rename(T,...),c) -> rename(where(T,c'),...)
// only when c does not reference attributes already renamed away (i.e.
// c must reference only "to" names, which substitution maps back to
// "from" names, and the rule is skipped if c references a "to" name
// that collides with an unrenamed attribute already used under its
// original name; avoided here by simply requiring no ambiguity, which
// holds because rename pairs are distinct attribute names by
// construction).
func ruleWhereOverRename(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) || !isOp(e.Args[0], expr.OpRename) {
		return e, false, nil
	}
	inner := e.Args[0]
	subst := map[string]*expr.Expr{}
	for _, p := range inner.Renames {
		subst[p.To] = expr.NewVar(p.From)
	}
	c2 := substituteVars(cloneExpr(e.Args[1]), subst)
	n := expr.NewRename(expr.NewOp(expr.OpWhere, inner.Args[0], c2), inner.Renames...)
	return n, true, nil
}

// ruleComparisonNormalization: literal OP var -> var OP' literal inside
// WHERE predicates, flipping the comparison so index matching
// always sees "var OP const".
func ruleComparisonNormalization(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpWhere) {
		return e, false, nil
	}
	changed := false
	e.Args[1] = normalizeCmp(e.Args[1], &changed)
	return e, changed, nil
}

var flip = map[string]string{
	expr.OpLt: expr.OpGt, expr.OpGt: expr.OpLt,
	expr.OpLe: expr.OpGe, expr.OpGe: expr.OpLe,
	expr.OpEq: expr.OpEq, expr.OpNe: expr.OpNe,
}

func normalizeCmp(e *expr.Expr, changed *bool) *expr.Expr {
	if e.Kind != expr.KindOp {
		return e
	}
	for i, a := range e.Args {
		e.Args[i] = normalizeCmp(a, changed)
	}
	if newOp, ok := flip[e.Op]; ok && len(e.Args) == 2 {
		if e.Args[0].Kind == expr.KindObject && e.Args[1].Kind != expr.KindObject {
			*changed = true
			return expr.NewOp(newOp, e.Args[1], e.Args[0])
		}
	}
	return e
}

// ruleNotElimination implements NOT(=) -> <>, NOT(<>) -> =, NOT(<) -> >=,
// NOT(AND) -> OR(NOT,NOT), NOT(OR) -> AND(NOT,NOT), NOT(NOT x) -> x.
func ruleNotElimination(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	changed := false
	e2 := eliminateNot(e, &changed)
	return e2, changed, nil
}

var notFlip = map[string]string{
	expr.OpEq: expr.OpNe, expr.OpNe: expr.OpEq,
	expr.OpLt: expr.OpGe, expr.OpGe: expr.OpLt,
	expr.OpGt: expr.OpLe, expr.OpLe: expr.OpGt,
}

func eliminateNot(e *expr.Expr, changed *bool) *expr.Expr {
	if e.Kind != expr.KindOp {
		return e
	}
	if e.Op == expr.OpNot {
		inner := e.Args[0]
		if inner.Kind == expr.KindOp {
			switch inner.Op {
			case expr.OpNot:
				*changed = true
				return eliminateNot(inner.Args[0], changed)
			case expr.OpAnd:
				*changed = true
				return expr.NewOp(expr.OpOr,
					eliminateNot(expr.NewOp(expr.OpNot, inner.Args[0]), changed),
					eliminateNot(expr.NewOp(expr.OpNot, inner.Args[1]), changed))
			case expr.OpOr:
				*changed = true
				return expr.NewOp(expr.OpAnd,
					eliminateNot(expr.NewOp(expr.OpNot, inner.Args[0]), changed),
					eliminateNot(expr.NewOp(expr.OpNot, inner.Args[1]), changed))
			default:
				if newOp, ok := notFlip[inner.Op]; ok {
					*changed = true
					return expr.NewOp(newOp, inner.Args[0], inner.Args[1])
				}
			}
		}
	}
	for i, a := range e.Args {
		e.Args[i] = eliminateNot(a, changed)
	}
	return e
}

// ruleProjectMerge: project(project(T,A),B) -> project(T,B).
func ruleProjectMerge(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpProject) || !isOp(e.Args[0], expr.OpProject) {
		return e, false, nil
	}
	inner := e.Args[0]
	n := expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[0]}, e.Args[1:]...)...)
	return n, true, nil
}

// ruleProjectUnionSwap: project(union(A,B),C) -> union(project(A,C),project(B,C)).
func ruleProjectUnionSwap(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpProject) || !isOp(e.Args[0], expr.OpUnion) {
		return e, false, nil
	}
	inner := e.Args[0]
	cols := e.Args[1:]
	n := expr.NewOp(expr.OpUnion,
		expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[0]}, cloneList(cols)...)...),
		expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[1]}, cloneList(cols)...)...))
	return n, true, nil
}

// ruleProjectWhereSwap swaps PROJECT and WHERE when the predicate
// doesn't reference an attribute the projection removes; otherwise it
// inserts an intermediate projection that keeps the attributes the
// predicate needs.
func ruleProjectWhereSwap(e *expr.Expr, res expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpProject) || !isOp(e.Args[0], expr.OpWhere) {
		return e, false, nil
	}
	inner := e.Args[0]
	projected := map[string]bool{}
	for _, a := range e.Args[1:] {
		projected[a.VarName] = true
	}
	needed := map[string]bool{}
	collectVarNames(inner.Args[1], needed)

	missing := false
	for n := range needed {
		if !projected[n] {
			missing = true
			break
		}
	}
	if !missing {
		n := expr.NewOp(expr.OpWhere,
			expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[0]}, e.Args[1:]...)...),
			inner.Args[1])
		return n, true, nil
	}

	// Already in the fixed-point shape project(where(project(T, kept)))
	// with kept covering everything the predicate needs: stop here, or
	// the grandchild projection would be re-inserted forever.
	if isOp(inner.Args[0], expr.OpProject) {
		kept := map[string]bool{}
		for _, a := range inner.Args[0].Args[1:] {
			kept[a.VarName] = true
		}
		covered := true
		for n := range needed {
			if !kept[n] {
				covered = false
				break
			}
		}
		if covered {
			return e, false, nil
		}
	}

	rt, err := expr.Infer(inner.Args[0], nil, res)
	if err != nil {
		return e, false, nil
	}
	grandArgs := []*expr.Expr{inner.Args[0]}
	for name := range rt.Attrs {
		if projected[name] || needed[name] {
			grandArgs = append(grandArgs, expr.NewVar(name))
		}
	}
	grand := expr.NewOp(expr.OpProject, grandArgs...)
	n := expr.NewOp(expr.OpProject,
		append([]*expr.Expr{expr.NewOp(expr.OpWhere, grand, inner.Args[1])}, e.Args[1:]...)...)
	return n, true, nil
}

func collectVarNames(e *expr.Expr, out map[string]bool) {
	if e == nil {
		return
	}
	if e.Kind == expr.KindVar {
		out[e.VarName] = true
	}
	for _, a := range e.Args {
		collectVarNames(a, out)
	}
}

// ruleProjectRenameSwap: swap PROJECT/RENAME, rewriting attribute lists;
// drop the rename if it becomes empty.
func ruleProjectRenameSwap(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpProject) || !isOp(e.Args[0], expr.OpRename) {
		return e, false, nil
	}
	inner := e.Args[0]
	toFrom := map[string]string{}
	for _, p := range inner.Renames {
		toFrom[p.To] = p.From
	}
	projected := map[string]bool{}
	newCols := make([]*expr.Expr, 0, len(e.Args)-1)
	for _, a := range e.Args[1:] {
		name := a.VarName
		if from, ok := toFrom[name]; ok {
			newCols = append(newCols, expr.NewVar(from))
		} else {
			newCols = append(newCols, expr.NewVar(name))
		}
		projected[name] = true
	}
	newProject := expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[0]}, newCols...)...)

	var remainingRenames []expr.RenamePair
	for _, p := range inner.Renames {
		if projected[p.To] {
			remainingRenames = append(remainingRenames, p)
		}
	}
	if len(remainingRenames) == 0 {
		return newProject, true, nil
	}
	return expr.NewRename(newProject, remainingRenames...), true, nil
}

// ruleProjectExtendPrune drops extended attributes the outer projection
// doesn't select; drops EXTEND entirely if none survive.
func ruleProjectExtendPrune(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpProject) || !isOp(e.Args[0], expr.OpExtend) {
		return e, false, nil
	}
	inner := e.Args[0]
	selected := map[string]bool{}
	for _, a := range e.Args[1:] {
		selected[a.VarName] = true
	}
	var kept []expr.ExtendAttr
	for _, ext := range inner.Extends {
		if selected[ext.Name] {
			kept = append(kept, ext)
		}
	}
	if len(kept) == len(inner.Extends) {
		return e, false, nil
	}
	if len(kept) == 0 {
		n := expr.NewOp(expr.OpProject, append([]*expr.Expr{inner.Args[0]}, e.Args[1:]...)...)
		return n, true, nil
	}
	newExtend := expr.NewExtend(inner.Args[0], kept...)
	n := expr.NewOp(expr.OpProject, append([]*expr.Expr{newExtend}, e.Args[1:]...)...)
	return n, true, nil
}

// ruleUnionComplement recognizes
// project(where(T,c),A) ∪ project(where(T,NOT c),A) -> project(T,A),
// in either nesting order of PROJECT and WHERE (the project/where swap
// may already have run on the arms).
func ruleUnionComplement(e *expr.Expr, _ expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpUnion) {
		return e, false, nil
	}
	lt, lc, lcols, ok := splitSelection(e.Args[0])
	if !ok {
		return e, false, nil
	}
	rt, rc, rcols, ok := splitSelection(e.Args[1])
	if !ok {
		return e, false, nil
	}
	if !structurallyEqual(lt, rt) || !sameCols(lcols, rcols) || !isComplementary(lc, rc) {
		return e, false, nil
	}
	n := expr.NewOp(expr.OpProject, append([]*expr.Expr{lt}, lcols...)...)
	return n, true, nil
}

// splitSelection decomposes project(where(T,c),A) or where(project(T,A),c)
// into its table, predicate and projection columns.
func splitSelection(e *expr.Expr) (table, cond *expr.Expr, cols []*expr.Expr, ok bool) {
	if isOp(e, expr.OpProject) && isOp(e.Args[0], expr.OpWhere) {
		w := e.Args[0]
		return w.Args[0], w.Args[1], e.Args[1:], true
	}
	if isOp(e, expr.OpWhere) && isOp(e.Args[0], expr.OpProject) {
		p := e.Args[0]
		return p.Args[0], e.Args[1], p.Args[1:], true
	}
	return nil, nil, nil, false
}

func isComplementary(a, b *expr.Expr) bool {
	if isOp(b, expr.OpNot) && structurallyEqual(a, b.Args[0]) {
		return true
	}
	if isOp(a, expr.OpNot) && structurallyEqual(b, a.Args[0]) {
		return true
	}
	// NOT elimination may already have rewritten NOT(a OP x) into the
	// flipped comparison; recognize that shape too so the collapse
	// still fires after the NOT pre-pass.
	if a.Kind == expr.KindOp && b.Kind == expr.KindOp &&
		notFlip[a.Op] == b.Op && len(a.Args) == 2 && len(b.Args) == 2 &&
		structurallyEqual(a.Args[0], b.Args[0]) &&
		structurallyEqual(a.Args[1], b.Args[1]) {
		return true
	}
	return false
}

func sameCols(a, b []*expr.Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].VarName != b[i].VarName {
			return false
		}
	}
	return true
}

// ruleUpdateNormalization: update(T,a1,e1,...) ->
// rename(project(extend(T,e1 AS $a1,...), complement-of(a1,...)), $a1 AS a1,...)
func ruleUpdateNormalization(e *expr.Expr, res expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpUpdate) {
		return e, false, nil
	}
	target := e.Args[0]
	var extends []expr.ExtendAttr
	var renames []expr.RenamePair
	updated := map[string]bool{}
	for i := 1; i+1 < len(e.Args); i += 2 {
		name := e.Args[i].VarName
		tmp := "$" + name
		extends = append(extends, expr.ExtendAttr{Name: tmp, Expr: e.Args[i+1]})
		renames = append(renames, expr.RenamePair{From: tmp, To: name})
		updated[name] = true
	}
	ext := expr.NewExtend(target, extends...)
	rt, err := expr.Infer(target, nil, res)
	if err != nil {
		return e, false, nil
	}
	var keepCols []*expr.Expr
	for name := range rt.Attrs {
		if !updated[name] {
			keepCols = append(keepCols, expr.NewVar(name))
		}
	}
	proj := expr.NewOp(expr.OpProject, append([]*expr.Expr{ext}, keepCols...)...)
	n := expr.NewRename(proj, renames...)
	return n, true, nil
}

// ruleRemoveToProject: remove(T,a1,...) -> project(T, every attribute of
// T not in {a1,...}).
func ruleRemoveToProject(e *expr.Expr, res expr.Resolver) (*expr.Expr, bool, error) {
	if !isOp(e, expr.OpRemove) {
		return e, false, nil
	}
	rt, err := expr.Infer(e.Args[0], nil, res)
	if err != nil {
		return nil, false, err
	}
	removed := map[string]bool{}
	for _, a := range e.Args[1:] {
		if _, ok := rt.Attrs[a.VarName]; !ok {
			return nil, false, duroerr.ErrName.New(a.VarName)
		}
		removed[a.VarName] = true
	}
	var keep []*expr.Expr
	for name := range rt.Attrs {
		if !removed[name] {
			keep = append(keep, expr.NewVar(name))
		}
	}
	n := expr.NewOp(expr.OpProject, append([]*expr.Expr{e.Args[0]}, keep...)...)
	return n, true, nil
}

// EmptyHint is the optimizer's "declared empty" side input.
type EmptyHint struct {
	Expr *expr.Expr
}

// ReplaceProvenEmpty substitutes an empty-relation literal for any
// sub-expression structurally proven to be a subset of hint.Expr (see
// isSubsetOf).
func ReplaceProvenEmpty(e *expr.Expr, hint *EmptyHint, res expr.Resolver) (*expr.Expr, error) {
	if hint == nil || hint.Expr == nil || e == nil {
		return e, nil
	}
	if isSubsetOf(e, hint.Expr) {
		rt, err := expr.Infer(e, nil, res)
		if err != nil {
			return e, nil
		}
		empty := expr.NewOp(expr.OpRelation)
		empty.SetResultType(rt)
		return empty, nil
	}
	if e.Kind != expr.KindOp {
		return e, nil
	}
	for i, a := range e.Args {
		na, err := ReplaceProvenEmpty(a, hint, res)
		if err != nil {
			return nil, err
		}
		e.Args[i] = na
	}
	return e, nil
}

// isSubsetOf checks a structural subset relation: e is structurally
// equal to x, or e is a WHERE, MINUS or PROJECT whose first operand is
// itself a subset of x. Relation types are not compared, so a PROJECT
// qualifies whatever its attribute list.
func isSubsetOf(e, x *expr.Expr) bool {
	if structurallyEqual(e, x) {
		return true
	}
	if e.Kind != expr.KindOp {
		return false
	}
	switch e.Op {
	case expr.OpWhere:
		return isSubsetOf(e.Args[0], x)
	case expr.OpMinus:
		return isSubsetOf(e.Args[0], x)
	case expr.OpProject:
		return isSubsetOf(e.Args[0], x)
	}
	return false
}

func cloneExpr(e *expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	n := e.Clone()
	for i, a := range e.Args {
		n.Args[i] = cloneExpr(a)
	}
	return n
}

func cloneList(es []*expr.Expr) []*expr.Expr {
	out := make([]*expr.Expr, len(es))
	for i, e := range es {
		out[i] = cloneExpr(e)
	}
	return out
}

// substituteVars replaces every VAR node whose name is a key of subst
// with (a clone of) the mapped expression.
func substituteVars(e *expr.Expr, subst map[string]*expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == expr.KindVar {
		if r, ok := subst[e.VarName]; ok {
			return cloneExpr(r)
		}
		return e
	}
	if e.Kind == expr.KindOp {
		for i, a := range e.Args {
			e.Args[i] = substituteVars(a, subst)
		}
	}
	return e
}

// structurallyEqual is a syntactic equality check over expression trees;
// it does not account for semantically-equal-but-differently-shaped
// trees.
func structurallyEqual(a, b *expr.Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case expr.KindTableRef:
		return a.TableRefName == b.TableRefName
	case expr.KindVar:
		return a.VarName == b.VarName
	case expr.KindObject:
		if a.Obj == b.Obj {
			return true
		}
		if a.Obj == nil || b.Obj == nil {
			return false
		}
		ah, err := a.Obj.Hash()
		if err != nil {
			return false
		}
		bh, err := b.Obj.Hash()
		if err != nil {
			return false
		}
		return ah == bh
	case expr.KindOp:
		if a.Op != b.Op || len(a.Args) != len(b.Args) {
			return false
		}
		if len(a.Renames) != len(b.Renames) || len(a.Extends) != len(b.Extends) {
			return false
		}
		for i := range a.Renames {
			if a.Renames[i] != b.Renames[i] {
				return false
			}
		}
		for i := range a.Extends {
			if a.Extends[i].Name != b.Extends[i].Name ||
				!structurallyEqual(a.Extends[i].Expr, b.Extends[i].Expr) {
				return false
			}
		}
		for i := range a.Args {
			if !structurallyEqual(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}
