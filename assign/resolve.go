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

package assign

import (
	"github.com/rehartmann/durodbms-sub001/constraint"
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// resolveInsertTarget recursively resolves a virtual-table INSERT target
// down to a base table: WHERE checks the predicate and recurses,
// RENAME/EXTEND translate the tuple and recurse, PROJECT only recurses
// when it is the identity projection over its child (anything narrower
// can't be reversed without guessing missing attribute values),
// anything else is NOT_SUPPORTED.
func (eng *Engine) resolveInsertTarget(ctx *eval.Context, target *expr.Expr, tup *object.Object) (string, *object.Object, error) {
	switch target.Kind {
	case expr.KindTableRef:
		return target.TableRefName, tup, nil
	case expr.KindVar:
		return target.VarName, tup, nil
	case expr.KindOp:
		switch target.Op {
		case expr.OpWhere:
			v, err := evalOverTuple(ctx, target.Args[1], tup)
			if err != nil {
				return "", nil, err
			}
			if v.Kind() != object.BoolKind || !v.Bool() {
				return "", nil, duroerr.ErrPredicateViolation.New("insert violates WHERE condition")
			}
			return eng.resolveInsertTarget(ctx, target.Args[0], tup)
		case expr.OpRename:
			nt := tup.Copy()
			for _, p := range target.Renames {
				if v, ok := nt.GetAttr(p.To); ok {
					nt.SetAttr(p.From, v)
					nt.RemoveAttr(p.To)
				}
			}
			return eng.resolveInsertTarget(ctx, target.Args[0], nt)
		case expr.OpExtend:
			nt := tup.Copy()
			for _, ea := range target.Extends {
				nt.RemoveAttr(ea.Name)
			}
			return eng.resolveInsertTarget(ctx, target.Args[0], nt)
		case expr.OpProject:
			childType, err := expr.Infer(target.Args[0], nil, eng.Cat)
			if err != nil {
				return "", nil, err
			}
			if len(target.Args)-1 != len(childType.Attrs) {
				return "", nil, duroerr.ErrNotSupported.New("insert into a non-identity projection")
			}
			return eng.resolveInsertTarget(ctx, target.Args[0], tup)
		}
	}
	return "", nil, duroerr.ErrNotSupported.New("insert target: " + describeTarget(target))
}

// resolveUpdateTarget recursively resolves a virtual-table UPDATE
// target: WHERE ANDs its predicate into the condition and recurses;
// RENAME inverts its pairs over both the condition and every update
// RHS; EXTEND substitutes any condition reference to an extended
// attribute with its defining expression and rejects an attempt to
// update an extended (virtual) attribute directly.
func (eng *Engine) resolveUpdateTarget(ctx *eval.Context, target, cond *expr.Expr, attrs []UpdateAttr) (string, *expr.Expr, []UpdateAttr, error) {
	switch target.Kind {
	case expr.KindTableRef:
		return target.TableRefName, cond, attrs, nil
	case expr.KindVar:
		return target.VarName, cond, attrs, nil
	case expr.KindOp:
		switch target.Op {
		case expr.OpWhere:
			return eng.resolveUpdateTarget(ctx, target.Args[0], andCond(target.Args[1], cond), attrs)
		case expr.OpRename:
			inv := invert(target.Renames)
			newAttrs := make([]UpdateAttr, len(attrs))
			for i, a := range attrs {
				name := a.Name
				if from, ok := inv[name]; ok {
					name = from
				}
				newAttrs[i] = UpdateAttr{Name: name, Expr: renameVars(a.Expr, inv)}
			}
			return eng.resolveUpdateTarget(ctx, target.Args[0], renameVars(cond, inv), newAttrs)
		case expr.OpExtend:
			defs := extendDefs(target.Extends)
			for _, a := range attrs {
				if _, ok := defs[a.Name]; ok {
					return "", nil, nil, duroerr.ErrNotSupported.New("cannot update a virtual (EXTEND) attribute: " + a.Name)
				}
			}
			return eng.resolveUpdateTarget(ctx, target.Args[0], substituteVars(cond, defs), attrs)
		}
	}
	return "", nil, nil, duroerr.ErrNotSupported.New("update target: " + describeTarget(target))
}

// resolveDeleteTarget mirrors resolveUpdateTarget without the attrs
// bookkeeping.
func (eng *Engine) resolveDeleteTarget(ctx *eval.Context, target, cond *expr.Expr) (string, *expr.Expr, error) {
	switch target.Kind {
	case expr.KindTableRef:
		return target.TableRefName, cond, nil
	case expr.KindVar:
		return target.VarName, cond, nil
	case expr.KindOp:
		switch target.Op {
		case expr.OpWhere:
			return eng.resolveDeleteTarget(ctx, target.Args[0], andCond(target.Args[1], cond))
		case expr.OpRename:
			inv := invert(target.Renames)
			return eng.resolveDeleteTarget(ctx, target.Args[0], renameVars(cond, inv))
		case expr.OpExtend:
			defs := extendDefs(target.Extends)
			return eng.resolveDeleteTarget(ctx, target.Args[0], substituteVars(cond, defs))
		}
	}
	return "", nil, duroerr.ErrNotSupported.New("delete target: " + describeTarget(target))
}

func andCond(c0, cond *expr.Expr) *expr.Expr {
	if cond == nil {
		return c0
	}
	return expr.NewOp(expr.OpAnd, c0, cond)
}

func invert(pairs []expr.RenamePair) map[string]string {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		m[p.To] = p.From
	}
	return m
}

func extendDefs(attrs []expr.ExtendAttr) map[string]*expr.Expr {
	m := make(map[string]*expr.Expr, len(attrs))
	for _, a := range attrs {
		m[a.Name] = a.Expr
	}
	return m
}

// renameVars returns a structural copy of e with every VAR node named in
// m rewritten to its mapped name.
func renameVars(e *expr.Expr, m map[string]string) *expr.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == expr.KindVar {
		if to, ok := m[e.VarName]; ok {
			return expr.NewVar(to)
		}
		return e
	}
	if e.Kind != expr.KindOp {
		return e
	}
	n := e.Clone()
	for i, a := range e.Args {
		n.Args[i] = renameVars(a, m)
	}
	for i, ext := range e.Extends {
		n.Extends[i].Expr = renameVars(ext.Expr, m)
	}
	return n
}

// substituteVars returns a structural copy of e with every VAR node
// named in defs replaced by its defining expression.
func substituteVars(e *expr.Expr, defs map[string]*expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == expr.KindVar {
		if d, ok := defs[e.VarName]; ok {
			return d
		}
		return e
	}
	if e.Kind != expr.KindOp {
		return e
	}
	n := e.Clone()
	for i, a := range e.Args {
		n.Args[i] = substituteVars(a, defs)
	}
	for i, ext := range e.Extends {
		n.Extends[i].Expr = substituteVars(ext.Expr, defs)
	}
	return n
}

func describeTarget(e *expr.Expr) string {
	if e.Kind == expr.KindOp {
		return e.Op
	}
	return "?"
}

// buildEffects translates the resolved base operations into the
// post-assignment defining expressions package constraint needs:
// insert becomes T ∪ {v}, update becomes (T WHERE NOT c) ∪
// UPDATE(T WHERE c,...), delete becomes T MINUS (T WHERE c), and copy
// substitutes dst directly with src.
func (eng *Engine) buildEffects(bis []baseInsert, bus []baseUpdate, bds []baseDelete, copies []CopyOp) ([]constraint.Effect, error) {
	var out []constraint.Effect
	for _, ins := range bis {
		lit := expr.NewOp(expr.OpRelation, expr.NewObject(ins.tuple))
		out = append(out, constraint.Effect{
			Table: ins.table,
			Expr:  expr.NewOp(expr.OpUnion, expr.NewTableRef(ins.table), lit),
		})
	}
	for _, upd := range bus {
		var notMatched, matched *expr.Expr
		if upd.cond == nil {
			notMatched = expr.NewOp(expr.OpWhere, expr.NewTableRef(upd.table), expr.NewObject(object.NewBool(false)))
			matched = expr.NewTableRef(upd.table)
		} else {
			notMatched = expr.NewOp(expr.OpWhere, expr.NewTableRef(upd.table), expr.NewOp(expr.OpNot, upd.cond))
			matched = expr.NewOp(expr.OpWhere, expr.NewTableRef(upd.table), upd.cond)
		}
		args := []*expr.Expr{matched}
		for _, a := range upd.attrs {
			args = append(args, expr.NewVar(a.Name), a.Expr)
		}
		updateExpr := expr.NewOp(expr.OpUpdate, args...)
		out = append(out, constraint.Effect{
			Table: upd.table,
			Expr:  expr.NewOp(expr.OpUnion, notMatched, updateExpr),
		})
	}
	for _, del := range bds {
		var whereC *expr.Expr
		if del.cond == nil {
			whereC = expr.NewTableRef(del.table)
		} else {
			whereC = expr.NewOp(expr.OpWhere, expr.NewTableRef(del.table), del.cond)
		}
		out = append(out, constraint.Effect{
			Table: del.table,
			Expr:  expr.NewOp(expr.OpMinus, expr.NewTableRef(del.table), whereC),
		})
	}
	for _, cp := range copies {
		dstName, err := tableRefName(cp.Dst)
		if err != nil {
			return nil, err
		}
		out = append(out, constraint.Effect{Table: dstName, Expr: cp.Src})
	}
	return out, nil
}

// execCopy implements COPY by replacing dst's tuples with src's, a full
// replace since dst and src may differ in storage kind.
func (eng *Engine) execCopy(ctx *eval.Context, cp CopyOp) error {
	dstName, err := tableRefName(cp.Dst)
	if err != nil {
		return err
	}
	srcObj, err := eval.Eval(ctx, cp.Src)
	if err != nil {
		return err
	}
	it, err := eval.Open(ctx, srcObj)
	if err != nil {
		return err
	}
	// Materialize before clearing dst: src may be an expression over
	// dst itself.
	var rows []*object.Object
	for {
		tup, err := it.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			it.Close()
			return err
		}
		rows = append(rows, tup)
	}
	it.Close()
	if _, err := eng.Cat.DeleteMatching(dstName, func(*object.Object) (bool, error) { return true, nil }); err != nil {
		return err
	}
	for _, tup := range rows {
		if err := eng.Cat.InsertTuple(dstName, tup); err != nil {
			return err
		}
	}
	return nil
}
