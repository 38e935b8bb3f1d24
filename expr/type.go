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

package expr

import (
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/object"
)

// Resolver resolves a VAR or TABLE-REF node to its declared type; the
// evaluator/catalog supplies the concrete implementation.
type Resolver interface {
	ResolveType(name string) (durotype.Type, bool)
}

// Infer computes and memoizes e's result type.
// scope, when non-nil, is the tuple type in effect for attribute name
// resolution inside EXTEND/WHERE bodies (VAR nodes naming an attribute
// rather than a table).
func Infer(e *Expr, scope *durotype.Type, res Resolver) (durotype.Type, error) {
	if e.resultType != nil {
		return *e.resultType, nil
	}
	t, err := infer(e, scope, res)
	if err != nil {
		return durotype.Type{}, err
	}
	e.SetResultType(t)
	return t, nil
}

func infer(e *Expr, scope *durotype.Type, res Resolver) (durotype.Type, error) {
	switch e.Kind {
	case KindObject:
		return object.TypeOf(e.Obj)
	case KindTableRef:
		if res == nil {
			return durotype.Type{}, duroerr.ErrName.New(e.TableRefName)
		}
		t, ok := res.ResolveType(e.TableRefName)
		if !ok {
			return durotype.Type{}, duroerr.ErrName.New(e.TableRefName)
		}
		return t, nil
	case KindVar:
		if scope != nil {
			if at, ok := scope.Attrs[e.VarName]; ok {
				return at, nil
			}
		}
		if res != nil {
			if t, ok := res.ResolveType(e.VarName); ok {
				return t, nil
			}
		}
		return durotype.Type{}, duroerr.ErrName.New(e.VarName)
	case KindOp:
		return inferOp(e, scope, res)
	}
	return durotype.Type{}, duroerr.ErrInternal.New("unknown expression kind")
}

func inferArg(e *Expr, i int, scope *durotype.Type, res Resolver) (durotype.Type, error) {
	return Infer(e.Args[i], scope, res)
}

func inferOp(e *Expr, scope *durotype.Type, res Resolver) (durotype.Type, error) {
	switch e.Op {
	case OpWhere:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if rt.Kind() != durotype.KindRelation {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("WHERE requires a relation")
		}
		ct, err := Infer(e.Args[1], ptr(rt.TupleType()), res)
		if err != nil {
			return durotype.Type{}, err
		}
		if ct.Kind() != durotype.KindBoolean {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("WHERE condition must be BOOLEAN")
		}
		return rt, nil

	case OpProject:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		attrs := map[string]durotype.Type{}
		for _, a := range e.Args[1:] {
			if a.Kind != KindVar {
				return durotype.Type{}, duroerr.ErrInvalidArgument.New("project attribute must be a name")
			}
			at, ok := rt.Attrs[a.VarName]
			if !ok {
				return durotype.Type{}, duroerr.ErrName.New(a.VarName)
			}
			attrs[a.VarName] = at
		}
		return durotype.Relation(durotype.Tuple(attrs)), nil

	case OpRemove:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		out := rt
		for _, a := range e.Args[1:] {
			if _, ok := out.Attrs[a.VarName]; !ok {
				return durotype.Type{}, duroerr.ErrName.New(a.VarName)
			}
			out = out.WithoutAttr(a.VarName)
		}
		return out, nil

	case OpRename:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		out := rt
		for _, p := range e.Renames {
			at, ok := out.Attrs[p.From]
			if !ok {
				return durotype.Type{}, duroerr.ErrName.New(p.From)
			}
			out = out.WithoutAttr(p.From).WithAttr(p.To, at)
		}
		return out, nil

	case OpExtend:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		tupScope := rt
		if rt.Kind() == durotype.KindRelation {
			tupScope = rt.TupleType()
		}
		out := rt
		for _, ext := range e.Extends {
			at, err := Infer(ext.Expr, &tupScope, res)
			if err != nil {
				return durotype.Type{}, err
			}
			out = out.WithAttr(ext.Name, at)
			tupScope = tupScope.WithAttr(ext.Name, at)
		}
		return out, nil

	case OpUnion, OpMinus, OpSemiminus, OpIntersect, OpSemijoin:
		at, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		bt, err := inferArg(e, 1, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if at.Kind() != durotype.KindRelation || bt.Kind() != durotype.KindRelation {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("set operator requires relations")
		}
		if e.Op == OpUnion || e.Op == OpIntersect {
			if !at.Equal(bt) {
				return durotype.Type{}, duroerr.ErrTypeMismatch.New("operand types differ")
			}
		}
		return at, nil

	case OpJoin:
		at, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		bt, err := inferArg(e, 1, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if at.Kind() != durotype.KindRelation || bt.Kind() != durotype.KindRelation {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("JOIN requires relations")
		}
		attrs := map[string]durotype.Type{}
		for n, t := range at.Attrs {
			attrs[n] = t
		}
		for n, t := range bt.Attrs {
			if existing, ok := attrs[n]; ok && !existing.Equal(t) {
				return durotype.Type{}, duroerr.ErrTypeMismatch.New("join attribute type mismatch: " + n)
			}
			attrs[n] = t
		}
		return durotype.Relation(durotype.Tuple(attrs)), nil

	case OpDivide:
		at, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		return at, nil

	case OpSummarize:
		perT, err := inferArg(e, 1, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		summandT, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		attrs := map[string]durotype.Type{}
		for n, t := range perT.Attrs {
			attrs[n] = t
		}
		tupScope := summandT.TupleType()
		for _, ext := range e.Extends {
			at, err := Infer(ext.Expr, &tupScope, res)
			if err != nil {
				return durotype.Type{}, err
			}
			attrs[ext.Name] = at
		}
		return durotype.Relation(durotype.Tuple(attrs)), nil

	case OpGroup:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if len(e.Args) < 2 {
			return durotype.Type{}, duroerr.ErrInvalidArgument.New("group requires attribute name")
		}
		groupAttrName := e.Args[len(e.Args)-1].VarName
		grouped := map[string]durotype.Type{}
		kept := map[string]durotype.Type{}
		groupNames := map[string]bool{}
		for _, a := range e.Args[1 : len(e.Args)-1] {
			groupNames[a.VarName] = true
		}
		for n, t := range rt.Attrs {
			if groupNames[n] {
				grouped[n] = t
			} else {
				kept[n] = t
			}
		}
		kept[groupAttrName] = durotype.Relation(durotype.Tuple(grouped))
		return durotype.Relation(durotype.Tuple(kept)), nil

	case OpUngroup:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		groupAttrName := e.Args[1].VarName
		gt, ok := rt.Attrs[groupAttrName]
		if !ok || gt.Kind() != durotype.KindRelation {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("ungroup attribute must be RELATION-valued")
		}
		out := rt.WithoutAttr(groupAttrName)
		for n, t := range gt.Attrs {
			out = out.WithAttr(n, t)
		}
		return out, nil

	case OpWrap:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		wrapName := e.Args[len(e.Args)-1].VarName
		wrapped := map[string]durotype.Type{}
		kept := map[string]durotype.Type{}
		names := map[string]bool{}
		for _, a := range e.Args[1 : len(e.Args)-1] {
			names[a.VarName] = true
		}
		for n, t := range rt.Attrs {
			if names[n] {
				wrapped[n] = t
			} else {
				kept[n] = t
			}
		}
		kept[wrapName] = durotype.Tuple(wrapped)
		return durotype.Tuple(kept), nil

	case OpUnwrap:
		rt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		out := rt
		for _, a := range e.Args[1:] {
			wt, ok := rt.Attrs[a.VarName]
			if !ok || wt.Kind() != durotype.KindTuple {
				return durotype.Type{}, duroerr.ErrTypeMismatch.New("unwrap attribute must be TUPLE-valued")
			}
			out = out.WithoutAttr(a.VarName)
			for n, t := range wt.Attrs {
				out = out.WithAttr(n, t)
			}
		}
		return out, nil

	case OpTclose:
		return inferArg(e, 0, scope, res)

	case OpTuple:
		attrs := map[string]durotype.Type{}
		for i := 0; i+1 < len(e.Args); i += 2 {
			name := e.Args[i].VarName
			at, err := Infer(e.Args[i+1], scope, res)
			if err != nil {
				return durotype.Type{}, err
			}
			attrs[name] = at
		}
		return durotype.Tuple(attrs), nil

	case OpArray:
		if len(e.Args) == 0 {
			return durotype.Type{}, duroerr.ErrInvalidArgument.New("ARRAY requires at least one argument or a result type")
		}
		et, err := Infer(e.Args[0], scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		return durotype.Array(et), nil

	case OpRelation:
		if len(e.Args) == 0 {
			return durotype.Type{}, duroerr.ErrInvalidArgument.New("RELATION requires at least one argument or an explicit result type")
		}
		tt, err := Infer(e.Args[0], scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		return durotype.Relation(tt), nil

	case OpIf:
		ct, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if ct.Kind() != durotype.KindBoolean {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("IF condition must be BOOLEAN")
		}
		tt, err := inferArg(e, 1, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		ft, err := inferArg(e, 2, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if !tt.Equal(ft) {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("IF branches must have equal types")
		}
		return tt, nil

	case OpIsEmpty:
		return durotype.Boolean, nil

	case OpCount:
		return durotype.Integer, nil

	case OpSum, OpMin, OpMax:
		if len(e.Args) > 1 {
			return Infer(e.Args[1], scope, res)
		}
		return durotype.Integer, nil

	case OpAvg:
		return durotype.Float, nil

	case OpAll, OpAny:
		return durotype.Boolean, nil

	case OpDot:
		tt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		attrName := e.Args[1].VarName
		if at, ok := tt.Attrs[attrName]; ok {
			return at, nil
		}
		return durotype.Type{}, duroerr.ErrName.New(attrName)

	case OpIndex:
		tt, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if tt.Kind() == durotype.KindArray {
			return *tt.Elem, nil
		}
		return durotype.Type{}, duroerr.ErrTypeMismatch.New("[] requires an array")

	case OpNot:
		return durotype.Boolean, nil
	case OpAnd, OpOr:
		return durotype.Boolean, nil
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpLike, "starts_with":
		return durotype.Boolean, nil

	case OpUpdate:
		// update(T, ...) keeps T's type; the transformer normalizes the
		// node away before execution.
		return inferArg(e, 0, scope, res)

	case "+", "-", "*", "/":
		at, err := inferArg(e, 0, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		bt, err := inferArg(e, 1, scope, res)
		if err != nil {
			return durotype.Type{}, err
		}
		if at.Kind() == durotype.KindFloat || bt.Kind() == durotype.KindFloat {
			return durotype.Float, nil
		}
		if at.Kind() != durotype.KindInteger || bt.Kind() != durotype.KindInteger {
			return durotype.Type{}, duroerr.ErrTypeMismatch.New("arithmetic requires numeric operands")
		}
		return durotype.Integer, nil
	}

	return durotype.Type{}, duroerr.ErrOperatorNotFound.New(e.Op)
}

func ptr(t durotype.Type) *durotype.Type { return &t }
