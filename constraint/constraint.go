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

// Package constraint implements the named boolean-expression registry,
// re-checked on every assignment: for each constraint
// referencing a target table, the assignment engine (package assign)
// substitutes the target with its post-operation defining expression
// and the substituted expression must evaluate to TRUE.
package constraint

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
	"github.com/rehartmann/durodbms-sub001/optimize"
	"github.com/rehartmann/durodbms-sub001/xform"
)

var log = logrus.WithField("component", "constraint")

// Constraint is one named boolean expression the catalog must keep
// holding across every committed assignment.
type Constraint struct {
	Name string
	Expr *expr.Expr
}

// Set is the catalog's linked list of named constraints, modeled as a
// slice behind a mutex since nothing here needs pointer-stable nodes.
type Set struct {
	mu sync.RWMutex
	list []*Constraint
}

// NewSet returns an empty constraint registry. Constraints are not
// persisted across process restarts; callers re-register them via Add
// on every open.
func NewSet() *Set { return &Set{} }

// Add registers a new named constraint, replacing any existing one of
// the same name.
func (s *Set) Add(name string, e *expr.Expr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.list {
		if c.Name == name {
			c.Expr = e
			return
		}
	}
	s.list = append(s.list, &Constraint{Name: name, Expr: e})
	log.WithField("constraint", name).Debug("constraint registered")
}

// Remove drops a named constraint, if present.
func (s *Set) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.list {
		if c.Name == name {
			s.list = append(s.list[:i], s.list[i+1:]...)
			return
		}
	}
}

// All returns a snapshot of the registered constraints.
func (s *Set) All() []*Constraint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Constraint, len(s.list))
	copy(out, s.list)
	return out
}

// Hints returns a declared-empty hint for every
// registered IS_EMPTY(E) constraint, so package xform's
// ReplaceProvenEmpty can fold queries against the corresponding
// sub-expression without the optimizer having to rediscover it.
func (s *Set) Hints() []*xform.EmptyHint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hints []*xform.EmptyHint
	for _, c := range s.list {
		if c.Expr.Kind == expr.KindOp && c.Expr.Op == expr.OpIsEmpty && len(c.Expr.Args) == 1 {
			hints = append(hints, &xform.EmptyHint{Expr: c.Expr.Args[0]})
		}
	}
	return hints
}

// Effect is one target table's post-assignment defining expression:
// what the table "becomes" once the pending operation is applied, for
// substitution into every constraint that references it.
type Effect struct {
	Table string
	Expr *expr.Expr
}

// Catalog is the slice of catalog behavior Check needs to transform and
// optimize the substituted constraint expression.
type Catalog interface {
	optimize.Catalog
}

func (s *Set) check(ctx *eval.Context, cat Catalog, subs map[string]*expr.Expr) error {
	for _, c := range s.All() {
		if !referencesAny(c.Expr, subs) {
			continue
		}
		post := substitute(c.Expr, subs)
		transformed, err := xform.Transform(post, cat)
		if err != nil {
			return err
		}
		optimized, err := optimize.Optimize(transformed, cat)
		if err != nil {
			return err
		}
		val, err := eval.Eval(ctx, optimized)
		if err != nil {
			return err
		}
		if val.Kind() != object.BoolKind || !val.Bool() {
			return duroerr.ErrPredicateViolation.New(c.Name)
		}
	}
	return nil
}

// CheckSet is the entry point package assign actually calls: s is the
// catalog's live constraint registry, effects the per-target
// post-assignment substitutions for the pending batch.
func CheckSet(ctx *eval.Context, cat Catalog, s *Set, effects []Effect) error {
	if s == nil || len(effects) == 0 {
		return nil
	}
	subs := make(map[string]*expr.Expr, len(effects))
	for _, e := range effects {
		subs[e.Table] = e.Expr
	}
	return s.check(ctx, cat, subs)
}

// referencesAny reports whether e contains a TABLE-REF or VAR node
// naming any key of subs.
func referencesAny(e *expr.Expr, subs map[string]*expr.Expr) bool {
	found := false
	expr.Walk(e, func(n *expr.Expr) {
			if found {
				return
			}
			if n.Kind == expr.KindTableRef {
				if _, ok := subs[n.TableRefName]; ok {
					found = true
				}
			}
			if n.Kind == expr.KindVar {
				if _, ok := subs[n.VarName]; ok {
					found = true
				}
			}
		})
	return found
}

// substitute returns a structural copy of e with every TABLE-REF node
// naming a key of subs replaced by the corresponding replacement
// expression.
func substitute(e *expr.Expr, subs map[string]*expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == expr.KindTableRef {
		if r, ok := subs[e.TableRefName]; ok {
			// Every occurrence gets its own cloned subtree: two
			// constraint positions referencing the same target table
			// (e.g. T appearing on both sides of a UNION/MINUS) must
			// never share one node pointer, or the transformer/
			// optimizer's mutable transformed/optimized/IndexSelect
			// state set while visiting one position would leak into
			// the other.
			return deepCloneExpr(r)
		}
		return e
	}
	if e.Kind == expr.KindVar {
		// A constraint may name its table as a bare variable.
		if r, ok := subs[e.VarName]; ok {
			return deepCloneExpr(r)
		}
		return e
	}
	if e.Kind != expr.KindOp {
		return e
	}
	n := e.Clone()
	for i, a := range e.Args {
		n.Args[i] = substitute(a, subs)
	}
	for i, ext := range e.Extends {
		n.Extends[i].Expr = substitute(ext.Expr, subs)
	}
	return n
}

// deepCloneExpr recursively clones e and every descendant so the
// returned tree shares no node (and therefore no mutable
// transformed/optimized/resultType state) with e.
func deepCloneExpr(e *expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	n := e.Clone()
	for i, a := range e.Args {
		n.Args[i] = deepCloneExpr(a)
	}
	for i, ext := range e.Extends {
		n.Extends[i].Expr = deepCloneExpr(ext.Expr)
	}
	return n
}
