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

package xform

import (
	"github.com/google/go-cmp/cmp"

	"github.com/rehartmann/durodbms-sub001/expr"
)

// exprShape flattens an *expr.Expr into a plain comparable tree, dropping
// the memoized result-type cache and the transformed/optimized/index
// fields that aren't part of a rule's RHS shape. go-cmp's diff on this
// flat struct is far more legible than a chain of per-field assertions
// once a rule produces a multi-level tree.
type exprShape struct {
	Kind         expr.Kind
	TableRefName string
	VarName      string
	Op           string
	Args         []exprShape
	Renames      []expr.RenamePair
	Extends      []string
	Seq          []expr.SeqItem
}

func shapeOf(e *expr.Expr) exprShape {
	if e == nil {
		return exprShape{}
	}
	s := exprShape{
		Kind:         e.Kind,
		TableRefName: e.TableRefName,
		VarName:      e.VarName,
		Op:           e.Op,
		Renames:      e.Renames,
		Seq:          e.Seq,
	}
	for _, a := range e.Args {
		s.Args = append(s.Args, shapeOf(a))
	}
	for _, x := range e.Extends {
		s.Extends = append(s.Extends, x.Name)
	}
	return s
}

// diffExpr returns a human-readable diff between two expression trees'
// shapes, or "" if they match.
func diffExpr(want, got *expr.Expr) string {
	return cmp.Diff(shapeOf(want), shapeOf(got))
}
