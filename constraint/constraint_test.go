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

package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

func TestSetAddReplaceRemove(t *testing.T) {
	s := NewSet()
	c1 := expr.NewOp(expr.OpIsEmpty, expr.NewTableRef("T"))
	s.Add("c1", c1)
	require.Len(t, s.All(), 1)

	c1b := expr.NewOp(expr.OpIsEmpty, expr.NewTableRef("U"))
	s.Add("c1", c1b)
	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "U", all[0].Expr.Args[0].TableRefName)

	s.Remove("c1")
	assert.Len(t, s.All(), 0)

	// Removing an absent name is a no-op.
	s.Remove("nope")
}

// TestHintsDerivedFromIsEmptyConstraintsOnly: only IS_EMPTY(E)-shaped
// constraints become declared-empty hints; any other
// shape is ignored.
func TestHintsDerivedFromIsEmptyConstraintsOnly(t *testing.T) {
	s := NewSet()
	s.Add("empty_neg", expr.NewOp(expr.OpIsEmpty, expr.NewOp(expr.OpWhere, expr.NewTableRef("T"),
				expr.NewOp(expr.OpLt, expr.NewVar("x"), expr.NewObject(object.NewInt(0))))))
	s.Add("not_is_empty", expr.NewOp(expr.OpEq, expr.NewVar("x"), expr.NewObject(object.NewInt(1))))

	hints := s.Hints()
	require.Len(t, hints, 1)
	assert.Equal(t, expr.OpWhere, hints[0].Expr.Op)
}

func TestReferencesAnyFindsTableRefInsideTree(t *testing.T) {
	subs := map[string]*expr.Expr{"T": expr.NewObject(object.NewInt(0))}
	e := expr.NewOp(expr.OpIsEmpty, expr.NewOp(expr.OpWhere, expr.NewTableRef("T"), expr.NewVar("x")))
	assert.True(t, referencesAny(e, subs))

	unrelated := expr.NewOp(expr.OpIsEmpty, expr.NewTableRef("U"))
	assert.False(t, referencesAny(unrelated, subs))
}

// TestSubstituteReplacesEveryOccurrenceWithoutAliasing: two distinct
// positions referencing the same table name must each get their own
// cloned replacement node, never a shared pointer.
func TestSubstituteReplacesEveryOccurrenceWithoutAliasing(t *testing.T) {
	repl := expr.NewOp(expr.OpWhere, expr.NewTableRef("T"), expr.NewVar("cond"))
	subs := map[string]*expr.Expr{"T": repl}

	e := expr.NewOp(expr.OpUnion, expr.NewTableRef("T"), expr.NewTableRef("T"))
	out := substitute(e, subs)

	require.Equal(t, expr.OpUnion, out.Op)
	require.Len(t, out.Args, 2)
	assert.Equal(t, expr.OpWhere, out.Args[0].Op)
	assert.Equal(t, expr.OpWhere, out.Args[1].Op)
	assert.NotSame(t, out.Args[0], out.Args[1])
}

func TestSubstituteLeavesUnreferencedTableRefsAlone(t *testing.T) {
	subs := map[string]*expr.Expr{"T": expr.NewTableRef("T2")}
	e := expr.NewTableRef("U")
	out := substitute(e, subs)
	assert.Equal(t, "U", out.TableRefName)
}
