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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/catalog"
	"github.com/rehartmann/durodbms-sub001/constraint"
	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/eval"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

func xType() durotype.Type {
	return durotype.Relation(durotype.Tuple(map[string]durotype.Type{
				"x": durotype.Integer,
			}))
}

func xTuple(x int64) *object.Object {
	t := object.NewTuple(nil)
	t.SetAttr("x", object.NewInt(x))
	return t
}

func newTestSetup(t *testing.T) (*catalog.Catalog, *Engine) {
	t.Helper()
	cat := catalog.NewMem()
	require.NoError(t, cat.CreateTable("T", xType(), []string{"x"}))
	cs := constraint.NewSet()
	eng := New(cat, cs)
	return cat, eng
}

func newCtx(cat *catalog.Catalog) *eval.Context {
	return &eval.Context{Catalog: cat, Ops: eval.NewDefaultRegistry(), TxActive: true}
}

// TestExecuteSingleInsert exercises S1's bare insert path.
func TestExecuteSingleInsert(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)

	b := Batch{Inserts: []InsertOp{{Target: expr.NewTableRef("T"), Value: xTuple(1)}}}
	require.NoError(t, eng.Execute(ctx, tx, b))
	require.NoError(t, tx.Commit())
}

func TestExecuteNoRunningTxRejected(t *testing.T) {
	_, eng := newTestSetup(t)
	b := Batch{Inserts: []InsertOp{{Target: expr.NewTableRef("T"), Value: xTuple(1)}}}
	err := eng.Execute(nil, nil, b)
	assert.True(t, duroerr.ErrNoRunningTx.Is(err))
}

func TestExecuteEmptyBatchIsNoop(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)
	require.NoError(t, eng.Execute(ctx, tx, Batch{}))
}

// TestExecuteRejectsDoubleTargeting: the same base table cannot be
// targeted by two operations in one assignment.
func TestExecuteRejectsDoubleTargeting(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)

	b := Batch{
		Inserts: []InsertOp{{Target: expr.NewTableRef("T"), Value: xTuple(1)}},
		Deletes: []DeleteOp{{Target: expr.NewTableRef("T")}},
	}
	err = eng.Execute(ctx, tx, b)
	require.Error(t, err)
	assert.True(t, duroerr.ErrInvalidArgument.Is(err))
}

// TestExecuteInsertThroughWhereTargetChecksPredicate exercises the
// recursive virtual-target resolution of step 3: inserting
// through a WHERE target must satisfy the predicate.
func TestExecuteInsertThroughWhereTargetChecksPredicate(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)

	target := expr.NewOp(expr.OpWhere, expr.NewTableRef("T"),
		expr.NewOp(expr.OpGe, expr.NewVar("x"), expr.NewObject(object.NewInt(0))))

	b := Batch{Inserts: []InsertOp{{Target: target, Value: xTuple(5)}}}
	require.NoError(t, eng.Execute(ctx, tx, b))

	b2 := Batch{Inserts: []InsertOp{{Target: target, Value: xTuple(-1)}}}
	err = eng.Execute(ctx, tx, b2)
	require.Error(t, err)
	assert.True(t, duroerr.ErrPredicateViolation.Is(err))
}

func TestExecuteUpdateAndDeleteMatching(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)

	ins := Batch{Inserts: []InsertOp{
			{Target: expr.NewTableRef("T"), Value: xTuple(1)},
		}}
	require.NoError(t, eng.Execute(ctx, tx, ins))

	ins2 := Batch{Inserts: []InsertOp{
			{Target: expr.NewTableRef("T"), Value: xTuple(2)},
		}}
	require.NoError(t, eng.Execute(ctx, tx, ins2))

	upd := Batch{Updates: []UpdateOp{{
				Target: expr.NewTableRef("T"),
				Cond: expr.NewOp(expr.OpEq, expr.NewVar("x"), expr.NewObject(object.NewInt(1))),
				Attrs: []UpdateAttr{{Name: "x", Expr: expr.NewObject(object.NewInt(10))}},
			}}}
	require.NoError(t, eng.Execute(ctx, tx, upd))

	del := Batch{Deletes: []DeleteOp{{
				Target: expr.NewTableRef("T"),
				Cond: expr.NewOp(expr.OpEq, expr.NewVar("x"), expr.NewObject(object.NewInt(2))),
			}}}
	require.NoError(t, eng.Execute(ctx, tx, del))

	var seen []int64
	_, err = cat.UpdateMatching("T", func(tup *object.Object) (bool, error) {
			v, _ := tup.GetAttr("x")
			seen = append(seen, v.Int())
			return false, nil
		}, func(*object.Object) (map[string]*object.Object, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, seen)
}

func TestExecuteInsertTypeMismatchRejected(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	ctx := newCtx(cat)

	bad := object.NewTuple(nil)
	bad.SetAttr("x", object.NewString("not an int"))

	b := Batch{Inserts: []InsertOp{{Target: expr.NewTableRef("T"), Value: bad}}}
	err = eng.Execute(ctx, tx, b)
	require.Error(t, err)
	assert.True(t, duroerr.ErrTypeMismatch.Is(err))
}

func TestResolveInsertTargetRejectsNonIdentityProjection(t *testing.T) {
	cat, eng := newTestSetup(t)
	tx, err := cat.Manager().Begin(nil)
	require.NoError(t, err)
	defer tx.Rollback()
	ctx := newCtx(cat)
	cat.UseTx(tx)
	defer cat.UseTx(nil)

	proj := expr.NewOp(expr.OpProject, expr.NewTableRef("T"), expr.NewVar("x"))
	_, _, err = eng.resolveInsertTarget(ctx, proj, xTuple(1))
	require.NoError(t, err) // identity projection (single attr "x") is allowed

	require.NoError(t, cat.CreateTable("Y", durotype.Relation(durotype.Tuple(map[string]durotype.Type{
						"x": durotype.Integer, "y": durotype.Integer,
					})), []string{"x"}))
	projNarrow := expr.NewOp(expr.OpProject, expr.NewTableRef("Y"), expr.NewVar("x"))
	_, _, err = eng.resolveInsertTarget(ctx, projNarrow, xTuple(1))
	require.Error(t, err)
	assert.True(t, duroerr.ErrNotSupported.Is(err))
}
