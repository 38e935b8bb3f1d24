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

package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

func lit(o *object.Object) *expr.Expr { return expr.NewObject(o) }

func ctxWithDefaultOps() *Context {
	return &Context{Ops: NewDefaultRegistry()}
}

func TestArithmeticOperators(t *testing.T) {
	ctx := ctxWithDefaultOps()

	sum, err := Eval(ctx, expr.NewOp("+", lit(object.NewInt(2)), lit(object.NewInt(3))))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.Int())

	diff, err := Eval(ctx, expr.NewOp("-", lit(object.NewInt(5)), lit(object.NewInt(3))))
	require.NoError(t, err)
	assert.Equal(t, int64(2), diff.Int())

	prod, err := Eval(ctx, expr.NewOp("*", lit(object.NewFloat(2.5)), lit(object.NewInt(2))))
	require.NoError(t, err)
	assert.Equal(t, 5.0, prod.Float())

	_, err = Eval(ctx, expr.NewOp("/", lit(object.NewInt(1)), lit(object.NewInt(0))))
	assert.Error(t, err)
}

func TestComparisonOperators(t *testing.T) {
	ctx := ctxWithDefaultOps()

	cases := []struct {
		op       string
		a, b     int64
		expected bool
	}{
		{expr.OpEq, 1, 1, true},
		{expr.OpEq, 1, 2, false},
		{expr.OpNe, 1, 2, true},
		{expr.OpLt, 1, 2, true},
		{expr.OpLe, 2, 2, true},
		{expr.OpGt, 3, 2, true},
		{expr.OpGe, 2, 2, true},
	}
	for _, c := range cases {
		v, err := Eval(ctx, expr.NewOp(c.op, lit(object.NewInt(c.a)), lit(object.NewInt(c.b))))
		require.NoError(t, err)
		assert.Equal(t, c.expected, v.Bool(), "%s(%d,%d)", c.op, c.a, c.b)
	}
}

func TestAndOrNot(t *testing.T) {
	ctx := ctxWithDefaultOps()

	v, err := Eval(ctx, expr.NewOp(expr.OpAnd, lit(object.NewBool(true)), lit(object.NewBool(false))))
	require.NoError(t, err)
	assert.False(t, v.Bool())

	v, err = Eval(ctx, expr.NewOp(expr.OpOr, lit(object.NewBool(true)), lit(object.NewBool(false))))
	require.NoError(t, err)
	assert.True(t, v.Bool())

	v, err = Eval(ctx, expr.NewOp(expr.OpNot, lit(object.NewBool(false))))
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

// TestLikeGlobMatch exercises the residual LIKE predicate the optimizer
// falls back to evaluating in full.
func TestLikeGlobMatch(t *testing.T) {
	ctx := ctxWithDefaultOps()

	v, err := Eval(ctx, expr.NewOp(expr.OpLike, lit(object.NewString("apple")), lit(object.NewString("a*"))))
	require.NoError(t, err)
	assert.True(t, v.Bool())

	v, err = Eval(ctx, expr.NewOp(expr.OpLike, lit(object.NewString("banana")), lit(object.NewString("a*"))))
	require.NoError(t, err)
	assert.False(t, v.Bool())

	v, err = Eval(ctx, expr.NewOp(expr.OpLike, lit(object.NewString("ant")), lit(object.NewString("a?t"))))
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestStartsWith(t *testing.T) {
	ctx := ctxWithDefaultOps()
	v, err := Eval(ctx, expr.NewOp("starts_with", lit(object.NewString("apple")), lit(object.NewString("app"))))
	require.NoError(t, err)
	assert.True(t, v.Bool())
}

func TestCompareMixedIntFloat(t *testing.T) {
	c, err := Compare(object.NewInt(2), object.NewFloat(2.0))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Compare(object.NewInt(1), object.NewFloat(2.0))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestCompareIncompatibleKindsErrors(t *testing.T) {
	_, err := Compare(object.NewString("a"), object.NewInt(1))
	assert.Error(t, err)
}
