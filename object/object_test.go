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

package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/durotype"
)

func TestTupleGetSetAttr(t *testing.T) {
	tup := NewTuple(nil)
	tup.SetAttr("x", NewInt(1))
	tup.SetAttr("y", NewString("a"))

	v, ok := tup.GetAttr("x")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int())

	_, ok = tup.GetAttr("z")
	assert.False(t, ok)

	assert.Equal(t, []string{"x", "y"}, tup.AttrNames())

	tup.RemoveAttr("y")
	assert.Equal(t, []string{"x"}, tup.AttrNames())
}

// TestCopyIsDeep: mutating a copy's tuple attribute must not affect the
// original.
func TestCopyIsDeep(t *testing.T) {
	orig := NewTuple(nil)
	orig.SetAttr("x", NewInt(1))

	cp := orig.Copy()
	cp.SetAttr("x", NewInt(99))

	v, _ := orig.GetAttr("x")
	assert.Equal(t, int64(1), v.Int())
	v2, _ := cp.GetAttr("x")
	assert.Equal(t, int64(99), v2.Int())
}

func TestCopyArrayIsDeep(t *testing.T) {
	et := durotype.Integer
	arr := NewArray([]*Object{NewInt(1), NewInt(2)}, &et)
	cp := arr.Copy()
	cp.Array()[0] = NewInt(100)

	assert.Equal(t, int64(1), arr.Array()[0].Int())
	assert.Equal(t, int64(100), cp.Array()[0].Int())
	assert.Equal(t, 2, cp.ArrayLen())
}

// TestHashEqualForStructurallyEqualTuples: package xform's union-
// complement rule relies on Hash treating two structurally equal tuples as
// equal regardless of attribute insertion order.
func TestHashEqualForStructurallyEqualTuples(t *testing.T) {
	a := NewTuple(nil)
	a.SetAttr("x", NewInt(1))
	a.SetAttr("y", NewString("a"))

	b := NewTuple(nil)
	b.SetAttr("y", NewString("a"))
	b.SetAttr("x", NewInt(1))

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	c := NewTuple(nil)
	c.SetAttr("x", NewInt(2))
	c.SetAttr("y", NewString("a"))
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestAsInt64AndAsFloat64Coerce(t *testing.T) {
	i, err := AsInt64("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)

	f, err := AsFloat64(int32(3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = AsInt64("not-a-number")
	assert.Error(t, err)
}
