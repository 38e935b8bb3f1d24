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

package optimize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// indexSelectShape flattens an *expr.IndexSelect into values go-cmp can
// diff directly; ObjPV holds *object.Object, which carries unexported
// fields cmp can't walk, so each is reduced to its scalar Go value.
type indexSelectShape struct {
	IndexName string
	ObjPV     []interface{}
	Asc       bool
	AllEq     bool
}

func scalarValue(o *object.Object) interface{} {
	switch o.Kind() {
	case object.IntKind:
		return o.Int()
	case object.FloatKind:
		return o.Float()
	case object.BoolKind:
		return o.Bool()
	case object.BinKind:
		return o.String()
	case object.TimeKind:
		return o.Time()
	default:
		return o.Binary()
	}
}

func shapeOfSelect(sel *expr.IndexSelect) indexSelectShape {
	pv := make([]interface{}, len(sel.ObjPV))
	for i, o := range sel.ObjPV {
		pv[i] = scalarValue(o)
	}
	return indexSelectShape{IndexName: sel.IndexName, ObjPV: pv, Asc: sel.Asc, AllEq: sel.AllEq}
}

func diffIndexSelect(want, got *expr.IndexSelect) string {
	return cmp.Diff(shapeOfSelect(want), shapeOfSelect(got))
}

type fakeCatalog struct {
	indexes map[string][]IndexInfo
	size int64
}

func (c *fakeCatalog) ResolveType(string) (durotype.Type, bool) { return durotype.Type{}, false }
func (c *fakeCatalog) TableIndexes(name string) []IndexInfo { return c.indexes[name] }
func (c *fakeCatalog) TableSize(string) int64 { return c.size }

// TestS4IndexRangeWithLike: WHERE name LIKE 'ab*' over a table carrying
// an index on name picks an index probe bounded by the literal prefix
// rather than a full scan.
func TestS4IndexRangeWithLike(t *testing.T) {
	cat := &fakeCatalog{
		size: 10000,
		indexes: map[string][]IndexInfo{
			"T": {{Name: "idx_name", FieldNames: []string{"name"}, Ascending: []bool{true}}},
		},
	}

	cond := expr.NewOp(expr.OpLike, expr.NewVar("name"), expr.NewObject(object.NewString("ab*")))
	where := expr.NewOp(expr.OpWhere, expr.NewTableRef("T"), cond)

	out, err := Optimize(where, cat)
	require.NoError(t, err)

	sel := out.IndexSelect()
	require.NotNil(t, sel)
	assert.Equal(t, "idx_name", sel.IndexName)
	require.Len(t, sel.ObjPV, 1)
	assert.Equal(t, "ab", sel.ObjPV[0].String())
	assert.False(t, sel.AllEq)
}

func TestNoIndexSelectedWithoutCandidate(t *testing.T) {
	cat := &fakeCatalog{size: 10000}
	cond := expr.NewOp(expr.OpEq, expr.NewVar("name"), expr.NewObject(object.NewString("x")))
	where := expr.NewOp(expr.OpWhere, expr.NewTableRef("T"), cond)

	out, err := Optimize(where, cat)
	require.NoError(t, err)
	assert.Nil(t, out.IndexSelect())
}

func TestEqualityIndexBeatsScan(t *testing.T) {
	cat := &fakeCatalog{
		size: 10000,
		indexes: map[string][]IndexInfo{
			"T": {{Name: "idx_id", FieldNames: []string{"id"}, Unique: true, Ascending: []bool{true}}},
		},
	}
	cond := expr.NewOp(expr.OpEq, expr.NewVar("id"), expr.NewObject(object.NewInt(42)))
	where := expr.NewOp(expr.OpWhere, expr.NewTableRef("T"), cond)

	out, err := Optimize(where, cat)
	require.NoError(t, err)
	sel := out.IndexSelect()
	require.NotNil(t, sel)

	want := &expr.IndexSelect{IndexName: "idx_id", ObjPV: []*object.Object{object.NewInt(42)}, Asc: true, AllEq: true}
	if diff := diffIndexSelect(want, sel); diff != "" {
		t.Errorf("index select mismatch (-want +got):\n%s", diff)
	}
}
