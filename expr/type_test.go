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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/object"
)

type fakeResolver struct {
	types map[string]durotype.Type
}

func (r *fakeResolver) ResolveType(name string) (durotype.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

func tType() durotype.Type {
	return durotype.Relation(durotype.Tuple(map[string]durotype.Type{
		"a": durotype.Integer,
		"b": durotype.String,
	}))
}

func TestInferWhereRequiresRelationAndBooleanCondition(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{"T": tType()}}
	cond := NewOp(OpGt, NewVar("a"), NewObject(object.NewInt(0)))
	w := NewOp(OpWhere, NewTableRef("T"), cond)

	rt, err := Infer(w, nil, res)
	require.NoError(t, err)
	assert.Equal(t, durotype.KindRelation, rt.Kind())
}

func TestInferWhereRejectsNonBooleanCondition(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{"T": tType()}}
	notBool := NewVar("a") // INTEGER, not BOOLEAN
	w := NewOp(OpWhere, NewTableRef("T"), notBool)

	_, err := Infer(w, nil, res)
	assert.Error(t, err)
}

func TestInferProjectNarrowsAttributes(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{"T": tType()}}
	p := NewOp(OpProject, NewTableRef("T"), NewVar("a"))

	rt, err := Infer(p, nil, res)
	require.NoError(t, err)
	require.Len(t, rt.Attrs, 1)
	_, ok := rt.Attrs["a"]
	assert.True(t, ok)
}

func TestInferProjectUnknownAttributeErrors(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{"T": tType()}}
	p := NewOp(OpProject, NewTableRef("T"), NewVar("nope"))
	_, err := Infer(p, nil, res)
	assert.Error(t, err)
}

func TestInferUnionRequiresEqualTypes(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{
		"T": tType(),
		"U": durotype.Relation(durotype.Tuple(map[string]durotype.Type{"c": durotype.Integer})),
	}}
	u := NewOp(OpUnion, NewTableRef("T"), NewTableRef("U"))
	_, err := Infer(u, nil, res)
	assert.Error(t, err)

	same := NewOp(OpUnion, NewTableRef("T"), NewTableRef("T"))
	rt, err := Infer(same, nil, res)
	require.NoError(t, err)
	assert.Equal(t, durotype.KindRelation, rt.Kind())
}

func TestInferJoinMergesAttributes(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{
		"T": tType(),
		"U": durotype.Relation(durotype.Tuple(map[string]durotype.Type{"a": durotype.Integer, "c": durotype.Float})),
	}}
	j := NewOp(OpJoin, NewTableRef("T"), NewTableRef("U"))
	rt, err := Infer(j, nil, res)
	require.NoError(t, err)
	assert.Len(t, rt.Attrs, 3)
}

func TestInferJoinConflictingAttributeTypeErrors(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{
		"T": tType(),
		"U": durotype.Relation(durotype.Tuple(map[string]durotype.Type{"a": durotype.Float})),
	}}
	j := NewOp(OpJoin, NewTableRef("T"), NewTableRef("U"))
	_, err := Infer(j, nil, res)
	assert.Error(t, err)
}

// TestInferIfRequiresBooleanConditionAndEqualBranches covers the IF
// node: three args, arg#1 BOOLEAN, arg#2 and arg#3 must have equal
// types.
func TestInferIfRequiresBooleanConditionAndEqualBranches(t *testing.T) {
	res := &fakeResolver{}
	ifExpr := NewOp(OpIf, NewObject(object.NewBool(true)), NewObject(object.NewInt(1)), NewObject(object.NewInt(2)))
	rt, err := Infer(ifExpr, nil, res)
	require.NoError(t, err)
	assert.Equal(t, durotype.KindInteger, rt.Kind())

	mismatched := NewOp(OpIf, NewObject(object.NewBool(true)), NewObject(object.NewInt(1)), NewObject(object.NewString("x")))
	_, err = Infer(mismatched, nil, res)
	assert.Error(t, err)

	nonBoolCond := NewOp(OpIf, NewObject(object.NewInt(1)), NewObject(object.NewInt(1)), NewObject(object.NewInt(2)))
	_, err = Infer(nonBoolCond, nil, res)
	assert.Error(t, err)
}

// TestInferMemoizesResultType: a second Infer call on the same node
// must not re-derive the type.
func TestInferMemoizesResultType(t *testing.T) {
	res := &fakeResolver{types: map[string]durotype.Type{"T": tType()}}
	ref := NewTableRef("T")
	rt1, err := Infer(ref, nil, res)
	require.NoError(t, err)

	// Remove T from the resolver; a cached node must still resolve.
	delete(res.types, "T")
	rt2, err := Infer(ref, nil, res)
	require.NoError(t, err)
	assert.Equal(t, rt1, rt2)
}
