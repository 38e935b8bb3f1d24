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

package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/object"
)

func eType() durotype.Type {
	return durotype.Relation(durotype.Tuple(map[string]durotype.Type{
				"no": durotype.Integer,
				"name": durotype.String,
			}))
}

func tupleNoName(no int64, name string) *object.Object {
	t := object.NewTuple(nil)
	t.SetAttr("no", object.NewInt(no))
	t.SetAttr("name", object.NewString(name))
	return t
}

func TestCreateTableRejectsNonRelationType(t *testing.T) {
	c := NewMem()
	err := c.CreateTable("X", durotype.Integer, nil)
	require.Error(t, err)
	assert.True(t, duroerr.ErrTypeMismatch.Is(err))
}

func TestCreateTableDuplicateNameFails(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))
	err := c.CreateTable("E", eType(), []string{"no"})
	require.Error(t, err)
	assert.True(t, duroerr.ErrElementExists.Is(err))
}

func TestResolveTypeAndResolveTableRequireBinding(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))

	typ, ok := c.ResolveType("E")
	require.True(t, ok)
	assert.Equal(t, durotype.KindRelation, typ.Kind())

	_, ok = c.ResolveType("nonexistent")
	assert.False(t, ok)

	// ResolveTable requires a bound transaction.
	_, ok = c.ResolveTable("E")
	assert.False(t, ok)

	tx, err := c.Manager().Begin(nil)
	require.NoError(t, err)
	c.UseTx(tx)
	obj, ok := c.ResolveTable("E")
	require.True(t, ok)
	assert.NotNil(t, obj.Table())
	c.UseTx(nil)
}

// TestInsertTupleThenScanFindsIt exercises S1's insert path through
// the catalog layer, including the NoRunningTx guard.
func TestInsertTupleThenScanFindsIt(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))

	err := c.InsertTuple("E", tupleNoName(1, "A"))
	require.Error(t, err)
	assert.True(t, duroerr.ErrNoRunningTx.Is(err))

	tx, err := c.Manager().Begin(nil)
	require.NoError(t, err)
	c.UseTx(tx)
	defer c.UseTx(nil)

	require.NoError(t, c.InsertTuple("E", tupleNoName(1, "A")))

	err = c.InsertTuple("E", tupleNoName(1, "B"))
	require.Error(t, err)
	assert.True(t, duroerr.ErrKeyViolation.Is(err))

	var names []string
	_, err = c.UpdateMatching("E", func(tup *object.Object) (bool, error) {
		v, _ := tup.GetAttr("name")
		names = append(names, v.String())
		return false, nil
	}, func(*object.Object) (map[string]*object.Object, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names)
}

func TestUpdateMatchingAndDeleteMatching(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))
	tx, err := c.Manager().Begin(nil)
	require.NoError(t, err)
	c.UseTx(tx)
	defer c.UseTx(nil)

	require.NoError(t, c.InsertTuple("E", tupleNoName(1, "A")))
	require.NoError(t, c.InsertTuple("E", tupleNoName(2, "B")))

	matchNo1 := func(tup *object.Object) (bool, error) {
		v, _ := tup.GetAttr("no")
		return v.Int() == 1, nil
	}
	n, err := c.UpdateMatching("E", matchNo1, func(*object.Object) (map[string]*object.Object, error) {
			return map[string]*object.Object{"name": object.NewString("Z")}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.DeleteMatching("E", func(tup *object.Object) (bool, error) {
			v, _ := tup.GetAttr("no")
			return v.Int() == 2, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateIndexAndIndexCount(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))
	assert.Equal(t, 0, c.IndexCount("E"))

	require.NoError(t, c.CreateIndex("E", "idx_name", []string{"name"}, nil))
	assert.Equal(t, 1, c.IndexCount("E"))

	infos := c.TableIndexes("E")
	require.Len(t, infos, 1)
	assert.Equal(t, "idx_name", infos[0].Name)
	assert.Equal(t, []string{"name"}, infos[0].FieldNames)
	assert.True(t, infos[0].Unique)
}

func TestDropTableRemovesFromCatalog(t *testing.T) {
	c := NewMem()
	require.NoError(t, c.CreateTable("E", eType(), []string{"no"}))
	require.NoError(t, c.DropTable("E"))

	_, ok := c.ResolveType("E")
	assert.False(t, ok)

	err := c.DropTable("E")
	require.Error(t, err)
	assert.True(t, duroerr.ErrName.Is(err))
}
