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

package tree

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/recmap"
)

func intBytes(i int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func decodeInt(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// eTableLayout mirrors S1's E{no:INT key, name:STRING}.
func eTableLayout() field.Layout {
	return field.Layout{
		Fields: []field.Info{{Name: "no", Len: 8}, {Name: "name", Len: field.LenVariable}},
		KeyFieldCount: 1,
	}
}

func TestS1InsertAndKeyViolation(t *testing.T) {
	l := eTableLayout()
	tbl, err := Create("E", l, []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(1), []byte("A")}))

	err = tbl.Insert(nil, recmap.Row{intBytes(1), []byte("B")})
	require.Error(t, err)
	assert.True(t, duroerr.ErrKeyViolation.Is(err))

	cur, err := tbl.Cursor(nil, false)
	require.NoError(t, err)
	defer cur.Close()
	require.NoError(t, cur.First())
	row, err := cur.Row()
	require.NoError(t, err)
	assert.Equal(t, int64(1), decodeInt(row[0]))
	assert.Equal(t, "A", string(row[1]))
	assert.Error(t, cur.Next())
}

// kTableLayout mirrors S6's K{id:INT key, v:INT}.
func kTableLayout() field.Layout {
	return field.Layout{
		Fields: []field.Info{{Name: "id", Len: 8}, {Name: "v", Len: 8}},
		KeyFieldCount: 1,
	}
}

func TestS6UpdateTouchingKey(t *testing.T) {
	l := kTableLayout()
	tbl, err := Create("K", l, []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(1), intBytes(10)}))
	require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(3), intBytes(99)}))

	require.NoError(t, tbl.Update(nil, recmap.Row{intBytes(1)}, map[int][]byte{0: intBytes(2)}))

	_, err = tbl.Get(nil, recmap.Row{intBytes(1)}, nil)
	assert.True(t, duroerr.ErrNotFound.Is(err))

	row, err := tbl.Get(nil, recmap.Row{intBytes(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), decodeInt(row[0]))
	assert.Equal(t, int64(10), decodeInt(row[1]))

	err = tbl.Update(nil, recmap.Row{intBytes(2)}, map[int][]byte{0: intBytes(3)})
	require.Error(t, err)
	assert.True(t, duroerr.ErrKeyViolation.Is(err))

	row, err = tbl.Get(nil, recmap.Row{intBytes(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), decodeInt(row[0]))
	assert.Equal(t, int64(10), decodeInt(row[1]))
}

func TestContainsExactBytes(t *testing.T) {
	l := kTableLayout()
	tbl, err := Create("K2", l, []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)
	require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(5), intBytes(7)}))

	ok, err := tbl.Contains(nil, recmap.Row{intBytes(5), intBytes(7)})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.Contains(nil, recmap.Row{intBytes(5), intBytes(8)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateRejectsNonUnique(t *testing.T) {
	l := kTableLayout()
	_, err := Create("K3", l, nil, 0)
	assert.Error(t, err)
}

// checkBalanced walks the subtree verifying every node's left/right
// heights differ by at most one, returning the subtree height.
func checkBalanced(t *testing.T, n *node) int {
	t.Helper()
	if n == nil {
		return 0
	}
	lh := checkBalanced(t, n.left)
	rh := checkBalanced(t, n.right)
	if lh-rh > 1 || rh-lh > 1 {
		t.Fatalf("unbalanced node: left height %d, right height %d", lh, rh)
	}
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// TestAVLBalanceAndTraversalOrder inserts keys in adversarial orders,
// deletes a subset, and verifies the balance invariant plus that a
// full cursor walk visits every record exactly once in ascending order
// (and Prev walks the reverse).
func TestAVLBalanceAndTraversalOrder(t *testing.T) {
	l := kTableLayout()
	tbl, err := Create("B", l, []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)

	for i := int64(0); i < 64; i++ {
		require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(i), intBytes(i * 10)}))
	}
	for i := int64(128); i > 64; i-- {
		require.NoError(t, tbl.Insert(nil, recmap.Row{intBytes(i), intBytes(i * 10)}))
	}
	for i := int64(0); i < 128; i += 3 {
		require.NoError(t, tbl.Delete(nil, recmap.Row{intBytes(i)}))
	}
	checkBalanced(t, tbl.root)

	var want []int64
	for i := int64(0); i <= 128; i++ {
		if i != 64 && i%3 != 0 {
			want = append(want, i)
		}
	}

	cur, err := tbl.Cursor(nil, false)
	require.NoError(t, err)
	defer cur.Close()
	var got []int64
	for err = cur.First(); err == nil; err = cur.Next() {
		row, rerr := cur.Row()
		require.NoError(t, rerr)
		got = append(got, decodeInt(row[0]))
	}
	require.True(t, duroerr.IsNotFound(err))
	assert.Equal(t, want, got)

	var rev []int64
	for err = cur.(*cursor).last(); err == nil; err = cur.Prev() {
		row, rerr := cur.Row()
		require.NoError(t, rerr)
		rev = append(rev, decodeInt(row[0]))
	}
	require.True(t, duroerr.IsNotFound(err))
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	assert.Equal(t, want, rev)
}
