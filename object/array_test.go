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

	"github.com/rehartmann/durodbms-sub001/duroerr"
)

// fakeSource is a RowSource yielding a fixed sequence of tuples, used to
// drive ToArray without needing a live qresult.Iterator.
type fakeSource struct {
	rows []*Object
	i    int
}

func (s *fakeSource) Next() (*Object, error) {
	if s.i >= len(s.rows) {
		return nil, duroerr.ErrNotFound.New()
	}
	r := s.rows[s.i]
	s.i++
	return r, nil
}

func (s *fakeSource) Close() error { return nil }

func tupWithX(x int64) *Object {
	t := NewTuple(nil)
	t.SetAttr("x", NewInt(x))
	return t
}

func xOf(t *testing.T, tup *Object) int64 {
	t.Helper()
	v, ok := tup.GetAttr("x")
	require.True(t, ok)
	return v.Int()
}

// TestToArraySortsAscending exercises the table-to-array conversion
// sorted by one ascending (attr, asc) item, with no limit.
func TestToArraySortsAscending(t *testing.T) {
	src := &fakeSource{rows: []*Object{tupWithX(3), tupWithX(1), tupWithX(2)}}

	arr, err := ToArray(src, []SortItem{{Attr: "x", Asc: true}}, 0)
	require.NoError(t, err)
	require.Equal(t, 3, arr.ArrayLen())
	assert.Equal(t, int64(1), xOf(t, arr.Array()[0]))
	assert.Equal(t, int64(2), xOf(t, arr.Array()[1]))
	assert.Equal(t, int64(3), xOf(t, arr.Array()[2]))
}

func TestToArrayDescendingWithLimit(t *testing.T) {
	src := &fakeSource{rows: []*Object{tupWithX(1), tupWithX(3), tupWithX(2)}}

	arr, err := ToArray(src, []SortItem{{Attr: "x", Asc: false}}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, arr.ArrayLen())
	assert.Equal(t, int64(3), xOf(t, arr.Array()[0]))
	assert.Equal(t, int64(2), xOf(t, arr.Array()[1]))
}

func TestToArrayUnsortedPreservesSourceOrder(t *testing.T) {
	src := &fakeSource{rows: []*Object{tupWithX(3), tupWithX(1), tupWithX(2)}}

	arr, err := ToArray(src, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), xOf(t, arr.Array()[0]))
	assert.Equal(t, int64(1), xOf(t, arr.Array()[1]))
	assert.Equal(t, int64(2), xOf(t, arr.Array()[2]))
}
