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

package kvstore

import (
	"encoding/binary"
	"path/filepath"
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

func eTableLayout() field.Layout {
	return field.Layout{
		Fields: []field.Info{{Name: "no", Len: 8}, {Name: "name", Len: field.LenVariable}},
		KeyFieldCount: 1,
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestS1InsertAndKeyViolation driven over the bolt backend
// instead of the tree backend, exercising the remote-KV-shaped
// record-key encoding.
func TestS1InsertAndKeyViolation(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin(nil)
	require.NoError(t, err)

	tbl, err := Create(tx, "E", eTableLayout(), []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(tx, recmap.Row{intBytes(1), []byte("A")}))

	err = tbl.Insert(tx, recmap.Row{intBytes(1), []byte("B")})
	require.Error(t, err)
	assert.True(t, duroerr.ErrKeyViolation.Is(err))

	got, err := tbl.Get(tx, recmap.Row{intBytes(1)}, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), decodeInt(got[0]))
	assert.Equal(t, "A", string(got[1]))

	require.NoError(t, tx.Commit())
}

func TestEncodeTableKeyAndIndexKeyPrefixes(t *testing.T) {
	k := EncodeTableKey("E", intBytes(1))
	assert.Equal(t, "t/E/", string(k[:4]))

	ik := EncodeIndexKey("idx_no", []byte("x"))
	assert.Equal(t, "i/idx_no/x", string(ik))
}

func TestRangeEndIncrementsLastByte(t *testing.T) {
	end := RangeEnd([]byte("t/E/"))
	require.NotNil(t, end)
	assert.Equal(t, byte('0'), end[len(end)-1])
	assert.Equal(t, "t/E"+string(rune('/'+1)), string(end))
}

func TestRangeEndAllFF(t *testing.T) {
	end := RangeEnd([]byte{0xff, 0xff})
	assert.Nil(t, end)
}

// TestGetContainsDeleteRoundTrip exercises contains/delete/not-found
// over the bolt backend.
func TestGetContainsDeleteRoundTrip(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.Begin(nil)
	require.NoError(t, err)
	tbl, err := Create(tx, "E", eTableLayout(), []recmap.CmpField{{FieldNo: 0}}, recmap.Unique)
	require.NoError(t, err)

	require.NoError(t, tbl.Insert(tx, recmap.Row{intBytes(2), []byte("B")}))

	ok, err := tbl.Contains(tx, recmap.Row{intBytes(2), []byte("B")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.Contains(tx, recmap.Row{intBytes(2), []byte("X")})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tbl.Delete(tx, recmap.Row{intBytes(2)}))
	_, err = tbl.Get(tx, recmap.Row{intBytes(2)}, []int{0, 1})
	require.Error(t, err)
	assert.True(t, duroerr.ErrNotFound.Is(err))

	err = tbl.Delete(tx, recmap.Row{intBytes(2)})
	require.Error(t, err)
	assert.True(t, duroerr.ErrNotFound.Is(err))

	require.NoError(t, tx.Commit())
}
