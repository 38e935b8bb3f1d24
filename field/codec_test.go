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

package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMixedLayout() Layout {
	return Layout{
		Fields: []Info{
			{Name: "k", Len: 4},
			{Name: "name", Len: LenVariable},
			{Name: "flag", Len: 1},
			{Name: "note", Len: LenVariable},
		},
		KeyFieldCount: 1,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := fixedMixedLayout()

	key, err := Encode(l, true, []FieldValue{{No: 0, Data: []byte{1, 2, 3, 4}}})
	require.NoError(t, err)

	value, err := Encode(l, false, []FieldValue{
			{No: 1, Data: []byte("alice")},
			{No: 2, Data: []byte{1}},
			{No: 3, Data: []byte("a longer variable note")},
		})
	require.NoError(t, err)

	got, err := Field(l, 0, key)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	got, err = Field(l, 1, value)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), got)

	got, err = Field(l, 2, value)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)

	got, err = Field(l, 3, value)
	require.NoError(t, err)
	assert.Equal(t, []byte("a longer variable note"), got)
}

func TestEncodeOrderIndependence(t *testing.T) {
	l := fixedMixedLayout()

	a, err := Encode(l, false, []FieldValue{
			{No: 1, Data: []byte("x")},
			{No: 2, Data: []byte{0}},
			{No: 3, Data: []byte("y")},
		})
	require.NoError(t, err)

	b, err := Encode(l, false, []FieldValue{
			{No: 3, Data: []byte("y")},
			{No: 1, Data: []byte("x")},
			{No: 2, Data: []byte{0}},
		})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEncodeMissingField(t *testing.T) {
	l := fixedMixedLayout()
	_, err := Encode(l, false, []FieldValue{{No: 1, Data: []byte("x")}})
	assert.Error(t, err)
}

func TestEncodeWrongFixedLength(t *testing.T) {
	l := fixedMixedLayout()
	_, err := Encode(l, true, []FieldValue{{No: 0, Data: []byte{1, 2}}})
	assert.Error(t, err)
}

func TestUpdateFieldInPlaceFixed(t *testing.T) {
	l := fixedMixedLayout()
	value, err := Encode(l, false, []FieldValue{
			{No: 1, Data: []byte("alice")},
			{No: 2, Data: []byte{0}},
			{No: 3, Data: []byte("note")},
		})
	require.NoError(t, err)

	updated, err := UpdateFieldInPlace(l, value, 2, []byte{1})
	require.NoError(t, err)

	got, err := Field(l, 2, updated)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)

	// Unaffected variable fields survive.
	got, err = Field(l, 1, updated)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), got)
	got, err = Field(l, 3, updated)
	require.NoError(t, err)
	assert.Equal(t, []byte("note"), got)
}

func TestUpdateFieldInPlaceVariableGrowShrink(t *testing.T) {
	l := fixedMixedLayout()
	value, err := Encode(l, false, []FieldValue{
			{No: 1, Data: []byte("al")},
			{No: 2, Data: []byte{0}},
			{No: 3, Data: []byte("note")},
		})
	require.NoError(t, err)

	grown, err := UpdateFieldInPlace(l, value, 1, []byte("alexandria"))
	require.NoError(t, err)
	got, err := Field(l, 1, grown)
	require.NoError(t, err)
	assert.Equal(t, []byte("alexandria"), got)
	got, err = Field(l, 3, grown)
	require.NoError(t, err)
	assert.Equal(t, []byte("note"), got)

	shrunk, err := UpdateFieldInPlace(l, grown, 1, []byte("a"))
	require.NoError(t, err)
	got, err = Field(l, 1, shrunk)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
	got, err = Field(l, 3, shrunk)
	require.NoError(t, err)
	assert.Equal(t, []byte("note"), got)
}

func TestUpdateFieldInPlaceWrongFixedLength(t *testing.T) {
	l := fixedMixedLayout()
	value, err := Encode(l, false, []FieldValue{
			{No: 1, Data: []byte("al")},
			{No: 2, Data: []byte{0}},
			{No: 3, Data: []byte("note")},
		})
	require.NoError(t, err)

	_, err = UpdateFieldInPlace(l, value, 2, []byte{1, 2})
	assert.Error(t, err)
}

func TestDecodeFieldOutOfRange(t *testing.T) {
	l := fixedMixedLayout()
	key, err := Encode(l, true, []FieldValue{{No: 0, Data: []byte{1, 2, 3, 4}}})
	require.NoError(t, err)
	_, _, err = Decode(l, 9, key)
	assert.Error(t, err)
}
