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

// Package field implements the record-half byte codec: a record half
// (key or value) is the concatenation of its fixed-length field bodies
// in field-number order, then its variable-length field bodies in
// field-number order, then a trailing table of one little-endian
// uint32 length per variable-length field.
//
// Field offsets are not stored; a decode computes them by summing the
// preceding fixed-field lengths plus, for variable fields, the
// preceding entries in the trailing length table.
package field

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/rehartmann/durodbms-sub001/duroerr"
)

// LenVariable marks a field as variable-length in Info.Len.
const LenVariable = -1

// Info describes one field's fixed length, or LenVariable.
type Info struct {
	Name string
	Len int
}

// Layout describes how a vector of fields is split into the key half
// (the first KeyFieldCount fields) and the value half (the rest), per
// "first K are key".
type Layout struct {
	Fields []Info
	KeyFieldCount int
}

// halfFields returns the Info slice for the key half (half==true) or
// value half (half==false), and the index offset into Fields.
func (l Layout) halfFields(half bool) ([]Info, int) {
	if half {
		return l.Fields[:l.KeyFieldCount], 0
	}
	return l.Fields[l.KeyFieldCount:], l.KeyFieldCount
}

// NumVariable returns the count of variable-length fields in the given
// half, used to size the trailing length table.
func (l Layout) NumVariable(half bool) int {
	fs, _ := l.halfFields(half)
	n := 0
	for _, f := range fs {
		if f.Len == LenVariable {
			n++
		}
	}
	return n
}

// FieldValue is one field's raw bytes tagged with its field number.
type FieldValue struct {
	No int
	Data []byte
}

const lenTableEntrySize = 4

// Encode builds one record half from the supplied field values. vals
// must contain exactly the fields belonging to that half (identified by
// field number being < KeyFieldCount for the key half, >= for the value
// half); order of vals does not matter, only field number does.
func Encode(l Layout, half bool, vals []FieldValue) ([]byte, error) {
	fs, offset := l.halfFields(half)
	byNo := make(map[int][]byte, len(vals))
	for _, v := range vals {
		byNo[v.No] = v.Data
	}

	var fixed, variable []byte
	varLens := make([]uint32, 0, l.NumVariable(half))

	for i, fi := range fs {
		no := offset + i
		data, ok := byNo[no]
		if !ok {
			return nil, duroerr.ErrInvalidArgument.New("missing field")
		}
		if fi.Len == LenVariable {
			variable = append(variable, data...)
			varLens = append(varLens, uint32(len(data)))
		} else {
			if len(data) != fi.Len {
				return nil, duroerr.ErrInvalidArgument.New("wrong field length")
			}
			fixed = append(fixed, data...)
		}
	}

	lenTable := make([]byte, lenTableEntrySize*len(varLens))
	for i, vl := range varLens {
		binary.LittleEndian.PutUint32(lenTable[i*lenTableEntrySize:], vl)
	}

	out := make([]byte, 0, len(fixed)+len(variable)+len(lenTable))
	out = append(out, fixed...)
	out = append(out, variable...)
	out = append(out, lenTable...)
	return out, nil
}

// Decode reconstructs the offset and length of field no within bytes:
// sum preceding fixed-field lengths (always present, since the fixed
// section precedes the variable section unconditionally), then, for a
// variable field, add preceding variable-field lengths read from the
// trailing table.
func Decode(l Layout, no int, bytes []byte) (offset, length int, err error) {
	half := no < l.KeyFieldCount
	fs, base := l.halfFields(half)
	rel := no - base
	if rel < 0 || rel >= len(fs) {
		return 0, 0, duroerr.ErrInvalidArgument.New("field number out of range")
	}

	fixedTotal := 0
	for _, f := range fs {
		if f.Len != LenVariable {
			fixedTotal += f.Len
		}
	}
	numVar := l.NumVariable(half)
	lenTableOff := len(bytes) - lenTableEntrySize*numVar

	if fs[rel].Len != LenVariable {
		offs := 0
		for i := 0; i < rel; i++ {
			if fs[i].Len != LenVariable {
				offs += fs[i].Len
			}
		}
		return offs, fs[rel].Len, checkLen(offs, fs[rel].Len, len(bytes))
	}

	vpos := 0
	for i := 0; i < rel; i++ {
		if fs[i].Len == LenVariable {
			vpos++
		}
	}

	if lenTableOff < 0 {
		return 0, 0, duroerr.ErrDataCorrupted.New("length table truncated")
	}
	offs := fixedTotal
	for i := 0; i < vpos; i++ {
		vl, err := readLen(bytes, lenTableOff, i)
		if err != nil {
			return 0, 0, err
		}
		offs += vl
	}
	length, err = readLen(bytes, lenTableOff, vpos)
	if err != nil {
		return 0, 0, err
	}
	return offs, length, checkLen(offs, length, len(bytes))
}

func readLen(bytes []byte, lenTableOff, idx int) (int, error) {
	o := lenTableOff + idx*lenTableEntrySize
	if o < 0 || o+lenTableEntrySize > len(bytes) {
		return 0, duroerr.ErrDataCorrupted.New("length table entry out of range")
	}
	return int(binary.LittleEndian.Uint32(bytes[o: o+lenTableEntrySize])), nil
}

func checkLen(offs, length, total int) error {
	if offs+length > total {
		return duroerr.ErrDataCorrupted.New("field length exceeds record length")
	}
	return nil
}

// Field borrows the bytes of field no out of a record half.
func Field(l Layout, no int, bytes []byte) ([]byte, error) {
	off, length, err := Decode(l, no, bytes)
	if err != nil {
		return nil, err
	}
	return bytes[off: off+length], nil
}

// UpdateFieldInPlace rewrites field no's bytes within a record half,
// growing or shrinking the buffer and the length table entry as
// needed, and returns the new record-half bytes. Shrink and grow
// collapse to a single allocation-and-copy here, since append-based
// reslicing performs the equivalent memmove internally.
func UpdateFieldInPlace(l Layout, bytes []byte, no int, newValue []byte) ([]byte, error) {
	half := no < l.KeyFieldCount
	fs, base := l.halfFields(half)
	rel := no - base
	if rel < 0 || rel >= len(fs) {
		return nil, duroerr.ErrInvalidArgument.New("field number out of range")
	}
	if fs[rel].Len != LenVariable {
		if len(newValue) != fs[rel].Len {
			return nil, duroerr.ErrInvalidArgument.New("wrong field length for fixed field")
		}
		off, length, err := Decode(l, no, bytes)
		if err != nil {
			return nil, err
		}
		out := append([]byte(nil), bytes...)
		copy(out[off:off+length], newValue)
		return out, nil
	}

	off, oldLen, err := Decode(l, no, bytes)
	if err != nil {
		return nil, err
	}
	numVar := l.NumVariable(half)
	lenTableOff := len(bytes) - lenTableEntrySize*numVar
	vpos := 0
	for i := 0; i < rel; i++ {
		if fs[i].Len == LenVariable {
			vpos++
		}
	}

	out := make([]byte, 0, len(bytes)-oldLen+len(newValue))
	out = append(out, bytes[:off]...)
	out = append(out, newValue...)
	out = append(out, bytes[off+oldLen:lenTableOff]...)
	lenTable := append([]byte(nil), bytes[lenTableOff:]...)
	binary.LittleEndian.PutUint32(lenTable[vpos*lenTableEntrySize:], uint32(len(newValue)))
	out = append(out, lenTable...)
	return out, nil
}

// WrapErr adds file/op context the way the bolt backend does at its I/O
// boundary (kept here since the codec is the first layer that can see a
// malformed record).
func WrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, op)
}
