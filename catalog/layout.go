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
	"sort"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/field"
	"github.com/rehartmann/durodbms-sub001/object"
)

// attrLayout is the field-order bookkeeping a stored table or index
// needs to translate between named tuple attributes and numbered
// record-map fields: key attributes first, in the caller's given order,
// then the remaining attributes sorted alphabetically for determinism.
type attrLayout struct {
	order []string // field number -> attribute name
	no map[string]int
	types map[string]durotype.Type
}

func newAttrLayout(typ durotype.Type, keyAttrs []string) (attrLayout, error) {
	inKey := make(map[string]bool, len(keyAttrs))
	for _, n := range keyAttrs {
		if _, ok := typ.Attrs[n]; !ok {
			return attrLayout{}, duroerr.ErrName.New(n)
		}
		inKey[n] = true
	}
	var rest []string
	for n := range typ.Attrs {
		if !inKey[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)

	order := append(append([]string(nil), keyAttrs...), rest...)
	no := make(map[string]int, len(order))
	for i, n := range order {
		no[n] = i
	}
	return attrLayout{order: order, no: no, types: typ.Attrs}, nil
}

// fieldLayout builds the field.Layout a record-map backend needs,
// failing if any attribute's type cannot be stored directly.
func (al attrLayout) fieldLayout(keyFieldCount int) (field.Layout, error) {
	fields := make([]field.Info, len(al.order))
	for i, n := range al.order {
		l, err := fixedLen(al.types[n])
		if err != nil {
			return field.Layout{}, err
		}
		fields[i] = field.Info{Name: n, Len: l}
	}
	return field.Layout{Fields: fields, KeyFieldCount: keyFieldCount}, nil
}

// rowFromTuple encodes a tuple Object's named attributes into a
// recmap.Row positioned by this layout's field numbers.
func (al attrLayout) rowFromTuple(tup *object.Object) ([][]byte, error) {
	row := make([][]byte, len(al.order))
	for i, n := range al.order {
		v, ok := tup.GetAttr(n)
		if !ok {
			return nil, duroerr.ErrInvalidArgument.New("missing attribute: " + n)
		}
		b, err := encodeScalar(al.types[n], v)
		if err != nil {
			return nil, err
		}
		row[i] = b
	}
	return row, nil
}

// keyRowFromTuple encodes only the leading key fields, for Get/Delete.
func (al attrLayout) keyRowFromTuple(tup *object.Object, keyFieldCount int) ([][]byte, error) {
	row := make([][]byte, keyFieldCount)
	for i := 0; i < keyFieldCount; i++ {
		n := al.order[i]
		v, ok := tup.GetAttr(n)
		if !ok {
			return nil, duroerr.ErrInvalidArgument.New("missing key attribute: " + n)
		}
		b, err := encodeScalar(al.types[n], v)
		if err != nil {
			return nil, err
		}
		row[i] = b
	}
	return row, nil
}

// decodeRow reverses rowFromTuple, building a tuple Object from a
// decoded record-map row.
func (al attrLayout) decodeRow(row [][]byte) (*object.Object, error) {
	attrs := make(map[string]*object.Object, len(al.order))
	for i, n := range al.order {
		v, err := decodeScalar(al.types[n], row[i])
		if err != nil {
			return nil, err
		}
		attrs[n] = v
	}
	return object.NewTuple(attrs), nil
}
