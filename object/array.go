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
	"sort"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
)

// RowSource is the minimal pull interface a relation realization needs;
// both eval.RowIter and qresult.Iterator satisfy it structurally. Kept
// local to avoid object depending on eval or qresult (both of which
// already depend on object).
type RowSource interface {
	Next() (*Object, error)
	Close() error
}

// SortItem is one (attr, asc) item of a table-to-array sort request.
type SortItem struct {
	Attr string
	Asc  bool
}

// ToArray realizes a relation into a sequence of tuple Objects, pulling
// from src until exhausted, optionally sorting by seq and truncating to
// limit (limit <= 0 means unbounded).
func ToArray(src RowSource, seq []SortItem, limit int) (*Object, error) {
	var rows []*Object
	for {
		tup, err := src.Next()
		if duroerr.IsNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, tup)
	}
	if len(seq) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, s := range seq {
				a, aok := rows[i].GetAttr(s.Attr)
				b, bok := rows[j].GetAttr(s.Attr)
				if !aok || !bok {
					continue
				}
				c := compareScalars(a, b)
				if c == 0 {
					continue
				}
				if s.Asc {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	var et durotype.Type
	if len(rows) > 0 && rows[0].Type() != nil {
		et = *rows[0].Type()
	}
	return NewArray(rows, &et), nil
}

// compareScalars orders two scalar Objects of the same kind; used only
// by ToArray's sort, which the optimizer/catalog are responsible for
// only ever requesting over comparable attribute types.
func compareScalars(a, b *Object) int {
	switch a.Kind() {
	case IntKind:
		switch {
		case a.Int() < b.Int():
			return -1
		case a.Int() > b.Int():
			return 1
		}
		return 0
	case FloatKind:
		switch {
		case a.Float() < b.Float():
			return -1
		case a.Float() > b.Float():
			return 1
		}
		return 0
	case BinKind:
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	case TimeKind:
		switch {
		case a.Time().Before(b.Time()):
			return -1
		case a.Time().After(b.Time()):
			return 1
		}
		return 0
	case BoolKind:
		if a.Bool() == b.Bool() {
			return 0
		}
		if !a.Bool() && b.Bool() {
			return -1
		}
		return 1
	}
	return 0
}
