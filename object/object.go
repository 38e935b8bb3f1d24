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

// Package object implements the Object tagged union:
// the runtime value that flows through the evaluator and iterators.
package object

import (
	"sort"
	"time"

	"github.com/mitchellh/hashstructure"
	"github.com/spf13/cast"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
)

// ObjKind tags the variant held by an Object, replacing the source's
// implicit kind field with an explicit Go enum.
type ObjKind int

const (
	Initial ObjKind = iota
	BoolKind
	IntKind
	FloatKind
	TimeKind
	BinKind
	TupleKind
	TableKind
	ArrayKind
)

// Table is satisfied by anything an Object can reference as a table: a
// stored table bound to a transaction (supplied by the catalog package),
// an in-memory row set (supplied by the qresult package), or a virtual
// table's defining expression (*expr.Expr). Kept as an opaque interface
// here to avoid a storage<->object import cycle.
type Table interface {
	TableName() string
}

// Object is a tagged union of the core scalar, tuple, table and array
// kinds. Unused fields for the active Kind are zero.
type Object struct {
	kind  ObjKind
	typ   *durotype.Type
	b     bool
	i     int64
	f     float64
	tm    time.Time
	bin   []byte
	tuple map[string]*Object
	table Table
	arr   []*Object
	// arrLen caches the length, or -1 if unknown.
	arrLen int
}

func NewInitial() *Object { return &Object{kind: Initial} }

func NewBool(b bool) *Object {
	t := durotype.Boolean
	return &Object{kind: BoolKind, b: b, typ: &t}
}

func NewInt(i int64) *Object {
	t := durotype.Integer
	return &Object{kind: IntKind, i: i, typ: &t}
}

func NewFloat(f float64) *Object {
	t := durotype.Float
	return &Object{kind: FloatKind, f: f, typ: &t}
}

func NewString(s string) *Object {
	t := durotype.String
	return &Object{kind: BinKind, bin: []byte(s), typ: &t}
}

func NewTime(tm time.Time) *Object {
	t := durotype.Datetime
	return &Object{kind: TimeKind, tm: tm, typ: &t}
}

func NewBinary(b []byte) *Object {
	t := durotype.Binary
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Object{kind: BinKind, bin: cp, typ: &t}
}

func NewTuple(attrs map[string]*Object) *Object {
	return &Object{kind: TupleKind, tuple: attrs}
}

func NewTable(t Table, typ *durotype.Type) *Object {
	return &Object{kind: TableKind, table: t, typ: typ}
}

func NewArray(elems []*Object, elemType *durotype.Type) *Object {
	at := durotype.Array(*elemType)
	return &Object{kind: ArrayKind, arr: elems, arrLen: len(elems), typ: &at}
}

func (o *Object) Kind() ObjKind { return o.kind }

func (o *Object) Type() *durotype.Type { return o.typ }

func (o *Object) Bool() bool { return o.b }

func (o *Object) Int() int64 { return o.i }

func (o *Object) Float() float64 { return o.f }

func (o *Object) Time() time.Time { return o.tm }

func (o *Object) Binary() []byte { return o.bin }

func (o *Object) String() string { return string(o.bin) }

func (o *Object) Table() Table { return o.table }

func (o *Object) Array() []*Object { return o.arr }

// ArrayLen returns the cached length, or -1 if unknown.
func (o *Object) ArrayLen() int {
	if o.kind != ArrayKind {
		return -1
	}
	return o.arrLen
}

// GetAttr borrows a tuple attribute by name.
func (o *Object) GetAttr(name string) (*Object, bool) {
	v, ok := o.tuple[name]
	return v, ok
}

func (o *Object) SetAttr(name string, v *Object) {
	if o.tuple == nil {
		o.tuple = make(map[string]*Object)
	}
	o.tuple[name] = v
}

func (o *Object) AttrNames() []string {
	names := make([]string, 0, len(o.tuple))
	for n := range o.tuple {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RemoveAttr drops a tuple attribute, used by the assignment engine when
// translating an insert tuple back across an EXTEND/RENAME target.
func (o *Object) RemoveAttr(name string) {
	delete(o.tuple, name)
}

// Copy performs a deep copy of scalar, tuple and array values. A table
// object's copy shares the same Table reference: neither a virtual
// table's defining expression nor a base table's tuples are copied.
func (o *Object) Copy() *Object {
	if o == nil {
		return nil
	}
	n := &Object{kind: o.kind, typ: o.typ, b: o.b, i: o.i, f: o.f, tm: o.tm}
	if o.bin != nil {
		n.bin = append([]byte(nil), o.bin...)
	}
	if o.tuple != nil {
		n.tuple = make(map[string]*Object, len(o.tuple))
		for k, v := range o.tuple {
			n.tuple[k] = v.Copy()
		}
	}
	if o.arr != nil {
		n.arr = make([]*Object, len(o.arr))
		for i, v := range o.arr {
			n.arr[i] = v.Copy()
		}
		n.arrLen = o.arrLen
	}
	n.table = o.table
	return n
}

// TypeOf returns o's declared type, deriving one for tuples and arrays
// assembled attribute-by-attribute without an explicit type annotation.
func TypeOf(o *Object) (durotype.Type, error) {
	if o == nil {
		return durotype.Type{}, duroerr.ErrInvalidArgument.New("nil object has no type")
	}
	if o.typ != nil {
		return *o.typ, nil
	}
	switch o.kind {
	case TupleKind:
		attrs := make(map[string]durotype.Type, len(o.tuple))
		for n, v := range o.tuple {
			t, err := TypeOf(v)
			if err != nil {
				return durotype.Type{}, err
			}
			attrs[n] = t
		}
		return durotype.Tuple(attrs), nil
	case ArrayKind:
		if len(o.arr) > 0 {
			et, err := TypeOf(o.arr[0])
			if err != nil {
				return durotype.Type{}, err
			}
			return durotype.Array(et), nil
		}
	}
	return durotype.Type{}, duroerr.ErrTypeMismatch.New("value has no type")
}

// hashable renders o as a structure hashstructure.Hash can walk: plain
// Go scalars, a map keyed by attribute name for tuples (hashstructure
// hashes maps independently of iteration order), and a slice for
// arrays. Table-valued objects hash by name only; comparing the
// contents of two virtual/stored tables for structural equality would
// require opening an iterator.
func (o *Object) hashable() interface{} {
	if o == nil {
		return nil
	}
	switch o.kind {
	case BoolKind:
		return o.b
	case IntKind:
		return o.i
	case FloatKind:
		return o.f
	case TimeKind:
		return o.tm.UTC().UnixNano()
	case BinKind:
		return string(o.bin)
	case TupleKind:
		names := o.AttrNames()
		sort.Strings(names)
		out := make(map[string]interface{}, len(names))
		for _, n := range names {
			v, _ := o.GetAttr(n)
			out[n] = v.hashable()
		}
		return out
	case ArrayKind:
		out := make([]interface{}, len(o.arr))
		for i, v := range o.arr {
			out[i] = v.hashable()
		}
		return out
	case TableKind:
		if o.table != nil {
			return "table:" + o.table.TableName()
		}
		return "table:"
	}
	return nil
}

// Hash computes a structural hash of o's value.
func (o *Object) Hash() (uint64, error) {
	return hashstructure.Hash(o.hashable(), nil)
}

// AsInt64 coerces a Go native value to int64, regardless of whether it
// arrived as int, int32, or int64.
func AsInt64(v interface{}) (int64, error) {
	return cast.ToInt64E(v)
}

func AsFloat64(v interface{}) (float64, error) {
	return cast.ToFloat64E(v)
}
