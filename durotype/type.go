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

// Package durotype implements the minimal type system of a relational
// engine: scalars, tuples, relations and arrays, with enough structure
// for the expression evaluator and optimizer to dispatch and compare
// types.
package durotype

import "fmt"

// Kind tags the variety of a Type.
type Kind int

const (
	KindBoolean Kind = iota
	KindInteger
	KindFloat
	KindString
	KindBinary
	KindDatetime
	KindTuple
	KindRelation
	KindArray
	KindUserScalar
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "BOOLEAN"
	case KindInteger:
		return "INTEGER"
	case KindFloat:
		return "FLOAT"
	case KindString:
		return "STRING"
	case KindBinary:
		return "BINARY"
	case KindDatetime:
		return "DATETIME"
	case KindTuple:
		return "TUPLE"
	case KindRelation:
		return "RELATION"
	case KindArray:
		return "ARRAY"
	case KindUserScalar:
		return "USER_SCALAR"
	}
	return "UNKNOWN"
}

// Type is a comparable description of the shape of an Object. Composite
// kinds carry children; scalar kinds do not.
type Type struct {
	kind Kind
	// Attrs holds TUPLE/RELATION attribute types, unordered.
	Attrs map[string]Type
	// Elem holds the ARRAY element type, or the RELATION tuple type
	// (stored redundantly in Attrs for RELATION so both access styles
	// work), or the physical representation type for a user scalar.
	Elem *Type
	// Name identifies a user-defined scalar type (KindUserScalar).
	Name string
}

var (
	Boolean  = Type{kind: KindBoolean}
	Integer  = Type{kind: KindInteger}
	Float    = Type{kind: KindFloat}
	String   = Type{kind: KindString}
	Binary   = Type{kind: KindBinary}
	Datetime = Type{kind: KindDatetime}
)

func Tuple(attrs map[string]Type) Type {
	return Type{kind: KindTuple, Attrs: attrs}
}

func Relation(tupleType Type) Type {
	t := tupleType
	return Type{kind: KindRelation, Attrs: tupleType.Attrs, Elem: &t}
}

func Array(elem Type) Type {
	return Type{kind: KindArray, Elem: &elem}
}

// UserScalar declares a scalar type with a physical representation via
// another scalar type.
func UserScalar(name string, repr Type) Type {
	return Type{kind: KindUserScalar, Name: name, Elem: &repr}
}

func (t Type) Kind() Kind { return t.kind }

func (t Type) IsScalar() bool {
	switch t.kind {
	case KindBoolean, KindInteger, KindFloat, KindString, KindBinary, KindDatetime, KindUserScalar:
		return true
	}
	return false
}

// TupleType returns the tuple type of a RELATION type.
func (t Type) TupleType() Type {
	if t.kind != KindRelation {
		panic("durotype: TupleType on non-relation")
	}
	return Type{kind: KindTuple, Attrs: t.Attrs}
}

// Equal reports structural equality, used throughout the transformer and
// type checker.
func (t Type) Equal(o Type) bool {
	if t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindUserScalar:
		return t.Name == o.Name
	case KindArray:
		return t.Elem.Equal(*o.Elem)
	case KindTuple, KindRelation:
		if len(t.Attrs) != len(o.Attrs) {
			return false
		}
		for name, at := range t.Attrs {
			bt, ok := o.Attrs[name]
			if !ok || !at.Equal(bt) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (t Type) String() string {
	switch t.kind {
	case KindTuple:
		return fmt.Sprintf("TUPLE%v", attrNames(t.Attrs))
	case KindRelation:
		return fmt.Sprintf("RELATION%v", attrNames(t.Attrs))
	case KindArray:
		return fmt.Sprintf("ARRAY OF %s", t.Elem.String())
	case KindUserScalar:
		return t.Name
	default:
		return t.kind.String()
	}
}

func attrNames(attrs map[string]Type) []string {
	names := make([]string, 0, len(attrs))
	for n := range attrs {
		names = append(names, n)
	}
	return names
}

// WithAttr returns a copy of a tuple/relation type with attribute name
// added or replaced, used by EXTEND type inference.
func (t Type) WithAttr(name string, at Type) Type {
	attrs := make(map[string]Type, len(t.Attrs)+1)
	for k, v := range t.Attrs {
		attrs[k] = v
	}
	attrs[name] = at
	if t.kind == KindRelation {
		return Relation(Type{kind: KindTuple, Attrs: attrs})
	}
	return Tuple(attrs)
}

// WithoutAttr returns a copy without the named attribute, used by
// PROJECT/REMOVE type inference.
func (t Type) WithoutAttr(name string) Type {
	attrs := make(map[string]Type, len(t.Attrs))
	for k, v := range t.Attrs {
		if k != name {
			attrs[k] = v
		}
	}
	if t.kind == KindRelation {
		return Relation(Type{kind: KindTuple, Attrs: attrs})
	}
	return Tuple(attrs)
}
