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

// Package expr implements the expression tree: a
// tagged node is either a literal Object, a table reference, a
// variable, or an operator application over an ordered argument list.
package expr

import (
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/object"
)

// Kind tags the node variant.
type Kind int

const (
	KindObject Kind = iota
	KindTableRef
	KindVar
	KindOp
)

// Operator names.
const (
	OpWhere = "where"
	OpProject = "project"
	OpRemove = "remove"
	OpRename = "rename"
	OpExtend = "extend"
	OpUnion = "union"
	OpMinus = "minus"
	OpSemiminus = "semiminus"
	OpIntersect = "intersect"
	OpSemijoin = "semijoin"
	OpJoin = "join"
	OpDivide = "divide"
	OpSummarize = "summarize"
	OpGroup = "group"
	OpUngroup = "ungroup"
	OpTclose = "tclose"
	OpWrap = "wrap"
	OpUnwrap = "unwrap"
	OpTuple = "tuple"
	OpArray = "array"
	OpRelation = "relation"
	OpUpdate = "update"
	OpIndex = "[]"
	OpDot = "."
	OpIf = "if"
	OpIsEmpty = "is_empty"
	OpCount = "count"
	OpSum = "sum"
	OpAvg = "avg"
	OpMin = "min"
	OpMax = "max"
	OpAll = "all"
	OpAny = "any"

	OpEq = "="
	OpNe = "<>"
	OpLt = "<"
	OpLe = "<="
	OpGt = ">"
	OpGe = ">="
	OpAnd = "and"
	OpOr = "or"
	OpNot = "not"
	OpLike = "like"
)

// RenamePair is one "from AS to" rename mapping, used by rename/update.
type RenamePair struct {
	From, To string
}

// ExtendAttr is one added attribute ("expr AS name") for extend.
type ExtendAttr struct {
	Name string
	Expr *Expr
}

// SeqItem is one "(attr, asc)" sort item, used by summarize PER-lists
// and sort requests.
type SeqItem struct {
	Attr string
	Asc bool
}

// IndexSelect is the optimizer's index-probe payload attached to a WHERE
// node: the ordered values to seed the probe, whether every
// probed attribute is an equality, and an optional stop expression for
// ordered range scans.
type IndexSelect struct {
	IndexName string
	ObjPV []*object.Object
	Asc bool
	AllEq bool
	StopExpr *Expr
}

// Expr is the tagged expression node.
type Expr struct {
	Kind Kind

	// KindObject
	Obj *object.Object

	// KindTableRef
	TableRefName string

	// KindVar
	VarName string

	// KindOp
	Op string
	Args []*Expr
	// Renames/Extends/Seq carry operator-specific structured data that
	// doesn't fit the plain Args list (rename pairs, extend attributes,
	// sort sequences); kept as typed slices rather than encoding them
	// back into Args.
	Renames []RenamePair
	Extends []ExtendAttr
	Seq []SeqItem

	resultType *durotype.Type
	transformed bool
	optimized bool
	index *IndexSelect
}

// TableName implements object.Table so a relational expression node can
// flow through an Object as its own defining expression.
func (e *Expr) TableName() string {
	if e.Kind == KindTableRef {
		return e.TableRefName
	}
	return e.Op
}

func NewObject(o *object.Object) *Expr { return &Expr{Kind: KindObject, Obj: o} }

func NewTableRef(name string) *Expr { return &Expr{Kind: KindTableRef, TableRefName: name} }

func NewVar(name string) *Expr { return &Expr{Kind: KindVar, VarName: name} }

func NewOp(op string, args...*Expr) *Expr {
	return &Expr{Kind: KindOp, Op: op, Args: args}
}

func NewRename(arg *Expr, pairs...RenamePair) *Expr {
	return &Expr{Kind: KindOp, Op: OpRename, Args: []*Expr{arg}, Renames: pairs}
}

func NewExtend(arg *Expr, attrs...ExtendAttr) *Expr {
	return &Expr{Kind: KindOp, Op: OpExtend, Args: []*Expr{arg}, Extends: attrs}
}

func NewSummarize(table, per *Expr, attrs...ExtendAttr) *Expr {
	return &Expr{Kind: KindOp, Op: OpSummarize, Args: []*Expr{table, per}, Extends: attrs}
}

func NewSort(arg *Expr, seq...SeqItem) *Expr {
	return &Expr{Kind: KindOp, Op: "sort", Args: []*Expr{arg}, Seq: seq}
}

// Transformed / SetTransformed / Optimized / SetOptimized expose the
// per-node rewrite flags. The transformer and optimizer depend on not
// re-entering an already-processed node, so these are mutable state on
// the node itself.
func (e *Expr) Transformed() bool { return e.transformed }
func (e *Expr) SetTransformed(v bool) { e.transformed = v }
func (e *Expr) Optimized() bool { return e.optimized }
func (e *Expr) SetOptimized(v bool) { e.optimized = v }
func (e *Expr) IndexSelect() *IndexSelect { return e.index }
func (e *Expr) SetIndexSelect(ix *IndexSelect) { e.index = ix }

// ResultType returns the memoized result type, if already computed by
// Infer.
func (e *Expr) ResultType() *durotype.Type { return e.resultType }

func (e *Expr) SetResultType(t durotype.Type) { e.resultType = &t }

// Clone makes a shallow structural copy of the node (new Expr value,
// shared child pointers); used by the transformer when a rule needs to
// rewrite the Args/Renames/Extends slice without mutating the input
// node in place.
func (e *Expr) Clone() *Expr {
	n := *e
	n.Args = append([]*Expr(nil), e.Args...)
	n.Renames = append([]RenamePair(nil), e.Renames...)
	n.Extends = append([]ExtendAttr(nil), e.Extends...)
	n.Seq = append([]SeqItem(nil), e.Seq...)
	n.resultType = nil
	n.transformed = false
	n.optimized = false
	n.index = nil
	return &n
}

// Walk visits e and every descendant, depth-first, pre-order.
func Walk(e *Expr, fn func(*Expr)) {
	if e == nil {
		return
	}
	fn(e)
	for _, a := range e.Args {
		Walk(a, fn)
	}
	for _, ext := range e.Extends {
		Walk(ext.Expr, fn)
	}
	if e.index != nil && e.index.StopExpr != nil {
		Walk(e.index.StopExpr, fn)
	}
}
