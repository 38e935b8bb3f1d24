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

package eval

import (
	"strings"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/expr"
	"github.com/rehartmann/durodbms-sub001/object"
)

// NewDefaultRegistry returns a Registry with the scalar operators the
// transformer and evaluator assume exist: boolean connectives,
// comparisons, and LIKE, plus basic arithmetic. Aggregate reductions
// (sum/avg/min/max/all/any) are special-cased in eval.go and are not
// registered here.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(expr.OpAnd, opAnd)
	r.Register(expr.OpOr, opOr)
	r.Register(expr.OpNot, opNot)
	r.Register(expr.OpEq, cmpOp(func(c int) bool { return c == 0 }))
	r.Register(expr.OpNe, cmpOp(func(c int) bool { return c != 0 }))
	r.Register(expr.OpLt, cmpOp(func(c int) bool { return c < 0 }))
	r.Register(expr.OpLe, cmpOp(func(c int) bool { return c <= 0 }))
	r.Register(expr.OpGt, cmpOp(func(c int) bool { return c > 0 }))
	r.Register(expr.OpGe, cmpOp(func(c int) bool { return c >= 0 }))
	r.Register(expr.OpLike, opLike)
	r.Register("starts_with", opStartsWith)
	r.Register("+", opPlus)
	r.Register("-", opMinus)
	r.Register("*", opMult)
	r.Register("/", opDiv)
	return r
}

func opAnd(_ *Context, args []*object.Object) (*object.Object, error) {
	return object.NewBool(args[0].Bool() && args[1].Bool()), nil
}

func opOr(_ *Context, args []*object.Object) (*object.Object, error) {
	return object.NewBool(args[0].Bool() || args[1].Bool()), nil
}

func opNot(_ *Context, args []*object.Object) (*object.Object, error) {
	return object.NewBool(!args[0].Bool()), nil
}

// compare implements the ordering used by comparison operators and by
// the transformer's literal-flip rule: numeric kinds (including mixed
// integer/float) compare numerically, booleans order false before true,
// datetimes compare chronologically, and strings/binaries compare as raw
// bytes. Any other pairing of kinds is a TYPE_MISMATCH.
func compare(a, b *object.Object) (int, error) {
	if a.Kind() != b.Kind() {
		switch {
		case a.Kind() == object.IntKind && b.Kind() == object.FloatKind:
			return compareFloat(float64(a.Int()), b.Float()), nil
		case a.Kind() == object.FloatKind && b.Kind() == object.IntKind:
			return compareFloat(a.Float(), float64(b.Int())), nil
		default:
			return 0, duroerr.ErrTypeMismatch.New("cannot compare different types")
		}
	}
	switch a.Kind() {
	case object.IntKind:
		return compareInt(a.Int(), b.Int()), nil
	case object.FloatKind:
		return compareFloat(a.Float(), b.Float()), nil
	case object.BoolKind:
		return compareInt(b2i(a.Bool()), b2i(b.Bool())), nil
	case object.BinKind:
		return strings.Compare(a.String(), b.String()), nil
	case object.TimeKind:
		if a.Time().Before(b.Time()) {
			return -1, nil
		}
		if a.Time().After(b.Time()) {
			return 1, nil
		}
		return 0, nil
	}
	return 0, duroerr.ErrTypeMismatch.New("type not comparable")
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare exposes the ordering used by comparison operators to callers
// outside this package (the sorter iterator orders rows by it).
func Compare(a, b *object.Object) (int, error) { return compare(a, b) }

func cmpOp(pred func(int) bool) ScalarOp {
	return func(_ *Context, args []*object.Object) (*object.Object, error) {
		c, err := compare(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return object.NewBool(pred(c)), nil
	}
}

// opLike implements a minimal glob match supporting '*' and '?',
// sufficient for the LIKE-to-range rewrite (the optimizer only ever
// derives a prefix bound from a leading literal run before the first
// wildcard; full matching still runs here as the residual predicate).
func opLike(_ *Context, args []*object.Object) (*object.Object, error) {
	return object.NewBool(globMatch(args[0].String(), args[1].String())), nil
}

func opStartsWith(_ *Context, args []*object.Object) (*object.Object, error) {
	return object.NewBool(strings.HasPrefix(args[0].String(), args[1].String())), nil
}

func globMatch(s, pattern string) bool {
	return globMatchRec([]rune(s), []rune(pattern))
}

func globMatchRec(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if globMatchRec(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatchRec(s[1:], p[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return globMatchRec(s[1:], p[1:])
	}
}

func opPlus(_ *Context, args []*object.Object) (*object.Object, error) {
	return arith(args[0], args[1], func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
}

func opMinus(_ *Context, args []*object.Object) (*object.Object, error) {
	return arith(args[0], args[1], func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
}

func opMult(_ *Context, args []*object.Object) (*object.Object, error) {
	return arith(args[0], args[1], func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
}

func opDiv(_ *Context, args []*object.Object) (*object.Object, error) {
	if args[1].Kind() == object.IntKind && args[1].Int() == 0 {
		return nil, duroerr.ErrInvalidArgument.New("division by zero")
	}
	if args[1].Kind() == object.FloatKind && args[1].Float() == 0 {
		return nil, duroerr.ErrInvalidArgument.New("division by zero")
	}
	return arith(args[0], args[1], func(a, b int64) int64 { return a / b }, func(a, b float64) float64 { return a / b })
}

func arith(a, b *object.Object, iop func(int64, int64) int64, fop func(float64, float64) float64) (*object.Object, error) {
	if a.Kind() == object.FloatKind || b.Kind() == object.FloatKind {
		af, bf := toFloat(a), toFloat(b)
		return object.NewFloat(fop(af, bf)), nil
	}
	if a.Kind() == object.IntKind && b.Kind() == object.IntKind {
		return object.NewInt(iop(a.Int(), b.Int())), nil
	}
	return nil, duroerr.ErrTypeMismatch.New("arithmetic requires numeric operands")
}

func toFloat(o *object.Object) float64 {
	if o.Kind() == object.IntKind {
		return float64(o.Int())
	}
	return o.Float()
}
