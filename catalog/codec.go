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
	"encoding/binary"
	"math"
	"time"

	"github.com/rehartmann/durodbms-sub001/duroerr"
	"github.com/rehartmann/durodbms-sub001/durotype"
	"github.com/rehartmann/durodbms-sub001/object"
)

// fixedLen returns the on-disk fixed length for a scalar type, or -1
// for STRING/BINARY's variable-length encoding.
func fixedLen(t durotype.Type) (int, error) {
	switch t.Kind() {
	case durotype.KindBoolean:
		return 1, nil
	case durotype.KindInteger, durotype.KindFloat, durotype.KindDatetime:
		return 8, nil
	case durotype.KindString, durotype.KindBinary:
		return -1, nil
	case durotype.KindUserScalar:
		return fixedLen(*t.Elem)
	}
	return 0, duroerr.ErrTypeMismatch.New("attribute type cannot be stored directly: " + t.String())
}

// encodeScalar renders an Object's native value as the fixed-order byte
// encoding the AVL/bolt backends compare directly, flipping the sign bit
// of numeric types so two's-complement/IEEE-754 byte order matches
// numeric order.
func encodeScalar(t durotype.Type, o *object.Object) ([]byte, error) {
	switch t.Kind() {
	case durotype.KindBoolean:
		if o.Bool() {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case durotype.KindInteger:
		return encodeOrderedInt(o.Int()), nil
	case durotype.KindFloat:
		return encodeOrderedFloat(o.Float()), nil
	case durotype.KindDatetime:
		return encodeOrderedInt(o.Time().UnixNano()), nil
	case durotype.KindString, durotype.KindBinary:
		return o.Binary(), nil
	case durotype.KindUserScalar:
		return encodeScalar(*t.Elem, o)
	}
	return nil, duroerr.ErrTypeMismatch.New("attribute type cannot be stored directly: " + t.String())
}

func decodeScalar(t durotype.Type, data []byte) (*object.Object, error) {
	switch t.Kind() {
	case durotype.KindBoolean:
		return object.NewBool(len(data) > 0 && data[0] != 0), nil
	case durotype.KindInteger:
		return object.NewInt(decodeOrderedInt(data)), nil
	case durotype.KindFloat:
		return object.NewFloat(decodeOrderedFloat(data)), nil
	case durotype.KindDatetime:
		return object.NewTime(time.Unix(0, decodeOrderedInt(data)).UTC()), nil
	case durotype.KindString:
		return object.NewString(string(data)), nil
	case durotype.KindBinary:
		return object.NewBinary(data), nil
	case durotype.KindUserScalar:
		return decodeScalar(*t.Elem, data)
	}
	return nil, duroerr.ErrTypeMismatch.New("attribute type cannot be stored directly: " + t.String())
}

func encodeOrderedInt(i int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(i)^(1<<63))
	return buf
}

func decodeOrderedInt(data []byte) int64 {
	u := binary.BigEndian.Uint64(data) ^ (1 << 63)
	return int64(u)
}

func encodeOrderedFloat(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

func decodeOrderedFloat(data []byte) float64 {
	bits := binary.BigEndian.Uint64(data)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits)
}
