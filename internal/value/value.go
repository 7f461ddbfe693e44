// Package value implements the engine's tagged Value union (spec.md §3.1):
// a small discriminated struct rather than an interface, so common
// comparisons and coercions dispatch on a single byte tag instead of a
// dynamic type switch — the same design choice nooga-paserati's op_setprop
// inline-cache code and gost-dom-v8go's Value wrapper both make, and the
// one the spec itself calls out in spec.md §9 ("a single Value enum with
// dispatch tables beats a trait-object forest").
package value

import (
	"math"
	"math/big"

	"github.com/quillrt/quill/internal/gc"
)

// Kind is the Value's type tag; TypeOf maps it to one of the nine
// ECMAScript typeof strings.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBoolean
	KindInt32
	KindNumber
	KindString
	KindSymbol
	KindBigInt
	KindObject
	KindFunction
	KindNativeFunction
	KindPromise
	KindRegExp
	KindTypedArray
	KindArrayBuffer
	KindDataView
	KindProxy
	KindGenerator
)

// Value is the tagged union described in spec.md §3.1. Exactly one of the
// payload fields is meaningful for a given Kind:
//
//	KindBoolean, KindInt32        -> bits (0/1, or int32 sign-extended)
//	KindNumber                    -> bits (math.Float64bits)
//	KindSymbol                    -> bits (the isolate-unique symbol id)
//	KindString                    -> str
//	KindBigInt                    -> big
//	object-ish kinds              -> ref (a *gc.Header into the guest heap)
type Value struct {
	kind Kind
	bits uint64
	str  *String
	big  *big.Int
	ref  *gc.Header
}

var (
	Undefined = Value{kind: KindUndefined}
	Null      = Value{kind: KindNull}
	True      = Value{kind: KindBoolean, bits: 1}
	False     = Value{kind: KindBoolean, bits: 0}
)

func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func Int32(i int32) Value {
	return Value{kind: KindInt32, bits: uint64(uint32(i))}
}

func Number(f float64) Value {
	return Value{kind: KindNumber, bits: math.Float64bits(f)}
}

func Str(s *String) Value {
	return Value{kind: KindString, str: s}
}

func Symbol(id uint64) Value {
	return Value{kind: KindSymbol, bits: id}
}

func BigIntValue(b *big.Int) Value {
	return Value{kind: KindBigInt, big: b}
}

// Object wraps a *gc.Header under one of the object-ish kinds. kind must be
// one of KindObject..KindGenerator.
func Object(kind Kind, ref *gc.Header) Value {
	return Value{kind: kind, ref: ref}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) Ref() *gc.Header { return v.ref }
func (v Value) Str() *String   { return v.str }
func (v Value) Big() *big.Int  { return v.big }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) IsNullish() bool   { return v.kind == KindUndefined || v.kind == KindNull }

func (v Value) IsObjectLike() bool {
	switch v.kind {
	case KindObject, KindFunction, KindNativeFunction, KindPromise, KindRegExp,
		KindTypedArray, KindArrayBuffer, KindDataView, KindProxy, KindGenerator:
		return true
	default:
		return false
	}
}

// Bool returns the boolean payload. Only valid for KindBoolean.
func (v Value) Bool() bool { return v.bits != 0 }

// Int32 returns the int32 payload. Only valid for KindInt32.
func (v Value) Int32() int32 { return int32(uint32(v.bits)) }

// Number returns the float64 payload. Only valid for KindNumber.
func (v Value) Number() float64 { return math.Float64frombits(v.bits) }

// SymbolID returns the symbol payload. Only valid for KindSymbol.
func (v Value) SymbolID() uint64 { return v.bits }

// NumericValue coerces KindInt32/KindNumber to float64 uniformly, for
// callers that don't care about the fast-path int32 distinction.
func (v Value) NumericValue() float64 {
	switch v.kind {
	case KindInt32:
		return float64(v.Int32())
	case KindNumber:
		return v.Number()
	default:
		return math.NaN()
	}
}

// TypeOf implements the ES2024 typeof operator (one of nine strings).
func (v Value) TypeOf() string {
	switch v.kind {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "object"
	case KindBoolean:
		return "boolean"
	case KindInt32, KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSymbol:
		return "symbol"
	case KindBigInt:
		return "bigint"
	case KindFunction, KindNativeFunction:
		return "function"
	default:
		return "object"
	}
}

// StrictEqual implements SameValueZero: NaN equals NaN, +0 equals -0.
// This is the equality the spec mandates for strict_equal (spec.md §3.1)
// and backs Map/Set key comparison and IC shape matching.
func (v Value) StrictEqual(o Value) bool {
	if v.kind != o.kind {
		// int32 and number are both "number" at the typeof level but are
		// distinct Kinds here; compare numerically across them.
		if isNumeric(v.kind) && isNumeric(o.kind) {
			return sameValueZeroNumber(v.NumericValue(), o.NumericValue())
		}
		return false
	}
	switch v.kind {
	case KindUndefined, KindNull:
		return true
	case KindBoolean:
		return v.bits == o.bits
	case KindInt32:
		return v.bits == o.bits
	case KindNumber:
		return sameValueZeroNumber(v.Number(), o.Number())
	case KindString:
		return v.str.Equal(o.str)
	case KindSymbol:
		return v.bits == o.bits
	case KindBigInt:
		return v.big.Cmp(o.big) == 0
	default:
		return v.ref == o.ref
	}
}

func isNumeric(k Kind) bool { return k == KindInt32 || k == KindNumber }

func sameValueZeroNumber(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b // in Go, +0 == -0, matching SameValueZero (unlike SameValue)
}

// ToBoolean implements the ES2024 ToBoolean abstract operation for
// primitives. Object-ish values are always truthy regardless of internal
// state, per spec.
func (v Value) ToBoolean() bool {
	switch v.kind {
	case KindUndefined, KindNull:
		return false
	case KindBoolean:
		return v.Bool()
	case KindInt32:
		return v.Int32() != 0
	case KindNumber:
		n := v.Number()
		return n != 0 && !math.IsNaN(n)
	case KindString:
		return v.str.Len() > 0
	case KindBigInt:
		return v.big.Sign() != 0
	default:
		return true
	}
}

// ToInt32 implements ToInt32 (ES2024 §7.1.6) for numeric values.
func ToInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	m := math.Mod(f, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	if m >= 2147483648 {
		m -= 4294967296
	}
	return int32(m)
}

// ToUint32 implements ToUint32 (ES2024 §7.1.7).
func ToUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	m := math.Mod(f, 4294967296)
	if m < 0 {
		m += 4294967296
	}
	return uint32(m)
}
