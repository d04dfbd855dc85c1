// Package broker implements the concurrent signal store: the typed value
// model, the entry registry, the update validator, and the sample-interval
// filter manager. Path patterns are matched by package pathglob.
package broker

import (
	"fmt"
	"math"
)

// Kind discriminates the variant held by a Value. It mirrors the VSS
// DataType enumeration: the 12 scalar forms (bool, string, signed and
// unsigned integers of 8/16/32/64 bits, float, double) plus their array
// counterparts, plus NotAvailable.
type Kind int

const (
	KindNotAvailable Kind = iota
	KindBool
	KindString
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat
	KindDouble
	KindBoolArray
	KindStringArray
	KindInt8Array
	KindInt16Array
	KindInt32Array
	KindInt64Array
	KindUint8Array
	KindUint16Array
	KindUint32Array
	KindUint64Array
	KindFloatArray
	KindDoubleArray
)

func (k Kind) String() string {
	names := [...]string{
		"NotAvailable", "Bool", "String", "Int8", "Int16", "Int32", "Int64",
		"Uint8", "Uint16", "Uint32", "Uint64", "Float", "Double",
		"BoolArray", "StringArray", "Int8Array", "Int16Array", "Int32Array",
		"Int64Array", "Uint8Array", "Uint16Array", "Uint32Array",
		"Uint64Array", "FloatArray", "DoubleArray",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// IsArray reports whether the kind is one of the array forms.
func (k Kind) IsArray() bool { return k >= KindBoolArray }

// ScalarOf returns the scalar kind corresponding to an array kind (and is
// the identity on scalar kinds). Used to validate min/max against the
// element type of array-typed entries.
func (k Kind) ScalarOf() Kind {
	if !k.IsArray() {
		return k
	}
	return k - (KindBoolArray - KindBool)
}

// ArrayOf returns the array kind corresponding to a scalar kind.
func (k Kind) ArrayOf() Kind {
	if k.IsArray() {
		return k
	}
	return k + (KindBoolArray - KindBool)
}

// Value is a tagged union over every VSS data value variant plus
// NotAvailable. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind

	b   bool
	s   string
	i   int64  // Int8/Int16/Int32/Int64 share a widened field
	u   uint64 // Uint8/Uint16/Uint32/Uint64 share a widened field
	f32 float32
	f64 float64

	boolArr   []bool
	stringArr []string
	i8Arr     []int8
	i16Arr    []int16
	i32Arr    []int32
	i64Arr    []int64
	u8Arr     []uint8
	u16Arr    []uint16
	u32Arr    []uint32
	u64Arr    []uint64
	f32Arr    []float32
	f64Arr    []float64
}

// NotAvailable is the canonical NotAvailable value.
var NotAvailable = Value{Kind: KindNotAvailable}

func BoolValue(v bool) Value     { return Value{Kind: KindBool, b: v} }
func StringValue(v string) Value { return Value{Kind: KindString, s: v} }
func Int8Value(v int8) Value     { return Value{Kind: KindInt8, i: int64(v)} }
func Int16Value(v int16) Value   { return Value{Kind: KindInt16, i: int64(v)} }
func Int32Value(v int32) Value   { return Value{Kind: KindInt32, i: int64(v)} }
func Int64Value(v int64) Value   { return Value{Kind: KindInt64, i: v} }
func Uint8Value(v uint8) Value   { return Value{Kind: KindUint8, u: uint64(v)} }
func Uint16Value(v uint16) Value { return Value{Kind: KindUint16, u: uint64(v)} }
func Uint32Value(v uint32) Value { return Value{Kind: KindUint32, u: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{Kind: KindUint64, u: v} }
func FloatValue(v float32) Value { return Value{Kind: KindFloat, f32: v} }
func DoubleValue(v float64) Value { return Value{Kind: KindDouble, f64: v} }

func BoolArrayValue(v []bool) Value     { return Value{Kind: KindBoolArray, boolArr: v} }
func StringArrayValue(v []string) Value { return Value{Kind: KindStringArray, stringArr: v} }
func Int8ArrayValue(v []int8) Value     { return Value{Kind: KindInt8Array, i8Arr: v} }
func Int16ArrayValue(v []int16) Value   { return Value{Kind: KindInt16Array, i16Arr: v} }
func Int32ArrayValue(v []int32) Value   { return Value{Kind: KindInt32Array, i32Arr: v} }
func Int64ArrayValue(v []int64) Value   { return Value{Kind: KindInt64Array, i64Arr: v} }
func Uint8ArrayValue(v []uint8) Value   { return Value{Kind: KindUint8Array, u8Arr: v} }
func Uint16ArrayValue(v []uint16) Value { return Value{Kind: KindUint16Array, u16Arr: v} }
func Uint32ArrayValue(v []uint32) Value { return Value{Kind: KindUint32Array, u32Arr: v} }
func Uint64ArrayValue(v []uint64) Value { return Value{Kind: KindUint64Array, u64Arr: v} }
func FloatArrayValue(v []float32) Value { return Value{Kind: KindFloatArray, f32Arr: v} }
func DoubleArrayValue(v []float64) Value { return Value{Kind: KindDoubleArray, f64Arr: v} }

// Bool, Str, Int, Uint, Float32, Float64 expose the scalar payload
// regardless of the exact integer width, since Int8/16/32/64 (and their
// unsigned counterparts) all widen into a single storage field.
func (v Value) Bool() bool       { return v.b }
func (v Value) Str() string      { return v.s }
func (v Value) Int() int64       { return v.i }
func (v Value) Uint() uint64     { return v.u }
func (v Value) Float32() float32 { return v.f32 }
func (v Value) Float64() float64 { return v.f64 }

func (v Value) BoolArray() []bool       { return v.boolArr }
func (v Value) StringArray() []string   { return v.stringArr }
func (v Value) Int8Array() []int8       { return v.i8Arr }
func (v Value) Int16Array() []int16     { return v.i16Arr }
func (v Value) Int32Array() []int32     { return v.i32Arr }
func (v Value) Int64Array() []int64     { return v.i64Arr }
func (v Value) Uint8Array() []uint8     { return v.u8Arr }
func (v Value) Uint16Array() []uint16   { return v.u16Arr }
func (v Value) Uint32Array() []uint32   { return v.u32Arr }
func (v Value) Uint64Array() []uint64   { return v.u64Arr }
func (v Value) Float32Array() []float32 { return v.f32Arr }
func (v Value) Float64Array() []float64 { return v.f64Arr }

// ArrayLen returns the element count of an array-kinded value, or -1 if v
// is not an array.
func (v Value) ArrayLen() int {
	switch v.Kind {
	case KindBoolArray:
		return len(v.boolArr)
	case KindStringArray:
		return len(v.stringArr)
	case KindInt8Array:
		return len(v.i8Arr)
	case KindInt16Array:
		return len(v.i16Arr)
	case KindInt32Array:
		return len(v.i32Arr)
	case KindInt64Array:
		return len(v.i64Arr)
	case KindUint8Array:
		return len(v.u8Arr)
	case KindUint16Array:
		return len(v.u16Arr)
	case KindUint32Array:
		return len(v.u32Arr)
	case KindUint64Array:
		return len(v.u64Arr)
	case KindFloatArray:
		return len(v.f32Arr)
	case KindDoubleArray:
		return len(v.f64Arr)
	default:
		return -1
	}
}

// Element returns the i'th element of an array-kinded value as a scalar
// Value of the corresponding scalar kind.
func (v Value) Element(i int) Value {
	switch v.Kind {
	case KindBoolArray:
		return BoolValue(v.boolArr[i])
	case KindStringArray:
		return StringValue(v.stringArr[i])
	case KindInt8Array:
		return Int8Value(v.i8Arr[i])
	case KindInt16Array:
		return Int16Value(v.i16Arr[i])
	case KindInt32Array:
		return Int32Value(v.i32Arr[i])
	case KindInt64Array:
		return Int64Value(v.i64Arr[i])
	case KindUint8Array:
		return Uint8Value(v.u8Arr[i])
	case KindUint16Array:
		return Uint16Value(v.u16Arr[i])
	case KindUint32Array:
		return Uint32Value(v.u32Arr[i])
	case KindUint64Array:
		return Uint64Value(v.u64Arr[i])
	case KindFloatArray:
		return FloatValue(v.f32Arr[i])
	case KindDoubleArray:
		return DoubleValue(v.f64Arr[i])
	default:
		panic("broker: Element called on non-array value")
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNotAvailable:
		return "NotAvailable"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindString:
		return v.s
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.i)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%d", v.u)
	case KindFloat:
		return fmt.Sprintf("%g", v.f32)
	case KindDouble:
		return fmt.Sprintf("%g", v.f64)
	default:
		return fmt.Sprintf("%s(len=%d)", v.Kind, v.ArrayLen())
	}
}

// isNumericScalar reports whether the kind is one of the 10 non-bool,
// non-string scalar numeric variants.
func (k Kind) isNumericScalar() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint8, KindUint16, KindUint32, KindUint64, KindFloat, KindDouble:
		return true
	default:
		return false
	}
}

func (k Kind) isSignedInt() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	default:
		return false
	}
}

func (k Kind) isUnsignedInt() bool {
	switch k {
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

func (k Kind) isFloat() bool { return k == KindFloat || k == KindDouble }

// asFloat64 widens any numeric scalar to float64 for ordering comparisons
// that do not require exact cross-type precision (everything except the
// signed/unsigned edge cases handled explicitly in GreaterThan).
func (v Value) asFloat64() (float64, bool) {
	switch {
	case v.Kind.isSignedInt():
		return float64(v.i), true
	case v.Kind.isUnsignedInt():
		return float64(v.u), true
	case v.Kind == KindFloat:
		return float64(v.f32), true
	case v.Kind == KindDouble:
		return v.f64, true
	default:
		return 0, false
	}
}

// CastError indicates two values could not be meaningfully compared.
type CastError struct{ A, B Kind }

func (e CastError) Error() string {
	return fmt.Sprintf("broker: cannot compare %s with %s", e.A, e.B)
}

// GreaterThan implements the cross-type numeric ordering contract of
// spec.md §4.1: negative signed values are always less than any unsigned
// value; values outside the safe range of the comparison fail rather than
// silently truncating; NotAvailable, bool, and string are not orderable.
func (v Value) GreaterThan(other Value) (bool, error) {
	if v.Kind == KindNotAvailable || other.Kind == KindNotAvailable {
		return false, CastError{v.Kind, other.Kind}
	}
	if v.Kind == KindBool || other.Kind == KindBool || v.Kind == KindString || other.Kind == KindString {
		return false, CastError{v.Kind, other.Kind}
	}
	if !v.Kind.isNumericScalar() || !other.Kind.isNumericScalar() {
		return false, CastError{v.Kind, other.Kind}
	}

	switch {
	case v.Kind.isSignedInt() && other.Kind.isUnsignedInt():
		if v.i < 0 {
			return false, nil
		}
		if v.i < 0 || uint64(v.i) > math.MaxInt64 {
			return false, CastError{v.Kind, other.Kind}
		}
		return uint64(v.i) > other.u, nil

	case v.Kind.isUnsignedInt() && other.Kind.isSignedInt():
		if other.i < 0 {
			return true, nil
		}
		return v.u > uint64(other.i), nil

	case v.Kind.isSignedInt() && other.Kind.isSignedInt():
		return v.i > other.i, nil

	case v.Kind.isUnsignedInt() && other.Kind.isUnsignedInt():
		return v.u > other.u, nil

	case v.Kind.isFloat() || other.Kind.isFloat():
		a, _ := v.asFloat64()
		b, _ := other.asFloat64()
		if floatEquals(a, b, epsilonFor(v.Kind, other.Kind)) {
			return false, nil
		}
		return a > b, nil

	default:
		return false, CastError{v.Kind, other.Kind}
	}
}

func (v Value) LessThan(other Value) (bool, error) {
	return other.GreaterThan(v)
}

func (v Value) GreaterThanOrEqual(other Value) (bool, error) {
	gt, err := v.GreaterThan(other)
	if err == nil && gt {
		return true, nil
	}
	return v.Equals(other), nil
}

func (v Value) LessThanOrEqual(other Value) (bool, error) {
	lt, err := v.LessThan(other)
	if err == nil && lt {
		return true, nil
	}
	return v.Equals(other), nil
}

func epsilonFor(a, b Kind) float64 {
	// the smaller-precision side's epsilon governs equality, per spec.md §4.1.
	if a == KindFloat || b == KindFloat {
		return float64(epsilonFloat32)
	}
	return epsilonFloat64
}

const (
	epsilonFloat32 = float32(1e-6)
	epsilonFloat64 = float64(1e-12)
)

func floatEquals(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

// Equals implements value equality: NotAvailable is equal to nothing
// (including another NotAvailable), floats compare within epsilon, and
// everything else compares structurally.
func (v Value) Equals(other Value) bool {
	if v.Kind == KindNotAvailable || other.Kind == KindNotAvailable {
		return false
	}
	if v.Kind.isNumericScalar() && other.Kind.isNumericScalar() {
		gt, err := v.GreaterThan(other)
		if err != nil {
			return false
		}
		lt, err := v.LessThan(other)
		if err != nil {
			return false
		}
		return !gt && !lt
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindBoolArray:
		return equalSlices(v.boolArr, other.boolArr)
	case KindStringArray:
		return equalSlices(v.stringArr, other.stringArr)
	case KindInt8Array:
		return equalSlices(v.i8Arr, other.i8Arr)
	case KindInt16Array:
		return equalSlices(v.i16Arr, other.i16Arr)
	case KindInt32Array:
		return equalSlices(v.i32Arr, other.i32Arr)
	case KindInt64Array:
		return equalSlices(v.i64Arr, other.i64Arr)
	case KindUint8Array:
		return equalSlices(v.u8Arr, other.u8Arr)
	case KindUint16Array:
		return equalSlices(v.u16Arr, other.u16Arr)
	case KindUint32Array:
		return equalSlices(v.u32Arr, other.u32Arr)
	case KindUint64Array:
		return equalSlices(v.u64Arr, other.u64Arr)
	case KindFloatArray:
		return equalFloatSlice(v.f32Arr, other.f32Arr, float64(epsilonFloat32))
	case KindDoubleArray:
		return equalFloatSlice(v.f64Arr, other.f64Arr, epsilonFloat64)
	default:
		return false
	}
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloatSlice[T float32 | float64](a, b []T, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !floatEquals(float64(a[i]), float64(b[i]), eps) {
			return false
		}
	}
	return true
}
