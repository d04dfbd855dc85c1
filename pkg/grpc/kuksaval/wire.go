// Package kuksaval holds the wire-level machinery shared by the
// kuksa.val.v1 and kuksa.val.v2 gRPC service variants (spec.md §6): the
// typed-value envelope, the JSON-backed message codec substituting for
// protoc-generated stubs (see DESIGN.md), gRPC status-code mapping, and
// bearer-token authentication interceptors.
package kuksaval

import (
	"fmt"

	"github.com/sdv-broker/databroker/internal/broker"
)

// Value is the wire envelope for a broker.Value: a discriminant mirroring
// every one of the 24 typed variants plus NotAvailable (spec.md §3, §8
// "round-trip through the adapter must preserve exact variant and
// payload"). Exactly one payload field is populated, selected by Kind.
type Value struct {
	Kind string `json:"kind"`

	Bool   *bool    `json:"bool,omitempty"`
	String *string  `json:"string,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Uint   *uint64  `json:"uint,omitempty"`
	Float  *float32 `json:"float,omitempty"`
	Double *float64 `json:"double,omitempty"`

	BoolArray   []bool    `json:"bool_array,omitempty"`
	StringArray []string  `json:"string_array,omitempty"`
	IntArray    []int64   `json:"int_array,omitempty"`
	UintArray   []uint64  `json:"uint_array,omitempty"`
	FloatArray  []float32 `json:"float_array,omitempty"`
	DoubleArray []float64 `json:"double_array,omitempty"`
}

// FromValue translates a broker.Value into its wire envelope.
func FromValue(v broker.Value) *Value {
	w := &Value{Kind: v.Kind.String()}
	switch v.Kind {
	case broker.KindNotAvailable:
	case broker.KindBool:
		b := v.Bool()
		w.Bool = &b
	case broker.KindString:
		s := v.Str()
		w.String = &s
	case broker.KindInt8, broker.KindInt16, broker.KindInt32, broker.KindInt64:
		i := v.Int()
		w.Int = &i
	case broker.KindUint8, broker.KindUint16, broker.KindUint32, broker.KindUint64:
		u := v.Uint()
		w.Uint = &u
	case broker.KindFloat:
		f := v.Float32()
		w.Float = &f
	case broker.KindDouble:
		d := v.Float64()
		w.Double = &d
	case broker.KindBoolArray:
		w.BoolArray = v.BoolArray()
	case broker.KindStringArray:
		w.StringArray = v.StringArray()
	case broker.KindInt8Array:
		w.IntArray = widenInt8(v.Int8Array())
	case broker.KindInt16Array:
		w.IntArray = widenInt16(v.Int16Array())
	case broker.KindInt32Array:
		w.IntArray = widenInt32(v.Int32Array())
	case broker.KindInt64Array:
		w.IntArray = v.Int64Array()
	case broker.KindUint8Array:
		w.UintArray = widenUint8(v.Uint8Array())
	case broker.KindUint16Array:
		w.UintArray = widenUint16(v.Uint16Array())
	case broker.KindUint32Array:
		w.UintArray = widenUint32(v.Uint32Array())
	case broker.KindUint64Array:
		w.UintArray = v.Uint64Array()
	case broker.KindFloatArray:
		w.FloatArray = v.Float32Array()
	case broker.KindDoubleArray:
		w.DoubleArray = v.Float64Array()
	}
	return w
}

// ToValue translates a wire envelope back into a broker.Value, narrowing
// numeric payloads to the requested Kind's width.
func ToValue(w *Value) (broker.Value, error) {
	if w == nil {
		return broker.NotAvailable, nil
	}
	kind, err := parseKind(w.Kind)
	if err != nil {
		return broker.NotAvailable, err
	}
	switch kind {
	case broker.KindNotAvailable:
		return broker.NotAvailable, nil
	case broker.KindBool:
		return broker.BoolValue(deref(w.Bool)), nil
	case broker.KindString:
		return broker.StringValue(derefStr(w.String)), nil
	case broker.KindInt8:
		return broker.Int8Value(int8(derefInt(w.Int))), nil
	case broker.KindInt16:
		return broker.Int16Value(int16(derefInt(w.Int))), nil
	case broker.KindInt32:
		return broker.Int32Value(int32(derefInt(w.Int))), nil
	case broker.KindInt64:
		return broker.Int64Value(derefInt(w.Int)), nil
	case broker.KindUint8:
		return broker.Uint8Value(uint8(derefUint(w.Uint))), nil
	case broker.KindUint16:
		return broker.Uint16Value(uint16(derefUint(w.Uint))), nil
	case broker.KindUint32:
		return broker.Uint32Value(uint32(derefUint(w.Uint))), nil
	case broker.KindUint64:
		return broker.Uint64Value(derefUint(w.Uint)), nil
	case broker.KindFloat:
		return broker.FloatValue(derefFloat(w.Float)), nil
	case broker.KindDouble:
		return broker.DoubleValue(derefDouble(w.Double)), nil
	case broker.KindBoolArray:
		return broker.BoolArrayValue(w.BoolArray), nil
	case broker.KindStringArray:
		return broker.StringArrayValue(w.StringArray), nil
	case broker.KindInt8Array:
		return broker.Int8ArrayValue(narrowInt8(w.IntArray)), nil
	case broker.KindInt16Array:
		return broker.Int16ArrayValue(narrowInt16(w.IntArray)), nil
	case broker.KindInt32Array:
		return broker.Int32ArrayValue(narrowInt32(w.IntArray)), nil
	case broker.KindInt64Array:
		return broker.Int64ArrayValue(w.IntArray), nil
	case broker.KindUint8Array:
		return broker.Uint8ArrayValue(narrowUint8(w.UintArray)), nil
	case broker.KindUint16Array:
		return broker.Uint16ArrayValue(narrowUint16(w.UintArray)), nil
	case broker.KindUint32Array:
		return broker.Uint32ArrayValue(narrowUint32(w.UintArray)), nil
	case broker.KindUint64Array:
		return broker.Uint64ArrayValue(w.UintArray), nil
	case broker.KindFloatArray:
		return broker.FloatArrayValue(w.FloatArray), nil
	case broker.KindDoubleArray:
		return broker.DoubleArrayValue(w.DoubleArray), nil
	default:
		return broker.NotAvailable, fmt.Errorf("unsupported wire kind %q", w.Kind)
	}
}

func parseKind(s string) (broker.Kind, error) {
	for k := broker.KindNotAvailable; k <= broker.KindDoubleArray; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return broker.KindNotAvailable, fmt.Errorf("unknown wire kind %q", s)
}

func deref(p *bool) bool        { if p == nil { return false }; return *p }
func derefStr(p *string) string { if p == nil { return "" }; return *p }
func derefInt(p *int64) int64   { if p == nil { return 0 }; return *p }
func derefUint(p *uint64) uint64 { if p == nil { return 0 }; return *p }
func derefFloat(p *float32) float32 { if p == nil { return 0 }; return *p }
func derefDouble(p *float64) float64 { if p == nil { return 0 }; return *p }

func widenInt8(a []int8) []int64 {
	out := make([]int64, len(a))
	for i, v := range a {
		out[i] = int64(v)
	}
	return out
}
func widenInt16(a []int16) []int64 {
	out := make([]int64, len(a))
	for i, v := range a {
		out[i] = int64(v)
	}
	return out
}
func widenInt32(a []int32) []int64 {
	out := make([]int64, len(a))
	for i, v := range a {
		out[i] = int64(v)
	}
	return out
}
func widenUint8(a []uint8) []uint64 {
	out := make([]uint64, len(a))
	for i, v := range a {
		out[i] = uint64(v)
	}
	return out
}
func widenUint16(a []uint16) []uint64 {
	out := make([]uint64, len(a))
	for i, v := range a {
		out[i] = uint64(v)
	}
	return out
}
func widenUint32(a []uint32) []uint64 {
	out := make([]uint64, len(a))
	for i, v := range a {
		out[i] = uint64(v)
	}
	return out
}

func narrowInt8(a []int64) []int8 {
	out := make([]int8, len(a))
	for i, v := range a {
		out[i] = int8(v)
	}
	return out
}
func narrowInt16(a []int64) []int16 {
	out := make([]int16, len(a))
	for i, v := range a {
		out[i] = int16(v)
	}
	return out
}
func narrowInt32(a []int64) []int32 {
	out := make([]int32, len(a))
	for i, v := range a {
		out[i] = int32(v)
	}
	return out
}
func narrowUint8(a []uint64) []uint8 {
	out := make([]uint8, len(a))
	for i, v := range a {
		out[i] = uint8(v)
	}
	return out
}
func narrowUint16(a []uint64) []uint16 {
	out := make([]uint16, len(a))
	for i, v := range a {
		out[i] = uint16(v)
	}
	return out
}
func narrowUint32(a []uint64) []uint32 {
	out := make([]uint32, len(a))
	for i, v := range a {
		out[i] = uint32(v)
	}
	return out
}
