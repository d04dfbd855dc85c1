package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueConstructorsRoundTrip(t *testing.T) {
	t.Run("ScalarAccessorsReturnConstructedPayload", func(t *testing.T) {
		assert.Equal(t, true, BoolValue(true).Bool())
		assert.Equal(t, "hello", StringValue("hello").Str())
		assert.Equal(t, int64(-12), Int8Value(-12).Int())
		assert.Equal(t, int64(30000), Int16Value(30000).Int())
		assert.Equal(t, int64(42), Int32Value(42).Int())
		assert.Equal(t, int64(-9000000000), Int64Value(-9000000000).Int())
		assert.Equal(t, uint64(200), Uint8Value(200).Uint())
		assert.Equal(t, uint64(50000), Uint16Value(50000).Uint())
		assert.Equal(t, uint64(4000000000), Uint32Value(4000000000).Uint())
		assert.Equal(t, uint64(18000000000000000000), Uint64Value(18000000000000000000).Uint())
		assert.InDelta(t, 3.5, FloatValue(3.5).Float32(), 1e-6)
		assert.InDelta(t, 3.14159, DoubleValue(3.14159).Float64(), 1e-9)
	})

	t.Run("ArrayAccessorsReturnConstructedPayload", func(t *testing.T) {
		assert.Equal(t, []bool{true, false}, BoolArrayValue([]bool{true, false}).BoolArray())
		assert.Equal(t, []string{"a", "b"}, StringArrayValue([]string{"a", "b"}).StringArray())
		assert.Equal(t, []int32{1, 2, 3}, Int32ArrayValue([]int32{1, 2, 3}).Int32Array())
		assert.Equal(t, []float64{1.1, 2.2}, DoubleArrayValue([]float64{1.1, 2.2}).Float64Array())
	})

	t.Run("ArrayLenAndElement", func(t *testing.T) {
		v := Int32ArrayValue([]int32{10, 20, 30})
		require.Equal(t, 3, v.ArrayLen())
		assert.Equal(t, Int32Value(20), v.Element(1))
	})

	t.Run("ArrayLenOnScalarIsNegativeOne", func(t *testing.T) {
		assert.Equal(t, -1, Int32Value(1).ArrayLen())
	})
}

func TestKindArrayScalarConversion(t *testing.T) {
	t.Run("ScalarOfIsIdentityOnScalars", func(t *testing.T) {
		assert.Equal(t, KindInt32, KindInt32.ScalarOf())
	})
	t.Run("ScalarOfMapsArrayToScalar", func(t *testing.T) {
		assert.Equal(t, KindInt32, KindInt32Array.ScalarOf())
		assert.Equal(t, KindDouble, KindDoubleArray.ScalarOf())
	})
	t.Run("ArrayOfMapsScalarToArray", func(t *testing.T) {
		assert.Equal(t, KindInt32Array, KindInt32.ArrayOf())
	})
	t.Run("ArrayOfIsIdentityOnArrays", func(t *testing.T) {
		assert.Equal(t, KindInt32Array, KindInt32Array.ArrayOf())
	})
	t.Run("IsArray", func(t *testing.T) {
		assert.False(t, KindInt32.IsArray())
		assert.True(t, KindInt32Array.IsArray())
	})
}

// TestGreaterThanCrossType exercises the signed/unsigned ordering contract
// of spec.md §4.1: a negative signed value is strictly less than any
// unsigned value, and the comparison fails rather than misleading when it
// cannot be represented safely.
func TestGreaterThanCrossType(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Value
		want    bool
		wantErr bool
	}{
		{"NegativeSignedLessThanUnsigned", Int32Value(-1), Uint32Value(0), false, false},
		{"UnsignedGreaterThanNegativeSigned", Uint32Value(0), Int32Value(-1), true, false},
		{"PositiveSignedVsUnsignedOrdinary", Int64Value(10), Uint64Value(5), true, false},
		{"SignedVsSignedOrdinary", Int32Value(5), Int32Value(10), false, false},
		{"UnsignedVsUnsignedOrdinary", Uint64Value(10), Uint64Value(5), true, false},
		{"FloatVsDoubleWithinEpsilonIsNotGreater", FloatValue(1.0), DoubleValue(1.0), false, false},
		{"FloatVsIntPromotion", FloatValue(5.5), Int32Value(5), true, false},
		{"BoolNotOrderable", BoolValue(true), BoolValue(false), false, true},
		{"StringNotOrderable", StringValue("b"), StringValue("a"), false, true},
		{"NotAvailableNotOrderable", NotAvailable, Int32Value(1), false, true},
		{"NotAvailableVsNotAvailable", NotAvailable, NotAvailable, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.GreaterThan(tt.b)
			if tt.wantErr {
				require.Error(t, err)
				var ce CastError
				require.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLessThanIsGreaterThanFlipped(t *testing.T) {
	lt, err := Int32Value(1).LessThan(Int32Value(2))
	require.NoError(t, err)
	assert.True(t, lt)
}

func TestGreaterThanOrEqualAndLessThanOrEqual(t *testing.T) {
	t.Run("EqualValuesSatisfyBothBounds", func(t *testing.T) {
		ge, err := Int32Value(5).GreaterThanOrEqual(Int32Value(5))
		require.NoError(t, err)
		assert.True(t, ge)

		le, err := Int32Value(5).LessThanOrEqual(Int32Value(5))
		require.NoError(t, err)
		assert.True(t, le)
	})
}

func TestEquals(t *testing.T) {
	t.Run("NotAvailableEqualsNothing", func(t *testing.T) {
		assert.False(t, NotAvailable.Equals(NotAvailable))
		assert.False(t, NotAvailable.Equals(Int32Value(0)))
	})
	t.Run("FloatEqualityUsesEpsilon", func(t *testing.T) {
		assert.True(t, DoubleValue(1.0).Equals(DoubleValue(1.0 + 1e-13)))
		assert.False(t, DoubleValue(1.0).Equals(DoubleValue(1.1)))
	})
	t.Run("CrossTypeNumericEquality", func(t *testing.T) {
		assert.True(t, Int32Value(5).Equals(Uint8Value(5)))
	})
	t.Run("StringEquality", func(t *testing.T) {
		assert.True(t, StringValue("x").Equals(StringValue("x")))
		assert.False(t, StringValue("x").Equals(StringValue("y")))
	})
	t.Run("ArrayEquality", func(t *testing.T) {
		assert.True(t, Int32ArrayValue([]int32{1, 2}).Equals(Int32ArrayValue([]int32{1, 2})))
		assert.False(t, Int32ArrayValue([]int32{1, 2}).Equals(Int32ArrayValue([]int32{1, 3})))
		assert.False(t, Int32ArrayValue([]int32{1, 2}).Equals(Int32ArrayValue([]int32{1, 2, 3})))
	})
	t.Run("DifferentNonNumericKindsNeverEqual", func(t *testing.T) {
		assert.False(t, BoolValue(true).Equals(StringValue("true")))
	})
}

func TestStringRepresentation(t *testing.T) {
	assert.Equal(t, "NotAvailable", NotAvailable.String())
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "hi", StringValue("hi").String())
	assert.Equal(t, "42", Int32Value(42).String())
	assert.Contains(t, Int32ArrayValue([]int32{1, 2, 3}).String(), "len=3")
}
