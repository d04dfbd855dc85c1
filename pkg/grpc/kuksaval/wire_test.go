package kuksaval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/broker"
)

// TestValueRoundTripsAllVariants pins spec.md §8's "encoding an internal
// value through the adapter and back is the identity on all 24 variants".
func TestValueRoundTripsAllVariants(t *testing.T) {
	cases := []broker.Value{
		broker.NotAvailable,
		broker.BoolValue(true),
		broker.StringValue("hello"),
		broker.Int8Value(-12),
		broker.Int16Value(-30000),
		broker.Int32Value(-2000000000),
		broker.Int64Value(-9000000000000000000),
		broker.Uint8Value(200),
		broker.Uint16Value(50000),
		broker.Uint32Value(4000000000),
		broker.Uint64Value(18000000000000000000),
		broker.FloatValue(3.5),
		broker.DoubleValue(3.14159),
		broker.BoolArrayValue([]bool{true, false}),
		broker.StringArrayValue([]string{"a", "b"}),
		broker.Int8ArrayValue([]int8{-1, 2, -3}),
		broker.Int16ArrayValue([]int16{-1, 2, -3}),
		broker.Int32ArrayValue([]int32{-1, 2, -3}),
		broker.Int64ArrayValue([]int64{-1, 2, -3}),
		broker.Uint8ArrayValue([]uint8{1, 2, 3}),
		broker.Uint16ArrayValue([]uint16{1, 2, 3}),
		broker.Uint32ArrayValue([]uint32{1, 2, 3}),
		broker.Uint64ArrayValue([]uint64{1, 2, 3}),
		broker.FloatArrayValue([]float32{1.1, 2.2}),
		broker.DoubleArrayValue([]float64{1.1, 2.2}),
	}

	require.Len(t, cases, 25, "every Kind variant plus NotAvailable must be exercised")

	for _, want := range cases {
		t.Run(want.Kind.String(), func(t *testing.T) {
			wire := FromValue(want)
			got, err := ToValue(wire)
			require.NoError(t, err)
			assert.Equal(t, want.Kind, got.Kind)
			if want.Kind != broker.KindNotAvailable {
				assert.True(t, want.Equals(got), "want %#v, got %#v", want, got)
			}
		})
	}
}

func TestToValueNilEnvelopeIsNotAvailable(t *testing.T) {
	got, err := ToValue(nil)
	require.NoError(t, err)
	assert.Equal(t, broker.NotAvailable, got)
}

func TestToValueUnknownKindFails(t *testing.T) {
	_, err := ToValue(&Value{Kind: "bogus"})
	assert.Error(t, err)
}
