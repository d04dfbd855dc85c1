package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/permission"
)

func newTestEntry(dataType Kind, entryType EntryType, changeType ChangeType, min, max, allowed *Value) *Entry {
	e := &Entry{
		ID:         1,
		Path:       "test.datapoint1",
		GlobPath:   "test/datapoint1",
		DataType:   dataType,
		EntryType:  entryType,
		ChangeType: changeType,
		Min:        min,
		Max:        max,
		Allowed:    allowed,
	}
	e.Datapoint = Datapoint{Value: NotAvailable}
	e.LagDatapoint = e.Datapoint
	return e
}

func ptr[T any](v T) *T { return &v }

// TestScenarioRegisterAndGet reproduces spec.md §8 scenario 1.
func TestScenarioRegisterAndGet(t *testing.T) {
	entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, ptr(Int32Value(-500)), ptr(Int32Value(1000)), nil)
	perm := permission.AllowAll("provider")

	t.Run("ValueAtUpperBoundIsAccepted", func(t *testing.T) {
		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(1000)}}
		folded := fold(entry, update)
		require.NoError(t, validate(entry, folded, perm))
	})

	t.Run("ValueAboveMaxIsRejected", func(t *testing.T) {
		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(1001)}}
		folded := fold(entry, update)
		err := validate(entry, folded, perm)
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsMinMax, brokererr.CodeOf(err))
	})
}

// TestScenarioAllowedSetEnforcement reproduces spec.md §8 scenario 2.
func TestScenarioAllowedSetEnforcement(t *testing.T) {
	allowed := ptr(StringArrayValue([]string{"on", "off"}))
	entry := newTestEntry(KindString, EntryTypeActuator, ChangeTypeOnChange, nil, nil, allowed)
	perm := permission.AllowAll("provider")

	t.Run("AllowedValueAccepted", func(t *testing.T) {
		update := &EntryUpdate{Datapoint: &Datapoint{Value: StringValue("on")}}
		require.NoError(t, validate(entry, fold(entry, update), perm))
	})

	t.Run("DisallowedValueRejected", func(t *testing.T) {
		update := &EntryUpdate{Datapoint: &Datapoint{Value: StringValue("standby")}}
		err := validate(entry, fold(entry, update), perm)
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsAllowed, brokererr.CodeOf(err))
	})
}

func TestValidateStructuralImmutability(t *testing.T) {
	entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, nil, nil, nil)
	perm := permission.AllowAll("provider")

	for name, update := range map[string]*EntryUpdate{
		"Path":        {Path: ptr("new.path")},
		"EntryType":   {EntryType: ptr(EntryTypeActuator)},
		"DataType":    {DataType: ptr(KindInt64)},
		"Description": {Description: ptr("new description")},
	} {
		t.Run(name, func(t *testing.T) {
			err := validate(entry, update, perm)
			require.Error(t, err)
			assert.Equal(t, brokererr.PermissionDenied, brokererr.CodeOf(err))
		})
	}
}

func TestValidateWriteCapability(t *testing.T) {
	entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, nil, nil, nil)

	t.Run("DeniedCapabilityYieldsPermissionDenied", func(t *testing.T) {
		noAccess := permission.Permission{Subject: "nobody"}
		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(1)}}
		err := validate(entry, update, noAccess)
		require.Error(t, err)
		assert.Equal(t, brokererr.PermissionDenied, brokererr.CodeOf(err))
	})

	t.Run("ExpiredCapabilityYieldsPermissionExpired", func(t *testing.T) {
		expired := permission.Permission{
			Subject: "provider",
			Scopes: []permission.Scope{
				{Pattern: pathglob.MustCompile("test/datapoint1"), Field: permission.FieldDatapointWrite},
			},
			ExpiresAt: time.Now().Add(-time.Hour),
		}
		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(1)}}
		err := validate(entry, update, expired)
		require.Error(t, err)
		assert.Equal(t, brokererr.PermissionExpired, brokererr.CodeOf(err))
	})
}

func TestValidateTypeMatchAndNarrowing(t *testing.T) {
	entry := newTestEntry(KindInt8, EntryTypeSensor, ChangeTypeOnChange, nil, nil, nil)

	t.Run("WrongVariantRejected", func(t *testing.T) {
		err := validateValue(entry, StringValue("x"))
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsType, brokererr.CodeOf(err))
	})

	t.Run("NarrowingThatFitsIsAccepted", func(t *testing.T) {
		require.NoError(t, validateValue(entry, Int32Value(100)))
	})

	t.Run("NarrowingOutsideTargetWidthFails", func(t *testing.T) {
		err := validateValue(entry, Int32Value(1000))
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsType, brokererr.CodeOf(err))
	})

	t.Run("NotAvailableAlwaysPasses", func(t *testing.T) {
		require.NoError(t, validateValue(entry, NotAvailable))
	})
}

func TestValidateArrayElementwise(t *testing.T) {
	entry := newTestEntry(KindInt32Array, EntryTypeSensor, ChangeTypeOnChange, ptr(Int32Value(0)), ptr(Int32Value(10)), nil)

	t.Run("EveryElementWithinBoundsPasses", func(t *testing.T) {
		require.NoError(t, validateValue(entry, Int32ArrayValue([]int32{0, 5, 10})))
	})

	t.Run("OneElementOutOfBoundsFails", func(t *testing.T) {
		err := validateValue(entry, Int32ArrayValue([]int32{0, 5, 11}))
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsMinMax, brokererr.CodeOf(err))
	})
}

func TestValidateAllowedTypeUpdate(t *testing.T) {
	entry := newTestEntry(KindString, EntryTypeAttribute, ChangeTypeStatic, nil, nil, nil)
	perm := permission.AllowAll("provider")

	t.Run("ReplacingAllowedWithMatchingArrayKindSucceeds", func(t *testing.T) {
		update := &EntryUpdate{Allowed: ptr(StringArrayValue([]string{"a", "b"}))}
		require.NoError(t, validate(entry, update, perm))
	})

	t.Run("ReplacingAllowedWithMismatchedKindFails", func(t *testing.T) {
		update := &EntryUpdate{Allowed: ptr(Int32ArrayValue([]int32{1, 2}))}
		err := validate(entry, update, perm)
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsType, brokererr.CodeOf(err))
	})
}

// TestScenarioContinuousVsOnChange reproduces spec.md §8 scenario 4.
func TestScenarioContinuousVsOnChange(t *testing.T) {
	t.Run("OnChangeSuppressesRepeatedIdenticalValue", func(t *testing.T) {
		entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, nil, nil, nil)
		entry.Datapoint = Datapoint{Value: Int32Value(42)}

		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(42)}}
		folded := fold(entry, update)
		assert.Nil(t, folded.Datapoint)
	})

	t.Run("ContinuousNeverSuppresses", func(t *testing.T) {
		entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeContinuous, nil, nil, nil)
		entry.Datapoint = Datapoint{Value: Int32Value(42)}

		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(42)}}
		folded := fold(entry, update)
		require.NotNil(t, folded.Datapoint)
		assert.True(t, folded.Datapoint.Value.Equals(Int32Value(42)))
	})

	t.Run("OnChangeAllowsDifferentValueThrough", func(t *testing.T) {
		entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, nil, nil, nil)
		entry.Datapoint = Datapoint{Value: Int32Value(42)}

		update := &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(43)}}
		folded := fold(entry, update)
		require.NotNil(t, folded.Datapoint)
	})
}

func TestMinMaxBoundaryEquality(t *testing.T) {
	entry := newTestEntry(KindInt32, EntryTypeSensor, ChangeTypeOnChange, ptr(Int32Value(0)), ptr(Int32Value(100)), nil)

	t.Run("ExactlyAtMinPasses", func(t *testing.T) {
		require.NoError(t, validateValue(entry, Int32Value(0)))
	})
	t.Run("ExactlyAtMaxPasses", func(t *testing.T) {
		require.NoError(t, validateValue(entry, Int32Value(100)))
	})
	t.Run("BelowMinFails", func(t *testing.T) {
		err := validateValue(entry, Int32Value(-1))
		require.Error(t, err)
		assert.Equal(t, brokererr.OutOfBoundsMinMax, brokererr.CodeOf(err))
	})
}

