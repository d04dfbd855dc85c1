package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/permission"
)

func TestRegistryAddIsIdempotentOnPath(t *testing.T) {
	reg := NewRegistry()
	id1 := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "speed", "km/h", nil, nil, nil)
	id2 := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "refreshed", "km/h", nil, nil, nil)
	require.Equal(t, id1, id2)

	accessor := reg.ReadAccessor(permission.AllowAll("tester"))
	e, err := accessor.ByID(id1)
	require.NoError(t, err)
	assert.Equal(t, "refreshed", e.Description)
}

func TestRegistryAddAssignsGlobPath(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Cabin.Sunroof.Position", KindInt8, EntryTypeActuator, ChangeTypeOnChange, "", "", nil, nil, nil)
	accessor := reg.ReadAccessor(permission.AllowAll("tester"))
	e, err := accessor.ByID(id)
	require.NoError(t, err)
	assert.Equal(t, "Vehicle/Cabin/Sunroof/Position", e.GlobPath)
	require.NotNil(t, e.ActuatorTarget)
}

func TestByIDAndByPathUnknownReturnsNotFound(t *testing.T) {
	reg := NewRegistry()
	accessor := reg.ReadAccessor(permission.AllowAll("tester"))

	_, err := accessor.ByID(ID(999))
	require.Error(t, err)
	assert.Equal(t, brokererr.NotFound, brokererr.CodeOf(err))

	_, err = accessor.ByPath("Vehicle.DoesNotExist")
	require.Error(t, err)
	assert.Equal(t, brokererr.NotFound, brokererr.CodeOf(err))
}

func TestReadAccessorDeniesOutOfScopeRead(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)

	scoped := permission.Permission{
		Subject: "limited",
		Scopes: []permission.Scope{
			{Pattern: pathglob.MustCompile("Vehicle/Cabin/**"), Field: permission.FieldDatapointRead},
		},
	}
	accessor := reg.ReadAccessor(scoped)
	_, err := accessor.ByID(id)
	require.Error(t, err)
	assert.Equal(t, brokererr.PermissionDenied, brokererr.CodeOf(err))
}

func TestIterateYieldsMetadataOnlyWhenReadDenied(t *testing.T) {
	reg := NewRegistry()
	reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	wa := reg.WriteAccessor(permission.AllowAll("provider"))
	_, err := wa.UpdateByPath("Vehicle.Speed", &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(42)}})
	require.NoError(t, err)

	scoped := permission.Permission{
		Subject: "limited",
		Scopes: []permission.Scope{
			{Pattern: pathglob.MustCompile("**"), Field: permission.FieldMetadataRead},
		},
	}
	accessor := reg.ReadAccessor(scoped)

	var results []IterResult
	accessor.Iterate(nil, func(r IterResult) bool {
		results = append(results, r)
		return true
	})
	require.Len(t, results, 1)
	assert.Error(t, results[0].ValueErr)
	assert.Equal(t, NotAvailable, results[0].Entry.Datapoint.Value)
}

func TestIteratePatternFiltersByGlobPath(t *testing.T) {
	reg := NewRegistry()
	reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	reg.Add("Vehicle.Cabin.Sunroof.Position", KindInt8, EntryTypeActuator, ChangeTypeOnChange, "", "", nil, nil, nil)

	pattern := pathglob.MustCompile("Vehicle/Cabin/**")
	accessor := reg.ReadAccessor(permission.AllowAll("tester"))

	var matched []string
	accessor.Iterate(pattern, func(r IterResult) bool {
		matched = append(matched, r.Entry.GlobPath)
		return true
	})
	require.Len(t, matched, 1)
	assert.Equal(t, "Vehicle/Cabin/Sunroof/Position", matched[0])
}

func TestIterateStopsEarlyWhenFnReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	reg.Add("Vehicle.A", KindInt32, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	reg.Add("Vehicle.B", KindInt32, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)

	accessor := reg.ReadAccessor(permission.AllowAll("tester"))
	count := 0
	accessor.Iterate(nil, func(r IterResult) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}

func TestUpdateByIDAppliesAndReportsChangedFields(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	wa := reg.WriteAccessor(permission.AllowAll("provider"))

	changed, err := wa.UpdateByID(id, &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(10)}})
	require.NoError(t, err)
	assert.True(t, changed.Has(FieldDatapoint))

	ra := reg.ReadAccessor(permission.AllowAll("tester"))
	e, err := ra.ByID(id)
	require.NoError(t, err)
	assert.True(t, e.Datapoint.Value.Equals(FloatValue(10)))
}

func TestUpdateByIDRejectsStructuralRewrite(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	wa := reg.WriteAccessor(permission.AllowAll("provider"))

	_, err := wa.UpdateByID(id, &EntryUpdate{Path: ptr("Vehicle.NewSpeed")})
	require.Error(t, err)
	assert.Equal(t, brokererr.PermissionDenied, brokererr.CodeOf(err))
}

func TestUpdateByPathUnknownReturnsNotFound(t *testing.T) {
	reg := NewRegistry()
	wa := reg.WriteAccessor(permission.AllowAll("provider"))
	_, _, err := wa.UpdateByPath("Vehicle.DoesNotExist", &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(1)}})
	require.Error(t, err)
	assert.Equal(t, brokererr.NotFound, brokererr.CodeOf(err))
}

func TestApplyLagAfterExecuteCollapsesLag(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeContinuous, "", "", nil, nil, nil)
	wa := reg.WriteAccessor(permission.AllowAll("provider"))

	_, err := wa.UpdateByID(id, &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(1)}})
	require.NoError(t, err)
	_, err = wa.UpdateByID(id, &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(2)}})
	require.NoError(t, err)

	ra := reg.ReadAccessor(permission.AllowAll("tester"))
	e, err := ra.ByID(id)
	require.NoError(t, err)
	assert.True(t, e.LagDatapoint.Value.Equals(FloatValue(1)))

	wa.ApplyLagAfterExecute([]ID{id})
	e, err = ra.ByID(id)
	require.NoError(t, err)
	assert.True(t, e.LagDatapoint.Value.Equals(FloatValue(2)))
}

func TestUpdateBatchAppliesInOrderAndInvokesNotify(t *testing.T) {
	reg := NewRegistry()
	idA := reg.Add("Vehicle.A", KindInt32, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)
	idB := reg.Add("Vehicle.B", KindInt32, EntryTypeSensor, ChangeTypeOnChange, "", "", nil, nil, nil)

	batch := []BatchEntry{
		{ID: idA, Update: &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(1)}}},
		{ID: idB, Update: &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(2)}}},
		{ID: ID(999), Update: &EntryUpdate{Datapoint: &Datapoint{Value: Int32Value(3)}}},
	}

	var notifiedWith map[ID]FieldSet
	changed, errs := reg.UpdateBatch(permission.AllowAll("provider"), batch, func(c map[ID]FieldSet) []ID {
		notifiedWith = c
		return nil
	})

	require.Len(t, changed, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, brokererr.NotFound, brokererr.CodeOf(errs[ID(999)]))
	assert.Equal(t, changed, notifiedWith)
}

func TestUpdateBatchAppliesReturnedLagIDs(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Speed", KindFloat, EntryTypeSensor, ChangeTypeContinuous, "", "", nil, nil, nil)
	wa := reg.WriteAccessor(permission.AllowAll("provider"))
	_, err := wa.UpdateByID(id, &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(1)}})
	require.NoError(t, err)

	batch := []BatchEntry{{ID: id, Update: &EntryUpdate{Datapoint: &Datapoint{Value: FloatValue(2)}}}}
	reg.UpdateBatch(permission.AllowAll("provider"), batch, func(c map[ID]FieldSet) []ID {
		return []ID{id}
	})

	ra := reg.ReadAccessor(permission.AllowAll("tester"))
	e, err := ra.ByID(id)
	require.NoError(t, err)
	assert.True(t, e.LagDatapoint.Value.Equals(FloatValue(2)))
}

func TestPathOfAndGlobPathOfAndIDOf(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Cabin.Sunroof.Position", KindInt8, EntryTypeActuator, ChangeTypeOnChange, "", "", nil, nil, nil)

	path, ok := reg.PathOf(id)
	require.True(t, ok)
	assert.Equal(t, "Vehicle.Cabin.Sunroof.Position", path)

	globPath, ok := reg.GlobPathOf(id)
	require.True(t, ok)
	assert.Equal(t, "Vehicle/Cabin/Sunroof/Position", globPath)

	got, ok := reg.IDOf("Vehicle.Cabin.Sunroof.Position")
	require.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = reg.PathOf(ID(999))
	assert.False(t, ok)
	_, ok = reg.GlobPathOf(ID(999))
	assert.False(t, ok)
}

// TestWriteCapabilityUsesGlobPathNotDotPath guards against the write path
// regressing to Entry.Path: a scope compiled against the slash-separated
// glob form must grant access to a write expressed against the same
// signal's dotted Path.
func TestWriteCapabilityUsesGlobPathNotDotPath(t *testing.T) {
	reg := NewRegistry()
	id := reg.Add("Vehicle.Cabin.Sunroof.Position", KindInt8, EntryTypeActuator, ChangeTypeOnChange, "", "", nil, nil, nil)

	scoped := permission.Permission{
		Subject: "writer",
		Scopes: []permission.Scope{
			{Pattern: pathglob.MustCompile("Vehicle/Cabin/**"), Field: permission.FieldActuatorTargetWrite},
		},
	}
	wa := reg.WriteAccessor(scoped)
	_, err := wa.UpdateByID(id, &EntryUpdate{ActuatorTarget: &Datapoint{Value: Int8Value(5)}})
	require.NoError(t, err)
}
