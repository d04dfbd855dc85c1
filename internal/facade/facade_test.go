package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/internal/subscription"
)

// fakeProvider is a minimal subscription.Provider used to drive actuation
// routing without a real transport adapter.
type fakeProvider struct {
	available bool
	actuate   func(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error)
}

func (p *fakeProvider) IsAvailable() bool { return p.available }

func (p *fakeProvider) Actuate(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error) {
	if p.actuate != nil {
		return p.actuate(batch)
	}
	out := make([]subscription.ActuationResult, len(batch))
	for i, c := range batch {
		out[i] = subscription.ActuationResult{ID: c.ID}
	}
	return out, nil
}

func newTestFacade() (*Facade, *broker.Registry) {
	reg := broker.NewRegistry()
	eng := subscription.NewEngine(reg)
	return New(reg, eng), reg
}

func TestRegisterEntryThenGetByIDAndPath(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Speed", broker.KindFloat, broker.EntryTypeSensor, broker.ChangeTypeOnChange, "speed", "km/h", nil, nil, nil)

	perm := permission.AllowAll("caller")
	byID, err := f.GetByID(perm, id)
	require.NoError(t, err)
	assert.Equal(t, "Vehicle.Speed", byID.Path)

	byPath, err := f.GetByPath(perm, "Vehicle.Speed")
	require.NoError(t, err)
	assert.Equal(t, id, byPath.ID)
}

func TestUpdateEntriesRunsNotificationRoundAndCollapsesLag(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Speed", broker.KindFloat, broker.EntryTypeSensor, broker.ChangeTypeContinuous, "", "", nil, nil, nil)
	perm := permission.AllowAll("caller")

	sub, err := f.SubscribeChanges(context.Background(), perm, map[broker.ID]broker.FieldSet{id: broker.NewFieldSet(broker.FieldDatapoint)}, 4)
	require.NoError(t, err)
	<-sub.Chan() // initial snapshot

	// Lag collapses only for signals a query subscription consumed during
	// the round, so register one over the same signal.
	_, err = f.SubscribeQuery(context.Background(), perm, "SELECT Vehicle.Speed")
	require.NoError(t, err)

	changed, errs := f.UpdateEntries(perm, []broker.BatchEntry{
		{ID: id, Update: &broker.EntryUpdate{Datapoint: &broker.Datapoint{Value: broker.FloatValue(77)}}},
	})
	require.Empty(t, errs)
	require.Contains(t, changed, id)

	select {
	case batch := <-sub.Chan():
		require.Len(t, batch.Updates, 1)
		assert.True(t, batch.Updates[0].Update.Datapoint.Value.Equals(broker.FloatValue(77)))
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	entry, err := f.GetByID(perm, id)
	require.NoError(t, err)
	assert.True(t, entry.LagDatapoint.Value.Equals(broker.FloatValue(77)))
}

func TestActuateRejectsNonActuatorEntry(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Speed", broker.KindFloat, broker.EntryTypeSensor, broker.ChangeTypeOnChange, "", "", nil, nil, nil)
	perm := permission.AllowAll("caller")

	_, err := f.Actuate(perm, []ActuationRequest{{ID: id, Value: broker.FloatValue(1)}})
	require.Error(t, err)
	assert.Equal(t, brokererr.WrongType, brokererr.CodeOf(err))
}

func TestActuateRoutesToTheClaimingProvider(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Cabin.Sunroof.Position", broker.KindInt8, broker.EntryTypeActuator, broker.ChangeTypeOnChange, "", "", nil, nil, nil)
	perm := permission.AllowAll("caller")

	var received []subscription.ActuationChange
	provider := &fakeProvider{available: true, actuate: func(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error) {
		received = batch
		return []subscription.ActuationResult{{ID: id}}, nil
	}}
	_, err := f.SubscribeActuation(context.Background(), permission.AllowAll("provider"), []broker.ID{id}, provider)
	require.NoError(t, err)

	results, err := f.Actuate(perm, []ActuationRequest{{ID: id, Value: broker.Int8Value(5)}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, received, 1)
	assert.True(t, received[0].Value.Equals(broker.Int8Value(5)))
}

// TestActuateFailsFastBeforeAnyProviderIsCalled reproduces spec.md §7's
// "actuation fails fast": a batch with one invalid change must not invoke
// any provider, including for the other, valid change in the same batch.
func TestActuateFailsFastBeforeAnyProviderIsCalled(t *testing.T) {
	f, _ := newTestFacade()
	valid := f.RegisterEntry("Vehicle.Cabin.Sunroof.Position", broker.KindInt8, broker.EntryTypeActuator, broker.ChangeTypeOnChange, "", "", nil, nil, nil)
	bounded := f.RegisterEntry("Vehicle.Cabin.Window.Position", broker.KindInt8, broker.EntryTypeActuator, broker.ChangeTypeOnChange, "", "", ptrVal(broker.Int8Value(0)), ptrVal(broker.Int8Value(10)), nil)
	perm := permission.AllowAll("caller")

	called := false
	provider := &fakeProvider{available: true, actuate: func(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error) {
		called = true
		return nil, nil
	}}
	_, err := f.SubscribeActuation(context.Background(), permission.AllowAll("provider"), []broker.ID{valid, bounded}, provider)
	require.NoError(t, err)

	_, err = f.Actuate(perm, []ActuationRequest{
		{ID: valid, Value: broker.Int8Value(5)},
		{ID: bounded, Value: broker.Int8Value(100)},
	})
	require.Error(t, err)
	assert.Equal(t, brokererr.OutOfBoundsMinMax, brokererr.CodeOf(err))
	assert.False(t, called)
}

// TestActuateProviderOwnershipConflict reproduces spec.md §8 scenario 5:
// once a provider owns an actuator, a second provider cannot claim it while
// the first remains available.
func TestActuateProviderOwnershipConflict(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Cabin.Sunroof.Position", broker.KindInt8, broker.EntryTypeActuator, broker.ChangeTypeOnChange, "", "", nil, nil, nil)

	_, err := f.SubscribeActuation(context.Background(), permission.AllowAll("p1"), []broker.ID{id}, &fakeProvider{available: true})
	require.NoError(t, err)

	_, err = f.SubscribeActuation(context.Background(), permission.AllowAll("p2"), []broker.ID{id}, &fakeProvider{available: true})
	require.Error(t, err)
	assert.Equal(t, brokererr.ProviderAlreadyExists, brokererr.CodeOf(err))
}

func TestActuateEvictsProviderOnTransmissionFailure(t *testing.T) {
	f, _ := newTestFacade()
	id := f.RegisterEntry("Vehicle.Cabin.Sunroof.Position", broker.KindInt8, broker.EntryTypeActuator, broker.ChangeTypeOnChange, "", "", nil, nil, nil)
	perm := permission.AllowAll("caller")

	provider := &fakeProvider{available: true, actuate: func(batch []subscription.ActuationChange) ([]subscription.ActuationResult, error) {
		return nil, assert.AnError
	}}
	_, err := f.SubscribeActuation(context.Background(), permission.AllowAll("provider"), []broker.ID{id}, provider)
	require.NoError(t, err)

	_, err = f.Actuate(perm, []ActuationRequest{{ID: id, Value: broker.Int8Value(1)}})
	require.Error(t, err)
	assert.Equal(t, brokererr.TransmissionFailure, brokererr.CodeOf(err))

	_, err = f.Actuate(perm, []ActuationRequest{{ID: id, Value: broker.Int8Value(1)}})
	require.Error(t, err)
	assert.Equal(t, brokererr.ProviderNotAvailable, brokererr.CodeOf(err))
}

func TestIterateYieldsAllRegisteredEntries(t *testing.T) {
	f, _ := newTestFacade()
	f.RegisterEntry("Vehicle.A", broker.KindInt32, broker.EntryTypeSensor, broker.ChangeTypeOnChange, "", "", nil, nil, nil)
	f.RegisterEntry("Vehicle.B", broker.KindInt32, broker.EntryTypeSensor, broker.ChangeTypeOnChange, "", "", nil, nil, nil)

	var count int
	f.Iterate(permission.AllowAll("caller"), nil, func(r broker.IterResult) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)
}

func TestShutdownClosesEngineDoneChannel(t *testing.T) {
	f, _ := newTestFacade()
	f.Shutdown()
	select {
	case <-f.engine.Done():
	default:
		t.Fatal("expected facade Shutdown to close the engine's Done channel")
	}
}

func ptrVal(v broker.Value) *broker.Value { return &v }
