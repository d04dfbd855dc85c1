package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/permission"
)

func TestSendLossyDropsOldestFrameWhenFull(t *testing.T) {
	sub, err := newChangeSubscription(context.Background(), map[broker.ID]broker.FieldSet{1: broker.NewFieldSet(broker.FieldDatapoint)}, permission.AllowAll("caller"), 0)
	require.NoError(t, err)

	sub.sendLossy(ChangeBatch{Updates: []ChangeNotification{{ID: 1}}})
	sub.sendLossy(ChangeBatch{Updates: []ChangeNotification{{ID: 2}}})

	got := <-sub.Chan()
	require.Len(t, got.Updates, 1)
	assert.Equal(t, broker.ID(2), got.Updates[0].ID)
}

func TestAliveReflectsContextAndExpiry(t *testing.T) {
	t.Run("LiveContextAndNoExpiryIsAlive", func(t *testing.T) {
		sub, err := newChangeSubscription(context.Background(), map[broker.ID]broker.FieldSet{1: broker.NewFieldSet(broker.FieldDatapoint)}, permission.AllowAll("caller"), 1)
		require.NoError(t, err)
		assert.True(t, sub.alive())
	})

	t.Run("CancelledContextIsNotAlive", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sub, err := newChangeSubscription(ctx, map[broker.ID]broker.FieldSet{1: broker.NewFieldSet(broker.FieldDatapoint)}, permission.AllowAll("caller"), 1)
		require.NoError(t, err)
		cancel()
		assert.False(t, sub.alive())
	})
}

func TestMatchingNotificationsProjectsOnlyOverlappingFields(t *testing.T) {
	sub, err := newChangeSubscription(context.Background(), map[broker.ID]broker.FieldSet{
		1: broker.NewFieldSet(broker.FieldDatapoint),
	}, permission.AllowAll("caller"), 1)
	require.NoError(t, err)

	entry := broker.Entry{ID: 1, Unit: "km/h", Datapoint: broker.Datapoint{Value: broker.FloatValue(5)}}
	snapshot := func(id broker.ID) (broker.Entry, bool) {
		if id == 1 {
			return entry, true
		}
		return broker.Entry{}, false
	}

	t.Run("SignalNotInChangedSetIsIgnored", func(t *testing.T) {
		notifs := sub.matchingNotifications(map[broker.ID]broker.FieldSet{2: broker.NewFieldSet(broker.FieldDatapoint)}, snapshot)
		assert.Empty(t, notifs)
	})

	t.Run("NonOverlappingFieldMaskIsIgnored", func(t *testing.T) {
		notifs := sub.matchingNotifications(map[broker.ID]broker.FieldSet{1: broker.NewFieldSet(broker.FieldActuatorTarget)}, snapshot)
		assert.Empty(t, notifs)
	})

	t.Run("OverlappingFieldProducesANotification", func(t *testing.T) {
		notifs := sub.matchingNotifications(map[broker.ID]broker.FieldSet{1: broker.NewFieldSet(broker.FieldDatapoint)}, snapshot)
		require.Len(t, notifs, 1)
		assert.True(t, notifs[0].Update.Datapoint.Value.Equals(broker.FloatValue(5)))
		require.NotNil(t, notifs[0].Update.Unit)
		assert.Equal(t, "km/h", *notifs[0].Update.Unit)
	})
}

func TestProjectEntryOmitsActuatorTargetWhenNil(t *testing.T) {
	entry := broker.Entry{Unit: "bool", ActuatorTarget: nil}
	update := projectEntry(entry, broker.NewFieldSet(broker.FieldActuatorTarget))
	assert.Nil(t, update.ActuatorTarget)
	require.NotNil(t, update.Unit)
}
