package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/permission"
)

// TestActuationStateMachine reproduces spec.md §4.8's
// claimed -> serving <-> unavailable -> evicted transitions.
func TestActuationStateMachine(t *testing.T) {
	provider := &fakeProvider{available: true}
	sub := newActuationSubscription(context.Background(), []broker.ID{1}, permission.AllowAll("p"), provider)
	assert.Equal(t, ActuationClaimed, sub.state)

	t.Run("BecomesServingWhenProviderIsAvailable", func(t *testing.T) {
		sub.refreshState()
		assert.Equal(t, ActuationServing, sub.state)
	})

	t.Run("BecomesUnavailableWhenProviderGoesDown", func(t *testing.T) {
		provider.available = false
		sub.refreshState()
		assert.Equal(t, ActuationUnavailable, sub.state)
	})

	t.Run("ReturnsToServingWhenProviderComesBack", func(t *testing.T) {
		provider.available = true
		sub.refreshState()
		assert.Equal(t, ActuationServing, sub.state)
	})

	t.Run("EvictedStateNeverRegresses", func(t *testing.T) {
		sub.state = ActuationEvicted
		provider.available = true
		sub.refreshState()
		assert.Equal(t, ActuationEvicted, sub.state)
	})
}

func TestActuationStateString(t *testing.T) {
	assert.Equal(t, "claimed", ActuationClaimed.String())
	assert.Equal(t, "serving", ActuationServing.String())
	assert.Equal(t, "unavailable", ActuationUnavailable.String())
	assert.Equal(t, "evicted", ActuationEvicted.String())
	assert.Equal(t, "unknown", ActuationState(99).String())
}

func TestActuationClaims(t *testing.T) {
	sub := newActuationSubscription(context.Background(), []broker.ID{1, 2}, permission.AllowAll("p"), &fakeProvider{available: true})
	assert.True(t, sub.claims(1))
	assert.True(t, sub.claims(2))
	assert.False(t, sub.claims(3))
}

func TestActuationAlive(t *testing.T) {
	t.Run("EvictedIsNeverAlive", func(t *testing.T) {
		sub := newActuationSubscription(context.Background(), []broker.ID{1}, permission.AllowAll("p"), &fakeProvider{available: true})
		sub.state = ActuationEvicted
		assert.False(t, sub.alive())
	})

	t.Run("CancelledContextIsNotAlive", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		sub := newActuationSubscription(ctx, []broker.ID{1}, permission.AllowAll("p"), &fakeProvider{available: true})
		cancel()
		assert.False(t, sub.alive())
	})

	t.Run("ExpiredPermissionIsNotAlive", func(t *testing.T) {
		expired := permission.Permission{Subject: "p", ExpiresAt: time.Now().Add(-time.Hour)}
		sub := newActuationSubscription(context.Background(), []broker.ID{1}, expired, &fakeProvider{available: true})
		assert.False(t, sub.alive())
	})

	t.Run("LiveClaimedSubscriptionIsAlive", func(t *testing.T) {
		sub := newActuationSubscription(context.Background(), []broker.ID{1}, permission.AllowAll("p"), &fakeProvider{available: true})
		assert.True(t, sub.alive())
	})
}
