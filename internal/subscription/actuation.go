package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/permission"
)

// ActuationState is the lifecycle of an actuation subscription (spec.md
// §4.8): claimed -> serving <-> unavailable -> evicted.
type ActuationState int

const (
	ActuationClaimed ActuationState = iota
	ActuationServing
	ActuationUnavailable
	ActuationEvicted
)

func (s ActuationState) String() string {
	switch s {
	case ActuationClaimed:
		return "claimed"
	case ActuationServing:
		return "serving"
	case ActuationUnavailable:
		return "unavailable"
	case ActuationEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// ActuationSubscription binds a Provider to the set of actuator ids it
// claims ownership of.
type ActuationSubscription struct {
	ID      uuid.UUID
	Claimed map[broker.ID]struct{}
	Perm    permission.Permission
	Ctx     context.Context
	Handle  Provider

	state ActuationState
}

func newActuationSubscription(ctx context.Context, ids []broker.ID, perm permission.Permission, handle Provider) *ActuationSubscription {
	claimed := make(map[broker.ID]struct{}, len(ids))
	for _, id := range ids {
		claimed[id] = struct{}{}
	}
	return &ActuationSubscription{
		ID:      newSubscriptionID(),
		Claimed: claimed,
		Perm:    perm,
		Ctx:     ctx,
		Handle:  handle,
		state:   ActuationClaimed,
	}
}

// refreshState advances the state machine based on the provider's current
// liveness, without evicting: eviction only happens in Cleanup or when a
// routed actuation finds the provider down (spec.md §4.8).
func (s *ActuationSubscription) refreshState() {
	if s.state == ActuationEvicted {
		return
	}
	if s.Handle.IsAvailable() {
		s.state = ActuationServing
	} else if s.state == ActuationServing || s.state == ActuationClaimed {
		s.state = ActuationUnavailable
	}
}

func (s *ActuationSubscription) claims(id broker.ID) bool {
	_, ok := s.Claimed[id]
	return ok
}

func (s *ActuationSubscription) alive() bool {
	if s.state == ActuationEvicted {
		return false
	}
	if s.Ctx != nil && s.Ctx.Err() != nil {
		return false
	}
	return !s.Perm.Expired()
}
