package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/logger"
	"github.com/sdv-broker/databroker/internal/permission"
)

// ChangeSubscription delivers batches of entry changes on ch. Slow
// consumers lose intermediate frames — sendLossy always keeps the newest
// frame in the buffer rather than blocking the notification round, which
// is the "newest wins" broadcast semantics of spec.md §4.6. No library in
// the retrieval pack offers a Go broadcast-channel primitive (unlike
// Rust's tokio::sync::broadcast this engine is built on), so this is a
// small hand-rolled channel wrapper — see DESIGN.md.
type ChangeSubscription struct {
	ID      uuid.UUID
	Entries map[broker.ID]broker.FieldSet
	Perm    permission.Permission
	Ctx     context.Context

	mu sync.Mutex
	ch chan ChangeBatch
}

// newChangeSubscription validates entries and capacity and builds the
// channel, but does not install the subscription in the engine; the
// caller sends the initial snapshot first (see Engine.RegisterChange).
func newChangeSubscription(ctx context.Context, entries map[broker.ID]broker.FieldSet, perm permission.Permission, capacity int) (*ChangeSubscription, error) {
	if len(entries) == 0 {
		return nil, brokererr.New(brokererr.InvalidInput, "change subscription requires a non-empty entry set")
	}
	if capacity > MaxBufferCapacity {
		return nil, brokererr.New(brokererr.InvalidBufferSize, "requested buffer capacity %d exceeds maximum %d", capacity, MaxBufferCapacity)
	}
	effectiveCap := capacity
	if effectiveCap <= 0 {
		effectiveCap = 0
	}
	return &ChangeSubscription{
		ID:      newSubscriptionID(),
		Entries: entries,
		Perm:    perm,
		Ctx:     ctx,
		ch:      make(chan ChangeBatch, effectiveCap+1),
	}, nil
}

// Chan returns the subscriber's read-only receive side.
func (s *ChangeSubscription) Chan() <-chan ChangeBatch { return s.ch }

// alive reports whether the subscription's consumer context is still
// active and its permission has not expired.
func (s *ChangeSubscription) alive() bool {
	if s.Ctx != nil && s.Ctx.Err() != nil {
		return false
	}
	return !s.Perm.Expired()
}

// sendLossy delivers batch without blocking. If the channel is full, the
// oldest buffered frame is dropped to make room, so the consumer always
// eventually observes the latest state rather than stalling the
// notification round.
func (s *ChangeSubscription) sendLossy(batch ChangeBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- batch:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- batch:
	default:
		logger.Warn("change subscription consumer lagging, dropping frame", logger.SubscriptionID(s.ID.String()))
	}
}

// matchingNotifications projects changed against the subscription's entry
// set and field masks, returning nil if nothing matches.
func (s *ChangeSubscription) matchingNotifications(changed map[broker.ID]broker.FieldSet, snapshot func(broker.ID) (broker.Entry, bool)) []ChangeNotification {
	var out []ChangeNotification
	for id, wantedFields := range s.Entries {
		chFields, ok := changed[id]
		if !ok {
			continue
		}
		matched := wantedFields.Intersect(chFields)
		if len(matched) == 0 {
			continue
		}
		entry, ok := snapshot(id)
		if !ok {
			continue
		}
		out = append(out, ChangeNotification{
			ID:     id,
			Update: projectEntry(entry, matched),
			Fields: matched,
		})
	}
	return out
}

// projectEntry builds an EntryUpdate carrying only the fields in mask,
// plus unit which spec.md §6 says is always populated.
func projectEntry(e broker.Entry, mask broker.FieldSet) broker.EntryUpdate {
	u := broker.EntryUpdate{Unit: &e.Unit}
	if mask.Has(broker.FieldDatapoint) {
		dp := e.Datapoint
		u.Datapoint = &dp
	}
	if mask.Has(broker.FieldActuatorTarget) && e.ActuatorTarget != nil {
		at := *e.ActuatorTarget
		u.ActuatorTarget = &at
	}
	return u
}
