// Package subscription implements the broker's subscription engine
// (spec.md §4.6): change, query and actuation subscriptions, the
// per-batch notification round that fans updates out to them, and the
// periodic housekeeping pass that reaps dead ones.
package subscription

import (
	"github.com/google/uuid"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/query"
)

// MaxBufferCapacity is the hard upper bound on a subscriber-requested
// channel capacity (spec.md §5, §8).
const MaxBufferCapacity = 1000

// ChangeNotification is one entry's projected update within a batch, sent
// to every change subscription whose entry set and field mask it matches.
type ChangeNotification struct {
	ID     broker.ID
	Update broker.EntryUpdate
	Fields broker.FieldSet
}

// ChangeBatch is one frame on a change subscription's channel: every
// notification produced by a single update_entries batch (spec.md §6
// "EntryUpdates").
type ChangeBatch struct {
	Updates []ChangeNotification
}

// QueryResponse is one frame on a query subscription's channel.
type QueryResponse struct {
	Fields []query.Field
}

// ActuationChange is one entry of a batch sent to a provider.
type ActuationChange struct {
	ID    broker.ID
	Value broker.Value
}

// ActuationResult is a provider's outcome for one actuation change.
type ActuationResult struct {
	ID  broker.ID
	Err error
}

// Provider is the capability set an actuation subscription's owner must
// implement (spec.md §4.6, §9 "Polymorphism" — implemented as an
// interface, never inheritance).
type Provider interface {
	Actuate(batch []ActuationChange) ([]ActuationResult, error)
	IsAvailable() bool
}

// newSubscriptionID generates a fresh subscription identifier.
func newSubscriptionID() uuid.UUID { return uuid.New() }
