package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/logger"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/pkg/metrics"
)

// engineSubject is the identity the engine uses to read the registry on
// its own behalf during notification rounds and query re-execution — an
// in-process operation that is not mediated by any caller's permission
// (spec.md §4.6).
const engineSubject = "subscription-engine"

// Engine owns the three subscription vectors (spec.md §4.6) and runs the
// per-batch notification round and periodic housekeeping against them. It
// is safe for concurrent use; RegisterX calls and the notification round
// may run concurrently with each other.
type Engine struct {
	reg *broker.Registry

	mu            sync.RWMutex
	changeSubs    map[uuid.UUID]*ChangeSubscription
	querySubs     map[uuid.UUID]*QuerySubscription
	actuationSubs map[uuid.UUID]*ActuationSubscription

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	metrics *metrics.DomainMetrics
}

// NewEngine builds an engine bound to reg.
func NewEngine(reg *broker.Registry) *Engine {
	return &Engine{
		reg:           reg,
		changeSubs:    make(map[uuid.UUID]*ChangeSubscription),
		querySubs:     make(map[uuid.UUID]*QuerySubscription),
		actuationSubs: make(map[uuid.UUID]*ActuationSubscription),
		shutdownCh:    make(chan struct{}),
	}
}

// SetMetrics attaches a Prometheus metrics collector reporting active
// subscription gauges per vector. Nil (the default) disables reporting.
func (e *Engine) SetMetrics(m *metrics.DomainMetrics) {
	e.metrics = m
}

// reportSubscriptionGauges publishes the current size of each subscription
// vector. Must be called with e.mu held (read or write).
func (e *Engine) reportSubscriptionGauges() {
	e.metrics.SetActiveSubscriptions("change", len(e.changeSubs))
	e.metrics.SetActiveSubscriptions("query", len(e.querySubs))
	e.metrics.SetActiveSubscriptions("actuation", len(e.actuationSubs))
}

// Done is closed when Shutdown is called; outbound adapter streams select
// on it to terminate with an unavailable status (spec.md §4.6, §9).
func (e *Engine) Done() <-chan struct{} { return e.shutdownCh }

// RegisterChange installs a new change subscription after delivering an
// initial snapshot of entries's current state (spec.md §4.6).
func (e *Engine) RegisterChange(ctx context.Context, perm permission.Permission, entries map[broker.ID]broker.FieldSet, capacity int) (*ChangeSubscription, error) {
	sub, err := newChangeSubscription(ctx, entries, perm, capacity)
	if err != nil {
		return nil, err
	}

	accessor := e.reg.ReadAccessor(permission.AllowAll(engineSubject))
	var initial []ChangeNotification
	for id, fields := range entries {
		entry, err := accessor.ByID(id)
		if err != nil {
			continue
		}
		initial = append(initial, ChangeNotification{ID: id, Update: projectEntry(entry, fields), Fields: fields})
	}
	select {
	case sub.ch <- ChangeBatch{Updates: initial}:
	default:
		logger.Warn("failed to deliver initial snapshot to change subscription", logger.SubscriptionID(sub.ID.String()))
	}

	e.mu.Lock()
	e.changeSubs[sub.ID] = sub
	e.reportSubscriptionGauges()
	e.mu.Unlock()
	return sub, nil
}

// RegisterQuery compiles qs against the registry (scoped to perm) and
// installs the subscription, sending the initial row synchronously if the
// first execution produces one (spec.md §4.6).
func (e *Engine) RegisterQuery(ctx context.Context, perm permission.Permission, qs string) (*QuerySubscription, error) {
	resolver := RegistrationResolver(e.reg, perm)
	sub, err := newQuerySubscription(ctx, qs, resolver, perm)
	if err != nil {
		return nil, err
	}

	accessor := e.reg.ReadAccessor(perm)
	lookup := func(id broker.ID) (broker.Value, error) {
		entry, err := accessor.ByID(id)
		if err != nil {
			return broker.NotAvailable, err
		}
		return entry.Datapoint.Value, nil
	}
	fields, ok, err := sub.Compiled.Execute(lookup)
	if err != nil {
		logger.Error("initial query execution failed", logger.Err(err))
	} else if ok {
		sub.ch <- QueryResponse{Fields: fields}
	}

	e.mu.Lock()
	e.querySubs[sub.ID] = sub
	e.reportSubscriptionGauges()
	e.mu.Unlock()
	return sub, nil
}

// RegisterActuation installs a new actuation subscription after verifying
// perm grants actuator-target write on every claimed path and that no
// claimed id is already owned by a live subscription (spec.md §4.6).
func (e *Engine) RegisterActuation(ctx context.Context, perm permission.Permission, ids []broker.ID, handle Provider) (*ActuationSubscription, error) {
	if len(ids) == 0 {
		return nil, brokererr.New(brokererr.InvalidInput, "actuation subscription requires a non-empty id set")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range ids {
		path, ok := e.reg.GlobPathOf(id)
		if !ok {
			return nil, brokererr.New(brokererr.NotFound, "no entry with id %d", id)
		}
		switch perm.Grant(path, permission.FieldActuatorTargetWrite) {
		case permission.GrantAllowed:
		case permission.GrantExpired:
			return nil, brokererr.New(brokererr.PermissionExpired, "permission expired for %s", path)
		default:
			return nil, brokererr.New(brokererr.PermissionDenied, "permission denied for %s", path)
		}
		for _, existing := range e.actuationSubs {
			if existing.state == ActuationEvicted || !existing.alive() {
				continue
			}
			if existing.claims(id) && existing.Handle.IsAvailable() {
				return nil, brokererr.New(brokererr.ProviderAlreadyExists, "id %d already claimed by an available provider", id)
			}
		}
	}

	sub := newActuationSubscription(ctx, ids, perm, handle)
	e.actuationSubs[sub.ID] = sub
	e.reportSubscriptionGauges()
	return sub, nil
}

// NotificationRound implements spec.md §4.6: it is called by the
// authorized façade while holding the registry's read lock (having just
// downgraded from the write lock applied by the update batch), and
// returns the set of ids whose lag_datapoint must be collapsed afterward.
func (e *Engine) NotificationRound(changed map[broker.ID]broker.FieldSet) []broker.ID {
	accessor := e.reg.ReadAccessor(permission.AllowAll(engineSubject))

	e.mu.RLock()
	lagSet := map[broker.ID]struct{}{}
	var deadQuery, deadChange []uuid.UUID

	for id, qs := range e.querySubs {
		if !qs.overlaps(changed) {
			continue
		}
		lookup := func(lookupID broker.ID) (broker.Value, error) {
			entry, err := accessor.ByID(lookupID)
			if err != nil {
				return broker.NotAvailable, err
			}
			return entry.Datapoint.Value, nil
		}
		sent, full, err := qs.execute(lookup)
		if err != nil {
			logger.Error("query subscription execution failed", logger.SubscriptionID(qs.ID.String()), logger.Err(err))
			continue
		}
		if full {
			deadQuery = append(deadQuery, id)
			continue
		}
		if sent {
			for refID := range qs.refIDs {
				e2, err := accessor.ByID(refID)
				if err == nil && !e2.Datapoint.Value.Equals(e2.LagDatapoint.Value) {
					lagSet[refID] = struct{}{}
				}
			}
		}
		if qs.Perm.Expired() {
			deadQuery = append(deadQuery, id)
		}
	}

	for id, cs := range e.changeSubs {
		notifs := cs.matchingNotifications(changed, func(lookupID broker.ID) (broker.Entry, bool) {
			entry, err := accessor.ByID(lookupID)
			return entry, err == nil
		})
		if len(notifs) > 0 {
			cs.sendLossy(ChangeBatch{Updates: notifs})
		}
		if cs.Perm.Expired() {
			deadChange = append(deadChange, id)
		}
	}
	e.mu.RUnlock()

	if len(deadQuery) > 0 || len(deadChange) > 0 {
		e.mu.Lock()
		for _, id := range deadQuery {
			delete(e.querySubs, id)
		}
		for _, id := range deadChange {
			delete(e.changeSubs, id)
		}
		e.mu.Unlock()
	}

	lagIDs := make([]broker.ID, 0, len(lagSet))
	for id := range lagSet {
		lagIDs = append(lagIDs, id)
	}
	return lagIDs
}

// OwnerOf returns the unique live actuation subscription claiming id, per
// spec.md §4.7 actuation routing step 3.
func (e *Engine) OwnerOf(id broker.ID) (*ActuationSubscription, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, as := range e.actuationSubs {
		if !as.claims(id) || as.state == ActuationEvicted {
			continue
		}
		if as.Perm.Expired() {
			return nil, brokererr.New(brokererr.PermissionExpired, "actuation subscription permission expired")
		}
		as.refreshState()
		if !as.Handle.IsAvailable() {
			as.state = ActuationUnavailable
			return nil, brokererr.New(brokererr.ProviderNotAvailable, "no available actuation provider for id %d", id)
		}
		return as, nil
	}
	return nil, brokererr.New(brokererr.ProviderNotAvailable, "no actuation provider for id %d", id)
}

// EvictActuation removes a dead or down-graded provider immediately,
// rather than waiting for the next housekeeping sweep (spec.md §4.8: "or
// when a new actuation request would be routed and finds the provider
// down").
func (e *Engine) EvictActuation(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.actuationSubs, id)
	e.reportSubscriptionGauges()
}

// Cleanup reaps dead subscriptions across all three vectors (spec.md
// §4.6, §4.8): closed-context query/change subscriptions, expired
// permissions, and actuation subscriptions whose provider is not
// available when this sweep checks it (or was already marked unavailable).
func (e *Engine) Cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.reportSubscriptionGauges()

	for id, cs := range e.changeSubs {
		if !cs.alive() {
			delete(e.changeSubs, id)
		}
	}
	for id, qs := range e.querySubs {
		if !qs.alive() {
			delete(e.querySubs, id)
		}
	}
	for id, as := range e.actuationSubs {
		as.refreshState()
		if !as.alive() || as.state == ActuationUnavailable {
			as.state = ActuationEvicted
			delete(e.actuationSubs, id)
		}
	}
}

// RunHousekeeping runs Cleanup every interval until ctx is cancelled or
// the engine is shut down (spec.md §4.8). Intended to run on its own
// goroutine for the lifetime of the broker process.
func (e *Engine) RunHousekeeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.shutdownCh:
			return
		case <-ticker.C:
			e.Cleanup()
		}
	}
}

// Shutdown clears every subscription vector and closes Done, so every
// outbound stream wired to it terminates with unavailable (spec.md §4.6,
// §9).
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.changeSubs = map[uuid.UUID]*ChangeSubscription{}
		e.querySubs = map[uuid.UUID]*QuerySubscription{}
		e.actuationSubs = map[uuid.UUID]*ActuationSubscription{}
		e.mu.Unlock()
		close(e.shutdownCh)
	})
}
