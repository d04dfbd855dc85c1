// Package facade implements the authorized façade (spec.md §4.7): the
// single entry point external adapters call, binding a caller's
// permission to every registry and subscription-engine operation at call
// time so one broker instance serves many concurrent callers.
package facade

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/internal/subscription"
	"github.com/sdv-broker/databroker/internal/telemetry"
	"github.com/sdv-broker/databroker/pkg/metrics"
)

// facadeSubject is used for the engine-internal registry reads the
// façade performs on behalf of its own routing logic (entry-type and
// ownership lookups), as distinct from the caller's own permission.
const facadeSubject = "facade"

// Facade is the broker's single authorized entry point.
type Facade struct {
	reg     *broker.Registry
	engine  *subscription.Engine
	metrics *metrics.DomainMetrics
}

// New builds a Facade over reg and engine.
func New(reg *broker.Registry, engine *subscription.Engine) *Facade {
	return &Facade{reg: reg, engine: engine}
}

// SetMetrics attaches a Prometheus metrics collector to the façade. Nil is
// accepted (and is the default) meaning metrics are disabled; every
// instrumented call site is nil-safe.
func (f *Facade) SetMetrics(m *metrics.DomainMetrics) {
	f.metrics = m
}

// GetByID returns the entry with id, scoped to perm.
func (f *Facade) GetByID(perm permission.Permission, id broker.ID) (broker.Entry, error) {
	return f.reg.ReadAccessor(perm).ByID(id)
}

// GetByPath returns the entry at path, scoped to perm.
func (f *Facade) GetByPath(perm permission.Permission, path string) (broker.Entry, error) {
	return f.reg.ReadAccessor(perm).ByPath(path)
}

// PathOf returns the canonical path registered for id, independent of any
// caller's read permission, for the same reason ResolveID is: addressing
// is metadata, not a data access. Provider adapters (kuksa.val.v2's
// OpenProviderStream) use this to label outgoing actuation changes with
// the path a provider claimed, since subscription.ActuationChange only
// carries an id.
func (f *Facade) PathOf(id broker.ID) (string, bool) {
	return f.reg.PathOf(id)
}

// ResolveID looks up the id registered for path, independent of any
// caller's read permission — resolving a path to its stable id is
// metadata-level addressing, not a data access in its own right; the
// actual read or write that follows is still permission-checked. Wire
// adapters that address entries by path (kuksa.val.v1) use this before
// building an UpdateEntries batch.
func (f *Facade) ResolveID(path string) (broker.ID, bool) {
	return f.reg.IDOf(path)
}

// Iterate walks every entry matching pattern, scoped to perm; entries the
// caller may not read its value for are yielded metadata-only (spec.md
// §4.3).
func (f *Facade) Iterate(perm permission.Permission, pattern *pathglob.Pattern, fn func(broker.IterResult) bool) {
	f.reg.ReadAccessor(perm).Iterate(pattern, fn)
}

// MetadataEntry is one signal's static definition, yielded metadata-only
// when the caller cannot read its value (spec.md §4.3's iterator
// contract, exposed as its own façade-level operation per the kuksa.val
// GetMetadata/ListMetadata RPCs rather than left as an internal iterator
// detail).
type MetadataEntry struct {
	ID          broker.ID
	Path        string
	DataType    broker.Kind
	EntryType   broker.EntryType
	ChangeType  broker.ChangeType
	Description string
	Unit        string
}

// ListMetadata walks every entry matching pattern, scoped to perm, and
// returns its static definition. Unlike Iterate, it never surfaces a
// per-entry value-read error: metadata is returned for every matching
// entry regardless of the caller's datapoint/actuator_target grants,
// since this operation never touches a value.
func (f *Facade) ListMetadata(perm permission.Permission, pattern *pathglob.Pattern) []MetadataEntry {
	var out []MetadataEntry
	f.reg.ReadAccessor(perm).Iterate(pattern, func(r broker.IterResult) bool {
		e := r.Entry
		out = append(out, MetadataEntry{
			ID:          e.ID,
			Path:        e.Path,
			DataType:    e.DataType,
			EntryType:   e.EntryType,
			ChangeType:  e.ChangeType,
			Description: e.Description,
			Unit:        e.Unit,
		})
		return true
	})
	return out
}

// RegisterEntry adds a new signal to the registry (an administrative
// operation gated at the adapter layer, per spec.md §6).
func (f *Facade) RegisterEntry(path string, dataType broker.Kind, entryType broker.EntryType, changeType broker.ChangeType, description, unit string, min, max, allowed *broker.Value) broker.ID {
	id := f.reg.Add(path, dataType, entryType, changeType, description, unit, min, max, allowed)
	f.metrics.SetRegisteredEntries(f.reg.Count())
	return id
}

// UpdateEntries applies batch under perm using the write-then-downgrade-
// then-notify discipline of spec.md §4.7, running a full notification
// round while still holding the downgraded read lock, then re-acquiring
// the write lock to collapse lag datapoints for the ids the round returns
// (signals a query subscription consumed; change subscriptions add none).
func (f *Facade) UpdateEntries(perm permission.Permission, batch []broker.BatchEntry) (map[broker.ID]broker.FieldSet, map[broker.ID]error) {
	_, span := telemetry.StartSpan(context.Background(), "signal.update", trace.WithAttributes(attribute.Int("batch_size", len(batch))))
	defer span.End()
	start := time.Now()
	changed, errs := f.reg.UpdateBatch(perm, batch, f.engine.NotificationRound)
	f.metrics.ObserveUpdateLatency(time.Since(start))
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "one or more entries failed validation")
	}
	return changed, errs
}

// SubscribeChanges registers a change subscription (spec.md §4.6).
func (f *Facade) SubscribeChanges(ctx context.Context, perm permission.Permission, entries map[broker.ID]broker.FieldSet, capacity int) (*subscription.ChangeSubscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "signal.subscribe", trace.WithAttributes(attribute.String("kind", "change"), attribute.Int("entries", len(entries))))
	defer span.End()
	sub, err := f.engine.RegisterChange(ctx, perm, entries, capacity)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return sub, nil
}

// SubscribeQuery registers a query subscription (spec.md §4.6).
func (f *Facade) SubscribeQuery(ctx context.Context, perm permission.Permission, queryString string) (*subscription.QuerySubscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "signal.subscribe", trace.WithAttributes(attribute.String("kind", "query")))
	defer span.End()
	sub, err := f.engine.RegisterQuery(ctx, perm, queryString)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return sub, nil
}

// SubscribeActuation registers an actuation subscription (spec.md §4.6).
func (f *Facade) SubscribeActuation(ctx context.Context, perm permission.Permission, ids []broker.ID, handle subscription.Provider) (*subscription.ActuationSubscription, error) {
	ctx, span := telemetry.StartSpan(ctx, "signal.subscribe", trace.WithAttributes(attribute.String("kind", "actuation"), attribute.Int("ids", len(ids))))
	defer span.End()
	sub, err := f.engine.RegisterActuation(ctx, perm, ids, handle)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return sub, nil
}

// Metrics returns the façade's attached metrics collector (may be nil).
func (f *Facade) Metrics() *metrics.DomainMetrics { return f.metrics }

// Shutdown tears down the subscription engine (spec.md §4.6, §9).
func (f *Facade) Shutdown() {
	f.engine.Shutdown()
}
