package facade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/logger"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/internal/subscription"
	"github.com/sdv-broker/databroker/internal/telemetry"
)

// ActuationRequest is one requested actuator-target change.
type ActuationRequest struct {
	ID    broker.ID
	Value broker.Value
}

// Actuate implements spec.md §4.7's actuation routing: resolve each id,
// validate its value, find the unique live owning provider, group by
// provider and invoke actuate(batch) once per provider. It fails fast —
// the first invalid change aborts the whole batch before any provider is
// called (spec.md §7 "Actuation fails fast").
func (f *Facade) Actuate(perm permission.Permission, requests []ActuationRequest) ([]subscription.ActuationResult, error) {
	_, span := telemetry.StartSpan(context.Background(), "signal.actuate", trace.WithAttributes(attribute.Int("requests", len(requests))))
	defer span.End()
	start := time.Now()
	results, err := f.actuate(requests, perm)
	f.metrics.ObserveActuateLatency(time.Since(start))
	if err != nil {
		span.RecordError(err)
		f.metrics.IncActuateOutcome(brokererr.CodeOf(err).String())
	} else {
		f.metrics.IncActuateOutcome("ok")
	}
	return results, err
}

func (f *Facade) actuate(requests []ActuationRequest, perm permission.Permission) ([]subscription.ActuationResult, error) {
	accessor := f.reg.ReadAccessor(permission.AllowAll(facadeSubject))

	type routed struct {
		owner *subscription.ActuationSubscription
		batch []subscription.ActuationChange
	}
	groups := map[uuid.UUID]*routed{}

	for _, req := range requests {
		entry, err := accessor.ByID(req.ID)
		if err != nil {
			return nil, err
		}
		if entry.EntryType != broker.EntryTypeActuator {
			return nil, brokererr.New(brokererr.WrongType, "id %d is not an actuator", req.ID)
		}

		switch perm.Grant(entry.GlobPath, permission.FieldActuatorTargetWrite) {
		case permission.GrantAllowed:
		case permission.GrantExpired:
			return nil, brokererr.New(brokererr.PermissionExpired, "permission expired for %s", entry.GlobPath)
		default:
			return nil, brokererr.New(brokererr.PermissionDenied, "permission denied for %s", entry.GlobPath)
		}

		if err := broker.ValidateActuationValue(&entry, req.Value); err != nil {
			logger.Warn("actuation request rejected",
				logger.SignalID(uint64(req.ID)), logger.Path(entry.GlobPath), logger.Caller(perm.Subject),
				logger.ErrorCode(brokererr.CodeOf(err).String()), logger.Err(err))
			return nil, err
		}

		owner, err := f.engine.OwnerOf(req.ID)
		if err != nil {
			return nil, err
		}

		g, ok := groups[owner.ID]
		if !ok {
			g = &routed{owner: owner}
			groups[owner.ID] = g
		}
		g.batch = append(g.batch, subscription.ActuationChange{ID: req.ID, Value: req.Value})
	}

	var results []subscription.ActuationResult
	for _, g := range groups {
		res, err := g.owner.Handle.Actuate(g.batch)
		if err != nil {
			f.engine.EvictActuation(g.owner.ID)
			logger.Error("actuation transmission failed", logger.SubscriptionID(g.owner.ID.String()), logger.Err(err))
			return nil, brokererr.Wrap(brokererr.TransmissionFailure, err, "actuation transmission to provider failed")
		}
		results = append(results, res...)
	}
	return results, nil
}
