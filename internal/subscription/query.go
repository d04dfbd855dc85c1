package subscription

import (
	"context"

	"github.com/google/uuid"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/permission"
	"github.com/sdv-broker/databroker/internal/query"
)

// querySubscriptionCapacity is the fixed mpsc buffer capacity for query
// subscriptions (spec.md §4.6).
const querySubscriptionCapacity = 10

// QuerySubscription delivers QueryResponse rows produced by re-executing
// Compiled whenever a notification round touches one of its referenced
// ids. A full channel is treated as a dead subscriber (spec.md §5).
type QuerySubscription struct {
	ID       uuid.UUID
	Compiled *query.CompiledQuery
	Perm     permission.Permission
	Ctx      context.Context

	ch chan QueryResponse

	refIDs map[broker.ID]struct{}
}

func newQuerySubscription(ctx context.Context, qs string, resolve query.Resolver, perm permission.Permission) (*QuerySubscription, error) {
	compiled, err := query.Compile(qs, resolve)
	if err != nil {
		return nil, err
	}
	refs := compiled.ReferencedIDs()
	refSet := make(map[broker.ID]struct{}, len(refs))
	for _, id := range refs {
		refSet[id] = struct{}{}
	}
	return &QuerySubscription{
		ID:       newSubscriptionID(),
		Compiled: compiled,
		Perm:     perm,
		Ctx:      ctx,
		ch:       make(chan QueryResponse, querySubscriptionCapacity),
		refIDs:   refSet,
	}, nil
}

// Chan returns the subscriber's read-only receive side.
func (s *QuerySubscription) Chan() <-chan QueryResponse { return s.ch }

func (s *QuerySubscription) alive() bool {
	if s.Ctx != nil && s.Ctx.Err() != nil {
		return false
	}
	return !s.Perm.Expired()
}

// overlaps reports whether any id in changed is referenced by the query.
func (s *QuerySubscription) overlaps(changed map[broker.ID]broker.FieldSet) bool {
	for id := range changed {
		if _, ok := s.refIDs[id]; ok {
			return true
		}
	}
	return false
}

// execute runs the compiled query and attempts a non-blocking send. A
// full channel is reported to the caller so it can be folded into the
// dead-subscriber cleanup pass rather than blocking the writer.
func (s *QuerySubscription) execute(lookup query.ValueLookup) (sent bool, full bool, err error) {
	fields, ok, err := s.Compiled.Execute(lookup)
	if err != nil {
		return false, false, err
	}
	if !ok {
		return false, false, nil
	}
	select {
	case s.ch <- QueryResponse{Fields: fields}:
		return true, false, nil
	default:
		return false, true, nil
	}
}

// RegistrationResolver adapts a broker read accessor into a query.Resolver
// bound to the caller's permission, so the compiler only resolves paths
// the caller may read (spec.md §4.6, §9 open-question: unauthorized paths
// are not distinguished from unknown ones at compile time — see
// DESIGN.md).
func RegistrationResolver(reg *broker.Registry, perm permission.Permission) query.Resolver {
	accessor := reg.ReadAccessor(perm)
	return func(path string) (broker.ID, broker.Kind, bool) {
		e, err := accessor.ByPath(path)
		if err != nil {
			return 0, 0, false
		}
		return e.ID, e.DataType, true
	}
}
