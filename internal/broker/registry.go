package broker

import (
	"sync"

	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/pathglob"
	"github.com/sdv-broker/databroker/internal/permission"
)

// Registry holds every signal entry and the path->id mapping, guarded by a
// single RWMutex (spec.md §4.3, §5). All permission-gated access happens
// through ReadAccessor/WriteAccessor bound to a caller's Permission, a
// central RWMutex-guarded map fronted by scoped accessor types. Its own
// exported methods are Add, the batch writer UpdateBatch, and the
// unscoped lookups Count, PathOf, IDOf and GlobPathOf.
type Registry struct {
	mu        sync.RWMutex
	nextID    ID
	pathToID  map[string]ID
	entries   map[ID]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pathToID: make(map[string]ID),
		entries:  make(map[ID]*Entry),
	}
}

// Add registers path if it does not already exist, assigning it the next
// id; re-registration of an existing path is idempotent and returns the
// existing id unchanged (spec.md §3 Lifecycle).
func (r *Registry) Add(path string, dataType Kind, entryType EntryType, changeType ChangeType, description, unit string, min, max, allowed *Value) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.pathToID[path]; ok {
		// Idempotent: description/unit may be refreshed, structural fields
		// (data_type, entry_type) are never rewritten here.
		e := r.entries[id]
		if description != "" {
			e.Description = description
		}
		if unit != "" {
			e.Unit = unit
		}
		return id
	}

	id := r.nextID
	r.nextID++

	e := &Entry{
		ID:          id,
		Path:        path,
		GlobPath:    pathToGlob(path),
		DataType:    dataType,
		EntryType:   entryType,
		ChangeType:  changeType,
		Description: description,
		Unit:        unit,
		Min:         min,
		Max:         max,
		Allowed:     allowed,
	}
	e.Datapoint = Datapoint{Value: NotAvailable}
	e.LagDatapoint = e.Datapoint
	if entryType == EntryTypeActuator {
		target := Datapoint{Value: NotAvailable}
		e.ActuatorTarget = &target
	}

	r.entries[id] = e
	r.pathToID[path] = id
	return id
}

// ReadAccessor returns a read-scoped view of the registry bound to perm.
func (r *Registry) ReadAccessor(perm permission.Permission) *ReadAccessor {
	return &ReadAccessor{reg: r, perm: perm}
}

// WriteAccessor returns a write-scoped view of the registry bound to perm.
func (r *Registry) WriteAccessor(perm permission.Permission) *WriteAccessor {
	return &WriteAccessor{reg: r, perm: perm}
}

// ReadAccessor is the permission-gated read surface of the Registry
// (spec.md §4.3): get by id, get by path, and metadata-tolerant iteration.
type ReadAccessor struct {
	reg  *Registry
	perm permission.Permission
}

// ByID returns a copy of the entry with the given id, or an error if it
// does not exist or the caller's permission denies the read.
func (a *ReadAccessor) ByID(id ID) (Entry, error) {
	a.reg.mu.RLock()
	defer a.reg.mu.RUnlock()
	e, ok := a.reg.entries[id]
	if !ok {
		return Entry{}, brokererr.New(brokererr.NotFound, "no entry with id %d", id)
	}
	if err := a.checkRead(e.GlobPath); err != nil {
		return Entry{}, err
	}
	return *e, nil
}

// ByPath returns a copy of the entry at the given path.
func (a *ReadAccessor) ByPath(path string) (Entry, error) {
	a.reg.mu.RLock()
	id, ok := a.reg.pathToID[path]
	a.reg.mu.RUnlock()
	if !ok {
		return Entry{}, brokererr.New(brokererr.NotFound, "no entry at path %q", path)
	}
	return a.ByID(id)
}

func (a *ReadAccessor) checkRead(globPath string) error {
	switch a.perm.Grant(globPath, permission.FieldDatapointRead) {
	case permission.GrantAllowed:
		return nil
	case permission.GrantExpired:
		return brokererr.New(brokererr.PermissionExpired, "permission expired for %s", globPath)
	default:
		return brokererr.New(brokererr.PermissionDenied, "permission denied for %s", globPath)
	}
}

// IterResult is yielded by Iterate: either a full Entry (value read
// authorized) or a metadata-only Entry (datapoint/actuator_target values
// are zeroed) paired with the error that denied the value read, so callers
// can still surface metadata (path, data_type, unit, description) even
// when the value is inaccessible (spec.md §4.3).
type IterResult struct {
	Entry    Entry
	ValueErr error
}

// Iterate calls fn for every entry matching pattern, in unspecified order.
// fn may return false to stop iteration early.
func (a *ReadAccessor) Iterate(pattern *pathglob.Pattern, fn func(IterResult) bool) {
	a.reg.mu.RLock()
	snapshot := make([]*Entry, 0, len(a.reg.entries))
	for _, e := range a.reg.entries {
		snapshot = append(snapshot, e)
	}
	a.reg.mu.RUnlock()

	for _, e := range snapshot {
		if pattern != nil && !pattern.IsMatch(e.GlobPath) {
			continue
		}
		if err := a.checkRead(e.GlobPath); err != nil {
			meta := *e
			meta.Datapoint = Datapoint{Value: NotAvailable}
			meta.LagDatapoint = meta.Datapoint
			meta.ActuatorTarget = nil
			if !fn(IterResult{Entry: meta, ValueErr: err}) {
				return
			}
			continue
		}
		if !fn(IterResult{Entry: *e}) {
			return
		}
	}
}

// WriteAccessor is the permission-gated write surface of the Registry
// (spec.md §4.3): update by id/path and the add/lag-reset primitives used
// by registration and the notification round's post-round lag collapse.
type WriteAccessor struct {
	reg  *Registry
	perm permission.Permission
}

// Add delegates to Registry.Add; writers don't need a separate permission
// check on registration in this design (registration is an administrative
// operation gated at the adapter layer, per spec.md §6).
func (a *WriteAccessor) Add(path string, dataType Kind, entryType EntryType, changeType ChangeType, description, unit string, min, max, allowed *Value) ID {
	return a.reg.Add(path, dataType, entryType, changeType, description, unit, min, max, allowed)
}

// UpdateByID validates and applies update against the entry with the given
// id, returning the set of fields that actually changed.
func (a *WriteAccessor) UpdateByID(id ID, update *EntryUpdate) (FieldSet, error) {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()

	e, ok := a.reg.entries[id]
	if !ok {
		return nil, brokererr.New(brokererr.NotFound, "no entry with id %d", id)
	}

	folded := fold(e, update)
	if err := validate(e, folded, a.perm); err != nil {
		return nil, err
	}

	changed := FieldSet{}
	if folded.Datapoint != nil {
		e.LagDatapoint = e.Datapoint
		e.Datapoint = *folded.Datapoint
		changed.Add(FieldDatapoint)
	}
	if folded.ActuatorTarget != nil {
		e.ActuatorTarget = folded.ActuatorTarget
		changed.Add(FieldActuatorTarget)
	}
	if folded.Unit != nil {
		e.Unit = *folded.Unit
		changed.Add(FieldMetadataUnit)
	}
	if folded.Allowed != nil {
		e.Allowed = folded.Allowed
	}
	return changed, nil
}

// UpdateByPath resolves path to an id and delegates to UpdateByID.
func (a *WriteAccessor) UpdateByPath(path string, update *EntryUpdate) (ID, FieldSet, error) {
	a.reg.mu.RLock()
	id, ok := a.reg.pathToID[path]
	a.reg.mu.RUnlock()
	if !ok {
		return 0, nil, brokererr.New(brokererr.NotFound, "no entry at path %q", path)
	}
	changed, err := a.UpdateByID(id, update)
	return id, changed, err
}

// ApplyLagAfterExecute collapses lag_datapoint to the current datapoint for
// every id in ids. Called by the subscription engine after a notification
// round for every signal the query engine consumed, per spec.md §4.3 so
// that the next round's lag reflects post-notification state.
func (a *WriteAccessor) ApplyLagAfterExecute(ids []ID) {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()
	for _, id := range ids {
		if e, ok := a.reg.entries[id]; ok {
			e.LagDatapoint = e.Datapoint
		}
	}
}

// BatchEntry pairs an id with the update to apply to it; batches are
// expressed as a slice rather than a map so Registry.UpdateBatch can apply
// them in submission order, per spec.md §5.
type BatchEntry struct {
	ID     ID
	Update *EntryUpdate
}

// UpdateBatch implements the write-then-downgrade-then-notify discipline
// of spec.md §4.7: it takes the write lock once, applies every entry in
// batch in order (accumulating per-id errors without aborting), downgrades
// to a read lock and invokes notify while still holding it so subscribers
// observe a consistent post-batch state, then briefly re-acquires the
// write lock to apply whatever lag-collapse ids notify returns.
//
// Go's sync.RWMutex has no atomic upgrade/downgrade primitive; the unlock
// followed immediately by RLock below is the idiomatic approximation and
// leaves a narrow window where another writer could interleave. This
// mirrors the source system's behavior closely enough for the single
// writer-task-at-a-time model described in spec.md §5, and is recorded as
// an explicit tradeoff in DESIGN.md.
func (r *Registry) UpdateBatch(perm permission.Permission, batch []BatchEntry, notify func(changed map[ID]FieldSet) []ID) (map[ID]FieldSet, map[ID]error) {
	changed := map[ID]FieldSet{}
	errs := map[ID]error{}

	r.mu.Lock()
	for _, be := range batch {
		e, ok := r.entries[be.ID]
		if !ok {
			errs[be.ID] = brokererr.New(brokererr.NotFound, "no entry with id %d", be.ID)
			continue
		}
		folded := fold(e, be.Update)
		if err := validate(e, folded, perm); err != nil {
			errs[be.ID] = err
			continue
		}
		fieldsChanged := FieldSet{}
		if folded.Datapoint != nil {
			e.LagDatapoint = e.Datapoint
			e.Datapoint = *folded.Datapoint
			fieldsChanged.Add(FieldDatapoint)
		}
		if folded.ActuatorTarget != nil {
			e.ActuatorTarget = folded.ActuatorTarget
			fieldsChanged.Add(FieldActuatorTarget)
		}
		if folded.Unit != nil {
			e.Unit = *folded.Unit
			fieldsChanged.Add(FieldMetadataUnit)
		}
		if folded.Allowed != nil {
			e.Allowed = folded.Allowed
		}
		if len(fieldsChanged) > 0 {
			changed[be.ID] = fieldsChanged
		}
	}
	r.mu.Unlock()

	r.mu.RLock()
	var lagIDs []ID
	if notify != nil {
		lagIDs = notify(changed)
	}
	r.mu.RUnlock()

	if len(lagIDs) > 0 {
		r.mu.Lock()
		for _, id := range lagIDs {
			if e, ok := r.entries[id]; ok {
				e.LagDatapoint = e.Datapoint
			}
		}
		r.mu.Unlock()
	}

	return changed, errs
}

// Count returns the number of registered entries, used by the metrics
// collector to report the registered-entries gauge.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// PathOf returns the canonical path for an id, used by the notification
// round and query executor to resolve compiled-query path references back
// to ids without holding a lock across the call. Returns ("", false) if
// the id is unknown.
func (r *Registry) PathOf(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.Path, true
}

// IDOf returns the id registered for path, if any.
func (r *Registry) IDOf(path string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pathToID[path]
	return id, ok
}

// GlobPathOf returns the '/'-separated canonical glob path for an id — the
// form permission.Permission.Grant and pathglob.Pattern.IsMatch expect —
// used by callers that need to check a capability grant without holding an
// Entry across a permission check. Returns ("", false) if the id is
// unknown.
func (r *Registry) GlobPathOf(id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.GlobPath, true
}
