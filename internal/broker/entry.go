package broker

import "time"

// EntryType discriminates whether a signal's target value may be written
// by a provider (Sensor, Actuator) or is read-only configuration metadata
// (Attribute).
type EntryType int

const (
	EntryTypeSensor EntryType = iota
	EntryTypeActuator
	EntryTypeAttribute
)

// ChangeType governs whether repeated writes of the same value suppress
// change notification (spec.md §4.2 "Diffing by change-type").
type ChangeType int

const (
	ChangeTypeStatic ChangeType = iota
	ChangeTypeOnChange
	ChangeTypeContinuous
)

// Field identifies one projectable part of an Entry for change-subscription
// field masks and for reporting which parts of an entry changed in an
// update.
type Field int

const (
	FieldDatapoint Field = iota
	FieldActuatorTarget
	FieldMetadataUnit
)

// FieldSet is a small set over the three Field values.
type FieldSet map[Field]struct{}

func NewFieldSet(fields ...Field) FieldSet {
	s := make(FieldSet, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

func (s FieldSet) Has(f Field) bool { _, ok := s[f]; return ok }

func (s FieldSet) Add(f Field) { s[f] = struct{}{} }

func (s FieldSet) Intersects(other FieldSet) bool {
	for f := range s {
		if other.Has(f) {
			return true
		}
	}
	return false
}

func (s FieldSet) Intersect(other FieldSet) FieldSet {
	out := FieldSet{}
	for f := range s {
		if other.Has(f) {
			out.Add(f)
		}
	}
	return out
}

// Datapoint is a timestamped value, with an optional upstream source
// timestamp distinct from the broker's own observation time.
type Datapoint struct {
	Timestamp       time.Time
	SourceTimestamp *time.Time
	Value           Value
}

// ID is the stable, monotonically assigned, never-reused signal identifier.
type ID uint32

// Entry represents one VSS signal in the registry.
type Entry struct {
	ID          ID
	Path        string // canonical dot-separated VSS path
	GlobPath    string // Path with '.' replaced by '/', the matcher's input
	DataType    Kind
	EntryType   EntryType
	ChangeType  ChangeType
	Description string
	Unit        string

	Min     *Value // scalar bound; for array types applies element-wise
	Max     *Value
	Allowed *Value // array-kinded value of permitted scalars, or nil

	Datapoint      Datapoint
	LagDatapoint   Datapoint
	ActuatorTarget *Datapoint // only ever set when EntryType == EntryTypeActuator
}

// EntryUpdate is a partial update to an Entry. Only non-nil fields are
// applied; the set of fields actually changed is returned by Registry
// write operations.
type EntryUpdate struct {
	// Structural fields; present only to detect (and reject) attempts to
	// rewrite them post-registration. Never applied.
	Path        *string
	EntryType   *EntryType
	DataType    *Kind
	Description *string

	Unit           *string
	Datapoint      *Datapoint
	ActuatorTarget *Datapoint
	Allowed        *Value
}

func pathToGlob(path string) string {
	out := make([]byte, len(path))
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out[i] = '/'
		} else {
			out[i] = path[i]
		}
	}
	return string(out)
}
