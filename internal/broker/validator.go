package broker

import (
	"github.com/sdv-broker/databroker/internal/brokererr"
	"github.com/sdv-broker/databroker/internal/permission"
)

// Capability identifies one of the write capabilities the permission
// object may grant on a path.
type Capability int

const (
	CapabilityWriteDatapoint Capability = iota
	CapabilityWriteActuatorTarget
	CapabilityReadValue
)

// fold drops the datapoint field of an update when the entry's change_type
// is not continuous and the incoming value equals the stored value, per
// spec.md §4.2 "Diffing by change-type". Timestamps alone never suppress a
// change — only this value-equality check does.
func fold(entry *Entry, update *EntryUpdate) *EntryUpdate {
	if update.Datapoint == nil || entry.ChangeType == ChangeTypeContinuous {
		return update
	}
	if update.Datapoint.Value.Equals(entry.Datapoint.Value) {
		folded := *update
		folded.Datapoint = nil
		return &folded
	}
	return update
}

// validate runs the ordered validation pipeline of spec.md §4.2 and
// returns the first failure, or nil if the update may be applied.
func validate(entry *Entry, update *EntryUpdate, perm permission.Permission) error {
	// 1. Structural immutability.
	if update.Path != nil || update.EntryType != nil || update.DataType != nil || update.Description != nil {
		return brokererr.New(brokererr.PermissionDenied, "path/entry_type/data_type/description are immutable after registration")
	}

	// 2. Write capability.
	if update.Datapoint != nil {
		if err := checkWrite(perm, entry.GlobPath, CapabilityWriteDatapoint); err != nil {
			return err
		}
	}
	if update.ActuatorTarget != nil {
		if err := checkWrite(perm, entry.GlobPath, CapabilityWriteActuatorTarget); err != nil {
			return err
		}
	}

	// 3-5. Type match, min/max, allowed-set — applied to each non-nil
	// value-bearing field.
	if update.Datapoint != nil {
		if err := validateValue(entry, update.Datapoint.Value); err != nil {
			return err
		}
	}
	if update.ActuatorTarget != nil {
		if err := validateValue(entry, update.ActuatorTarget.Value); err != nil {
			return err
		}
	}

	// 6. Allowed-type update.
	if update.Allowed != nil {
		if update.Allowed.Kind != entry.DataType.ArrayOf() {
			return brokererr.New(brokererr.OutOfBoundsType, "allowed must be of type %s, got %s", entry.DataType.ArrayOf(), update.Allowed.Kind)
		}
	}

	return nil
}

func checkWrite(perm permission.Permission, path string, cap Capability) error {
	switch perm.Grant(path, capToPermissionField(cap)) {
	case permission.GrantAllowed:
		return nil
	case permission.GrantExpired:
		return brokererr.New(brokererr.PermissionExpired, "permission expired for %s", path)
	default:
		return brokererr.New(brokererr.PermissionDenied, "permission denied for %s", path)
	}
}

func capToPermissionField(c Capability) permission.Field {
	switch c {
	case CapabilityWriteDatapoint:
		return permission.FieldDatapointWrite
	case CapabilityWriteActuatorTarget:
		return permission.FieldActuatorTargetWrite
	default:
		return permission.FieldDatapointRead
	}
}

// ValidateActuationValue runs the same type/min-max/allowed checks
// (spec.md §4.2 steps 3-5) against a candidate actuation value, for reuse
// by the authorized façade's actuation routing (spec.md §4.7 step 2).
func ValidateActuationValue(entry *Entry, v Value) error {
	return validateValue(entry, v)
}

// validateValue runs steps 3-5 of spec.md §4.2 against a single candidate
// value: type match (with integer narrowing bounds), min/max, allowed-set.
// NotAvailable passes every check unconditionally.
func validateValue(entry *Entry, v Value) error {
	if v.Kind == KindNotAvailable {
		return nil
	}
	if err := checkTypeMatch(entry.DataType, v); err != nil {
		return err
	}
	if err := checkMinMax(entry, v); err != nil {
		return err
	}
	if err := checkAllowed(entry, v); err != nil {
		return err
	}
	return nil
}

// checkTypeMatch validates that v's variant matches dataType, allowing
// integer narrowing (e.g. Int32 -> Int8) provided the value fits the
// narrower range; arrays are validated element-by-element.
func checkTypeMatch(dataType Kind, v Value) error {
	if dataType.IsArray() {
		if v.Kind != dataType {
			return brokererr.New(brokererr.OutOfBoundsType, "expected %s, got %s", dataType, v.Kind)
		}
		for i := 0; i < v.ArrayLen(); i++ {
			if err := checkScalarFit(dataType.ScalarOf(), v.Element(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return checkScalarFit(dataType, v)
}

func checkScalarFit(dataType Kind, v Value) error {
	if v.Kind == dataType {
		return nil
	}
	if !v.Kind.isNumericScalar() || !dataType.isNumericScalar() {
		return brokererr.New(brokererr.OutOfBoundsType, "expected %s, got %s", dataType, v.Kind)
	}
	return fitsNarrowing(dataType, v)
}

// fitsNarrowing checks that a numeric value of a wider type fits within
// the representable range of the narrower target type.
func fitsNarrowing(target Kind, v Value) error {
	lo, hi, isFloatTarget := rangeOf(target)
	var x float64
	switch {
	case v.Kind.isSignedInt():
		x = float64(v.i)
	case v.Kind.isUnsignedInt():
		x = float64(v.u)
	case v.Kind == KindFloat:
		x = float64(v.f32)
	case v.Kind == KindDouble:
		x = v.f64
	}
	if isFloatTarget {
		return nil
	}
	if x < lo || x > hi {
		return brokererr.New(brokererr.OutOfBoundsType, "value %v does not fit target type %s", v, target)
	}
	return nil
}

func rangeOf(k Kind) (lo, hi float64, isFloat bool) {
	switch k {
	case KindInt8:
		return -128, 127, false
	case KindInt16:
		return -32768, 32767, false
	case KindInt32:
		return -2147483648, 2147483647, false
	case KindInt64:
		return -9223372036854775808, 9223372036854775807, false
	case KindUint8:
		return 0, 255, false
	case KindUint16:
		return 0, 65535, false
	case KindUint32:
		return 0, 4294967295, false
	case KindUint64:
		return 0, 18446744073709551615, false
	case KindFloat, KindDouble:
		return 0, 0, true
	default:
		return 0, 0, false
	}
}

// checkMinMax enforces entry.Min/Max against scalar or array-element
// numeric values. Boundary equality passes (<=, >=), per spec.md §8.
func checkMinMax(entry *Entry, v Value) error {
	if entry.Min == nil && entry.Max == nil {
		return nil
	}
	check := func(elem Value) error {
		if elem.Kind == KindNotAvailable {
			return nil
		}
		if entry.Min != nil {
			lt, err := elem.LessThan(*entry.Min)
			if err == nil && lt {
				return brokererr.New(brokererr.OutOfBoundsMinMax, "value %v below min %v", elem, *entry.Min)
			}
		}
		if entry.Max != nil {
			gt, err := elem.GreaterThan(*entry.Max)
			if err == nil && gt {
				return brokererr.New(brokererr.OutOfBoundsMinMax, "value %v above max %v", elem, *entry.Max)
			}
		}
		return nil
	}
	if v.Kind.IsArray() {
		for i := 0; i < v.ArrayLen(); i++ {
			if err := check(v.Element(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return check(v)
}

// checkAllowed enforces entry.Allowed membership for scalar or array-element
// values.
func checkAllowed(entry *Entry, v Value) error {
	if entry.Allowed == nil {
		return nil
	}
	check := func(elem Value) error {
		if elem.Kind == KindNotAvailable {
			return nil
		}
		n := entry.Allowed.ArrayLen()
		for i := 0; i < n; i++ {
			if entry.Allowed.Element(i).Equals(elem) {
				return nil
			}
		}
		return brokererr.New(brokererr.OutOfBoundsAllowed, "value %v not in allowed set", elem)
	}
	if v.Kind.IsArray() {
		for i := 0; i < v.ArrayLen(); i++ {
			if err := check(v.Element(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return check(v)
}
