// Package brokererr defines the error taxonomies shared by the signal
// registry, the subscription engine, and the authorized façade. This is a
// leaf package with no internal imports, so it can be imported by every
// layer of the broker without causing import cycles.
//
// Import graph: brokererr <- broker <- subscription <- facade
package brokererr

import "fmt"

// Code identifies the kind of failure a broker operation produced. A single
// Code enum is shared across the registration, read, update, actuation, and
// subscription taxonomies; callers extract it with CodeOf below.
type Code int

const (
	// Unspecified is the zero value and never returned by the broker.
	Unspecified Code = iota

	// NotFound indicates the requested signal id or path has no entry.
	NotFound
	// PermissionDenied indicates the caller's permission object does not
	// grant the requested capability.
	PermissionDenied
	// PermissionExpired indicates the caller's permission object granted
	// the capability once but has since expired.
	PermissionExpired
	// WrongType indicates an operation (typically actuation) was attempted
	// against an entry whose entry_type does not support it.
	WrongType
	// OutOfBoundsType indicates a value's variant does not match the
	// entry's data_type, or a narrowing conversion does not fit.
	OutOfBoundsType
	// OutOfBoundsMinMax indicates a numeric value falls outside the
	// entry's configured min/max bounds.
	OutOfBoundsMinMax
	// OutOfBoundsAllowed indicates a value is not a member of the entry's
	// allowed-value set.
	OutOfBoundsAllowed
	// UnsupportedType indicates the entry's data_type itself is not a
	// supported variant (should only occur through programmer error).
	UnsupportedType
	// ValidationError is a catch-all structural validation failure not
	// covered by the more specific codes (e.g. a malformed path pattern).
	ValidationError
	// ProviderNotAvailable indicates no actuation subscription currently
	// owns the target signal, or the owning provider reported itself
	// unavailable.
	ProviderNotAvailable
	// ProviderAlreadyExists indicates an actuation subscription attempted
	// to claim a signal id already owned by an available provider.
	ProviderAlreadyExists
	// TransmissionFailure indicates the owning provider's actuate() call
	// failed or its channel could not accept the batch.
	TransmissionFailure
	// InvalidInput indicates a subscription request was structurally
	// invalid (e.g. an empty entry set).
	InvalidInput
	// InvalidBufferSize indicates a subscription buffer capacity request
	// exceeded the broker's hard upper bound.
	InvalidBufferSize
	// InternalError indicates an unexpected internal failure.
	InternalError
	// CompilationError indicates a query subscription's selector string
	// failed to compile against the registry's current schema.
	CompilationError
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case PermissionExpired:
		return "permission_expired"
	case WrongType:
		return "wrong_type"
	case OutOfBoundsType:
		return "out_of_bounds_type"
	case OutOfBoundsMinMax:
		return "out_of_bounds_min_max"
	case OutOfBoundsAllowed:
		return "out_of_bounds_allowed"
	case UnsupportedType:
		return "unsupported_type"
	case ValidationError:
		return "validation_error"
	case ProviderNotAvailable:
		return "provider_not_available"
	case ProviderAlreadyExists:
		return "provider_already_exists"
	case TransmissionFailure:
		return "transmission_failure"
	case InvalidInput:
		return "invalid_input"
	case InvalidBufferSize:
		return "invalid_buffer_size"
	case InternalError:
		return "internal_error"
	case CompilationError:
		return "compilation_error"
	default:
		return "unspecified"
	}
}

// Error is the error type returned by every broker operation. It carries a
// Code for programmatic dispatch (status-code mapping at the adapter layer,
// per spec) plus a human-readable message and optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that carries an underlying cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error. A nil err
// yields Unspecified; any other error yields InternalError.
func CodeOf(err error) Code {
	var be *Error
	if err == nil {
		return Unspecified
	}
	if asError(err, &be) {
		return be.Code
	}
	return InternalError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
