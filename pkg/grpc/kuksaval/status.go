package kuksaval

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sdv-broker/databroker/internal/brokererr"
)

// ToStatus maps a brokererr.Code to the gRPC status code the adapter
// contract returns for it (spec.md §7's error taxonomies, projected onto
// the standard gRPC code space).
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch brokererr.CodeOf(err) {
	case brokererr.NotFound:
		code = codes.NotFound
	case brokererr.PermissionDenied:
		code = codes.PermissionDenied
	case brokererr.PermissionExpired:
		code = codes.Unauthenticated
	case brokererr.WrongType, brokererr.OutOfBoundsType, brokererr.OutOfBoundsMinMax,
		brokererr.OutOfBoundsAllowed, brokererr.UnsupportedType, brokererr.ValidationError,
		brokererr.InvalidInput, brokererr.InvalidBufferSize, brokererr.CompilationError:
		code = codes.InvalidArgument
	case brokererr.ProviderNotAvailable, brokererr.TransmissionFailure:
		code = codes.Unavailable
	case brokererr.ProviderAlreadyExists:
		code = codes.AlreadyExists
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
