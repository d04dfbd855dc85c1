package kuksaval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sdv-broker/databroker/internal/brokererr"
)

// TestToStatusMapsEveryCode pins spec.md §6's status-code mapping table.
func TestToStatusMapsEveryCode(t *testing.T) {
	cases := []struct {
		code brokererr.Code
		want codes.Code
	}{
		{brokererr.NotFound, codes.NotFound},
		{brokererr.PermissionDenied, codes.PermissionDenied},
		{brokererr.PermissionExpired, codes.Unauthenticated},
		{brokererr.WrongType, codes.InvalidArgument},
		{brokererr.OutOfBoundsType, codes.InvalidArgument},
		{brokererr.OutOfBoundsMinMax, codes.InvalidArgument},
		{brokererr.OutOfBoundsAllowed, codes.InvalidArgument},
		{brokererr.UnsupportedType, codes.InvalidArgument},
		{brokererr.ValidationError, codes.InvalidArgument},
		{brokererr.InvalidInput, codes.InvalidArgument},
		{brokererr.InvalidBufferSize, codes.InvalidArgument},
		{brokererr.CompilationError, codes.InvalidArgument},
		{brokererr.ProviderNotAvailable, codes.Unavailable},
		{brokererr.TransmissionFailure, codes.Unavailable},
		{brokererr.ProviderAlreadyExists, codes.AlreadyExists},
		{brokererr.InternalError, codes.Internal},
	}

	for _, c := range cases {
		t.Run(c.code.String(), func(t *testing.T) {
			err := brokererr.New(c.code, "boom")
			got := status.Convert(ToStatus(err)).Code()
			assert.Equal(t, c.want, got)
		})
	}
}

func TestToStatusNilIsNil(t *testing.T) {
	assert.NoError(t, ToStatus(nil))
}
