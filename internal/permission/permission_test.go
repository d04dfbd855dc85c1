package permission

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/pathglob"
)

func TestAllowAllGrantsEveryFieldAndNeverExpires(t *testing.T) {
	p := AllowAll("admin")
	for _, f := range []Field{FieldDatapointRead, FieldDatapointWrite, FieldActuatorTargetRead, FieldActuatorTargetWrite, FieldMetadataRead} {
		assert.Equal(t, GrantAllowed, p.Grant("Vehicle/Cabin/Sunroof/Position", f))
	}
	assert.False(t, p.Expired())
}

func TestGrantDistinguishesDeniedFromExpired(t *testing.T) {
	scoped := Permission{
		Subject: "writer",
		Scopes: []Scope{
			{Pattern: pathglob.MustCompile("Vehicle/Speed"), Field: FieldDatapointWrite},
		},
	}

	t.Run("MatchingScopeWithNoExpiryIsAllowed", func(t *testing.T) {
		assert.Equal(t, GrantAllowed, scoped.Grant("Vehicle/Speed", FieldDatapointWrite))
	})

	t.Run("NonMatchingFieldOnSamePathIsDenied", func(t *testing.T) {
		assert.Equal(t, GrantDenied, scoped.Grant("Vehicle/Speed", FieldDatapointRead))
	})

	t.Run("NonMatchingPathIsDenied", func(t *testing.T) {
		assert.Equal(t, GrantDenied, scoped.Grant("Vehicle/Acceleration", FieldDatapointWrite))
	})

	t.Run("ExpiredScopeYieldsGrantExpired", func(t *testing.T) {
		expired := scoped
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		assert.Equal(t, GrantExpired, expired.Grant("Vehicle/Speed", FieldDatapointWrite))
	})

	t.Run("FutureExpiryStillAllows", func(t *testing.T) {
		future := scoped
		future.ExpiresAt = time.Now().Add(time.Hour)
		assert.Equal(t, GrantAllowed, future.Grant("Vehicle/Speed", FieldDatapointWrite))
	})
}

func TestExpired(t *testing.T) {
	t.Run("NoExpiryNeverExpires", func(t *testing.T) {
		p := Permission{noExpiry: true}
		assert.False(t, p.Expired())
	})
	t.Run("ZeroExpiresAtNeverExpires", func(t *testing.T) {
		p := Permission{}
		assert.False(t, p.Expired())
	})
	t.Run("PastExpiryHasExpired", func(t *testing.T) {
		p := Permission{ExpiresAt: time.Now().Add(-time.Second)}
		assert.True(t, p.Expired())
	})
	t.Run("FutureExpiryHasNotExpired", func(t *testing.T) {
		p := Permission{ExpiresAt: time.Now().Add(time.Second)}
		assert.False(t, p.Expired())
	})
}

func TestFromClaimsCompilesScopesAndSkipsMalformedOnes(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
		Subject:          "svc-account",
		Scopes: []ScopeClaim{
			{Path: "Vehicle.Speed", Field: "datapoint:read"},
			{Path: "Vehicle.Cabin.**", Field: "actuator_target:write"},
			{Path: "Vehicle..BadPath", Field: "datapoint:read"},
			{Path: "Vehicle.Speed", Field: "not-a-real-field"},
		},
	}

	p := FromClaims(claims)
	assert.Equal(t, "svc-account", p.Subject)
	require.Len(t, p.Scopes, 2)
	assert.Equal(t, GrantAllowed, p.Grant("Vehicle/Speed", FieldDatapointRead))
	assert.Equal(t, GrantAllowed, p.Grant("Vehicle/Cabin/Sunroof/Position", FieldActuatorTargetWrite))
	assert.True(t, p.ExpiresAt.Equal(exp.Time))
}

func TestFromClaimsWithNoExpiresAtLeavesZeroValue(t *testing.T) {
	claims := &Claims{Subject: "svc-account"}
	p := FromClaims(claims)
	assert.True(t, p.ExpiresAt.IsZero())
}
