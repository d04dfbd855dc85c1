// Package permission implements the caller-bound permission object that
// every broker operation consults before touching an entry.
//
// The shape is a protocol-neutral identity decoded from a signed JWT
// bearer token, reduced to the grants the VSS broker actually cares
// about — per-path read/write scopes on signal datapoints and actuator
// targets — plus an expiry the broker re-checks on every access rather
// than only at connection time.
package permission

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sdv-broker/databroker/internal/pathglob"
)

// Field identifies one grantable capability.
type Field int

const (
	FieldDatapointRead Field = iota
	FieldDatapointWrite
	FieldActuatorTargetRead
	FieldActuatorTargetWrite
	FieldMetadataRead
)

// Grant is the outcome of checking a Field against a Permission.
type Grant int

const (
	GrantDenied Grant = iota
	GrantAllowed
	GrantExpired
)

// Scope grants a Field over every path matching Pattern.
type Scope struct {
	Pattern *pathglob.Pattern
	Field   Field
}

// Permission is bound to a single caller and consulted by every registry
// and subscription-engine operation that caller performs. It is cheap to
// copy and intended to be constructed once per inbound request/stream and
// threaded through the authorized façade.
type Permission struct {
	Subject   string
	Scopes    []Scope
	ExpiresAt time.Time
	noExpiry  bool
}

// AllowAll returns a Permission that grants every field on every path and
// never expires. Used by in-process callers that are not mediated by a
// wire adapter (the subscription engine's and façade's internal registry
// reads, unit tests) and by the adapters when authentication is disabled.
func AllowAll(subject string) Permission {
	return Permission{
		Subject: subject,
		Scopes: []Scope{
			{Pattern: pathglob.MustCompile("**"), Field: FieldDatapointRead},
			{Pattern: pathglob.MustCompile("**"), Field: FieldDatapointWrite},
			{Pattern: pathglob.MustCompile("**"), Field: FieldActuatorTargetRead},
			{Pattern: pathglob.MustCompile("**"), Field: FieldActuatorTargetWrite},
			{Pattern: pathglob.MustCompile("**"), Field: FieldMetadataRead},
		},
		noExpiry: true,
	}
}

// Grant reports whether the permission allows Field on globPath (a
// '/'-separated canonical entry path), distinguishing an absent scope
// (GrantDenied) from an expired one (GrantExpired) so the validator can
// map each to the correct error code.
func (p Permission) Grant(globPath string, field Field) Grant {
	matched := false
	for _, s := range p.Scopes {
		if s.Field != field {
			continue
		}
		if s.Pattern.IsMatch(globPath) {
			matched = true
			break
		}
	}
	if !matched {
		return GrantDenied
	}
	if !p.noExpiry && !p.ExpiresAt.IsZero() && time.Now().After(p.ExpiresAt) {
		return GrantExpired
	}
	return GrantAllowed
}

// Expired reports whether the permission's expiry has passed. Used by the
// subscription engine's housekeeping pass to evict stale subscriptions
// independent of any particular field check.
func (p Permission) Expired() bool {
	if p.noExpiry || p.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(p.ExpiresAt)
}

// Claims are the JWT claims the broker expects from its configured
// identity provider (spec.md §6: "the JWT/claims decoder behind the
// permission object" is an external collaborator; this is the shape it
// must produce).
type Claims struct {
	jwt.RegisteredClaims

	Subject string      `json:"sub"`
	Scopes  []ScopeClaim `json:"scopes"`
}

// ScopeClaim is the wire representation of a Scope before its pattern is
// compiled.
type ScopeClaim struct {
	Path  string `json:"path"`
	Field string `json:"field"`
}

// FromClaims builds a Permission from decoded JWT claims, compiling each
// scope's path pattern. A malformed pattern is skipped rather than
// failing the whole permission (an adapter-layer decision; the core never
// sees unparseable claims since FromClaims is called by the adapter, not
// the façade).
func FromClaims(c *Claims) Permission {
	p := Permission{Subject: c.Subject}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	for _, sc := range c.Scopes {
		pat, err := pathglob.Compile(sc.Path)
		if err != nil {
			continue
		}
		field, ok := parseField(sc.Field)
		if !ok {
			continue
		}
		p.Scopes = append(p.Scopes, Scope{Pattern: pat, Field: field})
	}
	return p
}

func parseField(s string) (Field, bool) {
	switch s {
	case "datapoint:read":
		return FieldDatapointRead, true
	case "datapoint:write":
		return FieldDatapointWrite, true
	case "actuator_target:read":
		return FieldActuatorTargetRead, true
	case "actuator_target:write":
		return FieldActuatorTargetWrite, true
	case "metadata:read":
		return FieldMetadataRead, true
	default:
		return FieldDatapointRead, false
	}
}
