// Package authn decodes and verifies the JWT bearer tokens the wire
// adapters extract from inbound requests into the core's permission
// object (spec.md §6: "the JWT/claims decoder behind the permission
// object" is an external collaborator). Verifies via RSA public key
// rather than an HMAC shared secret, since the broker only ever verifies
// tokens issued by an external identity provider, never signs its own.
package authn

import (
	"crypto/rsa"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sdv-broker/databroker/internal/permission"
)

// Verifier validates bearer tokens against a configured RSA public key.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier loads the PEM-encoded RSA public key at path.
func NewVerifier(publicKeyFile string) (*Verifier, error) {
	data, err := os.ReadFile(publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key: %w", err)
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
	}
	return &Verifier{key: key}, nil
}

// Verify parses and validates tokenString, returning the permission it
// grants. An expired or malformed token is rejected outright rather than
// producing a Permission the core would later find Expired — the wire
// adapter maps this to an unauthenticated status.
func (v *Verifier) Verify(tokenString string) (permission.Permission, error) {
	token, err := jwt.ParseWithClaims(tokenString, &permission.Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return permission.Permission{}, fmt.Errorf("invalid bearer token: %w", err)
	}
	claims, ok := token.Claims.(*permission.Claims)
	if !ok || !token.Valid {
		return permission.Permission{}, fmt.Errorf("invalid bearer token claims")
	}
	return permission.FromClaims(claims), nil
}
