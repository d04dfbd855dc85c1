package kuksaval

import (
	"google.golang.org/grpc"

	"github.com/sdv-broker/databroker/internal/authn"
	"github.com/sdv-broker/databroker/internal/config"
)

// BuildVerifier constructs a token verifier from cfg, or returns nil (no
// verifier) when authentication is disabled — every caller is then
// granted permission.AllowAll, the local-development posture documented
// on config.AuthConfig.
func BuildVerifier(cfg config.AuthConfig) (*authn.Verifier, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return authn.NewVerifier(cfg.JWTPublicKeyFile)
}

// ServerOptions builds the grpc.ServerOption slice that binds the auth
// interceptors for a server. grpc-go wires interceptors in at
// grpc.NewServer construction time rather than per RegisterService, so
// callers must build these before creating the server and pass them to
// grpc.NewServer directly.
func ServerOptions(cfg config.AuthConfig) ([]grpc.ServerOption, error) {
	v, err := BuildVerifier(cfg)
	if err != nil {
		return nil, err
	}
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(v)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(v)),
	}, nil
}
