// Package databrokerclient is a thin gRPC client for databrokerctl,
// addressing the kuksa.val.v2 VAL service over the same JSON-backed
// "proto" codec the server registers (pkg/grpc/kuksaval/codec.go), so no
// protoc-generated stub is needed on either side: one long-lived
// connection, a bearer token attached per call, one method per server
// operation databrokerctl uses (BatchActuate and OpenProviderStream have
// no client method).
package databrokerclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/sdv-broker/databroker/pkg/grpc/kuksavalv2"
)

// Client is a connected databroker client bound to one server address and
// bearer token.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial opens a connection to address. tlsEnabled selects plaintext or TLS
// transport credentials; the broker's own TLSConfig governs the server
// side of this choice (internal/config.TLSConfig).
func Dial(address, token string, tlsEnabled bool) (*Client, error) {
	var creds credentials.TransportCredentials
	if tlsEnabled {
		creds = credentials.NewTLS(&tls.Config{})
	} else {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return &Client{conn: conn, token: token}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

const serviceName = "/kuksa.val.v2.VAL/"

// GetValue reads a single signal's current datapoint.
func (c *Client) GetValue(ctx context.Context, path string) (*kuksavalv2.GetValueResponse, error) {
	resp := new(kuksavalv2.GetValueResponse)
	req := &kuksavalv2.GetValueRequest{Path: path}
	if err := c.conn.Invoke(c.outgoing(ctx), serviceName+"GetValue", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetValues batches several path reads into one call.
func (c *Client) GetValues(ctx context.Context, paths []string) (*kuksavalv2.GetValuesResponse, error) {
	resp := new(kuksavalv2.GetValuesResponse)
	req := &kuksavalv2.GetValuesRequest{Paths: paths}
	if err := c.conn.Invoke(c.outgoing(ctx), serviceName+"GetValues", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListMetadata lists the static definition of every signal matching root
// (a VSS pattern; "" matches everything).
func (c *Client) ListMetadata(ctx context.Context, root string) (*kuksavalv2.ListMetadataResponse, error) {
	resp := new(kuksavalv2.ListMetadataResponse)
	req := &kuksavalv2.ListMetadataRequest{Root: root}
	if err := c.conn.Invoke(c.outgoing(ctx), serviceName+"ListMetadata", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Actuate requests a single actuator target change.
func (c *Client) Actuate(ctx context.Context, path string, value *kuksavalv2.Value) error {
	req := &kuksavalv2.ActuateRequest{Path: path, Value: value}
	return c.conn.Invoke(c.outgoing(ctx), serviceName+"Actuate", req, new(kuksavalv2.ActuateResponse))
}

// GetServerInfo identifies the connected broker.
func (c *Client) GetServerInfo(ctx context.Context) (*kuksavalv2.ServerInfoResponse, error) {
	resp := new(kuksavalv2.ServerInfoResponse)
	req := new(kuksavalv2.ServerInfoRequest)
	if err := c.conn.Invoke(c.outgoing(ctx), serviceName+"GetServerInfo", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Subscribe opens a server-streaming subscription over paths, invoking fn
// once per notification frame until ctx is cancelled or the stream ends.
func (c *Client) Subscribe(ctx context.Context, paths []string, fn func(*kuksavalv2.SubscribeResponse) error) error {
	stream, err := c.conn.NewStream(c.outgoing(ctx), &grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}, serviceName+"Subscribe")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&kuksavalv2.SubscribeRequest{Paths: paths}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		resp := new(kuksavalv2.SubscribeResponse)
		if err := stream.RecvMsg(resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}
