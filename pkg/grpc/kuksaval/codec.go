package kuksaval

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec substitutes for the protobuf wire codec grpc-go registers by
// default under the name "proto". No protoc toolchain is available to
// generate real protobuf message types for this pack (see DESIGN.md), so
// this codec marshals the hand-written message structs in kuksavalv1 and
// kuksavalv2 as JSON instead, registered under the same name so the
// standard google.golang.org/grpc transport, server, and client code
// paths pick it up without modification.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return "proto" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
