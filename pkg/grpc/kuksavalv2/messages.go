// Package kuksavalv2 implements the kuksa.val.v2 gRPC service variant
// (spec.md §6, SPEC_FULL.md §4 "supplemented features"): id-addressed
// value reads, a direct unary actuation RPC alongside the provider-stream
// actuation path, and a dedicated ListMetadata RPC. Message shapes are
// grounded on the kuksa.val v2 VAL service (original_source/
// databroker/src/grpc/kuksa_val_v2/val.rs) and, like kuksavalv1, carried
// over the JSON codec in pkg/grpc/kuksaval/codec.go rather than
// protoc-generated stubs (see DESIGN.md).
package kuksavalv2

import "github.com/sdv-broker/databroker/pkg/grpc/kuksaval"

// Value is re-exported so callers never need to import pkg/grpc/kuksaval
// directly.
type Value = kuksaval.Value

// Datapoint pairs a Value with its observation timestamp.
type Datapoint struct {
	Value     *Value `json:"value,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// GetValueRequest names a single signal by path.
type GetValueRequest struct {
	Path string `json:"path"`
}

// GetValueResponse is GetValue's result.
type GetValueResponse struct {
	Datapoint *Datapoint `json:"data_point,omitempty"`
}

// GetValuesRequest batches several path reads into one call.
type GetValuesRequest struct {
	Paths []string `json:"paths"`
}

// DatapointError reports one path's failure within a batch response.
type DatapointError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetValuesResponse is GetValues's result: one Datapoint per requested
// path (nil for a path that failed), plus the associated errors.
type GetValuesResponse struct {
	Datapoints []*Datapoint     `json:"data_points"`
	Errors     []DatapointError `json:"errors,omitempty"`
}

// Metadata describes a signal's static definition.
type Metadata struct {
	ID          uint32 `json:"id"`
	Path        string `json:"path"`
	DataType    string `json:"data_type"`
	EntryType   string `json:"entry_type"`
	ChangeType  string `json:"change_type"`
	Description string `json:"description"`
	Unit        string `json:"unit,omitempty"`
}

// ListMetadataRequest selects signals by a VSS pattern (spec.md §4.4);
// an empty Root matches every registered signal.
type ListMetadataRequest struct {
	Root string `json:"root"`
}

// ListMetadataResponse is ListMetadata's result.
type ListMetadataResponse struct {
	Metadata []Metadata `json:"metadata"`
}

// ActuateRequest is a single direct actuation call (the unary Actuate
// RPC, routed through the same §4.7 path a provider-stream batch goes
// through).
type ActuateRequest struct {
	Path  string `json:"path"`
	Value *Value `json:"value"`
}

// ActuateResponse is empty on success; failures surface as a gRPC status.
type ActuateResponse struct{}

// BatchActuateRequest groups several actuation changes into one call,
// routed through the façade as a single batch per spec.md §4.7 step 4
// ("group changes by provider and invoke actuate(batch) once").
type BatchActuateRequest struct {
	Actuate []ActuateRequest `json:"actuate"`
}

// BatchActuateResponse is empty on success.
type BatchActuateResponse struct{}

// SubscribeRequest names the signal paths a change-subscription stream
// should deliver; Paths must be non-empty (spec.md §8 "A subscription
// with an empty entry set fails with invalid-input").
type SubscribeRequest struct {
	Paths []string `json:"paths"`
}

// SubscribeResponse is one frame of a Subscribe stream: the current
// datapoint of every path in the originating request that this batch's
// notification round touched.
type SubscribeResponse struct {
	Entries map[string]*Datapoint `json:"entries"`
}

// ServerInfoRequest is empty; present so the method signature still takes
// a request message.
type ServerInfoRequest struct{}

// ServerInfoResponse identifies the running broker.
type ServerInfoResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// ProviderStreamRequest is one message a provider sends on the
// OpenProviderStream bidirectional RPC: exactly one of ProvideActuation
// (claim ownership of a set of actuator ids) or PublishValues (report new
// sensor/attribute readings) is set.
type ProviderStreamRequest struct {
	ProvideActuation *ProvideActuationRequest `json:"provide_actuation,omitempty"`
	PublishValues    *PublishValuesRequest     `json:"publish_values,omitempty"`
}

// ProvideActuationRequest claims ownership of a set of actuator paths
// (spec.md §4.6 "Registering an actuation subscription").
type ProvideActuationRequest struct {
	ActuatorPaths []string `json:"actuator_paths"`
}

// PublishValuesRequest is a provider's batch of new sensor/attribute
// values, applied through the same façade.UpdateEntries path a Set RPC
// uses.
type PublishValuesRequest struct {
	Entries map[string]*Datapoint `json:"entries"`
}

// ProviderStreamResponse is one message the broker sends back on the
// OpenProviderStream RPC: either confirmation that a ProvideActuation
// claim succeeded, a batch of actuation changes to carry out, or the
// per-path status of a PublishValues batch.
type ProviderStreamResponse struct {
	ProvideActuationStatus *StatusResponse        `json:"provide_actuation_status,omitempty"`
	BatchActuateStream     *BatchActuateStreamMsg  `json:"batch_actuate_stream,omitempty"`
	PublishValuesStatus    *PublishValuesStatusMsg `json:"publish_values_status,omitempty"`
}

// StatusResponse reports whether a preceding request succeeded.
type StatusResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// BatchActuateStreamMsg carries one actuation batch routed to this
// provider (spec.md §6 "Broker-to-provider: a batch of ActuationChange").
type BatchActuateStreamMsg struct {
	Actuate []ActuateRequest `json:"actuate"`
}

// PublishValuesStatusMsg reports the per-path outcome of a PublishValues
// batch (spec.md §7 "each per-id failure is accumulated ... without
// aborting the batch").
type PublishValuesStatusMsg struct {
	Errors []DatapointError `json:"errors,omitempty"`
}
