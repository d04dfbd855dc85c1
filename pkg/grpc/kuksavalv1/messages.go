// Package kuksavalv1 implements the kuksa.val.v1 gRPC service variant
// (spec.md §6): path-addressed Get/Set, a query-language Subscribe, and
// GetServerInfo. Message shapes are grounded on the kuksa.val v1 VAL
// service (original_source/ databroker/src/grpc/kuksa_val_v1/val.rs) and
// carried over the JSON-backed codec documented in
// pkg/grpc/kuksaval/codec.go rather than protoc-generated stubs.
package kuksavalv1

import "github.com/sdv-broker/databroker/pkg/grpc/kuksaval"

// Value is re-exported so callers of this package never need to import
// pkg/grpc/kuksaval directly.
type Value = kuksaval.Value

// DataEntry is the wire shape of one VSS signal's current state.
type DataEntry struct {
	Path           string    `json:"path"`
	Value          *Value    `json:"value,omitempty"`
	Timestamp      string    `json:"timestamp,omitempty"`
	ActuatorTarget *Value    `json:"actuator_target,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

// Metadata describes a signal's static definition.
type Metadata struct {
	DataType    string `json:"data_type"`
	EntryType   string `json:"entry_type"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}

// EntryRequest names one path and the fields the caller wants populated
// in the response ("value", "actuator_target", "metadata").
type EntryRequest struct {
	Path   string   `json:"path"`
	Fields []string `json:"fields"`
}

// GetRequest batches several path reads into one call.
type GetRequest struct {
	Entries []EntryRequest `json:"entries"`
}

// DataEntryError reports one path's failure within a batch response.
type DataEntryError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetResponse is Get's result: successful entries plus any per-path
// errors (spec.md §7 "each per-id failure is accumulated ... without
// aborting the batch").
type GetResponse struct {
	Entries []DataEntry      `json:"entries"`
	Errors  []DataEntryError `json:"errors,omitempty"`
}

// EntryUpdate pairs a DataEntry with the subset of its fields the sender
// intends to apply (Set) or is reporting (Subscribe push).
type EntryUpdate struct {
	Entry  DataEntry `json:"entry"`
	Fields []string  `json:"fields"`
}

// SetRequest batches several path writes into one call.
type SetRequest struct {
	Updates []EntryUpdate `json:"updates"`
}

// SetResponse reports per-path write failures; empty Errors means every
// update in the batch succeeded.
type SetResponse struct {
	Errors []DataEntryError `json:"errors,omitempty"`
}

// SubscribeRequest carries a VSS data expression language query string
// (e.g. "SELECT Vehicle.Speed"), compiled the same way a query
// subscription is (spec.md §4.6).
type SubscribeRequest struct {
	Query string `json:"query"`
}

// SubscribeResponse is one frame pushed to a Subscribe stream.
type SubscribeResponse struct {
	Updates []EntryUpdate `json:"updates"`
}

// MetadataRequest selects signals by a VSS pattern (spec.md §4.4); an
// empty Path matches every registered signal.
type MetadataRequest struct {
	Path string `json:"path"`
}

// MetadataResponse is GetMetadata's result.
type MetadataResponse struct {
	Entries []DataEntry `json:"entries"`
}

// ServerInfoRequest is empty; present so the generated-style method
// signature still takes a request message.
type ServerInfoRequest struct{}

// ServerInfoResponse identifies the running broker.
type ServerInfoResponse struct {
	Name    string `json:"name"`
	Org     string `json:"org"`
	Version string `json:"version"`
}
