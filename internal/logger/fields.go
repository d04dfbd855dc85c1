package logger

import "log/slog"

// Standard field keys for structured logging across the broker's
// adapters (kuksa.val.v1, kuksa.val.v2, the WebSocket adapter) and its
// core (the subscription engine, the authorized façade). Use these keys
// consistently across all log statements for log aggregation and
// querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Request identification (protocol-agnostic)
	// ========================================================================
	KeyOperation = "operation" // RPC method or WebSocket action: Get, Set, Subscribe, Actuate, ...
	KeyProtocol  = "protocol"  // Adapter protocol: kuksa.val.v1, kuksa.val.v2, websocket
	KeyCaller    = "caller"    // Permission subject (JWT sub claim, or an anonymous placeholder)
	KeyClientIP  = "client_ip" // Client IP address (without port)

	// ========================================================================
	// Signal identification
	// ========================================================================
	KeyPath     = "path"      // VSS signal path (dot form)
	KeySignalID = "signal_id" // Registry-assigned entry id

	// ========================================================================
	// Subscription & provider identification
	// ========================================================================
	KeySubscriptionID = "subscription_id" // Change/query/actuation subscription uuid

	// ========================================================================
	// Operation outcome
	// ========================================================================
	KeyStatus    = "status"     // gRPC status code of the completed call
	KeyStatusMsg = "status_msg" // Human-readable status message
	KeyErrorCode = "error_code" // Broker error taxonomy code (spec.md §7)
	KeyError     = "error"      // Error message

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds

	// ========================================================================
	// Startup & server lifecycle
	// ========================================================================
	KeyVersion      = "version"       // Server build version
	KeyConfigSource = "config_source" // Where the active configuration was loaded from
	KeyAddress      = "address"       // Listener bind address
	KeyEndpoint     = "endpoint"      // Telemetry/profiling collector endpoint
	KeySampleRate   = "sample_rate"   // Trace sampling rate
	KeyProfileTypes = "profile_types" // Continuous-profiling profile types collected
	KeyCount        = "count"         // Generic count (e.g. catalogue entries loaded)
	KeyFiles        = "files"         // Number of source files behind a Count
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the RPC method or WebSocket action
// being served.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Protocol returns a slog.Attr for the adapter protocol handling the
// request.
func Protocol(proto string) slog.Attr {
	return slog.String(KeyProtocol, proto)
}

// Caller returns a slog.Attr for the permission subject the request was
// authorized as.
func Caller(subject string) slog.Attr {
	return slog.String(KeyCaller, subject)
}

// ClientIP returns a slog.Attr for the client's IP address.
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// Path returns a slog.Attr for a VSS signal path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// SignalID returns a slog.Attr for a registry entry id.
func SignalID(id uint64) slog.Attr {
	return slog.Uint64(KeySignalID, id)
}

// SubscriptionID returns a slog.Attr for a subscription uuid.
func SubscriptionID(id string) slog.Attr {
	return slog.String(KeySubscriptionID, id)
}

// Status returns a slog.Attr for the gRPC status code a call completed
// with.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// StatusMsg returns a slog.Attr for a human-readable status message.
func StatusMsg(msg string) slog.Attr {
	return slog.String(KeyStatusMsg, msg)
}

// ErrorCode returns a slog.Attr for a broker error taxonomy code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Version returns a slog.Attr for the server's build version.
func Version(v string) slog.Attr {
	return slog.String(KeyVersion, v)
}

// ConfigSource returns a slog.Attr describing where configuration was
// loaded from.
func ConfigSource(src string) slog.Attr {
	return slog.String(KeyConfigSource, src)
}

// Address returns a slog.Attr for a listener bind address.
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}

// Endpoint returns a slog.Attr for a telemetry or profiling collector
// endpoint.
func Endpoint(endpoint string) slog.Attr {
	return slog.String(KeyEndpoint, endpoint)
}

// SampleRate returns a slog.Attr for a trace sampling rate.
func SampleRate(rate float64) slog.Attr {
	return slog.Float64(KeySampleRate, rate)
}

// ProfileTypes returns a slog.Attr for the continuous-profiling profile
// types being collected.
func ProfileTypes(types []string) slog.Attr {
	return slog.Any(KeyProfileTypes, types)
}

// Count returns a slog.Attr for a generic count, such as the number of
// catalogue entries loaded at startup.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Files returns a slog.Attr for the number of source files behind a
// Count (e.g. VSS catalogue files).
func Files(n int) slog.Attr {
	return slog.Int(KeyFiles, n)
}
