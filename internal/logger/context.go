package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single call into
// the broker: one gRPC RPC (unary or streaming) or one WebSocket request,
// built by the adapter's auth layer once the caller's permission has been
// resolved and carried through to whatever handler code logs with the
// *Ctx functions below.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Operation string    // RPC full method or WebSocket action (Get, Set, Subscribe, Actuate, ...)
	Protocol  string    // Adapter protocol: kuksa.val.v1, kuksa.val.v2, websocket
	Caller    string    // Permission subject the request was authorized as
	ClientIP  string    // Client IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Operation: lc.Operation,
		Protocol:  lc.Protocol,
		Caller:    lc.Caller,
		ClientIP:  lc.ClientIP,
		StartTime: lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithProtocol returns a copy with the adapter protocol set
func (lc *LogContext) WithProtocol(protocol string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Protocol = protocol
	}
	return clone
}

// WithCaller returns a copy with the permission subject set
func (lc *LogContext) WithCaller(caller string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Caller = caller
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
