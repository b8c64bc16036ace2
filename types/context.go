package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID  contextKey = "request_id"
	keyTraceID    contextKey = "trace_id"
	keyTransferID contextKey = "transfer_id"
)

// WithRequestID adds request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithTransferID adds transfer ID to context.
func WithTransferID(ctx context.Context, transferID string) context.Context {
	return context.WithValue(ctx, keyTransferID, transferID)
}

// TransferID extracts transfer ID from context.
func TransferID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTransferID).(string)
	return v, ok && v != ""
}
