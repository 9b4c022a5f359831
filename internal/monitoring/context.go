package monitoring

import "context"

type contextKey int

const requestIDKey contextKey = iota

// WithRequestID returns a context carrying the per-exchange request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or ""
// when the context does not carry one.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}
