package internal

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey    contextKey = "requestID"
	requestIDHeader            = "X-Request-Id"
)

// GenerateRequestID creates a unique request identifier.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request ID to the context.
// If the context already has a request ID, it returns the context unchanged.
func WithRequestID(ctx context.Context) context.Context {
	if _, ok := ctx.Value(requestIDKey).(string); ok {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, GenerateRequestID())
}

// RequestContext keeps the id a proxy sent in X-Request-Id, or makes a new one.
func RequestContext(r *http.Request) context.Context {
	if id := r.Header.Get(requestIDHeader); id != "" {
		return context.WithValue(r.Context(), requestIDKey, id)
	}
	return WithRequestID(r.Context())
}

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}
