package shared

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/service/auth"
)

// ContextKey is the type of request context keys set by the API layer.
type ContextKey string

const (
	// ClaimsContextKey carries the verified *auth.Claims of the caller.
	ClaimsContextKey ContextKey = "claims"

	// TraceIDKey carries the request's trace ID.
	TraceIDKey ContextKey = "traceID"
)

// NewTraceID returns a random 32 character hex trace ID.
func NewTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// WithTraceID returns a copy of ctx carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithClaims returns a copy of ctx carrying the caller's claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// GetClaims returns the caller's claims, if the request was authenticated.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}
