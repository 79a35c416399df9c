// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//	ctx = requestcontext.WithClientIP(ctx, ip)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Context key types (unexported for encapsulation).
type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	principalKey   struct{}
)

// -----------------------------------------------------------------------------
// Request correlation
// -----------------------------------------------------------------------------

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request correlation id, generating one when the
// context carries none so audit enrichment always has a value.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// -----------------------------------------------------------------------------
// Request-scoped time
// -----------------------------------------------------------------------------

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Now retrieves the request-scoped time from context, falling back to the
// wall clock for non-request callers (workers, tests that don't pin time).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// -----------------------------------------------------------------------------
// Client metadata
// -----------------------------------------------------------------------------

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, ua)
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}

// WithPrincipal stores the opaque principal reference of the authenticated
// caller. Never store a raw identifier here.
func WithPrincipal(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, principalKey{}, ref)
}

func Principal(ctx context.Context) string {
	ref, _ := ctx.Value(principalKey{}).(string)
	return ref
}

// -----------------------------------------------------------------------------
// Detaching
// -----------------------------------------------------------------------------

// Detach copies the request-scoped values onto a fresh background
// context. Background work started from a request keeps the request's
// metadata without inheriting its cancellation or deadline.
func Detach(ctx context.Context) context.Context {
	detached := context.Background()
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		detached = WithRequestID(detached, id)
	}
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		detached = WithTime(detached, t)
	}
	if ip := ClientIP(ctx); ip != "" {
		detached = WithClientIP(detached, ip)
	}
	if ua := UserAgent(ctx); ua != "" {
		detached = WithUserAgent(detached, ua)
	}
	if ref := Principal(ctx); ref != "" {
		detached = WithPrincipal(detached, ref)
	}
	return detached
}
