// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by context resolvers. By keeping this
// package free of net/http dependencies, resolvers can import only what they need
// without pulling in HTTP-related code.
//
// Usage in resolvers (read values):
//
//	ip := requestcontext.ClientIP(ctx)
//	url := requestcontext.URL(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithURL(ctx, r.URL.String())
//	ctx = requestcontext.WithClientMetadata(ctx, ip, userAgent)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithActor(ctx, "users", "42")
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	urlKey         struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	actorKey       struct{}
	bearerTokenKey struct{}
	requestTimeKey struct{}
)

// Actor identifies the responsible party for an audited change. Both fields
// may be empty when the change was not attributable (system jobs, migrations).
type Actor struct {
	Type string
	ID   string
}

// URL retrieves the originating request URL from the context.
func URL(ctx context.Context) string {
	if u, ok := ctx.Value(urlKey{}).(string); ok {
		return u
	}
	return ""
}

// WithURL injects the originating request URL into a context.
func WithURL(ctx context.Context, url string) context.Context {
	return context.WithValue(ctx, urlKey{}, url)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(userAgentKey{}).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// CurrentActor retrieves the acting user from the context.
// Returns a zero Actor if none was set.
func CurrentActor(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}

// WithActor injects the acting user into the context.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, Actor{Type: actorType, ID: actorID})
}

// BearerToken retrieves the raw bearer token from the context.
func BearerToken(ctx context.Context) string {
	if tok, ok := ctx.Value(bearerTokenKey{}).(string); ok {
		return tok
	}
	return ""
}

// WithBearerToken injects a raw bearer token into the context for
// token-derived actor resolution.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenKey{}, token)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts like workers, CLI, tests.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for tests and for
// workers that need consistent time within a batch operation.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
