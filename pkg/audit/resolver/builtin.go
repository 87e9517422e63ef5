package resolver

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/trace"

	"chronicle/pkg/audit"
	"chronicle/pkg/requestcontext"
)

// Built-in resolvers. All read request-scoped values placed in the context
// by transport middleware and return nil when the value is absent, so
// records captured outside a request simply omit the field.

// URL resolves the originating request URL.
func URL(ctx context.Context, _ audit.Auditable) (any, error) {
	if u := requestcontext.URL(ctx); u != "" {
		return u, nil
	}
	return nil, nil
}

// IPAddress resolves the client network address.
func IPAddress(ctx context.Context, _ audit.Auditable) (any, error) {
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		return ip, nil
	}
	return nil, nil
}

// UserAgent resolves the raw client agent string.
func UserAgent(ctx context.Context, _ audit.Auditable) (any, error) {
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		return ua, nil
	}
	return nil, nil
}

// ClientName resolves a compact "browser/os" rendering of the client agent,
// handy for display without parsing the raw string again.
func ClientName(ctx context.Context, _ audit.Auditable) (any, error) {
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return nil, nil
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return nil, nil
	}
	if version != "" {
		name = name + " " + version
	}
	if os := ua.OS(); os != "" {
		name = name + " on " + os
	}
	return name, nil
}

// RequestID resolves the correlation id of the triggering request.
func RequestID(ctx context.Context, _ audit.Auditable) (any, error) {
	if id := requestcontext.RequestID(ctx); id != "" {
		return id, nil
	}
	return nil, nil
}

// TraceID resolves the active trace id so records correlate with spans.
func TraceID(ctx context.Context, _ audit.Auditable) (any, error) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return nil, nil
	}
	return sc.TraceID().String(), nil
}

// ContextActor resolves the actor previously placed in the context by
// authentication middleware.
func ContextActor(ctx context.Context) (string, string, error) {
	actor := requestcontext.CurrentActor(ctx)
	return actor.Type, actor.ID, nil
}

// JWTActor builds an actor resolver that derives the actor from the bearer
// token in the context. The subject claim becomes the actor id. A missing
// token is not attributable; a present but invalid token is a hard error.
func JWTActor(signingKey []byte, actorType string) ActorFunc {
	return func(ctx context.Context) (string, string, error) {
		raw := requestcontext.BearerToken(ctx)
		if raw == "" {
			return "", "", nil
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return signingKey, nil
		})
		if err != nil {
			return "", "", fmt.Errorf("parse bearer token: %w", err)
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			return "", "", fmt.Errorf("bearer token has no subject")
		}
		return actorType, subject, nil
	}
}

// Defaults returns a registry preloaded with the standard resolver set:
// url, ip_address, user_agent, client_name, request_id, trace_id, and the
// context-based actor resolver.
func Defaults() *Registry {
	r := NewRegistry()
	// Registration of package-level funcs cannot fail.
	_ = r.Register("url", URL)
	_ = r.Register("ip_address", IPAddress)
	_ = r.Register("user_agent", UserAgent)
	_ = r.Register("client_name", ClientName)
	_ = r.Register("request_id", RequestID)
	_ = r.Register("trace_id", TraceID)
	_ = r.SetActor(ContextActor)
	return r
}
