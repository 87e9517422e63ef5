// Package resolver supplies the named context and actor resolvers invoked
// while a record is assembled. Resolvers are an explicit registry validated
// at registration time; a missing or nil binding fails at startup rather
// than at first capture.
package resolver

import (
	"context"
	"fmt"

	"chronicle/pkg/audit"
)

// Func produces one context value for a record. Returning an error fails the
// whole capture: partial audit context is worse than a failed audit write.
type Func func(ctx context.Context, entity audit.Auditable) (any, error)

// ActorFunc resolves the responsible actor. Empty type and id mean the
// change was not attributable; that is not an error.
type ActorFunc func(ctx context.Context) (actorType, actorID string, err error)

// Registry holds the named context resolvers plus the single actor resolver.
// Registration order is preserved so resolver outputs land in records in a
// stable order.
type Registry struct {
	order []string
	funcs map[string]Func
	actor ActorFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds a named context resolver. Duplicate names and nil funcs
// are configuration errors.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register resolver: name and func are required")
	}
	if _, ok := r.funcs[name]; ok {
		return fmt.Errorf("register resolver: %q already registered", name)
	}
	r.order = append(r.order, name)
	r.funcs[name] = fn
	return nil
}

// SetActor installs the actor resolver.
func (r *Registry) SetActor(fn ActorFunc) error {
	if fn == nil {
		return fmt.Errorf("set actor resolver: func is required")
	}
	r.actor = fn
	return nil
}

// ResolveContext invokes every registered context resolver and collects the
// non-nil outputs under their names. Any resolver error aborts resolution.
func (r *Registry) ResolveContext(ctx context.Context, entity audit.Auditable) (map[string]any, error) {
	if len(r.order) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(r.order))
	for _, name := range r.order {
		value, err := r.funcs[name](ctx, entity)
		if err != nil {
			return nil, &audit.ResolverError{Name: name, Err: err}
		}
		if value == nil {
			continue
		}
		out[name] = value
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// ResolveActor invokes the actor resolver, if any.
func (r *Registry) ResolveActor(ctx context.Context) (string, string, error) {
	if r.actor == nil {
		return "", "", nil
	}
	actorType, actorID, err := r.actor(ctx)
	if err != nil {
		return "", "", &audit.ResolverError{Name: "actor", Err: err}
	}
	return actorType, actorID, nil
}
