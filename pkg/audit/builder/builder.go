// Package builder assembles finalized audit records: it resolves the event
// extractor, filters attributes through the eligibility policy, runs the
// modifier pipeline, merges actor identity, resolver context, and tags, and
// finally invokes the entity's transform hook.
package builder

import (
	"context"

	"github.com/google/uuid"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/eligibility"
	"chronicle/pkg/audit/modifier"
	"chronicle/pkg/audit/resolver"
	platformstrings "chronicle/pkg/platform/strings"
	"chronicle/pkg/requestcontext"
)

// Builder turns one lifecycle event of one entity into a Record.
type Builder struct {
	resolvers *resolver.Registry
	modifiers *modifier.Registry
}

func New(resolvers *resolver.Registry, modifiers *modifier.Registry) *Builder {
	if resolvers == nil {
		resolvers = resolver.NewRegistry()
	}
	if modifiers == nil {
		modifiers = modifier.NewRegistry()
	}
	return &Builder{resolvers: resolvers, modifiers: modifiers}
}

// Modifiers exposes the modifier registry so the transition engine can share
// the same redactor knowledge the builder captured records under.
func (b *Builder) Modifiers() *modifier.Registry {
	return b.modifiers
}

// Build assembles a record for a built-in lifecycle event. The eligibility
// policy is resolved here, once, and lives only for this call. The event must
// already have passed the entity's declared-event check; an event with no
// extractor is a configuration error.
func (b *Builder) Build(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Record, error) {
	extract, ok := extractors[event]
	if !ok {
		return nil, &audit.UnsupportedEventError{Event: event}
	}
	policy := eligibility.Resolve(entity.AuditConfig(), entity.AuditAttributes())
	oldValues, newValues := extract(entity, policy)
	return b.assemble(ctx, entity, event, oldValues, newValues)
}

// BuildCustom assembles a record for a caller-defined event with explicit
// before/after snapshots. Custom event semantics are caller-defined, so the
// maps bypass eligibility filtering and the dirty-attribute walk entirely.
func (b *Builder) BuildCustom(ctx context.Context, entity audit.Auditable, event audit.Event, oldValues, newValues audit.Values) (*audit.Record, error) {
	return b.assemble(ctx, entity, event, oldValues.Clone(), newValues.Clone())
}

func (b *Builder) assemble(ctx context.Context, entity audit.Auditable, event audit.Event, oldValues, newValues audit.Values) (*audit.Record, error) {
	if oldValues == nil {
		oldValues = audit.Values{}
	}
	if newValues == nil {
		newValues = audit.Values{}
	}

	cfg := entity.AuditConfig()
	redacted, err := b.modifiers.Apply(cfg.Modifiers, oldValues, newValues)
	if err != nil {
		return nil, err
	}

	actorType, actorID, err := b.resolvers.ResolveActor(ctx)
	if err != nil {
		return nil, err
	}

	extra, err := b.resolvers.ResolveContext(ctx, entity)
	if err != nil {
		return nil, err
	}

	rec := &audit.Record{
		ID:         uuid.New(),
		Event:      event,
		EntityType: entity.AuditType(),
		EntityID:   entity.AuditID(),
		ActorType:  actorType,
		ActorID:    actorID,
		OldValues:  oldValues,
		NewValues:  newValues,
		Context:    extra,
		Redacted:   redacted,
		CreatedAt:  requestcontext.Now(ctx),
	}

	if tagger, ok := entity.(audit.Tagger); ok {
		rec.Tags = platformstrings.DedupeAndTrim(tagger.AuditTags())
	}

	if transformer, ok := entity.(audit.Transformer); ok {
		flat := transformer.TransformAudit(rec.Flatten())
		if err := rec.Rehydrate(flat); err != nil {
			return nil, err
		}
	}

	return rec, nil
}
