// Package transition reconstructs a past or future entity state from a
// stored record. It either mutates the live entity in place or refuses with
// a typed error carrying the exact mismatch; it never partially applies.
package transition

import (
	"fmt"
	"sort"
	"strings"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/eligibility"
	"chronicle/pkg/audit/modifier"
)

// Direction selects which side of the stored diff is replayed.
type Direction int

const (
	// ToOld assigns the record's old values: point-in-time undo.
	ToOld Direction = iota
	// ToNew assigns the record's new values: redo / fast-forward.
	ToNew
)

// TypeMismatchError refuses a record captured for a different entity type.
type TypeMismatchError struct {
	Expected string // the live entity's type
	Actual   string // the record's entity type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("transition: record entity type %q does not match %q", e.Actual, e.Expected)
}

// IDMismatchError refuses a record captured for a different entity instance.
type IDMismatchError struct {
	Expected string
	Actual   string
}

func (e *IDMismatchError) Error() string {
	return fmt.Sprintf("transition: record entity id %q does not match %q", e.Actual, e.Expected)
}

// RedactedError refuses replay where redaction destroyed fidelity: either
// the record was captured under a redactor or the entity currently registers
// one. Once masked, the true values are unrecoverable.
type RedactedError struct {
	EntityType string
}

func (e *RedactedError) Error() string {
	return fmt.Sprintf("transition: cannot transition %q when redactors are set", e.EntityType)
}

// DecodeError refuses replay when an encoded stored value cannot be
// inverted back to its original form.
type DecodeError struct {
	Attribute string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("transition: decode attribute %q: %v", e.Attribute, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IncompatibleAttributesError refuses a record whose diff names attributes
// the live entity no longer carries as eligible.
type IncompatibleAttributesError struct {
	Attributes []string
}

func (e *IncompatibleAttributesError) Error() string {
	return fmt.Sprintf("transition: incompatible attributes: %s", strings.Join(e.Attributes, ", "))
}

// Engine validates record/entity compatibility and replays diffs.
type Engine struct {
	modifiers *modifier.Registry
	aliases   map[string]string
}

// Option configures the Engine.
type Option func(*Engine)

// WithAliases installs an identity-mapping table: stored entity type ->
// accepted live entity type, for records captured under a renamed type.
func WithAliases(aliases map[string]string) Option {
	return func(e *Engine) {
		e.aliases = aliases
	}
}

// New creates an Engine sharing the modifier registry records were captured
// under, so redaction-capable entities are recognized.
func New(modifiers *modifier.Registry, opts ...Option) *Engine {
	if modifiers == nil {
		modifiers = modifier.NewRegistry()
	}
	e := &Engine{modifiers: modifiers}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply replays one side of the stored diff onto the live entity. All guard
// conditions are checked before any assignment; on refusal the entity is
// left untouched. Apply mutates in place and does not persist the entity.
func (e *Engine) Apply(rec *audit.Record, entity audit.Transitionable, dir Direction) error {
	liveType := entity.AuditType()
	if rec.EntityType != liveType && e.aliases[rec.EntityType] != liveType {
		return &TypeMismatchError{Expected: liveType, Actual: rec.EntityType}
	}

	if rec.EntityID != entity.AuditID() {
		return &IDMismatchError{Expected: entity.AuditID(), Actual: rec.EntityID}
	}

	cfg := entity.AuditConfig()
	if rec.Redacted || e.modifiers.HasRedactor(cfg.Modifiers) {
		return &RedactedError{EntityType: liveType}
	}

	// Incompatible = recorded attribute names the live entity no longer
	// carries as eligible attributes.
	attrs := entity.AuditAttributes()
	policy := eligibility.Resolve(cfg, attrs)
	var incompatible []string
	for _, name := range recordedAttributes(rec) {
		if _, present := attrs[name]; !present || !policy.Eligible(name) {
			incompatible = append(incompatible, name)
		}
	}
	if len(incompatible) > 0 {
		sort.Strings(incompatible)
		return &IncompatibleAttributesError{Attributes: incompatible}
	}

	values := rec.OldValues
	if dir == ToNew {
		values = rec.NewValues
	}

	// Stored values carry the encoded form for encoder-bound attributes.
	// Invert the encoding first, and only mutate once every value decoded.
	decoded := make(audit.Values, len(values))
	for name, value := range values {
		if modName, bound := cfg.Modifiers[name]; bound {
			if enc, ok := e.modifiers.Encoder(modName); ok {
				plain, err := enc.Decode(value)
				if err != nil {
					return &DecodeError{Attribute: name, Err: err}
				}
				decoded[name] = plain
				continue
			}
		}
		decoded[name] = value
	}
	for name, value := range decoded {
		entity.SetAuditAttribute(name, value)
	}
	return nil
}

// recordedAttributes returns the union of the record's old and new keys.
func recordedAttributes(rec *audit.Record) []string {
	seen := make(map[string]struct{}, len(rec.OldValues)+len(rec.NewValues))
	var names []string
	for name := range rec.OldValues {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	for name := range rec.NewValues {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}
