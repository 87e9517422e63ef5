// Package modifier applies registered value transforms to attribute diffs
// before persistence. Encoders are reversible (encode/decode); redactors are
// one-way and make the owning entity's records non-replayable.
package modifier

import (
	"fmt"

	"chronicle/pkg/audit"
)

// Encoder is a reversible transform: Decode(Encode(v)) == v for every value
// in the encoder's domain.
type Encoder interface {
	Encode(value any) (any, error)
	Decode(value any) (any, error)
}

// Redactor is an irreversible transform. The original value is not retained
// anywhere once redacted.
type Redactor interface {
	Redact(value any) any
}

// Registry maps modifier identifiers to their implementations. Registrations
// are validated up front so a bad binding fails at startup, not at first use.
type Registry struct {
	encoders  map[string]Encoder
	redactors map[string]Redactor
}

func NewRegistry() *Registry {
	return &Registry{
		encoders:  make(map[string]Encoder),
		redactors: make(map[string]Redactor),
	}
}

// RegisterEncoder binds an identifier to an encoder.
func (r *Registry) RegisterEncoder(name string, enc Encoder) error {
	if name == "" || enc == nil {
		return fmt.Errorf("register encoder: name and implementation are required")
	}
	if r.has(name) {
		return fmt.Errorf("register encoder: %q already registered", name)
	}
	r.encoders[name] = enc
	return nil
}

// RegisterRedactor binds an identifier to a redactor.
func (r *Registry) RegisterRedactor(name string, red Redactor) error {
	if name == "" || red == nil {
		return fmt.Errorf("register redactor: name and implementation are required")
	}
	if r.has(name) {
		return fmt.Errorf("register redactor: %q already registered", name)
	}
	r.redactors[name] = red
	return nil
}

func (r *Registry) has(name string) bool {
	if _, ok := r.encoders[name]; ok {
		return true
	}
	_, ok := r.redactors[name]
	return ok
}

// Encoder returns the encoder bound to the identifier. The transition
// engine uses this to invert encoding during replay.
func (r *Registry) Encoder(name string) (Encoder, bool) {
	enc, ok := r.encoders[name]
	return enc, ok
}

// IsRedactor reports whether the identifier names a registered redactor.
// The transition engine uses this to refuse replay for redacting entities.
func (r *Registry) IsRedactor(name string) bool {
	_, ok := r.redactors[name]
	return ok
}

// HasRedactor reports whether any attribute assignment names a redactor.
func (r *Registry) HasRedactor(assignments map[string]string) bool {
	for _, name := range assignments {
		if r.IsRedactor(name) {
			return true
		}
	}
	return false
}

// Apply runs the assigned modifiers over both diff maps in place, evaluating
// each map independently per attribute. It reports whether any redactor
// fired. Redaction takes precedence over encoding for an attribute: once the
// masked value replaced the original there is nothing left worth encoding.
// An unregistered identifier fails the whole capture.
func (r *Registry) Apply(assignments map[string]string, oldValues, newValues audit.Values) (bool, error) {
	redacted := false
	for attr, name := range assignments {
		if red, ok := r.redactors[name]; ok {
			if applyRedactor(red, attr, oldValues) {
				redacted = true
			}
			if applyRedactor(red, attr, newValues) {
				redacted = true
			}
			continue
		}
		enc, ok := r.encoders[name]
		if !ok {
			return redacted, &audit.UnknownModifierError{Name: name, Attribute: attr}
		}
		if err := applyEncoder(enc, attr, oldValues); err != nil {
			return redacted, err
		}
		if err := applyEncoder(enc, attr, newValues); err != nil {
			return redacted, err
		}
	}
	return redacted, nil
}

func applyRedactor(red Redactor, attr string, values audit.Values) bool {
	value, present := values[attr]
	if !present {
		return false
	}
	values[attr] = red.Redact(value)
	return true
}

func applyEncoder(enc Encoder, attr string, values audit.Values) error {
	value, present := values[attr]
	if !present {
		return nil
	}
	encoded, err := enc.Encode(value)
	if err != nil {
		return fmt.Errorf("encode attribute %q: %w", attr, err)
	}
	values[attr] = encoded
	return nil
}
