// Package eligibility decides which attributes of an entity qualify for
// capture. The policy is resolved once per capture operation and cached on
// the Policy value; each capture gets its own instance so nothing leaks
// across entities or concurrent calls.
package eligibility

import (
	"encoding"
	"encoding/json"
	"fmt"
	"time"

	"chronicle/pkg/audit"
)

// Policy is the resolved eligibility predicate for a single capture.
type Policy struct {
	include map[string]struct{}
	// authoritative excludes: explicit config excludes plus attributes with
	// non-serializable values. These win over Include.
	exclude map[string]struct{}
	// derived excludes: strict-mode and timestamp exclusions. Overridden by
	// an explicit Include entry.
	derived map[string]struct{}
}

// Resolve computes the effective policy for one capture from the entity's
// declared configuration and its current attribute snapshot.
func Resolve(cfg audit.Config, attrs audit.Values) *Policy {
	p := &Policy{
		include: toSet(cfg.Include),
		exclude: toSet(cfg.Exclude),
		derived: make(map[string]struct{}),
	}

	if cfg.Strict {
		for _, name := range cfg.Hidden {
			p.derived[name] = struct{}{}
		}
		if len(cfg.Visible) > 0 {
			visible := toSet(cfg.Visible)
			for name := range attrs {
				if _, ok := visible[name]; !ok {
					p.derived[name] = struct{}{}
				}
			}
		}
	}

	if !cfg.Timestamps {
		for _, name := range cfg.EffectiveTimestampColumns() {
			p.derived[name] = struct{}{}
		}
	}

	// Values without a serializable form never qualify, regardless of any
	// include/exclude setting.
	for name, value := range attrs {
		if !Serializable(value) {
			p.exclude[name] = struct{}{}
		}
	}

	return p
}

// Eligible reports whether the named attribute qualifies for capture.
// Exclusion is authoritative; a non-empty include list is an allow-list that
// overrides derived (strict-mode, timestamp) exclusions for listed names.
func (p *Policy) Eligible(name string) bool {
	if _, excluded := p.exclude[name]; excluded {
		return false
	}
	if len(p.include) > 0 {
		_, ok := p.include[name]
		return ok
	}
	_, derived := p.derived[name]
	return !derived
}

// Filter returns a copy of values restricted to eligible attributes.
func (p *Policy) Filter(values audit.Values) audit.Values {
	out := make(audit.Values, len(values))
	for name, value := range values {
		if p.Eligible(name) {
			out[name] = value
		}
	}
	return out
}

// Serializable reports whether a value has a well-defined stored form.
// The check is an explicit kind switch rather than implicit coercion:
// scalars, times, byte slices, and JSON-expressible compositions qualify;
// anything else (channels, funcs, arbitrary structs without a marshal or
// string form) is dropped from diffs.
func Serializable(value any) bool {
	switch value.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, []byte:
		return true
	case json.Marshaler, encoding.TextMarshaler, fmt.Stringer:
		return true
	case []any, map[string]any, []string, []int, []float64:
		_, err := json.Marshal(value)
		return err == nil
	default:
		return false
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
