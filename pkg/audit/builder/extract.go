package builder

import (
	"chronicle/pkg/audit"
	"chronicle/pkg/audit/eligibility"
)

// extractFunc produces the raw (old, new) attribute maps for one event kind.
type extractFunc func(entity audit.Auditable, policy *eligibility.Policy) (audit.Values, audit.Values)

// extractors is the static dispatch table for the built-in lifecycle events.
// Custom events bypass it entirely: their maps are caller-supplied.
var extractors = map[audit.Event]extractFunc{
	audit.EventCreated:  extractCreated,
	audit.EventUpdated:  extractUpdated,
	audit.EventDeleted:  extractDeleted,
	audit.EventRestored: extractRestored,
}

func extractCreated(entity audit.Auditable, policy *eligibility.Policy) (audit.Values, audit.Values) {
	return audit.Values{}, policy.Filter(entity.AuditAttributes())
}

func extractUpdated(entity audit.Auditable, policy *eligibility.Policy) (audit.Values, audit.Values) {
	oldValues := audit.Values{}
	newValues := audit.Values{}
	attrs := entity.AuditAttributes()
	original := entity.AuditOriginal()
	for _, name := range entity.AuditDirty() {
		// Dirty but ineligible attributes are dropped from both maps.
		if !policy.Eligible(name) {
			continue
		}
		oldValues[name] = original[name]
		newValues[name] = attrs[name]
	}
	return oldValues, newValues
}

func extractDeleted(entity audit.Auditable, policy *eligibility.Policy) (audit.Values, audit.Values) {
	return policy.Filter(entity.AuditAttributes()), audit.Values{}
}

// extractRestored is the lexical mirror of extractDeleted: same walk, maps
// swapped. Restoring reverses a delete rather than being an independent diff.
func extractRestored(entity audit.Auditable, policy *eligibility.Policy) (audit.Values, audit.Values) {
	oldValues, newValues := extractDeleted(entity, policy)
	return newValues, oldValues
}
