package audit

// Auditable is the contract the host entity exposes to the engine. The engine
// never owns the entity's lifecycle; it only observes it during a single
// capture and, for transitions, assigns attributes back through Transitionable.
type Auditable interface {
	// AuditType is the stable type identity of the entity (e.g. "articles").
	AuditType() string
	// AuditID is the primary key of the entity, rendered as a string.
	AuditID() string
	// AuditAttributes is the entity's live attribute map.
	AuditAttributes() Values
	// AuditOriginal is the previous/original attribute snapshot.
	AuditOriginal() Values
	// AuditDirty reports which attributes changed since the original snapshot.
	AuditDirty() []string
	// AuditConfig declares the entity's capture policy.
	AuditConfig() Config
}

// Transitionable is implemented by entities that support state replay.
// SetAuditAttribute assigns a single attribute onto the live attribute map.
type Transitionable interface {
	Auditable
	SetAuditAttribute(name string, value any)
}

// Tagger is optionally implemented by entities that attach tags to records.
type Tagger interface {
	AuditTags() []string
}

// Transformer is optionally implemented by entities that post-process the
// assembled record. The hook receives the record in flattened form and may
// add, remove, or alter fields before persistence (derived fields such as
// slugs). The returned map replaces the record's flattened form.
type Transformer interface {
	TransformAudit(flat map[string]any) map[string]any
}

// Config declares an entity's capture policy: which attributes qualify,
// which events are audited, which modifiers apply, and where records go.
// The zero value audits every attribute except timestamps on the four
// built-in lifecycle events, using the auditor's default driver and
// retention threshold.
type Config struct {
	// Include is an allow-list of attribute names. Empty means every
	// attribute not otherwise excluded qualifies.
	Include []string
	// Exclude lists attributes that never qualify. Exclusion is
	// authoritative: a name both included and excluded stays excluded.
	Exclude []string
	// Strict excludes hidden attributes and, when Visible is non-empty,
	// attributes absent from it. Include overrides strict-mode exclusions.
	Strict  bool
	Visible []string
	Hidden  []string
	// Timestamps audits the timestamp columns too. When false (the default)
	// TimestampColumns are excluded.
	Timestamps bool
	// TimestampColumns defaults to created_at/updated_at/deleted_at.
	TimestampColumns []string
	// Events lists the audited event names. Entries are exact names or
	// single-wildcard patterns ("*ed", "custom_*"). Empty means the four
	// built-in lifecycle events.
	Events []string
	// Modifiers maps attribute names to registered modifier identifiers.
	Modifiers map[string]string
	// Driver names the persistence driver. Empty means the auditor default.
	Driver string
	// Threshold is the maximum retained record count for this entity.
	// Zero or negative falls back to the auditor default; retention is
	// unlimited only when that default is also unset.
	Threshold int
}

// DefaultTimestampColumns are excluded unless Config.Timestamps is set.
var DefaultTimestampColumns = []string{"created_at", "updated_at", "deleted_at"}

// EffectiveTimestampColumns returns the configured timestamp columns,
// falling back to the defaults.
func (c Config) EffectiveTimestampColumns() []string {
	if len(c.TimestampColumns) > 0 {
		return c.TimestampColumns
	}
	return DefaultTimestampColumns
}

// EffectiveEvents returns the declared event patterns, falling back to the
// four built-in lifecycle events.
func (c Config) EffectiveEvents() []string {
	if len(c.Events) > 0 {
		return c.Events
	}
	return []string{
		string(EventCreated),
		string(EventUpdated),
		string(EventDeleted),
		string(EventRestored),
	}
}

// Audits reports whether the given event is covered by the declared event
// table, by exact name or by a single leading/trailing wildcard pattern.
func (c Config) Audits(event Event) bool {
	name := string(event)
	if name == "" {
		return false
	}
	for _, pattern := range c.EffectiveEvents() {
		if matchEvent(pattern, name) {
			return true
		}
	}
	return false
}

// matchEvent supports exact names, "prefix*" and "*suffix" patterns.
func matchEvent(pattern, name string) bool {
	switch {
	case pattern == name:
		return true
	case len(pattern) > 1 && pattern[len(pattern)-1] == '*':
		return len(name) >= len(pattern)-1 && name[:len(pattern)-1] == pattern[:len(pattern)-1]
	case len(pattern) > 1 && pattern[0] == '*':
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	default:
		return false
	}
}
