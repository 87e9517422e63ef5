// Package audit defines the data model and contracts of the audit-trail engine:
// the Record that gets persisted, the Auditable contract host entities fulfil,
// the Driver SPI drivers implement, and the configuration errors the engine
// reports. The capture pipeline itself lives in the subpackages (eligibility,
// modifier, builder, auditor, transition, store).
package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is the lifecycle transition that triggered a capture.
type Event string

// Built-in lifecycle events. Entities may declare additional custom events;
// those are captured with caller-supplied value maps.
const (
	EventCreated  Event = "created"
	EventUpdated  Event = "updated"
	EventDeleted  Event = "deleted"
	EventRestored Event = "restored"
)

// Values is an attribute-name -> value mapping. Values must be
// JSON-serializable scalars or compositions of them; eligibility filtering
// drops anything that is not.
type Values map[string]any

// Clone returns a shallow copy so pipeline stages can mutate safely.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Keys returns the attribute names present in the map, unordered.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	return keys
}

// Record is the unit of persisted history: one lifecycle transition of one
// entity, with the attribute diff, the responsible actor, and request context.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Event      Event          `json:"event"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorType  string         `json:"actor_type,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	OldValues  Values         `json:"old_values"`
	NewValues  Values         `json:"new_values"`
	Context    map[string]any `json:"context,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Redacted   bool           `json:"redacted,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Reserved field names of the flattened record form. Context resolver names
// and transform-hook additions outside this set land in Context.
var reservedFields = map[string]struct{}{
	"id":          {},
	"event":       {},
	"entity_type": {},
	"entity_id":   {},
	"actor_type":  {},
	"actor_id":    {},
	"old_values":  {},
	"new_values":  {},
	"tags":        {},
	"redacted":    {},
	"created_at":  {},
}

// Flatten converts the record into a mutable flat map for the entity's final
// transform hook and for column-oriented drivers. Context entries appear at
// the top level alongside the base fields.
func (r *Record) Flatten() map[string]any {
	flat := map[string]any{
		"id":          r.ID.String(),
		"event":       string(r.Event),
		"entity_type": r.EntityType,
		"entity_id":   r.EntityID,
		"actor_type":  r.ActorType,
		"actor_id":    r.ActorID,
		"old_values":  r.OldValues,
		"new_values":  r.NewValues,
		"tags":        append([]string(nil), r.Tags...),
		"redacted":    r.Redacted,
		"created_at":  r.CreatedAt,
	}
	for k, v := range r.Context {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		flat[k] = v
	}
	return flat
}

// Rehydrate applies a flattened map produced by Flatten (and possibly altered
// by a transform hook) back onto the record. Known keys update their fields;
// unknown keys become context entries; keys removed from the map clear the
// corresponding context entries.
func (r *Record) Rehydrate(flat map[string]any) error {
	if raw, ok := flat["id"].(string); ok {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("rehydrate record id: %w", err)
		}
		r.ID = parsed
	}
	if v, ok := flat["event"].(string); ok {
		r.Event = Event(v)
	}
	if v, ok := flat["entity_type"].(string); ok {
		r.EntityType = v
	}
	if v, ok := flat["entity_id"].(string); ok {
		r.EntityID = v
	}
	if v, ok := flat["actor_type"].(string); ok {
		r.ActorType = v
	}
	if v, ok := flat["actor_id"].(string); ok {
		r.ActorID = v
	}
	if v, ok := flat["old_values"].(Values); ok {
		r.OldValues = v
	}
	if v, ok := flat["new_values"].(Values); ok {
		r.NewValues = v
	}
	if v, ok := flat["tags"].([]string); ok {
		r.Tags = v
	}
	if v, ok := flat["redacted"].(bool); ok {
		r.Redacted = v
	}
	if v, ok := flat["created_at"].(time.Time); ok {
		r.CreatedAt = v
	}

	ctx := make(map[string]any)
	for k, v := range flat {
		if _, reserved := reservedFields[k]; reserved {
			continue
		}
		ctx[k] = v
	}
	if len(ctx) == 0 {
		ctx = nil
	}
	r.Context = ctx
	return nil
}

// TagsJoined returns the comma-joined tag column value and whether it is
// non-empty, so drivers can persist NULL for untagged records.
func (r *Record) TagsJoined() (string, bool) {
	if len(r.Tags) == 0 {
		return "", false
	}
	return strings.Join(r.Tags, ","), true
}

// MarshalValues JSON-encodes a value map for persistence. A nil map encodes
// as an empty JSON object so every stored record has both diff columns.
func MarshalValues(v Values) ([]byte, error) {
	if v == nil {
		v = Values{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal values: %w", err)
	}
	return data, nil
}
