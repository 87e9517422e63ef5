// Package audittest provides fakes for exercising the capture pipeline in
// unit tests without a host application.
package audittest

import (
	"context"
	"sync"

	"chronicle/pkg/audit"
)

// Entity is a configurable Auditable for tests. It tracks attribute
// assignments so transition tests can assert exactly what was mutated.
type Entity struct {
	Type      string
	ID        string
	Attrs     audit.Values
	Orig      audit.Values
	DirtyList []string
	Config    audit.Config
	Tags      []string
	Transform func(map[string]any) map[string]any

	Assigned audit.Values // records SetAuditAttribute calls
}

var _ audit.Transitionable = (*Entity)(nil)
var _ audit.Tagger = (*Entity)(nil)

func (e *Entity) AuditType() string             { return e.Type }
func (e *Entity) AuditID() string               { return e.ID }
func (e *Entity) AuditAttributes() audit.Values { return e.Attrs }
func (e *Entity) AuditOriginal() audit.Values   { return e.Orig }
func (e *Entity) AuditDirty() []string          { return e.DirtyList }
func (e *Entity) AuditConfig() audit.Config     { return e.Config }
func (e *Entity) AuditTags() []string           { return e.Tags }

func (e *Entity) SetAuditAttribute(name string, value any) {
	if e.Attrs == nil {
		e.Attrs = audit.Values{}
	}
	if e.Assigned == nil {
		e.Assigned = audit.Values{}
	}
	e.Attrs[name] = value
	e.Assigned[name] = value
}

// TransformingEntity adds the final-transform hook on top of Entity.
// Separate type so plain Entity does not satisfy audit.Transformer.
type TransformingEntity struct {
	Entity
}

func (e *TransformingEntity) TransformAudit(flat map[string]any) map[string]any {
	if e.Transform != nil {
		return e.Transform(flat)
	}
	return flat
}

// Driver is an in-test audit.Driver recording every call.
type Driver struct {
	mu sync.Mutex

	Persisted  []*audit.Record
	PersistErr error

	PruneCalls []PruneCall
	PruneN     int
	PruneErr   error
}

// PruneCall captures the arguments of one Prune invocation.
type PruneCall struct {
	EntityType string
	EntityID   string
	Threshold  int
}

var _ audit.Driver = (*Driver)(nil)

func (d *Driver) Persist(_ context.Context, rec *audit.Record) (*audit.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PersistErr != nil {
		return nil, d.PersistErr
	}
	d.Persisted = append(d.Persisted, rec)
	return rec, nil
}

func (d *Driver) Prune(_ context.Context, entityType, entityID string, threshold int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PruneCalls = append(d.PruneCalls, PruneCall{EntityType: entityType, EntityID: entityID, Threshold: threshold})
	if d.PruneErr != nil {
		return 0, d.PruneErr
	}
	return d.PruneN, nil
}
