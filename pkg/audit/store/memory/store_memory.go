// Package memory provides an in-memory audit driver for tests and wiring.
package memory

import (
	"context"
	"sort"
	"sync"

	"chronicle/pkg/audit"
)

type entityKey struct {
	entityType string
	entityID   string
}

// Store keeps records in memory, ordered per entity by capture time.
type Store struct {
	mu      sync.RWMutex
	records map[entityKey][]audit.Record
}

var (
	_ audit.Driver = (*Store)(nil)
	_ audit.Reader = (*Store)(nil)
)

func New() *Store {
	return &Store{records: make(map[entityKey][]audit.Record)}
}

// Clear removes all stored records. Use between tests to ensure isolation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[entityKey][]audit.Record)
}

func (s *Store) Persist(_ context.Context, rec *audit.Record) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType: rec.EntityType, entityID: rec.EntityID}
	s.records[key] = append(s.records[key], *rec)
	sort.SliceStable(s.records[key], func(i, j int) bool {
		return s.records[key][i].CreatedAt.Before(s.records[key][j].CreatedAt)
	})
	return rec, nil
}

func (s *Store) Prune(_ context.Context, entityType, entityID string, threshold int) (int, error) {
	if threshold <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{entityType: entityType, entityID: entityID}
	existing := s.records[key]
	excess := len(existing) - threshold
	if excess <= 0 {
		return 0, nil
	}
	// Records are kept sorted by capture time; drop the oldest.
	s.records[key] = append([]audit.Record(nil), existing[excess:]...)
	return excess, nil
}

func (s *Store) ListByEntity(_ context.Context, entityType, entityID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := entityKey{entityType: entityType, entityID: entityID}
	return append([]audit.Record(nil), s.records[key]...), nil
}

func (s *Store) ListRecent(_ context.Context, limit int) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []audit.Record
	for _, recs := range s.records {
		all = append(all, recs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
