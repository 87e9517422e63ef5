package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
)

func record(entityID string, createdAt time.Time) *audit.Record {
	return &audit.Record{
		Event:      audit.EventUpdated,
		EntityType: "articles",
		EntityID:   entityID,
		OldValues:  audit.Values{"title": "old"},
		NewValues:  audit.Values{"title": "new"},
		CreatedAt:  createdAt,
	}
}

func TestPersistAndList(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Persist(ctx, record("7", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := s.Persist(ctx, record("8", base))
	require.NoError(t, err)

	recs, err := s.ListByEntity(ctx, "articles", "7")
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(2*time.Minute), recent[0].CreatedAt)
}

func TestPruneRemovesOldest(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	// 5 pre-existing records, threshold 3: the 2 oldest go.
	for i := 0; i < 5; i++ {
		_, err := s.Persist(ctx, record("7", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	pruned, err := s.Prune(ctx, "articles", "7", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned)

	recs, err := s.ListByEntity(ctx, "articles", "7")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, base.Add(2*time.Minute), recs[0].CreatedAt)
}

func TestPruneIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.Persist(ctx, record("7", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	first, err := s.Prune(ctx, "articles", "7", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, first)

	second, err := s.Prune(ctx, "articles", "7", 3)
	require.NoError(t, err)
	assert.Zero(t, second)
}

func TestPruneDisabledThreshold(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Persist(ctx, record("7", time.Now()))
	require.NoError(t, err)

	pruned, err := s.Prune(ctx, "articles", "7", 0)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	recs, err := s.ListByEntity(ctx, "articles", "7")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
