package file

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
	"chronicle/pkg/platform/sentinel"
)

func testRecord() *audit.Record {
	return &audit.Record{
		ID:         uuid.New(),
		Event:      audit.EventUpdated,
		EntityType: "article",
		EntityID:   "42",
		ActorType:  "user",
		ActorID:    "7",
		OldValues:  audit.Values{"title": "Draft"},
		NewValues:  audit.Values{"title": "Published"},
		Context:    map[string]any{"url": "https://example.com/articles/42", "ip_address": "10.0.0.1"},
		Tags:       []string{"cms", "publishing"},
		CreatedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestPersistCreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	store := New(LocalFS{}, dir, "audit")
	rec := testRecord()

	got, err := store.Persist(context.Background(), rec)
	require.NoError(t, err)
	assert.Same(t, rec, got)

	rows := readRows(t, filepath.Join(dir, "audit.csv"))
	require.Len(t, rows, 2)

	header := rows[0]
	assert.Equal(t, []string{
		"id", "event", "entity_type", "entity_id", "actor_type", "actor_id",
		"old_values", "new_values", "tags", "redacted", "created_at",
		"ip_address", "url",
	}, header)

	row := rows[1]
	byField := make(map[string]string, len(header))
	for i, field := range header {
		byField[field] = row[i]
	}
	assert.Equal(t, rec.ID.String(), byField["id"])
	assert.Equal(t, "updated", byField["event"])
	assert.Equal(t, "article", byField["entity_type"])
	assert.Equal(t, "42", byField["entity_id"])
	assert.JSONEq(t, `{"title":"Draft"}`, byField["old_values"])
	assert.JSONEq(t, `{"title":"Published"}`, byField["new_values"])
	assert.Equal(t, "cms,publishing", byField["tags"])
	assert.Equal(t, "false", byField["redacted"])
	assert.Equal(t, "2026-03-14T09:30:00Z", byField["created_at"])
	assert.Equal(t, "https://example.com/articles/42", byField["url"])
	assert.Equal(t, "10.0.0.1", byField["ip_address"])
}

func TestPersistAppendsUnderExistingHeader(t *testing.T) {
	dir := t.TempDir()
	store := New(LocalFS{}, dir, "audit")
	ctx := context.Background()

	first := testRecord()
	_, err := store.Persist(ctx, first)
	require.NoError(t, err)

	// The second record carries a context field the header does not know
	// and misses one it does; the row is shaped to the existing header.
	second := testRecord()
	second.ID = uuid.New()
	second.Context = map[string]any{"url": "https://example.com/articles/43", "request_id": "req-9"}
	_, err = store.Persist(ctx, second)
	require.NoError(t, err)

	rows := readRows(t, filepath.Join(dir, "audit.csv"))
	require.Len(t, rows, 3)

	header := rows[0]
	assert.NotContains(t, header, "request_id")

	byField := make(map[string]string, len(header))
	for i, field := range header {
		byField[field] = rows[2][i]
	}
	assert.Equal(t, second.ID.String(), byField["id"])
	assert.Equal(t, "https://example.com/articles/43", byField["url"])
	assert.Empty(t, byField["ip_address"])
}

func TestRotationTargets(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tests := []struct {
		name     string
		rotation Rotation
		want     string
	}{
		{name: "single", rotation: RotationSingle, want: "audit.csv"},
		{name: "daily", rotation: RotationDaily, want: "audit-2026-03-14.csv"},
		{name: "hourly", rotation: RotationHourly, want: "audit-2026-03-14-09.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New(LocalFS{}, "/var/log/chronicle", "audit", WithRotation(tt.rotation), WithClock(clock))
			assert.Equal(t, "/var/log/chronicle/"+tt.want, store.Target())
		})
	}
}

func TestRotationStartsNewFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 23, 50, 0, 0, time.UTC)
	store := New(LocalFS{}, dir, "audit", WithRotation(RotationDaily), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := store.Persist(ctx, testRecord())
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = store.Persist(ctx, testRecord())
	require.NoError(t, err)

	assert.Len(t, readRows(t, filepath.Join(dir, "audit-2026-03-14.csv")), 2)
	assert.Len(t, readRows(t, filepath.Join(dir, "audit-2026-03-15.csv")), 2)
}

func TestPruneUnsupported(t *testing.T) {
	store := New(LocalFS{}, t.TempDir(), "audit")

	pruned, err := store.Prune(context.Background(), "article", "42", 10)
	assert.Zero(t, pruned)
	assert.ErrorIs(t, err, sentinel.ErrPruneUnsupported)
}
