// Package sqlite provides an embedded keyed-store audit driver on SQLite.
// Suited to single-binary deployments where records live next to the
// application data.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"chronicle/pkg/audit"
)

// Store implements audit.Driver and audit.Reader on a SQLite table.
type Store struct {
	db *sql.DB
}

var (
	_ audit.Driver = (*Store)(nil)
	_ audit.Reader = (*Store)(nil)
)

// Open opens (creating if needed) the SQLite database at path and ensures
// the audit schema exists. Use ":memory:" for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite supports one writer at a time; keep the pool at one
	// connection so concurrent captures queue instead of failing.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and ensures the audit schema exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS audit_records (
  id            TEXT PRIMARY KEY,
  event         TEXT NOT NULL,
  entity_type   TEXT NOT NULL,
  entity_id     TEXT NOT NULL,
  actor_type    TEXT,
  actor_id      TEXT,
  old_values    TEXT NOT NULL DEFAULT '{}',
  new_values    TEXT NOT NULL DEFAULT '{}',
  tags          TEXT,
  context       TEXT,
  redacted      INTEGER NOT NULL DEFAULT 0,
  created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_entity_idx
  ON audit_records (entity_type, entity_id, created_at_ms);
`)
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *Store) Persist(ctx context.Context, rec *audit.Record) (*audit.Record, error) {
	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	oldJSON, err := audit.MarshalValues(stored.OldValues)
	if err != nil {
		return nil, err
	}
	newJSON, err := audit.MarshalValues(stored.NewValues)
	if err != nil {
		return nil, err
	}

	var contextJSON any
	if len(stored.Context) > 0 {
		data, err := json.Marshal(stored.Context)
		if err != nil {
			return nil, fmt.Errorf("marshal record context: %w", err)
		}
		contextJSON = string(data)
	}

	var tags any
	if joined, ok := stored.TagsJoined(); ok {
		tags = joined
	}

	var actorType, actorID any
	if stored.ActorType != "" {
		actorType = stored.ActorType
	}
	if stored.ActorID != "" {
		actorID = stored.ActorID
	}

	var redacted int
	if stored.Redacted {
		redacted = 1
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO audit_records(
  id, event, entity_type, entity_id, actor_type, actor_id,
  old_values, new_values, tags, context, redacted, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		stored.ID.String(), string(stored.Event), stored.EntityType, stored.EntityID,
		actorType, actorID, string(oldJSON), string(newJSON), tags, contextJSON,
		redacted, stored.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}
	return &stored, nil
}

func (s *Store) Prune(ctx context.Context, entityType, entityID string, threshold int) (int, error) {
	if threshold <= 0 {
		return 0, nil
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM audit_records WHERE entity_type = ? AND entity_id = ?;
`, entityType, entityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}

	excess := count - threshold
	if excess <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
DELETE FROM audit_records
WHERE id IN (
  SELECT id FROM audit_records
  WHERE entity_type = ? AND entity_id = ?
  ORDER BY created_at_ms ASC
  LIMIT ?
);
`, entityType, entityID, excess)
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune audit records: %w", err)
	}
	return int(pruned), nil
}

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, event, entity_type, entity_id, actor_type, actor_id,
       old_values, new_values, tags, context, redacted, created_at_ms
FROM audit_records
WHERE entity_type = ? AND entity_id = ?
ORDER BY created_at_ms ASC;
`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, event, entity_type, entity_id, actor_type, actor_id,
       old_values, new_values, tags, context, redacted, created_at_ms
FROM audit_records
ORDER BY created_at_ms DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	var records []audit.Record

	for rows.Next() {
		var (
			rec         audit.Record
			id          string
			event       string
			actorType   sql.NullString
			actorID     sql.NullString
			oldJSON     string
			newJSON     string
			tags        sql.NullString
			contextJSON sql.NullString
			redacted    int
			createdMs   int64
		)

		err := rows.Scan(&id, &event, &rec.EntityType, &rec.EntityID,
			&actorType, &actorID, &oldJSON, &newJSON, &tags, &contextJSON,
			&redacted, &createdMs)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse record id: %w", err)
		}
		rec.Event = audit.Event(event)
		rec.ActorType = actorType.String
		rec.ActorID = actorID.String
		if err := json.Unmarshal([]byte(oldJSON), &rec.OldValues); err != nil {
			return nil, fmt.Errorf("unmarshal old values: %w", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &rec.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new values: %w", err)
		}
		if tags.Valid && tags.String != "" {
			rec.Tags = strings.Split(tags.String, ",")
		}
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal record context: %w", err)
			}
		}
		rec.Redacted = redacted != 0
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return records, nil
}
