// Package postgres provides the PostgreSQL keyed-store audit driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"chronicle/pkg/audit"
)

// Store implements audit.Driver and audit.Reader on a PostgreSQL table.
// One row per record, keyed by the record id; retention pruning deletes the
// oldest rows per entity by capture time.
type Store struct {
	db *sql.DB
}

var (
	_ audit.Driver = (*Store)(nil)
	_ audit.Reader = (*Store)(nil)
)

// New creates a PostgreSQL audit store. The audit_records table must exist;
// see Schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the table this store writes to. Shipped as a constant so host
// applications can feed it into their own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id          UUID PRIMARY KEY,
	event       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	actor_type  TEXT,
	actor_id    TEXT,
	old_values  JSONB NOT NULL DEFAULT '{}',
	new_values  JSONB NOT NULL DEFAULT '{}',
	tags        TEXT,
	url         TEXT,
	ip_address  TEXT,
	user_agent  TEXT,
	context     JSONB,
	redacted    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_entity_idx
	ON audit_records (entity_type, entity_id, created_at);
`

// Context keys promoted to their own columns. Everything else goes into the
// context JSONB column.
var promotedContext = []string{"url", "ip_address", "user_agent"}

func (s *Store) Persist(ctx context.Context, rec *audit.Record) (*audit.Record, error) {
	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}

	oldJSON, err := audit.MarshalValues(stored.OldValues)
	if err != nil {
		return nil, err
	}
	newJSON, err := audit.MarshalValues(stored.NewValues)
	if err != nil {
		return nil, err
	}

	promoted, rest := splitContext(stored.Context)
	var contextJSON any
	if len(rest) > 0 {
		data, err := json.Marshal(rest)
		if err != nil {
			return nil, fmt.Errorf("marshal record context: %w", err)
		}
		contextJSON = data
	}

	query := `
		INSERT INTO audit_records (
			id, event, entity_type, entity_id, actor_type, actor_id,
			old_values, new_values, tags, url, ip_address, user_agent,
			context, redacted, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = s.db.ExecContext(ctx, query,
		stored.ID,
		string(stored.Event),
		stored.EntityType,
		stored.EntityID,
		nullString(stored.ActorType),
		nullString(stored.ActorID),
		oldJSON,
		newJSON,
		nullTags(&stored),
		nullString(promoted["url"]),
		nullString(promoted["ip_address"]),
		nullString(promoted["user_agent"]),
		contextJSON,
		stored.Redacted,
		stored.CreatedAt,
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
		SELECT COUNT(*) FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
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
			WHERE entity_type = $1 AND entity_id = $2
			ORDER BY created_at ASC
			LIMIT $3
		)
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

const selectColumns = `
	id, event, entity_type, entity_id, actor_type, actor_id,
	old_values, new_values, tags, url, ip_address, user_agent,
	context, redacted, created_at
`

func (s *Store) ListByEntity(ctx context.Context, entityType, entityID string) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM audit_records
		ORDER BY created_at DESC
		LIMIT $1
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
			event       string
			actorType   sql.NullString
			actorID     sql.NullString
			oldJSON     []byte
			newJSON     []byte
			tags        sql.NullString
			url         sql.NullString
			ipAddress   sql.NullString
			userAgent   sql.NullString
			contextJSON []byte
		)

		err := rows.Scan(
			&rec.ID,
			&event,
			&rec.EntityType,
			&rec.EntityID,
			&actorType,
			&actorID,
			&oldJSON,
			&newJSON,
			&tags,
			&url,
			&ipAddress,
			&userAgent,
			&contextJSON,
			&rec.Redacted,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}

		rec.Event = audit.Event(event)
		rec.ActorType = actorType.String
		rec.ActorID = actorID.String
		if err := json.Unmarshal(oldJSON, &rec.OldValues); err != nil {
			return nil, fmt.Errorf("unmarshal old values: %w", err)
		}
		if err := json.Unmarshal(newJSON, &rec.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new values: %w", err)
		}
		if tags.Valid && tags.String != "" {
			rec.Tags = strings.Split(tags.String, ",")
		}

		recCtx := make(map[string]any)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &recCtx); err != nil {
				return nil, fmt.Errorf("unmarshal record context: %w", err)
			}
		}
		for name, value := range map[string]sql.NullString{
			"url":        url,
			"ip_address": ipAddress,
			"user_agent": userAgent,
		} {
			if value.Valid && value.String != "" {
				recCtx[name] = value.String
			}
		}
		if len(recCtx) > 0 {
			rec.Context = recCtx
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}

	return records, nil
}

// splitContext separates the promoted context keys from the rest.
func splitContext(ctx map[string]any) (map[string]string, map[string]any) {
	promoted := make(map[string]string, len(promotedContext))
	rest := make(map[string]any)
	for name, value := range ctx {
		isPromoted := false
		for _, candidate := range promotedContext {
			if name == candidate {
				isPromoted = true
				break
			}
		}
		if isPromoted {
			if s, ok := value.(string); ok {
				promoted[name] = s
				continue
			}
		}
		rest[name] = value
	}
	return promoted, rest
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTags(rec *audit.Record) sql.NullString {
	joined, ok := rec.TagsJoined()
	return sql.NullString{String: joined, Valid: ok}
}
