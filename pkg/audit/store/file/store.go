// Package file provides an append-only CSV audit driver. Records are
// appended to a rotating file target; retention pruning is permanently
// unsupported because append-only media cannot selectively delete.
//
// Concurrent writers to the same rotated file target must be externally
// serialized; the store assumes at most one writer per physical target.
package file

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"time"

	"chronicle/pkg/audit"
	"chronicle/pkg/platform/sentinel"
	platformstrings "chronicle/pkg/platform/strings"
)

// Rotation selects the file naming policy.
type Rotation string

const (
	// RotationSingle appends everything to one file.
	RotationSingle Rotation = "single"
	// RotationDaily starts a new file per day.
	RotationDaily Rotation = "daily"
	// RotationHourly starts a new file per hour.
	RotationHourly Rotation = "hourly"
)

// Store implements audit.Driver over a Filesystem.
type Store struct {
	fs       Filesystem
	dir      string
	basename string
	rotation Rotation
	now      func() time.Time
}

var _ audit.Driver = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithRotation selects the file naming policy. Default is single-file.
func WithRotation(r Rotation) Option {
	return func(s *Store) {
		s.rotation = r
	}
}

// WithClock overrides the rotation clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a file store writing "<basename>[-<period>].csv" under dir on
// the given filesystem. Pass a LocalFS for local targets or a staging
// implementation for remote ones.
func New(filesystem Filesystem, dir, basename string, opts ...Option) *Store {
	s := &Store{
		fs:       filesystem,
		dir:      dir,
		basename: basename,
		rotation: RotationSingle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Target returns the file the next record would be appended to.
func (s *Store) Target() string {
	name := s.basename
	switch s.rotation {
	case RotationDaily:
		name += "-" + s.now().UTC().Format("2006-01-02")
	case RotationHourly:
		name += "-" + s.now().UTC().Format("2006-01-02-15")
	}
	return path.Join(s.dir, name+".csv")
}

// Persist appends one flattened record row. A missing target is created
// with a header row derived from the record's field names; an existing
// target keeps its header, and rows are shaped to it (fields the header
// does not know are dropped, missing fields are left empty). The whole
// file is staged and rewritten through the Filesystem, so remote targets
// only ever observe complete content.
func (s *Store) Persist(ctx context.Context, rec *audit.Record) (*audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := s.Target()
	flat := rec.Flatten()

	existing, err := s.fs.Read(ctx, target)
	var header []string
	switch {
	case errors.Is(err, fs.ErrNotExist):
		header = headerFields(flat)
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("read audit file %s: %w", target, err)
	case len(existing) == 0:
		header = headerFields(flat)
	default:
		header, err = parseHeader(existing)
		if err != nil {
			return nil, fmt.Errorf("parse audit file %s: %w", target, err)
		}
	}

	var buf bytes.Buffer
	buf.Write(existing)
	w := csv.NewWriter(&buf)
	if len(existing) == 0 {
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("write audit header: %w", err)
		}
	}

	row := make([]string, len(header))
	for i, field := range header {
		value, ok := flat[field]
		if !ok {
			continue
		}
		cell, err := formatCell(value)
		if err != nil {
			return nil, fmt.Errorf("format field %q: %w", field, err)
		}
		row[i] = cell
	}
	if err := w.Write(row); err != nil {
		return nil, fmt.Errorf("write audit row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write audit row: %w", err)
	}

	if err := s.fs.Write(ctx, target, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write audit file %s: %w", target, err)
	}
	return rec, nil
}

// Prune is permanently unsupported: nothing is ever pruned, and the sentinel
// makes that observable as distinct from retention being disabled.
func (s *Store) Prune(context.Context, string, string, int) (int, error) {
	return 0, sentinel.ErrPruneUnsupported
}

// headerFields orders the flattened field names: the fixed record fields
// first, then any context fields sorted by name.
func headerFields(flat map[string]any) []string {
	base := []string{
		"id", "event", "entity_type", "entity_id", "actor_type", "actor_id",
		"old_values", "new_values", "tags", "redacted", "created_at",
	}
	known := make(map[string]struct{}, len(base))
	for _, field := range base {
		known[field] = struct{}{}
	}
	var extra []string
	for field := range flat {
		if _, ok := known[field]; !ok {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	return append(base, extra...)
}

func parseHeader(content []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	return header, nil
}

// formatCell renders one flattened value as a CSV cell: strings pass
// through, times use RFC3339Nano, tag slices are comma-joined, and
// composite values are JSON-encoded.
func formatCell(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case []string:
		joined, _ := platformstrings.JoinNullable(v)
		return joined, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

