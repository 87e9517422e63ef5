package audit

import "context"

// Driver is the pluggable persistence backend. Implementations are stateless
// per call; a single Driver value may serve concurrent captures.
type Driver interface {
	// Persist durably stores one record and returns the stored form
	// (with any store-assigned fields filled in).
	Persist(ctx context.Context, rec *Record) (*Record, error)
	// Prune enforces retention for one entity: it deletes the oldest
	// records by capture time until at most threshold remain, returning
	// how many were deleted. Threshold <= 0 disables pruning and returns
	// (0, nil). Append-only media return (0, sentinel.ErrPruneUnsupported).
	Prune(ctx context.Context, entityType, entityID string, threshold int) (int, error)
}

// Reader is optionally implemented by drivers that support querying stored
// records. The file driver does not; the keyed stores do.
type Reader interface {
	ListByEntity(ctx context.Context, entityType, entityID string) ([]Record, error)
	ListRecent(ctx context.Context, limit int) ([]Record, error)
}

// Job is a deferred capture: a fully built record plus the persistence
// parameters resolved at capture time. Resolver outputs are already baked
// into the record because request-scoped values are not re-derivable later.
type Job struct {
	Record    *Record `json:"record"`
	Driver    string  `json:"driver"`
	Threshold int     `json:"threshold"`
}
