package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and drivers return these
// (optionally wrapped) so callers can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrPruneUnsupported: the storage medium cannot selectively delete records
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store temporarily unavailable
//
// For configuration errors (unknown driver, unregistered modifier), use the
// typed errors in pkg/audit directly.
var (
	ErrNotFound         = errors.New("not found")
	ErrPruneUnsupported = errors.New("prune unsupported")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("unavailable")
)
