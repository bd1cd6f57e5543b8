package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, caches and publishers
// return these (optionally wrapped) so the pipeline can translate them into
// coded domain errors.
//
// - ErrNotFound: no stored result or row for the requested id
// - ErrConflict: a run with the same id was already persisted
// - ErrInvalidState: backing resource in the wrong state (closed client, missing table)
// - ErrUnavailable: backing service temporarily unreachable
//
// For rule and configuration failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
