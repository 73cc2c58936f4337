package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and backend clients return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: entity already exists or violates a uniqueness constraint
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backend process or store temporarily unavailable
// - ErrTimeout: backend call exceeded its deadline
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrTimeout      = errors.New("timeout")
)
