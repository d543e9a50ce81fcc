package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the puzzlepool library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Allocation errors - caller-visible outcomes of Pool.Allocate.
var (
	// ErrLockTimeout is returned when the assignment lock could not be acquired
	// within the configured wait budget. Retryable: back off and retry the request.
	ErrLockTimeout = errors.New("assignment lock busy, retry later")

	// ErrKeyspaceExhausted is returned when no free segment remains in the keyspace.
	// Not retryable until an assignment expires or is released.
	ErrKeyspaceExhausted = errors.New("keyspace exhausted")

	// ErrAllocationFailed is returned when persistence retries are exhausted. Retryable.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrInvalidRange is returned when a caller-supplied custom interval is invalid
	// or overlaps a reserved interval.
	ErrInvalidRange = errors.New("invalid range")

	// ErrOwnerRequired is returned when a request carries no owner token.
	ErrOwnerRequired = errors.New("owner is required")
)

// Store errors - returned by AssignmentStore implementations.
var (
	// ErrUniqueViolation is returned by AssignmentStore.Create when an assignment
	// with the exact same interval already exists.
	ErrUniqueViolation = errors.New("assignment interval already exists")

	// ErrNotFound is returned when an assignment does not exist.
	ErrNotFound = errors.New("assignment not found")
)

// Block lifecycle errors - returned by Pool operations on existing blocks.
var (
	// ErrNotOwner is returned when an owner operates on a block it does not own.
	ErrNotOwner = errors.New("block does not belong to this owner")

	// ErrNotActive is returned when a block is already completed or expired.
	ErrNotActive = errors.New("block already completed or expired")

	// ErrCheckworkMismatch is returned when submitted scalars do not cover every
	// checkwork identifier of the block.
	ErrCheckworkMismatch = errors.New("not all checkwork identifiers were matched")

	// ErrInvalidScalar is returned for malformed or out-of-range scalars.
	ErrInvalidScalar = errors.New("invalid scalar")
)

// Configuration and wiring errors.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreRequired is returned when no assignment store is supplied.
	ErrStoreRequired = errors.New("assignment store is required")

	// ErrLockRequired is returned when no assignment lock is supplied.
	ErrLockRequired = errors.New("assignment lock is required")

	// ErrDeriverRequired is returned when no identifier deriver is supplied.
	ErrDeriverRequired = errors.New("identifier deriver is required")

	// ErrConnectivity indicates a NATS/KV connectivity issue.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsRetryable reports whether err is a transient allocation outcome the caller
// should retry after backing off.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrAllocationFailed) ||
		errors.Is(err, ErrConnectivity)
}

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
