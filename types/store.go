package types

import (
	"context"
	"time"
)

// AssignmentStore persists assignments and answers the interval queries the
// allocator needs. It is the source of truth for block ownership.
//
// Uniqueness: at most one ACTIVE or COMPLETED assignment may exist for an exact
// [start, end) pair. EXPIRED rows do not take part in the constraint, so an
// expired interval can be handed out again verbatim.
//
// Implementations must be safe for concurrent use. Mutations from sweeps and
// completions may run concurrently with an allocation; the allocator tolerates
// this by re-validating uniqueness at Create time.
type AssignmentStore interface {
	// FindReservedIntervals returns the intervals of all ACTIVE and COMPLETED
	// assignments that intersect the keyspace. Order is unspecified.
	FindReservedIntervals(ctx context.Context, keyspace Keyspace) ([]Interval, error)

	// FindExpiredIntervals returns up to limit intervals of EXPIRED assignments
	// intersecting the keyspace, stalest (oldest UpdatedAt) first. limit <= 0 means no limit.
	FindExpiredIntervals(ctx context.Context, keyspace Keyspace, limit int) ([]Interval, error)

	// ExistsExact reports whether an ACTIVE or COMPLETED assignment with exactly
	// this interval exists.
	ExistsExact(ctx context.Context, iv Interval) (bool, error)

	// Create persists a new ACTIVE assignment.
	//
	// Returns ErrUniqueViolation (possibly wrapped) when the exact interval is
	// already held by an ACTIVE or COMPLETED assignment.
	Create(ctx context.Context, na NewAssignment) (*Assignment, error)

	// Get returns the assignment with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Assignment, error)

	// FindActiveByOwner returns the most recently created ACTIVE assignment of
	// the owner (and worker, when workerID is non-empty) or ErrNotFound.
	FindActiveByOwner(ctx context.Context, owner, workerID string) (*Assignment, error)

	// UpdateStatus transitions the assignment to status at time now.
	//
	// Transitions out of a non-ACTIVE status return ErrNotActive. An EXPIRED
	// transition also moves ExpiresAt to now when it lies in the future.
	UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error

	// SetSampleIdentifiers stores the checkwork identifiers of an assignment.
	SetSampleIdentifiers(ctx context.Context, id string, identifiers []string) error

	// SetSolution records the submission of an assignment regardless of its
	// status, replacing any earlier one. Returns ErrNotFound for unknown IDs.
	SetSolution(ctx context.Context, id string, solution Solution) error

	// SweepExpired moves every ACTIVE assignment whose ExpiresAt is not after
	// now to EXPIRED and returns the affected assignments.
	SweepExpired(ctx context.Context, now time.Time) ([]*Assignment, error)
}

// ActiveBlockCache maps an owner (and optional worker) to its current active
// assignment ID.
//
// The cache is advisory: the store is the source of truth and callers must
// verify any hit against it. Misses and stale entries never affect allocation.
type ActiveBlockCache interface {
	// Get returns the cached assignment ID and whether an entry was found.
	Get(ctx context.Context, owner, workerID string) (string, bool, error)

	// Set records assignmentID for the owner. ttl <= 0 means no expiry.
	Set(ctx context.Context, owner, workerID, assignmentID string, ttl time.Duration) error

	// Clear removes the owner's entry. Clearing a missing entry is not an error.
	Clear(ctx context.Context, owner, workerID string) error
}
