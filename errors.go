package puzzlepool

import (
	"errors"

	"github.com/arloliu/puzzlepool/types"
)

// Sentinel errors returned by the Pool.
//
// They alias the errors in the types package so callers can match with
// errors.Is against either name.
var (
	// ErrLockTimeout is returned when the assignment lock stayed busy for the
	// whole wait budget. Retryable.
	ErrLockTimeout = types.ErrLockTimeout

	// ErrKeyspaceExhausted is returned when every key is reserved.
	ErrKeyspaceExhausted = types.ErrKeyspaceExhausted

	// ErrAllocationFailed is returned when persistence retries ran out. Retryable.
	ErrAllocationFailed = types.ErrAllocationFailed

	// ErrInvalidRange is returned for malformed sizes or custom intervals.
	ErrInvalidRange = types.ErrInvalidRange

	// ErrOwnerRequired is returned when a request carries no owner token.
	ErrOwnerRequired = types.ErrOwnerRequired

	// ErrNotFound is returned when the owner has no active block or a block id is unknown.
	ErrNotFound = types.ErrNotFound

	// ErrNotOwner is returned when a block belongs to another owner.
	ErrNotOwner = types.ErrNotOwner

	// ErrNotActive is returned when a block is already completed or expired.
	ErrNotActive = types.ErrNotActive

	// ErrCheckworkMismatch is returned when a submission misses checkwork identifiers.
	ErrCheckworkMismatch = types.ErrCheckworkMismatch

	// ErrInvalidScalar is returned for malformed submitted scalars.
	ErrInvalidScalar = types.ErrInvalidScalar

	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrStoreRequired is returned when the assignment store is nil.
	ErrStoreRequired = types.ErrStoreRequired

	// ErrLockRequired is returned when the assignment lock is nil.
	ErrLockRequired = types.ErrLockRequired

	// ErrDeriverRequired is returned when the identifier deriver is nil.
	ErrDeriverRequired = types.ErrDeriverRequired

	// ErrKeyspaceSourceRequired is returned when the keyspace source is nil.
	ErrKeyspaceSourceRequired = errors.New("keyspace source is required")

	// ErrAlreadyStarted is returned when Start is called on a running pool.
	ErrAlreadyStarted = errors.New("pool already started")

	// ErrNotStarted is returned when Stop is called on a pool that is not running.
	ErrNotStarted = errors.New("pool not started")
)

// IsRetryable reports whether err is a transient outcome the caller should
// retry after backing off.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
