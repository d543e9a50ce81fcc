package types

import "context"

// AssignmentLock is the global mutual-exclusion lease guarding interval selection.
//
// Only one lease may be live at a time. Leases expire on their own after the
// implementation's TTL so a crashed holder cannot wedge allocation forever.
type AssignmentLock interface {
	// TryAcquire makes one non-blocking attempt to take the lease.
	//
	// Returns ok=false without error when another holder owns the lease.
	TryAcquire(ctx context.Context) (lease Lease, ok bool, err error)

	// Release gives up the lease.
	//
	// Releasing a lease that is no longer owned (expired, already released or
	// taken over by another holder) is a no-op and must not disturb the current
	// holder. Errors are reserved for transport failures.
	Release(ctx context.Context, lease Lease) error
}
