package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// Methods are called from request goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	AllocatorMetrics
	LockMetrics
	LifecycleMetrics
	CheckworkMetrics
}

// AllocatorMetrics defines metrics for range allocation.
type AllocatorMetrics interface {
	// RecordAllocation records the outcome of one Allocate call.
	//
	// Parameters:
	//   - provenance: Provenance of the interval ("" on failure)
	//   - outcome: "success", "exhausted", "failed", "invalid", "busy"
	//   - duration: Time taken in seconds, lock wait included
	RecordAllocation(provenance Provenance, outcome string, duration float64)

	// RecordUniquenessRetries records how many perturbations step 7 needed.
	RecordUniquenessRetries(attempts int)

	// RecordPersistRetries records how many Create attempts collided before success or failure.
	RecordPersistRetries(attempts int)

	// RecordFreeSpace sets the number of free segments seen by the last allocation.
	RecordFreeSpace(segments int)
}

// LockMetrics defines metrics for the assignment lock.
type LockMetrics interface {
	// RecordLockWait records time spent waiting for the lock and whether it was obtained.
	RecordLockWait(duration float64, acquired bool)
}

// LifecycleMetrics defines metrics for block status transitions.
type LifecycleMetrics interface {
	// RecordStatusChange records an assignment status transition.
	RecordStatusChange(to Status, count int)

	// RecordStoreOperationDuration records store operation latency.
	//
	// Parameters:
	//   - operation: "reserved", "expired", "exists", "create", "update", "sweep"
	//   - duration: Time taken in seconds
	RecordStoreOperationDuration(operation string, duration float64)
}

// CheckworkMetrics defines metrics for checkwork sampling and verification.
type CheckworkMetrics interface {
	// RecordSampleSize records how many unique scalars a sampling run produced
	// against how many were requested.
	RecordSampleSize(requested, produced int)

	// RecordVerification records a submission verification outcome ("accepted", "mismatch", "rejected").
	RecordVerification(outcome string)
}
