package metrics

import "github.com/arloliu/puzzlepool/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	pool, err := puzzlepool.New(&cfg, store, lock, deriver, puzzlepool.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// AllocatorMetrics implementation

// RecordAllocation discards the allocation metric.
func (n *NopMetrics) RecordAllocation(_ /* provenance */ types.Provenance, _ /* outcome */ string, _ /* duration */ float64) {
	// No-op
}

// RecordUniquenessRetries discards the uniqueness retry metric.
func (n *NopMetrics) RecordUniquenessRetries(_ /* attempts */ int) {
	// No-op
}

// RecordPersistRetries discards the persist retry metric.
func (n *NopMetrics) RecordPersistRetries(_ /* attempts */ int) {
	// No-op
}

// RecordFreeSpace discards the free segment gauge.
func (n *NopMetrics) RecordFreeSpace(_ /* segments */ int) {
	// No-op
}

// LockMetrics implementation

// RecordLockWait discards the lock wait metric.
func (n *NopMetrics) RecordLockWait(_ /* duration */ float64, _ /* acquired */ bool) {
	// No-op
}

// LifecycleMetrics implementation

// RecordStatusChange discards the status change metric.
func (n *NopMetrics) RecordStatusChange(_ /* to */ types.Status, _ /* count */ int) {
	// No-op
}

// RecordStoreOperationDuration discards the store latency metric.
func (n *NopMetrics) RecordStoreOperationDuration(_ /* operation */ string, _ /* duration */ float64) {
	// No-op
}

// CheckworkMetrics implementation

// RecordSampleSize discards the sample size metric.
func (n *NopMetrics) RecordSampleSize(_ /* requested */, _ /* produced */ int) {
	// No-op
}

// RecordVerification discards the verification metric.
func (n *NopMetrics) RecordVerification(_ /* outcome */ string) {
	// No-op
}
