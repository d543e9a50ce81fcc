// Package allocator hands out disjoint blocks of a keyspace.
//
// Allocate runs one selection under the global assignment lock:
//
//  1. read the reserved (ACTIVE, COMPLETED) intervals and derive free segments
//  2. prefer an expired interval close to the requested size (reuse phase)
//  3. otherwise draw a start inside a free segment weighted by room (fresh phase),
//     or take the largest free segment whole when nothing fits (shrunk-to-fit)
//  4. perturb the candidate while the store reports an exact duplicate
//  5. persist, re-selecting from the same snapshot on uniqueness conflicts
//
// Every loop is bounded. Lock contention surfaces as types.ErrLockTimeout,
// persistence exhaustion as types.ErrAllocationFailed; both are retryable.
package allocator
