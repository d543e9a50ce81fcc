// Package lock implements the global assignment lock and the bounded polling
// used to take it.
//
// Two implementations of types.AssignmentLock are provided:
//   - NATSLock: a lease key in a JetStream KV bucket whose TTL expires stale holders
//   - LocalLock: an in-process lease for single-node deployments and tests
//
// Acquire polls any AssignmentLock with jittered backoff and gives up with
// types.ErrLockTimeout once the wait budget is spent. Do wraps a critical
// section so the lease is released on every exit path.
package lock
