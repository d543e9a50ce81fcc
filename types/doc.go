// Package types provides core type definitions and interfaces for the puzzlepool library.
//
// This package contains shared types that are used across multiple packages in the
// puzzlepool library. By keeping these types in a separate package, we avoid import cycles
// between the main puzzlepool package and its internal implementations.
//
// Key types:
//   - Interval, Keyspace: half-open arbitrary-precision ranges
//   - Assignment, Status, Provenance: the block model
//   - AssignmentStore, ActiveBlockCache, AssignmentLock: external collaborators
//   - IdentifierDeriver, KeyspaceSource: puzzle-specific plumbing
//   - Logger, MetricsCollector, Hooks: observability
package types
