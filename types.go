package puzzlepool

import "github.com/arloliu/puzzlepool/types"

// Re-export types from the types package.
//
// Internal packages depend on types rather than on the root package, which
// keeps the import graph acyclic while users still write puzzlepool.Interval,
// puzzlepool.Logger and so on.
type (
	Interval     = types.Interval
	Keyspace     = types.Keyspace
	Assignment   = types.Assignment
	Status       = types.Status
	Provenance   = types.Provenance
	PuzzleConfig = types.PuzzleConfig
	Solution     = types.Solution
)

// Re-export interfaces from the types package for convenience.
type (
	AssignmentStore   = types.AssignmentStore
	ActiveBlockCache  = types.ActiveBlockCache
	AssignmentLock    = types.AssignmentLock
	IdentifierDeriver = types.IdentifierDeriver
	KeyspaceSource    = types.KeyspaceSource
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
	Hooks             = types.Hooks
)

// Re-export Status constants.
const (
	StatusActive    = types.StatusActive
	StatusCompleted = types.StatusCompleted
	StatusExpired   = types.StatusExpired
)

// Re-export Provenance constants.
const (
	ProvenanceReused      = types.ProvenanceReused
	ProvenanceFresh       = types.ProvenanceFresh
	ProvenanceShrunkToFit = types.ProvenanceShrunkToFit
	ProvenanceCustom      = types.ProvenanceCustom
)
