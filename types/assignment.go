package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle status of an assignment.
//
// Transitions:
//
//	ACTIVE → COMPLETED  (owner proved the work)
//	ACTIVE → EXPIRED    (time-based sweep or explicit release)
//
// EXPIRED assignments stay in the store as reuse candidates but are not reserved.
type Status string

const (
	// StatusActive marks a block currently being scanned by its owner.
	StatusActive Status = "ACTIVE"

	// StatusCompleted marks a block whose checkwork was verified.
	StatusCompleted Status = "COMPLETED"

	// StatusExpired marks an abandoned or released block.
	StatusExpired Status = "EXPIRED"
)

// Reserved reports whether intervals with this status must never be reallocated.
func (s Status) Reserved() bool {
	return s == StatusActive || s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// String returns the status name.
func (s Status) String() string {
	return string(s)
}

// UnmarshalText rejects unknown status names.
func (s *Status) UnmarshalText(text []byte) error {
	v := Status(text)
	if !v.Valid() {
		return fmt.Errorf("unknown assignment status %q", string(text))
	}
	*s = v

	return nil
}

// Provenance tags how the allocator arrived at an interval.
type Provenance string

const (
	// ProvenanceReused means the interval came from an expired assignment.
	ProvenanceReused Provenance = "reused"

	// ProvenanceFresh means the interval was drawn from a free segment at the requested size.
	ProvenanceFresh Provenance = "fresh"

	// ProvenanceShrunkToFit means no free segment fit the request and the
	// largest free segment was assigned whole.
	ProvenanceShrunkToFit Provenance = "shrunk-to-fit"

	// ProvenanceCustom means the caller supplied the interval explicitly.
	ProvenanceCustom Provenance = "custom"
)

// Assignment is one exclusive sub-interval handed to a worker.
type Assignment struct {
	// ID uniquely identifies the assignment.
	ID string `json:"id"`

	// Owner is the token of the client that owns the block.
	Owner string `json:"owner"`

	// WorkerID optionally distinguishes several workers of the same owner.
	WorkerID string `json:"workerId,omitempty"`

	// Interval is the assigned [start, end) range.
	Interval Interval `json:"interval"`

	// Status is the lifecycle status.
	Status Status `json:"status"`

	// Provenance records how the interval was chosen.
	Provenance Provenance `json:"provenance,omitempty"`

	// SampleIdentifiers are the checkwork identifiers the owner must reproduce.
	SampleIdentifiers []string `json:"sampleIdentifiers"`

	// Solution is the accepted submission, or a keyspace hit from a rejected one.
	Solution *Solution `json:"solution,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether an ACTIVE assignment is past its deadline at now.
func (a *Assignment) Expired(now time.Time) bool {
	return a.Status == StatusActive && !a.ExpiresAt.After(now)
}

// Solution records what a worker submitted for a block.
type Solution struct {
	// Scalars are the submitted scalars as 64-digit hex.
	Scalars []string `json:"scalars"`

	// Credits awarded on completion; zero when the checkwork did not match.
	Credits float64 `json:"credits"`

	// HitScalar is the scalar deriving to the puzzle address, if one was submitted.
	HitScalar string `json:"hitScalar,omitempty"`
}

// Clone deep-copies the solution.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	out := *s
	out.Scalars = append([]string(nil), s.Scalars...)

	return &out
}

// NewAssignment describes an assignment about to be persisted.
type NewAssignment struct {
	Owner             string
	WorkerID          string
	Interval          Interval
	Provenance        Provenance
	SampleIdentifiers []string
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// Lease is an exclusive, time-bounded hold on the assignment lock.
type Lease struct {
	Token     string
	ExpiresAt time.Time
}
