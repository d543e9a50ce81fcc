// Package store holds the pieces shared by the AssignmentStore backends:
// status transition rules, record cloning and the staleness ordering of
// expired intervals.
//
// Backends live in sub-packages:
//   - memory: xsync maps, for tests and single-process pools
//   - natskv: JetStream KV, for pools coordinating through NATS
//   - sqlite: modernc.org/sqlite, for single-node durable deployments
package store

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/arloliu/puzzlepool/types"
)

// CheckTransition validates a status change of an assignment currently in from.
//
// Only ACTIVE assignments may change status, and only to COMPLETED or EXPIRED.
func CheckTransition(id string, from, to types.Status) error {
	if to != types.StatusCompleted && to != types.StatusExpired {
		return fmt.Errorf("assignment %s: cannot transition to %q", id, to)
	}
	if from != types.StatusActive {
		return fmt.Errorf("assignment %s is %s: %w", id, from, types.ErrNotActive)
	}

	return nil
}

// ApplyStatus returns a copy of a moved to status at now.
//
// An EXPIRED transition pulls ExpiresAt back to now when it still lies in the
// future, so released blocks read as expired immediately.
func ApplyStatus(a *types.Assignment, to types.Status, now time.Time) *types.Assignment {
	out := Clone(a)
	out.Status = to
	out.UpdatedAt = now
	if to == types.StatusExpired && out.ExpiresAt.After(now) {
		out.ExpiresAt = now
	}

	return out
}

// Build turns a NewAssignment into the ACTIVE record a backend persists.
func Build(id string, na types.NewAssignment) *types.Assignment {
	return &types.Assignment{
		ID:                id,
		Owner:             na.Owner,
		WorkerID:          na.WorkerID,
		Interval:          na.Interval.Clone(),
		Status:            types.StatusActive,
		Provenance:        na.Provenance,
		SampleIdentifiers: slices.Clone(na.SampleIdentifiers),
		CreatedAt:         na.CreatedAt,
		UpdatedAt:         na.CreatedAt,
		ExpiresAt:         na.ExpiresAt,
	}
}

// ValidateNew rejects assignments that could never satisfy the keyspace invariants.
func ValidateNew(na types.NewAssignment) error {
	if !na.Interval.Valid() {
		return fmt.Errorf("%w: %s", types.ErrInvalidRange, na.Interval)
	}
	if na.Owner == "" {
		return types.ErrOwnerRequired
	}

	return nil
}

// Clone deep-copies an assignment.
func Clone(a *types.Assignment) *types.Assignment {
	if a == nil {
		return nil
	}
	out := *a
	out.Interval = a.Interval.Clone()
	out.SampleIdentifiers = slices.Clone(a.SampleIdentifiers)
	out.Solution = a.Solution.Clone()

	return &out
}

// StalestIntervals orders expired assignments by UpdatedAt ascending (ties by
// creation time, then id) and returns up to limit of their intervals that
// intersect the keyspace. limit <= 0 means no limit.
func StalestIntervals(expired []*types.Assignment, keyspace types.Keyspace, limit int) []types.Interval {
	ks := keyspace.Interval()

	candidates := make([]*types.Assignment, 0, len(expired))
	for _, a := range expired {
		if a.Status == types.StatusExpired && a.Interval.Overlaps(ks) {
			candidates = append(candidates, a)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}

		return a.ID < b.ID
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]types.Interval, len(candidates))
	for i, a := range candidates {
		out[i] = a.Interval.Clone()
	}

	return out
}

// Newest returns the most recently created assignment (ties by id), or nil.
func Newest(as []*types.Assignment) *types.Assignment {
	var best *types.Assignment
	for _, a := range as {
		if best == nil || a.CreatedAt.After(best.CreatedAt) ||
			(a.CreatedAt.Equal(best.CreatedAt) && a.ID > best.ID) {
			best = a
		}
	}

	return best
}

// MatchesOwner reports whether a belongs to owner and, when workerID is set, to that worker.
func MatchesOwner(a *types.Assignment, owner, workerID string) bool {
	return a.Owner == owner && (workerID == "" || a.WorkerID == workerID)
}
