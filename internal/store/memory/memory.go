// Package memory implements types.AssignmentStore on lock-free maps.
//
// Uniqueness of reserved intervals is enforced with LoadOrStore on an index
// keyed by the exact interval, so concurrent Create calls for the same
// interval race safely without a global mutex.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/puzzlepool/internal/store"
	"github.com/arloliu/puzzlepool/types"
)

// Store is an in-memory AssignmentStore.
type Store struct {
	records *xsync.Map[string, *types.Assignment]
	// ranges maps Interval.Key() to the id of the ACTIVE or COMPLETED holder.
	ranges *xsync.Map[string, string]
	clock  clockwork.Clock
}

// Compile-time assertion that Store implements AssignmentStore.
var _ types.AssignmentStore = (*Store)(nil)

// New creates an empty store. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Store{
		records: xsync.NewMap[string, *types.Assignment](),
		ranges:  xsync.NewMap[string, string](),
		clock:   clock,
	}
}

// FindReservedIntervals returns ACTIVE and COMPLETED intervals intersecting the keyspace.
func (s *Store) FindReservedIntervals(_ context.Context, keyspace types.Keyspace) ([]types.Interval, error) {
	ks := keyspace.Interval()

	var out []types.Interval
	s.records.Range(func(_ string, a *types.Assignment) bool {
		if a.Status.Reserved() && a.Interval.Overlaps(ks) {
			out = append(out, a.Interval.Clone())
		}
		return true
	})

	return out, nil
}

// FindExpiredIntervals returns EXPIRED intervals stalest first.
func (s *Store) FindExpiredIntervals(_ context.Context, keyspace types.Keyspace, limit int) ([]types.Interval, error) {
	var expired []*types.Assignment
	s.records.Range(func(_ string, a *types.Assignment) bool {
		if a.Status == types.StatusExpired {
			expired = append(expired, a)
		}
		return true
	})

	return store.StalestIntervals(expired, keyspace, limit), nil
}

// ExistsExact reports whether a reserved assignment holds exactly iv.
func (s *Store) ExistsExact(_ context.Context, iv types.Interval) (bool, error) {
	_, ok := s.ranges.Load(iv.Key())
	return ok, nil
}

// Create persists a new ACTIVE assignment.
func (s *Store) Create(_ context.Context, na types.NewAssignment) (*types.Assignment, error) {
	if err := store.ValidateNew(na); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate assignment id: %w", err)
	}

	a := store.Build(id.String(), na)
	if _, loaded := s.ranges.LoadOrStore(a.Interval.Key(), a.ID); loaded {
		return nil, fmt.Errorf("%w: %s", types.ErrUniqueViolation, a.Interval)
	}
	s.records.Store(a.ID, a)

	return store.Clone(a), nil
}

// Get returns a copy of the assignment.
func (s *Store) Get(_ context.Context, id string) (*types.Assignment, error) {
	a, ok := s.records.Load(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return store.Clone(a), nil
}

// FindActiveByOwner returns the owner's newest ACTIVE assignment.
func (s *Store) FindActiveByOwner(_ context.Context, owner, workerID string) (*types.Assignment, error) {
	var mine []*types.Assignment
	s.records.Range(func(_ string, a *types.Assignment) bool {
		if a.Status == types.StatusActive && store.MatchesOwner(a, owner, workerID) {
			mine = append(mine, a)
		}
		return true
	})

	if best := store.Newest(mine); best != nil {
		return store.Clone(best), nil
	}

	return nil, fmt.Errorf("%w: no active block for %s", types.ErrNotFound, owner)
}

// UpdateStatus transitions an ACTIVE assignment.
func (s *Store) UpdateStatus(_ context.Context, id string, status types.Status, now time.Time) error {
	_, err := s.transition(id, status, now, nil)
	return err
}

// transition applies a status change atomically. When guard is non-nil and
// returns false the record is left untouched and (nil, nil) is returned.
func (s *Store) transition(id string, status types.Status, now time.Time, guard func(*types.Assignment) bool) (*types.Assignment, error) {
	var (
		updated *types.Assignment
		opErr   error
	)

	s.records.Compute(id, func(old *types.Assignment, loaded bool) (*types.Assignment, xsync.ComputeOp) {
		if !loaded {
			opErr = fmt.Errorf("%w: %s", types.ErrNotFound, id)
			return old, xsync.CancelOp
		}
		if guard != nil && !guard(old) {
			return old, xsync.CancelOp
		}
		if err := store.CheckTransition(id, old.Status, status); err != nil {
			opErr = err
			return old, xsync.CancelOp
		}
		updated = store.ApplyStatus(old, status, now)

		return updated, xsync.UpdateOp
	})
	if opErr != nil || updated == nil {
		return nil, opErr
	}

	if status == types.StatusExpired {
		s.releaseRange(updated)
	}

	return store.Clone(updated), nil
}

// releaseRange drops the uniqueness index entry if it still points at a.
func (s *Store) releaseRange(a *types.Assignment) {
	s.ranges.Compute(a.Interval.Key(), func(holder string, loaded bool) (string, xsync.ComputeOp) {
		if loaded && holder == a.ID {
			return holder, xsync.DeleteOp
		}
		return holder, xsync.CancelOp
	})
}

// SetSampleIdentifiers replaces the checkwork identifiers of an assignment.
func (s *Store) SetSampleIdentifiers(_ context.Context, id string, identifiers []string) error {
	found := false
	s.records.Compute(id, func(old *types.Assignment, loaded bool) (*types.Assignment, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		found = true
		next := store.Clone(old)
		next.SampleIdentifiers = append([]string(nil), identifiers...)

		return next, xsync.UpdateOp
	})
	if !found {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return nil
}

// SetSolution records the submission of an assignment.
func (s *Store) SetSolution(_ context.Context, id string, solution types.Solution) error {
	found := false
	s.records.Compute(id, func(old *types.Assignment, loaded bool) (*types.Assignment, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		found = true
		next := store.Clone(old)
		next.Solution = solution.Clone()

		return next, xsync.UpdateOp
	})
	if !found {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}

	return nil
}

// SweepExpired expires every ACTIVE assignment past its deadline.
func (s *Store) SweepExpired(_ context.Context, now time.Time) ([]*types.Assignment, error) {
	var due []string
	s.records.Range(func(id string, a *types.Assignment) bool {
		if a.Expired(now) {
			due = append(due, id)
		}
		return true
	})

	swept := make([]*types.Assignment, 0, len(due))
	for _, id := range due {
		a, err := s.transition(id, types.StatusExpired, now, func(cur *types.Assignment) bool {
			return cur.Expired(now)
		})
		if err != nil {
			continue // completed or released concurrently
		}
		if a != nil {
			swept = append(swept, a)
		}
	}

	return swept, nil
}

// Len returns the number of stored assignments.
func (s *Store) Len() int {
	return s.records.Size()
}
