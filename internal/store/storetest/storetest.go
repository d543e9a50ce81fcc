// Package storetest is a conformance suite for types.AssignmentStore
// implementations. Every backend runs the same contract tests.
package storetest

import (
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/types"
)

// Factory builds an empty store bound to clock.
type Factory func(t *testing.T, clock *clockwork.FakeClock) types.AssignmentStore

// Epoch is the fake clock start used by the suite.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAssignment(clock clockwork.Clock, owner string, iv types.Interval) types.NewAssignment {
	now := clock.Now()
	return types.NewAssignment{
		Owner:      owner,
		Interval:   iv,
		Provenance: types.ProvenanceFresh,
		CreatedAt:  now,
		ExpiresAt:  now.Add(12 * time.Hour),
	}
}

// Run executes the conformance suite against the factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("create and get round trip", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)

		huge, _ := new(big.Int).SetString("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff00", 16)
		iv := types.IntervalOf(huge, big.NewInt(0xff))

		na := newAssignment(clock, "owner-1", iv)
		na.WorkerID = "w1"
		na.SampleIdentifiers = []string{"id-1", "id-2"}

		created, err := s.Create(t.Context(), na)
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		require.Equal(t, types.StatusActive, created.Status)

		got, err := s.Get(t.Context(), created.ID)
		require.NoError(t, err)
		require.True(t, got.Interval.Equal(iv))
		require.Equal(t, "owner-1", got.Owner)
		require.Equal(t, "w1", got.WorkerID)
		require.Equal(t, types.ProvenanceFresh, got.Provenance)
		require.Equal(t, []string{"id-1", "id-2"}, got.SampleIdentifiers)
		require.True(t, got.ExpiresAt.Equal(Epoch.Add(12*time.Hour)))

		_, err = s.Get(t.Context(), "missing")
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("exact duplicates are rejected", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)

		_, err := s.Create(t.Context(), newAssignment(clock, "a", types.NewInterval(10, 20)))
		require.NoError(t, err)

		_, err = s.Create(t.Context(), newAssignment(clock, "b", types.NewInterval(10, 20)))
		require.ErrorIs(t, err, types.ErrUniqueViolation)

		exists, err := s.ExistsExact(t.Context(), types.NewInterval(10, 20))
		require.NoError(t, err)
		require.True(t, exists)

		exists, err = s.ExistsExact(t.Context(), types.NewInterval(10, 21))
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("expired interval can be created again", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)

		first, err := s.Create(t.Context(), newAssignment(clock, "a", types.NewInterval(10, 20)))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(t.Context(), first.ID, types.StatusExpired, clock.Now()))

		exists, err := s.ExistsExact(t.Context(), types.NewInterval(10, 20))
		require.NoError(t, err)
		require.False(t, exists)

		second, err := s.Create(t.Context(), newAssignment(clock, "b", types.NewInterval(10, 20)))
		require.NoError(t, err)
		require.NotEqual(t, first.ID, second.ID)
	})

	t.Run("completed interval stays reserved", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)

		a, err := s.Create(t.Context(), newAssignment(clock, "a", types.NewInterval(0, 5)))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(t.Context(), a.ID, types.StatusCompleted, clock.Now()))

		_, err = s.Create(t.Context(), newAssignment(clock, "b", types.NewInterval(0, 5)))
		require.ErrorIs(t, err, types.ErrUniqueViolation)
	})

	t.Run("reserved and expired interval queries", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		ks := types.Keyspace(types.NewInterval(0, 100))

		active, err := s.Create(ctx, newAssignment(clock, "a", types.NewInterval(0, 10)))
		require.NoError(t, err)
		completed, err := s.Create(ctx, newAssignment(clock, "b", types.NewInterval(10, 20)))
		require.NoError(t, err)
		require.NoError(t, s.UpdateStatus(ctx, completed.ID, types.StatusCompleted, clock.Now()))
		_, err = s.Create(ctx, newAssignment(clock, "c", types.NewInterval(500, 600)))
		require.NoError(t, err)

		var expiredIDs []string
		for i, iv := range []types.Interval{types.NewInterval(40, 50), types.NewInterval(20, 30), types.NewInterval(60, 70)} {
			a, err := s.Create(ctx, newAssignment(clock, "x", iv))
			require.NoError(t, err)
			clock.Advance(time.Duration(i+1) * time.Second)
			require.NoError(t, s.UpdateStatus(ctx, a.ID, types.StatusExpired, clock.Now()))
			expiredIDs = append(expiredIDs, a.ID)
		}
		require.Len(t, expiredIDs, 3)

		reserved, err := s.FindReservedIntervals(ctx, ks)
		require.NoError(t, err)
		require.Len(t, reserved, 2)
		require.True(t, containsInterval(reserved, active.Interval))
		require.True(t, containsInterval(reserved, completed.Interval))

		expired, err := s.FindExpiredIntervals(ctx, ks, 0)
		require.NoError(t, err)
		require.Len(t, expired, 3)
		require.True(t, expired[0].Equal(types.NewInterval(40, 50)), "stalest first")
		require.True(t, expired[1].Equal(types.NewInterval(20, 30)))
		require.True(t, expired[2].Equal(types.NewInterval(60, 70)))

		limited, err := s.FindExpiredIntervals(ctx, ks, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
	})

	t.Run("find active by owner", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		_, err := s.FindActiveByOwner(ctx, "owner", "")
		require.ErrorIs(t, err, types.ErrNotFound)

		na := newAssignment(clock, "owner", types.NewInterval(0, 10))
		na.WorkerID = "w1"
		first, err := s.Create(ctx, na)
		require.NoError(t, err)

		clock.Advance(time.Second)
		na = newAssignment(clock, "owner", types.NewInterval(10, 20))
		na.WorkerID = "w2"
		second, err := s.Create(ctx, na)
		require.NoError(t, err)

		got, err := s.FindActiveByOwner(ctx, "owner", "")
		require.NoError(t, err)
		require.Equal(t, second.ID, got.ID)

		got, err = s.FindActiveByOwner(ctx, "owner", "w1")
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		require.NoError(t, s.UpdateStatus(ctx, first.ID, types.StatusExpired, clock.Now()))
		_, err = s.FindActiveByOwner(ctx, "owner", "w1")
		require.ErrorIs(t, err, types.ErrNotFound)

		_, err = s.FindActiveByOwner(ctx, "someone-else", "")
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("status transitions", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		require.ErrorIs(t, s.UpdateStatus(ctx, "missing", types.StatusExpired, clock.Now()), types.ErrNotFound)

		a, err := s.Create(ctx, newAssignment(clock, "a", types.NewInterval(0, 10)))
		require.NoError(t, err)

		clock.Advance(time.Minute)
		require.NoError(t, s.UpdateStatus(ctx, a.ID, types.StatusExpired, clock.Now()))

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, types.StatusExpired, got.Status)
		require.True(t, got.ExpiresAt.Equal(clock.Now()), "release moves expiry to now")
		require.True(t, got.UpdatedAt.Equal(clock.Now()))

		err = s.UpdateStatus(ctx, a.ID, types.StatusCompleted, clock.Now())
		require.ErrorIs(t, err, types.ErrNotActive)
	})

	t.Run("sample identifiers", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		a, err := s.Create(ctx, newAssignment(clock, "a", types.NewInterval(0, 10)))
		require.NoError(t, err)
		require.NoError(t, s.SetSampleIdentifiers(ctx, a.ID, []string{"p", "q"}))

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"p", "q"}, got.SampleIdentifiers)

		require.ErrorIs(t, s.SetSampleIdentifiers(ctx, "missing", nil), types.ErrNotFound)
	})

	t.Run("solution", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		a, err := s.Create(ctx, newAssignment(clock, "a", types.NewInterval(0, 10)))
		require.NoError(t, err)
		require.Nil(t, a.Solution)

		sol := types.Solution{Scalars: []string{"01", "02"}, Credits: 0.5, HitScalar: "02"}
		require.NoError(t, s.SetSolution(ctx, a.ID, sol))
		require.NoError(t, s.UpdateStatus(ctx, a.ID, types.StatusCompleted, clock.Now()))

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, types.StatusCompleted, got.Status)
		require.Equal(t, &sol, got.Solution)

		// Recorded on completed blocks too.
		sol.Credits = 1
		require.NoError(t, s.SetSolution(ctx, a.ID, sol))
		got, err = s.Get(ctx, a.ID)
		require.NoError(t, err)
		require.InDelta(t, 1.0, got.Solution.Credits, 0)

		require.ErrorIs(t, s.SetSolution(ctx, "missing", sol), types.ErrNotFound)
	})

	t.Run("sweep expired", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)
		ctx := t.Context()

		short := newAssignment(clock, "a", types.NewInterval(0, 10))
		short.ExpiresAt = clock.Now().Add(time.Hour)
		stale, err := s.Create(ctx, short)
		require.NoError(t, err)

		fresh, err := s.Create(ctx, newAssignment(clock, "b", types.NewInterval(10, 20)))
		require.NoError(t, err)

		swept, err := s.SweepExpired(ctx, clock.Now())
		require.NoError(t, err)
		require.Empty(t, swept)

		clock.Advance(time.Hour)
		swept, err = s.SweepExpired(ctx, clock.Now())
		require.NoError(t, err)
		require.Len(t, swept, 1)
		require.Equal(t, stale.ID, swept[0].ID)
		require.Equal(t, types.StatusExpired, swept[0].Status)

		got, err := s.Get(ctx, fresh.ID)
		require.NoError(t, err)
		require.Equal(t, types.StatusActive, got.Status)

		exists, err := s.ExistsExact(ctx, stale.Interval)
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("concurrent creates of one interval", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(Epoch)
		s := factory(t, clock)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(t.Context(), newAssignment(clock, "racer", types.NewInterval(100, 200)))
				if err == nil {
					wins.Add(1)
					return
				}
				assert.ErrorIs(t, err, types.ErrUniqueViolation)
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load())
	})
}

func containsInterval(ivs []types.Interval, iv types.Interval) bool {
	for _, x := range ivs {
		if x.Equal(iv) {
			return true
		}
	}

	return false
}
