package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/types"
)

func TestCheckTransition(t *testing.T) {
	require.NoError(t, CheckTransition("a", types.StatusActive, types.StatusCompleted))
	require.NoError(t, CheckTransition("a", types.StatusActive, types.StatusExpired))
	require.ErrorIs(t, CheckTransition("a", types.StatusCompleted, types.StatusExpired), types.ErrNotActive)
	require.ErrorIs(t, CheckTransition("a", types.StatusExpired, types.StatusCompleted), types.ErrNotActive)
	require.Error(t, CheckTransition("a", types.StatusActive, types.StatusActive))
}

func TestApplyStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &types.Assignment{
		ID:                "a",
		Interval:          types.NewInterval(0, 10),
		Status:            types.StatusActive,
		SampleIdentifiers: []string{"x"},
		ExpiresAt:         now.Add(time.Hour),
	}

	expired := ApplyStatus(a, types.StatusExpired, now)
	require.Equal(t, types.StatusExpired, expired.Status)
	require.Equal(t, now, expired.ExpiresAt)
	require.Equal(t, now, expired.UpdatedAt)
	require.Equal(t, types.StatusActive, a.Status, "input must not be mutated")

	completed := ApplyStatus(a, types.StatusCompleted, now)
	require.Equal(t, now.Add(time.Hour), completed.ExpiresAt)

	expired.SampleIdentifiers[0] = "y"
	require.Equal(t, "x", a.SampleIdentifiers[0])
}

func TestStalestIntervals(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(id string, start, end int64, status types.Status, updated time.Duration) *types.Assignment {
		return &types.Assignment{
			ID:        id,
			Interval:  types.NewInterval(start, end),
			Status:    status,
			UpdatedAt: base.Add(updated),
		}
	}

	ks := types.Keyspace(types.NewInterval(0, 100))
	in := []*types.Assignment{
		mk("c", 20, 30, types.StatusExpired, 3*time.Minute),
		mk("a", 0, 10, types.StatusExpired, 1*time.Minute),
		mk("b", 10, 20, types.StatusExpired, 2*time.Minute),
		mk("d", 30, 40, types.StatusActive, 0),
		mk("e", 200, 300, types.StatusExpired, 0),
	}

	got := StalestIntervals(in, ks, 0)
	require.Len(t, got, 3)
	require.True(t, got[0].Equal(types.NewInterval(0, 10)))
	require.True(t, got[1].Equal(types.NewInterval(10, 20)))
	require.True(t, got[2].Equal(types.NewInterval(20, 30)))

	require.Len(t, StalestIntervals(in, ks, 2), 2)
}

func TestNewest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Nil(t, Newest(nil))

	got := Newest([]*types.Assignment{
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Second)},
		{ID: "c", CreatedAt: base},
	})
	require.Equal(t, "b", got.ID)
}
