package testutil

import (
	"math/big"
	"slices"
	"testing"

	"github.com/arloliu/puzzlepool/types"
)

// AssertDisjoint verifies that no two intervals share a point.
//
// Parameters:
//   - t: testing handle
//   - intervals: intervals of reserving blocks, in any order
func AssertDisjoint(t testing.TB, intervals []types.Interval) {
	t.Helper()

	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b types.Interval) int {
		return a.Start.Cmp(b.Start)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].End.Cmp(sorted[i].Start) > 0 {
			t.Fatalf("overlapping blocks: %s and %s", sorted[i-1], sorted[i])
		}
	}
}

// AssertCovers verifies that the intervals are disjoint and together cover
// exactly want keys.
func AssertCovers(t testing.TB, intervals []types.Interval, want *big.Int) {
	t.Helper()

	AssertDisjoint(t, intervals)

	total := new(big.Int)
	for _, iv := range intervals {
		total.Add(total, iv.Len())
	}
	if total.Cmp(want) != 0 {
		t.Fatalf("blocks cover %s keys, want %s", total, want)
	}
}
