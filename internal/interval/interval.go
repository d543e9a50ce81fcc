// Package interval computes merged reservations and free space of a keyspace.
//
// All functions are pure: inputs are never mutated and results own fresh
// big.Int values.
package interval

import (
	"math/big"
	"slices"

	"github.com/arloliu/puzzlepool/types"
)

// Merge sorts intervals by start and coalesces overlapping or touching ones.
//
// Invalid intervals (nil bounds or start >= end) are dropped. The result is
// sorted and pairwise disjoint with gaps of at least one between neighbours.
func Merge(intervals []types.Interval) []types.Interval {
	sorted := make([]types.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv.Clone())
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	slices.SortFunc(sorted, func(a, b types.Interval) int {
		return a.Start.Cmp(b.Start)
	})

	merged := make([]types.Interval, 0, len(sorted))
	merged = append(merged, sorted[0])
	for _, cur := range sorted[1:] {
		last := &merged[len(merged)-1]
		if cur.Start.Cmp(last.End) <= 0 {
			if cur.End.Cmp(last.End) > 0 {
				last.End = cur.End
			}
			continue
		}
		merged = append(merged, cur)
	}

	return merged
}

// Clamp truncates every interval to the keyspace, dropping the parts (and
// intervals) that fall outside it.
func Clamp(keyspace types.Keyspace, intervals []types.Interval) []types.Interval {
	out := make([]types.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if c, ok := Intersect(keyspace.Interval(), iv); ok {
			out = append(out, c)
		}
	}

	return out
}

// FreeSegments returns keyspace \ reserved as sorted disjoint segments.
//
// reserved is clamped to the keyspace and merged first, so callers may pass
// raw store output. An empty reservation yields the whole keyspace; a fully
// reserved keyspace yields no segments.
func FreeSegments(keyspace types.Keyspace, reserved []types.Interval) []types.Interval {
	if !keyspace.Valid() {
		return nil
	}

	merged := Merge(Clamp(keyspace, reserved))

	var free []types.Interval
	cursor := new(big.Int).Set(keyspace.Start)
	for _, iv := range merged {
		if cursor.Cmp(iv.Start) < 0 {
			free = append(free, types.Interval{Start: new(big.Int).Set(cursor), End: new(big.Int).Set(iv.Start)})
		}
		if cursor.Cmp(iv.End) < 0 {
			cursor.Set(iv.End)
		}
	}
	if cursor.Cmp(keyspace.End) < 0 {
		free = append(free, types.Interval{Start: cursor, End: new(big.Int).Set(keyspace.End)})
	}

	return free
}

// Intersect returns a ∩ b and whether it is non-empty.
func Intersect(a, b types.Interval) (types.Interval, bool) {
	if !a.Valid() || !b.Valid() {
		return types.Interval{}, false
	}

	start := a.Start
	if b.Start.Cmp(start) > 0 {
		start = b.Start
	}
	end := a.End
	if b.End.Cmp(end) < 0 {
		end = b.End
	}
	if start.Cmp(end) >= 0 {
		return types.Interval{}, false
	}

	return types.Interval{Start: new(big.Int).Set(start), End: new(big.Int).Set(end)}, true
}

// TotalLength sums the lengths of the given intervals. Invalid ones count as zero.
func TotalLength(intervals []types.Interval) *big.Int {
	total := new(big.Int)
	for _, iv := range intervals {
		if iv.Valid() {
			total.Add(total, iv.End)
			total.Sub(total, iv.Start)
		}
	}

	return total
}

// Largest returns the index of the longest interval, the first one on ties.
// Returns -1 for an empty slice.
func Largest(intervals []types.Interval) int {
	best := -1
	var bestLen *big.Int
	for i, iv := range intervals {
		l := iv.Len()
		if best < 0 || l.Cmp(bestLen) > 0 {
			best, bestLen = i, l
		}
	}

	return best
}

// Containing returns the index of the segment that fully contains iv, or -1.
func Containing(segments []types.Interval, iv types.Interval) int {
	for i, seg := range segments {
		if seg.ContainsInterval(iv) {
			return i
		}
	}

	return -1
}

// OverlapsAny reports whether iv overlaps any of the given intervals.
func OverlapsAny(iv types.Interval, others []types.Interval) bool {
	for _, o := range others {
		if iv.Overlaps(o) {
			return true
		}
	}

	return false
}
