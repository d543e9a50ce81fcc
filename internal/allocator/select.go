package allocator

import (
	"math/big"

	"github.com/arloliu/puzzlepool/internal/interval"
	"github.com/arloliu/puzzlepool/types"
)

var (
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

// ClampSize clamps a requested size into [1, maxRange]. A nil size means 1.
func ClampSize(size, maxRange *big.Int) *big.Int {
	out := new(big.Int)
	if size != nil {
		out.Set(size)
	}
	if out.Cmp(one) < 0 {
		out.Set(one)
	}
	if maxRange != nil && maxRange.Sign() > 0 && out.Cmp(maxRange) > 0 {
		out.Set(maxRange)
	}

	return out
}

// selectReuse finds the expired-interval piece whose length is closest to size.
//
// Each (expired, free) intersection of at least size/2 yields a candidate of
// length size clamped into [size/2, min(len, size*3/2)] starting at the
// intersection start. Ties prefer the longer candidate; remaining ties keep
// the first seen, which is the stalest expired interval.
func selectReuse(expired, free []types.Interval, size *big.Int) (types.Interval, bool) {
	half := new(big.Int).Quo(size, two)
	upper := new(big.Int).Quo(new(big.Int).Mul(size, three), two)

	var (
		best     types.Interval
		bestLen  *big.Int
		bestDiff *big.Int
	)
	for _, exp := range expired {
		for _, seg := range free {
			inter, ok := interval.Intersect(exp, seg)
			if !ok {
				continue
			}
			l := inter.Len()
			if l.Cmp(half) < 0 {
				continue
			}

			hi := upper
			if l.Cmp(hi) < 0 {
				hi = l
			}
			candLen := new(big.Int).Set(size)
			if candLen.Cmp(hi) > 0 {
				candLen.Set(hi)
			}
			if candLen.Cmp(half) < 0 {
				candLen.Set(half)
			}
			if candLen.Sign() <= 0 {
				continue
			}

			diff := new(big.Int).Sub(candLen, size)
			diff.Abs(diff)
			if bestDiff == nil || diff.Cmp(bestDiff) < 0 || (diff.Cmp(bestDiff) == 0 && candLen.Cmp(bestLen) > 0) {
				best = types.IntervalOf(inter.Start, candLen)
				bestLen, bestDiff = candLen, diff
			}
		}
	}

	return best, bestDiff != nil
}

// selectFresh draws a size-long interval from the free segments that can hold
// it, weighting each segment by its number of possible starts. When none can,
// the largest free segment is returned whole. free must be non-empty.
func (a *Allocator) selectFresh(free []types.Interval, size *big.Int) (types.Interval, types.Provenance) {
	var (
		fits    []types.Interval
		weights []*big.Int
	)
	for _, seg := range free {
		room := new(big.Int).Sub(seg.Len(), size)
		if room.Sign() < 0 {
			continue
		}
		fits = append(fits, seg)
		weights = append(weights, room.Add(room, one))
	}

	if len(fits) > 0 {
		i := a.rng.WeightedIndex(weights)
		start := new(big.Int).Add(fits[i].Start, a.rng.UniformBelow(weights[i]))

		return types.IntervalOf(start, size), types.ProvenanceFresh
	}

	return free[interval.Largest(free)].Clone(), types.ProvenanceShrunkToFit
}

// perturb moves a colliding candidate.
//
// Inside its containing segment it first nudges forward by attempt+1 and,
// once the segment has no room left, redraws uniformly within the segment.
// Without a containing segment it redraws within a random free segment.
func (a *Allocator) perturb(free []types.Interval, segIdx int, candidate types.Interval, attempt int) types.Interval {
	size := candidate.Len()

	if segIdx >= 0 && segIdx < len(free) {
		seg := free[segIdx]
		nudged := new(big.Int).Add(candidate.Start, big.NewInt(int64(attempt)+1))
		if new(big.Int).Add(nudged, size).Cmp(seg.End) <= 0 {
			return types.IntervalOf(nudged, size)
		}

		return a.redrawIn(seg, size)
	}

	if len(free) == 0 {
		return candidate
	}

	return a.redrawIn(free[a.rng.Intn(len(free))], size)
}

// redrawIn draws a size-long interval uniformly inside seg, or returns seg
// whole when it is shorter than size.
func (a *Allocator) redrawIn(seg types.Interval, size *big.Int) types.Interval {
	room := new(big.Int).Sub(seg.Len(), size)
	if room.Sign() < 0 {
		return seg.Clone()
	}

	start := new(big.Int).Add(seg.Start, a.rng.UniformBelow(room.Add(room, one)))

	return types.IntervalOf(start, size)
}

// clampBounds shifts iv so it lies inside the keyspace, shrinking it only when
// it is longer than the keyspace itself.
func clampBounds(keyspace types.Keyspace, iv types.Interval) types.Interval {
	size := iv.Len()
	if maxRange := keyspace.MaxRange(); size.Cmp(maxRange) > 0 {
		size = maxRange
	}

	start := new(big.Int).Set(iv.Start)
	if start.Cmp(keyspace.Start) < 0 {
		start.Set(keyspace.Start)
	}
	if end := new(big.Int).Add(start, size); end.Cmp(keyspace.End) > 0 {
		start.Sub(keyspace.End, size)
	}

	return types.IntervalOf(start, size)
}
