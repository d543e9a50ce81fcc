package bigrand

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniformBelow_Bounds(t *testing.T) {
	t.Parallel()

	t.Run("returns zero for n <= 1", func(t *testing.T) {
		require.Zero(t, UniformBelow(big.NewInt(1)).Sign())
		require.Zero(t, UniformBelow(big.NewInt(0)).Sign())
		require.Zero(t, UniformBelow(big.NewInt(-5)).Sign())
		require.Zero(t, UniformBelow(nil).Sign())
	})

	t.Run("never reaches n for wide values", func(t *testing.T) {
		n := new(big.Int).Lsh(big.NewInt(1), 71)
		n.Add(n, big.NewInt(3))
		for range 2000 {
			v := UniformBelow(n)
			require.GreaterOrEqual(t, v.Sign(), 0)
			require.Negative(t, v.Cmp(n))
		}
	})

	t.Run("never reaches n for values just above a power of two", func(t *testing.T) {
		n := big.NewInt(257)
		for range 5000 {
			v := UniformBelow(n)
			require.Negative(t, v.Cmp(n))
		}
	})
}

func TestUniformBelow_RejectsOutOfRange(t *testing.T) {
	t.Parallel()

	// n = 5 has bitLen 3: 0xff masks to 7 and 0x05 to 5, both rejected; 0x02 is accepted.
	src := New(bytes.NewReader([]byte{0xff, 0x05, 0x02}))
	require.Equal(t, int64(2), src.UniformBelow(big.NewInt(5)).Int64())
}

func TestUniformBelow_PanicsOnExhaustedEntropy(t *testing.T) {
	t.Parallel()

	src := New(bytes.NewReader(nil))
	require.Panics(t, func() { src.UniformBelow(big.NewInt(10)) })
}

func TestUniformBelow_ChiSquare(t *testing.T) {
	t.Parallel()

	const (
		buckets = 10
		trials  = 100_000
	)

	counts := make([]int, buckets)
	n := big.NewInt(buckets)
	for range trials {
		counts[UniformBelow(n).Int64()]++
	}

	expected := float64(trials) / buckets
	chi := 0.0
	for _, c := range counts {
		d := float64(c) - expected
		chi += d * d / expected
	}

	// 9 degrees of freedom: p=0.0001 critical value is ~33.7.
	require.Less(t, chi, 40.0, "distribution looks biased: %v", counts)
}

func TestUniformIn(t *testing.T) {
	t.Parallel()

	lo, hi := big.NewInt(100), big.NewInt(110)
	for range 500 {
		v := Default.UniformIn(lo, hi)
		require.GreaterOrEqual(t, v.Cmp(lo), 0)
		require.Negative(t, v.Cmp(hi))
	}

	require.Equal(t, int64(100), Default.UniformIn(lo, lo).Int64())
	require.Equal(t, int64(100), Default.UniformIn(lo, big.NewInt(50)).Int64())
}

func TestWeightedIndex(t *testing.T) {
	t.Parallel()

	t.Run("empty and all-zero weights return zero", func(t *testing.T) {
		require.Equal(t, 0, WeightedIndex(nil))
		require.Equal(t, 0, WeightedIndex([]*big.Int{big.NewInt(0), big.NewInt(0)}))
		require.Equal(t, 0, WeightedIndex([]*big.Int{big.NewInt(-3), nil}))
	})

	t.Run("only positive weight is always chosen", func(t *testing.T) {
		weights := []*big.Int{big.NewInt(0), big.NewInt(-7), big.NewInt(6), nil}
		for range 200 {
			require.Equal(t, 2, WeightedIndex(weights))
		}
	})

	t.Run("frequencies follow weights", func(t *testing.T) {
		weights := []*big.Int{big.NewInt(1), big.NewInt(3)}
		hits := [2]int{}
		const trials = 40_000
		for range trials {
			hits[WeightedIndex(weights)]++
		}

		ratio := float64(hits[1]) / trials
		require.InDelta(t, 0.75, ratio, 0.02)
	})

	t.Run("handles weights wider than 64 bits", func(t *testing.T) {
		huge := new(big.Int).Lsh(big.NewInt(1), 200)
		weights := []*big.Int{big.NewInt(1), huge}
		one := 0
		for range 1000 {
			if WeightedIndex(weights) == 1 {
				one++
			}
		}
		require.Equal(t, 1000, one)
	})
}

func TestShuffle_IsPermutation(t *testing.T) {
	t.Parallel()

	values := []int{0, 1, 2, 3, 4, 5, 6, 7}
	Default.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	seen := make(map[int]bool)
	for _, v := range values {
		seen[v] = true
	}
	require.Len(t, seen, 8)
}
