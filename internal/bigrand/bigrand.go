// Package bigrand draws unbiased random arbitrary-precision integers.
//
// All draws use rejection sampling over a cryptographically secure byte source,
// so a worker cannot predict which points of its range will be verified.
package bigrand

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Source draws random integers from an underlying byte reader.
//
// The zero value is not usable; use New or Default.
type Source struct {
	r io.Reader
}

// Default is the package-level source backed by crypto/rand.
var Default = New(rand.Reader)

// New returns a Source reading entropy from r.
//
// r must be a cryptographically secure reader in production. Tests may pass a
// deterministic reader.
func New(r io.Reader) *Source {
	return &Source{r: r}
}

// UniformBelow returns a uniformly distributed value in [0, n).
//
// Returns 0 for n <= 1. The draw masks ceil(bitLen/8) random bytes down to
// bitLen bits and rejects values >= n, so the expected number of draws is
// below 2. It panics when the underlying reader fails.
func (s *Source) UniformBelow(n *big.Int) *big.Int {
	if n == nil || n.Cmp(big.NewInt(1)) <= 0 {
		return new(big.Int)
	}

	bitLen := n.BitLen()
	buf := make([]byte, (bitLen+7)/8)
	excess := uint(len(buf)*8 - bitLen)
	out := new(big.Int)

	for {
		if _, err := io.ReadFull(s.r, buf); err != nil {
			// A failing entropy source is unrecoverable for security sampling.
			panic(fmt.Sprintf("bigrand: entropy source failed: %v", err))
		}
		buf[0] &= byte(0xff >> excess)

		out.SetBytes(buf)
		if out.Cmp(n) < 0 {
			return out
		}
	}
}

// UniformIn returns a uniformly distributed value in [lo, hi).
//
// Returns a copy of lo when hi <= lo.
func (s *Source) UniformIn(lo, hi *big.Int) *big.Int {
	span := new(big.Int).Sub(hi, lo)
	if span.Sign() <= 0 {
		return new(big.Int).Set(lo)
	}

	return span.Add(lo, s.UniformBelow(span))
}

// WeightedIndex picks index i with probability weights[i] / sum(weights).
//
// Negative and nil weights count as zero. When every weight is zero (or the
// slice is empty) it returns 0.
func (s *Source) WeightedIndex(weights []*big.Int) int {
	if len(weights) == 0 {
		return 0
	}

	total := new(big.Int)
	for _, w := range weights {
		if w != nil && w.Sign() > 0 {
			total.Add(total, w)
		}
	}
	if total.Sign() <= 0 {
		return 0
	}

	r := s.UniformBelow(total)
	acc := new(big.Int)
	for i, w := range weights {
		if w == nil || w.Sign() <= 0 {
			continue
		}
		acc.Add(acc, w)
		if r.Cmp(acc) < 0 {
			return i
		}
	}

	return len(weights) - 1
}

// Intn returns a uniform int in [0, n). Returns 0 for n <= 1.
func (s *Source) Intn(n int) int {
	if n <= 1 {
		return 0
	}

	return int(s.UniformBelow(big.NewInt(int64(n))).Int64())
}

// Shuffle permutes n elements in place using Fisher-Yates.
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		swap(i, s.Intn(i+1))
	}
}

// UniformBelow draws from Default.
func UniformBelow(n *big.Int) *big.Int {
	return Default.UniformBelow(n)
}

// WeightedIndex draws from Default.
func WeightedIndex(weights []*big.Int) int {
	return Default.WeightedIndex(weights)
}
