package checkwork

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/arloliu/puzzlepool/internal/bigrand"
	"github.com/arloliu/puzzlepool/types"
)

const (
	// startZoneDivisor sizes the start anchor zone at length/20 (5%).
	startZoneDivisor = 20

	// endZoneDivisor sizes the end anchor zone at length/50 (2%).
	endZoneDivisor = 50

	// topUpFactor bounds extra uniform draws to count*topUpFactor.
	topUpFactor = 100
)

// Sampler draws stratified sample scalars. Safe for concurrent use.
type Sampler struct {
	rng     *bigrand.Source
	metrics types.CheckworkMetrics
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithEntropy replaces the crypto/rand entropy source. Intended for tests;
// production samplers must keep a cryptographically secure source. Sample
// panics if r returns an error.
func WithEntropy(r io.Reader) SamplerOption {
	return func(s *Sampler) {
		s.rng = bigrand.New(r)
	}
}

// WithMetrics records sample sizes on the given collector.
func WithMetrics(m types.CheckworkMetrics) SamplerOption {
	return func(s *Sampler) {
		s.metrics = m
	}
}

// NewSampler creates a sampler backed by crypto/rand.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{rng: bigrand.New(rand.Reader)}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sample returns up to count unique scalars inside iv.
//
// Ordering: for count >= 3 on large enough intervals the first scalar lies in
// the start anchor zone [start, start+len/20) and the last in the end anchor
// zone [end-len/50, end). Intervals shorter than count are returned whole in
// shuffled order.
func (s *Sampler) Sample(iv types.Interval, count int) []*big.Int {
	out := s.sample(iv, count)
	if s.metrics != nil {
		s.metrics.RecordSampleSize(count, len(out))
	}

	return out
}

func (s *Sampler) sample(iv types.Interval, count int) []*big.Int {
	if count <= 0 || !iv.Valid() {
		return nil
	}

	length := iv.Len()
	if length.Cmp(big.NewInt(int64(count))) < 0 {
		return s.enumerate(iv, int(length.Int64()))
	}

	if count == 1 {
		return []*big.Int{s.rng.UniformIn(iv.Start, iv.End)}
	}

	set := newScalarSet(count)

	startZone := zone(iv.Start, length, startZoneDivisor, false)
	endZone := zone(iv.End, length, endZoneDivisor, true)

	head := s.rng.UniformIn(startZone.Start, startZone.End)
	set.add(head)
	var tail *big.Int
	if t := s.rng.UniformIn(endZone.Start, endZone.End); set.add(t) {
		tail = t
	}

	middle := types.Interval{Start: startZone.End, End: endZone.Start}
	if !middle.Valid() {
		middle = iv
	}
	mid := s.stratified(middle, count-2, set)

	out := make([]*big.Int, 0, count)
	out = append(out, head)
	out = append(out, mid...)

	missing := count - len(out)
	if tail != nil {
		missing--
	}
	out = append(out, s.topUp(iv, missing, count*topUpFactor, set)...)

	if tail != nil {
		out = append(out, tail)
	}

	return out
}

// enumerate returns every integer of iv in shuffled order.
func (s *Sampler) enumerate(iv types.Interval, n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range n {
		out[i] = new(big.Int).Add(iv.Start, big.NewInt(int64(i)))
	}
	s.rng.Shuffle(n, func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// stratified draws one scalar per equal-length stratum of region.
//
// When region is shorter than k the strata would be empty, so draws fall back
// to uniform over the whole region.
func (s *Sampler) stratified(region types.Interval, k int, set *scalarSet) []*big.Int {
	if k <= 0 {
		return nil
	}

	out := make([]*big.Int, 0, k)
	regionLen := region.Len()
	strata := big.NewInt(int64(k))
	step := new(big.Int).Quo(regionLen, strata)

	if step.Sign() == 0 {
		for range k {
			if x := s.rng.UniformIn(region.Start, region.End); set.add(x) {
				out = append(out, x)
			}
		}

		return out
	}

	lo := new(big.Int).Set(region.Start)
	for i := range k {
		hi := new(big.Int).Add(lo, step)
		if i == k-1 {
			hi.Set(region.End)
		}
		if x := s.rng.UniformIn(lo, hi); set.add(x) {
			out = append(out, x)
		}
		lo = hi
	}

	return out
}

// topUp draws uniform scalars over iv until want new ones were added or the
// attempt budget runs out.
func (s *Sampler) topUp(iv types.Interval, want, attempts int, set *scalarSet) []*big.Int {
	var out []*big.Int
	for i := 0; len(out) < want && i < attempts; i++ {
		if x := s.rng.UniformIn(iv.Start, iv.End); set.add(x) {
			out = append(out, x)
		}
	}

	return out
}

// zone returns the anchor zone of length max(1, length/divisor) at the start
// of the range, or ending at bound when fromEnd is set.
func zone(bound, length *big.Int, divisor int64, fromEnd bool) types.Interval {
	size := new(big.Int).Quo(length, big.NewInt(divisor))
	if size.Sign() == 0 {
		size.SetInt64(1)
	}
	if fromEnd {
		return types.Interval{Start: new(big.Int).Sub(bound, size), End: new(big.Int).Set(bound)}
	}

	return types.IntervalOf(bound, size)
}

// scalarSet deduplicates scalars by value.
type scalarSet struct {
	seen map[string]struct{}
}

func newScalarSet(capacity int) *scalarSet {
	return &scalarSet{seen: make(map[string]struct{}, capacity)}
}

// add records x and reports whether it was new.
func (s *scalarSet) add(x *big.Int) bool {
	key := x.Text(16)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}

	return true
}

// Point is a sampled scalar together with its derived identifier.
type Point struct {
	Scalar     *big.Int
	Identifier string
}

// Generate samples iv and derives an identifier for every scalar.
//
// Scalars outside the deriver's domain (types.ErrInvalidScalar) are dropped.
// Any other derivation error aborts generation.
func (s *Sampler) Generate(iv types.Interval, count int, deriver types.IdentifierDeriver) ([]Point, error) {
	scalars := s.Sample(iv, count)
	points := make([]Point, 0, len(scalars))
	for _, x := range scalars {
		id, err := deriver.Derive(x)
		if err != nil {
			if errors.Is(err, types.ErrInvalidScalar) {
				continue
			}

			return nil, fmt.Errorf("derive identifier for 0x%x: %w", x, err)
		}
		points = append(points, Point{Scalar: x, Identifier: id})
	}

	return points, nil
}

// Identifiers returns the identifiers of the given points in order.
func Identifiers(points []Point) []string {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.Identifier
	}

	return ids
}
