package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// HexWidth is the zero-padded width of a persisted interval bound (256 bits).
const HexWidth = 64

// Interval is a half-open range [Start, End) of the keyspace.
//
// Bounds are arbitrary-precision integers. An Interval is valid when both
// bounds are set and Start < End. Methods never mutate the receiver's bounds;
// callers that need to change a bound must assign a new *big.Int.
type Interval struct {
	Start *big.Int
	End   *big.Int
}

// NewInterval builds an interval from two int64 bounds. Mostly useful in tests.
func NewInterval(start, end int64) Interval {
	return Interval{Start: big.NewInt(start), End: big.NewInt(end)}
}

// IntervalOf builds an interval of the given length starting at start.
//
// The returned interval owns fresh copies of its bounds.
func IntervalOf(start, length *big.Int) Interval {
	s := new(big.Int).Set(start)
	return Interval{Start: s, End: new(big.Int).Add(s, length)}
}

// Valid reports whether both bounds are set and Start < End.
func (iv Interval) Valid() bool {
	return iv.Start != nil && iv.End != nil && iv.Start.Cmp(iv.End) < 0
}

// Len returns End - Start. Invalid intervals have length zero.
func (iv Interval) Len() *big.Int {
	if !iv.Valid() {
		return new(big.Int)
	}

	return new(big.Int).Sub(iv.End, iv.Start)
}

// Contains reports whether x lies in [Start, End).
func (iv Interval) Contains(x *big.Int) bool {
	return iv.Valid() && iv.Start.Cmp(x) <= 0 && x.Cmp(iv.End) < 0
}

// ContainsInterval reports whether other lies entirely inside iv.
func (iv Interval) ContainsInterval(other Interval) bool {
	return iv.Valid() && other.Valid() &&
		iv.Start.Cmp(other.Start) <= 0 && other.End.Cmp(iv.End) <= 0
}

// Overlaps reports whether the two half-open intervals share at least one point.
func (iv Interval) Overlaps(other Interval) bool {
	if !iv.Valid() || !other.Valid() {
		return false
	}

	return iv.Start.Cmp(other.End) < 0 && other.Start.Cmp(iv.End) < 0
}

// Equal reports whether both intervals have identical bounds.
func (iv Interval) Equal(other Interval) bool {
	if iv.Start == nil || iv.End == nil || other.Start == nil || other.End == nil {
		return false
	}

	return iv.Start.Cmp(other.Start) == 0 && iv.End.Cmp(other.End) == 0
}

// Clone returns a deep copy of the interval.
func (iv Interval) Clone() Interval {
	var out Interval
	if iv.Start != nil {
		out.Start = new(big.Int).Set(iv.Start)
	}
	if iv.End != nil {
		out.End = new(big.Int).Set(iv.End)
	}

	return out
}

// Key returns a stable identifier for the exact [Start, End) pair, using the
// zero-padded hex encoding of both bounds.
func (iv Interval) Key() string {
	return FormatHex64(iv.Start) + "-" + FormatHex64(iv.End)
}

// String returns a short "0x<start>-0x<end>" representation.
func (iv Interval) String() string {
	if iv.Start == nil || iv.End == nil {
		return "<nil>"
	}

	return fmt.Sprintf("0x%x-0x%x", iv.Start, iv.End)
}

type intervalJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// MarshalJSON encodes both bounds as 64-digit hex strings.
func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{Start: FormatHex64(iv.Start), End: FormatHex64(iv.End)})
}

// UnmarshalJSON decodes hex-encoded bounds (with or without 0x prefix).
func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	start, err := ParseHex(raw.Start)
	if err != nil {
		return fmt.Errorf("interval start: %w", err)
	}
	end, err := ParseHex(raw.End)
	if err != nil {
		return fmt.Errorf("interval end: %w", err)
	}

	iv.Start, iv.End = start, end

	return nil
}

// Keyspace is the immutable [Start, End) range being partitioned.
type Keyspace Interval

// NewKeyspace builds a keyspace from two bounds, copying them.
func NewKeyspace(start, end *big.Int) Keyspace {
	return Keyspace{Start: new(big.Int).Set(start), End: new(big.Int).Set(end)}
}

// Interval returns the keyspace as a plain interval.
func (k Keyspace) Interval() Interval {
	return Interval(k)
}

// MaxRange returns End - Start.
func (k Keyspace) MaxRange() *big.Int {
	return Interval(k).Len()
}

// Valid reports whether the keyspace is non-empty.
func (k Keyspace) Valid() bool {
	return Interval(k).Valid()
}

// FormatHex64 encodes x as 64 lowercase hex digits without prefix.
//
// Values wider than 256 bits are encoded without truncation.
func FormatHex64(x *big.Int) string {
	if x == nil {
		return strings.Repeat("0", HexWidth)
	}

	s := x.Text(16)
	if len(s) >= HexWidth {
		return s
	}

	return strings.Repeat("0", HexWidth-len(s)) + s
}

// ParseHex parses a hex string with optional 0x prefix. Empty input parses as zero.
func ParseHex(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return new(big.Int), nil
	}

	x, ok := new(big.Int).SetString(s, 16)
	if !ok || x.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScalar, s)
	}

	return x, nil
}

// TrimHex renders x as hex without prefix and leading zeros ("0" for zero),
// the form returned to workers.
func TrimHex(x *big.Int) string {
	if x == nil {
		return "0"
	}

	return x.Text(16)
}
