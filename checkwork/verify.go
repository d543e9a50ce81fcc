package checkwork

import (
	"math/big"

	"github.com/arloliu/puzzlepool/types"
)

// Result describes how a submission compares to the expected identifiers.
type Result struct {
	// Derived holds the identifier of each submitted scalar, "" when derivation failed.
	Derived []string

	// Missing lists expected identifiers no submitted scalar derived to.
	Missing []string

	// Matched counts expected identifiers covered by the submission.
	Matched int
}

// Accepted reports whether every expected identifier was covered.
func (r Result) Accepted() bool {
	return len(r.Missing) == 0
}

// IndexOf returns the index of the first submitted scalar deriving to id, or -1.
func (r Result) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, d := range r.Derived {
		if d == id {
			return i
		}
	}

	return -1
}

// Verify derives an identifier for every submitted scalar and reports which
// expected identifiers were not reproduced.
//
// Scalars that fail derivation are recorded as "" and simply match nothing.
func Verify(deriver types.IdentifierDeriver, expected []string, submitted []*big.Int) Result {
	res := Result{Derived: make([]string, len(submitted))}

	have := make(map[string]struct{}, len(submitted))
	for i, x := range submitted {
		if x == nil {
			continue
		}
		id, err := deriver.Derive(x)
		if err != nil {
			continue
		}
		res.Derived[i] = id
		have[id] = struct{}{}
	}

	for _, id := range expected {
		if _, ok := have[id]; ok {
			res.Matched++
			continue
		}
		res.Missing = append(res.Missing, id)
	}

	return res
}
