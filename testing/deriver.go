package testing

import (
	"fmt"
	"math/big"

	"github.com/arloliu/puzzlepool/types"
)

// HexDeriver is a deterministic stand-in for an expensive one-way function.
//
// It maps a scalar x to "id-<hex(x)>" and rejects zero with
// types.ErrInvalidScalar, mirroring how real derivers reject scalars outside
// their domain.
var HexDeriver types.IdentifierDeriver = types.DeriverFunc(func(x *big.Int) (string, error) {
	if x == nil || x.Sign() <= 0 {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidScalar, x)
	}

	return "id-" + x.Text(16), nil
})
