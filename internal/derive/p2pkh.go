// Package derive maps private-key scalars to Bitcoin addresses.
package derive

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/arloliu/puzzlepool/types"
)

// P2PKH derives compressed pay-to-pubkey-hash addresses.
type P2PKH struct {
	params *chaincfg.Params
}

// Compile-time assertion that P2PKH implements IdentifierDeriver.
var _ types.IdentifierDeriver = (*P2PKH)(nil)

// NewP2PKH returns a deriver for the given network; nil means mainnet.
func NewP2PKH(params *chaincfg.Params) *P2PKH {
	if params == nil {
		params = &chaincfg.MainNetParams
	}

	return &P2PKH{params: params}
}

// Derive returns the compressed P2PKH address of scalar.
//
// Scalars outside [1, n) of secp256k1 are rejected with types.ErrInvalidScalar.
func (p *P2PKH) Derive(scalar *big.Int) (string, error) {
	if scalar == nil || scalar.Sign() <= 0 || scalar.Cmp(btcec.S256().N) >= 0 {
		return "", fmt.Errorf("%w: outside secp256k1 scalar range", types.ErrInvalidScalar)
	}

	var buf [32]byte
	scalar.FillBytes(buf[:])

	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	pkHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())

	addr, err := btcutil.NewAddressPubKeyHash(pkHash, p.params)
	if err != nil {
		return "", fmt.Errorf("encode address: %w", err)
	}

	return addr.EncodeAddress(), nil
}
