package types

import (
	"context"
	"math/big"
)

// IdentifierDeriver maps a scalar to its public identifier through a one-way
// function. Implementations must be deterministic and collision resistant.
type IdentifierDeriver interface {
	// Derive returns the identifier for scalar, or an error wrapping
	// ErrInvalidScalar when the scalar is outside the function's domain.
	Derive(scalar *big.Int) (string, error)
}

// DeriverFunc adapts a plain function to IdentifierDeriver.
type DeriverFunc func(scalar *big.Int) (string, error)

// Derive calls f(scalar).
func (f DeriverFunc) Derive(scalar *big.Int) (string, error) {
	return f(scalar)
}

// PuzzleConfig describes the keyspace currently being searched.
type PuzzleConfig struct {
	// Name is a human-readable label.
	Name string `json:"name,omitempty"`

	// Address is the target identifier. A submitted scalar deriving to it is a hit.
	Address string `json:"address,omitempty"`

	// Keyspace is the [start, end) range being partitioned.
	Keyspace Keyspace `json:"-"`
}

// KeyspaceSource provides the active puzzle configuration.
//
// Implementations can read from:
//   - Static: fixed bounds from configuration
//   - NATS KV: an admin-managed active configuration entry
type KeyspaceSource interface {
	// Puzzle returns the active configuration.
	Puzzle(ctx context.Context) (PuzzleConfig, error)
}
