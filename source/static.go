package source

import (
	"context"
	"sync"

	"github.com/arloliu/puzzlepool/types"
)

// Static implements a keyspace source with a fixed puzzle.
type Static struct {
	mu     sync.RWMutex
	puzzle types.PuzzleConfig
}

var _ types.KeyspaceSource = (*Static)(nil)

// NewStatic creates a new static keyspace source.
//
// Parameters:
//   - puzzle: The puzzle to serve; its keyspace must be non-empty
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	ks := types.NewKeyspace(start, end)
//	src := source.NewStatic(types.PuzzleConfig{Name: "71", Address: "1PWo3J...", Keyspace: ks})
func NewStatic(puzzle types.PuzzleConfig) *Static {
	return &Static{puzzle: clonePuzzle(puzzle)}
}

// Puzzle returns the configured puzzle.
//
// Returns:
//   - types.PuzzleConfig: Copy of the configured puzzle
//   - error: ErrInvalidConfig when the keyspace is empty
func (s *Static) Puzzle(_ context.Context) (types.PuzzleConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.puzzle.Keyspace.Valid() {
		return types.PuzzleConfig{}, types.ErrInvalidConfig
	}

	return clonePuzzle(s.puzzle), nil
}

// Update replaces the served puzzle, e.g. when an operator switches targets.
func (s *Static) Update(puzzle types.PuzzleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.puzzle = clonePuzzle(puzzle)
}

func clonePuzzle(p types.PuzzleConfig) types.PuzzleConfig {
	out := p
	out.Keyspace = types.Keyspace(p.Keyspace.Interval().Clone())

	return out
}
