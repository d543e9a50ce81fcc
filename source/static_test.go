package source

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/types"
)

func TestStatic_Puzzle(t *testing.T) {
	t.Run("returns a copy of the puzzle", func(t *testing.T) {
		src := NewStatic(types.PuzzleConfig{
			Name:     "66",
			Address:  "13zb1hQbWVsc2S7ZTZnP2G4undNNpdh5so",
			Keyspace: types.NewKeyspace(big.NewInt(0x20000), big.NewInt(0x40000)),
		})

		p, err := src.Puzzle(t.Context())
		require.NoError(t, err)
		require.Equal(t, "66", p.Name)
		require.Equal(t, int64(0x20000), p.Keyspace.MaxRange().Int64())

		p.Keyspace.Start.SetInt64(0)
		again, err := src.Puzzle(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(0x20000), again.Keyspace.Start.Int64())
	})

	t.Run("rejects an empty keyspace", func(t *testing.T) {
		src := NewStatic(types.PuzzleConfig{Keyspace: types.NewKeyspace(big.NewInt(5), big.NewInt(5))})

		_, err := src.Puzzle(t.Context())
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	t.Run("update switches the puzzle", func(t *testing.T) {
		src := NewStatic(types.PuzzleConfig{Name: "a", Keyspace: types.NewKeyspace(big.NewInt(0), big.NewInt(10))})
		src.Update(types.PuzzleConfig{Name: "b", Keyspace: types.NewKeyspace(big.NewInt(10), big.NewInt(20))})

		p, err := src.Puzzle(t.Context())
		require.NoError(t, err)
		require.Equal(t, "b", p.Name)
	})
}
