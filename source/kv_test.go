package source

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	pooltest "github.com/arloliu/puzzlepool/testing"
	"github.com/arloliu/puzzlepool/types"
)

func TestKV_Puzzle(t *testing.T) {
	_, nc := pooltest.StartEmbeddedNATS(t)

	t.Run("missing puzzle", func(t *testing.T) {
		kv := pooltest.CreateJetStreamKV(t, nc, "puzzle-missing", 0)

		_, err := NewKV(kv, "").Puzzle(t.Context())
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("publish then read", func(t *testing.T) {
		kv := pooltest.CreateJetStreamKV(t, nc, "puzzle-roundtrip", 0)
		src := NewKV(kv, "")

		start, _ := new(big.Int).SetString("400000000000000000", 16)
		end, _ := new(big.Int).SetString("800000000000000000", 16)
		require.NoError(t, src.Publish(t.Context(), types.PuzzleConfig{
			Name:     "71",
			Address:  "1PWo3JeB9jrGwfHDNpdGK54CRas7fsVzXU",
			Keyspace: types.NewKeyspace(start, end),
		}))

		p, err := src.Puzzle(t.Context())
		require.NoError(t, err)
		require.Equal(t, "71", p.Name)
		require.Equal(t, "1PWo3JeB9jrGwfHDNpdGK54CRas7fsVzXU", p.Address)
		require.Zero(t, p.Keyspace.Start.Cmp(start))
		require.Zero(t, p.Keyspace.End.Cmp(end))
	})

	t.Run("hand written document with 0x prefixes", func(t *testing.T) {
		kv := pooltest.CreateJetStreamKV(t, nc, "puzzle-manual", 0)
		_, err := kv.Put(t.Context(), "current", []byte(`{"name":"test","address":"1abc","startHex":"0x10","endHex":"0x20"}`))
		require.NoError(t, err)

		p, err := NewKV(kv, "current").Puzzle(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(16), p.Keyspace.MaxRange().Int64())
	})

	t.Run("malformed documents", func(t *testing.T) {
		kv := pooltest.CreateJetStreamKV(t, nc, "puzzle-bad", 0)
		src := NewKV(kv, "")

		for _, doc := range []string{
			`not json`,
			`{"startHex":"zz","endHex":"20"}`,
			`{"startHex":"20","endHex":"10"}`,
		} {
			_, err := kv.Put(t.Context(), DefaultPuzzleKey, []byte(doc))
			require.NoError(t, err)

			_, err = src.Puzzle(t.Context())
			require.ErrorIs(t, err, types.ErrInvalidConfig, doc)
		}
	})

	t.Run("publish rejects an empty keyspace", func(t *testing.T) {
		kv := pooltest.CreateJetStreamKV(t, nc, "puzzle-empty", 0)

		err := NewKV(kv, "").Publish(t.Context(), types.PuzzleConfig{Keyspace: types.NewKeyspace(big.NewInt(1), big.NewInt(1))})
		require.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}
