package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/puzzlepool/internal/natsutil"
	"github.com/arloliu/puzzlepool/types"
)

// DefaultPuzzleKey is the KV key holding the active puzzle.
const DefaultPuzzleKey = "active"

// puzzleRecord is the stored JSON document.
type puzzleRecord struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	StartHex string `json:"startHex"`
	EndHex   string `json:"endHex"`
}

// KV reads the active puzzle from a JetStream KV bucket on every call, so an
// operator can switch puzzles without restarting servers.
type KV struct {
	kv  jetstream.KeyValue
	key string
}

var _ types.KeyspaceSource = (*KV)(nil)

// NewKV creates a KV-backed keyspace source. An empty key uses DefaultPuzzleKey.
func NewKV(kv jetstream.KeyValue, key string) *KV {
	if key == "" {
		key = DefaultPuzzleKey
	}

	return &KV{kv: kv, key: key}
}

// Puzzle loads and decodes the active puzzle.
//
// Returns:
//   - types.PuzzleConfig: The active puzzle
//   - error: ErrNotFound when no puzzle is stored, ErrInvalidConfig for a
//     malformed document or an empty keyspace
func (k *KV) Puzzle(ctx context.Context) (types.PuzzleConfig, error) {
	entry, err := k.kv.Get(ctx, k.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return types.PuzzleConfig{}, fmt.Errorf("%w: no active puzzle at %q", types.ErrNotFound, k.key)
		}

		return types.PuzzleConfig{}, natsutil.Wrap("load active puzzle", err)
	}

	return decodePuzzle(entry.Value())
}

// Publish stores puzzle as the active puzzle.
func (k *KV) Publish(ctx context.Context, puzzle types.PuzzleConfig) error {
	if !puzzle.Keyspace.Valid() {
		return fmt.Errorf("%w: empty keyspace %s", types.ErrInvalidConfig, puzzle.Keyspace.Interval())
	}

	data, err := json.Marshal(puzzleRecord{
		Name:     puzzle.Name,
		Address:  puzzle.Address,
		StartHex: types.FormatHex64(puzzle.Keyspace.Start),
		EndHex:   types.FormatHex64(puzzle.Keyspace.End),
	})
	if err != nil {
		return fmt.Errorf("encode puzzle: %w", err)
	}

	if _, err := k.kv.Put(ctx, k.key, data); err != nil {
		return natsutil.Wrap("publish active puzzle", err)
	}

	return nil
}

func decodePuzzle(data []byte) (types.PuzzleConfig, error) {
	var rec puzzleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return types.PuzzleConfig{}, fmt.Errorf("%w: decode puzzle: %w", types.ErrInvalidConfig, err)
	}

	start, err := types.ParseHex(rec.StartHex)
	if err != nil {
		return types.PuzzleConfig{}, fmt.Errorf("%w: startHex: %w", types.ErrInvalidConfig, err)
	}
	end, err := types.ParseHex(rec.EndHex)
	if err != nil {
		return types.PuzzleConfig{}, fmt.Errorf("%w: endHex: %w", types.ErrInvalidConfig, err)
	}

	ks := types.NewKeyspace(start, end)
	if !ks.Valid() {
		return types.PuzzleConfig{}, fmt.Errorf("%w: empty keyspace %s", types.ErrInvalidConfig, ks.Interval())
	}

	return types.PuzzleConfig{Name: rec.Name, Address: rec.Address, Keyspace: ks}, nil
}
