package integration_test

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool"
	"github.com/arloliu/puzzlepool/test/testutil"
	pooltest "github.com/arloliu/puzzlepool/testing"
	"github.com/arloliu/puzzlepool/types"
)

// TestNATSPools_ExhaustKeyspaceWithoutOverlap runs several pools against one
// NATS server and allocates until the keyspace is gone. Every key must end up
// in exactly one block.
func TestNATSPools_ExhaustKeyspaceWithoutOverlap(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	const numPools = 3

	_, nc := pooltest.StartEmbeddedNATS(t)
	pools := testutil.NewNATSPools(t, nc, testutil.IntegrationTestConfig(), numPools)

	ctx, cancel := context.WithTimeout(t.Context(), 60*time.Second)
	defer cancel()

	var (
		mu       sync.Mutex
		blocks   []types.Interval
		stopErrs []error
		wg       sync.WaitGroup
	)
	for i, pool := range pools {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for n := 0; ; n++ {
				block, err := pool.Allocate(ctx, puzzlepool.AllocateRequest{
					Owner:       fmt.Sprintf("pool-%d", i),
					WorkerID:    fmt.Sprintf("w-%d", n),
					ForceRandom: true,
				})
				if err != nil {
					if !puzzlepool.IsRetryable(err) {
						mu.Lock()
						stopErrs = append(stopErrs, err)
						mu.Unlock()

						return
					}

					continue
				}

				mu.Lock()
				blocks = append(blocks, block.Interval)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, stopErrs, numPools)
	for _, err := range stopErrs {
		require.ErrorIs(t, err, puzzlepool.ErrKeyspaceExhausted)
	}
	testutil.AssertCovers(t, blocks, big.NewInt(0x1000))
}

// TestNATSPools_SubmitOnAnotherPool verifies the NATS backend shares block
// state: a block allocated on one pool is found, verified and completed on
// another.
func TestNATSPools_SubmitOnAnotherPool(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, nc := pooltest.StartEmbeddedNATS(t)
	pools := testutil.NewNATSPools(t, nc, testutil.IntegrationTestConfig(), 2)
	ctx := t.Context()

	block, err := pools[0].Acquire(ctx, puzzlepool.AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	current, err := pools[1].Current(ctx, "alice", "")
	require.NoError(t, err)
	require.Equal(t, block.ID, current.ID)
	require.Equal(t, block.SampleIdentifiers, current.SampleIdentifiers)

	scalars := make([]string, 0, len(current.SampleIdentifiers))
	for _, id := range current.SampleIdentifiers {
		x, ok := new(big.Int).SetString(strings.TrimPrefix(id, "id-"), 16)
		require.True(t, ok)
		scalars = append(scalars, types.FormatHex64(x))
	}

	res, err := pools[1].Submit(ctx, puzzlepool.SubmitRequest{Owner: "alice", Scalars: scalars})
	require.NoError(t, err)
	require.Equal(t, puzzlepool.StatusCompleted, res.Assignment.Status)

	_, err = pools[0].Current(ctx, "alice", "")
	require.ErrorIs(t, err, puzzlepool.ErrNotFound)
}

// TestNATSPools_ReleaseMakesIntervalReusable checks that a released block is
// reused verbatim by a different pool.
func TestNATSPools_ReleaseMakesIntervalReusable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, nc := pooltest.StartEmbeddedNATS(t)
	pools := testutil.NewNATSPools(t, nc, testutil.IntegrationTestConfig(), 2)
	ctx := t.Context()

	block, err := pools[0].Allocate(ctx, puzzlepool.AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	_, err = pools[0].Release(ctx, "alice", "")
	require.NoError(t, err)

	next, err := pools[1].Allocate(ctx, puzzlepool.AllocateRequest{Owner: "bob"})
	require.NoError(t, err)
	require.Equal(t, puzzlepool.ProvenanceReused, next.Provenance)
	require.True(t, next.Interval.Equal(block.Interval))
}

// TestKVSource_PoolFollowsPublishedPuzzle serves the puzzle from the keyspace
// bucket instead of the configuration.
func TestKVSource_PoolFollowsPublishedPuzzle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	_, nc := pooltest.StartEmbeddedNATS(t)
	js, err := jetstream.New(nc)
	require.NoError(t, err)
	ctx := t.Context()

	cfg := testutil.IntegrationTestConfig()
	cfg.Puzzle = puzzlepool.PuzzleSettings{}

	src, err := puzzlepool.KVSource(ctx, js, &cfg)
	require.NoError(t, err)
	backend, err := puzzlepool.NATSBackend(ctx, js, &cfg, nil)
	require.NoError(t, err)

	pool, err := puzzlepool.New(&cfg, backend.Store, backend.Lock, src, pooltest.HexDeriver,
		puzzlepool.WithCache(backend.Cache))
	require.NoError(t, err)

	_, err = pool.Allocate(ctx, puzzlepool.AllocateRequest{Owner: "alice"})
	require.ErrorIs(t, err, puzzlepool.ErrNotFound)

	require.NoError(t, src.Publish(ctx, puzzlepool.PuzzleConfig{
		Name:     "kv",
		Address:  "id-beef",
		Keyspace: types.NewKeyspace(big.NewInt(0xbe00), big.NewInt(0xbf00)),
	}))

	block, err := pool.Allocate(ctx, puzzlepool.AllocateRequest{Owner: "alice"})
	require.NoError(t, err)
	require.True(t, block.Interval.Equal(types.NewInterval(0xbe00, 0xbf00)))
}
