package puzzlepool

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool/internal/metrics"
	pooltest "github.com/arloliu/puzzlepool/testing"
	"github.com/arloliu/puzzlepool/types"
)

var poolEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type poolFixture struct {
	pool    *Pool
	clock   *clockwork.FakeClock
	backend *Backend
}

func newTestPool(t *testing.T, mutate func(*Config), opts ...Option) *poolFixture {
	t.Helper()

	cfg := TestConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := clockwork.NewFakeClockAt(poolEpoch)
	backend := MemoryBackend(&cfg, clock)
	src, err := StaticSource(&cfg)
	require.NoError(t, err)

	base := []Option{
		WithCache(backend.Cache),
		WithClock(clock),
		WithLogger(pooltest.NewTestLogger(t)),
	}
	p, err := New(&cfg, backend.Store, backend.Lock, src, pooltest.HexDeriver, append(base, opts...)...)
	require.NoError(t, err)

	return &poolFixture{pool: p, clock: clock, backend: backend}
}

// scalarsFor recovers the scalars behind HexDeriver identifiers.
func scalarsFor(t *testing.T, ids []string) []string {
	t.Helper()

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		x, ok := new(big.Int).SetString(strings.TrimPrefix(id, "id-"), 16)
		require.True(t, ok, id)
		out = append(out, types.FormatHex64(x))
	}

	return out
}

func hex64(x int64) string {
	return types.FormatHex64(big.NewInt(x))
}

func customInterval(start, end int64) *Interval {
	iv := types.NewInterval(start, end)
	return &iv
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := TestConfig()
	backend := MemoryBackend(&cfg, nil)
	src, err := StaticSource(&cfg)
	require.NoError(t, err)

	_, err = New(nil, backend.Store, backend.Lock, src, pooltest.HexDeriver)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&cfg, nil, backend.Lock, src, pooltest.HexDeriver)
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(&cfg, backend.Store, nil, src, pooltest.HexDeriver)
	require.ErrorIs(t, err, ErrLockRequired)

	_, err = New(&cfg, backend.Store, backend.Lock, nil, pooltest.HexDeriver)
	require.ErrorIs(t, err, ErrKeyspaceSourceRequired)

	_, err = New(&cfg, backend.Store, backend.Lock, src, nil)
	require.ErrorIs(t, err, ErrDeriverRequired)

	bad := TestConfig()
	bad.BlockSize.Min = "many"
	_, err = New(&bad, backend.Store, backend.Lock, src, pooltest.HexDeriver)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&cfg, backend.Store, backend.Lock, src, pooltest.HexDeriver,
		WithEntropy(iotest.ErrReader(errors.New("no entropy"))))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPool_Allocate(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	require.Equal(t, "alice", block.Owner)
	require.Equal(t, StatusActive, block.Status)
	require.Equal(t, ProvenanceFresh, block.Provenance)
	require.False(t, block.Existing)
	require.Equal(t, int64(256), block.AssignedSize.Int64())
	require.Equal(t, int64(256), block.Interval.Len().Int64())
	require.Equal(t, poolEpoch.Add(time.Hour), block.ExpiresAt)

	cfg := f.pool.Config()
	ks, err := cfg.Keyspace()
	require.NoError(t, err)
	require.True(t, ks.Interval().ContainsInterval(block.Interval))

	require.Len(t, block.SampleIdentifiers, 10)
	for _, x := range scalarsFor(t, block.SampleIdentifiers) {
		v, err := types.ParseHex(x)
		require.NoError(t, err)
		require.True(t, block.Interval.Contains(v))
	}

	// Identifiers are persisted with the block.
	stored, err := f.backend.Store.Get(ctx, block.ID)
	require.NoError(t, err)
	require.Equal(t, block.SampleIdentifiers, stored.SampleIdentifiers)

	_, err = f.pool.Allocate(ctx, AllocateRequest{})
	require.ErrorIs(t, err, ErrOwnerRequired)

	_, err = f.pool.Allocate(ctx, AllocateRequest{Owner: "alice", Size: "a lot"})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPool_AllocateUntilExhausted(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	var blocks []Interval
	var err error
	for range 100 {
		var block *Block
		block, err = f.pool.Allocate(ctx, AllocateRequest{Owner: "alice", ForceRandom: true})
		if err != nil {
			break
		}
		blocks = append(blocks, block.Interval)
	}
	require.ErrorIs(t, err, ErrKeyspaceExhausted)
	require.False(t, IsRetryable(err))

	total := new(big.Int)
	for i, a := range blocks {
		total.Add(total, a.Len())
		for _, b := range blocks[i+1:] {
			require.False(t, a.Overlaps(b), "%s overlaps %s", a, b)
		}
	}
	require.Equal(t, int64(0x1000), total.Int64())
}

func TestPool_AllocateCustom(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice", Custom: customInterval(0x1200, 0x1300)})
	require.NoError(t, err)
	require.Equal(t, ProvenanceCustom, block.Provenance)
	require.True(t, block.Interval.Equal(types.NewInterval(0x1200, 0x1300)))

	_, err = f.pool.Allocate(ctx, AllocateRequest{Owner: "bob", Custom: customInterval(0x12f0, 0x1310)})
	require.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.pool.Allocate(ctx, AllocateRequest{Owner: "bob", Custom: customInterval(0x3000, 0x3100)})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPool_ConcurrentAllocationsAreDisjoint(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	const workers = 10
	var (
		mu     sync.Mutex
		blocks []Interval
		wg     sync.WaitGroup
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "owner", WorkerID: string(rune('a' + i))})
			if !assertNoError(t, err) {
				return
			}
			mu.Lock()
			blocks = append(blocks, block.Interval)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, blocks, workers)
	for i, a := range blocks {
		for _, b := range blocks[i+1:] {
			require.False(t, a.Overlaps(b), "%s overlaps %s", a, b)
		}
	}
}

func assertNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}

	return true
}

func TestPool_AcquireAndCurrent(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	_, err := f.pool.Current(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)

	first, err := f.pool.Acquire(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)
	require.False(t, first.Existing)

	again, err := f.pool.Acquire(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)
	require.True(t, again.Existing)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, int64(256), again.AssignedSize.Int64())

	current, err := f.pool.Current(ctx, "alice", "")
	require.NoError(t, err)
	require.Equal(t, first.ID, current.ID)

	// Workers of one owner hold separate blocks.
	other, err := f.pool.Acquire(ctx, AllocateRequest{Owner: "alice", WorkerID: "gpu-1"})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)

	_, err = f.pool.Current(ctx, "", "")
	require.ErrorIs(t, err, ErrOwnerRequired)
}

func TestPool_CurrentExpiresOverdueBlock(t *testing.T) {
	var expired atomic.Int32
	f := newTestPool(t, nil, WithHooks(&Hooks{
		OnBlockExpired: func(context.Context, *Assignment) error {
			expired.Add(1)
			return nil
		},
	}))
	ctx := t.Context()

	block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	f.clock.Advance(time.Hour + time.Second)

	_, err = f.pool.Current(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)

	stored, err := f.backend.Store.Get(ctx, block.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, stored.Status)

	require.True(t, f.pool.WaitHooks(time.Second))
	require.Equal(t, int32(1), expired.Load())
}

func TestPool_Release(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	released, err := f.pool.Release(ctx, "alice", "")
	require.NoError(t, err)
	require.Equal(t, block.ID, released.ID)
	require.Equal(t, StatusExpired, released.Status)
	require.Equal(t, poolEpoch, released.ExpiresAt)

	_, err = f.pool.Current(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.pool.Release(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)

	// The released interval is the exact fit for the next request of that size.
	next, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "bob"})
	require.NoError(t, err)
	require.Equal(t, ProvenanceReused, next.Provenance)
	require.True(t, next.Interval.Equal(block.Interval))
}

func TestPool_Submit(t *testing.T) {
	t.Run("completes block", func(t *testing.T) {
		var completed atomic.Int32
		f := newTestPool(t, nil, WithHooks(&Hooks{
			OnBlockCompleted: func(_ context.Context, a *Assignment) error {
				if a.Status == StatusCompleted {
					completed.Add(1)
				}
				return nil
			},
		}))
		ctx := t.Context()

		block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
		require.NoError(t, err)

		scalars := scalarsFor(t, block.SampleIdentifiers)
		scalars[0] = "0x" + scalars[0]
		res, err := f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: scalars})
		require.NoError(t, err)
		require.Empty(t, res.Missing)
		require.Equal(t, StatusCompleted, res.Assignment.Status)
		require.Zero(t, res.Credits)
		require.False(t, res.KeyspaceHit)

		stored, err := f.backend.Store.Get(ctx, block.ID)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, stored.Status)
		require.NotNil(t, stored.Solution)
		require.Equal(t, scalarsFor(t, block.SampleIdentifiers), stored.Solution.Scalars)
		require.Empty(t, stored.Solution.HitScalar)

		_, err = f.pool.Current(ctx, "alice", "")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", BlockID: block.ID, Scalars: scalars})
		require.ErrorIs(t, err, ErrNotActive)

		require.True(t, f.pool.WaitHooks(time.Second))
		require.Equal(t, int32(1), completed.Load())
	})

	t.Run("mismatch keeps block active", func(t *testing.T) {
		f := newTestPool(t, nil)
		ctx := t.Context()

		block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice", Custom: customInterval(0x1200, 0x1300)})
		require.NoError(t, err)

		scalars := scalarsFor(t, block.SampleIdentifiers)
		scalars[3] = hex64(0x1fff)
		res, err := f.pool.Submit(ctx, SubmitRequest{Owner: "alice", BlockID: block.ID, Scalars: scalars})
		require.ErrorIs(t, err, ErrCheckworkMismatch)
		require.NotNil(t, res)
		require.Equal(t, []string{block.SampleIdentifiers[3]}, res.Missing)

		current, err := f.pool.Current(ctx, "alice", "")
		require.NoError(t, err)
		require.Equal(t, StatusActive, current.Status)
	})

	t.Run("rejects malformed submissions", func(t *testing.T) {
		f := newTestPool(t, nil)
		ctx := t.Context()

		block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
		require.NoError(t, err)
		scalars := scalarsFor(t, block.SampleIdentifiers)

		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: scalars[:9]})
		require.ErrorIs(t, err, ErrInvalidScalar)

		short := append([]string{"1234"}, scalars[1:]...)
		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: short})
		require.ErrorIs(t, err, ErrInvalidScalar)

		bad := append([]string{strings.Repeat("g", 64)}, scalars[1:]...)
		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: bad})
		require.ErrorIs(t, err, ErrInvalidScalar)

		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "mallory", BlockID: block.ID, Scalars: scalars})
		require.ErrorIs(t, err, ErrNotOwner)

		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "bob", Scalars: scalars})
		require.ErrorIs(t, err, ErrNotFound)

		_, err = f.pool.Submit(ctx, SubmitRequest{Scalars: scalars})
		require.ErrorIs(t, err, ErrOwnerRequired)
	})

	t.Run("ignores scalars beyond the limit", func(t *testing.T) {
		f := newTestPool(t, nil)
		ctx := t.Context()

		block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
		require.NoError(t, err)

		padding := make([]string, 30)
		for i := range padding {
			padding[i] = hex64(0x1fff)
		}
		// Correct scalars placed after the first 30 are never looked at.
		scalars := append(padding, scalarsFor(t, block.SampleIdentifiers)...)
		_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: scalars})
		require.ErrorIs(t, err, ErrCheckworkMismatch)
	})
}

func TestPool_SubmitKeyspaceHit(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newTestPool(t, func(cfg *Config) {
		cfg.Puzzle.Address = "id-1234"
	}, WithMetrics(metrics.NewPrometheus(reg, "")))
	ctx := t.Context()

	block, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice", Custom: customInterval(0x1200, 0x1300)})
	require.NoError(t, err)

	// A hit is reported even when the checkwork is wrong.
	wrong := make([]string, 10)
	for i := range wrong {
		wrong[i] = hex64(0x1fff)
	}
	res, err := f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: append(wrong, hex64(0x1234))})
	require.ErrorIs(t, err, ErrCheckworkMismatch)
	require.True(t, res.KeyspaceHit)
	require.Equal(t, hex64(0x1234), res.HitScalar)

	// The hit is persisted even though the block stays active.
	stored, err := f.backend.Store.Get(ctx, block.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
	require.NotNil(t, stored.Solution)
	require.Equal(t, hex64(0x1234), stored.Solution.HitScalar)
	require.Zero(t, stored.Solution.Credits)
	require.Len(t, stored.Solution.Scalars, 11)

	res, err = f.pool.Submit(ctx, SubmitRequest{
		Owner:   "alice",
		Scalars: append(scalarsFor(t, block.SampleIdentifiers), hex64(0x1234)),
	})
	require.NoError(t, err)
	require.True(t, res.KeyspaceHit)

	stored, err = f.backend.Store.Get(ctx, block.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, hex64(0x1234), stored.Solution.HitScalar)
	require.Equal(t, res.Credits, stored.Solution.Credits)

	// One accepted and one mismatched verification.
	count, err := testutil.GatherAndCount(reg, "puzzlepool_checkwork_verifications_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPool_BlockWithoutCheckworkIsNotServed(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	// An allocation that has persisted its block but not yet its identifiers.
	now := f.clock.Now()
	pending, err := f.backend.Store.Create(ctx, types.NewAssignment{
		Owner:      "alice",
		Interval:   types.NewInterval(0x1000, 0x1100),
		Provenance: ProvenanceFresh,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	})
	require.NoError(t, err)

	_, err = f.pool.Current(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.pool.Submit(ctx, SubmitRequest{Owner: "alice", Scalars: []string{hex64(1)}})
	require.ErrorIs(t, err, ErrNotFound)

	res, err := f.pool.Submit(ctx, SubmitRequest{Owner: "alice", BlockID: pending.ID, Scalars: []string{hex64(1)}})
	require.ErrorIs(t, err, ErrCheckworkMismatch)
	require.Nil(t, res)

	stored, err := f.backend.Store.Get(ctx, pending.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, stored.Status)
	require.Nil(t, stored.Solution)

	block, err := f.pool.Acquire(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)
	require.False(t, block.Existing)
	require.NotEqual(t, pending.ID, block.ID)
	require.NotEmpty(t, block.SampleIdentifiers)
}

func TestCredits(t *testing.T) {
	tests := []struct {
		keys string
		want float64
	}{
		{"0", 0},
		{"256", 0},
		{"999999999", 0},
		{"1000000000", 0.001},
		{"1000000000000", 1},
		{"1234567890123", 1.234},
		{"5000000000000", 5},
	}

	for _, tt := range tests {
		t.Run(tt.keys, func(t *testing.T) {
			keys, _ := new(big.Int).SetString(tt.keys, 10)
			require.InDelta(t, tt.want, Credits(keys), 1e-9)
		})
	}
}

func TestPool_SweepExpired(t *testing.T) {
	var expired atomic.Int32
	f := newTestPool(t, nil, WithHooks(&Hooks{
		OnBlockExpired: func(context.Context, *Assignment) error {
			expired.Add(1)
			return nil
		},
	}))
	ctx := t.Context()

	_, err := f.pool.Allocate(ctx, AllocateRequest{Owner: "alice"})
	require.NoError(t, err)
	_, err = f.pool.Allocate(ctx, AllocateRequest{Owner: "bob"})
	require.NoError(t, err)

	swept, err := f.pool.SweepExpired(ctx)
	require.NoError(t, err)
	require.Empty(t, swept)

	f.clock.Advance(2 * time.Hour)

	swept, err = f.pool.SweepExpired(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 2)

	require.True(t, f.pool.WaitHooks(time.Second))
	require.Equal(t, int32(2), expired.Load())

	_, err = f.pool.Current(ctx, "alice", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPool_StartStop(t *testing.T) {
	f := newTestPool(t, nil)
	ctx := t.Context()

	require.ErrorIs(t, f.pool.Stop(), ErrNotStarted)

	require.NoError(t, f.pool.Start(ctx))
	require.ErrorIs(t, f.pool.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, f.pool.Stop())
	require.ErrorIs(t, f.pool.Stop(), ErrNotStarted)
}

func TestPool_StopWaitsForHooksWithoutStart(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	f := newTestPool(t, nil, WithHooks(&Hooks{
		OnBlockAssigned: func(_ context.Context, _ *Assignment) error {
			<-release
			finished.Store(true)
			return nil
		},
	}))

	_, err := f.pool.Allocate(t.Context(), AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	stopped := make(chan error, 1)
	go func() { stopped <- f.pool.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a hook was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-stopped:
		require.ErrorIs(t, err, ErrNotStarted)
		require.True(t, finished.Load())
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the hook finished")
	}
}

func TestPool_ResolveSize(t *testing.T) {
	f := newTestPool(t, func(cfg *Config) {
		cfg.BlockSize = BlockSizeConfig{Min: "100", Max: "200", HardCap: "1K"}
	})
	cfg := f.pool.Config()
	ks, err := cfg.Keyspace()
	require.NoError(t, err)

	size, err := f.pool.ResolveSize("150", ks)
	require.NoError(t, err)
	require.Equal(t, int64(150), size.Int64())

	size, err = f.pool.ResolveSize("2K", ks)
	require.NoError(t, err)
	require.Equal(t, int64(1000), size.Int64(), "hard cap applies to explicit sizes")

	size, err = f.pool.ResolveSize("0", ks)
	require.NoError(t, err)
	require.Equal(t, int64(1), size.Int64())

	for range 50 {
		size, err = f.pool.ResolveSize("", ks)
		require.NoError(t, err)
		require.GreaterOrEqual(t, size.Int64(), int64(100))
		require.LessOrEqual(t, size.Int64(), int64(200))
	}

	uncapped := newTestPool(t, func(cfg *Config) {
		cfg.BlockSize = BlockSizeConfig{Min: "1T"}
	})
	size, err = uncapped.pool.ResolveSize("", ks)
	require.NoError(t, err)
	require.Equal(t, int64(0x1000), size.Int64(), "clamped to the keyspace")

	_, err = f.pool.ResolveSize("1.5K", ks)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPool_Sample(t *testing.T) {
	f := newTestPool(t, nil)

	iv := types.NewInterval(0x1500, 0x1600)
	points, err := f.pool.Sample(iv, 0)
	require.NoError(t, err)
	require.Len(t, points, 10)
	for _, p := range points {
		require.True(t, iv.Contains(p.Scalar))
		require.Equal(t, "id-"+p.Scalar.Text(16), p.Identifier)
	}

	points, err = f.pool.Sample(iv, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	_, err = f.pool.Sample(types.NewInterval(5, 5), 3)
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestPool_HooksReceiveSnapshots(t *testing.T) {
	assigned := make(chan *Assignment, 1)
	f := newTestPool(t, nil, WithHooks(&Hooks{
		OnBlockAssigned: func(_ context.Context, a *Assignment) error {
			assigned <- a
			return nil
		},
	}))

	block, err := f.pool.Allocate(t.Context(), AllocateRequest{Owner: "alice"})
	require.NoError(t, err)

	select {
	case a := <-assigned:
		require.Equal(t, block.ID, a.ID)
		require.NotSame(t, block.Assignment, a)
		require.Len(t, a.SampleIdentifiers, 10)
	case <-time.After(time.Second):
		t.Fatal("OnBlockAssigned was not called")
	}
}
