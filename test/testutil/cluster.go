package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/puzzlepool"
	pooltest "github.com/arloliu/puzzlepool/testing"
)

// IntegrationTestConfig returns a configuration for multi-pool tests: the
// [0x1000, 0x2000) test puzzle with lock timings that tolerate contention
// between several pools on one NATS server.
func IntegrationTestConfig() puzzlepool.Config {
	cfg := puzzlepool.TestConfig()
	cfg.Lock = puzzlepool.LockConfig{
		TTL:          5 * time.Second,
		MaxWait:      5 * time.Second,
		PollInterval: 20 * time.Millisecond,
		PollJitter:   10 * time.Millisecond,
	}
	cfg.CheckworkCount = 5
	puzzlepool.SetDefaults(&cfg)

	return cfg
}

// NewNATSPools builds n pools that share the NATS buckets of one JetStream
// context, as separate processes would.
//
// Parameters:
//   - t: testing handle
//   - nc: connection to the embedded server
//   - cfg: shared configuration
//   - n: number of pools
//
// Returns:
//   - []*puzzlepool.Pool: pools in creation order
func NewNATSPools(t *testing.T, nc *nats.Conn, cfg puzzlepool.Config, n int) []*puzzlepool.Pool {
	t.Helper()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	pools := make([]*puzzlepool.Pool, 0, n)
	for range n {
		poolCfg := cfg
		backend, err := puzzlepool.NATSBackend(t.Context(), js, &poolCfg, pooltest.NewTestLogger(t))
		require.NoError(t, err)

		src, err := puzzlepool.StaticSource(&poolCfg)
		require.NoError(t, err)

		pool, err := puzzlepool.New(&poolCfg, backend.Store, backend.Lock, src, pooltest.HexDeriver,
			puzzlepool.WithCache(backend.Cache),
			puzzlepool.WithLogger(pooltest.NewTestLogger(t)),
		)
		require.NoError(t, err)
		pools = append(pools, pool)
	}

	return pools
}
