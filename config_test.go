package puzzlepool

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pooltest "github.com/arloliu/puzzlepool/testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "1T", cfg.BlockSize.Min)
	require.Equal(t, "1T", cfg.BlockSize.Max)
	require.Empty(t, cfg.BlockSize.HardCap)
	require.Equal(t, 10, cfg.CheckworkCount)
	require.Equal(t, 12*time.Hour, cfg.AssignmentTTL)
	require.Equal(t, time.Minute, cfg.SweepInterval)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Equal(t, 5*time.Second, cfg.Lock.TTL)
	require.Equal(t, 2*time.Second, cfg.Lock.MaxWait)
	require.Equal(t, 150*time.Millisecond, cfg.Lock.PollInterval)
	require.Equal(t, 50*time.Millisecond, cfg.Lock.PollJitter)
	require.Equal(t, 50, cfg.Allocation.UniquenessAttempts)
	require.Equal(t, 5, cfg.Allocation.PersistAttempts)
	require.Equal(t, 200, cfg.Allocation.ExpiredScanLimit)
	require.Equal(t, 30, cfg.Submit.MaxScalars)
	require.Equal(t, "puzzlepool-lock", cfg.KVBuckets.Lock)
	require.Equal(t, "puzzlepool-assignments", cfg.KVBuckets.Assignments)

	// No puzzle bounds is valid; a KV source may supply them.
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.Equal(t, "1T", cfg.BlockSize.Min)
		require.Equal(t, "1T", cfg.BlockSize.Max)
		require.Equal(t, 10, cfg.CheckworkCount)
		require.Equal(t, 30, cfg.Submit.MaxScalars)
		require.Equal(t, "puzzlepool-keyspace", cfg.KVBuckets.Keyspace)
	})

	t.Run("max follows min", func(t *testing.T) {
		cfg := Config{BlockSize: BlockSizeConfig{Min: "500B"}}
		SetDefaults(&cfg)

		require.Equal(t, "500B", cfg.BlockSize.Max)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			BlockSize:        BlockSizeConfig{Min: "1B", Max: "5B", HardCap: "10B"},
			CheckworkCount:   4,
			AssignmentTTL:    time.Hour,
			SweepInterval:    5 * time.Second,
			OperationTimeout: 3 * time.Second,
			Lock:             LockConfig{TTL: 9 * time.Second, MaxWait: 3 * time.Second, PollInterval: time.Second, PollJitter: 100 * time.Millisecond},
			Allocation:       AllocationConfig{UniquenessAttempts: 7, PersistAttempts: 2, ExpiredScanLimit: 20},
			Submit:           SubmitConfig{MaxScalars: 8},
			KVBuckets:        KVBucketConfig{Lock: "l", Assignments: "a", ActiveBlocks: "b", Keyspace: "k"},
		}
		SetDefaults(&cfg)

		require.Equal(t, "5B", cfg.BlockSize.Max)
		require.Equal(t, "10B", cfg.BlockSize.HardCap)
		require.Equal(t, 4, cfg.CheckworkCount)
		require.Equal(t, time.Hour, cfg.AssignmentTTL)
		require.Equal(t, 9*time.Second, cfg.Lock.TTL)
		require.Equal(t, 100*time.Millisecond, cfg.Lock.PollJitter)
		require.Equal(t, 7, cfg.Allocation.UniquenessAttempts)
		require.Equal(t, 8, cfg.Submit.MaxScalars)
		require.Equal(t, "k", cfg.KVBuckets.Keyspace)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unparseable min", func(c *Config) { c.BlockSize.Min = "lots" }},
		{"zero min", func(c *Config) { c.BlockSize.Min = "0" }},
		{"max below min", func(c *Config) { c.BlockSize.Min, c.BlockSize.Max = "2K", "1K" }},
		{"hard cap below max", func(c *Config) { c.BlockSize.HardCap = "100" }},
		{"no checkwork", func(c *Config) { c.CheckworkCount = -1 }},
		{"max scalars below checkwork", func(c *Config) { c.Submit.MaxScalars = 5 }},
		{"negative ttl", func(c *Config) { c.AssignmentTTL = -time.Second }},
		{"jitter too large", func(c *Config) { c.Lock.PollJitter = c.Lock.PollInterval }},
		{"empty keyspace", func(c *Config) { c.Puzzle.StartHex, c.Puzzle.EndHex = "2000", "2000" }},
		{"bad hex", func(c *Config) { c.Puzzle.StartHex = "xyz" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig()
			tt.mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("test config is valid", func(t *testing.T) {
		cfg := TestConfig()
		require.NoError(t, cfg.Validate())
	})
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	logger := pooltest.NewTestLogger(t)

	cfg := TestConfig()
	cfg.CheckworkCount = 2
	cfg.Lock.TTL = cfg.Lock.MaxWait

	// Warnings only, never a failure.
	cfg.ValidateWithWarnings(logger)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Keyspace(t *testing.T) {
	cfg := TestConfig()

	ks, err := cfg.Keyspace()
	require.NoError(t, err)
	require.Equal(t, int64(0x1000), ks.Start.Int64())
	require.Equal(t, int64(0x2000), ks.End.Int64())
	require.Equal(t, int64(0x1000), ks.MaxRange().Int64())

	cfg.Puzzle.Address = "1Target"
	puzzle, err := cfg.PuzzleConfig()
	require.NoError(t, err)
	require.Equal(t, "test", puzzle.Name)
	require.Equal(t, "1Target", puzzle.Address)
	require.Equal(t, 0, puzzle.Keyspace.Start.Cmp(ks.Start))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"750", "750"},
		{"5K", "5000"},
		{"2m", "2000000"},
		{"5B", "5000000000"},
		{"1T", "1000000000000"},
		{" 3t ", "3000000000000"},
		{"0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			require.NoError(t, err)

			want, _ := new(big.Int).SetString(tt.want, 10)
			require.Equal(t, 0, got.Cmp(want), "got %s", got)
		})
	}

	for _, bad := range []string{"", "-5", "1.5T", "10X", "T", "0x10"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, err := ParseSize(bad)
			require.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}

// TestConfig_YAML demonstrates that durations and nested sections decode directly.
func TestConfig_YAML(t *testing.T) {
	yamlConfig := `
puzzle:
  name: "71"
  address: 1PWo3JeB9jrGwfHDNpdGK54CRas7fsVzXU
  startHex: "400000000000000000"
  endHex: "0x800000000000000000"
blockSize:
  min: 1T
  max: 5T
  hardCap: 10T
checkworkCount: 12
assignmentTtl: 6h
sweepInterval: 30s
lock:
  ttl: 8s
  maxWait: 3s
submit:
  maxScalars: 20
kvBuckets:
  assignments: pool-a
`

	cfg, err := ParseConfig([]byte(yamlConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "71", cfg.Puzzle.Name)
	require.Equal(t, "5T", cfg.BlockSize.Max)
	require.Equal(t, 12, cfg.CheckworkCount)
	require.Equal(t, 6*time.Hour, cfg.AssignmentTTL)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, 8*time.Second, cfg.Lock.TTL)
	require.Equal(t, 3*time.Second, cfg.Lock.MaxWait)
	require.Equal(t, 20, cfg.Submit.MaxScalars)
	require.Equal(t, "pool-a", cfg.KVBuckets.Assignments)

	// Defaults fill what the document leaves out.
	require.Equal(t, 150*time.Millisecond, cfg.Lock.PollInterval)
	require.Equal(t, "puzzlepool-lock", cfg.KVBuckets.Lock)

	ks, err := cfg.Keyspace()
	require.NoError(t, err)
	require.Equal(t, "400000000000000000", ks.Start.Text(16))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkworkCount: 6\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 6, cfg.CheckworkCount)
	require.Equal(t, "1T", cfg.BlockSize.Min)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseConfig([]byte("checkworkCount: [nope"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
