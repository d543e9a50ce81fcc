package puzzlepool

import (
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/puzzlepool/types"
)

// PuzzleSettings describes the static puzzle served when no KV source is used.
type PuzzleSettings struct {
	// Name is a human readable puzzle label (e.g. "71").
	Name string `yaml:"name"`

	// Address is the target identifier. A submitted scalar deriving to it is
	// reported as a keyspace hit.
	Address string `yaml:"address"`

	// StartHex is the inclusive keyspace start, hex with optional 0x prefix.
	StartHex string `yaml:"startHex"`

	// EndHex is the exclusive keyspace end, hex with optional 0x prefix.
	EndHex string `yaml:"endHex"`
}

// BlockSizeConfig bounds the size of allocated blocks.
//
// Sizes are decimal numbers with an optional K, M, B or T suffix ("500B", "1T").
type BlockSizeConfig struct {
	// Min is the smallest randomly chosen block size. Default: 1T.
	Min string `yaml:"min"`

	// Max is the largest randomly chosen block size. Default: Min.
	Max string `yaml:"max"`

	// HardCap is the absolute upper bound for any request, explicit sizes
	// included. Empty means no cap beyond the keyspace length.
	HardCap string `yaml:"hardCap"`
}

// LockConfig controls the global assignment lock.
type LockConfig struct {
	// TTL is how long a lease survives a crashed holder. Default: 5s.
	TTL time.Duration `yaml:"ttl"`

	// MaxWait is the total time an allocation waits for the lock before
	// failing with ErrLockTimeout. Default: 2s.
	MaxWait time.Duration `yaml:"maxWait"`

	// PollInterval is the base delay between lock attempts. Default: 150ms.
	PollInterval time.Duration `yaml:"pollInterval"`

	// PollJitter is the random deviation applied to PollInterval. Default: 50ms.
	PollJitter time.Duration `yaml:"pollJitter"`
}

// AllocationConfig bounds the allocator's retry loops.
type AllocationConfig struct {
	// UniquenessAttempts bounds exact-duplicate perturbations. Default: 50.
	UniquenessAttempts int `yaml:"uniquenessAttempts"`

	// PersistAttempts bounds create attempts on uniqueness conflicts. Default: 5.
	PersistAttempts int `yaml:"persistAttempts"`

	// ExpiredScanLimit caps the expired intervals considered for reuse. Default: 200.
	ExpiredScanLimit int `yaml:"expiredScanLimit"`
}

// SubmitConfig controls checkwork submissions.
type SubmitConfig struct {
	// MaxScalars is how many submitted scalars are considered; extras are
	// ignored. Default: 30.
	MaxScalars int `yaml:"maxScalars"`
}

// KVBucketConfig configures NATS JetStream KV bucket names.
type KVBucketConfig struct {
	// Lock is the bucket holding the assignment lock lease.
	Lock string `yaml:"lock"`

	// Assignments is the bucket holding assignment records.
	Assignments string `yaml:"assignments"`

	// ActiveBlocks is the bucket caching each owner's active block id.
	ActiveBlocks string `yaml:"activeBlocks"`

	// Keyspace is the bucket holding the active puzzle document.
	Keyspace string `yaml:"keyspace"`
}

// Config is the configuration for the Pool.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "12h".
type Config struct {
	// Puzzle is the static puzzle. Ignored when the pool is given a KV keyspace source.
	Puzzle PuzzleSettings `yaml:"puzzle"`

	// BlockSize bounds block sizes.
	BlockSize BlockSizeConfig `yaml:"blockSize"`

	// CheckworkCount is the number of verification points per block. Default: 10.
	CheckworkCount int `yaml:"checkworkCount"`

	// AssignmentTTL is how long a block stays ACTIVE before the sweep expires it.
	// Default: 12h.
	AssignmentTTL time.Duration `yaml:"assignmentTtl"`

	// SweepInterval is the period of the background expiry sweep. Default: 1m.
	SweepInterval time.Duration `yaml:"sweepInterval"`

	// OperationTimeout bounds background store operations. Default: 10s.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// Lock controls the assignment lock.
	Lock LockConfig `yaml:"lock"`

	// Allocation bounds the allocator's retries.
	Allocation AllocationConfig `yaml:"allocation"`

	// Submit controls checkwork submissions.
	Submit SubmitConfig `yaml:"submit"`

	// KVBuckets names the NATS KV buckets.
	KVBuckets KVBucketConfig `yaml:"kvBuckets"`
}

// DefaultConfig returns a Config with production defaults.
//
// The puzzle is left empty; callers must set it or use a KV keyspace source.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		BlockSize: BlockSizeConfig{
			Min: "1T",
			Max: "1T",
		},
		CheckworkCount:   10,
		AssignmentTTL:    12 * time.Hour,
		SweepInterval:    time.Minute,
		OperationTimeout: 10 * time.Second,
		Lock: LockConfig{
			TTL:          5 * time.Second,
			MaxWait:      2 * time.Second,
			PollInterval: 150 * time.Millisecond,
			PollJitter:   50 * time.Millisecond,
		},
		Allocation: AllocationConfig{
			UniquenessAttempts: 50,
			PersistAttempts:    5,
			ExpiredScanLimit:   200,
		},
		Submit: SubmitConfig{
			MaxScalars: 30,
		},
		KVBuckets: KVBucketConfig{
			Lock:         "puzzlepool-lock",
			Assignments:  "puzzlepool-assignments",
			ActiveBlocks: "puzzlepool-active",
			Keyspace:     "puzzlepool-keyspace",
		},
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.BlockSize.Min == "" {
		cfg.BlockSize.Min = defaults.BlockSize.Min
	}
	if cfg.BlockSize.Max == "" {
		// Max follows Min so a lone min means a fixed size.
		cfg.BlockSize.Max = cfg.BlockSize.Min
	}
	if cfg.CheckworkCount == 0 {
		cfg.CheckworkCount = defaults.CheckworkCount
	}
	if cfg.AssignmentTTL == 0 {
		cfg.AssignmentTTL = defaults.AssignmentTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = defaults.Lock.TTL
	}
	if cfg.Lock.MaxWait == 0 {
		cfg.Lock.MaxWait = defaults.Lock.MaxWait
	}
	if cfg.Lock.PollInterval == 0 {
		cfg.Lock.PollInterval = defaults.Lock.PollInterval
	}
	if cfg.Lock.PollJitter == 0 {
		cfg.Lock.PollJitter = defaults.Lock.PollJitter
	}
	if cfg.Allocation.UniquenessAttempts == 0 {
		cfg.Allocation.UniquenessAttempts = defaults.Allocation.UniquenessAttempts
	}
	if cfg.Allocation.PersistAttempts == 0 {
		cfg.Allocation.PersistAttempts = defaults.Allocation.PersistAttempts
	}
	if cfg.Allocation.ExpiredScanLimit == 0 {
		cfg.Allocation.ExpiredScanLimit = defaults.Allocation.ExpiredScanLimit
	}
	if cfg.Submit.MaxScalars == 0 {
		cfg.Submit.MaxScalars = defaults.Submit.MaxScalars
	}
	if cfg.KVBuckets.Lock == "" {
		cfg.KVBuckets.Lock = defaults.KVBuckets.Lock
	}
	if cfg.KVBuckets.Assignments == "" {
		cfg.KVBuckets.Assignments = defaults.KVBuckets.Assignments
	}
	if cfg.KVBuckets.ActiveBlocks == "" {
		cfg.KVBuckets.ActiveBlocks = defaults.KVBuckets.ActiveBlocks
	}
	if cfg.KVBuckets.Keyspace == "" {
		cfg.KVBuckets.Keyspace = defaults.KVBuckets.Keyspace
	}
}

// Validate checks configuration constraints and returns an error for invalid values.
//
// Hard Validation Rules:
//   - Block sizes parse and 1 <= Min <= Max (<= HardCap when set)
//   - CheckworkCount >= 1 and Submit.MaxScalars >= CheckworkCount
//   - AssignmentTTL, Lock durations and retry bounds are positive
//   - PollJitter < PollInterval
//   - Puzzle bounds, when set, parse and satisfy start < end
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	minSize, err := ParseSize(cfg.BlockSize.Min)
	if err != nil {
		return fmt.Errorf("%w: blockSize.min: %w", ErrInvalidConfig, err)
	}
	maxSize, err := ParseSize(cfg.BlockSize.Max)
	if err != nil {
		return fmt.Errorf("%w: blockSize.max: %w", ErrInvalidConfig, err)
	}
	if minSize.Sign() <= 0 {
		return fmt.Errorf("%w: blockSize.min must be positive", ErrInvalidConfig)
	}
	if maxSize.Cmp(minSize) < 0 {
		return fmt.Errorf("%w: blockSize.max (%s) must be >= blockSize.min (%s)", ErrInvalidConfig, maxSize, minSize)
	}
	if cfg.BlockSize.HardCap != "" {
		hardCap, err := ParseSize(cfg.BlockSize.HardCap)
		if err != nil {
			return fmt.Errorf("%w: blockSize.hardCap: %w", ErrInvalidConfig, err)
		}
		if hardCap.Cmp(maxSize) < 0 {
			return fmt.Errorf("%w: blockSize.hardCap (%s) must be >= blockSize.max (%s)", ErrInvalidConfig, hardCap, maxSize)
		}
	}

	if cfg.CheckworkCount < 1 {
		return fmt.Errorf("%w: checkworkCount must be >= 1, got %d", ErrInvalidConfig, cfg.CheckworkCount)
	}
	if cfg.Submit.MaxScalars < cfg.CheckworkCount {
		return fmt.Errorf("%w: submit.maxScalars (%d) must be >= checkworkCount (%d)",
			ErrInvalidConfig, cfg.Submit.MaxScalars, cfg.CheckworkCount)
	}

	if cfg.AssignmentTTL <= 0 {
		return fmt.Errorf("%w: assignmentTtl must be > 0, got %v", ErrInvalidConfig, cfg.AssignmentTTL)
	}
	if cfg.Lock.TTL <= 0 || cfg.Lock.MaxWait <= 0 || cfg.Lock.PollInterval <= 0 {
		return fmt.Errorf("%w: lock durations must be > 0", ErrInvalidConfig)
	}
	if cfg.Lock.PollJitter < 0 || cfg.Lock.PollJitter >= cfg.Lock.PollInterval {
		return fmt.Errorf("%w: lock.pollJitter (%v) must be in [0, pollInterval %v)",
			ErrInvalidConfig, cfg.Lock.PollJitter, cfg.Lock.PollInterval)
	}
	if cfg.Allocation.UniquenessAttempts < 1 || cfg.Allocation.PersistAttempts < 1 || cfg.Allocation.ExpiredScanLimit < 1 {
		return fmt.Errorf("%w: allocation attempts and scan limit must be >= 1", ErrInvalidConfig)
	}

	if cfg.Puzzle.StartHex != "" || cfg.Puzzle.EndHex != "" {
		if _, err := cfg.Keyspace(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateWithWarnings logs warnings for values that are legal but unusual.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Lock.TTL < 2*cfg.Lock.MaxWait {
		logger.Warn(
			"lock TTL is short relative to the wait budget, a slow holder may lose its lease",
			"lockTTL", cfg.Lock.TTL,
			"maxWait", cfg.Lock.MaxWait,
			"recommended", 2*cfg.Lock.MaxWait,
		)
	}

	if cfg.CheckworkCount < 3 {
		logger.Warn(
			"checkworkCount below 3 disables anchor sampling at both ends of a block",
			"checkworkCount", cfg.CheckworkCount,
		)
	}

	if cfg.SweepInterval > cfg.AssignmentTTL/10 {
		logger.Warn(
			"sweep interval is long relative to the assignment TTL, expired blocks stay reserved longer",
			"sweepInterval", cfg.SweepInterval,
			"assignmentTTL", cfg.AssignmentTTL,
		)
	}
}

// Keyspace parses the static puzzle bounds.
//
// Returns:
//   - Keyspace: The configured keyspace
//   - error: ErrInvalidConfig when a bound is malformed or start >= end
func (cfg *Config) Keyspace() (Keyspace, error) {
	start, err := types.ParseHex(cfg.Puzzle.StartHex)
	if err != nil {
		return Keyspace{}, fmt.Errorf("%w: puzzle.startHex: %w", ErrInvalidConfig, err)
	}
	end, err := types.ParseHex(cfg.Puzzle.EndHex)
	if err != nil {
		return Keyspace{}, fmt.Errorf("%w: puzzle.endHex: %w", ErrInvalidConfig, err)
	}

	ks := types.NewKeyspace(start, end)
	if !ks.Valid() {
		return Keyspace{}, fmt.Errorf("%w: puzzle keyspace %s is empty", ErrInvalidConfig, ks.Interval())
	}

	return ks, nil
}

// PuzzleConfig returns the static puzzle as served by a keyspace source.
func (cfg *Config) PuzzleConfig() (PuzzleConfig, error) {
	ks, err := cfg.Keyspace()
	if err != nil {
		return PuzzleConfig{}, err
	}

	return PuzzleConfig{Name: cfg.Puzzle.Name, Address: cfg.Puzzle.Address, Keyspace: ks}, nil
}

// TestConfig returns a configuration optimized for fast test execution.
//
// The puzzle spans [0x1000, 0x2000), blocks are 256 keys and lock waits are
// short enough for contention tests to finish quickly.
//
// Returns:
//   - Config: Configuration with small sizes and fast timings
//
// Example:
//
//	cfg := puzzlepool.TestConfig()
//	cfg.CheckworkCount = 5
//	pool, err := puzzlepool.New(&cfg, store, lock, src, deriver)
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.Puzzle = PuzzleSettings{Name: "test", StartHex: "1000", EndHex: "2000"}
	cfg.BlockSize = BlockSizeConfig{Min: "256", Max: "256"}
	cfg.AssignmentTTL = time.Hour
	cfg.SweepInterval = 100 * time.Millisecond
	cfg.OperationTimeout = time.Second
	cfg.Lock = LockConfig{
		TTL:          time.Second,
		MaxWait:      500 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		PollJitter:   2 * time.Millisecond,
	}

	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Parsed configuration with defaults applied (not yet validated)
//   - error: Read or decode error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration and applies defaults.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: decode yaml: %w", ErrInvalidConfig, err)
	}
	SetDefaults(&cfg)

	return cfg, nil
}

var sizePattern = regexp.MustCompile(`^(\d+)([KMBT]?)$`)

var sizeMultipliers = map[string]*big.Int{
	"":  big.NewInt(1),
	"K": big.NewInt(1_000),
	"M": big.NewInt(1_000_000),
	"B": big.NewInt(1_000_000_000),
	"T": big.NewInt(1_000_000_000_000),
}

// ParseSize parses a decimal key count with an optional K, M, B or T suffix
// (case-insensitive), e.g. "750", "5B", "1t".
//
// Returns:
//   - *big.Int: The key count
//   - error: ErrInvalidRange for malformed input
func ParseSize(s string) (*big.Int, error) {
	m := sizePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return nil, fmt.Errorf("%w: size %q (want digits with optional K/M/B/T suffix)", ErrInvalidRange, s)
	}

	n, ok := new(big.Int).SetString(m[1], 10)
	if !ok {
		return nil, fmt.Errorf("%w: size %q", ErrInvalidRange, s)
	}

	return n.Mul(n, sizeMultipliers[m[2]]), nil
}
