package puzzlepool

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/puzzlepool/internal/cache"
	"github.com/arloliu/puzzlepool/internal/derive"
	"github.com/arloliu/puzzlepool/internal/kvutil"
	"github.com/arloliu/puzzlepool/internal/lock"
	"github.com/arloliu/puzzlepool/internal/store/memory"
	"github.com/arloliu/puzzlepool/internal/store/natskv"
	"github.com/arloliu/puzzlepool/internal/store/sqlite"
	"github.com/arloliu/puzzlepool/source"
)

// bucketRetries is the number of create-or-open attempts per KV bucket.
const bucketRetries = 3

// Backend bundles the collaborators a Pool persists through.
type Backend struct {
	Store AssignmentStore
	Lock  AssignmentLock
	Cache ActiveBlockCache

	closeFn func() error
}

// Close releases backend resources. Safe to call on every backend.
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}

	return b.closeFn()
}

// NATSBackend creates (or opens) the lock, assignment and active-block KV
// buckets named in cfg.KVBuckets and wires the NATS implementations on them.
//
// The lock bucket TTL is cfg.Lock.TTL so a crashed holder's lease disappears
// on its own. Every pool process pointed at the same JetStream domain shares
// one allocation lock.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - cfg: Configuration (defaults are applied)
//   - logger: Logger for the store; nil disables logging
//
// Returns:
//   - *Backend: NATS-backed store, lock and cache
//   - error: Bucket creation error
func NATSBackend(ctx context.Context, js jetstream.JetStream, cfg *Config, logger Logger) (*Backend, error) {
	SetDefaults(cfg)

	lockKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.Lock,
		Description: "puzzlepool assignment lock",
		TTL:         cfg.Lock.TTL,
		History:     1,
	}, bucketRetries)
	if err != nil {
		return nil, fmt.Errorf("lock bucket: %w", err)
	}

	assignmentKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.Assignments,
		Description: "puzzlepool block assignments",
		History:     1,
	}, bucketRetries)
	if err != nil {
		return nil, fmt.Errorf("assignment bucket: %w", err)
	}

	activeKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.ActiveBlocks,
		Description: "puzzlepool active block per owner",
		TTL:         cfg.AssignmentTTL,
		History:     1,
	}, bucketRetries)
	if err != nil {
		return nil, fmt.Errorf("active block bucket: %w", err)
	}

	storeOpts := []natskv.Option{}
	if logger != nil {
		storeOpts = append(storeOpts, natskv.WithLogger(logger))
	}

	return &Backend{
		Store: natskv.New(assignmentKV, storeOpts...),
		Lock:  lock.NewNATS(lockKV, lock.DefaultKey, cfg.Lock.TTL, nil),
		Cache: cache.NewNATS(activeKV, nil),
	}, nil
}

// SQLiteBackend opens a single-node backend on a SQLite database file.
//
// The lock is in-process, so only one pool process may use the database.
// Close the backend to close the database.
func SQLiteBackend(path string, cfg *Config) (*Backend, error) {
	SetDefaults(cfg)

	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	return &Backend{
		Store:   st,
		Lock:    lock.NewLocal(cfg.Lock.TTL, nil),
		Cache:   cache.NewMemory(nil),
		closeFn: st.Close,
	}, nil
}

// MemoryBackend returns a volatile in-process backend, for tests and demos.
// A nil clock uses the real clock.
func MemoryBackend(cfg *Config, clock clockwork.Clock) *Backend {
	SetDefaults(cfg)

	return &Backend{
		Store: memory.New(clock),
		Lock:  lock.NewLocal(cfg.Lock.TTL, clock),
		Cache: cache.NewMemory(clock),
	}
}

// StaticSource serves the puzzle configured in cfg.Puzzle.
func StaticSource(cfg *Config) (*source.Static, error) {
	puzzle, err := cfg.PuzzleConfig()
	if err != nil {
		return nil, err
	}

	return source.NewStatic(puzzle), nil
}

// KVSource serves the puzzle stored in the cfg.KVBuckets.Keyspace bucket,
// creating the bucket when missing.
func KVSource(ctx context.Context, js jetstream.JetStream, cfg *Config) (*source.KV, error) {
	SetDefaults(cfg)

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.KVBuckets.Keyspace,
		Description: "puzzlepool active puzzle",
	}, bucketRetries)
	if err != nil {
		return nil, fmt.Errorf("keyspace bucket: %w", err)
	}

	return source.NewKV(kv, source.DefaultPuzzleKey), nil
}

// BitcoinDeriver derives compressed P2PKH addresses on the given network;
// nil means mainnet.
func BitcoinDeriver(params *chaincfg.Params) IdentifierDeriver {
	return derive.NewP2PKH(params)
}
