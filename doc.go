// Package puzzlepool hands out non-overlapping blocks of a huge integer keyspace
// to distributed workers and verifies, by sampling, that they scanned them.
//
// A pool serves one puzzle: a keyspace [start, end) and a target address.
// Workers ask for a block, derive an identifier for every scalar in it and
// submit the scalars whose identifiers match the block's checkwork sample.
// A completed block is never handed out again; an expired or released block
// goes back to the pool for reuse.
//
// # Quick Start
//
// Basic usage with a static puzzle and a NATS backend:
//
//	import "github.com/arloliu/puzzlepool"
//
//	cfg := puzzlepool.DefaultConfig()
//	cfg.Puzzle = puzzlepool.PuzzleSettings{
//	    Name:     "71",
//	    Address:  "1PWo3JeB9jrGwfHDNpdGK54CRas7fsVzXU",
//	    StartHex: "400000000000000000",
//	    EndHex:   "800000000000000000",
//	}
//
//	backend, err := puzzlepool.NATSBackend(ctx, js, &cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	src, err := puzzlepool.StaticSource(&cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pool, err := puzzlepool.New(&cfg, backend.Store, backend.Lock, src,
//	    puzzlepool.BitcoinDeriver(nil), puzzlepool.WithCache(backend.Cache))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := pool.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Stop()
//
//	block, err := pool.Acquire(ctx, puzzlepool.AllocateRequest{Owner: token})
//
// # Key Features
//
//   - Exclusive blocks: a global lock serializes interval selection across every pool instance on a store
//   - Expired reuse: the expired interval closest to the requested size is handed out first
//   - Shrink to fit: a fragmented keyspace still yields the largest free segment
//   - Checkwork: stratified samples with anchors at both block ends
//   - Hit detection: a submitted scalar deriving to the puzzle address is always reported
//
// # Architecture
//
// Blocks move through a small state machine:
//
//	ACTIVE → COMPLETED
//	ACTIVE → EXPIRED (deadline passed or released)
//
// ACTIVE and COMPLETED blocks reserve their interval. The store enforces that
// no two reserving blocks share an exact interval, and the allocator never
// picks an interval overlapping a reserved one.
//
// # Backends
//
// NATSBackend keeps assignments, the lock lease and the owner cache in
// JetStream KV buckets and supports many pool processes. SQLiteBackend and
// MemoryBackend are single-process.
//
// See cmd/puzzlepool for a command line front end.
package puzzlepool
