// Package testing provides test utilities for puzzlepool.
//
// Following net/http/httptest, it bundles the fixtures the pool's own tests
// and downstream integration tests need:
//   - StartEmbeddedNATS: in-process NATS server with JetStream
//   - CreateJetStreamKV: memory-backed KV bucket with optional TTL
//   - NewTestLogger: types.Logger writing to t.Logf
//   - HexDeriver: cheap deterministic IdentifierDeriver
//
// Example usage:
//
//	import (
//	    "testing"
//	    pooltest "github.com/arloliu/puzzlepool/testing"
//	)
//
//	func TestMyStore(t *testing.T) {
//	    _, nc := pooltest.StartEmbeddedNATS(t)
//	    kv := pooltest.CreateJetStreamKV(t, nc, "blocks", 0)
//	    // ...
//	}
package testing
