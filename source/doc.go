// Package source provides built-in keyspace sources.
//
// Keyspace sources tell the pool which puzzle is active: its keyspace and the
// target identifier. The package includes:
//
//   - Static: Fixed puzzle, typically built from configuration
//   - KV: Active puzzle stored as JSON in a NATS JetStream KV bucket
//
// Custom sources can be implemented by satisfying the types.KeyspaceSource interface.
package source
