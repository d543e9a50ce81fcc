// Package testutil provides shared fixtures and assertions for integration tests.
//
// Note: For NATS server setup, use the github.com/arloliu/puzzlepool/testing package.
// This package is specifically for multi-pool scenarios and block invariants.
package testutil
