// Command puzzlepool is a command line front end for a puzzlepool deployment.
//
// It allocates, inspects, releases and verifies blocks against a NATS or
// SQLite backend and can run the periodic expiry sweep:
//
//	puzzlepool --config pool.yaml --nats-url nats://127.0.0.1:4222 allocate --owner alice
//	puzzlepool --config pool.yaml --sqlite pool.db submit --owner alice 0x... 0x...
//	puzzlepool --config pool.yaml --nats-url nats://127.0.0.1:4222 sweep --watch --metrics-addr :9102
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
