package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/arloliu/puzzlepool"
	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/metrics"
)

const description = `puzzlepool hands out non-overlapping keyspace blocks to workers
and verifies their checkwork.

Pick a backend with --nats-url (shared by many processes) or --sqlite
(single process). The puzzle comes from the config file, or from the
keyspace KV bucket with --kv-source.`

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath  string
	natsURL     string
	sqlitePath  string
	kvSource    bool
	logLevel    string
	logFormat   string
	metricsAddr string
}

// app is the wiring shared by all subcommands. Connections are opened lazily
// by the commands that need them.
type app struct {
	opts     rootOptions
	cfg      puzzlepool.Config
	logger   *logging.SlogLogger
	registry *prometheus.Registry

	nc      *nats.Conn
	js      jetstream.JetStream
	backend *puzzlepool.Backend
	pool    *puzzlepool.Pool
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "puzzlepool",
		Short:         "Keyspace block allocator with sampled checkwork",
		Long:          description,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.opts.configPath, "config", "c", "", "path to the YAML configuration file")
	flags.StringVar(&a.opts.natsURL, "nats-url", os.Getenv("NATS_URL"), "NATS server URL (env NATS_URL)")
	flags.StringVar(&a.opts.sqlitePath, "sqlite", "", "SQLite database file for a single-process backend")
	flags.BoolVar(&a.opts.kvSource, "kv-source", false, "read the puzzle from the keyspace KV bucket instead of the config")
	flags.StringVar(&a.opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.StringVar(&a.opts.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&a.opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (sweep --watch only)")
	cmd.MarkFlagsMutuallyExclusive("nats-url", "sqlite")

	cmd.AddCommand(
		newAllocateCommand(a),
		newCurrentCommand(a),
		newReleaseCommand(a),
		newSubmitCommand(a),
		newSampleCommand(a),
		newSweepCommand(a),
		newPublishCommand(a),
	)

	return cmd
}

// setup loads configuration and builds the logger. Backends are opened on
// demand by openPool.
func (a *app) setup(stderr io.Writer) error {
	logger, err := logging.New(stderr, a.opts.logFormat, a.opts.logLevel)
	if err != nil {
		return err
	}
	a.logger = logger

	if a.opts.configPath != "" {
		cfg, err := puzzlepool.LoadConfig(a.opts.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	} else {
		a.cfg = puzzlepool.DefaultConfig()
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return nil
}

func (a *app) jetStream() (jetstream.JetStream, error) {
	if a.js != nil {
		return a.js, nil
	}
	if a.opts.natsURL == "" {
		return nil, errors.New("--nats-url is required for this command")
	}

	nc, err := nats.Connect(a.opts.natsURL, nats.Name("puzzlepool-cli"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	a.nc, a.js = nc, js

	return js, nil
}

// openPool connects the configured backend and builds the pool.
func (a *app) openPool(ctx context.Context) (*puzzlepool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}

	var (
		backend *puzzlepool.Backend
		src     puzzlepool.KeyspaceSource
		err     error
	)
	switch {
	case a.opts.sqlitePath != "":
		if a.opts.kvSource {
			return nil, errors.New("--kv-source requires --nats-url")
		}
		backend, err = puzzlepool.SQLiteBackend(a.opts.sqlitePath, &a.cfg)
	default:
		var js jetstream.JetStream
		js, err = a.jetStream()
		if err != nil {
			return nil, err
		}
		backend, err = puzzlepool.NATSBackend(ctx, js, &a.cfg, a.logger)
	}
	if err != nil {
		return nil, err
	}
	a.backend = backend

	if a.opts.kvSource {
		js, err := a.jetStream()
		if err != nil {
			return nil, err
		}
		src, err = puzzlepool.KVSource(ctx, js, &a.cfg)
		if err != nil {
			return nil, err
		}
	} else {
		src, err = puzzlepool.StaticSource(&a.cfg)
		if err != nil {
			return nil, err
		}
	}

	pool, err := puzzlepool.New(&a.cfg, backend.Store, backend.Lock, src, puzzlepool.BitcoinDeriver(nil),
		puzzlepool.WithCache(backend.Cache),
		puzzlepool.WithLogger(a.logger),
		puzzlepool.WithMetrics(metrics.NewPrometheus(a.registry, "")),
	)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	return pool, nil
}

// serveMetrics exposes the registry until ctx is done.
func (a *app) serveMetrics(ctx context.Context) {
	if a.opts.metricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	srv := &http.Server{Addr: a.opts.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", a.opts.metricsAddr, "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("serving metrics", "addr", a.opts.metricsAddr)
}

func (a *app) close() error {
	if a.pool != nil && !a.pool.WaitHooks(a.cfg.OperationTimeout) {
		a.logger.Warn("hooks still running at exit")
	}

	var err error
	if a.backend != nil {
		err = a.backend.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}

	return err
}
