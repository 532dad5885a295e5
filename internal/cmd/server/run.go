// Package serverrun wires configuration, logging, the Pebble-backed offset
// store, and a projection driver into a running process, the way the
// teacher's internal/cmd/server/run.go wires its own services into gRPC and
// HTTP listeners.
package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/leviramsey/sliceoffset/internal/config"
	"github.com/leviramsey/sliceoffset/internal/offsetstore"
	"github.com/leviramsey/sliceoffset/internal/projection"
	"github.com/leviramsey/sliceoffset/internal/projection/filterexpr"
	"github.com/leviramsey/sliceoffset/internal/projection/providers/jsonl"
	pebblestore "github.com/leviramsey/sliceoffset/internal/storage/pebble"
	logpkg "github.com/leviramsey/sliceoffset/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Options configures a single projection driver run.
type Options struct {
	DataDir        string
	ProjectionName string
	EventsFile     string
	MinSlice       int
	MaxSlice       int
	Filter         string
	Fsync          pebblestore.FsyncMode
	Config         config.Config
}

// Run opens the offset store, builds the configured projection driver
// against a jsonl.Provider reading EventsFile, and blocks until ctx (or a
// delivered SIGINT/SIGTERM) is canceled.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.DataDir == "" {
		opts.DataDir = config.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "offsets")
	db, err := pebblestore.Open(pebblestore.Options{DataDir: storeDir, Fsync: opts.Fsync})
	if err != nil {
		return fmt.Errorf("open offset store: %w", err)
	}
	defer db.Close()

	logCfg := &logpkg.Config{
		Level:  getenvDefault("PROJ_LOG_LEVEL", "info"),
		Format: getenvDefault("PROJ_LOG_FORMAT", "text"),
	}
	logger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logpkg.RedirectStdLog(logger)

	store := offsetstore.NewPebbleStore(db)

	provider, err := jsonl.Open(opts.EventsFile)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}

	filter, err := filterexpr.Compile(opts.Filter)
	if err != nil {
		return fmt.Errorf("compile filter: %w", err)
	}

	d, err := projection.NewDriver(
		opts.ProjectionName,
		opts.MinSlice, opts.MaxSlice,
		store, provider,
		loggingHandler(logger, opts.ProjectionName),
		projection.AtLeastOnceFromConfig(opts.Config),
		projection.HandlerStrategy{Kind: projection.Single},
		opts.Config,
		logger,
		projection.WithFilter(filter),
		projection.WithStatusObserver(loggingObserver(logger)),
	)
	if err != nil {
		return fmt.Errorf("build driver: %w", err)
	}

	logger.Info("starting projection",
		logpkg.Str("projection", opts.ProjectionName),
		logpkg.Int("minSlice", opts.MinSlice),
		logpkg.Int("maxSlice", opts.MaxSlice),
		logpkg.Str("eventsFile", opts.EventsFile),
	)
	return d.Run(sctx)
}
