// main is the entry point of the person data-lifecycle script.
//
// STARTUP SEQUENCE:
//  1. Load configuration from the environment (and CONFIG_PATH, if set)
//  2. Initialise the logger
//  3. Connect to the document store (MongoDB, or SQLite when offline)
//  4. Run every lifecycle task in order, each after the previous returned
//  5. Disconnect, on every path out, then exit
//
// RUNNING THE SCRIPT:
//
//	MONGO_URI=mongodb://localhost:27017 go run ./cmd/people
//
// or, with no server at all:
//
//	STORAGE_DRIVER=sqlite STORAGE_PATH=storage/people.db go run ./cmd/people
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aanand-mishra/people-lifecycle/internal/config"
	"github.com/aanand-mishra/people-lifecycle/internal/lifecycle"
	"github.com/aanand-mishra/people-lifecycle/internal/logger"
	"github.com/aanand-mishra/people-lifecycle/internal/storage"
	"github.com/aanand-mishra/people-lifecycle/internal/storage/mongodb"
	"github.com/aanand-mishra/people-lifecycle/internal/storage/sqlite"
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	zlog.Info("starting people lifecycle",
		zap.String("driver", cfg.Driver),
		zap.String("errorMode", string(cfg.ErrorMode)),
		zap.String("version", "1.0.0"),
	)

	// Ctrl+C stops the run before the next task; the store is still closed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── 3-5. Connect, run, disconnect ─────────────────────────────────────
	report, err := lifecycle.Execute(ctx, cfg, opener(cfg, zlog), zlog)
	if err != nil {
		if errors.Is(err, storage.ErrConnection) && len(report.Results) == 0 {
			zlog.Error("failed to initialise storage", zap.Error(err))
		} else {
			zlog.Error("run aborted", zap.Error(err))
		}
		_ = zlog.Sync()
		os.Exit(1) // deferred calls do not run after os.Exit
	}

	zlog.Info("run complete",
		zap.Int("tasks", len(report.Results)),
		zap.Int("failed", len(report.Failed())),
	)
}

// opener picks the backend named by cfg.Driver.
func opener(cfg *config.Config, zlog *zap.Logger) lifecycle.Opener {
	return func(ctx context.Context) (storage.Storage, error) {
		// Return a nil interface on error, never a typed nil pointer.
		switch cfg.Driver {
		case config.DriverMongo:
			m, err := mongodb.New(ctx, cfg, zlog)
			if err != nil {
				return nil, err
			}
			return m, nil
		case config.DriverSQLite:
			s, err := sqlite.New(cfg, zlog)
			if err != nil {
				return nil, err
			}
			return s, nil
		default:
			return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
		}
	}
}
