package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stormlight/almanac/internal/cachedb"
	"github.com/stormlight/almanac/internal/config"
	"github.com/stormlight/almanac/internal/engine"
	"github.com/stormlight/almanac/internal/remote"
	"github.com/stormlight/almanac/internal/stream"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync daemon",
	Long: `Run the almanac sync daemon.

The daemon:
  1. Warm-starts from the local snapshot cache (if configured)
  2. Loads the current date range from the remote service
  3. Consumes the push channel, applying deltas incrementally
  4. Re-syncs the active window periodically and on fallback signals
  5. Persists a fresh snapshot after every successful refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	logger.Printf("almanac daemon %s starting", version)

	eng, db, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// Initial load of the current month, extended to the full visible
	// grid most calendar UIs show.
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if _, err := eng.EnsureRangeLoaded(ctx, start, end); err != nil {
		logger.Printf("Initial load failed (will refresh from stream): %v", err)
	}
	cancel()
	eng.PrefetchAdjacent(now)

	consumer, err := stream.NewConsumer(stream.Config{
		URL:    cfg.StreamURL,
		Token:  cfg.AuthToken,
		Logger: logger,
	}, eng)
	if err != nil {
		return err
	}
	if err := consumer.Start(); err != nil {
		return err
	}

	// Auth changes tear the channel down, clear the pending fallback
	// timer, and dial again with the new token.
	mgr.Watch(func(next *config.Config) {
		if next.AuthToken == cfg.AuthToken {
			return
		}
		logger.Println("Auth token changed; re-establishing push channel")
		eng.Shutdown()
		if err := consumer.Restart(next.AuthToken); err != nil {
			logger.Printf("Failed to re-establish push channel: %v", err)
		}
		cfg = next
	}, func(err error) {
		logger.Printf("Config reload failed: %v", err)
	})

	ticker := time.NewTicker(cfg.RefreshInterval)
	defer ticker.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := eng.Refresh(ctx); err != nil {
				logger.Printf("Periodic refresh failed: %v", err)
			}
			cancel()

		case sig := <-sigs:
			logger.Printf("Received %s, shutting down", sig)
			consumer.Stop()
			eng.Shutdown()
			return nil
		}
	}
}

// buildEngine wires the transport, engine, and optional snapshot cache.
func buildEngine(cfg *config.Config, logger *log.Logger) (*engine.Engine, *cachedb.DB, error) {
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.ServerURL,
		Token:   cfg.AuthToken,
	})
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.New(engine.Options{
		Transport:       client,
		Logger:          logger,
		GuardWindow:     cfg.GuardWindow,
		DedupCapacity:   cfg.DedupCapacity,
		RefreshDebounce: cfg.RefreshDebounce,
	})
	if err != nil {
		return nil, nil, err
	}

	if cfg.CachePath == "" {
		return eng, nil, nil
	}

	db, err := cachedb.Open(cfg.CachePath)
	if err != nil {
		logger.Printf("Snapshot cache unavailable (continuing without): %v", err)
		return eng, nil, nil
	}
	if err := db.InitSchema(); err != nil {
		logger.Printf("Snapshot cache schema failed (continuing without): %v", err)
		_ = db.Close()
		return eng, nil, nil
	}

	if parts, revs, err := db.LoadSnapshot(); err != nil {
		logger.Printf("Warm start skipped: %v", err)
	} else if len(parts) > 0 {
		eng.Preload(parts, revs)
		logger.Printf("Warm-started %d partition(s) from %s", len(parts), cfg.CachePath)
	}

	eng.OnRefreshed(func(snap engine.Snapshot) {
		if err := db.SaveSnapshot(snap.AllEntities, snap.Revisions); err != nil {
			logger.Printf("Snapshot save failed: %v", err)
		}
	})

	return eng, db, nil
}

// newLogger builds the daemon logger, rotating via lumberjack when a
// log file is configured.
func newLogger(cfg *config.Config) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[almanac] ", log.LstdFlags)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	fmt.Fprintf(os.Stderr, "Logging to %s\n", cfg.LogFile)
	return log.New(rotator, "[almanac] ", log.LstdFlags)
}
