// memcored is the memcore daemon: it loads configuration, wires the tier
// backends and every component (C1-C10), and serves the HTTP control
// surface until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/consolidation"
	"github.com/memcore-dev/memcore/internal/control"
	"github.com/memcore-dev/memcore/internal/decay"
	"github.com/memcore-dev/memcore/internal/forgetting"
	"github.com/memcore-dev/memcore/internal/idlock"
	"github.com/memcore-dev/memcore/internal/maintenance"
	"github.com/memcore-dev/memcore/internal/overflow"
	"github.com/memcore-dev/memcore/internal/placement"
	"github.com/memcore-dev/memcore/internal/retrieval"
	"github.com/memcore-dev/memcore/internal/review"
	"github.com/memcore-dev/memcore/internal/router"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/internal/store/pgstore"
	"github.com/memcore-dev/memcore/internal/store/qdrantstore"
	"github.com/memcore-dev/memcore/internal/store/redisstore"
)

func main() {
	configFile := flag.String("config", "", "optional YAML config overlay path (also read from MEMCORE_CONFIG_FILE)")
	flag.Parse()
	if *configFile != "" {
		os.Setenv("MEMCORE_CONFIG_FILE", *configFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hot := redisstore.New(cfg.Hot)

	var warm store.Store
	warm, err = qdrantstore.New(ctx, cfg.Warm)
	if err != nil {
		log.Printf("qdrant unavailable, falling back to brute-force warm tier: %v", err)
		warm, err = qdrantstore.NewFallback(cfg.Warm.FallbackSQLitePath)
		if err != nil {
			log.Fatalf("opening warm-tier fallback store: %v", err)
		}
	}

	cold, err := pgstore.New(ctx, cfg.Cold)
	if err != nil {
		log.Fatalf("connecting to cold-tier store: %v", err)
	}

	locks := idlock.New()
	defer locks.Close()

	var overflowKey []byte
	if cfg.Overflow.EncryptionKey != "" {
		overflowKey = []byte(cfg.Overflow.EncryptionKey)
	}
	overflowLog, err := overflow.New(cfg.Overflow.Path, overflowKey)
	if err != nil {
		log.Fatalf("opening overflow log: %v", err)
	}

	reviewScheduler := review.New(cfg.Review)
	forgettingEngine := forgetting.New(cfg.Forgetting, cfg.Scoring)
	decayWorker := decay.New(cfg.Decay, cfg.Scoring)
	consolidationEngine := consolidation.New(warm, cfg.Consolidation, consolidation.NewDefaultSummarizer())
	placementEngine := placement.New(hot, warm, cold, cfg.Placement, locks)

	orchestrator := maintenance.New(
		cfg.Maintenance,
		hot, warm, cold,
		decayWorker,
		reviewScheduler,
		consolidationEngine,
		forgettingEngine,
		placementEngine,
	)
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalf("starting maintenance orchestrator: %v", err)
	}
	defer orchestrator.Stop()

	tierRouter := router.New(hot, warm, cold, cfg.Control.SearchDeadline, cfg.Router)
	facade := retrieval.New(tierRouter, hot, warm, cold, cfg.Scoring, reviewScheduler, forgettingEngine, overflowLog, orchestrator, locks, nil, nil)

	server := control.New(cfg.Control, facade)
	log.Printf("memcored starting on %s:%d", cfg.Control.Host, cfg.Control.Port)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("control surface failed: %v", err)
	}
	log.Printf("memcored shut down cleanly")
}
