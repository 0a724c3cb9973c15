package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arbscout/arbscout/internal/api"
	"github.com/arbscout/arbscout/internal/enrich"
	"github.com/arbscout/arbscout/internal/feeds/oddsfeed"
	"github.com/arbscout/arbscout/internal/feeds/statsfeed"
	"github.com/arbscout/arbscout/internal/notify"
	"github.com/arbscout/arbscout/internal/pipeline"
	pkgconfig "github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/logging"
	"github.com/arbscout/arbscout/internal/pkg/storage"
	"github.com/arbscout/arbscout/internal/ws"
)

const (
	defaultConfigPath = "configs/production.yaml"

	janitorInterval = time.Hour
)

type flags struct {
	configPath string
	runFor     time.Duration
}

func main() {
	if err := run(); err != nil {
		slog.Error("Scanner failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	slog.Info("Starting scanner...")

	f := parseFlags()
	slog.Info("Loading config", "path", f.configPath)

	cfg, err := pkgconfig.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(&cfg.Logging, "scanner")
	slog.Info("Config loaded successfully")

	ctx, cancel := createContext(f.runFor)
	defer cancel()
	setupSignalHandler(ctx, cancel)

	store, err := storage.NewPostgresStorage(&cfg.Postgres,
		cfg.Pipelines.LiveOdds.TTL, cfg.Pipelines.LiveEnrichment.TTL)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	defer store.Close()
	store.StartJanitor(ctx, janitorInterval)

	var cache *storage.SnapshotCache
	if cfg.Redis.Enabled {
		cache, err = storage.NewSnapshotCache(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to init snapshot cache: %w", err)
		}
		defer cache.Close()
	} else {
		slog.Info("Snapshot cache disabled")
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	var notifier *notify.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.AlertCooldown, cfg.Telegram.MinSendInterval)
		if notifier != nil {
			defer notifier.Stop()
		}
	} else {
		slog.Info("Telegram alerts disabled")
	}

	statsClient := statsfeed.NewClient(&cfg.Feeds.Stats, nil, nil)
	orchestrator := enrich.NewOrchestrator(statsClient, cfg.Feeds.Stats.MaxInflight, nil, nil)

	var wg sync.WaitGroup
	startDrivers(ctx, &wg, cfg, store, cache, hub, notifier, orchestrator)

	if cfg.API.ListenAddr != "" {
		api.NewServer(snapshotReader(cache), store, store, hub).Run(ctx, cfg.API.ListenAddr)
	}

	<-ctx.Done()
	wg.Wait()
	slog.Info("Scanner stopped gracefully")
	return nil
}

// snapshotReader hides the typed-nil pitfall of passing a nil *SnapshotCache
// through an interface.
func snapshotReader(cache *storage.SnapshotCache) api.SnapshotReader {
	if cache == nil {
		return nil
	}
	return cache
}

func startDrivers(ctx context.Context, wg *sync.WaitGroup, cfg *pkgconfig.Config, store *storage.PostgresStorage, cache *storage.SnapshotCache, hub *ws.Hub, notifier *notify.TelegramNotifier, orchestrator *enrich.Orchestrator) {
	// Interface wiring goes through locals so a disabled component stays a
	// true nil inside the pipelines.
	var arbCache pipeline.ArbitrageSnapshot
	var enrichCache pipeline.EnrichedSnapshot
	if cache != nil {
		arbCache = cache
		enrichCache = cache
	}
	var alerts pipeline.ArbitrageNotifier
	if notifier != nil {
		alerts = notifier
	}

	type entry struct {
		name            string
		enabled         bool
		interval        time.Duration
		defaultInterval time.Duration
		run             func(context.Context) error
	}

	liveOdds := pipeline.NewOddsPipeline("live-odds", cfg.Pipelines.LiveOdds, feedFor(cfg, "live"), store, arbCache, hub, alerts)
	upcomingOdds := pipeline.NewOddsPipeline("upcoming-odds", cfg.Pipelines.UpcomingOdds, feedFor(cfg, "upcoming"), store, arbCache, hub, alerts)
	liveEnrich := pipeline.NewEnrichPipeline("live-enrichment", cfg.Pipelines.LiveEnrichment, feedFor(cfg, "live"), orchestrator, store, enrichCache, hub)
	upcomingEnrich := pipeline.NewEnrichPipeline("upcoming-enrichment", cfg.Pipelines.UpcomingEnrichment, feedFor(cfg, "upcoming"), orchestrator, store, enrichCache, hub)

	entries := []entry{
		{"live-odds", cfg.Pipelines.LiveOdds.Enabled, cfg.Pipelines.LiveOdds.Interval, time.Minute, liveOdds.RunCycle},
		{"upcoming-odds", cfg.Pipelines.UpcomingOdds.Enabled, cfg.Pipelines.UpcomingOdds.Interval, 5 * time.Minute, upcomingOdds.RunCycle},
		{"live-enrichment", cfg.Pipelines.LiveEnrichment.Enabled, cfg.Pipelines.LiveEnrichment.Interval, 3 * time.Hour, liveEnrich.RunCycle},
		{"upcoming-enrichment", cfg.Pipelines.UpcomingEnrichment.Enabled, cfg.Pipelines.UpcomingEnrichment.Interval, 6 * time.Hour, upcomingEnrich.RunCycle},
	}

	for _, e := range entries {
		if !e.enabled {
			slog.Info("Pipeline disabled", "pipeline", e.name)
			continue
		}
		interval := e.interval
		if interval <= 0 {
			interval = e.defaultInterval
			slog.Info("Pipeline interval not set, using default", "pipeline", e.name, "interval", interval)
		}
		pipeline.Driver{Name: e.name, Interval: interval, Run: e.run}.Start(ctx, wg)
	}
}

// feedFor builds an odds feed client bound to one event stream. Each driver
// gets its own client and permit pool.
func feedFor(cfg *pkgconfig.Config, eventState string) *oddsfeed.Client {
	feedCfg := cfg.Feeds.Odds
	feedCfg.EventState = eventState
	return oddsfeed.NewClient(&feedCfg, nil, nil)
}

func parseFlags() flags {
	var f flags

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&f.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.DurationVar(&f.runFor, "run-for", 0, "Auto-stop after duration (e.g. 10s, 1m). 0 = run until SIGINT/SIGTERM")
	flag.Parse()
	return f
}

func createContext(runFor time.Duration) (context.Context, context.CancelFunc) {
	if runFor > 0 {
		return context.WithTimeout(context.Background(), runFor)
	}
	return context.WithCancel(context.Background())
}

func setupSignalHandler(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal, stopping scanner...", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
		}
	}()
}
