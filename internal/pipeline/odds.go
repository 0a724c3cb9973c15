package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbscout/arbscout/internal/arbitrage"
	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
	"github.com/arbscout/arbscout/internal/pkg/storage"
	"github.com/arbscout/arbscout/internal/ws"
)

// MatchFetcher produces the full current slate of matches from a feed.
type MatchFetcher interface {
	FetchAll(ctx context.Context) ([]models.Match, error)
}

// Broadcaster pushes a pipeline result to live subscribers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// ArbitrageNotifier raises out-of-band alerts for detected opportunities.
type ArbitrageNotifier interface {
	NotifyArbitrage(matches []models.Match)
}

// ArbitrageSnapshot caches the latest arbitrage result list.
type ArbitrageSnapshot interface {
	SetArbitrage(ctx context.Context, matches []models.Match, ttl time.Duration) error
}

// OddsPipeline is one odds harvesting cycle: fetch the slate, run arbitrage
// detection, persist and publish the hits. The same type serves the live and
// the upcoming stream; they differ only in fetcher and cadence.
type OddsPipeline struct {
	name      string
	fetcher   MatchFetcher
	store     storage.ArbitrageStorage
	cache     ArbitrageSnapshot
	hub       Broadcaster
	notifier  ArbitrageNotifier
	maxMargin float64
	ttl       time.Duration
}

// NewOddsPipeline wires an odds pipeline. cache, hub and notifier may be nil.
func NewOddsPipeline(name string, cfg config.OddsPipelineConfig, fetcher MatchFetcher, store storage.ArbitrageStorage, cache ArbitrageSnapshot, hub Broadcaster, notifier ArbitrageNotifier) *OddsPipeline {
	return &OddsPipeline{
		name:      name,
		fetcher:   fetcher,
		store:     store,
		cache:     cache,
		hub:       hub,
		notifier:  notifier,
		maxMargin: cfg.MaxMarginPercent,
		ttl:       cfg.TTL,
	}
}

// RunCycle executes one full cycle.
func (p *OddsPipeline) RunCycle(ctx context.Context) error {
	matches, err := p.fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("%s: fetch: %w", p.name, err)
	}

	var hits []models.Match
	for i := range matches {
		if arbitrage.EvaluateMatch(&matches[i], p.maxMargin) {
			hits = append(hits, matches[i])
		}
	}
	slog.Info("Odds pipeline: detection complete", "pipeline", p.name, "fetched", len(matches), "arbitrage", len(hits))

	if p.cache != nil {
		if err := p.cache.SetArbitrage(ctx, hits, p.ttl); err != nil {
			slog.Warn("Odds pipeline: snapshot cache update failed", "pipeline", p.name, "error", err)
		}
	}

	if len(hits) == 0 {
		return nil
	}

	res, err := p.store.UpsertMatches(ctx, hits)
	if err != nil {
		return fmt.Errorf("%s: persist: %w", p.name, err)
	}
	slog.Info("Odds pipeline: persisted", "pipeline", p.name,
		"inserted", res.Inserted, "updated", res.Updated, "failed", res.Failed)

	if p.hub != nil {
		p.hub.Broadcast(ws.EventArbitrage, hits)
	}
	if p.notifier != nil {
		p.notifier.NotifyArbitrage(hits)
	}
	return nil
}
