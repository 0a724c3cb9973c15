package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
	"github.com/arbscout/arbscout/internal/pkg/storage"
	"github.com/arbscout/arbscout/internal/ws"
)

// Enricher turns plain matches into enriched records.
type Enricher interface {
	EnrichAll(ctx context.Context, matches []models.Match) []models.EnrichedMatch
}

// EnrichedSnapshot caches the latest enriched result list.
type EnrichedSnapshot interface {
	SetEnriched(ctx context.Context, matches []models.EnrichedMatch, ttl time.Duration) error
}

// EnrichPipeline is one enrichment cycle: fetch the slate, drop matches
// already enriched, enrich the rest and persist only the valid records.
type EnrichPipeline struct {
	name     string
	fetcher  MatchFetcher
	enricher Enricher
	store    storage.EnrichedStorage
	cache    EnrichedSnapshot
	hub      Broadcaster
	ttl      time.Duration
}

// NewEnrichPipeline wires an enrichment pipeline. cache and hub may be nil.
func NewEnrichPipeline(name string, cfg config.EnrichPipelineConfig, fetcher MatchFetcher, enricher Enricher, store storage.EnrichedStorage, cache EnrichedSnapshot, hub Broadcaster) *EnrichPipeline {
	return &EnrichPipeline{
		name:     name,
		fetcher:  fetcher,
		enricher: enricher,
		store:    store,
		cache:    cache,
		hub:      hub,
		ttl:      cfg.TTL,
	}
}

// RunCycle executes one full cycle.
func (p *EnrichPipeline) RunCycle(ctx context.Context) error {
	matches, err := p.fetcher.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("%s: fetch: %w", p.name, err)
	}
	if len(matches) == 0 {
		slog.Info("Enrich pipeline: nothing to enrich", "pipeline", p.name)
		return nil
	}

	stored, err := p.store.StoredMatchIDs(ctx)
	if err != nil {
		return fmt.Errorf("%s: stored ids: %w", p.name, err)
	}

	fresh := FilterNew(matches, stored)
	slog.Info("Enrich pipeline: dedup complete", "pipeline", p.name,
		"fetched", len(matches), "already_stored", len(matches)-len(fresh), "fresh", len(fresh))
	if len(fresh) == 0 {
		return nil
	}

	enriched := p.enricher.EnrichAll(ctx, fresh)

	var valid []models.EnrichedMatch
	for _, em := range enriched {
		if em.IsValid {
			valid = append(valid, em)
		}
	}
	slog.Info("Enrich pipeline: enrichment complete", "pipeline", p.name,
		"enriched", len(enriched), "valid", len(valid), "invalid", len(enriched)-len(valid))
	if len(valid) == 0 {
		return nil
	}

	res, err := p.store.UpsertEnriched(ctx, valid)
	if err != nil {
		return fmt.Errorf("%s: persist: %w", p.name, err)
	}
	slog.Info("Enrich pipeline: persisted", "pipeline", p.name,
		"inserted", res.Inserted, "updated", res.Updated, "failed", res.Failed)

	if p.cache != nil {
		if err := p.cache.SetEnriched(ctx, valid, p.ttl); err != nil {
			slog.Warn("Enrich pipeline: snapshot cache update failed", "pipeline", p.name, "error", err)
		}
	}
	if p.hub != nil {
		p.hub.Broadcast(ws.EventEnriched, valid)
	}
	return nil
}
