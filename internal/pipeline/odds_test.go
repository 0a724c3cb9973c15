package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
	"github.com/arbscout/arbscout/internal/pkg/storage"
	"github.com/arbscout/arbscout/internal/ws"
)

type fakeFetcher struct {
	matches []models.Match
	err     error
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]models.Match, error) {
	return f.matches, f.err
}

type fakeArbStore struct {
	upserted []models.Match
	err      error
}

func (s *fakeArbStore) UpsertMatches(ctx context.Context, matches []models.Match) (storage.UpsertResult, error) {
	if s.err != nil {
		return storage.UpsertResult{}, s.err
	}
	s.upserted = append(s.upserted, matches...)
	return storage.UpsertResult{Inserted: len(matches), Persisted: len(matches)}, nil
}

func (s *fakeArbStore) RecentMatches(ctx context.Context, limit int) ([]models.Match, error) {
	return s.upserted, nil
}

func (s *fakeArbStore) Close() error { return nil }

type fakeArbCache struct {
	snapshots [][]models.Match
}

func (c *fakeArbCache) SetArbitrage(ctx context.Context, matches []models.Match, ttl time.Duration) error {
	c.snapshots = append(c.snapshots, matches)
	return nil
}

type fakeHub struct {
	events []string
}

func (h *fakeHub) Broadcast(event string, payload any) {
	h.events = append(h.events, event)
}

type fakeNotifier struct {
	notified []models.Match
}

func (n *fakeNotifier) NotifyArbitrage(matches []models.Match) {
	n.notified = append(n.notified, matches...)
}

func feedMatch(id string, odds ...float64) models.Match {
	desc := "1X2"
	if len(odds) == 2 {
		desc = "Over/Under"
	}
	outcomes := make([]models.Outcome, len(odds))
	for i, o := range odds {
		outcomes[i] = models.Outcome{ID: string(rune('1' + i)), Description: "o", Odds: o}
	}
	return models.Match{
		MatchID:  id,
		HomeTeam: "Home",
		AwayTeam: "Away",
		Markets:  []models.Market{{ID: "m1", Description: desc, Outcomes: outcomes}},
	}
}

func TestOddsPipelinePersistsOnlyArbitrage(t *testing.T) {
	fetcher := &fakeFetcher{matches: []models.Match{
		feedMatch("sr:match:1", 2.1, 2.1), // arbitrage
		feedMatch("sr:match:2", 1.9, 1.9), // no edge
	}}
	store := &fakeArbStore{}
	cache := &fakeArbCache{}
	hub := &fakeHub{}
	notifier := &fakeNotifier{}

	p := NewOddsPipeline("live-odds", config.OddsPipelineConfig{TTL: time.Hour}, fetcher, store, cache, hub, notifier)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(store.upserted) != 1 || store.upserted[0].MatchID != "sr:match:1" {
		t.Errorf("expected only the arbitrage match persisted, got %v", store.upserted)
	}
	if len(cache.snapshots) != 1 || len(cache.snapshots[0]) != 1 {
		t.Errorf("snapshot not updated with hits: %v", cache.snapshots)
	}
	if len(hub.events) != 1 || hub.events[0] != ws.EventArbitrage {
		t.Errorf("expected one arbitrage broadcast, got %v", hub.events)
	}
	if len(notifier.notified) != 1 {
		t.Errorf("expected one alert, got %d", len(notifier.notified))
	}
}

func TestOddsPipelineMarginCap(t *testing.T) {
	// Profitable on raw numbers but with implied margin above the cap.
	m := feedMatch("sr:match:1", 2.1, 2.1)
	fetcher := &fakeFetcher{matches: []models.Match{m}}
	store := &fakeArbStore{}

	p := NewOddsPipeline("live-odds", config.OddsPipelineConfig{MaxMarginPercent: 0.5}, fetcher, store, nil, nil, nil)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	// Margin for [2.1, 2.1] is about -4.76, below any positive cap, so it passes.
	if len(store.upserted) != 1 {
		t.Fatalf("expected the match persisted, got %d", len(store.upserted))
	}
}

func TestOddsPipelineEmptySlateUpdatesSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{matches: []models.Match{feedMatch("sr:match:1", 1.9, 1.9)}}
	store := &fakeArbStore{}
	cache := &fakeArbCache{}
	hub := &fakeHub{}

	p := NewOddsPipeline("live-odds", config.OddsPipelineConfig{}, fetcher, store, cache, hub, nil)
	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(store.upserted) != 0 {
		t.Error("no arbitrage should persist nothing")
	}
	if len(cache.snapshots) != 1 || len(cache.snapshots[0]) != 0 {
		t.Error("snapshot should be overwritten with an empty list")
	}
	if len(hub.events) != 0 {
		t.Error("nothing to broadcast without hits")
	}
}

func TestOddsPipelineFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream down")}
	p := NewOddsPipeline("live-odds", config.OddsPipelineConfig{}, fetcher, &fakeArbStore{}, nil, nil, nil)

	if err := p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestOddsPipelinePersistFailure(t *testing.T) {
	fetcher := &fakeFetcher{matches: []models.Match{feedMatch("sr:match:1", 2.1, 2.1)}}
	store := &fakeArbStore{err: errors.New("db down")}
	p := NewOddsPipeline("live-odds", config.OddsPipelineConfig{}, fetcher, store, nil, nil, nil)

	if err := p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected persist error to propagate")
	}
}
