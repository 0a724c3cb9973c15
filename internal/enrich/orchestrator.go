// Package enrich assembles enriched match records by fanning out statistics
// sub-requests per match. Sub-requests are partitioned into priority groups;
// failures are isolated per sub-request and a partially enriched record is
// returned marked invalid rather than aborting the match.
package enrich

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/arbscout/arbscout/internal/feeds/statsfeed"
	"github.com/arbscout/arbscout/internal/pkg/flexjson"
	"github.com/arbscout/arbscout/internal/pkg/models"
)

// StatsAPI is the slice of the statistics feed the orchestrator consumes.
type StatsAPI interface {
	TableSlice(ctx context.Context, seasonID, teamID string) ([]byte, error)
	TeamLastXStats(ctx context.Context, teamID string) ([]byte, error)
	TeamVersusRecent(ctx context.Context, team1ID, team2ID string) ([]byte, error)
	TeamScoringConceding(ctx context.Context, teamID, seasonID string) ([]byte, error)
	TeamLastX(ctx context.Context, teamID string) ([]byte, error)
}

// Sub-request keys. Drivers reference these to declare which enrichments are
// mandatory for a record to count as valid.
const (
	KeyTableSlice            = "team_table_slice"
	KeyLastXStatsTeam1       = "last_x_stats_team1"
	KeyLastXStatsTeam2       = "last_x_stats_team2"
	KeyTeamVersusRecent      = "team_versus_recent"
	KeyTeam1ScoringConceding = "team1_scoring_conceding"
	KeyTeam2ScoringConceding = "team2_scoring_conceding"
	KeyTeam1LastX            = "team1_last_x"
	KeyTeam2LastX            = "team2_last_x"
)

// DefaultMandatory is the validity conjunction used when a driver does not
// declare its own.
var DefaultMandatory = []string{KeyTableSlice, KeyTeam1LastX, KeyTeam2LastX}

// subRequest binds a request key to its fetch call and its typed setter.
// The table is fixed at compile time: no name-based field lookup anywhere.
type subRequest struct {
	key   string
	fetch func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error)
	apply func(em *models.EnrichedMatch, raw []byte) bool
}

// group partitions sub-requests by priority/cost. Groups run in declared
// order with a randomized pacing delay before each one after the first;
// requests within a group run concurrently.
type group struct {
	name     string
	delayMin time.Duration
	delayMax time.Duration
	requests []subRequest
}

var enrichmentPlan = []group{
	{
		name: "table",
		requests: []subRequest{{
			key: KeyTableSlice,
			fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
				return api.TableSlice(ctx, m.SeasonID, m.HomeTeamID)
			},
			apply: func(em *models.EnrichedMatch, raw []byte) bool {
				v, ok := flexjson.Decode[models.TeamTableSlice](raw)
				if !ok || !v.HasContent() {
					return false
				}
				em.TeamTableSlice = &v
				return true
			},
		}},
	},
	{
		name:     "form-stats",
		delayMin: 100 * time.Millisecond,
		delayMax: 300 * time.Millisecond,
		requests: []subRequest{
			{
				key: KeyLastXStatsTeam1,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamLastXStats(ctx, m.HomeTeamID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamLastXStats](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.LastXStatsTeam1 = &v
					return true
				},
			},
			{
				key: KeyLastXStatsTeam2,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamLastXStats(ctx, m.AwayTeamID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamLastXStats](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.LastXStatsTeam2 = &v
					return true
				},
			},
		},
	},
	{
		name:     "head-to-head",
		delayMin: 200 * time.Millisecond,
		delayMax: 400 * time.Millisecond,
		requests: []subRequest{{
			key: KeyTeamVersusRecent,
			fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
				return api.TeamVersusRecent(ctx, m.HomeTeamID, m.AwayTeamID)
			},
			apply: func(em *models.EnrichedMatch, raw []byte) bool {
				v, ok := flexjson.Decode[models.TeamVersusRecent](raw)
				if !ok || !v.HasContent() {
					return false
				}
				em.TeamVersusRecent = &v
				return true
			},
		}},
	},
	{
		name:     "scoring",
		delayMin: 200 * time.Millisecond,
		delayMax: 500 * time.Millisecond,
		requests: []subRequest{
			{
				key: KeyTeam1ScoringConceding,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamScoringConceding(ctx, m.HomeTeamID, m.SeasonID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamScoringConceding](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.Team1ScoringConceding = &v
					return true
				},
			},
			{
				key: KeyTeam2ScoringConceding,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamScoringConceding(ctx, m.AwayTeamID, m.SeasonID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamScoringConceding](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.Team2ScoringConceding = &v
					return true
				},
			},
		},
	},
	{
		name:     "recent-form",
		delayMin: 300 * time.Millisecond,
		delayMax: 600 * time.Millisecond,
		requests: []subRequest{
			{
				key: KeyTeam1LastX,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamLastX(ctx, m.HomeTeamID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamLastX](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.Team1LastX = &v
					return true
				},
			},
			{
				key: KeyTeam2LastX,
				fetch: func(ctx context.Context, api StatsAPI, m *models.Match) ([]byte, error) {
					return api.TeamLastX(ctx, m.AwayTeamID)
				},
				apply: func(em *models.EnrichedMatch, raw []byte) bool {
					v, ok := flexjson.Decode[models.TeamLastX](raw)
					if !ok || !v.HasContent() {
						return false
					}
					em.Team2LastX = &v
					return true
				},
			},
		},
	},
}

// Orchestrator drives enrichment for batches of matches. One permit pool
// bounds all outbound sub-requests the orchestrator has in flight, across
// matches.
type Orchestrator struct {
	stats     StatsAPI
	permits   chan struct{}
	mandatory map[string]bool

	// pacing scale lets tests collapse the group delays.
	delayScale float64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewOrchestrator builds an orchestrator. mandatory lists the sub-request
// keys whose content is required for IsValid; nil means DefaultMandatory.
func NewOrchestrator(stats StatsAPI, maxInflight int, mandatory []string, rng *rand.Rand) *Orchestrator {
	if maxInflight <= 0 {
		maxInflight = 5
	}
	if mandatory == nil {
		mandatory = DefaultMandatory
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	m := make(map[string]bool, len(mandatory))
	for _, k := range mandatory {
		m[k] = true
	}
	return &Orchestrator{
		stats:      stats,
		permits:    make(chan struct{}, maxInflight),
		mandatory:  m,
		delayScale: 1,
		rng:        rng,
	}
}

// Enrich runs the full plan for one match. Always returns a record; a record
// that failed any mandatory sub-fetch comes back with IsValid false and is
// the caller's to keep out of persistence.
func (o *Orchestrator) Enrich(ctx context.Context, match models.Match) models.EnrichedMatch {
	em := models.EnrichedMatch{
		MatchID:   match.MatchID,
		SeasonID:  match.SeasonID,
		Match:     &match,
		CreatedAt: time.Now(),
		MatchTime: match.MatchTime,
	}

	succeeded := make(map[string]bool)
	var mu sync.Mutex

	for i, g := range enrichmentPlan {
		if i > 0 {
			if err := o.pause(ctx, g.delayMin, g.delayMax); err != nil {
				return em // cancelled: IsValid stays false
			}
		}

		var wg sync.WaitGroup
		for _, req := range g.requests {
			wg.Add(1)
			go func(req subRequest) {
				defer wg.Done()

				select {
				case o.permits <- struct{}{}:
					defer func() { <-o.permits }()
				case <-ctx.Done():
					return
				}

				raw, err := req.fetch(ctx, o.stats, &match)
				if err != nil {
					slog.Warn("Enrich: sub-request failed", "match_id", match.MatchID, "key", req.key, "error", err)
					return
				}
				if raw == nil || statsfeed.IsErrorPayload(raw) {
					return
				}

				mu.Lock()
				defer mu.Unlock()
				if req.apply(&em, raw) {
					succeeded[req.key] = true
				}
			}(req)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return em
		}
	}

	em.IsValid = true
	for key := range o.mandatory {
		if !succeeded[key] {
			em.IsValid = false
			slog.Debug("Enrich: mandatory sub-fetch missing", "match_id", match.MatchID, "key", key)
		}
	}
	return em
}

// EnrichAll enriches a batch concurrently, bounded by the permit pool's
// width at the match level as well. Order of the result is unspecified.
func (o *Orchestrator) EnrichAll(ctx context.Context, matches []models.Match) []models.EnrichedMatch {
	if len(matches) == 0 {
		return nil
	}

	matchSlots := make(chan struct{}, cap(o.permits))
	results := make([]models.EnrichedMatch, len(matches))

	var wg sync.WaitGroup
	for i := range matches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case matchSlots <- struct{}{}:
				defer func() { <-matchSlots }()
			case <-ctx.Done():
				results[i] = models.EnrichedMatch{
					MatchID:   matches[i].MatchID,
					SeasonID:  matches[i].SeasonID,
					CreatedAt: time.Now(),
					MatchTime: matches[i].MatchTime,
				}
				return
			}
			results[i] = o.Enrich(ctx, matches[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		o.rngMu.Lock()
		d += time.Duration(o.rng.Int63n(int64(max - min)))
		o.rngMu.Unlock()
	}
	d = time.Duration(float64(d) * o.delayScale)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
