package oddsfeed

import (
	"strings"
	"time"

	"github.com/arbscout/arbscout/internal/arbitrage"
	"github.com/arbscout/arbscout/internal/pkg/models"
)

// parseEvents converts one response page into canonical matches. Records with
// missing identifiers and outcomes that fail normalization are dropped
// silently; a single malformed entry never affects its siblings.
func parseEvents(resp *EventsResponse, now time.Time) []models.Match {
	var matches []models.Match
	for _, tournament := range resp.Data.Tournaments {
		for _, ev := range tournament.Events {
			if strings.TrimSpace(ev.EventID) == "" ||
				strings.TrimSpace(ev.HomeTeamName) == "" ||
				strings.TrimSpace(ev.AwayTeamName) == "" {
				continue
			}

			match := models.Match{
				MatchID:        ev.EventID,
				SeasonID:       ev.SeasonID,
				HomeTeam:       ev.HomeTeamName,
				AwayTeam:       ev.AwayTeamName,
				HomeTeamID:     ev.HomeTeamID,
				AwayTeamID:     ev.AwayTeamID,
				TournamentName: tournament.Name,
				CreatedAt:      now,
			}
			if match.SeasonID == "" {
				match.SeasonID = tournament.ID
			}
			if ev.EstimateStartTime > 0 {
				match.MatchTime = time.UnixMilli(ev.EstimateStartTime)
			}

			for _, rawMarket := range ev.Markets {
				market := models.Market{
					ID:          rawMarket.ID,
					Description: rawMarket.Desc,
					Specifier:   rawMarket.Specifier,
					Status:      rawMarket.Status,
				}
				for _, rawOutcome := range rawMarket.Outcomes {
					outcome, ok := arbitrage.NormalizeOutcome(
						rawOutcome.ID, rawOutcome.Desc, rawOutcome.Odds, rawOutcome.IsActive == 1)
					if !ok {
						continue
					}
					market.Outcomes = append(market.Outcomes, outcome)
				}
				if len(market.Outcomes) == 0 {
					continue
				}
				match.Markets = append(match.Markets, market)
			}

			matches = append(matches, match)
		}
	}
	return matches
}
