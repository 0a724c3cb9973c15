package models

import "time"

// Market status codes as reported by the odds feed.
const (
	MarketStatusActive    = 0
	MarketStatusSuspended = 1
	MarketStatusSettled   = 3
)

// Outcome is one validated betting outcome within a market.
// StakePercentage is zero until arbitrage detection has run for the market.
type Outcome struct {
	ID              string  `json:"id"`
	Description     string  `json:"description"`
	Odds            float64 `json:"odds"`
	StakePercentage float64 `json:"stake_percentage"`
}

// Market is one betting market of a match. Margin and ProfitPercentage are
// derived by the arbitrage engine, never read from upstream.
type Market struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	Specifier        string    `json:"specifier,omitempty"`
	Status           int       `json:"status"`
	Margin           float64   `json:"margin"`
	ProfitPercentage float64   `json:"profit_percentage"`
	Outcomes         []Outcome `json:"outcomes"`
}

// Match is one upstream event with its markets. Rebuilt from the feed every
// poll cycle; only MatchID is a stable identity across cycles.
type Match struct {
	MatchID        string    `json:"match_id"`
	SeasonID       string    `json:"season_id"`
	HomeTeam       string    `json:"home_team"`
	AwayTeam       string    `json:"away_team"`
	HomeTeamID     string    `json:"home_team_id"`
	AwayTeamID     string    `json:"away_team_id"`
	TournamentName string    `json:"tournament_name"`
	MatchTime      time.Time `json:"match_time"`
	Markets        []Market  `json:"markets"`
	CreatedAt      time.Time `json:"created_at"`
}

// Name returns a human-readable match label for logs and alerts.
func (m *Match) Name() string {
	return m.HomeTeam + " vs " + m.AwayTeam
}

// ArbitrageMarkets returns the markets on which an arbitrage was detected.
func (m *Match) ArbitrageMarkets() []Market {
	var out []Market
	for _, mk := range m.Markets {
		if mk.ProfitPercentage > 0 {
			out = append(out, mk)
		}
	}
	return out
}
