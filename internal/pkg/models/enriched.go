package models

import (
	"time"

	"github.com/arbscout/arbscout/internal/pkg/flexjson"
)

// EnrichedMatch is a match annotated with historical team statistics.
// Every statistics field is independently optional: a failed sub-fetch, or
// one that decoded to default content, leaves its field nil. IsValid is true only when all mandatory sub-fetches
// succeeded with non-default content; invalid records are returned for
// diagnostics but never persisted.
type EnrichedMatch struct {
	MatchID   string    `json:"match_id"`
	SeasonID  string    `json:"season_id"`
	Match     *Match    `json:"original_match,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	MatchTime time.Time `json:"match_time"`
	IsValid   bool      `json:"is_valid"`

	TeamTableSlice        *TeamTableSlice       `json:"team_table_slice,omitempty"`
	LastXStatsTeam1       *TeamLastXStats       `json:"last_x_stats_team1,omitempty"`
	LastXStatsTeam2       *TeamLastXStats       `json:"last_x_stats_team2,omitempty"`
	TeamVersusRecent      *TeamVersusRecent     `json:"team_versus_recent,omitempty"`
	Team1ScoringConceding *TeamScoringConceding `json:"team1_scoring_conceding,omitempty"`
	Team2ScoringConceding *TeamScoringConceding `json:"team2_scoring_conceding,omitempty"`
	Team1LastX            *TeamLastX            `json:"team1_last_x,omitempty"`
	Team2LastX            *TeamLastX            `json:"team2_last_x,omitempty"`
}

// TeamRef identifies a team inside a statistics payload.
type TeamRef struct {
	ID      flexjson.String `json:"_id"`
	UID     flexjson.Int    `json:"uid"`
	Name    flexjson.String `json:"name"`
	Abbr    flexjson.String `json:"abbr"`
	Country flexjson.String `json:"cc,omitempty"`
}

// TableRow is one row of a league table slice.
type TableRow struct {
	Position     flexjson.Int `json:"pos"`
	Team         TeamRef      `json:"team"`
	Played       flexjson.Int `json:"total"`
	Wins         flexjson.Int `json:"winTotal"`
	Draws        flexjson.Int `json:"drawTotal"`
	Losses       flexjson.Int `json:"lossTotal"`
	GoalsFor     flexjson.Int `json:"goalsForTotal"`
	GoalsAgainst flexjson.Int `json:"goalsAgainstTotal"`
	Points       flexjson.Int `json:"pointsTotal"`
}

// TeamTableSlice is the slice of the current league table around the two
// teams of a match.
type TeamTableSlice struct {
	flexjson.Meta
	TableID      flexjson.Int `json:"tableId"`
	Season       flexjson.Int `json:"seasonId"`
	CurrentRound flexjson.Int `json:"currentRound"`
	MaxRounds    flexjson.Int `json:"maxRounds"`
	Rows         []TableRow   `json:"tablerows"`
}

func (t *TeamTableSlice) HasContent() bool { return t != nil && len(t.Rows) > 0 }

// PastMatch is one finished match inside a recent-form or head-to-head list.
type PastMatch struct {
	ID    flexjson.String `json:"_id"`
	Time  flexjson.Int    `json:"_tid"`
	Teams struct {
		Home TeamRef `json:"home"`
		Away TeamRef `json:"away"`
	} `json:"teams"`
	Result struct {
		Home flexjson.Int `json:"home"`
		Away flexjson.Int `json:"away"`
	} `json:"result"`
}

// TeamLastXStats aggregates per-category statistics over a team's last
// matches (goal attempts, shots, corners and the like).
type TeamLastXStats struct {
	flexjson.Meta
	Team           TeamRef        `json:"team"`
	Matches        flexjson.Int   `json:"matches"`
	GoalAttempts   flexjson.Float `json:"goalAttempts"`
	ShotsOnGoal    flexjson.Float `json:"shotsOnGoal"`
	ShotsOffGoal   flexjson.Float `json:"shotsOffGoal"`
	CornerKicks    flexjson.Float `json:"cornerKicks"`
	BallPossession flexjson.Float `json:"ballPossession"`
	Fouls          flexjson.Float `json:"fouls"`
	YellowCards    flexjson.Float `json:"yellowCards"`
}

func (t *TeamLastXStats) HasContent() bool { return t != nil && t.Matches > 0 }

// TeamVersusRecent is the recent head-to-head record of the two teams.
type TeamVersusRecent struct {
	flexjson.Meta
	Matches []PastMatch `json:"matches"`
}

func (t *TeamVersusRecent) HasContent() bool { return t != nil && len(t.Matches) > 0 }

// ScoringConcedingStats is one half (scoring or conceding) of the record.
type ScoringConcedingStats struct {
	Matches       flexjson.Int   `json:"matches"`
	ScoredSum     flexjson.Int   `json:"scoredSum"`
	ConcededSum   flexjson.Int   `json:"concededSum"`
	ScoredAvg     flexjson.Float `json:"scoredAvg"`
	ConcededAvg   flexjson.Float `json:"concededAvg"`
	FailedToScore flexjson.Int   `json:"failedToScore"`
	CleanSheets   flexjson.Int   `json:"keptCleanSheet"`
}

// TeamScoringConceding is a team's season scoring/conceding record.
type TeamScoringConceding struct {
	flexjson.Meta
	Team       TeamRef               `json:"team"`
	Statistics ScoringConcedingStats `json:"statistics"`
}

func (t *TeamScoringConceding) HasContent() bool { return t != nil && t.Statistics.Matches > 0 }

// TeamLastX is a team's most recent finished matches.
type TeamLastX struct {
	flexjson.Meta
	Team    TeamRef     `json:"team"`
	Matches []PastMatch `json:"matches"`
}

func (t *TeamLastX) HasContent() bool { return t != nil && len(t.Matches) > 0 }
