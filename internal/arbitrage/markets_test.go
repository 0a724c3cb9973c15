package arbitrage

import (
	"testing"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

func TestExpectedOutcomes(t *testing.T) {
	tests := []struct {
		desc string
		want int
		ok   bool
	}{
		{"1X2", 3, true},
		{"Match Result", 3, true},
		{"Double Chance", 3, true},
		{"Half Time/Full Time", 3, true},
		{"First Half - 1X2", 3, true}, // must hit the half-specific rule, still 3
		{"Draw No Bet", 2, true},
		{"Over/Under", 2, true},
		{"Over/Under 2.5 Goals", 2, true},
		{"Both Teams To Score", 2, true},
		{"Asian Handicap", 2, true},
		{"Correct Score", 2, true},
		{"Odd/Even", 2, true},
		{"Corner Match", 3, true},
		{"Total Corners", 2, true},
		{"Next Goalscorer", 0, false},
		{"Player To Be Booked", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ExpectedOutcomes(tt.desc)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExpectedOutcomes(%q) = (%d, %v), want (%d, %v)", tt.desc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestEligibleShapeGating(t *testing.T) {
	two := []models.Outcome{{ID: "a", Odds: 2.1}, {ID: "b", Odds: 2.1}}
	three := append(two[:2:2], models.Outcome{ID: "c", Odds: 3.0})

	tests := []struct {
		name   string
		market models.Market
		want   bool
	}{
		{"over/under with 2 outcomes", models.Market{Description: "Over/Under", Outcomes: two}, true},
		{"over/under with 3 outcomes", models.Market{Description: "Over/Under", Outcomes: three}, false},
		{"1x2 with 3 outcomes", models.Market{Description: "1X2", Outcomes: three}, true},
		{"1x2 with 2 outcomes", models.Market{Description: "1X2", Outcomes: two}, false},
		{"unknown description", models.Market{Description: "Time Of First Goal", Outcomes: two}, false},
		{"suspended", models.Market{Description: "Over/Under", Status: models.MarketStatusSuspended, Outcomes: two}, false},
		{"settled", models.Market{Description: "Over/Under", Status: models.MarketStatusSettled, Outcomes: two}, false},
	}
	for _, tt := range tests {
		if got := Eligible(&tt.market); got != tt.want {
			t.Errorf("%s: Eligible = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeOutcome(t *testing.T) {
	tests := []struct {
		id, desc, odds string
		active         bool
		wantOK         bool
		wantOdds       float64
	}{
		{"1", "Home", "2.35", true, true, 2.35},
		{"1", "Home", " 2.35 ", true, true, 2.35},
		{"1", "Home", "2.35", false, false, 0},
		{"1", "Home", "", true, false, 0},
		{"1", "Home", "n/a", true, false, 0},
		{"1", "Home", "0", true, false, 0},
		{"1", "Home", "-1.5", true, false, 0},
		{"", "Home", "2.35", true, false, 0},
	}
	for _, tt := range tests {
		got, ok := NormalizeOutcome(tt.id, tt.desc, tt.odds, tt.active)
		if ok != tt.wantOK {
			t.Errorf("NormalizeOutcome(%q, %q, %q, %v) ok = %v, want %v",
				tt.id, tt.desc, tt.odds, tt.active, ok, tt.wantOK)
			continue
		}
		if ok && got.Odds != tt.wantOdds {
			t.Errorf("NormalizeOutcome odds = %v, want %v", got.Odds, tt.wantOdds)
		}
	}
}
