package arbitrage

import (
	"strings"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// shapeRule maps a market-category keyword to the outcome count that category
// must carry to be priced as a complete book. Matching is case-insensitive
// substring, first hit wins, so more specific keywords must precede the
// generic ones they contain ("first half - 1x2" before "1x2").
type shapeRule struct {
	keyword  string
	outcomes int
}

var marketShapes = []shapeRule{
	{"half time/full time", 3},
	{"ht/ft", 3},
	{"first half - 1x2", 3},
	{"second half - 1x2", 3},
	{"1x2", 3},
	{"match result", 3},
	{"full time result", 3},
	{"double chance", 3},
	{"corner match", 3},
	{"booking match", 3},
	{"highest scoring half", 3},
	{"most corners", 3},
	{"goal method", 3},
	{"winning margin", 3},
	{"draw no bet", 2},
	{"both teams to score", 2},
	{"gg/ng", 2},
	{"over/under", 2},
	{"total goals", 2},
	{"total corners", 2},
	{"total bookings", 2},
	{"asian handicap", 2},
	{"asian total", 2},
	{"handicap", 2},
	{"odd/even", 2},
	{"odd or even", 2},
	{"clean sheet", 2},
	{"to qualify", 2},
	{"correct score", 2},
	{"first team to score", 2},
	{"to win either half", 2},
	{"to score in both halves", 2},
}

// ExpectedOutcomes returns the outcome count a recognized market description
// must have. ok is false for descriptions outside the table; such markets are
// never arbitrage-eligible.
func ExpectedOutcomes(description string) (int, bool) {
	d := strings.ToLower(description)
	for _, r := range marketShapes {
		if strings.Contains(d, r.keyword) {
			return r.outcomes, true
		}
	}
	return 0, false
}

// Eligible reports whether a market has a recognized shape and a status that
// permits betting. Suspended and settled markets are excluded outright.
func Eligible(m *models.Market) bool {
	if m.Status == models.MarketStatusSuspended || m.Status == models.MarketStatusSettled {
		return false
	}
	want, ok := ExpectedOutcomes(m.Description)
	if !ok {
		return false
	}
	return len(m.Outcomes) == want
}
