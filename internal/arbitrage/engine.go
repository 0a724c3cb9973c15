// Package arbitrage holds the pure math over validated markets: margin and
// profit computation, stake allocation and the market-shape table that gates
// which markets are priced at all.
package arbitrage

import (
	"math"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// Result is the outcome of running detection on one market.
type Result struct {
	HasArbitrage     bool
	Margin           float64
	ProfitPercentage float64
	// Stakes holds the per-outcome capital split, in percent, index-aligned
	// with the market's outcomes. Empty unless HasArbitrage.
	Stakes []float64
}

// Detect computes margin, profit and stake allocation for a market.
// maxMargin caps the acceptable bookmaker margin in percent; a market above
// the cap is rejected even when the raw numbers show profit (stale books
// produce false positives). maxMargin <= 0 disables the cap.
//
// Detection is strict: an exact break-even book is not an opportunity.
func Detect(m *models.Market, maxMargin float64) Result {
	if len(m.Outcomes) == 0 {
		return Result{}
	}

	totalInverse := 0.0
	for _, o := range m.Outcomes {
		if o.Odds <= 0 {
			return Result{}
		}
		totalInverse += 1 / o.Odds
	}

	margin := round2((totalInverse - 1) * 100)
	res := Result{Margin: margin}

	if maxMargin > 0 && margin > maxMargin {
		return res
	}

	// Profit is measured against the guaranteed payout: staking totalInverse
	// units buys a payout of 1 on every outcome, leaving 1-totalInverse as
	// surplus.
	profit := (1 - totalInverse) * 100
	if profit <= 0 {
		return res
	}

	res.HasArbitrage = true
	res.ProfitPercentage = round2(profit)
	res.Stakes = make([]float64, len(m.Outcomes))
	for i, o := range m.Outcomes {
		res.Stakes[i] = round2(1 / o.Odds / totalInverse * 100)
	}
	return res
}

// Apply runs detection on a market and writes the derived fields back onto
// it. Margin is always attached for observability; profit and stakes only
// when an arbitrage exists. Returns whether the market has an arbitrage.
func Apply(m *models.Market, maxMargin float64) bool {
	r := Detect(m, maxMargin)
	m.Margin = r.Margin
	if !r.HasArbitrage {
		m.ProfitPercentage = 0
		return false
	}
	m.ProfitPercentage = r.ProfitPercentage
	for i := range m.Outcomes {
		m.Outcomes[i].StakePercentage = r.Stakes[i]
	}
	return true
}

// EvaluateMatch gates every market of a match through the shape table and the
// engine, keeping only markets with a detected arbitrage. Returns whether any
// market survived; a match with none is not persisted by the odds pipelines.
func EvaluateMatch(match *models.Match, maxMargin float64) bool {
	var kept []models.Market
	for i := range match.Markets {
		mk := &match.Markets[i]
		if !Eligible(mk) {
			continue
		}
		if Apply(mk, maxMargin) {
			kept = append(kept, *mk)
		}
	}
	match.Markets = kept
	return len(kept) > 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
