package arbitrage

import (
	"strconv"
	"strings"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// NormalizeOutcome validates one raw outcome record from the odds feed.
// Inactive outcomes, empty or non-numeric odds and odds at or below zero are
// dropped; a dropped record never fails its batch.
func NormalizeOutcome(id, description, oddsText string, active bool) (models.Outcome, bool) {
	if !active {
		return models.Outcome{}, false
	}
	if strings.TrimSpace(id) == "" {
		return models.Outcome{}, false
	}
	oddsText = strings.TrimSpace(oddsText)
	if oddsText == "" {
		return models.Outcome{}, false
	}
	odds, err := strconv.ParseFloat(oddsText, 64)
	if err != nil || odds <= 0 {
		return models.Outcome{}, false
	}
	return models.Outcome{
		ID:          id,
		Description: strings.TrimSpace(description),
		Odds:        odds,
	}, true
}
