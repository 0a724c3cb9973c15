package pipeline

import "github.com/arbscout/arbscout/internal/pkg/models"

// FilterNew returns the candidates whose match id is not yet stored,
// preserving input order. Candidates without an id are dropped.
func FilterNew(candidates []models.Match, stored map[string]struct{}) []models.Match {
	var fresh []models.Match
	for _, m := range candidates {
		if m.MatchID == "" {
			continue
		}
		if _, ok := stored[m.MatchID]; ok {
			continue
		}
		fresh = append(fresh, m)
	}
	return fresh
}
