package pipeline

import (
	"testing"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

func TestFilterNew(t *testing.T) {
	stored := map[string]struct{}{
		"sr:match:1": {},
		"sr:match:3": {},
	}
	candidates := []models.Match{
		{MatchID: "sr:match:1"},
		{MatchID: "sr:match:2"},
		{MatchID: "sr:match:3"},
		{MatchID: "sr:match:4"},
		{MatchID: ""},
	}

	fresh := FilterNew(candidates, stored)

	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh matches, got %d", len(fresh))
	}
	if fresh[0].MatchID != "sr:match:2" || fresh[1].MatchID != "sr:match:4" {
		t.Errorf("wrong matches or order: %v, %v", fresh[0].MatchID, fresh[1].MatchID)
	}
}

func TestFilterNewEmptyStore(t *testing.T) {
	candidates := []models.Match{{MatchID: "sr:match:1"}, {MatchID: "sr:match:2"}}

	fresh := FilterNew(candidates, map[string]struct{}{})
	if len(fresh) != 2 {
		t.Errorf("empty store should keep all candidates, got %d", len(fresh))
	}
}

func TestFilterNewAllStored(t *testing.T) {
	stored := map[string]struct{}{"sr:match:1": {}}

	fresh := FilterNew([]models.Match{{MatchID: "sr:match:1"}}, stored)
	if len(fresh) != 0 {
		t.Errorf("expected no fresh matches, got %d", len(fresh))
	}
}
