package storage

import (
	"context"

	"github.com/arbscout/arbscout/internal/pkg/models"
)

// UpsertResult reports how a bulk upsert landed. Persisted counts every
// record that made it to the store through either the bulk path or the
// per-record fallback.
type UpsertResult struct {
	Inserted  int
	Updated   int
	Persisted int
	Failed    int
}

// ArbitrageStorage persists matches with detected arbitrage markets, keyed
// by match id. Upserts are idempotent: re-writing the same match replaces
// the stored record wholesale.
type ArbitrageStorage interface {
	// UpsertMatches bulk-upserts a batch; one bad record must not block the
	// others. On bulk failure every record is retried individually.
	UpsertMatches(ctx context.Context, matches []models.Match) (UpsertResult, error)

	// RecentMatches returns the newest stored matches, newest first.
	RecentMatches(ctx context.Context, limit int) ([]models.Match, error)

	// Close closes the database connection
	Close() error
}

// EnrichedStorage persists enriched matches keyed by match id.
type EnrichedStorage interface {
	UpsertEnriched(ctx context.Context, matches []models.EnrichedMatch) (UpsertResult, error)

	// StoredMatchIDs returns the natural-key projection used for
	// deduplication. Only the key column is read.
	StoredMatchIDs(ctx context.Context) (map[string]struct{}, error)

	RecentEnriched(ctx context.Context, limit int) ([]models.EnrichedMatch, error)

	Close() error
}
