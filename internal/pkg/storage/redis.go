package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
)

const (
	arbitrageSnapshotKey = "snapshot:arbitrage"
	enrichedSnapshotKey  = "snapshot:enriched"
)

// SnapshotCache keeps the latest computed result lists in Redis so the HTTP
// API can serve dashboards without touching Postgres. Keys carry the same TTL
// as their backing tables and expire on their own.
type SnapshotCache struct {
	client *redis.Client
}

func NewSnapshotCache(cfg *config.RedisConfig) (*SnapshotCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &SnapshotCache{client: client}, nil
}

// SetArbitrage replaces the cached arbitrage snapshot.
func (c *SnapshotCache) SetArbitrage(ctx context.Context, matches []models.Match, ttl time.Duration) error {
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("failed to marshal arbitrage snapshot: %w", err)
	}
	return c.client.Set(ctx, arbitrageSnapshotKey, data, ttl).Err()
}

// GetArbitrage returns the cached arbitrage snapshot, or nil when the key is
// absent or expired.
func (c *SnapshotCache) GetArbitrage(ctx context.Context) ([]models.Match, error) {
	data, err := c.client.Get(ctx, arbitrageSnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read arbitrage snapshot: %w", err)
	}
	var matches []models.Match
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arbitrage snapshot: %w", err)
	}
	return matches, nil
}

// SetEnriched replaces the cached enriched-match snapshot.
func (c *SnapshotCache) SetEnriched(ctx context.Context, matches []models.EnrichedMatch, ttl time.Duration) error {
	data, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("failed to marshal enriched snapshot: %w", err)
	}
	return c.client.Set(ctx, enrichedSnapshotKey, data, ttl).Err()
}

// GetEnriched returns the cached enriched snapshot, or nil when absent.
func (c *SnapshotCache) GetEnriched(ctx context.Context) ([]models.EnrichedMatch, error) {
	data, err := c.client.Get(ctx, enrichedSnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read enriched snapshot: %w", err)
	}
	var matches []models.EnrichedMatch
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, fmt.Errorf("failed to unmarshal enriched snapshot: %w", err)
	}
	return matches, nil
}

func (c *SnapshotCache) Close() error {
	return c.client.Close()
}
