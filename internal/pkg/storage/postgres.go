package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
)

// Ensure PostgresStorage implements both storage interfaces
var (
	_ ArbitrageStorage = (*PostgresStorage)(nil)
	_ EnrichedStorage  = (*PostgresStorage)(nil)
)

// PostgresStorage persists arbitrage and enriched matches in PostgreSQL.
// Records expire by creation timestamp: a janitor goroutine prunes rows older
// than the configured TTL for each table, so the store self-cleans without an
// explicit delete pipeline.
type PostgresStorage struct {
	db          *sql.DB
	arbTTL      time.Duration
	enrichedTTL time.Duration
}

// NewPostgresStorage opens the connection, verifies it and initializes the
// schema. arbTTL and enrichedTTL bound record lifetimes per table.
func NewPostgresStorage(cfg *config.PostgresConfig, arbTTL, enrichedTTL time.Duration) (*PostgresStorage, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	if arbTTL <= 0 {
		arbTTL = 24 * time.Hour
	}
	if enrichedTTL <= 0 {
		enrichedTTL = 36 * time.Hour
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStorage{db: db, arbTTL: arbTTL, enrichedTTL: enrichedTTL}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL storage initialized", "arb_ttl", arbTTL, "enriched_ttl", enrichedTTL)
	return s, nil
}

func (s *PostgresStorage) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS arbitrage_matches (
		match_id VARCHAR(100) PRIMARY KEY,
		season_id VARCHAR(100) NOT NULL DEFAULT '',
		home_team VARCHAR(200) NOT NULL,
		away_team VARCHAR(200) NOT NULL,
		tournament VARCHAR(300) NOT NULL DEFAULT '',
		match_time TIMESTAMPTZ,
		markets JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_arbitrage_matches_created_at ON arbitrage_matches(created_at);

	CREATE TABLE IF NOT EXISTS enriched_matches (
		match_id VARCHAR(100) PRIMARY KEY,
		season_id VARCHAR(100) NOT NULL DEFAULT '',
		is_valid BOOLEAN NOT NULL DEFAULT FALSE,
		match_time TIMESTAMPTZ,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_enriched_matches_created_at ON enriched_matches(created_at);
	`

	_, err := s.db.ExecContext(ctx, query)
	return err
}

// UpsertMatches bulk-upserts arbitrage matches keyed by match_id. The bulk
// statement is a single multi-row INSERT .. ON CONFLICT; if it fails, every
// record is retried individually so one bad row cannot sink the batch.
func (s *PostgresStorage) UpsertMatches(ctx context.Context, matches []models.Match) (UpsertResult, error) {
	if len(matches) == 0 {
		return UpsertResult{}, nil
	}

	res, err := s.bulkUpsertMatches(ctx, matches)
	if err == nil {
		return res, nil
	}
	slog.Warn("Storage: bulk upsert failed, falling back to per-record writes", "error", err, "batch", len(matches))

	var out UpsertResult
	for i := range matches {
		r, err := s.bulkUpsertMatches(ctx, matches[i:i+1])
		if err != nil {
			slog.Error("Storage: per-record upsert failed", "match_id", matches[i].MatchID, "error", err)
			out.Failed++
			continue
		}
		out.Inserted += r.Inserted
		out.Updated += r.Updated
		out.Persisted += r.Persisted
	}
	if out.Persisted == 0 {
		return out, fmt.Errorf("upsert matches: all %d records failed", len(matches))
	}
	return out, nil
}

func (s *PostgresStorage) bulkUpsertMatches(ctx context.Context, matches []models.Match) (UpsertResult, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO arbitrage_matches
		(match_id, season_id, home_team, away_team, tournament, match_time, markets, created_at)
	VALUES `)
	for i, m := range matches {
		marketsJSON, err := json.Marshal(m.Markets)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("marshal markets for %s: %w", m.MatchID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, m.MatchID, m.SeasonID, m.HomeTeam, m.AwayTeam,
			m.TournamentName, m.MatchTime, marketsJSON)
	}
	sb.WriteString(`
	ON CONFLICT (match_id) DO UPDATE SET
		season_id = EXCLUDED.season_id,
		home_team = EXCLUDED.home_team,
		away_team = EXCLUDED.away_team,
		tournament = EXCLUDED.tournament,
		match_time = EXCLUDED.match_time,
		markets = EXCLUDED.markets,
		created_at = NOW()
	RETURNING (xmax = 0) AS inserted`)

	return s.runUpsert(ctx, sb.String(), args)
}

// UpsertEnriched bulk-upserts enriched matches, replacing stored records
// wholesale. Same fallback contract as UpsertMatches.
func (s *PostgresStorage) UpsertEnriched(ctx context.Context, matches []models.EnrichedMatch) (UpsertResult, error) {
	if len(matches) == 0 {
		return UpsertResult{}, nil
	}

	res, err := s.bulkUpsertEnriched(ctx, matches)
	if err == nil {
		return res, nil
	}
	slog.Warn("Storage: bulk enriched upsert failed, falling back to per-record writes", "error", err, "batch", len(matches))

	var out UpsertResult
	for i := range matches {
		r, err := s.bulkUpsertEnriched(ctx, matches[i:i+1])
		if err != nil {
			slog.Error("Storage: per-record enriched upsert failed", "match_id", matches[i].MatchID, "error", err)
			out.Failed++
			continue
		}
		out.Inserted += r.Inserted
		out.Updated += r.Updated
		out.Persisted += r.Persisted
	}
	if out.Persisted == 0 {
		return out, fmt.Errorf("upsert enriched: all %d records failed", len(matches))
	}
	return out, nil
}

func (s *PostgresStorage) bulkUpsertEnriched(ctx context.Context, matches []models.EnrichedMatch) (UpsertResult, error) {
	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(`INSERT INTO enriched_matches
		(match_id, season_id, is_valid, match_time, payload, created_at)
	VALUES `)
	for i, m := range matches {
		payload, err := json.Marshal(m)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("marshal enriched match %s: %w", m.MatchID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 5
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5)
		args = append(args, m.MatchID, m.SeasonID, m.IsValid, m.MatchTime, payload)
	}
	sb.WriteString(`
	ON CONFLICT (match_id) DO UPDATE SET
		season_id = EXCLUDED.season_id,
		is_valid = EXCLUDED.is_valid,
		match_time = EXCLUDED.match_time,
		payload = EXCLUDED.payload,
		created_at = NOW()
	RETURNING (xmax = 0) AS inserted`)

	return s.runUpsert(ctx, sb.String(), args)
}

func (s *PostgresStorage) runUpsert(ctx context.Context, query string, args []interface{}) (UpsertResult, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return UpsertResult{}, err
	}
	defer rows.Close()

	var res UpsertResult
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return res, err
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
		res.Persisted++
	}
	return res, rows.Err()
}

// StoredMatchIDs reads only the key column, for deduplication.
func (s *PostgresStorage) StoredMatchIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT match_id FROM enriched_matches`)
	if err != nil {
		return nil, fmt.Errorf("query stored match ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// RecentMatches returns the newest stored arbitrage matches, newest first.
func (s *PostgresStorage) RecentMatches(ctx context.Context, limit int) ([]models.Match, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, season_id, home_team, away_team, tournament, match_time, markets, created_at
		FROM arbitrage_matches
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent matches: %w", err)
	}
	defer rows.Close()

	var out []models.Match
	for rows.Next() {
		var (
			m           models.Match
			matchTime   sql.NullTime
			marketsJSON []byte
		)
		if err := rows.Scan(&m.MatchID, &m.SeasonID, &m.HomeTeam, &m.AwayTeam,
			&m.TournamentName, &matchTime, &marketsJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		if matchTime.Valid {
			m.MatchTime = matchTime.Time
		}
		if err := json.Unmarshal(marketsJSON, &m.Markets); err != nil {
			slog.Warn("Storage: skipping match with corrupt markets payload", "match_id", m.MatchID, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentEnriched returns the newest stored enriched matches, newest first.
func (s *PostgresStorage) RecentEnriched(ctx context.Context, limit int) ([]models.EnrichedMatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM enriched_matches
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent enriched: %w", err)
	}
	defer rows.Close()

	var out []models.EnrichedMatch
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m models.EnrichedMatch
		if err := json.Unmarshal(payload, &m); err != nil {
			slog.Warn("Storage: skipping corrupt enriched payload", "error", err)
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// StartJanitor launches the TTL pruning loop. Rows older than each table's
// TTL are deleted on every tick. Returns immediately; the loop stops with ctx.
func (s *PostgresStorage) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.pruneExpired(ctx)
			}
		}
	}()
}

func (s *PostgresStorage) pruneExpired(ctx context.Context) {
	for _, t := range []struct {
		table string
		ttl   time.Duration
	}{
		{"arbitrage_matches", s.arbTTL},
		{"enriched_matches", s.enrichedTTL},
	} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE created_at < NOW() - $1::interval`, t.table),
			fmt.Sprintf("%d seconds", int(t.ttl.Seconds())))
		if err != nil {
			slog.Error("Storage: TTL prune failed", "table", t.table, "error", err)
			continue
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			slog.Info("Storage: pruned expired records", "table", t.table, "rows", n)
		}
	}
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
