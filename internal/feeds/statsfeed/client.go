// Package statsfeed fetches per-entity statistics payloads (league tables,
// recent form, head-to-head records) from the upstream statistics feed.
// Payloads come back raw; shape-tolerant decoding happens at the enrichment
// layer, per target type.
package statsfeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/arbscout/arbscout/internal/pkg/config"
)

const (
	maxAttempts = 3
	backoffBase = time.Second
	backoffCap  = 10 * time.Second
	jitterMax   = time.Second

	defaultTimeout     = 20 * time.Second
	defaultRPM         = 60
	defaultMaxInflight = 5
)

// Client wraps the statistics feed with the same retry policy as the odds
// feed, a token-bucket rate limiter for request pacing and a circuit breaker
// so a dead upstream is not hammered through an entire enrichment pass.
type Client struct {
	cfg        *config.StatsFeedConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	permits    chan struct{}

	backoffBase time.Duration
	backoffCap  time.Duration
	jitterMax   time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewClient builds a statistics client. httpClient and rng may be nil;
// explicit values make transport and retry timing deterministic in tests.
func NewClient(cfg *config.StatsFeedConfig, httpClient *http.Client, rng *rand.Rand) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}

	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = defaultMaxInflight
	}

	settings := gobreaker.Settings{
		Name:    "statsfeed",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("StatsFeed: circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
		breaker:     gobreaker.NewCircuitBreaker[[]byte](settings),
		permits:     make(chan struct{}, maxInflight),
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		jitterMax:   jitterMax,
		rng:         rng,
	}
}

// TableSlice fetches the league-table slice around a team.
func (c *Client) TableSlice(ctx context.Context, seasonID, teamID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("stats_season_tableslice/%s/%s", NumericID(seasonID), NumericID(teamID)))
}

// TeamLastXStats fetches aggregated statistics over a team's recent matches.
func (c *Client) TeamLastXStats(ctx context.Context, teamID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("stats_team_lastxstats/%s", NumericID(teamID)))
}

// TeamVersusRecent fetches the recent head-to-head record of two teams.
func (c *Client) TeamVersusRecent(ctx context.Context, team1ID, team2ID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("stats_team_versusrecent/%s/%s", NumericID(team1ID), NumericID(team2ID)))
}

// TeamScoringConceding fetches a team's season scoring/conceding record.
func (c *Client) TeamScoringConceding(ctx context.Context, teamID, seasonID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("stats_team_scoringconceding/%s/%s", NumericID(teamID), NumericID(seasonID)))
}

// TeamLastX fetches a team's most recent finished matches.
func (c *Client) TeamLastX(ctx context.Context, teamID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("stats_team_lastx/%s", NumericID(teamID)))
}

// get runs one keyed fetch through the permit pool, the rate limiter, the
// circuit breaker and the retry loop. A nil payload with nil error means the
// upstream definitively has nothing for this key (404/403).
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	select {
	case c.permits <- struct{}{}:
		defer func() { <-c.permits }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.getWithRetry(ctx, path)
	})
	if err != nil {
		return nil, fmt.Errorf("statsfeed: GET %s: %w", path, err)
	}
	return body, nil
}

func (c *Client) getWithRetry(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			if delay > c.backoffCap {
				delay = c.backoffCap
			}
			if err := c.sleep(ctx, delay+c.jitter(c.jitterMax)); err != nil {
				return nil, err
			}
		}

		body, terminal, err := c.getOnce(ctx, path)
		if terminal {
			return nil, nil
		}
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		slog.Debug("StatsFeed: attempt failed", "path", path, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) getOnce(ctx context.Context, path string) (body []byte, terminal bool, err error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}
	return body, false, nil
}

// NumericID strips the "sr:competitor:" style prefix, leaving the bare id
// the statistics feed keys on. Bare ids pass through unchanged.
func NumericID(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func (c *Client) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return time.Duration(c.rng.Int63n(int64(max)))
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
