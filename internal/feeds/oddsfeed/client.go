// Package oddsfeed fetches paginated match/odds payloads from the upstream
// odds feed and converts them into canonical matches.
package oddsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/arbscout/arbscout/internal/pkg/config"
	"github.com/arbscout/arbscout/internal/pkg/models"
)

const (
	maxAttempts = 3
	backoffBase = time.Second
	backoffCap  = 10 * time.Second
	jitterMax   = time.Second

	// Pacing between page chunks keeps request spacing organic and bounds
	// burstiness against the upstream.
	chunkDelayMin = 800 * time.Millisecond
	chunkDelayMax = 2000 * time.Millisecond

	defaultPageSize      = 100
	defaultMaxInflight   = 5
	defaultPagesPerChunk = 3
	defaultTimeout       = 30 * time.Second
)

// Client is the resilient fetch wrapper over the odds feed. Failed requests
// are retried with exponential backoff plus jitter; 404/403 responses are the
// upstream's way of signaling "no more data" and terminate pagination without
// error. A permit pool bounds in-flight requests across all pages.
type Client struct {
	cfg        *config.OddsFeedConfig
	httpClient *http.Client
	permits    chan struct{}

	// Retry/pacing knobs, package-level defaults. Kept on the client so
	// tests can tighten them.
	backoffBase   time.Duration
	backoffCap    time.Duration
	jitterMax     time.Duration
	chunkDelayMin time.Duration
	chunkDelayMax time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewClient builds a feed client. httpClient and rng may be nil; explicit
// values make retry timing and transport deterministic in tests.
func NewClient(cfg *config.OddsFeedConfig, httpClient *http.Client, rng *rand.Rand) *Client {
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
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = defaultMaxInflight
	}
	return &Client{
		cfg:           cfg,
		httpClient:    httpClient,
		permits:       make(chan struct{}, maxInflight),
		backoffBase:   backoffBase,
		backoffCap:    backoffCap,
		jitterMax:     jitterMax,
		chunkDelayMin: chunkDelayMin,
		chunkDelayMax: chunkDelayMax,
		rng:           rng,
	}
}

// FetchAll walks every page of the feed and returns the canonical matches.
// Pages after the first are fetched in small concurrent chunks with a
// randomized delay between chunks. A failed page is logged and skipped;
// the cycle proceeds with reduced data.
func (c *Client) FetchAll(ctx context.Context) ([]models.Match, error) {
	pageSize := c.cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	first, err := c.FetchPage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("oddsfeed: first page: %w", err)
	}
	if first == nil {
		return nil, nil
	}

	matches := parseEvents(first, time.Now())
	totalPages := (first.Data.TotalNum + pageSize - 1) / pageSize
	if totalPages <= 1 {
		return matches, nil
	}

	pagesPerChunk := c.cfg.PagesPerChunk
	if pagesPerChunk <= 0 {
		pagesPerChunk = defaultPagesPerChunk
	}

	var mu sync.Mutex
	for chunkStart := 2; chunkStart <= totalPages; chunkStart += pagesPerChunk {
		chunkEnd := chunkStart + pagesPerChunk - 1
		if chunkEnd > totalPages {
			chunkEnd = totalPages
		}

		var wg sync.WaitGroup
		for page := chunkStart; page <= chunkEnd; page++ {
			wg.Add(1)
			go func(page int) {
				defer wg.Done()
				resp, err := c.FetchPage(ctx, page)
				if err != nil {
					slog.Warn("OddsFeed: page fetch failed, skipping", "page", page, "error", err)
					return
				}
				if resp == nil {
					return
				}
				got := parseEvents(resp, time.Now())
				mu.Lock()
				matches = append(matches, got...)
				mu.Unlock()
			}(page)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return matches, ctx.Err()
		}
		if chunkEnd < totalPages {
			if err := c.sleep(ctx, c.chunkDelayMin+c.jitter(c.chunkDelayMax-c.chunkDelayMin)); err != nil {
				return matches, err
			}
		}
	}

	slog.Info("OddsFeed: fetch complete", "pages", totalPages, "matches", len(matches))
	return matches, nil
}

// FetchPage fetches one page. A nil response with nil error means the
// upstream definitively has no data (404/403).
func (c *Client) FetchPage(ctx context.Context, pageNum int) (*EventsResponse, error) {
	select {
	case c.permits <- struct{}{}:
		defer func() { <-c.permits }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

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

		resp, terminal, err := c.fetchPageOnce(ctx, pageNum)
		if terminal {
			return nil, nil
		}
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		slog.Debug("OddsFeed: attempt failed", "page", pageNum, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("oddsfeed: page %d after %d attempts: %w", pageNum, maxAttempts, lastErr)
}

func (c *Client) fetchPageOnce(ctx context.Context, pageNum int) (resp *EventsResponse, terminal bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("sport", c.cfg.Sport)
	if c.cfg.EventState != "" {
		q.Set("eventState", c.cfg.EventState)
	}
	q.Set("marketFilter", c.cfg.MarketFilter)
	q.Set("pageSize", strconv.Itoa(c.pageSize()))
	q.Set("pageNum", strconv.Itoa(pageNum))
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	req.URL.RawQuery = q.Encode()

	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	// Not-found/forbidden is the upstream's end-of-data signal, not an error.
	if httpResp.StatusCode == http.StatusNotFound || httpResp.StatusCode == http.StatusForbidden {
		return nil, true, nil
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}

	var envelope EventsResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("parse envelope: %w", err)
	}
	if envelope.BizCode != bizCodeOK {
		return nil, false, fmt.Errorf("bizCode %d: %s", envelope.BizCode, envelope.Message)
	}
	return &envelope, false, nil
}

func (c *Client) pageSize() int {
	if c.cfg.PageSize > 0 {
		return c.cfg.PageSize
	}
	return defaultPageSize
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
