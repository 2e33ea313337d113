// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

/*
client.go - Streaming Service History Client

HTTP client for the streaming service's listening history API.

Resilience Mechanisms:
  - Circuit Breaker: opens after 5 consecutive failures (60s open period)
  - Rate Limiting: outbound token bucket via golang.org/x/time/rate
  - HTTP 429 is surfaced as models.ErrRateLimited; the scheduler owns the
    retry backoff, the client never retries on its own

Pagination is cursor-based: each page carries the cursor for the next one
and a has_more flag. Cursors are opaque to this client; the import manager
persists them. A cursor-less first page may carry an `after` lower bound so
a walk restarted without a committed cursor skips stored history.
*/
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/metrics"
	"github.com/tomtom215/soundledger/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// Page is one page of listening history from the streaming service.
type Page struct {
	Events     []models.ListeningEvent
	NextCursor string
	HasMore    bool
}

// SourceClient fetches listening history pages. cursor is the last committed
// cursor, empty for a full import from the beginning of history. after is the
// newest locally stored play and only applies while cursor is empty: a first
// walk that was interrupted before its job committed a cursor resumes from
// the end of the stored prefix instead of refetching it.
type SourceClient interface {
	FetchEvents(ctx context.Context, userID, cursor string, after time.Time) (*Page, error)
}

// historyResponse is the wire shape of one history page.
type historyResponse struct {
	Items      []historyRecord `json:"items"`
	NextCursor string          `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
}

// historyRecord is one play as reported by the service. Fields the import
// pipeline validates may be absent or zero here; mapping never rejects.
type historyRecord struct {
	TrackID    string    `json:"track_id"`
	AlbumID    string    `json:"album_id"`
	ArtistIDs  []string  `json:"artist_ids"`
	DurationMs int64     `json:"duration_ms"`
	PlayedAt   time.Time `json:"played_at"`
}

// HTTPSourceClient talks to the streaming service history API.
type HTTPSourceClient struct {
	baseURL  string
	token    string
	pageSize int
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*Page]
}

// NewHTTPSourceClient builds a client from the source configuration.
func NewHTTPSourceClient(cfg *config.SourceConfig) *HTTPSourceClient {
	c := &HTTPSourceClient{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Page](gobreaker.Settings{
		Name:    "source-history",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			// Rate limiting is the service protecting itself, not an
			// outage. Tripping the breaker on 429 would mask recovery.
			return err == nil || errors.Is(err, models.ErrRateLimited)
		},
	})
	return c
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// FetchEvents retrieves one page of history for userID starting after cursor.
func (c *HTTPSourceClient) FetchEvents(ctx context.Context, userID, cursor string, after time.Time) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return c.breaker.Execute(func() (*Page, error) {
		return c.fetchPage(ctx, userID, cursor, after)
	})
}

func (c *HTTPSourceClient) fetchPage(ctx context.Context, userID, cursor string, after time.Time) (*Page, error) {
	u, err := url.Parse(c.baseURL + "/v1/users/" + url.PathEscape(userID) + "/history")
	if err != nil {
		return nil, fmt.Errorf("building history URL: %w", err)
	}
	q := u.Query()
	if cursor != "" {
		q.Set("cursor", cursor)
	} else if !after.IsZero() {
		q.Set("after", after.UTC().Format(time.RFC3339))
	}
	if c.pageSize > 0 {
		q.Set("limit", fmt.Sprintf("%d", c.pageSize))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating history request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		metrics.RateLimitHits.Inc()
		return nil, models.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrUnknownUser)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("history API returned %d: %s", resp.StatusCode, string(body))
	}

	var payload historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding history page: %w", err)
	}

	page := &Page{
		Events:     make([]models.ListeningEvent, 0, len(payload.Items)),
		NextCursor: payload.NextCursor,
		HasMore:    payload.HasMore,
	}
	for _, item := range payload.Items {
		page.Events = append(page.Events, models.ListeningEvent{
			UserID:     userID,
			TrackID:    item.TrackID,
			AlbumID:    item.AlbumID,
			ArtistIDs:  item.ArtistIDs,
			DurationMs: item.DurationMs,
			PlayedAt:   item.PlayedAt,
		})
	}
	return page, nil
}
