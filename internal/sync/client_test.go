// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPSourceClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPSourceClient(&config.SourceConfig{
		BaseURL:  srv.URL,
		Token:    "test-token",
		Timeout:  5 * time.Second,
		PageSize: 50,
	})
}

func TestHTTPSourceClient_FetchEvents(t *testing.T) {
	var gotPath, gotAuth, gotCursor string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCursor = r.URL.Query().Get("cursor")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"track_id": "t1", "album_id": "al1", "artist_ids": ["a1", "a2"],
				 "duration_ms": 180000, "played_at": "2025-05-10T12:00:00Z"}
			],
			"next_cursor": "c1",
			"has_more": true
		}`))
	})

	page, err := client.FetchEvents(context.Background(), "user-1", "prev", time.Time{})
	if err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}

	if gotPath != "/v1/users/user-1/history" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Unexpected auth header %s", gotAuth)
	}
	if gotCursor != "prev" {
		t.Errorf("Expected cursor forwarded, got %q", gotCursor)
	}
	if len(page.Events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(page.Events))
	}
	e := page.Events[0]
	if e.UserID != "user-1" || e.TrackID != "t1" || len(e.ArtistIDs) != 2 {
		t.Errorf("Unexpected event mapping: %+v", e)
	}
	if e.PrimaryArtistID() != "a1" {
		t.Errorf("Expected primary artist a1, got %s", e.PrimaryArtistID())
	}
	if page.NextCursor != "c1" || !page.HasMore {
		t.Errorf("Unexpected pagination: cursor=%q has_more=%v", page.NextCursor, page.HasMore)
	}
}

func TestHTTPSourceClient_AfterOnlyWithoutCursor(t *testing.T) {
	var gotAfter, gotCursor string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAfter = r.URL.Query().Get("after")
		gotCursor = r.URL.Query().Get("cursor")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [], "next_cursor": "", "has_more": false}`))
	})
	bound := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	if _, err := client.FetchEvents(context.Background(), "user-1", "", bound); err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if gotAfter != "2025-05-10T12:00:00Z" {
		t.Errorf("Expected after bound forwarded, got %q", gotAfter)
	}
	if gotCursor != "" {
		t.Errorf("Expected no cursor, got %q", gotCursor)
	}

	// A cursor supersedes the bound.
	if _, err := client.FetchEvents(context.Background(), "user-1", "c3", bound); err != nil {
		t.Fatalf("FetchEvents failed: %v", err)
	}
	if gotAfter != "" {
		t.Errorf("Expected after omitted alongside cursor, got %q", gotAfter)
	}
	if gotCursor != "c3" {
		t.Errorf("Expected cursor c3, got %q", gotCursor)
	}
}

func TestHTTPSourceClient_RateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchEvents(context.Background(), "user-1", "", time.Time{})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
}

func TestHTTPSourceClient_UnknownUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchEvents(context.Background(), "nobody", "", time.Time{})
	if !errors.Is(err, models.ErrUnknownUser) {
		t.Errorf("Expected ErrUnknownUser, got %v", err)
	}
}

func TestHTTPSourceClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := client.FetchEvents(ctx, "user-1", "", time.Time{}); err == nil {
			t.Fatal("Expected server error")
		}
	}

	// Breaker is now open; the request never reaches the server.
	_, err := client.FetchEvents(ctx, "user-1", "", time.Time{})
	if err == nil {
		t.Fatal("Expected open-circuit error")
	}
	if errors.Is(err, models.ErrRateLimited) {
		t.Error("Open circuit must not masquerade as a rate limit")
	}
}

func TestHTTPSourceClient_RateLimitDoesNotTripBreaker(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := client.FetchEvents(ctx, "user-1", "", time.Time{}); !errors.Is(err, models.ErrRateLimited) {
			t.Fatalf("Attempt %d: expected ErrRateLimited, got %v", i, err)
		}
	}
	if calls != 10 {
		t.Errorf("Expected every 429 to reach the server, got %d calls", calls)
	}
}
