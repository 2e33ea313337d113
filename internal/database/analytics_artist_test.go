// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/soundledger/internal/models"
)

// seedArtistHistory inserts a small deterministic history for user-1:
//
//	artist-1: track-a x3 (album-x), track-b x1 (album-x), in May 2025
//	artist-1: track-b x2 (album-x) in June 2025
//	artist-2: track-c x2 (album-y) in June 2025
func seedArtistHistory(t *testing.T, db *DB) {
	t.Helper()

	may := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	june := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		mustInsert(t, db, testEvent("user-1", "track-a", "album-x", []string{"artist-1"}, may.Add(time.Duration(i)*time.Hour)))
	}
	mustInsert(t, db, testEvent("user-1", "track-b", "album-x", []string{"artist-1"}, may.AddDate(0, 0, 1)))
	for i := 0; i < 2; i++ {
		mustInsert(t, db, testEvent("user-1", "track-b", "album-x", []string{"artist-1"}, june.Add(time.Duration(i)*time.Hour)))
	}
	for i := 0; i < 2; i++ {
		mustInsert(t, db, testEvent("user-1", "track-c", "album-y", []string{"artist-2"}, june.AddDate(0, 0, 3+i)))
	}
}

func TestFirstAndLastListened(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	fl, err := db.FirstAndLastListened(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("FirstAndLastListened failed: %v", err)
	}

	wantFirst := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	wantLast := time.Date(2025, 6, 2, 21, 0, 0, 0, time.UTC)
	if !fl.First.Equal(wantFirst) {
		t.Errorf("Expected first %v, got %v", wantFirst, fl.First)
	}
	if !fl.Last.Equal(wantLast) {
		t.Errorf("Expected last %v, got %v", wantLast, fl.Last)
	}
}

func TestFirstAndLastListened_UnknownVsFiltered(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	// No events at all for this artist: UnknownEntity.
	if _, err := db.FirstAndLastListened(ctx, "user-1", "artist-9"); !errors.Is(err, models.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity, got %v", err)
	}

	// Events exist but the blacklist removes them all: NotFound.
	if _, err := db.AddBlacklistEntry(ctx, "user-1", "artist-1"); err != nil {
		t.Fatalf("AddBlacklistEntry failed: %v", err)
	}
	if _, err := db.FirstAndLastListened(ctx, "user-1", "artist-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMostListenedTrack_CountThenEarliestTie(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	// track-a and track-b both have 3 plays for artist-1; track-a's first
	// listen is earlier, so the tie goes to track-a.
	m, err := db.MostListenedTrack(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("MostListenedTrack failed: %v", err)
	}
	if m.ID != "track-a" {
		t.Errorf("Expected tie broken by earliest first listen (track-a), got %s", m.ID)
	}
	if m.Count != 3 {
		t.Errorf("Expected count 3, got %d", m.Count)
	}
}

func TestMostListenedAlbum(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)

	m, err := db.MostListenedAlbum(context.Background(), "user-1", "artist-1")
	if err != nil {
		t.Fatalf("MostListenedAlbum failed: %v", err)
	}
	if m.ID != "album-x" || m.Count != 6 {
		t.Errorf("Expected album-x with 6 plays, got %s with %d", m.ID, m.Count)
	}
}

func TestBestPeriod_TieGoesToMostRecent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Two months with equal counts; the more recent month must win.
	march := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)
	april := time.Date(2025, 4, 5, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		mustInsert(t, db, testEvent("user-1", "track-a", "album-x", []string{"artist-1"}, march.Add(time.Duration(i)*time.Hour)))
		mustInsert(t, db, testEvent("user-1", "track-a", "album-x", []string{"artist-1"}, april.Add(time.Duration(i)*time.Hour)))
	}

	p, err := db.BestPeriod(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("BestPeriod failed: %v", err)
	}
	wantStart := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	if !p.Start.Equal(wantStart) {
		t.Errorf("Expected April (most recent tie), got %v", p.Start)
	}
	if p.Count != 2 || p.Total != 4 {
		t.Errorf("Expected count 2 of total 4, got %d of %d", p.Count, p.Total)
	}
}

func TestTotalListening_NeverListenedIsNotZero(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	total, err := db.TotalListening(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("TotalListening failed: %v", err)
	}
	if total.NeverListened {
		t.Error("Expected listened artist not marked never-listened")
	}
	if total.Count != 6 {
		t.Errorf("Expected 6 effective events, got %d", total.Count)
	}
	if total.DurationMs != 6*210_000 {
		t.Errorf("Expected summed duration, got %d", total.DurationMs)
	}

	// Zero events: a distinguishable never-listened result, not an error
	// and not a bare zero.
	never, err := db.TotalListening(ctx, "user-1", "artist-9")
	if err != nil {
		t.Fatalf("TotalListening for unknown artist failed: %v", err)
	}
	if !never.NeverListened {
		t.Error("Expected never-listened marker for artist with no events")
	}
}

func TestDayRepartition_SevenBucketsSumToEffectiveCount(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	rep, err := db.DayRepartition(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("DayRepartition failed: %v", err)
	}

	var sum int64
	for _, c := range rep.Counts {
		sum += c
	}
	if sum != 6 {
		t.Errorf("Expected bucket counts to sum to effective count 6, got %d", sum)
	}

	// 2025-05-10 is a Saturday, 2025-05-11 a Sunday, 2025-06-02 a Monday.
	if rep.Counts[time.Saturday] != 3 {
		t.Errorf("Expected 3 Saturday plays, got %d", rep.Counts[time.Saturday])
	}
	if rep.Counts[time.Sunday] != 1 {
		t.Errorf("Expected 1 Sunday play, got %d", rep.Counts[time.Sunday])
	}
	if rep.Counts[time.Monday] != 2 {
		t.Errorf("Expected 2 Monday plays, got %d", rep.Counts[time.Monday])
	}
	if rep.Counts[time.Wednesday] != 0 {
		t.Errorf("Expected empty bucket present with zero, got %d", rep.Counts[time.Wednesday])
	}
}

func TestBlacklistRoundTrip_RestoresStatistics(t *testing.T) {
	db := setupTestDB(t)
	seedArtistHistory(t, db)
	ctx := context.Background()

	before, err := db.TotalListening(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("TotalListening failed: %v", err)
	}

	if _, err := db.AddBlacklistEntry(ctx, "user-1", "artist-1"); err != nil {
		t.Fatalf("AddBlacklistEntry failed: %v", err)
	}

	// Other artists are unaffected while the blacklist is active.
	other, err := db.TotalListening(ctx, "user-1", "artist-2")
	if err != nil {
		t.Fatalf("TotalListening for artist-2 failed: %v", err)
	}
	if other.Count != 2 {
		t.Errorf("Expected artist-2 unaffected by artist-1 blacklist, got %d", other.Count)
	}

	if _, err := db.RemoveBlacklistEntry(ctx, "user-1", "artist-1"); err != nil {
		t.Fatalf("RemoveBlacklistEntry failed: %v", err)
	}

	after, err := db.TotalListening(ctx, "user-1", "artist-1")
	if err != nil {
		t.Fatalf("TotalListening after round trip failed: %v", err)
	}
	if after.Count != before.Count || after.DurationMs != before.DurationMs {
		t.Errorf("Expected round trip to restore statistics: before=%+v after=%+v", before, after)
	}
}
