// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package models

import "time"

// ItemType selects the ranking dimension for RankOf.
type ItemType string

// Rankable item types.
const (
	ItemTypeArtist ItemType = "artist"
	ItemTypeTrack  ItemType = "track"
	ItemTypeAlbum  ItemType = "album"
)

// Valid reports whether t is one of the rankable item types.
func (t ItemType) Valid() bool {
	return t == ItemTypeArtist || t == ItemTypeTrack || t == ItemTypeAlbum
}

// FirstAndLast holds the earliest and latest effective listen of an artist.
type FirstAndLast struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

// MostListened is one ranked entry when grouping an artist's events by track
// or album. Ties on Count are broken by the earliest FirstListened.
type MostListened struct {
	ID            string    `json:"id"`
	Count         int64     `json:"count"`
	DurationMs    int64     `json:"duration_ms"`
	FirstListened time.Time `json:"first_listened"`
}

// BestPeriod is the calendar month with the most effective listens of an
// artist. Ties are broken by the most recent month.
type BestPeriod struct {
	Start time.Time `json:"start"` // First instant of the month, UTC
	Count int64     `json:"count"`
	Total int64     `json:"total"` // Effective events for the artist across all months
}

// TotalListening sums effective listening of an artist. NeverListened is the
// caller-facing distinction between "zero because filtered/absent" and an
// actual total; clients render it as a NEVER_LISTENED card.
type TotalListening struct {
	NeverListened bool  `json:"never_listened"`
	Count         int64 `json:"count"`
	DurationMs    int64 `json:"duration_ms"`
}

// DayRepartition is a fixed seven-bucket histogram of effective event counts,
// index 0 = Sunday, matching time.Weekday. Always length 7, zeros included.
type DayRepartition struct {
	Counts     [7]int64 `json:"counts"`
	DurationMs [7]int64 `json:"duration_ms"`
}

// Rank is the 1-based position of an item within the user's full ranking by
// effective event count. Count carries the event count backing the position.
type Rank struct {
	ItemType ItemType `json:"item_type"`
	ID       string   `json:"id"`
	Rank     int64    `json:"rank"`
	Count    int64    `json:"count"`
	OutOf    int64    `json:"out_of"` // Distinct items in the ranking
}

// ArtistStats aggregates every per-artist statistic for the combined stats
// endpoint, mirroring the dashboard's single artist page.
type ArtistStats struct {
	ArtistID       string          `json:"artist_id"`
	FirstLast      *FirstAndLast   `json:"first_last"`
	MostListened   *MostListened   `json:"most_listened"`
	AlbumListened  *MostListened   `json:"album_most_listened"`
	BestPeriod     *BestPeriod     `json:"best_period"`
	Total          *TotalListening `json:"total"`
	DayRepartition *DayRepartition `json:"day_repartition"`
}
