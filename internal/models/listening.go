// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package models defines the core data types shared across SoundLedger:
// listening events, blacklist entries, import jobs, and the statistics
// response shapes returned to the HTTP boundary.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ListeningEvent is a single play of a track, as reported by the streaming
// service. Events are immutable once stored: the import pipeline is the only
// writer, rows are never updated, and deletion only happens through full
// account removal (outside this service).
//
// The deduplication identity is (UserID, TrackID, PlayedAt). Re-importing the
// same upstream record is a no-op, which is what makes crash-resume and
// repeated full imports safe.
type ListeningEvent struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	TrackID    string    `json:"track_id"`
	AlbumID    string    `json:"album_id"`
	ArtistIDs  []string  `json:"artist_ids"` // Ordered, primary artist first
	DurationMs int64     `json:"duration_ms"`
	PlayedAt   time.Time `json:"played_at"` // Source-reported timestamp
	CreatedAt  time.Time `json:"created_at"`
}

// PrimaryArtistID returns the first artist in ArtistIDs, or "" for a record
// with no artist attribution (rejected as malformed before insert).
func (e *ListeningEvent) PrimaryArtistID() string {
	if len(e.ArtistIDs) == 0 {
		return ""
	}
	return e.ArtistIDs[0]
}

// BlacklistEntry marks every listening event attributed to ArtistID as
// excluded from aggregate computations for UserID. The underlying events are
// kept; exclusion is purely a read-side filter.
type BlacklistEntry struct {
	UserID    string    `json:"user_id"`
	ArtistID  string    `json:"artist_id"`
	CreatedAt time.Time `json:"created_at"`
}

// GlobalPreferences is the process-wide configuration owned by the admin
// collaborator. Loaded at startup, refreshed only through the preferences
// endpoint, read by every core component.
type GlobalPreferences struct {
	AllowRegistrations bool `json:"allowRegistrations" koanf:"allow_registrations"`
	AllowAffinity      bool `json:"allowAffinity" koanf:"allow_affinity"`
	OfflineMode        bool `json:"offlineMode" koanf:"offline_mode"`
}

// CanMutate reports whether write paths (imports, blacklist changes,
// preference updates) are allowed. False in offline/read-only deployments.
func (p GlobalPreferences) CanMutate() bool {
	return !p.OfflineMode
}
