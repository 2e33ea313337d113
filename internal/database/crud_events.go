// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/soundledger/internal/models"
)

// InsertListeningEvent inserts a listening event with duplicate handling.
//
// Uses INSERT ... ON CONFLICT DO NOTHING against the
// (user_id, track_id, played_at) unique constraint, so re-importing the same
// upstream record after a crash or a repeated full import is a no-op rather
// than a duplicate row. Returns true if a row was actually inserted.
func (db *DB) InsertListeningEvent(ctx context.Context, event *models.ListeningEvent) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO listening_events (
		id, user_id, track_id, album_id, artist_ids, primary_artist_id,
		duration_ms, played_at, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, track_id, played_at) DO NOTHING`

	res, err := db.conn.ExecContext(ctx, query,
		event.ID, event.UserID, event.TrackID, event.AlbumID,
		joinArtistIDs(event.ArtistIDs), event.PrimaryArtistID(),
		event.DurationMs, event.PlayedAt.UTC(), event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert listening event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return affected > 0, nil
}

// CountEvents returns the total number of stored events for a user,
// blacklist ignored.
func (db *DB) CountEvents(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listening_events WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountEffectiveEvents returns the number of events for a user that survive
// the blacklist filter.
func (db *DB) CountEffectiveEvents(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT COUNT(*) FROM listening_events e
		WHERE e.user_id = ?` + effectiveFilterSQL

	var count int64
	if err := db.conn.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count effective events: %w", err)
	}
	return count, nil
}

// MaxPlayedAt returns the latest stored played_at for a user, or ok=false if
// the user has no events. The sync manager uses it as the fetch lower bound
// when no API cursor exists, covering a first import interrupted before its
// job row committed a cursor and a history built only from file uploads.
func (db *DB) MaxPlayedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var max *time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(played_at) FROM listening_events WHERE user_id = ?`, userID,
	).Scan(&max)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query max played_at: %w", err)
	}
	if max == nil {
		return time.Time{}, false, nil
	}
	return *max, true, nil
}

// EventsForUser returns a user's events within [from, to), newest first,
// bounded by limit. Blacklist ignored: this is the raw range query of the
// event store, not a statistics operation.
func (db *DB) EventsForUser(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.ListeningEvent, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, user_id, track_id, album_id, artist_ids, duration_ms, played_at, created_at
		FROM listening_events
		WHERE user_id = ? AND played_at >= ? AND played_at < ?
		ORDER BY played_at DESC
		LIMIT ?`

	rows, err := db.conn.QueryContext(ctx, query, userID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.ListeningEvent
	for rows.Next() {
		var e models.ListeningEvent
		var artistIDs string
		if err := rows.Scan(&e.ID, &e.UserID, &e.TrackID, &e.AlbumID, &artistIDs,
			&e.DurationMs, &e.PlayedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.ArtistIDs = splitArtistIDs(artistIDs)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// joinArtistIDs flattens the ordered artist list for storage.
func joinArtistIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// splitArtistIDs restores the ordered artist list.
func splitArtistIDs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
