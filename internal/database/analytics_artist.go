// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Per-artist statistics over the effective event set: a user's listening
// events minus those attributable to blacklisted artists. Every query here
// is read-only and deterministic, including tie-breaks, so repeated calls
// over unchanged data return identical results.

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/soundledger/internal/models"
)

// artistMatchSQL selects events attributable to the parameter artist, as a
// primary artist or a feature. Alias for the event table must be `e`.
const artistMatchSQL = ` AND list_contains(string_split(e.artist_ids, ','), ?)`

// emptyResultError distinguishes "filtered to nothing" from "never existed":
// NotFound when the artist has events but the blacklist removes them all,
// UnknownEntity when the user has no events for the artist at all.
func (db *DB) emptyResultError(ctx context.Context, userID, artistID string) error {
	var raw int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listening_events e WHERE e.user_id = ?`+artistMatchSQL,
		userID, artistID,
	).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to probe artist events: %w", err)
	}
	if raw == 0 {
		return models.ErrUnknownEntity
	}
	return models.ErrNotFound
}

// FirstAndLastListened returns the earliest and latest effective listen of
// the artist.
func (db *DB) FirstAndLastListened(ctx context.Context, userID, artistID string) (*models.FirstAndLast, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT MIN(e.played_at), MAX(e.played_at)
		FROM listening_events e
		WHERE e.user_id = ?` + effectiveFilterSQL + artistMatchSQL

	var first, last sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, userID, artistID).Scan(&first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to query first/last listened: %w", err)
	}
	if !first.Valid || !last.Valid {
		return nil, db.emptyResultError(ctx, userID, artistID)
	}
	return &models.FirstAndLast{First: first.Time, Last: last.Time}, nil
}

// MostListenedTrack returns the artist's track with the highest effective
// event count. Ties are broken by the earliest first listen, then by track
// id, so the result is deterministic.
func (db *DB) MostListenedTrack(ctx context.Context, userID, artistID string) (*models.MostListened, error) {
	return db.mostListenedBy(ctx, userID, artistID, "e.track_id")
}

// MostListenedAlbum returns the artist's album with the highest effective
// event count, with the same tie-break as MostListenedTrack.
func (db *DB) MostListenedAlbum(ctx context.Context, userID, artistID string) (*models.MostListened, error) {
	return db.mostListenedBy(ctx, userID, artistID, "e.album_id")
}

func (db *DB) mostListenedBy(ctx context.Context, userID, artistID, groupCol string) (*models.MostListened, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT %s AS item_id, COUNT(*) AS cnt,
			SUM(e.duration_ms) AS total_ms, MIN(e.played_at) AS first_listened
		FROM listening_events e
		WHERE e.user_id = ?%s%s
		GROUP BY item_id
		ORDER BY cnt DESC, first_listened ASC, item_id ASC
		LIMIT 1`, groupCol, effectiveFilterSQL, artistMatchSQL)

	var m models.MostListened
	err := db.conn.QueryRowContext(ctx, query, userID, artistID).
		Scan(&m.ID, &m.Count, &m.DurationMs, &m.FirstListened)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.emptyResultError(ctx, userID, artistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query most listened: %w", err)
	}
	return &m, nil
}

// BestPeriod returns the calendar month with the highest effective event
// count for the artist. Ties are broken by the most recent month.
func (db *DB) BestPeriod(ctx context.Context, userID, artistID string) (*models.BestPeriod, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT DATE_TRUNC('month', e.played_at) AS period,
			COUNT(*) AS cnt,
			SUM(COUNT(*)) OVER () AS total
		FROM listening_events e
		WHERE e.user_id = ?` + effectiveFilterSQL + artistMatchSQL + `
		GROUP BY period
		ORDER BY cnt DESC, period DESC
		LIMIT 1`

	var p models.BestPeriod
	err := db.conn.QueryRowContext(ctx, query, userID, artistID).
		Scan(&p.Start, &p.Count, &p.Total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.emptyResultError(ctx, userID, artistID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query best period: %w", err)
	}
	return &p, nil
}

// TotalListening sums the artist's effective listening. Unlike the other
// operations, an empty result is not an error: the caller-facing contract
// distinguishes "never listened" from a zero total, so the dashboard can
// render a NEVER_LISTENED card instead of 0.
func (db *DB) TotalListening(ctx context.Context, userID, artistID string) (*models.TotalListening, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT COUNT(*), COALESCE(SUM(e.duration_ms), 0)
		FROM listening_events e
		WHERE e.user_id = ?` + effectiveFilterSQL + artistMatchSQL

	var t models.TotalListening
	err := db.conn.QueryRowContext(ctx, query, userID, artistID).
		Scan(&t.Count, &t.DurationMs)
	if err != nil {
		return nil, fmt.Errorf("failed to query total listening: %w", err)
	}
	t.NeverListened = t.Count == 0
	return &t, nil
}

// DayRepartition returns a fixed seven-bucket histogram of the artist's
// effective events by weekday, index 0 = Sunday. All seven buckets are
// always present, zeros included.
func (db *DB) DayRepartition(ctx context.Context, userID, artistID string) (*models.DayRepartition, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	// DuckDB dayofweek: 0 = Sunday .. 6 = Saturday, matching time.Weekday.
	query := `SELECT dayofweek(e.played_at) AS dow, COUNT(*), SUM(e.duration_ms)
		FROM listening_events e
		WHERE e.user_id = ?` + effectiveFilterSQL + artistMatchSQL + `
		GROUP BY dow`

	rows, err := db.conn.QueryContext(ctx, query, userID, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query day repartition: %w", err)
	}
	defer rows.Close()

	var rep models.DayRepartition
	var seen int64
	for rows.Next() {
		var dow int
		var count, durationMs int64
		if err := rows.Scan(&dow, &count, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan day repartition: %w", err)
		}
		if dow < 0 || dow > 6 {
			return nil, fmt.Errorf("day repartition: unexpected weekday %d", dow)
		}
		rep.Counts[dow] = count
		rep.DurationMs[dow] = durationMs
		seen += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate day repartition: %w", err)
	}
	if seen == 0 {
		return nil, db.emptyResultError(ctx, userID, artistID)
	}
	return &rep, nil
}
