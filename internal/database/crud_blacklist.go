// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/soundledger/internal/models"
)

// effectiveFilterSQL excludes events attributable to a blacklisted artist.
// It matches against the full artist list, so a track featuring a
// blacklisted artist is excluded even when the primary artist is not.
// Appended to queries whose event table alias is `e` and whose first
// parameter is the user id.
const effectiveFilterSQL = ` AND NOT EXISTS (
		SELECT 1 FROM blacklist_entries b
		WHERE b.user_id = e.user_id
		  AND list_contains(string_split(e.artist_ids, ','), b.artist_id)
	)`

// AddBlacklistEntry adds an artist to a user's blacklist. Adding an existing
// entry is a no-op; returns true if a row was inserted.
func (db *DB) AddBlacklistEntry(ctx context.Context, userID, artistID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO blacklist_entries (user_id, artist_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_id, artist_id) DO NOTHING`,
		userID, artistID, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read blacklist insert result: %w", err)
	}
	return affected > 0, nil
}

// RemoveBlacklistEntry removes an artist from a user's blacklist. Removing
// an absent entry is a no-op; returns true if a row was deleted.
func (db *DB) RemoveBlacklistEntry(ctx context.Context, userID, artistID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM blacklist_entries WHERE user_id = ? AND artist_id = ?`,
		userID, artistID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove blacklist entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read blacklist delete result: %w", err)
	}
	return affected > 0, nil
}

// IsBlacklisted reports whether an artist is on a user's blacklist.
func (db *DB) IsBlacklisted(ctx context.Context, userID, artistID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blacklist_entries WHERE user_id = ? AND artist_id = ?`,
		userID, artistID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist membership: %w", err)
	}
	return count > 0, nil
}

// ListBlacklist returns all blacklist entries for a user, oldest first.
func (db *DB) ListBlacklist(ctx context.Context, userID string) ([]models.BlacklistEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, artist_id, created_at FROM blacklist_entries
		 WHERE user_id = ? ORDER BY created_at, artist_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	defer rows.Close()

	var entries []models.BlacklistEntry
	for rows.Next() {
		var e models.BlacklistEntry
		if err := rows.Scan(&e.UserID, &e.ArtistID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blacklist: %w", err)
	}
	return entries, nil
}
