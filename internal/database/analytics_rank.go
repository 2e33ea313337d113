// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/soundledger/internal/models"
)

// RankOf returns the 1-based position of an artist, track, or album within
// the user's full ranking by effective event count. The ranking is computed
// over the entire effective set, not filtered to the requested item, which
// is what distinguishes it from MostListened*: blacklisting one artist
// shifts every other item's rank.
//
// Items with equal counts receive distinct, deterministic ranks: ties are
// broken by the earliest first listen, then by item id.
func (db *DB) RankOf(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Rank, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	groupCol, err := rankGroupColumn(itemType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`WITH grouped AS (
			SELECT %s AS item_id, COUNT(*) AS cnt, MIN(e.played_at) AS first_listened
			FROM listening_events e
			WHERE e.user_id = ?%s
			GROUP BY item_id
		), ordered AS (
			SELECT item_id, cnt,
				ROW_NUMBER() OVER (ORDER BY cnt DESC, first_listened ASC, item_id ASC) AS position,
				COUNT(*) OVER () AS out_of
			FROM grouped
		)
		SELECT position, cnt, out_of FROM ordered WHERE item_id = ?`,
		groupCol, effectiveFilterSQL)

	rank := &models.Rank{ItemType: itemType, ID: itemID}
	err = db.conn.QueryRowContext(ctx, query, userID, itemID).
		Scan(&rank.Rank, &rank.Count, &rank.OutOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.rankEmptyError(ctx, itemType, userID, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query rank: %w", err)
	}
	return rank, nil
}

// rankGroupColumn maps an item type to its grouping column. Artists rank by
// primary attribution so each event counts exactly once in the ranking.
func rankGroupColumn(itemType models.ItemType) (string, error) {
	switch itemType {
	case models.ItemTypeArtist:
		return "e.primary_artist_id", nil
	case models.ItemTypeTrack:
		return "e.track_id", nil
	case models.ItemTypeAlbum:
		return "e.album_id", nil
	default:
		return "", fmt.Errorf("invalid item type %q", itemType)
	}
}

// rankEmptyError mirrors emptyResultError for the three rankable item types.
func (db *DB) rankEmptyError(ctx context.Context, itemType models.ItemType, userID, itemID string) error {
	groupCol, err := rankGroupColumn(itemType)
	if err != nil {
		return err
	}

	var raw int64
	probe := fmt.Sprintf(
		`SELECT COUNT(*) FROM listening_events e WHERE e.user_id = ? AND %s = ?`, groupCol)
	if err := db.conn.QueryRowContext(ctx, probe, userID, itemID).Scan(&raw); err != nil {
		return fmt.Errorf("failed to probe item events: %w", err)
	}
	if raw == 0 {
		return models.ErrUnknownEntity
	}
	return models.ErrNotFound
}
