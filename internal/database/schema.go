// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables and indexes.
//
// Schema notes:
//   - listening_events.artist_ids is a comma-joined list, primary artist
//     first; primary_artist_id is denormalized for grouping. The blacklist
//     filter matches against the full list via string_split, so a feature on
//     a blacklisted artist's track is excluded too.
//   - UNIQUE(user_id, track_id, played_at) is the dedup identity; inserts
//     use ON CONFLICT DO NOTHING so re-imports are no-ops.
//   - import_jobs has no unique constraint on (user_id, state): the one
//     running job per user invariant is enforced by the conditional insert
//     in crud_jobs.go, serialized by an in-process claim mutex because the
//     statement's NOT EXISTS guard is not a compare-and-set across pooled
//     connections.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS listening_events (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			album_id TEXT NOT NULL,
			artist_ids TEXT NOT NULL,
			primary_artist_id TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			played_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, track_id, played_at)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist_entries (
			user_id TEXT NOT NULL,
			artist_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, artist_id)
		)`,
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			state TEXT NOT NULL,
			cursor TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT 'api',
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			last_error TEXT NOT NULL DEFAULT '',
			imported BIGINT NOT NULL DEFAULT 0,
			skipped BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_played
			ON listening_events (user_id, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user_artist
			ON listening_events (user_id, primary_artist_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_user_state
			ON import_jobs (user_id, state)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}
