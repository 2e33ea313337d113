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
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/soundledger/internal/models"
)

// TryStartJob atomically creates a running import job for the user, failing
// with models.ErrAlreadyRunning if one exists.
//
// The one-running-job-per-user invariant lives in the ledger: the guard and
// the insert execute as one conditional statement, and the row survives a
// process restart so recovery sees exactly what was running. The statement
// alone is not enough, though. Under DuckDB's optimistic MVCC two pooled
// connections can both pass the NOT EXISTS guard before either insert
// commits, so claims are additionally serialized through claimMu.
func (db *DB) TryStartJob(ctx context.Context, userID, cursor, source string) (*models.ImportJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.claimMu.Lock()
	defer db.claimMu.Unlock()

	job := &models.ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		State:     models.JobStateRunning,
		Cursor:    cursor,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO import_jobs (id, user_id, state, cursor, source, started_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM import_jobs WHERE user_id = ? AND state = ?
		 )`,
		job.ID, job.UserID, job.State, job.Cursor, job.Source, job.StartedAt,
		userID, models.JobStateRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start import job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read job insert result: %w", err)
	}
	if affected == 0 {
		return nil, models.ErrAlreadyRunning
	}
	return job, nil
}

// CommitJobProgress persists the cursor and counters of a running job. Called
// after every durable page so a crash loses at most one in-flight page.
func (db *DB) CommitJobProgress(ctx context.Context, jobID uuid.UUID, cursor string, imported, skipped int64) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE import_jobs SET cursor = ?, imported = ?, skipped = ? WHERE id = ?`,
		cursor, imported, skipped, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to commit job progress: %w", err)
	}
	return nil
}

// FinishJob transitions a job to a terminal state.
func (db *DB) FinishJob(ctx context.Context, jobID uuid.UUID, state models.JobState, lastError string) error {
	if state != models.JobStateDone && state != models.JobStateFailed {
		return fmt.Errorf("finish job: %q is not a terminal state", state)
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx,
		`UPDATE import_jobs SET state = ?, last_error = ?, finished_at = ? WHERE id = ?`,
		state, lastError, time.Now().UTC(), jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// GetJob returns a job by id, or nil if it does not exist.
func (db *DB) GetJob(ctx context.Context, jobID uuid.UUID) (*models.ImportJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, jobSelectSQL+` WHERE id = ?`, jobID)
	return scanJob(row)
}

// LatestJob returns the user's most recently started job, or nil if the user
// has never imported.
func (db *DB) LatestJob(ctx context.Context, userID string) (*models.ImportJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx,
		jobSelectSQL+` WHERE user_id = ? ORDER BY started_at DESC LIMIT 1`, userID)
	return scanJob(row)
}

// LatestCursor returns the last committed cursor for a user across API sync
// jobs, or "" for a first import. File-import jobs are excluded: their cursor
// is a processed-record offset into one uploaded file, not a streaming
// service pagination token, and must never seed an API fetch. A failed job's
// cursor is trusted: pages are only committed after their events are durable,
// so resuming from it can re-fetch but never skip.
func (db *DB) LatestCursor(ctx context.Context, userID string) (string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var cursor string
	err := db.conn.QueryRowContext(ctx,
		`SELECT cursor FROM import_jobs
		 WHERE user_id = ? AND cursor != '' AND source = ?
		 ORDER BY started_at DESC LIMIT 1`,
		userID, models.JobSourceAPI,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query latest cursor: %w", err)
	}
	return cursor, nil
}

// RecoverOrphanedJobs transitions every running job to failed, preserving
// its cursor, and returns the recovered jobs. Run once at process start,
// before any worker exists: a running row at that point necessarily has no
// live worker (fix-at-start).
func (db *DB) RecoverOrphanedJobs(ctx context.Context) ([]models.ImportJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx,
		jobSelectSQL+` WHERE state = ?`, models.JobStateRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query orphaned jobs: %w", err)
	}
	orphaned, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(orphaned) == 0 {
		return nil, nil
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE import_jobs SET state = ?, last_error = ?, finished_at = ?
		 WHERE state = ?`,
		models.JobStateFailed, "orphaned by process restart", time.Now().UTC(),
		models.JobStateRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fail orphaned jobs: %w", err)
	}

	for i := range orphaned {
		orphaned[i].State = models.JobStateFailed
		orphaned[i].LastError = "orphaned by process restart"
	}
	return orphaned, nil
}

// JobsForUser returns a user's most recent jobs, newest first. Backs the
// administrative status view.
func (db *DB) JobsForUser(ctx context.Context, userID string, limit int) ([]models.ImportJob, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		jobSelectSQL+` WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	return scanJobs(rows)
}

const jobSelectSQL = `SELECT id, user_id, state, cursor, source, started_at,
	finished_at, last_error, imported, skipped FROM import_jobs`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobInto(s rowScanner, job *models.ImportJob) error {
	var finishedAt sql.NullTime
	if err := s.Scan(&job.ID, &job.UserID, &job.State, &job.Cursor, &job.Source,
		&job.StartedAt, &finishedAt, &job.LastError, &job.Imported, &job.Skipped); err != nil {
		return err
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return nil
}

func scanJob(row *sql.Row) (*models.ImportJob, error) {
	var job models.ImportJob
	err := scanJobInto(row, &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]models.ImportJob, error) {
	defer rows.Close()

	var jobs []models.ImportJob
	for rows.Next() {
		var job models.ImportJob
		if err := scanJobInto(rows, &job); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}
