// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

/*
manager.go - Import Job Orchestration

The manager owns the import lifecycle: claiming the per-user ledger slot,
walking history pages, committing progress after every page, and closing the
job with a terminal state.

Lifecycle invariants:
  - At most one running job per user, enforced by the ledger's conditional
    insert, not by in-process locks. Concurrent managers are safe.
  - The cursor is committed only after every event of the page is durably
    inserted. A crash between pages replays at most one page, and replays
    are absorbed by the (user_id, track_id, played_at) dedup identity.
  - Malformed records are counted and skipped; they never fail the job.
  - A rate-limited fetch fails the job with models.ErrRateLimited so the
    scheduler can back off. The committed cursor survives for the retry.
*/
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/metrics"
	"github.com/tomtom215/soundledger/internal/models"
)

// Store is the ledger and event storage the manager writes through.
type Store interface {
	TryStartJob(ctx context.Context, userID, cursor, source string) (*models.ImportJob, error)
	CommitJobProgress(ctx context.Context, jobID uuid.UUID, cursor string, imported, skipped int64) error
	FinishJob(ctx context.Context, jobID uuid.UUID, state models.JobState, lastError string) error
	LatestCursor(ctx context.Context, userID string) (string, error)
	MaxPlayedAt(ctx context.Context, userID string) (time.Time, bool, error)
	RecoverOrphanedJobs(ctx context.Context) ([]models.ImportJob, error)
	InsertListeningEvent(ctx context.Context, event *models.ListeningEvent) (bool, error)
}

// Invalidator drops cached statistics for a user after their history changed.
type Invalidator interface {
	InvalidateUser(userID string)
}

// Gate reports whether mutations are currently allowed.
type Gate interface {
	CanMutate() bool
}

// Manager runs import jobs against the ledger.
type Manager struct {
	store  Store
	client SourceClient
	inval  Invalidator
	gate   Gate
}

func NewManager(store Store, client SourceClient, inval Invalidator, gate Gate) *Manager {
	return &Manager{store: store, client: client, inval: inval, gate: gate}
}

// Sync performs a complete synchronous import for userID, resuming from the
// user's latest committed cursor. Returns models.ErrAlreadyRunning if another
// job holds the slot and models.ErrMutationDisabled in offline mode.
func (m *Manager) Sync(ctx context.Context, userID string) error {
	job, err := m.claim(ctx, userID)
	if err != nil {
		return err
	}
	return m.runJob(ctx, job)
}

// StartImport claims the ledger slot synchronously so the caller learns
// immediately whether the job was accepted, then runs the page loop in the
// background. The returned job is a snapshot at claim time.
func (m *Manager) StartImport(ctx context.Context, userID string) (*models.ImportJob, error) {
	job, err := m.claim(ctx, userID)
	if err != nil {
		return nil, err
	}
	go func() {
		// Detached from the request context; the job outlives the 202.
		if err := m.runJob(context.Background(), job); err != nil {
			logging.Error().Err(err).
				Str("user_id", userID).
				Str("job_id", job.ID.String()).
				Msg("Background import failed")
		}
	}()
	return job, nil
}

func (m *Manager) claim(ctx context.Context, userID string) (*models.ImportJob, error) {
	if !m.gate.CanMutate() {
		return nil, models.ErrMutationDisabled
	}
	cursor, err := m.store.LatestCursor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading latest cursor: %w", err)
	}
	job, err := m.store.TryStartJob(ctx, userID, cursor, models.JobSourceAPI)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			return nil, err
		}
		return nil, fmt.Errorf("starting import job: %w", err)
	}
	logging.Info().
		Str("user_id", userID).
		Str("job_id", job.ID.String()).
		Str("cursor", job.Cursor).
		Msg("Import job started")
	return job, nil
}

func (m *Manager) runJob(ctx context.Context, job *models.ImportJob) error {
	cursor := job.Cursor
	var imported, skipped int64

	// Without a committed cursor the newest stored play bounds the fetch.
	// Stored history is a contiguous prefix (pages insert oldest first), so
	// a first walk interrupted before its cursor commit, or a history built
	// only from file uploads, resumes where the prefix ends instead of
	// refetching it.
	var after time.Time
	if cursor == "" {
		latest, ok, err := m.store.MaxPlayedAt(ctx, job.UserID)
		if err != nil {
			return m.fail(ctx, job, fmt.Errorf("loading newest stored play: %w", err))
		}
		if ok {
			after = latest
		}
	}

	for {
		start := time.Now()
		page, err := m.client.FetchEvents(ctx, job.UserID, cursor, after)
		if err != nil {
			return m.fail(ctx, job, err)
		}

		pageImported, pageSkipped, err := m.ingestPage(ctx, page.Events)
		if err != nil {
			return m.fail(ctx, job, err)
		}
		imported += pageImported
		skipped += pageSkipped

		if page.NextCursor != "" {
			cursor = page.NextCursor
		}
		if err := m.store.CommitJobProgress(ctx, job.ID, cursor, imported, skipped); err != nil {
			return m.fail(ctx, job, fmt.Errorf("committing page progress: %w", err))
		}
		metrics.ImportPageDuration.Observe(time.Since(start).Seconds())

		if !page.HasMore {
			break
		}
	}

	if err := m.store.FinishJob(ctx, job.ID, models.JobStateDone, ""); err != nil {
		return fmt.Errorf("finishing import job: %w", err)
	}
	metrics.ImportJobsTotal.WithLabelValues(string(models.JobStateDone), job.Source).Inc()
	if imported > 0 {
		m.inval.InvalidateUser(job.UserID)
	}
	logging.Info().
		Str("user_id", job.UserID).
		Str("job_id", job.ID.String()).
		Int64("imported", imported).
		Int64("skipped", skipped).
		Msg("Import job completed")
	return nil
}

// ingestPage validates and inserts one page of events in played_at order.
func (m *Manager) ingestPage(ctx context.Context, events []models.ListeningEvent) (imported, skipped int64, err error) {
	valid := make([]models.ListeningEvent, 0, len(events))
	for i := range events {
		if verr := validateEvent(&events[i]); verr != nil {
			skipped++
			metrics.MalformedRecords.Inc()
			logging.Debug().Err(verr).
				Str("user_id", events[i].UserID).
				Str("track_id", events[i].TrackID).
				Msg("Skipping malformed record")
			continue
		}
		valid = append(valid, events[i])
	}

	// Oldest first, so a crash mid-page leaves a contiguous history prefix.
	sort.Slice(valid, func(i, j int) bool {
		return valid[i].PlayedAt.Before(valid[j].PlayedAt)
	})

	for i := range valid {
		inserted, ierr := m.store.InsertListeningEvent(ctx, &valid[i])
		if ierr != nil {
			return imported, skipped, fmt.Errorf("inserting listening event: %w", ierr)
		}
		if inserted {
			imported++
			metrics.ImportedEvents.Inc()
		} else {
			metrics.DeduplicatedEvents.Inc()
		}
	}
	return imported, skipped, nil
}

func (m *Manager) fail(ctx context.Context, job *models.ImportJob, cause error) error {
	if ferr := m.store.FinishJob(ctx, job.ID, models.JobStateFailed, cause.Error()); ferr != nil {
		logging.Error().Err(ferr).
			Str("job_id", job.ID.String()).
			Msg("Failed to mark import job as failed")
	}
	metrics.ImportJobsTotal.WithLabelValues(string(models.JobStateFailed), job.Source).Inc()
	return fmt.Errorf("import job %s: %w", job.ID, cause)
}

// ResumeOrphaned marks jobs left running by a previous process as failed.
// Called once at startup, before the scheduler dispatches anything. The
// orphans' cursors stay in the ledger and seed the next attempt.
func (m *Manager) ResumeOrphaned(ctx context.Context) error {
	orphans, err := m.store.RecoverOrphanedJobs(ctx)
	if err != nil {
		return fmt.Errorf("recovering orphaned jobs: %w", err)
	}
	for i := range orphans {
		logging.Warn().
			Str("user_id", orphans[i].UserID).
			Str("job_id", orphans[i].ID.String()).
			Str("cursor", orphans[i].Cursor).
			Msg("Recovered orphaned import job")
	}
	return nil
}

// validateEvent rejects records that cannot participate in deduplication or
// statistics. Wrapped in models.ErrMalformedRecord for counting.
func validateEvent(e *models.ListeningEvent) error {
	switch {
	case e.TrackID == "":
		return fmt.Errorf("%w: missing track id", models.ErrMalformedRecord)
	case e.PlayedAt.IsZero():
		return fmt.Errorf("%w: missing played_at", models.ErrMalformedRecord)
	case len(e.ArtistIDs) == 0 || e.ArtistIDs[0] == "":
		return fmt.Errorf("%w: missing artist attribution", models.ErrMalformedRecord)
	case e.DurationMs < 0:
		return fmt.Errorf("%w: negative duration", models.ErrMalformedRecord)
	}
	return nil
}
