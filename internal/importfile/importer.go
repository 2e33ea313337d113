// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

/*
importer.go - Privacy Export File Import

Bulk import of the streaming service's privacy-export JSON: a single array of
play records shaped like

	{"endTime": "2021-03-31 18:31", "artistName": "...", "trackName": "...",
	 "albumName": "...", "msPlayed": 180000}

The file is streamed record by record, never loaded whole. Records pass
through the same ledger job lifecycle and the same idempotent event insert as
API synchronization, so re-uploading a file is a no-op and a crash mid-file
resumes cheaply on the next upload.

Export records carry names, not catalog identifiers. Identifiers are derived
deterministically from normalized names so that the same play in two uploads
maps to the same event identity.
*/
package importfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/metrics"
	"github.com/tomtom215/soundledger/internal/models"
)

// commitBatchSize is how many records are processed between ledger commits.
const commitBatchSize = 500

// Store is the ledger and event storage surface the importer writes through.
type Store interface {
	TryStartJob(ctx context.Context, userID, cursor, source string) (*models.ImportJob, error)
	CommitJobProgress(ctx context.Context, jobID uuid.UUID, cursor string, imported, skipped int64) error
	FinishJob(ctx context.Context, jobID uuid.UUID, state models.JobState, lastError string) error
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

// exportRecord is one play in the privacy-export file.
type exportRecord struct {
	EndTime    string `json:"endTime"`
	ArtistName string `json:"artistName"`
	TrackName  string `json:"trackName"`
	AlbumName  string `json:"albumName"`
	MsPlayed   int64  `json:"msPlayed"`
}

// endTime layouts seen across export generations.
var endTimeLayouts = []string{
	"2006-01-02 15:04",
	time.RFC3339,
}

// Importer ingests privacy-export files.
type Importer struct {
	store Store
	inval Invalidator
	gate  Gate
}

func NewImporter(store Store, inval Invalidator, gate Gate) *Importer {
	return &Importer{store: store, inval: inval, gate: gate}
}

// ImportFile streams one export file for userID. Returns the finished job.
// The upload shares the user's single import slot with API synchronization:
// models.ErrAlreadyRunning is returned while any other import is in flight.
func (im *Importer) ImportFile(ctx context.Context, userID string, r io.Reader) (*models.ImportJob, error) {
	if !im.gate.CanMutate() {
		return nil, models.ErrMutationDisabled
	}

	job, err := im.store.TryStartJob(ctx, userID, "", models.JobSourceFile)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyRunning) {
			return nil, err
		}
		return nil, fmt.Errorf("starting file import job: %w", err)
	}
	logging.Info().
		Str("user_id", userID).
		Str("job_id", job.ID.String()).
		Msg("File import started")

	imported, skipped, err := im.ingest(ctx, job, r)
	if err != nil {
		if ferr := im.store.FinishJob(ctx, job.ID, models.JobStateFailed, err.Error()); ferr != nil {
			logging.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("Failed to mark file import as failed")
		}
		metrics.ImportJobsTotal.WithLabelValues(string(models.JobStateFailed), job.Source).Inc()
		return nil, fmt.Errorf("file import job %s: %w", job.ID, err)
	}

	if err := im.store.FinishJob(ctx, job.ID, models.JobStateDone, ""); err != nil {
		return nil, fmt.Errorf("finishing file import job: %w", err)
	}
	metrics.ImportJobsTotal.WithLabelValues(string(models.JobStateDone), job.Source).Inc()
	if imported > 0 {
		im.inval.InvalidateUser(userID)
	}

	job.State = models.JobStateDone
	job.Imported = imported
	job.Skipped = skipped
	logging.Info().
		Str("user_id", userID).
		Str("job_id", job.ID.String()).
		Int64("imported", imported).
		Int64("skipped", skipped).
		Msg("File import completed")
	return job, nil
}

func (im *Importer) ingest(ctx context.Context, job *models.ImportJob, r io.Reader) (imported, skipped int64, err error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return 0, 0, fmt.Errorf("reading export file: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, 0, fmt.Errorf("export file must be a JSON array, got %v", tok)
	}

	var processed int64
	for dec.More() {
		if ctx.Err() != nil {
			return imported, skipped, ctx.Err()
		}

		var rec exportRecord
		if err := dec.Decode(&rec); err != nil {
			return imported, skipped, fmt.Errorf("decoding export record %d: %w", processed, err)
		}
		processed++

		event, verr := mapRecord(job.UserID, &rec)
		if verr != nil {
			skipped++
			metrics.MalformedRecords.Inc()
			logging.Debug().Err(verr).
				Str("user_id", job.UserID).
				Int64("record", processed).
				Msg("Skipping malformed export record")
			continue
		}

		inserted, ierr := im.store.InsertListeningEvent(ctx, event)
		if ierr != nil {
			return imported, skipped, fmt.Errorf("inserting export record %d: %w", processed, ierr)
		}
		if inserted {
			imported++
			metrics.ImportedEvents.Inc()
		} else {
			metrics.DeduplicatedEvents.Inc()
		}

		if processed%commitBatchSize == 0 {
			cursor := strconv.FormatInt(processed, 10)
			if err := im.store.CommitJobProgress(ctx, job.ID, cursor, imported, skipped); err != nil {
				return imported, skipped, fmt.Errorf("committing file import progress: %w", err)
			}
		}
	}

	cursor := strconv.FormatInt(processed, 10)
	if err := im.store.CommitJobProgress(ctx, job.ID, cursor, imported, skipped); err != nil {
		return imported, skipped, fmt.Errorf("committing file import progress: %w", err)
	}
	return imported, skipped, nil
}

// mapRecord converts one export record into a listening event, deriving
// identifiers from normalized names. Wrapped in models.ErrMalformedRecord
// when the record cannot participate in deduplication or statistics.
func mapRecord(userID string, rec *exportRecord) (*models.ListeningEvent, error) {
	playedAt, err := parseEndTime(rec.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedRecord, err)
	}
	if rec.TrackName == "" {
		return nil, fmt.Errorf("%w: missing track name", models.ErrMalformedRecord)
	}
	if rec.ArtistName == "" {
		return nil, fmt.Errorf("%w: missing artist name", models.ErrMalformedRecord)
	}
	if rec.MsPlayed < 0 {
		return nil, fmt.Errorf("%w: negative play duration", models.ErrMalformedRecord)
	}

	artistID := syntheticID("artist", rec.ArtistName)
	albumID := ""
	if rec.AlbumName != "" {
		albumID = syntheticID("album", rec.ArtistName+"/"+rec.AlbumName)
	}
	return &models.ListeningEvent{
		UserID:     userID,
		TrackID:    syntheticID("track", rec.ArtistName+"/"+rec.TrackName),
		AlbumID:    albumID,
		ArtistIDs:  []string{artistID},
		DurationMs: rec.MsPlayed,
		PlayedAt:   playedAt,
	}, nil
}

func parseEndTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing endTime")
	}
	for _, layout := range endTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable endTime %q", s)
}

// syntheticID derives a stable identifier from a normalized name. Case and
// surrounding whitespace are insignificant; interior whitespace collapses.
func syntheticID(kind, name string) string {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.Join(strings.Fields(norm), " ")
	return "file:" + kind + ":" + norm
}
