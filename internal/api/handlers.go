// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package api is the HTTP boundary: a chi router over the import, blacklist,
// and statistics services. Handlers translate between HTTP and the core
// error sentinels; no business rules live here.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tomtom215/soundledger/internal/models"
)

// StatsService answers per-user statistics queries.
type StatsService interface {
	FirstAndLastListened(ctx context.Context, userID, artistID string) (*models.FirstAndLast, error)
	MostListenedTrack(ctx context.Context, userID, artistID string) (*models.MostListened, error)
	MostListenedAlbum(ctx context.Context, userID, artistID string) (*models.MostListened, error)
	BestPeriod(ctx context.Context, userID, artistID string) (*models.BestPeriod, error)
	TotalListening(ctx context.Context, userID, artistID string) (*models.TotalListening, error)
	DayRepartition(ctx context.Context, userID, artistID string) (*models.DayRepartition, error)
	RankOf(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Rank, error)
	ArtistStats(ctx context.Context, userID, artistID string) (*models.ArtistStats, error)
}

// ImportService starts background API synchronization jobs.
type ImportService interface {
	StartImport(ctx context.Context, userID string) (*models.ImportJob, error)
}

// FileImporter ingests uploaded privacy-export files.
type FileImporter interface {
	ImportFile(ctx context.Context, userID string, r io.Reader) (*models.ImportJob, error)
}

// BlacklistService mutates and lists per-user artist exclusions.
type BlacklistService interface {
	Add(ctx context.Context, userID, artistID string) error
	Remove(ctx context.Context, userID, artistID string) error
	List(ctx context.Context, userID string) ([]models.BlacklistEntry, error)
}

// JobStore reads import job history.
type JobStore interface {
	JobsForUser(ctx context.Context, userID string, limit int) ([]models.ImportJob, error)
	LatestJob(ctx context.Context, userID string) (*models.ImportJob, error)
}

// PreferenceStore reads and replaces the global preferences snapshot.
type PreferenceStore interface {
	Preferences() models.GlobalPreferences
	SetPreferences(models.GlobalPreferences)
}

// Pinger checks storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds every service the HTTP boundary dispatches to.
type Handler struct {
	stats     StatsService
	imports   ImportService
	files     FileImporter
	blacklist BlacklistService
	jobs      JobStore
	prefs     PreferenceStore
	db        Pinger
	startedAt time.Time
}

func NewHandler(
	stats StatsService,
	imports ImportService,
	files FileImporter,
	blacklist BlacklistService,
	jobs JobStore,
	prefs PreferenceStore,
	db Pinger,
) *Handler {
	return &Handler{
		stats:     stats,
		imports:   imports,
		files:     files,
		blacklist: blacklist,
		jobs:      jobs,
		prefs:     prefs,
		db:        db,
		startedAt: time.Now(),
	}
}

type healthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Health reports liveness plus a storage reachability check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:        "ok",
		Database:      "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	}
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		status.Status = "degraded"
		status.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}
	respondSuccess(w, r, code, status)
}
