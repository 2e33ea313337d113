// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/middleware"
)

// Gate reports whether mutations are currently allowed.
type Gate interface {
	CanMutate() bool
}

// offlineGuard rejects mutating requests while the deployment is read-only.
// Services check the gate too; the middleware exists so that every guarded
// route answers identically without reaching a service.
func offlineGuard(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !gate.CanMutate() {
				respondError(w, r, http.StatusServiceUnavailable, CodeReadOnlyMode,
					"Service is running in read-only mode", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter assembles the full route tree.
func NewRouter(h *Handler, gate Gate, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// Prometheus scrape endpoint, outside the rate-limited API tree.
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}

		r.Get("/health", h.Health)

		r.Get("/preferences", h.GetPreferences)
		r.Put("/preferences", h.UpdatePreferences)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Route("/imports", func(r chi.Router) {
				r.Get("/", h.ListImports)
				r.Get("/latest", h.LatestImport)
				r.With(offlineGuard(gate)).Post("/", h.StartImport)
				r.With(offlineGuard(gate)).Post("/file", h.UploadImportFile)
			})

			r.Route("/blacklist", func(r chi.Router) {
				r.Get("/", h.ListBlacklist)
				r.With(offlineGuard(gate)).Post("/{artistID}", h.AddBlacklistEntry)
				r.With(offlineGuard(gate)).Delete("/{artistID}", h.RemoveBlacklistEntry)
			})

			r.Route("/artists/{artistID}", func(r chi.Router) {
				r.Get("/first-last", h.FirstAndLastListened)
				r.Get("/most-listened-track", h.MostListenedTrack)
				r.Get("/most-listened-album", h.MostListenedAlbum)
				r.Get("/best-period", h.BestPeriod)
				r.Get("/total", h.TotalListening)
				r.Get("/day-repartition", h.DayRepartition)
				r.Get("/stats", h.ArtistStats)
			})

			r.Get("/rank", h.RankOf)
		})
	})

	return r
}
