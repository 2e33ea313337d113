// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/soundledger/internal/models"
	"github.com/tomtom215/soundledger/internal/validation"
)

// artistStat adapts one statistics query into a handler.
func (h *Handler) artistStat(
	w http.ResponseWriter, r *http.Request,
	query func(ctx context.Context, userID, artistID string) (interface{}, error),
) {
	userID := chi.URLParam(r, "userID")
	artistID := chi.URLParam(r, "artistID")

	result, err := query(r.Context(), userID, artistID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, result)
}

func (h *Handler) FirstAndLastListened(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.FirstAndLastListened(ctx, userID, artistID)
	})
}

func (h *Handler) MostListenedTrack(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.MostListenedTrack(ctx, userID, artistID)
	})
}

func (h *Handler) MostListenedAlbum(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.MostListenedAlbum(ctx, userID, artistID)
	})
}

func (h *Handler) BestPeriod(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.BestPeriod(ctx, userID, artistID)
	})
}

// TotalListening never 404s: an artist with no effective history answers
// with the never_listened flag instead.
func (h *Handler) TotalListening(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.TotalListening(ctx, userID, artistID)
	})
}

func (h *Handler) DayRepartition(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.DayRepartition(ctx, userID, artistID)
	})
}

func (h *Handler) ArtistStats(w http.ResponseWriter, r *http.Request) {
	h.artistStat(w, r, func(ctx context.Context, userID, artistID string) (interface{}, error) {
		return h.stats.ArtistStats(ctx, userID, artistID)
	})
}

type rankRequest struct {
	Type string `validate:"required,itemtype"`
	ID   string `validate:"required"`
}

// RankOf answers GET /users/{userID}/rank?type=artist&id=... with the item's
// 1-based position in the user's effective ranking.
func (h *Handler) RankOf(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	req := rankRequest{
		Type: r.URL.Query().Get("type"),
		ID:   r.URL.Query().Get("id"),
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondAPIError(w, r, http.StatusBadRequest, verr.ToAPIError())
		return
	}

	rank, err := h.stats.RankOf(r.Context(), models.ItemType(req.Type), userID, req.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, rank)
}
