// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AddBlacklistEntry excludes an artist from the user's statistics. Adding an
// already-excluded artist succeeds; the operation is idempotent.
func (h *Handler) AddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	artistID := chi.URLParam(r, "artistID")

	if err := h.blacklist.Add(r.Context(), userID, artistID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, nil)
}

// RemoveBlacklistEntry restores an artist into the user's statistics.
// Removing an absent entry succeeds.
func (h *Handler) RemoveBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	artistID := chi.URLParam(r, "artistID")

	if err := h.blacklist.Remove(r.Context(), userID, artistID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, nil)
}

// ListBlacklist returns the user's excluded artists.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := h.blacklist.List(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, entries)
}
