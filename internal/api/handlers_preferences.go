// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/models"
)

// GetPreferences returns the global preferences snapshot.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, h.prefs.Preferences())
}

// UpdatePreferences replaces the global preferences. Flipping offline_mode
// takes effect immediately: every mutation path checks the live snapshot.
// The preferences endpoint itself stays writable in offline mode, otherwise
// there would be no way back out.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs models.GlobalPreferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeInvalidRequest,
			"Request body must be a preferences object", nil)
		return
	}

	h.prefs.SetPreferences(prefs)
	logging.Info().
		Bool("allow_registrations", prefs.AllowRegistrations).
		Bool("allow_affinity", prefs.AllowAffinity).
		Bool("offline_mode", prefs.OfflineMode).
		Msg("Global preferences updated")
	respondSuccess(w, r, http.StatusOK, prefs)
}
