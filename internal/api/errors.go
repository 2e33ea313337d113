// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/soundledger/internal/models"
)

// Stable error codes. Clients switch on these, never on messages.
const (
	CodeReadOnlyMode    = "READ_ONLY_MODE"
	CodeAlreadyRunning  = "IMPORT_ALREADY_RUNNING"
	CodeNoListeningData = "NO_LISTENING_DATA"
	CodeUnknownEntity   = "UNKNOWN_ENTITY"
	CodeUnknownUser     = "UNKNOWN_USER"
	CodeInvalidRequest  = "VALIDATION_ERROR"
	CodeStorageFailure  = "STORAGE_FAILURE"
)

// respondDomainError maps core error sentinels to HTTP statuses and stable
// codes. Anything unmatched is a storage failure: logged with detail,
// answered without it.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrMutationDisabled):
		respondError(w, r, http.StatusServiceUnavailable, CodeReadOnlyMode,
			"Service is running in read-only mode", nil)
	case errors.Is(err, models.ErrAlreadyRunning):
		// Benign: the requested work is already happening.
		respondError(w, r, http.StatusAccepted, CodeAlreadyRunning,
			"An import is already running for this user", nil)
	case errors.Is(err, models.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNoListeningData,
			"No effective listening data for this entity", nil)
	case errors.Is(err, models.ErrUnknownEntity):
		respondError(w, r, http.StatusNotFound, CodeUnknownEntity,
			"Unknown artist, track, or album for this user", nil)
	case errors.Is(err, models.ErrUnknownUser):
		respondError(w, r, http.StatusNotFound, CodeUnknownUser,
			"Unknown user", nil)
	default:
		respondError(w, r, http.StatusInternalServerError, CodeStorageFailure,
			"Internal storage failure", err)
	}
}
