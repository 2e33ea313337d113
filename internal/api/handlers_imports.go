// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxUploadSize caps privacy-export uploads at 512 MiB. Full multi-year
// exports run tens of megabytes; this bound protects against abuse without
// rejecting any legitimate file.
const maxUploadSize = 512 << 20

// StartImport triggers API synchronization for the user. The claim is
// synchronous; the page walk runs in the background, so success is 202 with
// the accepted job snapshot. A concurrent trigger also answers 202.
func (h *Handler) StartImport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	job, err := h.imports.StartImport(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, job)
}

// UploadImportFile ingests a privacy-export JSON file sent as the request
// body. Processing is synchronous: the response carries the finished job
// with its imported and skipped counters.
func (h *Handler) UploadImportFile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	job, err := h.files.ImportFile(r.Context(), userID, body)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, job)
}

// ListImports returns the user's recent import jobs, newest first.
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	jobs, err := h.jobs.JobsForUser(r.Context(), userID, 50)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, jobs)
}

// LatestImport returns the user's most recent import job, or 404 if the
// user has never imported.
func (h *Handler) LatestImport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	job, err := h.jobs.LatestJob(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if job == nil {
		respondError(w, r, http.StatusNotFound, CodeNoListeningData,
			"No imports recorded for this user", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, job)
}
