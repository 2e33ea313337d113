// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package models

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle state of an import job.
type JobState string

// Import job states. A job moves pending -> running -> done|failed. The
// ledger guarantees at most one running job per user via a conditional state
// transition, so the invariant survives process restarts.
const (
	JobStatePending JobState = "pending"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// ImportJob is one synchronization attempt recorded in the ledger. The cursor
// is persisted after every committed page, so a crash loses at most one
// in-flight page, never the whole job.
type ImportJob struct {
	ID         uuid.UUID  `json:"id"`
	UserID     string     `json:"user_id"`
	State      JobState   `json:"state"`
	Cursor     string     `json:"cursor"` // Last committed played_at (RFC3339Nano) or pagination token
	Source     string     `json:"source"` // "api" or "file"
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Imported   int64      `json:"imported"` // Events newly inserted by this job
	Skipped    int64      `json:"skipped"`  // Malformed records skipped by this job
}

// Terminal reports whether the job reached a final state.
func (j *ImportJob) Terminal() bool {
	return j.State == JobStateDone || j.State == JobStateFailed
}

// Import job sources.
const (
	JobSourceAPI  = "api"
	JobSourceFile = "file"
)
