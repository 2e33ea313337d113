// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package models

import "errors"

// Error taxonomy shared by the core and the HTTP boundary. Storage failures
// are not a sentinel: any other error bubbling out of the database layer is
// treated as a storage failure, wrapped with context via %w.
var (
	// ErrMutationDisabled is returned by every write path when the
	// deployment runs in offline/read-only mode. User-recoverable, no retry.
	ErrMutationDisabled = errors.New("mutations are disabled in offline mode")

	// ErrAlreadyRunning indicates an import job is already running for the
	// user. Benign; callers treat it as success-equivalent.
	ErrAlreadyRunning = errors.New("an import job is already running for this user")

	// ErrRateLimited is the distinguishable rate-limit signal from the
	// streaming service. The job fails with this error and the scheduler
	// retries it with backoff; callers never retry synchronously.
	ErrRateLimited = errors.New("streaming service rate limit reached")

	// ErrMalformedRecord marks a single upstream record that cannot be
	// mapped to a listening event. Absorbed by the import loop and counted,
	// never fatal to the job.
	ErrMalformedRecord = errors.New("malformed listening record")

	// ErrNotFound is the query-side "no effective data" result: the entity
	// has events, but none survive the blacklist filter.
	ErrNotFound = errors.New("no effective listening data")

	// ErrUnknownEntity indicates the artist/track/album has no events at
	// all for this user, as opposed to being filtered out.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownUser indicates the user-identity collaborator does not know
	// the requested user.
	ErrUnknownUser = errors.New("unknown user")
)
