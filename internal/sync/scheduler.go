// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package sync

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/models"
)

// UserDirectory lists the users eligible for scheduled synchronization.
type UserDirectory interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
}

// StaticUserDirectory serves a fixed user list from configuration.
type StaticUserDirectory struct {
	userIDs []string
}

func NewStaticUserDirectory(userIDs []string) *StaticUserDirectory {
	return &StaticUserDirectory{userIDs: userIDs}
}

func (d *StaticUserDirectory) ActiveUserIDs(_ context.Context) ([]string, error) {
	return d.userIDs, nil
}

// Scheduler triggers periodic imports for every active user. It implements
// suture.Service; the supervisor restarts it if Serve returns unexpectedly.
//
// Failure isolation is per user: one user's failing import never delays or
// aborts the others. A rate-limited user is put on an exponential backoff
// hold and skipped until the hold expires; any successful run resets it.
type Scheduler struct {
	manager *Manager
	users   UserDirectory
	gate    Gate
	cfg     *config.SyncConfig

	mu    sync.Mutex
	holds map[string]*userHold

	// inflight tracks dispatched user syncs so shutdown can drain them.
	inflight sync.WaitGroup
}

type userHold struct {
	until time.Time
	bo    *backoff.ExponentialBackOff
}

func NewScheduler(manager *Manager, users UserDirectory, gate Gate, cfg *config.SyncConfig) *Scheduler {
	return &Scheduler{
		manager: manager,
		users:   users,
		gate:    gate,
		cfg:     cfg,
		holds:   make(map[string]*userHold),
	}
}

// Serve runs the scheduling loop until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.cfg.Interval).
		Dur("jitter", s.cfg.Jitter).
		Msg("Sync scheduler started")

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync scheduler stopping")
			s.inflight.Wait()
			return ctx.Err()
		case <-timer.C:
			s.runOnce(ctx)
			timer.Reset(s.nextDelay())
		}
	}
}

// nextDelay is the base interval plus up to Jitter of random delay.
func (s *Scheduler) nextDelay() time.Duration {
	d := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(s.cfg.Jitter)))
	}
	return d
}

// runOnce dispatches one synchronization round.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.gate.CanMutate() {
		logging.Debug().Msg("Skipping sync round, mutations disabled")
		return
	}

	userIDs, err := s.users.ActiveUserIDs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list active users")
		return
	}

	// One goroutine per user, and the round does not join them: a long
	// multi-page import for one user must not delay the next round for
	// anyone else. Overlap is harmless because the ledger rejects a second
	// claim with AlreadyRunning. Serve drains inflight on shutdown.
	now := time.Now()
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		if s.onHold(userID, now) {
			logging.Debug().Str("user_id", userID).Msg("User on rate-limit hold, skipping")
			continue
		}
		s.inflight.Add(1)
		go func(userID string) {
			defer s.inflight.Done()
			s.syncUser(ctx, userID)
		}(userID)
	}
}

func (s *Scheduler) syncUser(ctx context.Context, userID string) {
	err := s.manager.Sync(ctx, userID)
	switch {
	case err == nil:
		s.clearHold(userID)
	case errors.Is(err, models.ErrAlreadyRunning):
		// Another trigger beat this round to the slot. Not an error.
		logging.Debug().Str("user_id", userID).Msg("Import already running, skipping")
	case errors.Is(err, models.ErrRateLimited):
		delay := s.extendHold(userID)
		logging.Warn().
			Str("user_id", userID).
			Dur("retry_in", delay).
			Msg("Rate limited by streaming service, backing off")
	default:
		logging.Error().Err(err).Str("user_id", userID).Msg("Scheduled import failed")
	}
}

func (s *Scheduler) onHold(userID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[userID]
	return ok && now.Before(h.until)
}

func (s *Scheduler) clearHold(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holds, userID)
}

// extendHold advances the user's backoff and returns the applied delay.
func (s *Scheduler) extendHold(userID string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[userID]
	if !ok {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = s.cfg.BackoffInitial
		bo.MaxInterval = s.cfg.BackoffMax
		bo.MaxElapsedTime = 0 // Never give up; rate limits always clear
		bo.Reset()
		h = &userHold{bo: bo}
		s.holds[userID] = h
	}
	delay := h.bo.NextBackOff()
	h.until = time.Now().Add(delay)
	return delay
}
