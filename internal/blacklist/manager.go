// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package blacklist owns the per-user artist exclusion set and keeps every
// denormalized view of it consistent.
//
// The blacklist store is the single source of truth. Cached aggregates are
// pure functions of (event store, blacklist store), so after any mutation the
// user's cache region is dropped wholesale and recomputed lazily on the next
// read. There is no incremental repair path.
package blacklist

import (
	"context"
	"fmt"

	"github.com/tomtom215/soundledger/internal/logging"
	"github.com/tomtom215/soundledger/internal/models"
)

// Store is the durable blacklist access required by the manager.
type Store interface {
	AddBlacklistEntry(ctx context.Context, userID, artistID string) (bool, error)
	RemoveBlacklistEntry(ctx context.Context, userID, artistID string) (bool, error)
	IsBlacklisted(ctx context.Context, userID, artistID string) (bool, error)
	ListBlacklist(ctx context.Context, userID string) ([]models.BlacklistEntry, error)
}

// Invalidator marks a user's cached aggregates stale.
type Invalidator interface {
	InvalidateUser(userID string)
	Clear()
}

// Gate is the mutation capability check.
type Gate interface {
	CanMutate() bool
}

// Manager serializes blacklist mutations with the capability gate and the
// cache invalidation they require.
type Manager struct {
	store Store
	cache Invalidator
	gate  Gate
}

// NewManager creates a blacklist manager.
func NewManager(store Store, cacheInv Invalidator, gate Gate) *Manager {
	return &Manager{store: store, cache: cacheInv, gate: gate}
}

// Add puts an artist on the user's blacklist. Idempotent: adding a present
// entry succeeds without effect. Fails with ErrMutationDisabled under
// offline mode.
func (m *Manager) Add(ctx context.Context, userID, artistID string) error {
	if !m.gate.CanMutate() {
		return models.ErrMutationDisabled
	}

	added, err := m.store.AddBlacklistEntry(ctx, userID, artistID)
	if err != nil {
		return fmt.Errorf("blacklist add: %w", err)
	}
	if added {
		// Invalidation, not recomputation: aggregates that referenced
		// this artist are recomputed lazily on the next read.
		m.cache.InvalidateUser(userID)
		logging.Info().Str("user_id", userID).Str("artist_id", artistID).Msg("Artist blacklisted")
	}
	return nil
}

// Remove takes an artist off the user's blacklist. Idempotent: removing an
// absent entry succeeds without effect.
func (m *Manager) Remove(ctx context.Context, userID, artistID string) error {
	if !m.gate.CanMutate() {
		return models.ErrMutationDisabled
	}

	removed, err := m.store.RemoveBlacklistEntry(ctx, userID, artistID)
	if err != nil {
		return fmt.Errorf("blacklist remove: %w", err)
	}
	if removed {
		m.cache.InvalidateUser(userID)
		logging.Info().Str("user_id", userID).Str("artist_id", artistID).Msg("Artist unblacklisted")
	}
	return nil
}

// List returns the user's blacklist entries.
func (m *Manager) List(ctx context.Context, userID string) ([]models.BlacklistEntry, error) {
	return m.store.ListBlacklist(ctx, userID)
}

// CheckConsistency reconciles denormalized exclusion state with the
// blacklist store. Run at process startup, before the first read.
//
// The only denormalized state in this system is the aggregate cache, and a
// cached value may predate blacklist changes made by a previous process
// life. Treating the store as the source of truth, the cache is dropped in
// full rather than patched - stale aggregates are recomputed on demand.
func (m *Manager) CheckConsistency(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("consistency check canceled: %w", err)
	}

	m.cache.Clear()
	logging.Info().Msg("Blacklist consistency check complete, aggregate cache dropped")
	return nil
}
