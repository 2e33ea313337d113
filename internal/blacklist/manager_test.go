// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package blacklist

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/soundledger/internal/models"
)

// fakeStore is an in-memory blacklist store.
type fakeStore struct {
	entries map[string]bool // userID|artistID
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]bool)}
}

func (s *fakeStore) key(userID, artistID string) string { return userID + "|" + artistID }

func (s *fakeStore) AddBlacklistEntry(_ context.Context, userID, artistID string) (bool, error) {
	k := s.key(userID, artistID)
	if s.entries[k] {
		return false, nil
	}
	s.entries[k] = true
	return true, nil
}

func (s *fakeStore) RemoveBlacklistEntry(_ context.Context, userID, artistID string) (bool, error) {
	k := s.key(userID, artistID)
	if !s.entries[k] {
		return false, nil
	}
	delete(s.entries, k)
	return true, nil
}

func (s *fakeStore) IsBlacklisted(_ context.Context, userID, artistID string) (bool, error) {
	return s.entries[s.key(userID, artistID)], nil
}

func (s *fakeStore) ListBlacklist(_ context.Context, userID string) ([]models.BlacklistEntry, error) {
	var out []models.BlacklistEntry
	for k := range s.entries {
		out = append(out, models.BlacklistEntry{UserID: userID, ArtistID: k})
	}
	return out, nil
}

// fakeCache records invalidations.
type fakeCache struct {
	invalidated []string
	cleared     int
}

func (c *fakeCache) InvalidateUser(userID string) { c.invalidated = append(c.invalidated, userID) }
func (c *fakeCache) Clear()                       { c.cleared++ }

// fakeGate toggles the mutation capability.
type fakeGate struct{ open bool }

func (g *fakeGate) CanMutate() bool { return g.open }

func TestManager_AddInvalidatesOnce(t *testing.T) {
	store := newFakeStore()
	c := &fakeCache{}
	m := NewManager(store, c, &fakeGate{open: true})
	ctx := context.Background()

	if err := m.Add(ctx, "user-1", "artist-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	// Idempotent re-add: no second invalidation.
	if err := m.Add(ctx, "user-1", "artist-1"); err != nil {
		t.Fatalf("Idempotent add failed: %v", err)
	}

	if len(c.invalidated) != 1 {
		t.Errorf("Expected exactly one invalidation, got %d", len(c.invalidated))
	}
	if c.invalidated[0] != "user-1" {
		t.Errorf("Expected user-1 invalidated, got %s", c.invalidated[0])
	}
}

func TestManager_RemoveAbsentIsNoop(t *testing.T) {
	m := NewManager(newFakeStore(), &fakeCache{}, &fakeGate{open: true})

	if err := m.Remove(context.Background(), "user-1", "artist-1"); err != nil {
		t.Fatalf("Expected removing absent entry to succeed, got %v", err)
	}
}

func TestManager_MutationDisabled(t *testing.T) {
	store := newFakeStore()
	c := &fakeCache{}
	m := NewManager(store, c, &fakeGate{open: false})
	ctx := context.Background()

	if err := m.Add(ctx, "user-1", "artist-1"); !errors.Is(err, models.ErrMutationDisabled) {
		t.Errorf("Expected ErrMutationDisabled on add, got %v", err)
	}
	if err := m.Remove(ctx, "user-1", "artist-1"); !errors.Is(err, models.ErrMutationDisabled) {
		t.Errorf("Expected ErrMutationDisabled on remove, got %v", err)
	}
	if len(store.entries) != 0 {
		t.Error("Expected no store writes under offline mode")
	}
	if len(c.invalidated) != 0 {
		t.Error("Expected no invalidations under offline mode")
	}
}

func TestManager_CheckConsistencyDropsCache(t *testing.T) {
	c := &fakeCache{}
	m := NewManager(newFakeStore(), c, &fakeGate{open: true})

	if err := m.CheckConsistency(context.Background()); err != nil {
		t.Fatalf("CheckConsistency failed: %v", err)
	}
	if c.cleared != 1 {
		t.Errorf("Expected cache cleared once, got %d", c.cleared)
	}
}
