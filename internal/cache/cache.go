// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package cache provides the thread-safe in-memory cache backing the
// statistics engine. Every cached aggregate is a pure function of the event
// store and the blacklist store, so invalidation is unconditional staleness
// marking: a blacklist mutation or a completed import drops the user's whole
// region and correctness comes from lazy recomputation, never from patching
// cached values.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/soundledger/internal/metrics"
)

// Entry represents a cached item with expiration.
type Entry struct {
	Data      any
	ExpiresAt time.Time
}

// Cache is a TTL cache whose keys are namespaced per user via Key(), so
// that one user's aggregates can be dropped without touching others.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	stop    chan struct{}
}

// cleanupInterval is how often expired entries are swept.
const cleanupInterval = 5 * time.Minute

// New creates a cache with the given default TTL and starts the background
// cleanup goroutine. Call Close to stop it.
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key builds a user-scoped cache key: "user|operation|arg1|arg2|...".
func Key(userID, operation string, args ...string) string {
	parts := append([]string{userID, operation}, args...)
	return strings.Join(parts, "|")
}

// Get retrieves a value by key, treating expired entries as misses.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()

	if !found || time.Now().After(entry.ExpiresAt) {
		metrics.StatsCacheMisses.Inc()
		return nil, false
	}
	metrics.StatsCacheHits.Inc()
	return entry.Data, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Data: value, ExpiresAt: time.Now().Add(c.ttl)}
}

// InvalidateUser drops every cached aggregate belonging to a user.
func (c *Cache) InvalidateUser(userID string) {
	prefix := userID + "|"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	metrics.StatsCacheInvalidations.Inc()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	close(c.stop)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
