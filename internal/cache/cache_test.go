// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package cache

import (
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	key := Key("user-1", "total", "artist-1")
	c.Set(key, int64(42))

	got, found := c.Get(key)
	if !found {
		t.Fatal("Expected cache hit")
	}
	if got.(int64) != 42 {
		t.Errorf("Expected 42, got %v", got)
	}

	if _, found := c.Get(Key("user-1", "total", "artist-2")); found {
		t.Error("Expected miss for different args")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := New(10 * time.Millisecond)
	defer c.Close()

	c.Set("k", "v")
	time.Sleep(30 * time.Millisecond)

	if _, found := c.Get("k"); found {
		t.Error("Expected expired entry to miss")
	}
}

func TestCache_InvalidateUserIsScoped(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set(Key("user-1", "total", "artist-1"), 1)
	c.Set(Key("user-1", "rank", "artist", "artist-1"), 2)
	c.Set(Key("user-2", "total", "artist-1"), 3)

	c.InvalidateUser("user-1")

	if _, found := c.Get(Key("user-1", "total", "artist-1")); found {
		t.Error("Expected user-1 aggregate dropped")
	}
	if _, found := c.Get(Key("user-1", "rank", "artist", "artist-1")); found {
		t.Error("Expected all user-1 aggregates dropped")
	}
	if _, found := c.Get(Key("user-2", "total", "artist-1")); !found {
		t.Error("Expected user-2 aggregates untouched")
	}
}

func TestCache_Clear(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Expected empty cache after clear, got %d entries", c.Len())
	}
}
