// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

// Package stats serves per-user listening statistics with a read-through
// cache in front of the analytics queries. Every answer reflects the
// effective history, meaning blacklisted artists are already filtered out
// by the storage layer. Cache entries are scoped per user so that imports
// and blacklist changes can invalidate a single listener without touching
// anyone else's hot entries.
package stats

import (
	"context"

	"github.com/tomtom215/soundledger/internal/cache"
	"github.com/tomtom215/soundledger/internal/models"
)

// Store is the analytics surface the engine reads from.
type Store interface {
	FirstAndLastListened(ctx context.Context, userID, artistID string) (*models.FirstAndLast, error)
	MostListenedTrack(ctx context.Context, userID, artistID string) (*models.MostListened, error)
	MostListenedAlbum(ctx context.Context, userID, artistID string) (*models.MostListened, error)
	BestPeriod(ctx context.Context, userID, artistID string) (*models.BestPeriod, error)
	TotalListening(ctx context.Context, userID, artistID string) (*models.TotalListening, error)
	DayRepartition(ctx context.Context, userID, artistID string) (*models.DayRepartition, error)
	RankOf(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Rank, error)
}

// Engine answers statistics queries, caching successful results.
type Engine struct {
	store Store
	cache *cache.Cache
}

func NewEngine(store Store, c *cache.Cache) *Engine {
	return &Engine{store: store, cache: c}
}

// InvalidateUser drops every cached answer for one user. Called after an
// import finishes or a blacklist entry changes.
func (e *Engine) InvalidateUser(userID string) {
	e.cache.InvalidateUser(userID)
}

// cached runs fetch on a miss and stores the result. Errors are never
// cached; a NotFound today may be a hit after the next sync cycle.
func cached[T any](e *Engine, key string, fetch func() (T, error)) (T, error) {
	if v, ok := e.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	e.cache.Set(key, v)
	return v, nil
}

func (e *Engine) FirstAndLastListened(ctx context.Context, userID, artistID string) (*models.FirstAndLast, error) {
	return cached(e, cache.Key(userID, "first_last", artistID), func() (*models.FirstAndLast, error) {
		return e.store.FirstAndLastListened(ctx, userID, artistID)
	})
}

func (e *Engine) MostListenedTrack(ctx context.Context, userID, artistID string) (*models.MostListened, error) {
	return cached(e, cache.Key(userID, "most_track", artistID), func() (*models.MostListened, error) {
		return e.store.MostListenedTrack(ctx, userID, artistID)
	})
}

func (e *Engine) MostListenedAlbum(ctx context.Context, userID, artistID string) (*models.MostListened, error) {
	return cached(e, cache.Key(userID, "most_album", artistID), func() (*models.MostListened, error) {
		return e.store.MostListenedAlbum(ctx, userID, artistID)
	})
}

func (e *Engine) BestPeriod(ctx context.Context, userID, artistID string) (*models.BestPeriod, error) {
	return cached(e, cache.Key(userID, "best_period", artistID), func() (*models.BestPeriod, error) {
		return e.store.BestPeriod(ctx, userID, artistID)
	})
}

func (e *Engine) TotalListening(ctx context.Context, userID, artistID string) (*models.TotalListening, error) {
	return cached(e, cache.Key(userID, "total", artistID), func() (*models.TotalListening, error) {
		return e.store.TotalListening(ctx, userID, artistID)
	})
}

func (e *Engine) DayRepartition(ctx context.Context, userID, artistID string) (*models.DayRepartition, error) {
	return cached(e, cache.Key(userID, "day_repartition", artistID), func() (*models.DayRepartition, error) {
		return e.store.DayRepartition(ctx, userID, artistID)
	})
}

func (e *Engine) RankOf(ctx context.Context, itemType models.ItemType, userID, itemID string) (*models.Rank, error) {
	if !itemType.Valid() {
		return nil, models.ErrUnknownEntity
	}
	return cached(e, cache.Key(userID, "rank", string(itemType), itemID), func() (*models.Rank, error) {
		return e.store.RankOf(ctx, itemType, userID, itemID)
	})
}

// ArtistStats bundles every per-artist statistic into one answer for the
// combined stats endpoint. The first query decides the error outcome; once
// the artist is known to have effective history the rest cannot miss.
func (e *Engine) ArtistStats(ctx context.Context, userID, artistID string) (*models.ArtistStats, error) {
	return cached(e, cache.Key(userID, "artist_stats", artistID), func() (*models.ArtistStats, error) {
		firstLast, err := e.store.FirstAndLastListened(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		mostTrack, err := e.store.MostListenedTrack(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		mostAlbum, err := e.store.MostListenedAlbum(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		best, err := e.store.BestPeriod(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		total, err := e.store.TotalListening(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		days, err := e.store.DayRepartition(ctx, userID, artistID)
		if err != nil {
			return nil, err
		}
		return &models.ArtistStats{
			ArtistID:       artistID,
			FirstLast:      firstLast,
			MostListened:   mostTrack,
			AlbumListened:  mostAlbum,
			BestPeriod:     best,
			Total:          total,
			DayRepartition: days,
		}, nil
	})
}
