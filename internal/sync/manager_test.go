// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/soundledger/internal/models"
)

// fakeStore is an in-memory ledger and event store mirroring the database
// semantics the manager relies on: one running job per user, dedup on
// (user, track, played_at), cursor trusted from failed jobs.
type fakeStore struct {
	mu      stdsync.Mutex
	jobs    map[uuid.UUID]*models.ImportJob
	events  map[string]bool // userID|trackID|playedAt
	inserts []models.ListeningEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:   make(map[uuid.UUID]*models.ImportJob),
		events: make(map[string]bool),
	}
}

func eventKey(e *models.ListeningEvent) string {
	return e.UserID + "|" + e.TrackID + "|" + e.PlayedAt.UTC().Format(time.RFC3339Nano)
}

func (s *fakeStore) TryStartJob(_ context.Context, userID, cursor, source string) (*models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.UserID == userID && j.State == models.JobStateRunning {
			return nil, models.ErrAlreadyRunning
		}
	}
	job := &models.ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		State:     models.JobStateRunning,
		Cursor:    cursor,
		Source:    source,
		StartedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (s *fakeStore) CommitJobProgress(_ context.Context, jobID uuid.UUID, cursor string, imported, skipped int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	j.Cursor = cursor
	j.Imported = imported
	j.Skipped = skipped
	return nil
}

func (s *fakeStore) FinishJob(_ context.Context, jobID uuid.UUID, state models.JobState, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	now := time.Now()
	j.State = state
	j.FinishedAt = &now
	j.LastError = lastError
	return nil
}

func (s *fakeStore) LatestCursor(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ImportJob
	for _, j := range s.jobs {
		if j.UserID != userID || j.Cursor == "" || j.Source != models.JobSourceAPI {
			continue
		}
		if latest == nil || j.StartedAt.After(latest.StartedAt) {
			latest = j
		}
	}
	if latest == nil {
		return "", nil
	}
	return latest.Cursor, nil
}

func (s *fakeStore) MaxPlayedAt(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max time.Time
	var found bool
	for _, e := range s.inserts {
		if e.UserID != userID && e.UserID != "" {
			continue
		}
		if !found || e.PlayedAt.After(max) {
			max = e.PlayedAt
			found = true
		}
	}
	return max, found, nil
}

func (s *fakeStore) RecoverOrphanedJobs(_ context.Context) ([]models.ImportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orphans []models.ImportJob
	for _, j := range s.jobs {
		if j.State == models.JobStateRunning {
			j.State = models.JobStateFailed
			j.LastError = "orphaned by process restart"
			orphans = append(orphans, *j)
		}
	}
	return orphans, nil
}

func (s *fakeStore) InsertListeningEvent(_ context.Context, event *models.ListeningEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := eventKey(event)
	if s.events[k] {
		return false, nil
	}
	s.events[k] = true
	s.inserts = append(s.inserts, *event)
	return true, nil
}

func (s *fakeStore) jobFor(userID string) *models.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.ImportJob
	for _, j := range s.jobs {
		if j.UserID != userID {
			continue
		}
		if latest == nil || j.StartedAt.After(latest.StartedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil
	}
	copied := *latest
	return &copied
}

// fakeClient serves a scripted sequence of pages keyed by cursor.
type fakeClient struct {
	mu      stdsync.Mutex
	pages   map[string]*Page
	errs    map[string]error
	fetches []string
	afters  []time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{pages: make(map[string]*Page), errs: make(map[string]error)}
}

func (c *fakeClient) FetchEvents(_ context.Context, _, cursor string, after time.Time) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches = append(c.fetches, cursor)
	c.afters = append(c.afters, after)
	if err, ok := c.errs[cursor]; ok {
		return nil, err
	}
	page, ok := c.pages[cursor]
	if !ok {
		return &Page{}, nil
	}
	return page, nil
}

type fakeInvalidator struct {
	mu    stdsync.Mutex
	users []string
}

func (f *fakeInvalidator) InvalidateUser(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type openGate struct{}

func (openGate) CanMutate() bool { return true }

type closedGate struct{}

func (closedGate) CanMutate() bool { return false }

func playEvent(trackID, artistID string, playedAt time.Time) models.ListeningEvent {
	return models.ListeningEvent{
		TrackID:    trackID,
		AlbumID:    "album-" + trackID,
		ArtistIDs:  []string{artistID},
		DurationMs: 200000,
		PlayedAt:   playedAt,
	}
}

func TestManager_SyncWalksAllPages(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	inval := &fakeInvalidator{}
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	client.pages[""] = &Page{
		Events:     []models.ListeningEvent{playEvent("t1", "a1", base), playEvent("t2", "a1", base.Add(time.Hour))},
		NextCursor: "c1",
		HasMore:    true,
	}
	client.pages["c1"] = &Page{
		Events:     []models.ListeningEvent{playEvent("t3", "a2", base.Add(2 * time.Hour))},
		NextCursor: "c2",
		HasMore:    false,
	}

	m := NewManager(store, client, inval, openGate{})
	if err := m.Sync(context.Background(), "user-1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	job := store.jobFor("user-1")
	if job.State != models.JobStateDone {
		t.Errorf("Expected done job, got %s", job.State)
	}
	if job.Imported != 3 {
		t.Errorf("Expected 3 imported, got %d", job.Imported)
	}
	if job.Cursor != "c2" {
		t.Errorf("Expected final cursor c2, got %q", job.Cursor)
	}
	if inval.count() != 1 {
		t.Errorf("Expected one cache invalidation, got %d", inval.count())
	}
	if len(client.fetches) != 2 {
		t.Errorf("Expected 2 page fetches, got %d", len(client.fetches))
	}
}

func TestManager_SyncIsIdempotent(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	inval := &fakeInvalidator{}
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	client.pages[""] = &Page{
		Events: []models.ListeningEvent{playEvent("t1", "a1", base)},
	}

	m := NewManager(store, client, inval, openGate{})
	ctx := context.Background()
	if err := m.Sync(ctx, "user-1"); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	if err := m.Sync(ctx, "user-1"); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}

	if len(store.inserts) != 1 {
		t.Errorf("Expected a single stored event after re-import, got %d", len(store.inserts))
	}
	job := store.jobFor("user-1")
	if job.Imported != 0 {
		t.Errorf("Expected second job to import nothing, got %d", job.Imported)
	}
	// No history change, so the cache stays warm.
	if inval.count() != 1 {
		t.Errorf("Expected one invalidation total, got %d", inval.count())
	}
}

func TestManager_MalformedRecordsAreCountedNotFatal(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	missingTrack := playEvent("", "a1", base)
	missingArtist := playEvent("t2", "a1", base.Add(time.Hour))
	missingArtist.ArtistIDs = nil
	noTimestamp := playEvent("t3", "a1", time.Time{})

	client.pages[""] = &Page{
		Events: []models.ListeningEvent{
			missingTrack,
			missingArtist,
			noTimestamp,
			playEvent("t4", "a1", base.Add(2 * time.Hour)),
		},
	}

	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	if err := m.Sync(context.Background(), "user-1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	job := store.jobFor("user-1")
	if job.State != models.JobStateDone {
		t.Errorf("Expected done despite malformed records, got %s", job.State)
	}
	if job.Imported != 1 {
		t.Errorf("Expected 1 imported, got %d", job.Imported)
	}
	if job.Skipped != 3 {
		t.Errorf("Expected 3 skipped, got %d", job.Skipped)
	}
}

func TestManager_EventsInsertedOldestFirst(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	// Service reports newest first; storage order must be ascending.
	client.pages[""] = &Page{
		Events: []models.ListeningEvent{
			playEvent("t3", "a1", base.Add(2*time.Hour)),
			playEvent("t1", "a1", base),
			playEvent("t2", "a1", base.Add(time.Hour)),
		},
	}

	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	if err := m.Sync(context.Background(), "user-1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	for i := 1; i < len(store.inserts); i++ {
		if store.inserts[i].PlayedAt.Before(store.inserts[i-1].PlayedAt) {
			t.Fatalf("Events inserted out of order: %v after %v",
				store.inserts[i].PlayedAt, store.inserts[i-1].PlayedAt)
		}
	}
}

func TestManager_RateLimitFailsJobAndKeepsCursor(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	client.pages[""] = &Page{
		Events:     []models.ListeningEvent{playEvent("t1", "a1", base)},
		NextCursor: "c1",
		HasMore:    true,
	}
	client.errs["c1"] = models.ErrRateLimited

	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	err := m.Sync(context.Background(), "user-1")
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}

	job := store.jobFor("user-1")
	if job.State != models.JobStateFailed {
		t.Errorf("Expected failed job, got %s", job.State)
	}
	if job.Cursor != "c1" {
		t.Errorf("Expected committed cursor c1 to survive, got %q", job.Cursor)
	}

	// The retry resumes from the committed cursor, not from scratch.
	delete(client.errs, "c1")
	client.pages["c1"] = &Page{Events: []models.ListeningEvent{playEvent("t2", "a1", base.Add(time.Hour))}}
	if err := m.Sync(context.Background(), "user-1"); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	last := client.fetches[len(client.fetches)-1]
	if last != "c1" {
		t.Errorf("Expected retry to fetch from c1, got %q", last)
	}
}

func TestManager_SecondClaimRejected(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, newFakeClient(), &fakeInvalidator{}, openGate{})
	ctx := context.Background()

	if _, err := store.TryStartJob(ctx, "user-1", "", models.JobSourceAPI); err != nil {
		t.Fatalf("Seeding running job failed: %v", err)
	}

	if err := m.Sync(ctx, "user-1"); !errors.Is(err, models.ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestManager_OfflineModeBlocksImports(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, newFakeClient(), &fakeInvalidator{}, closedGate{})

	if err := m.Sync(context.Background(), "user-1"); !errors.Is(err, models.ErrMutationDisabled) {
		t.Errorf("Expected ErrMutationDisabled, got %v", err)
	}
	if store.jobFor("user-1") != nil {
		t.Error("Expected no job recorded in offline mode")
	}
}

func TestManager_ResumeOrphaned(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	if _, err := store.TryStartJob(ctx, "user-1", "c5", models.JobSourceAPI); err != nil {
		t.Fatalf("Seeding running job failed: %v", err)
	}

	m := NewManager(store, newFakeClient(), &fakeInvalidator{}, openGate{})
	if err := m.ResumeOrphaned(ctx); err != nil {
		t.Fatalf("ResumeOrphaned failed: %v", err)
	}

	job := store.jobFor("user-1")
	if job.State != models.JobStateFailed {
		t.Errorf("Expected orphan marked failed, got %s", job.State)
	}
	if job.Cursor != "c5" {
		t.Errorf("Expected orphan cursor preserved, got %q", job.Cursor)
	}
}

func TestManager_FileCursorNeverSeedsAPIFetch(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	ctx := context.Background()

	// A finished file import leaves a record-count cursor behind. It is an
	// offset into one uploaded file, not a service pagination token.
	fileJob, err := store.TryStartJob(ctx, "user-1", "", models.JobSourceFile)
	if err != nil {
		t.Fatalf("Seeding file job failed: %v", err)
	}
	if err := store.CommitJobProgress(ctx, fileJob.ID, "1234", 1234, 0); err != nil {
		t.Fatalf("Committing file job failed: %v", err)
	}
	if err := store.FinishJob(ctx, fileJob.ID, models.JobStateDone, ""); err != nil {
		t.Fatalf("Finishing file job failed: %v", err)
	}

	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	if err := m.Sync(ctx, "user-1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if client.fetches[0] != "" {
		t.Errorf("Expected first API fetch without a cursor, got %q", client.fetches[0])
	}
}

func TestManager_FirstFetchBoundedByStoredHistory(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	ctx := context.Background()
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

	// History exists but no job ever committed a cursor, as after a crash
	// between the first page's inserts and its cursor commit.
	stored := playEvent("t1", "a1", base)
	stored.UserID = "user-1"
	if _, err := store.InsertListeningEvent(ctx, &stored); err != nil {
		t.Fatalf("Seeding event failed: %v", err)
	}

	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	if err := m.Sync(ctx, "user-1"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(client.afters) == 0 || !client.afters[0].Equal(base) {
		t.Errorf("Expected first fetch bounded by stored max %v, got %v", base, client.afters)
	}

	// With a committed cursor the bound does not apply.
	job, err := store.TryStartJob(ctx, "user-2", "", models.JobSourceAPI)
	if err != nil {
		t.Fatalf("Seeding job failed: %v", err)
	}
	if err := store.CommitJobProgress(ctx, job.ID, "c9", 0, 0); err != nil {
		t.Fatalf("Committing job failed: %v", err)
	}
	if err := store.FinishJob(ctx, job.ID, models.JobStateDone, ""); err != nil {
		t.Fatalf("Finishing job failed: %v", err)
	}
	if err := m.Sync(ctx, "user-2"); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	last := len(client.afters) - 1
	if client.fetches[last] != "c9" {
		t.Errorf("Expected fetch from committed cursor c9, got %q", client.fetches[last])
	}
	if !client.afters[last].IsZero() {
		t.Errorf("Expected no time bound alongside a cursor, got %v", client.afters[last])
	}
}

func TestManager_ResumedRunConvergesToUninterrupted(t *testing.T) {
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	script := func(c *fakeClient) {
		c.pages[""] = &Page{
			Events:     []models.ListeningEvent{playEvent("t1", "a1", base), playEvent("t2", "a1", base.Add(time.Hour))},
			NextCursor: "c1",
			HasMore:    true,
		}
		c.pages["c1"] = &Page{
			Events:     []models.ListeningEvent{playEvent("t3", "a2", base.Add(2 * time.Hour))},
			NextCursor: "c2",
			HasMore:    true,
		}
		c.pages["c2"] = &Page{
			Events: []models.ListeningEvent{playEvent("t4", "a2", base.Add(3 * time.Hour))},
		}
	}
	ctx := context.Background()

	// Reference: one uninterrupted walk.
	refStore := newFakeStore()
	refClient := newFakeClient()
	script(refClient)
	if err := NewManager(refStore, refClient, &fakeInvalidator{}, openGate{}).Sync(ctx, "user-1"); err != nil {
		t.Fatalf("Uninterrupted sync failed: %v", err)
	}

	// Interrupted: the walk dies after committing c1, then a retry resumes.
	store := newFakeStore()
	client := newFakeClient()
	script(client)
	client.errs["c1"] = errors.New("connection reset")
	m := NewManager(store, client, &fakeInvalidator{}, openGate{})
	if err := m.Sync(ctx, "user-1"); err == nil {
		t.Fatal("Expected interrupted sync to fail")
	}
	delete(client.errs, "c1")
	if err := m.Sync(ctx, "user-1"); err != nil {
		t.Fatalf("Resumed sync failed: %v", err)
	}

	if len(store.events) != len(refStore.events) {
		t.Fatalf("Resumed run stored %d events, uninterrupted stored %d", len(store.events), len(refStore.events))
	}
	for k := range refStore.events {
		if !store.events[k] {
			t.Errorf("Resumed run is missing event %s", k)
		}
	}
}

func TestValidateEvent(t *testing.T) {
	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	good := playEvent("t1", "a1", base)
	if err := validateEvent(&good); err != nil {
		t.Errorf("Expected valid event, got %v", err)
	}

	negative := playEvent("t1", "a1", base)
	negative.DurationMs = -1
	if err := validateEvent(&negative); !errors.Is(err, models.ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for negative duration, got %v", err)
	}

	emptyArtist := playEvent("t1", "", base)
	if err := validateEvent(&emptyArtist); !errors.Is(err, models.ErrMalformedRecord) {
		t.Errorf("Expected ErrMalformedRecord for empty artist id, got %v", err)
	}
}
