// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/soundledger/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingService runs until canceled and counts its starts.
type blockingService struct {
	starts atomic.Int64
}

func (s *blockingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_ServesAndStops(t *testing.T) {
	tree := NewTree(testLogger(), DefaultTreeConfig())
	worker := &blockingService{}
	tree.AddWorker(worker)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.After(2 * time.Second)
	for worker.starts.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Worker never started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Tree did not stop on cancel")
	}
}

func TestTree_DefaultsApplied(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("Expected default threshold 5.0, got %f", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", tree.config.ShutdownTimeout)
	}
}

func TestHTTPService_GracefulShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	svc := NewHTTPService(&config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0, // Ephemeral; only start/stop behavior is under test
		ShutdownTimeout: time.Second,
	}, handler)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("HTTP service did not stop on cancel")
	}
}
