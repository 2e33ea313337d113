// SoundLedger - Listening History Sync and Statistics for Music Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/soundledger

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/tomtom215/soundledger/internal/config"
	"github.com/tomtom215/soundledger/internal/logging"
)

// HTTPService runs the API server as a suture.Service with graceful
// shutdown on context cancellation.
type HTTPService struct {
	cfg     *config.ServerConfig
	handler http.Handler
}

func NewHTTPService(cfg *config.ServerConfig, handler http.Handler) *HTTPService {
	return &HTTPService{cfg: cfg, handler: handler}
}

// Serve listens until ctx is canceled, then drains within the configured
// shutdown timeout. A listen failure returns the error so the supervisor
// restarts the service with backoff.
func (s *HTTPService) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown incomplete, closing")
			_ = srv.Close()
		}
		logging.Info().Msg("HTTP server stopped")
		return ctx.Err()
	}
}

func (s *HTTPService) String() string {
	return "http-server"
}
