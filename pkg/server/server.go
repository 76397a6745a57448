// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server serves runs over HTTP.
//
// Routes:
//
//	GET    /healthz                 liveness
//	GET    /metrics                 Prometheus metrics, when enabled
//	GET    /runs                    stored runs, most recent first
//	POST   /runs                    start or continue a run
//	GET    /runs/{id}               full snapshot
//	DELETE /runs/{id}               forget a run
//	GET    /runs/{id}/todos         todo ledger
//	GET    /runs/{id}/files         file listing
//	GET    /runs/{id}/files/*       file content (offset, limit in lines)
//	GET    /runs/{id}/spans         captured trace spans, when debug tracing is on
//
// POST /runs streams Server-Sent Events when the request accepts
// text/event-stream or sets stream=true.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/config"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/observability"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/runner"
	"github.com/teddynote-lab/deep-agents-from-scratch/pkg/store"
)

// Options configures a Server.
type Options struct {
	Config config.ServerConfig

	// Runner executes POST /runs. It may be replaced with SetRunner.
	Runner *runner.Runner

	Store         store.Store
	Observability *observability.Manager
	Logger        *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg    config.ServerConfig
	store  store.Store
	obs    *observability.Manager
	logger *slog.Logger
	router chi.Router

	mu     sync.RWMutex
	runner *runner.Runner
	server *http.Server
	active map[string]bool
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observability == nil {
		opts.Observability = observability.NoopManager()
	}
	opts.Config.SetDefaults()

	s := &Server{
		cfg:    opts.Config,
		store:  opts.Store,
		obs:    opts.Observability,
		logger: opts.Logger,
		runner: opts.Runner,
	}
	s.router = s.routes()
	return s, nil
}

// SetRunner swaps the runner used by new runs. Runs in flight keep the
// runner they started with.
func (s *Server) SetRunner(r *runner.Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

func (s *Server) currentRunner() *runner.Runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runner
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.handleHealth)
	if h := s.obs.MetricsHandler(); h != nil {
		r.Method(http.MethodGet, s.obs.MetricsPath(), h)
	}

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Post("/", s.handleCreateRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Delete("/", s.handleDeleteRun)
			r.Get("/todos", s.handleTodos)
			r.Get("/files", s.handleListFiles)
			r.Get("/files/*", s.handleReadFile)
			r.Get("/spans", s.handleSpans)
		})
	})
	return r
}

// loggingMiddleware does not wrap the ResponseWriter so SSE flushing
// keeps working.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

// Start listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("HTTP server starting", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}
