// Package api exposes the Bookline HTTP surface: running engine turns,
// inspecting session state, managing tenant flow configuration, and reading
// completed bookings.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/voicelane/bookline/internal/flow"
	"github.com/voicelane/bookline/internal/intent"
	"github.com/voicelane/bookline/internal/messaging"
	"github.com/voicelane/bookline/internal/store"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// Opts holds configuration for the API server.
type Opts struct {
	Addr       string
	Dedup      store.DedupRepo
	Notifier   *messaging.OutboxNotifier
	Classifier intent.Classifier
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDedup enables inbound turn deduplication for webhook retries.
func WithDedup(d store.DedupRepo) Option {
	return func(o *Opts) { o.Dedup = d }
}

// WithNotifier enables escalation alerts through the outbox.
func WithNotifier(n *messaging.OutboxNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithIntentClassifier gates fresh sessions on booking intent.
func WithIntentClassifier(c intent.Classifier) Option {
	return func(o *Opts) { o.Classifier = c }
}

// Server hosts the Bookline HTTP API.
type Server struct {
	addr       string
	engine     *flow.Engine
	resolver   flow.Resolver
	store      store.Store
	dedup      store.DedupRepo
	notifier   *messaging.OutboxNotifier
	classifier intent.Classifier
	httpServer *http.Server
}

// NewServer creates an API server over the given engine, resolver, and store.
func NewServer(engine *flow.Engine, resolver flow.Resolver, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		addr:       cfg.Addr,
		engine:     engine,
		resolver:   resolver,
		store:      st,
		dedup:      cfg.Dedup,
		notifier:   cfg.Notifier,
		classifier: cfg.Classifier,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions/{id}/turn", s.turnHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /bookings", s.listBookingsHandler)
	mux.HandleFunc("GET /bookings/{id}", s.getBookingHandler)
	mux.HandleFunc("PATCH /bookings/{id}/status", s.updateBookingStatusHandler)
	mux.HandleFunc("PUT /tenants/{id}/config", s.putTenantConfigHandler)
	mux.HandleFunc("GET /tenants/{id}/config", s.getTenantConfigHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	}
}
