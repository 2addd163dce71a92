// Package api provides the HTTP surface for ConvoBridge.
//
// It exposes the Chatwoot webhook receiver and a health check. The
// webhook handler orchestrates metadata enrichment, the Dialogflow
// detect-intent call, and the resulting Chatwoot reply or escalation.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ConvoBridge/ConvoBridge/internal/chatwoot"
	"github.com/ConvoBridge/ConvoBridge/internal/dialogflow"
	"github.com/ConvoBridge/ConvoBridge/internal/keylock"
)

// Default server configuration.
const (
	DefaultAddr            = ":5000"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
)

// Server handles inbound webhook deliveries using the injected remote
// service clients. Both clients are interfaces so tests can substitute
// doubles for the two remote platforms.
type Server struct {
	addr     string
	helpdesk chatwoot.Service
	agent    dialogflow.Service
	locks    *keylock.Map
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// NewServer creates an API server wired to the given Chatwoot and
// Dialogflow clients.
func NewServer(helpdesk chatwoot.Service, agent dialogflow.Service, opts ...Option) *Server {
	s := &Server{
		addr:     DefaultAddr,
		helpdesk: helpdesk,
		agent:    agent,
		locks:    keylock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chatwoot-webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()
	slog.Info("Server.Run: ConvoBridge API running", "addr", s.addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
