// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapinsight/internal/assistant"
	"github.com/leapstack-labs/leapinsight/internal/dataset"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front of the assistant.
type Server struct {
	session      *assistant.Session
	sessionStore *sessions.CookieStore
	cache        *dataset.Cache
	dataDir      string
	addr         string
	maxQuery     int
	info         Info
	logger       *slog.Logger
}

// Config holds configuration for the server. Cache, when set, is
// invalidated as files under DataDir change.
type Config struct {
	Session        *assistant.Session
	Addr           string
	SessionSecret  string
	SecureCookies  bool
	Cache          *dataset.Cache
	DataDir        string
	MaxQueryLength int
	Info           Info
	Logger         *slog.Logger
}

// Info describes the service on /api/info.
type Info struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
}

// DefaultCapabilities lists what the assistant can analyse.
var DefaultCapabilities = []string{
	"Loan portfolio analysis",
	"Payment trend analysis",
	"Client behavior insights",
	"Arrears monitoring",
	"Loan manager performance",
	"Product type analysis",
}

// NewServer creates a server.
func NewServer(cfg Config) *Server {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.MaxAge(86400 * 30) // 30 days
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Secure = cfg.SecureCookies

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	info := cfg.Info
	if len(info.Capabilities) == 0 {
		info.Capabilities = DefaultCapabilities
	}
	return &Server{
		session:      cfg.Session,
		sessionStore: sessionStore,
		cache:        cfg.Cache,
		dataDir:      cfg.DataDir,
		addr:         cfg.Addr,
		maxQuery:     cfg.MaxQueryLength,
		info:         info,
		logger:       logger,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)
	h := NewHandlers(s.session, s.sessionStore, s.info, s.logger)
	if s.maxQuery > 0 {
		h.maxQueryLength = s.maxQuery
	}
	SetupRoutes(r, h)
	return r
}

// Serve starts the server and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", "addr", ln.Addr().String())

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.cache != nil && s.dataDir != "" {
		eg.Go(func() error {
			if err := s.cache.Watch(egctx, s.dataDir); err != nil {
				// Answers still work without invalidation.
				s.logger.Error("failed to watch data directory", "dir", s.dataDir, "error", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		return s.session.Registry().Run(egctx)
	})

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
