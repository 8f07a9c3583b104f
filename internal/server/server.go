package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"mcpgate/internal/auth"
	"mcpgate/internal/cache"
	"mcpgate/internal/catalog"
	"mcpgate/internal/connection"
	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
)

// Authenticator is the part of auth.Manager the HTTP API drives.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context, serverID, userID string) (auth.Result, error)
	TransitionToRequired(ctx context.Context, serverID, userID string) error
	BeginAuthorization(ctx context.Context, serverID, userID string) (string, error)
	CompleteAuthorization(ctx context.Context, state, code string) (auth.Result, error)
	AuthorizeURL(serverID string) string
	LiveStatus(serverID string) *connection.Status
}

// Catalog is the part of catalog.Service the HTTP API drives.
type Catalog interface {
	GetServerInfo(ctx context.Context, serverID, userID string) (*catalog.ServerInfo, error)
	Refresh(ctx context.Context, serverID, userID string) (*catalog.ServerInfo, error)
	Registry() *catalog.Registry
}

// Config holds the listener settings.
type Config struct {
	Addr              string
	CallbackPath      string
	ReadHeaderTimeout time.Duration
}

// Deps are the components behind the API. Cache may be nil.
type Deps struct {
	Store   store.ServerStore
	Cache   *cache.DualCache
	Auth    Authenticator
	Catalog Catalog
}

// Server exposes server management and the OAuth browser flow over HTTP.
type Server struct {
	cfg     Config
	store   store.ServerStore
	cache   *cache.DualCache
	auth    Authenticator
	catalog Catalog

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server. It does not listen until Start.
func New(cfg Config, deps Deps) *Server {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = auth.DefaultCallbackPath
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		store:   deps.Store,
		cache:   deps.Cache,
		auth:    deps.Auth,
		catalog: deps.Catalog,
	}
}

// Handler returns the routed handler with request ids and access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /api/servers/{id}", requireUser(s.handleGetServer))
	mux.HandleFunc("PUT /api/servers/{id}", requireUser(s.handlePutServer))
	mux.HandleFunc("DELETE /api/servers/{id}", requireUser(s.handleDeleteServer))
	mux.HandleFunc("GET /api/servers/{id}/auth", requireUser(s.handleAuth))
	mux.HandleFunc("GET /api/servers/{id}/info", requireUser(s.handleInfo))
	mux.HandleFunc("GET /api/servers/{id}/connection", requireUser(s.handleConnection))
	mux.HandleFunc("POST /api/servers/{id}/reset", requireUser(s.handleReset))
	mux.HandleFunc("GET /api/tools", requireUser(s.handleListTools))
	mux.HandleFunc("GET /api/tools/{name}", requireUser(s.handleGetTool))

	mux.HandleFunc("GET /oauth/authorize", s.handleAuthorize)
	mux.HandleFunc("GET "+s.cfg.CallbackPath, s.handleCallback)

	return withRequestID(withAccessLog(mux))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	go func(hs *http.Server) {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP", err, "Server stopped unexpectedly")
		}
	}(s.httpServer)

	logging.Info("HTTP", "Listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}
