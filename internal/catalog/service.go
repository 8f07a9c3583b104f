package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/cache"
	"mcpgate/internal/connection"
	"mcpgate/internal/recovery"
	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
)

// DefaultFetchTimeout bounds a full catalog fetch from a server.
const DefaultFetchTimeout = 60 * time.Second

// ErrNotAuthorized is returned when a catalog fetch is attempted for a
// server whose authorization has not been completed.
var ErrNotAuthorized = errors.New("server is not authorized")

// Deauthorizer moves a server back to the required state after the server
// rejected its token.
type Deauthorizer interface {
	TransitionToRequired(ctx context.Context, serverID, userID string) error
}

// ServerInfo is the normalized catalog of one server.
type ServerInfo struct {
	ServerID     string                 `json:"serverId"`
	ServerName   string                 `json:"serverName"`
	ServerURL    string                 `json:"serverUrl"`
	Tools        []Entry                `json:"tools"`
	Resources    []cache.Resource       `json:"resources"`
	Prompts      []mcp.Prompt           `json:"prompts"`
	Capabilities mcp.ServerCapabilities `json:"capabilities"`
	CachedAt     time.Time              `json:"cachedAt"`
	FromCache    bool                   `json:"fromCache"`
}

// ServiceConfig holds the collaborators of a Service.
type ServiceConfig struct {
	Store        store.ServerStore
	Cache        *cache.DualCache
	Connections  *connection.Manager
	Auth         Deauthorizer
	Registry     *Registry
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Service builds server catalogs, preferring the capability cache over a
// live connection.
type Service struct {
	store        store.ServerStore
	cache        *cache.DualCache
	connections  *connection.Manager
	auth         Deauthorizer
	registry     *Registry
	fetchTimeout time.Duration
	now          func() time.Time
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:        cfg.Store,
		cache:        cfg.Cache,
		connections:  cfg.Connections,
		auth:         cfg.Auth,
		registry:     cfg.Registry,
		fetchTimeout: cfg.FetchTimeout,
		now:          cfg.Now,
	}
	if s.connections == nil {
		s.connections = connection.NewManager()
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = DefaultFetchTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Registry returns the tool registry fed by this service.
func (s *Service) Registry() *Registry {
	return s.registry
}

// GetServerInfo returns the catalog of a server. A capability cache hit
// opens no connection. On a miss the server must be authorized; a 401 while
// fetching moves it back to required and the returned error wraps
// connection.ErrOAuthRequired.
func (s *Service) GetServerInfo(ctx context.Context, serverID, userID string) (*ServerInfo, error) {
	rec, err := s.store.Get(ctx, serverID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load server %s: %w", serverID, err)
	}

	if entry := s.cache.GetServerTools(ctx, serverID); entry != nil {
		logging.Debug("Catalog", "Capability cache hit for %s", serverID)
		return s.build(rec, entry, true), nil
	}

	if status := rec.Status(); status != store.AuthStatusAuthorized {
		return nil, fmt.Errorf("%w: server %s is %s", ErrNotAuthorized, serverID, status)
	}

	entry, err := s.fetch(ctx, rec)
	if err != nil {
		return nil, s.handleFetchError(ctx, rec, err)
	}

	if err := s.cache.CacheServerTools(ctx, serverID, *entry); err != nil {
		logging.Warn("Catalog", "Failed to cache catalog for %s: %v", serverID, err)
	}
	return s.build(rec, entry, false), nil
}

// Refresh drops the cached catalog of a server and fetches it again.
func (s *Service) Refresh(ctx context.Context, serverID, userID string) (*ServerInfo, error) {
	if err := s.cache.InvalidateServer(ctx, serverID); err != nil {
		logging.Warn("Catalog", "Failed to invalidate catalog for %s: %v", serverID, err)
	}
	return s.GetServerInfo(ctx, serverID, userID)
}

func (s *Service) fetch(ctx context.Context, rec *store.ServerRecord) (*cache.CapabilityEntry, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	session, err := s.connections.Connect(ctx, rec.ID, rec.URL, rec.AccessToken)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logging.Debug("Catalog", "Closing session for %s: %v", rec.ID, err)
		}
	}()

	tools, err := session.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	resources, err := session.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	prompts, err := session.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}

	var capabilities mcp.ServerCapabilities
	if init := session.InitializeResult(); init != nil {
		capabilities = init.Capabilities
	}

	logging.Info("Catalog", "Fetched catalog for %s: %d tools, %d resources, %d prompts",
		rec.ID, len(tools), len(resources), len(prompts))

	return &cache.CapabilityEntry{
		Tools:        tools,
		Resources:    StripResources(resources),
		Prompts:      prompts,
		Capabilities: capabilities,
		CachedAt:     s.now(),
		ServerURL:    rec.URL,
	}, nil
}

func (s *Service) handleFetchError(ctx context.Context, rec *store.ServerRecord, err error) error {
	if errors.Is(err, connection.ErrOAuthRequired) {
		logging.Info("Catalog", "Server %s rejected its token, authorization required", rec.ID)
		if s.auth != nil {
			if terr := s.auth.TransitionToRequired(ctx, rec.ID, rec.UserID); terr != nil {
				logging.Error("Catalog", terr, "Failed to mark %s as requiring authorization", rec.ID)
			}
		}
		return fmt.Errorf("fetching catalog for %s: %w", rec.ID, err)
	}

	advice := recovery.Recommend(err, recovery.Context{ServerID: rec.ID, Operation: "catalog", Attempt: 1})
	logging.Warn("Catalog", "Fetching catalog for %s failed (%s: %s): %v", rec.ID, advice.Action, advice.Reason, err)
	return fmt.Errorf("fetching catalog for %s: %w", rec.ID, err)
}

// build normalizes a capability entry and rebuilds the server's registry
// mappings from it.
func (s *Service) build(rec *store.ServerRecord, entry *cache.CapabilityEntry, fromCache bool) *ServerInfo {
	name := rec.Name
	if name == "" {
		name = rec.ID
	}

	entries := s.registry.ReplaceServer(rec.ID, rec.UserID, name, normalizeTools(entry.Tools))

	resources := entry.Resources
	if resources == nil {
		resources = []cache.Resource{}
	}

	return &ServerInfo{
		ServerID:     rec.ID,
		ServerName:   name,
		ServerURL:    rec.URL,
		Tools:        entries,
		Resources:    resources,
		Prompts:      normalizePrompts(entry.Prompts),
		Capabilities: normalizeCapabilities(entry.Capabilities),
		CachedAt:     entry.CachedAt,
		FromCache:    fromCache,
	}
}
