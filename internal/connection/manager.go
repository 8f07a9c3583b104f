package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/pkg/logging"
)

// State is the live health of a server as observed by this process.
type State string

const (
	StateConnected    State = "connected"
	StateUnauthorized State = "unauthorized"
	StateOffline      State = "offline"
	StateError        State = "error"
)

// Status is a point-in-time observation. It is never persisted.
type Status struct {
	State     State     `json:"state"`
	CheckedAt time.Time `json:"checkedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// Manager tracks live connection health per server for this process only.
// A fresh process knows nothing; LiveStatus returns nil until it has
// observed the server itself. Nothing here gates authentication.
type Manager struct {
	mu       sync.RWMutex
	statuses map[string]Status

	httpClient    *http.Client
	clientName    string
	clientVersion string
	now           func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used by sessions.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// WithClientInfo sets the implementation info sent during initialize.
func WithClientInfo(name, version string) Option {
	return func(m *Manager) {
		m.clientName = name
		m.clientVersion = version
	}
}

// WithNow sets the time source for CheckedAt.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		statuses:      make(map[string]Status),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		clientName:    "mcpgate",
		clientVersion: "dev",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LiveStatus returns the last observation for serverID, or nil if this
// process never probed it.
func (m *Manager) LiveStatus(serverID string) *Status {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.statuses[serverID]
	if !ok {
		return nil
	}
	return &s
}

// Record stores an observation. Safe to call on a nil Manager.
func (m *Manager) Record(serverID string, state State, lastErr error) {
	if m == nil {
		return
	}
	s := Status{State: state, CheckedAt: m.now()}
	if lastErr != nil {
		s.LastError = lastErr.Error()
	}

	m.mu.Lock()
	m.statuses[serverID] = s
	m.mu.Unlock()

	logging.Debug("ConnectionManager", "Server %s is %s", serverID, state)
}

// Forget drops any observation for serverID.
func (m *Manager) Forget(serverID string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.statuses, serverID)
	m.mu.Unlock()
}

// Connect opens a streamable HTTP session to url and performs the initialize
// handshake. A 401 is returned as *OAuthRequiredError.
func (m *Manager) Connect(ctx context.Context, serverID, url, accessToken string) (*Session, error) {
	var opts []transport.StreamableHTTPCOption
	if accessToken != "" {
		opts = append(opts, transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + accessToken,
		}))
	}
	if m.httpClient != nil {
		opts = append(opts, transport.WithHTTPBasicClient(m.httpClient))
	}

	mcpClient, err := client.NewStreamableHttpClient(url, opts...)
	if err != nil {
		m.Record(serverID, StateError, err)
		return nil, fmt.Errorf("failed to create StreamableHTTP client: %w", err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    m.clientName,
				Version: m.clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = mcpClient.Close()
		return nil, m.classify(serverID, url, "initialize", err)
	}

	m.Record(serverID, StateConnected, nil)
	logging.Debug("ConnectionManager", "Connected to %s (%s %s)", serverID,
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	return &Session{
		serverID: serverID,
		url:      url,
		client:   mcpClient,
		manager:  m,
		init:     initResult,
	}, nil
}

// classify records the live status implied by err and returns the error the
// caller should see.
func (m *Manager) classify(serverID, url, op string, err error) error {
	if authErr := asAuthRequired(serverID, url, err); authErr != nil {
		m.Record(serverID, StateUnauthorized, err)
		return authErr
	}
	if isTransportFailure(err) {
		m.Record(serverID, StateOffline, err)
	} else {
		m.Record(serverID, StateError, err)
	}
	return fmt.Errorf("%s failed for server %s: %w", op, serverID, err)
}
