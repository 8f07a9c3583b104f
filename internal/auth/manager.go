package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mcpgate/internal/cache"
	"mcpgate/internal/connection"
	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// DefaultCallbackPath is where the authorization server redirects back to.
const DefaultCallbackPath = "/oauth/callback"

// ManagerConfig holds the collaborators and tunables of a Manager.
type ManagerConfig struct {
	Store       store.ServerStore
	Cache       *cache.DualCache
	Verifiers   *cache.VerifierStore
	Validator   *Validator
	OAuthClient *oauth.Client
	Connections *connection.Manager

	// PublicURL is the externally reachable base URL of this service. It is
	// used to build authorize links and the OAuth redirect URI.
	PublicURL    string
	CallbackPath string

	ClientID          string
	AlternateClientID string
	Scopes            []string

	RefreshWindow  time.Duration
	RequestTimeout time.Duration
	AuthCacheTTL   time.Duration
	AuthCacheSize  int
	RefreshRate    rate.Limit
	RefreshBurst   int

	// ProbeUnknown makes servers in the unknown state get an unauthenticated
	// probe instead of being marked as requiring authorization outright.
	ProbeUnknown bool

	Now func() time.Time
}

// Manager owns the per-(server, user) authorization state machine. It is
// the only writer of ServerRecord auth fields, apart from the refresh
// persistence the Validator performs on its behalf.
type Manager struct {
	store       store.ServerStore
	cache       *cache.DualCache
	verifiers   *cache.VerifierStore
	validator   *Validator
	oauthClient *oauth.Client
	connections *connection.Manager

	authCache *authCache
	limiter   *refreshLimiter

	publicURL         string
	callbackPath      string
	clientID          string
	alternateClientID string
	scopes            []string
	refreshWindow     time.Duration
	requestTimeout    time.Duration
	probeUnknown      bool
	now               func() time.Time
}

// NewManager creates a Manager. Store and Cache are required.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = DefaultRefreshWindow
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = DefaultCallbackPath
	}
	if cfg.OAuthClient == nil {
		cfg.OAuthClient = oauth.NewClient(oauth.WithNow(cfg.Now))
	}
	if cfg.Validator == nil {
		cfg.Validator = NewValidator(ValidatorConfig{
			OAuthClient:       cfg.OAuthClient,
			Store:             cfg.Store,
			ClientID:          cfg.ClientID,
			AlternateClientID: cfg.AlternateClientID,
			RequestTimeout:    cfg.RequestTimeout,
			Now:               cfg.Now,
		})
	}

	return &Manager{
		store:             cfg.Store,
		cache:             cfg.Cache,
		verifiers:         cfg.Verifiers,
		validator:         cfg.Validator,
		oauthClient:       cfg.OAuthClient,
		connections:       cfg.Connections,
		authCache:         newAuthCache(cfg.AuthCacheTTL, cfg.AuthCacheSize, cfg.Now),
		limiter:           newRefreshLimiter(cfg.RefreshRate, cfg.RefreshBurst, cfg.Now),
		publicURL:         strings.TrimSuffix(cfg.PublicURL, "/"),
		callbackPath:      cfg.CallbackPath,
		clientID:          cfg.ClientID,
		alternateClientID: cfg.AlternateClientID,
		scopes:            cfg.Scopes,
		refreshWindow:     cfg.RefreshWindow,
		requestTimeout:    cfg.RequestTimeout,
		probeUnknown:      cfg.ProbeUnknown,
		now:               cfg.Now,
	}
}

// EnsureAuthenticated decides whether serverID can be used on behalf of
// userID right now, validating, refreshing or transitioning as needed.
//
// The error is non-nil only when the record does not exist
// (store.ErrNotFound) or the store fails; every other outcome, including
// unreachable servers, is reported through the Result.
func (m *Manager) EnsureAuthenticated(ctx context.Context, serverID, userID string) (Result, error) {
	rec, err := m.store.Get(ctx, serverID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load server %s: %w", serverID, err)
	}

	if rec.AuthStatus == store.AuthStatusAuthorized && m.authCache.authenticated(serverID, userID, rec.AccessToken) {
		return authenticatedResult(), nil
	}

	switch rec.AuthStatus {
	case store.AuthStatusAuthorized:
		return m.validateAndRefresh(ctx, rec)
	case store.AuthStatusRequired:
		return m.requiresAuth(serverID), nil
	case store.AuthStatusFailed:
		return failedResult(fmt.Sprintf("authorization for server %s failed; start authorization again to retry", serverID)), nil
	case store.AuthStatusUnknown:
		return m.detect(ctx, rec)
	default:
		logging.Warn("AuthManager", "Server %s has unrecognized auth status %q, treating as unknown", serverID, rec.AuthStatus)
		return m.detect(ctx, rec)
	}
}

func (m *Manager) validateAndRefresh(ctx context.Context, rec *store.ServerRecord) (Result, error) {
	if rec.AccessToken == "" {
		// Authorized without a token: an open server.
		m.authCache.put(rec.ID, rec.UserID, store.AuthStatusAuthorized, "")
		return authenticatedResult(), nil
	}

	if m.cache.IsTokenCacheValid(ctx, rec.ID, rec.AccessToken) {
		m.authCache.put(rec.ID, rec.UserID, store.AuthStatusAuthorized, rec.AccessToken)
		return authenticatedResult(), nil
	}

	if rec.RefreshToken != "" && m.validator.ShouldRefreshToken(rec.TokenExpiresAt, m.refreshWindow) {
		logging.Debug("AuthManager", "Token for server %s expires at %v, refreshing", rec.ID, rec.TokenExpiresAt)
		return m.refresh(ctx, rec)
	}

	valid, err := m.validator.Validate(ctx, rec.URL, rec.AccessToken)
	if err != nil {
		return m.unreachable(rec.ID, err), nil
	}
	if valid {
		m.connections.Record(rec.ID, connection.StateConnected, nil)
		m.markValidated(ctx, rec)
		return authenticatedResult(), nil
	}

	m.connections.Record(rec.ID, connection.StateUnauthorized, nil)
	if rec.RefreshToken != "" {
		return m.refresh(ctx, rec)
	}
	return m.toRequired(ctx, rec)
}

func (m *Manager) refresh(ctx context.Context, rec *store.ServerRecord) (Result, error) {
	if !m.limiter.allow(rec.ID) {
		logging.Warn("AuthManager", "Refresh for server %s throttled", rec.ID)
		return failedResult(fmt.Sprintf("token refresh for server %s is throttled; try again shortly", rec.ID)), nil
	}

	token, err := m.validator.Refresh(ctx, rec.ID, rec.UserID, rec)
	if err != nil {
		if errors.Is(err, ErrPersistFailed) {
			return Result{}, err
		}
		if oauth.IsTransportError(err) {
			return m.unreachable(rec.ID, err), nil
		}
		logging.Warn("AuthManager", "Refresh for server %s did not complete: %v", rec.ID, err)
		return failedResult(fmt.Sprintf("token refresh for server %s failed: %v", rec.ID, err)), nil
	}

	if token != nil {
		refreshed := rec.Clone()
		store.Update{
			AccessToken:    store.Ptr(token.AccessToken),
			RefreshToken:   store.Ptr(token.RefreshToken),
			ClientID:       store.Ptr(token.ClientID),
			TokenExpiresAt: expiryPtr(token.ExpiresAt),
			ClearExpiry:    token.ExpiresAt.IsZero(),
		}.Apply(refreshed)
		m.markValidated(ctx, refreshed)
		return authenticatedResult(), nil
	}

	// The grant was rejected. Another instance may have won a concurrent
	// refresh and rotated the token, which invalidates ours.
	current, err := m.store.Get(ctx, rec.ID, rec.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to reload server %s: %w", rec.ID, err)
	}
	if current.AuthStatus == store.AuthStatusAuthorized && current.AccessToken != "" && current.AccessToken != rec.AccessToken {
		logging.Info("AuthManager", "Token for server %s was rotated concurrently, validating the new one", rec.ID)
		valid, err := m.validator.Validate(ctx, current.URL, current.AccessToken)
		if err != nil {
			return m.unreachable(rec.ID, err), nil
		}
		if valid {
			m.connections.Record(rec.ID, connection.StateConnected, nil)
			m.markValidated(ctx, current)
			return authenticatedResult(), nil
		}
		return m.toRequired(ctx, current)
	}

	return m.toRequired(ctx, rec)
}

// detect resolves the unknown state. Without probing, the conservative
// answer is that authorization is required.
func (m *Manager) detect(ctx context.Context, rec *store.ServerRecord) (Result, error) {
	if !m.probeUnknown {
		logging.Info("AuthManager", "Server %s has unknown auth status, assuming authorization is required", rec.ID)
		return m.toRequired(ctx, rec)
	}

	probe, err := m.validator.Probe(ctx, rec.URL)
	if err != nil {
		return m.unreachable(rec.ID, err), nil
	}

	switch {
	case probe.RequiresAuth:
		return m.toRequired(ctx, rec)
	case probe.StatusCode >= 200 && probe.StatusCode < 300:
		err := m.store.Update(ctx, rec.ID, rec.UserID, store.Update{
			AuthStatus:  store.Ptr(store.AuthStatusAuthorized),
			Enabled:     store.Ptr(true),
			ClearTokens: true,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to mark server %s as open: %w", rec.ID, err)
		}
		logging.Info("AuthManager", "Server %s accepts unauthenticated requests", rec.ID)
		m.connections.Record(rec.ID, connection.StateConnected, nil)
		m.authCache.put(rec.ID, rec.UserID, store.AuthStatusAuthorized, "")
		return authenticatedResult(), nil
	default:
		logging.Info("AuthManager", "Probe of server %s returned %d, assuming authorization is required",
			rec.ID, probe.StatusCode)
		return m.toRequired(ctx, rec)
	}
}

// unreachable reports a transport failure without touching the record.
func (m *Manager) unreachable(serverID string, err error) Result {
	m.connections.Record(serverID, connection.StateOffline, err)
	logging.Warn("AuthManager", "Server %s unreachable, keeping stored credentials: %v", serverID, err)
	return failedResult(fmt.Sprintf("server %s is unreachable: %v", serverID, err))
}

func (m *Manager) toRequired(ctx context.Context, rec *store.ServerRecord) (Result, error) {
	if err := m.TransitionToRequired(ctx, rec.ID, rec.UserID); err != nil {
		return Result{}, err
	}
	return m.requiresAuth(rec.ID), nil
}

func (m *Manager) requiresAuth(serverID string) Result {
	return Result{Status: StatusRequiresAuth, AuthURL: m.AuthorizeURL(serverID)}
}

// AuthorizeURL returns the local route that starts authorization for
// serverID, or "" when no public URL is configured.
func (m *Manager) AuthorizeURL(serverID string) string {
	if m.publicURL == "" {
		return ""
	}
	return m.publicURL + "/oauth/authorize?server_id=" + url.QueryEscape(serverID)
}

// markValidated records rec's current token as valid in both cache tiers.
func (m *Manager) markValidated(ctx context.Context, rec *store.ServerRecord) {
	err := m.cache.CacheValidatedToken(ctx, rec.ID, cache.TokenEntry{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    rec.TokenExpiresAt,
		ClientID:     rec.ClientID,
		ServerURL:    rec.URL,
		ValidatedAt:  m.now(),
	})
	if err != nil {
		logging.Warn("AuthManager", "Failed to cache validated token for server %s: %v", rec.ID, err)
	}
	m.authCache.put(rec.ID, rec.UserID, store.AuthStatusAuthorized, rec.AccessToken)
}

// invalidate drops every cached fact about serverID.
func (m *Manager) invalidate(ctx context.Context, serverID, userID string) {
	m.authCache.remove(serverID, userID)
	if err := m.cache.InvalidateToken(ctx, serverID); err != nil {
		logging.Warn("AuthManager", "Failed to invalidate token cache for server %s: %v", serverID, err)
	}
	if err := m.cache.InvalidateServer(ctx, serverID); err != nil {
		logging.Warn("AuthManager", "Failed to invalidate capability cache for server %s: %v", serverID, err)
	}
}

// TransitionToRequired clears the stored tokens, disables the server and
// marks it as requiring user authorization.
func (m *Manager) TransitionToRequired(ctx context.Context, serverID, userID string) error {
	err := m.store.Update(ctx, serverID, userID, store.Update{
		AuthStatus:  store.Ptr(store.AuthStatusRequired),
		Enabled:     store.Ptr(false),
		ClearTokens: true,
	})
	if err != nil {
		return fmt.Errorf("failed to mark server %s as requiring authorization: %w", serverID, err)
	}
	m.invalidate(ctx, serverID, userID)
	logging.Info("AuthManager", "Server %s now requires authorization for user %s", serverID, userID)
	return nil
}

// TransitionToAuthorized stores token for the server and enables it.
// ExpiresAt is derived from ExpiresIn when the token does not carry one.
func (m *Manager) TransitionToAuthorized(ctx context.Context, serverID, userID string, token *oauth.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("cannot authorize server %s without an access token", serverID)
	}
	token.SetExpiry(m.now())

	update := store.Update{
		AuthStatus:     store.Ptr(store.AuthStatusAuthorized),
		Enabled:        store.Ptr(true),
		AccessToken:    store.Ptr(token.AccessToken),
		RefreshToken:   store.Ptr(token.RefreshToken),
		TokenExpiresAt: expiryPtr(token.ExpiresAt),
		ClearExpiry:    token.ExpiresAt.IsZero(),
	}
	if token.ClientID != "" {
		update.ClientID = store.Ptr(token.ClientID)
	}
	if err := m.store.Update(ctx, serverID, userID, update); err != nil {
		return fmt.Errorf("failed to store authorization for server %s: %w", serverID, err)
	}

	rec, err := m.store.Get(ctx, serverID, userID)
	if err != nil {
		return fmt.Errorf("failed to reload server %s: %w", serverID, err)
	}
	m.markValidated(ctx, rec)

	logging.Info("AuthManager", "Server %s authorized for user %s (token %s)",
		serverID, userID, NewRedactedToken(token.AccessToken))
	return nil
}

// TransitionToFailed clears the stored tokens and marks the server failed.
// Enabled is left as it was.
func (m *Manager) TransitionToFailed(ctx context.Context, serverID, userID string, cause error) error {
	err := m.store.Update(ctx, serverID, userID, store.Update{
		AuthStatus:  store.Ptr(store.AuthStatusFailed),
		ClearTokens: true,
	})
	if err != nil {
		return fmt.Errorf("failed to mark server %s as failed: %w", serverID, err)
	}
	m.invalidate(ctx, serverID, userID)
	logging.Error("AuthManager", cause, "Authorization for server %s failed for user %s", serverID, userID)
	return nil
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
