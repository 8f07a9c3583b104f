package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/internal/store"
	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

const (
	// DefaultRequestTimeout bounds every validation, discovery and token request.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRefreshWindow is how long before expiry a token is refreshed proactively.
	DefaultRefreshWindow = 10 * time.Minute

	maxDrainBytes = 64 << 10
)

// ErrPersistFailed marks a refresh that succeeded at the authorization
// server but could not be written to the server store.
var ErrPersistFailed = errors.New("failed to persist refreshed token")

// ValidatorConfig configures a Validator.
type ValidatorConfig struct {
	HTTPClient        *http.Client
	OAuthClient       *oauth.Client
	Store             store.ServerStore
	ClientID          string
	AlternateClientID string
	RequestTimeout    time.Duration
	ClientName        string
	ClientVersion     string
	Now               func() time.Time
}

// Validator checks tokens against capability servers and refreshes them
// against the server's authorization server.
type Validator struct {
	httpClient        *http.Client
	oauthClient       *oauth.Client
	store             store.ServerStore
	clientID          string
	alternateClientID string
	requestTimeout    time.Duration
	clientInfo        mcp.Implementation
	now               func() time.Time
}

// ProbeResult describes how a server answered an unauthenticated request.
type ProbeResult struct {
	StatusCode   int
	RequiresAuth bool
	Challenge    *oauth.AuthChallenge
}

// NewValidator creates a Validator, filling unset fields with defaults.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.OAuthClient == nil {
		cfg.OAuthClient = oauth.NewClient(oauth.WithHTTPClient(cfg.HTTPClient), oauth.WithNow(cfg.Now))
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "mcpgate"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	return &Validator{
		httpClient:        cfg.HTTPClient,
		oauthClient:       cfg.OAuthClient,
		store:             cfg.Store,
		clientID:          cfg.ClientID,
		alternateClientID: cfg.AlternateClientID,
		requestTimeout:    cfg.RequestTimeout,
		clientInfo:        mcp.Implementation{Name: cfg.ClientName, Version: cfg.ClientVersion},
		now:               cfg.Now,
	}
}

// detached returns a context that survives caller cancellation but is still
// bounded, so a disconnecting client never leaves a refresh half-persisted.
func (v *Validator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), v.requestTimeout)
}

// Validate sends an authenticated initialize request to serverURL.
// Any 2xx means the token is valid; every other status means it is not.
// The error is non-nil only when no HTTP response was received.
func (v *Validator) Validate(ctx context.Context, serverURL, accessToken string) (bool, error) {
	ctx, cancel := v.detached(ctx)
	defer cancel()

	resp, err := v.postInitialize(ctx, serverURL, accessToken)
	if err != nil {
		var transportErr *oauth.TransportError
		if errors.As(err, &transportErr) {
			return false, err
		}
		logging.Warn("TokenValidator", "Cannot build validation request for %s: %v", serverURL, err)
		return false, nil
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		logging.Debug("TokenValidator", "Token %s rejected by %s with status %d",
			NewRedactedToken(accessToken), serverURL, resp.StatusCode)
		return false, nil
	default:
		logging.Warn("TokenValidator", "Unexpected status %d from %s, treating token as invalid",
			resp.StatusCode, serverURL)
		return false, nil
	}
}

// Probe sends an unauthenticated initialize request and reports whether the
// server demands authorization.
func (v *Validator) Probe(ctx context.Context, serverURL string) (*ProbeResult, error) {
	ctx, cancel := v.detached(ctx)
	defer cancel()

	resp, err := v.postInitialize(ctx, serverURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	result := &ProbeResult{
		StatusCode:   resp.StatusCode,
		RequiresAuth: resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden,
		Challenge:    oauth.ParseWWWAuthenticateFromResponse(resp),
	}
	logging.Debug("TokenValidator", "Probe of %s returned %d (requiresAuth=%t)",
		serverURL, result.StatusCode, result.RequiresAuth)
	return result, nil
}

func (v *Validator) postInitialize(ctx context.Context, serverURL, accessToken string) (*http.Response, error) {
	body, err := json.Marshal(mcp.JSONRPCRequest{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      mcp.NewRequestId(int64(1)),
		Request: mcp.Request{Method: string(mcp.MethodInitialize)},
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo:      v.clientInfo,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode initialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, &oauth.TransportError{Op: "POST", URL: serverURL, Err: err}
	}
	return resp, nil
}

// ShouldRefreshToken reports whether a token expiring at expiresAt is inside
// the refresh window. Tokens without an expiry are never refreshed proactively.
func (v *Validator) ShouldRefreshToken(expiresAt *time.Time, window time.Duration) bool {
	if expiresAt == nil || expiresAt.IsZero() {
		return false
	}
	return !v.now().Add(window).Before(*expiresAt)
}

// Refresh exchanges the record's refresh token for a new access token and
// persists the result before returning it.
//
// It returns (nil, nil) when the refresh cannot succeed by retrying: no
// refresh token, no discoverable token endpoint, or a grant the authorization
// server rejected. A non-nil error means the outcome is unknown (network,
// server error) or the store write failed, and the caller must not clear
// the record's tokens because of it.
func (v *Validator) Refresh(ctx context.Context, serverID, userID string, rec *store.ServerRecord) (*oauth.Token, error) {
	if rec == nil || rec.RefreshToken == "" {
		return nil, nil
	}

	ctx, cancel := v.detached(ctx)
	defer cancel()

	metadata, err := v.oauthClient.DiscoverForServer(ctx, rec.URL)
	if err != nil {
		if oauth.IsTransportError(err) {
			return nil, fmt.Errorf("authorization server discovery for %s failed: %w", serverID, err)
		}
		logging.Info("TokenValidator", "No token endpoint discoverable for server %s: %v", serverID, err)
		return nil, nil
	}

	token, err := v.requestWithFallback(rec.ClientID, serverID, func(clientID string) (*oauth.Token, error) {
		return v.oauthClient.RefreshToken(ctx, metadata.TokenEndpoint, rec.RefreshToken, clientID)
	})
	if err != nil {
		var tokenErr *oauth.TokenError
		if errors.As(err, &tokenErr) && tokenErr.Terminal() {
			logging.Info("TokenValidator", "Refresh for server %s rejected: %s", serverID, tokenErr.Code)
			return nil, nil
		}
		return nil, fmt.Errorf("token refresh for server %s failed: %w", serverID, err)
	}

	update := store.Update{
		AuthStatus:   store.Ptr(store.AuthStatusAuthorized),
		AccessToken:  store.Ptr(token.AccessToken),
		RefreshToken: store.Ptr(token.RefreshToken),
		ClientID:     store.Ptr(token.ClientID),
	}
	if token.ExpiresAt.IsZero() {
		update.ClearExpiry = true
	} else {
		update.TokenExpiresAt = store.Ptr(token.ExpiresAt)
	}
	if err := v.store.Update(ctx, serverID, userID, update); err != nil {
		return nil, fmt.Errorf("%w for server %s: %w", ErrPersistFailed, serverID, err)
	}

	logging.Info("TokenValidator", "Refreshed token for server %s (client %s)", serverID, token.ClientID)
	return token, nil
}

// requestWithFallback runs a token request with the primary client id and,
// when the authorization server answers invalid_client, once more with the
// alternate id.
func (v *Validator) requestWithFallback(recordClientID, serverID string, do func(clientID string) (*oauth.Token, error)) (*oauth.Token, error) {
	ids := clientIDCandidates(recordClientID, v.clientID, v.alternateClientID)

	var lastErr error
	for i, clientID := range ids {
		token, err := do(clientID)
		if err == nil {
			return token, nil
		}
		lastErr = err

		var tokenErr *oauth.TokenError
		if !errors.As(err, &tokenErr) || !tokenErr.IsInvalidClient() || i == len(ids)-1 {
			break
		}
		logging.Info("TokenValidator", "Client id %s rejected for server %s, retrying with %s",
			clientID, serverID, ids[i+1])
	}
	return nil, lastErr
}

// clientIDCandidates lists the client ids to try in order: the one recorded
// for the server (or the configured default), then the alternate.
func clientIDCandidates(recordClientID, defaultClientID, alternateClientID string) []string {
	primary := recordClientID
	if primary == "" {
		primary = defaultClientID
	}
	ids := []string{primary}
	if alternateClientID != "" && alternateClientID != primary {
		ids = append(ids, alternateClientID)
	}
	return ids
}
