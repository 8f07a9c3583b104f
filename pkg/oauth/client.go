package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultMetadataCacheTTL is the default TTL for cached OAuth metadata.
	DefaultMetadataCacheTTL = 30 * time.Minute

	authServerWellKnown        = "/.well-known/oauth-authorization-server"
	openIDWellKnown            = "/.well-known/openid-configuration"
	protectedResourceWellKnown = "/.well-known/oauth-protected-resource"

	maxResponseBytes = 1 << 20
)

type metadataCacheEntry struct {
	metadata  *Metadata
	fetchedAt time.Time
}

// Client handles OAuth 2.1 protocol operations: metadata discovery, code
// exchange and token refresh.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	metadataMu    sync.RWMutex
	metadataCache map[string]*metadataCacheEntry
	metadataTTL   time.Duration

	// deduplicates concurrent discovery for the same key
	metadataGroup singleflight.Group
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetadataCacheTTL sets the metadata cache TTL. Zero disables caching.
func WithMetadataCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.metadataTTL = ttl
	}
}

// WithNow overrides the time source used for token expiry and cache ages.
func WithNow(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new OAuth client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: DefaultHTTPTimeout},
		logger:        slog.Default(),
		now:           time.Now,
		metadataCache: make(map[string]*metadataCacheEntry),
		metadataTTL:   DefaultMetadataCacheTTL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DiscoveryCandidates returns the authorization server metadata URLs tried for
// a resource server, in order: co-located with the server's base path, then
// the origin root. Duplicates are removed.
func DiscoveryCandidates(serverURL string) ([]string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing scheme or host", serverURL)
	}
	origin := u.Scheme + "://" + u.Host
	basePath := strings.TrimSuffix(u.Path, "/")

	root := origin + authServerWellKnown
	if basePath == "" {
		return []string{root}, nil
	}
	return []string{origin + basePath + authServerWellKnown, root}, nil
}

// DiscoverForServer finds the authorization server for a resource server URL.
//
// The co-located well-known document is tried first, then the origin root,
// then the RFC 9728 protected resource metadata at the origin (following its
// first authorization server). ErrMetadataNotFound is returned when every
// location answered without usable metadata; a *TransportError is returned
// when a location could not be reached at all.
func (c *Client) DiscoverForServer(ctx context.Context, serverURL string) (*Metadata, error) {
	key := "server:" + strings.TrimSuffix(serverURL, "/")
	if m := c.cachedMetadata(key); m != nil {
		return m, nil
	}

	result, err, _ := c.metadataGroup.Do(key, func() (interface{}, error) {
		if m := c.cachedMetadata(key); m != nil {
			return m, nil
		}
		m, err := c.doDiscoverForServer(ctx, serverURL)
		if err != nil {
			return nil, err
		}
		c.cacheMetadata(key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (c *Client) doDiscoverForServer(ctx context.Context, serverURL string) (*Metadata, error) {
	candidates, err := DiscoveryCandidates(serverURL)
	if err != nil {
		return nil, err
	}

	var transportErr error
	for _, candidate := range candidates {
		metadata, err := c.fetchMetadata(ctx, candidate)
		if err == nil {
			return metadata, nil
		}
		if IsTransportError(err) {
			transportErr = err
		}
		c.logger.Debug("Authorization server metadata not available",
			"url", candidate,
			"error", err)
	}

	prm, err := c.DiscoverProtectedResource(ctx, serverURL, "")
	if err == nil && len(prm.AuthorizationServers) > 0 {
		metadata, err := c.DiscoverMetadata(ctx, prm.AuthorizationServers[0])
		if err == nil {
			return metadata, nil
		}
		if IsTransportError(err) {
			transportErr = err
		}
	} else if err != nil && IsTransportError(err) {
		transportErr = err
	}

	if transportErr != nil {
		return nil, transportErr
	}
	return nil, fmt.Errorf("%w for %s", ErrMetadataNotFound, serverURL)
}

// DiscoverProtectedResource fetches RFC 9728 metadata. When metadataURL is
// empty the origin-root well-known location of serverURL is used.
func (c *Client) DiscoverProtectedResource(ctx context.Context, serverURL, metadataURL string) (*ProtectedResourceMetadata, error) {
	if metadataURL == "" {
		u, err := url.Parse(serverURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid server URL %q", serverURL)
		}
		metadataURL = u.Scheme + "://" + u.Host + protectedResourceWellKnown
	}

	var prm ProtectedResourceMetadata
	if err := c.getJSON(ctx, metadataURL, &prm); err != nil {
		return nil, err
	}
	return &prm, nil
}

// DiscoverMetadata fetches OAuth metadata from the issuer's well-known endpoint.
// It tries RFC 8414 first, then falls back to OpenID Connect discovery.
// Results are cached with a TTL to reduce network requests.
func (c *Client) DiscoverMetadata(ctx context.Context, issuer string) (*Metadata, error) {
	issuer = strings.TrimSuffix(issuer, "/")
	key := "issuer:" + issuer
	if m := c.cachedMetadata(key); m != nil {
		return m, nil
	}

	result, err, _ := c.metadataGroup.Do(key, func() (interface{}, error) {
		if m := c.cachedMetadata(key); m != nil {
			return m, nil
		}

		metadata, err := c.fetchMetadata(ctx, issuer+authServerWellKnown)
		if err != nil {
			c.logger.Debug("RFC 8414 metadata fetch failed, trying OIDC",
				"issuer", issuer,
				"error", err)
			metadata, err = c.fetchMetadata(ctx, issuer+openIDWellKnown)
		}
		if err != nil {
			if IsTransportError(err) {
				return nil, err
			}
			return nil, fmt.Errorf("%w for issuer %s: %v", ErrMetadataNotFound, issuer, err)
		}
		c.cacheMetadata(key, metadata)
		return metadata, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Metadata), nil
}

func (c *Client) fetchMetadata(ctx context.Context, metadataURL string) (*Metadata, error) {
	var metadata Metadata
	if err := c.getJSON(ctx, metadataURL, &metadata); err != nil {
		return nil, err
	}
	if metadata.TokenEndpoint == "" {
		return nil, fmt.Errorf("metadata at %s has no token_endpoint", metadataURL)
	}
	return &metadata, nil
}

func (c *Client) getJSON(ctx context.Context, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: "GET", URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: "GET", URL: target, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", target, err)
	}
	return nil
}

func (c *Client) cachedMetadata(key string) *Metadata {
	if c.metadataTTL <= 0 {
		return nil
	}
	c.metadataMu.RLock()
	defer c.metadataMu.RUnlock()
	if entry, ok := c.metadataCache[key]; ok && c.now().Sub(entry.fetchedAt) < c.metadataTTL {
		return entry.metadata
	}
	return nil
}

func (c *Client) cacheMetadata(key string, metadata *Metadata) {
	if c.metadataTTL <= 0 {
		return
	}
	c.metadataMu.Lock()
	c.metadataCache[key] = &metadataCacheEntry{
		metadata:  metadata,
		fetchedAt: c.now(),
	}
	c.metadataMu.Unlock()

	c.logger.Debug("Cached OAuth metadata",
		"key", key,
		"authorization_endpoint", metadata.AuthorizationEndpoint,
		"token_endpoint", metadata.TokenEndpoint)
}

// ClearMetadataCache clears the metadata cache.
func (c *Client) ClearMetadataCache() {
	c.metadataMu.Lock()
	c.metadataCache = make(map[string]*metadataCacheEntry)
	c.metadataMu.Unlock()
}

// ExchangeCode exchanges an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint, code, redirectURI, clientID, codeVerifier string) (*Token, error) {
	data := url.Values{
		"grant_type": {"authorization_code"},
		"code":       {code},
		"client_id":  {clientID},
	}
	if redirectURI != "" {
		data.Set("redirect_uri", redirectURI)
	}
	if codeVerifier != "" {
		data.Set("code_verifier", codeVerifier)
	}

	return c.doTokenRequest(ctx, tokenEndpoint, clientID, data)
}

// RefreshToken obtains a new access token using a refresh token.
// When the response omits a refresh token the one that was sent is kept.
func (c *Client) RefreshToken(ctx context.Context, tokenEndpoint, refreshToken, clientID string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}

	token, err := c.doTokenRequest(ctx, tokenEndpoint, clientID, data)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint, clientID string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "POST", URL: tokenEndpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "POST", URL: tokenEndpoint, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		tokenErr := &TokenError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(body, tokenErr); jsonErr != nil || tokenErr.Code == "" {
			tokenErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		c.logger.Debug("Token request failed",
			"status", resp.StatusCode,
			"error", tokenErr.Code,
			"grant_type", data.Get("grant_type"))
		return nil, tokenErr
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access_token")
	}

	token.ClientID = clientID
	token.SetExpiry(c.now())

	return &token, nil
}
