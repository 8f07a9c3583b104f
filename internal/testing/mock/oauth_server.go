package mock

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"mcpgate/pkg/logging"
	"mcpgate/pkg/oauth"
)

// OAuthServerConfig configures the mock OAuth server behavior.
type OAuthServerConfig struct {
	// AcceptedClientIDs lists the client ids the token endpoint accepts.
	// Any other id gets invalid_client. Empty accepts every id.
	AcceptedClientIDs []string

	// TokenLifetime is how long access tokens remain valid. Default 1h.
	TokenLifetime time.Duration

	// OmitRefreshTokenOnRefresh makes refresh responses leave out
	// refresh_token; the presented refresh token then stays valid.
	OmitRefreshTokenOnRefresh bool

	// SimulateErrors can be set to simulate various error conditions.
	SimulateErrors *OAuthErrorSimulation

	// Clock is the clock used for token expiry. Defaults to SystemClock.
	Clock Clock
}

// OAuthErrorSimulation allows simulating error conditions.
type OAuthErrorSimulation struct {
	// TokenEndpointStatus makes the token endpoint fail with this HTTP status.
	TokenEndpointStatus int

	// InvalidGrant rejects every grant.
	InvalidGrant bool
}

// OAuthServer is a mock OAuth 2.1 authorization server.
type OAuthServer struct {
	config OAuthServerConfig
	server *httptest.Server
	clock  Clock

	mu            sync.RWMutex
	authCodes     map[string]*authCodeEntry
	issuedTokens  map[string]*issuedToken // access token -> token
	refreshTokens map[string]*issuedToken // refresh token -> token
	forms         []url.Values
}

type authCodeEntry struct {
	ClientID        string
	RedirectURI     string
	Scope           string
	CodeChallenge   string
	ChallengeMethod string
}

type issuedToken struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ClientID     string
	ExpiresAt    time.Time
}

// TokenResponse is the OAuth token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// NewOAuthServer creates and starts a mock OAuth server.
func NewOAuthServer(config OAuthServerConfig) *OAuthServer {
	if config.TokenLifetime == 0 {
		config.TokenLifetime = time.Hour
	}
	clock := config.Clock
	if clock == nil {
		clock = SystemClock
	}

	s := &OAuthServer{
		config:        config,
		clock:         clock,
		authCodes:     make(map[string]*authCodeEntry),
		issuedTokens:  make(map[string]*issuedToken),
		refreshTokens: make(map[string]*issuedToken),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("/authorize", s.handleAuthorize)
	mux.HandleFunc("/token", s.handleToken)
	s.server = httptest.NewServer(mux)
	return s
}

// Close stops the server.
func (s *OAuthServer) Close() {
	s.server.Close()
}

// URL returns the issuer URL.
func (s *OAuthServer) URL() string {
	return s.server.URL
}

// TokenURL returns the token endpoint URL.
func (s *OAuthServer) TokenURL() string {
	return s.server.URL + "/token"
}

// Metadata returns the RFC 8414 document this server publishes.
func (s *OAuthServer) Metadata() oauth.Metadata {
	return oauth.Metadata{
		Issuer:                        s.server.URL,
		AuthorizationEndpoint:         s.server.URL + "/authorize",
		TokenEndpoint:                 s.server.URL + "/token",
		GrantTypesSupported:           []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

// IssueToken creates a token pair without going through a grant, as if the
// user had authorized clientID earlier.
func (s *OAuthServer) IssueToken(clientID string) *TokenResponse {
	tok := s.newToken(clientID, "")
	return s.tokenResponse(tok, true)
}

// ValidateToken reports whether accessToken was issued here and has not expired.
func (s *OAuthServer) ValidateToken(accessToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.issuedTokens[accessToken]
	if !ok {
		return false
	}
	return s.clock.Now().Before(tok.ExpiresAt)
}

// RevokeAccessToken makes accessToken invalid immediately.
func (s *OAuthServer) RevokeAccessToken(accessToken string) {
	s.mu.Lock()
	delete(s.issuedTokens, accessToken)
	s.mu.Unlock()
}

// RevokeRefreshToken makes refreshToken fail with invalid_grant.
func (s *OAuthServer) RevokeRefreshToken(refreshToken string) {
	s.mu.Lock()
	delete(s.refreshTokens, refreshToken)
	s.mu.Unlock()
}

// TokenRequests returns copies of every form body posted to the token endpoint.
func (s *OAuthServer) TokenRequests() []url.Values {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]url.Values, len(s.forms))
	for i, f := range s.forms {
		c := url.Values{}
		for k, v := range f {
			c[k] = append([]string(nil), v...)
		}
		out[i] = c
	}
	return out
}

func (s *OAuthServer) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Metadata())
}

// handleAuthorize auto-approves and redirects back with a code.
func (s *OAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if !s.clientAccepted(q.Get("client_id")) {
		http.Error(w, "invalid_client", http.StatusBadRequest)
		return
	}
	if q.Get("code_challenge") == "" || q.Get("code_challenge_method") != "S256" {
		http.Error(w, "PKCE S256 required", http.StatusBadRequest)
		return
	}

	redirectURL, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirectURL.Scheme == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	code := generateOpaqueToken()
	s.mu.Lock()
	s.authCodes[code] = &authCodeEntry{
		ClientID:        q.Get("client_id"),
		RedirectURI:     q.Get("redirect_uri"),
		Scope:           q.Get("scope"),
		CodeChallenge:   q.Get("code_challenge"),
		ChallengeMethod: q.Get("code_challenge_method"),
	}
	s.mu.Unlock()

	rq := redirectURL.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirectURL.RawQuery = rq.Encode()
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// handleToken handles token exchange requests.
func (s *OAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidRequest, "malformed form body")
		return
	}

	s.mu.Lock()
	s.forms = append(s.forms, r.PostForm)
	s.mu.Unlock()

	if sim := s.config.SimulateErrors; sim != nil {
		if sim.TokenEndpointStatus != 0 {
			w.WriteHeader(sim.TokenEndpointStatus)
			return
		}
		if sim.InvalidGrant {
			oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidGrant, "grant rejected")
			return
		}
	}

	clientID := r.PostForm.Get("client_id")
	if !s.clientAccepted(clientID) {
		logging.Debug("MockOAuth", "Rejecting unknown client_id %s", clientID)
		oauthError(w, http.StatusUnauthorized, oauth.ErrorInvalidClient, "client not registered")
		return
	}

	switch grantType := r.PostForm.Get("grant_type"); grantType {
	case "authorization_code":
		s.handleAuthCodeExchange(w, r.PostForm)
	case "refresh_token":
		s.handleRefreshToken(w, r.PostForm)
	default:
		oauthError(w, http.StatusBadRequest, oauth.ErrorUnsupportedGrantType,
			fmt.Sprintf("grant_type %s not supported", grantType))
	}
}

func (s *OAuthServer) handleAuthCodeExchange(w http.ResponseWriter, form url.Values) {
	code := form.Get("code")

	s.mu.Lock()
	entry, exists := s.authCodes[code]
	if exists {
		delete(s.authCodes, code)
	}
	s.mu.Unlock()

	if !exists {
		oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidGrant, "authorization code not found or expired")
		return
	}
	if entry.RedirectURI != form.Get("redirect_uri") {
		oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidGrant, "redirect_uri mismatch")
		return
	}
	if oauth2.S256ChallengeFromVerifier(form.Get("code_verifier")) != entry.CodeChallenge {
		oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidGrant, "code_verifier verification failed")
		return
	}

	tok := s.newToken(form.Get("client_id"), entry.Scope)
	writeJSON(w, http.StatusOK, s.tokenResponse(tok, true))
}

func (s *OAuthServer) handleRefreshToken(w http.ResponseWriter, form url.Values) {
	refreshToken := form.Get("refresh_token")

	s.mu.Lock()
	original, ok := s.refreshTokens[refreshToken]
	if ok && !s.config.OmitRefreshTokenOnRefresh {
		// Rotation: a refresh token is single use.
		delete(s.refreshTokens, refreshToken)
	}
	if ok {
		delete(s.issuedTokens, original.AccessToken)
	}
	s.mu.Unlock()

	if !ok {
		oauthError(w, http.StatusBadRequest, oauth.ErrorInvalidGrant, "refresh token not found")
		return
	}

	if s.config.OmitRefreshTokenOnRefresh {
		tok := &issuedToken{
			AccessToken:  generateOpaqueToken(),
			RefreshToken: refreshToken,
			Scope:        original.Scope,
			ClientID:     form.Get("client_id"),
			ExpiresAt:    s.clock.Now().Add(s.config.TokenLifetime),
		}
		s.mu.Lock()
		s.issuedTokens[tok.AccessToken] = tok
		s.refreshTokens[refreshToken] = tok
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, s.tokenResponse(tok, false))
		return
	}

	tok := s.newToken(form.Get("client_id"), original.Scope)
	writeJSON(w, http.StatusOK, s.tokenResponse(tok, true))
}

func (s *OAuthServer) newToken(clientID, scope string) *issuedToken {
	tok := &issuedToken{
		AccessToken:  generateOpaqueToken(),
		RefreshToken: generateOpaqueToken(),
		Scope:        scope,
		ClientID:     clientID,
		ExpiresAt:    s.clock.Now().Add(s.config.TokenLifetime),
	}
	s.mu.Lock()
	s.issuedTokens[tok.AccessToken] = tok
	s.refreshTokens[tok.RefreshToken] = tok
	s.mu.Unlock()
	return tok
}

func (s *OAuthServer) tokenResponse(tok *issuedToken, withRefresh bool) *TokenResponse {
	resp := &TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.config.TokenLifetime.Seconds()),
		Scope:       tok.Scope,
	}
	if withRefresh {
		resp.RefreshToken = tok.RefreshToken
	}
	return resp
}

func (s *OAuthServer) clientAccepted(clientID string) bool {
	if len(s.config.AcceptedClientIDs) == 0 {
		return true
	}
	for _, id := range s.config.AcceptedClientIDs {
		if id == clientID {
			return true
		}
	}
	return false
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// generateOpaqueToken generates a random opaque token.
// Panics if crypto/rand fails, which should never happen in practice.
func generateOpaqueToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Errorf("crypto/rand failed: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
