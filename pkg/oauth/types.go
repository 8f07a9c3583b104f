package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// OAuth 2.0 token endpoint error codes (RFC 6749 section 5.2).
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnauthorizedClient   = "unauthorized_client"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorInvalidScope         = "invalid_scope"
)

// ErrMetadataNotFound is returned when no discovery location produced usable
// authorization server metadata.
var ErrMetadataNotFound = errors.New("oauth metadata not found")

// Token represents an OAuth access token with associated metadata.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds (from token response).
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// ClientID is the client identifier the token was issued to.
	// Not part of the token response; set by the caller that requested it.
	ClientID string `json:"-"`
}

// IsExpiredWithMargin checks if the token has expired or will expire within the margin.
func (t *Token) IsExpiredWithMargin(now time.Time, margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false // Tokens without expiration don't expire
	}
	return now.Add(margin).After(t.ExpiresAt)
}

// SetExpiry derives ExpiresAt relative to now. ExpiresIn wins; when it is
// absent and the access token is a JWT, its exp claim is used.
func (t *Token) SetExpiry(now time.Time) {
	if !t.ExpiresAt.IsZero() {
		return
	}
	if t.ExpiresIn > 0 {
		t.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
		return
	}
	if exp, ok := jwtExpiry(t.AccessToken); ok {
		t.ExpiresAt = exp
	}
}

// jwtExpiry reads the exp claim without verifying the signature. The token
// is only inspected for scheduling a refresh, never trusted for identity.
func jwtExpiry(raw string) (time.Time, bool) {
	if strings.Count(raw, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Metadata represents OAuth 2.0 Authorization Server Metadata as defined in RFC 8414.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE returns true if the server supports S256 PKCE.
func (m *Metadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	// If not specified, assume S256 is supported (OAuth 2.1 requirement)
	return len(m.CodeChallengeMethodsSupported) == 0
}

// ProtectedResourceMetadata is the RFC 9728 document served by a resource server.
type ProtectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// AuthChallenge represents parsed information from a WWW-Authenticate header.
type AuthChallenge struct {
	// Scheme is the authentication scheme (typically "Bearer").
	Scheme string

	// Realm is the protection realm, often the issuer URL.
	Realm string

	// ResourceMetadataURL points at the RFC 9728 protected resource metadata.
	ResourceMetadataURL string

	Scope            string
	Error            string
	ErrorDescription string
}

// IsOAuthChallenge returns true if this represents an OAuth authentication challenge.
func (c *AuthChallenge) IsOAuthChallenge() bool {
	if c == nil {
		return false
	}
	return strings.EqualFold(c.Scheme, "Bearer")
}

// Issuer returns the realm when it is a URL.
func (c *AuthChallenge) Issuer() string {
	if c == nil {
		return ""
	}
	if strings.HasPrefix(c.Realm, "http://") || strings.HasPrefix(c.Realm, "https://") {
		return c.Realm
	}
	return ""
}

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept secret and only sent with the code exchange.
	CodeVerifier string

	// CodeChallenge is the base64url SHA256 of the verifier.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// TokenError is an error response from a token endpoint.
type TokenError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint returned %s (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("token endpoint returned %s (status %d)", e.Code, e.StatusCode)
}

// IsInvalidGrant reports whether the grant (refresh token or code) itself was rejected.
func (e *TokenError) IsInvalidGrant() bool { return e.Code == ErrorInvalidGrant }

// IsInvalidClient reports whether the client identifier was rejected.
func (e *TokenError) IsInvalidClient() bool { return e.Code == ErrorInvalidClient }

// Terminal reports whether the authorization server rejected the grant or
// the client, so retrying the same request cannot succeed. Rate limiting,
// timeouts, server errors and non-OAuth error bodies are not terminal.
func (e *TokenError) Terminal() bool {
	switch e.Code {
	case ErrorInvalidGrant, ErrorInvalidClient, ErrorUnauthorizedClient, ErrorUnsupportedGrantType:
		return true
	default:
		return false
	}
}

// TransportError wraps failures that happened before an HTTP response was
// received (DNS, connection refused, timeouts).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err (or anything it wraps) is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
