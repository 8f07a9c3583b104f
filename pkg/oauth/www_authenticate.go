package oauth

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

// authParamPattern matches key="value" and key=token pairs in a challenge.
var authParamPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)\s*=\s*(?:"([^"]*)"|([^\s,]+))`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="https://auth.example.com"
//	Bearer error="invalid_token", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, errors.New("empty WWW-Authenticate header")
	}

	scheme, rest, _ := strings.Cut(header, " ")
	challenge := &AuthChallenge{Scheme: scheme}

	for _, match := range authParamPattern.FindAllStringSubmatch(rest, -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}
		switch strings.ToLower(match[1]) {
		case "realm":
			challenge.Realm = value
		case "resource_metadata":
			challenge.ResourceMetadataURL = value
		case "scope":
			challenge.Scope = value
		case "error":
			challenge.Error = value
		case "error_description":
			challenge.ErrorDescription = value
		}
	}

	return challenge, nil
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401 response.
// Returns nil if the response is not a 401 or carries no parseable header.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}

// Is401Error checks if an error message indicates a 401 Unauthorized response.
// Transports that only surface HTTP status in error text leave no better signal.
func Is401Error(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "status 401") ||
		strings.Contains(errStr, " 401 ") ||
		strings.Contains(strings.ToLower(errStr), "unauthorized")
}
