package connection

import (
	"errors"
	"fmt"

	"mcpgate/pkg/oauth"
)

// ErrOAuthRequired is the unwind signal for a connection attempt that hit a 401.
// Match it with errors.Is; use errors.As with *OAuthRequiredError for details.
var ErrOAuthRequired = errors.New("OAUTH_REQUIRED")

// OAuthRequiredError reports that a server rejected the connection's credentials.
type OAuthRequiredError struct {
	ServerID  string
	URL       string
	Challenge *oauth.AuthChallenge
	Err       error
}

func (e *OAuthRequiredError) Error() string {
	return fmt.Sprintf("server %s requires authorization: %v", e.ServerID, e.Err)
}

func (e *OAuthRequiredError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrOAuthRequired) match.
func (e *OAuthRequiredError) Is(target error) bool {
	return target == ErrOAuthRequired
}

// asAuthRequired converts a 401-style error into an OAuthRequiredError, or returns nil.
func asAuthRequired(serverID, url string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OAuthRequiredError
	if errors.As(err, &existing) {
		return existing
	}
	if !oauth.Is401Error(err) {
		return nil
	}
	return &OAuthRequiredError{ServerID: serverID, URL: url, Err: err}
}
