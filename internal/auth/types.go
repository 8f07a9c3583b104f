package auth

import (
	"errors"
)

// Status is the outcome of an authentication check.
type Status string

const (
	StatusAuthenticated Status = "authenticated"
	StatusRequiresAuth  Status = "requires_auth"
	StatusFailed        Status = "failed"
)

// Result is returned by EnsureAuthenticated and CompleteAuthorization.
type Result struct {
	Status  Status `json:"status"`
	AuthURL string `json:"authUrl,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrInvalidState is returned when an OAuth callback carries a state this
// service did not issue, or whose verifier has already been used or expired.
var ErrInvalidState = errors.New("invalid or expired authorization state")

func authenticatedResult() Result {
	return Result{Status: StatusAuthenticated}
}

func failedResult(msg string) Result {
	return Result{Status: StatusFailed, Error: msg}
}
