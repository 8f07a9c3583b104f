package cmd

import "fmt"

// AuthRequiredError means the server needs the user to authorize it.
type AuthRequiredError struct {
	ServerID string
	AuthURL  string
}

func (e *AuthRequiredError) Error() string {
	if e.AuthURL == "" {
		return fmt.Sprintf("server %s requires authorization", e.ServerID)
	}
	return fmt.Sprintf("server %s requires authorization: open %s", e.ServerID, e.AuthURL)
}

// AuthFailedError means authorization was attempted and failed, or the
// server could not be reached to decide.
type AuthFailedError struct {
	ServerID string
	Reason   string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authorization for server %s failed: %s", e.ServerID, e.Reason)
}
