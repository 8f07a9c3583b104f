package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a (serverID, userID) pair.
var ErrNotFound = errors.New("server record not found")

// AuthStatus is the authorization state of a server for one user.
// The set is closed; see Valid.
type AuthStatus string

const (
	AuthStatusUnknown    AuthStatus = "unknown"
	AuthStatusRequired   AuthStatus = "required"
	AuthStatusAuthorized AuthStatus = "authorized"
	AuthStatusFailed     AuthStatus = "failed"
)

// Valid reports whether s is one of the four known states.
func (s AuthStatus) Valid() bool {
	switch s {
	case AuthStatusUnknown, AuthStatusRequired, AuthStatusAuthorized, AuthStatusFailed:
		return true
	default:
		return false
	}
}

// ServerRecord is the durable state of one registered server for one user.
//
// Invariants: a non-empty AccessToken implies AuthStatusAuthorized, and
// AuthStatusRequired or AuthStatusFailed imply every token field is empty.
type ServerRecord struct {
	ID             string     `json:"id" dynamodbav:"ServerId"`
	UserID         string     `json:"userId" dynamodbav:"UserId"`
	Name           string     `json:"name" dynamodbav:"Name"`
	URL            string     `json:"url" dynamodbav:"Url"`
	Enabled        bool       `json:"enabled" dynamodbav:"Enabled"`
	AuthStatus     AuthStatus `json:"authStatus" dynamodbav:"AuthStatus"`
	AccessToken    string     `json:"-" dynamodbav:"AccessToken,omitempty"`
	RefreshToken   string     `json:"-" dynamodbav:"RefreshToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty" dynamodbav:"TokenExpiresAt,omitempty"`
	ClientID       string     `json:"clientId,omitempty" dynamodbav:"ClientId,omitempty"`
}

// Status returns the auth status, mapping anything outside the closed set to unknown.
func (r *ServerRecord) Status() AuthStatus {
	if !r.AuthStatus.Valid() {
		return AuthStatusUnknown
	}
	return r.AuthStatus
}

// Clone returns a deep copy so callers never share the expiry pointer.
func (r *ServerRecord) Clone() *ServerRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.TokenExpiresAt != nil {
		t := *r.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	return &c
}

// Update is a partial update of a ServerRecord. Nil fields are left untouched.
// ClearTokens removes every token field and takes precedence over the token
// pointers in the same update. ClearExpiry drops only the expiry, for tokens
// issued without one.
type Update struct {
	Enabled        *bool
	AuthStatus     *AuthStatus
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	ClientID       *string
	ClearTokens    bool
	ClearExpiry    bool
}

// Apply merges u into r in place.
func (u Update) Apply(r *ServerRecord) {
	if u.Enabled != nil {
		r.Enabled = *u.Enabled
	}
	if u.AuthStatus != nil {
		r.AuthStatus = *u.AuthStatus
	}
	if u.ClientID != nil {
		r.ClientID = *u.ClientID
	}
	if u.ClearTokens {
		r.AccessToken = ""
		r.RefreshToken = ""
		r.TokenExpiresAt = nil
		return
	}
	if u.AccessToken != nil {
		r.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		r.RefreshToken = *u.RefreshToken
	}
	if u.TokenExpiresAt != nil {
		t := *u.TokenExpiresAt
		r.TokenExpiresAt = &t
	} else if u.ClearExpiry {
		r.TokenExpiresAt = nil
	}
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Enabled == nil && u.AuthStatus == nil && u.AccessToken == nil &&
		u.RefreshToken == nil && u.TokenExpiresAt == nil && u.ClientID == nil && !u.ClearTokens && !u.ClearExpiry
}

// Ptr returns a pointer to v. Handy for building Updates.
func Ptr[T any](v T) *T {
	return &v
}
