package auth

// RedactedToken wraps a token so it prints as "[REDACTED]" through fmt,
// logging and JSON. Only Value returns the secret.
//
//	tok := auth.NewRedactedToken(rec.AccessToken)
//	logging.Debug("AuthManager", "validating %s", tok) // validating [REDACTED]
type RedactedToken struct {
	value string
}

// NewRedactedToken wraps value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the secret. Never log it.
func (t RedactedToken) Value() string {
	return t.value
}

func (t RedactedToken) String() string {
	if t.value == "" {
		return "<none>"
	}
	return "[REDACTED]"
}

func (t RedactedToken) GoString() string {
	return "auth.RedactedToken{[REDACTED]}"
}

// IsEmpty reports whether no token is wrapped.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
