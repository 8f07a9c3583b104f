package logging

import "strings"

// sensitiveFields lists lower-cased field names whose values must never be logged.
var sensitiveFields = []string{
	"authorization",
	"access_token",
	"refresh_token",
	"id_token",
	"code_verifier",
	"client_secret",
	"password",
	"cookie",
}

// IsSensitiveField reports whether a header or form field carries secret material.
func IsSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, f := range sensitiveFields {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Redact shortens a secret to a recognizable prefix for log correlation.
// Values of 8 characters or fewer are fully masked.
func Redact(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	if len(secret) <= 8 {
		return "[REDACTED]"
	}
	return secret[:4] + "...[REDACTED]"
}

// RedactHeaderValue keeps the auth scheme of an Authorization header and masks the credential.
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveField(name) {
		return value
	}
	if scheme, cred, ok := strings.Cut(value, " "); ok {
		return scheme + " " + Redact(cred)
	}
	return Redact(value)
}
