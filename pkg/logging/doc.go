// Package logging provides the structured logging facade used across mcpgate.
//
// It wraps log/slog with a subsystem-tagged, printf-style API so call sites
// stay short while output remains structured:
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("AuthManager", "Server %s transitioned to %s", serverID, status)
//	logging.Debug("TokenValidator", "Discovered token endpoint %s", endpoint)
//	logging.Error("Cache", err, "Failed to write capability entry for %s", serverID)
//
// Every record carries a "subsystem" attribute, and errors passed to Error are
// attached as an "error" attribute. The level can be changed at runtime with
// SetLevel, which the config watcher uses for live reloads.
//
// Secrets (access tokens, refresh tokens, PKCE verifiers) must go through
// Redact or RedactHeaderValue before being formatted into a message.
package logging
