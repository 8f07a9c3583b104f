// Package oauth implements the OAuth 2.1 client operations mcpgate needs to keep
// capability-server tokens alive.
//
// Discovery follows the MCP authorization rules: authorization server metadata
// is looked up next to the resource server's base path first, then at the
// origin root, and finally through RFC 9728 protected resource metadata.
// Discovered metadata is cached in-process with a TTL and concurrent lookups
// for the same server are collapsed with singleflight.
//
// Token endpoint failures are returned as *TokenError so callers can react to
// invalid_grant and invalid_client. Failures that never produced an HTTP
// response are returned as *TransportError; callers must not treat those as a
// verdict on the token.
package oauth
