// Package mock provides network-local stand-ins for the external systems the
// auth and connection layers talk to.
//
// ComplianceServer is an MCP server (mcp-go, streamable HTTP) exposing the
// minimal handshake surface: initialize, tools/list, tools/call,
// resources/list, prompts/list and optionally ping. A middleware in front of
// it enforces bearer tokens, answers ping with METHOD_NOT_FOUND when ping is
// disabled, injects JSON-RPC errors per method and counts requests per method
// so tests can assert how many network calls a code path made.
//
// OAuthServer is an authorization server with an authorize endpoint that
// auto-approves, a token endpoint for the authorization_code (PKCE S256) and
// refresh_token grants, configurable accepted client ids and a log of every
// form body it received.
//
// A ComplianceServer can advertise an OAuthServer's metadata co-located with
// the MCP endpoint, at the origin root, through RFC 9728 protected resource
// metadata, or not at all, which lets discovery order be tested end to end.
//
// MockClock lets tests drive token expiry and cache TTLs without sleeping.
package mock
