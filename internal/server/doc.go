// Package server exposes mcpgate over HTTP.
//
// The API is consumed by clients acting for a user; the user id arrives in
// the X-User-ID header set by the authenticating proxy in front of mcpgate.
//
// # Endpoints
//
//   - GET    /healthz                        - liveness
//   - GET    /api/servers/{id}               - stored record and live status
//   - PUT    /api/servers/{id}               - register a server {"name", "url"}
//   - DELETE /api/servers/{id}               - forget a server
//   - GET    /api/servers/{id}/auth          - EnsureAuthenticated
//   - GET    /api/servers/{id}/info          - tools, resources and prompts (?refresh=true bypasses the cache)
//   - GET    /api/servers/{id}/connection    - live connection status, null if never observed
//   - POST   /api/servers/{id}/reset         - drop tokens and require authorization
//   - GET    /api/tools                      - normalized tool names (?server= filters)
//   - GET    /api/tools/{name}               - resolve a normalized name to its server
//   - GET    /oauth/authorize?server_id=     - redirect the browser to the authorization server
//   - GET    /oauth/callback?state=&code=    - finish authorization
//
// Errors are JSON objects with an "error" message. Authorization problems
// carry an "authUrl"; upstream failures carry a "recovery" recommendation.
package server
