// Package auth implements the authorization lifecycle of registered MCP
// servers: the per-(server, user) state machine, token validation and
// refresh, and the OAuth authorization-code flow that moves a server from
// required (or failed) to authorized.
//
// State lives in a store.ServerStore. Two cache tiers sit in front of the
// network: the durable cache.DualCache shared by every instance, and a small
// in-process map keyed by (server, user) and a fingerprint of the current
// access token. Neither is a source of truth; a fresh Manager over the same
// store and cache reaches the same decisions.
//
// Transport failures never clear credentials. They surface as a failed
// Result and an offline live status, and the next call tries again.
package auth
