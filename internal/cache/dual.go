package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpgate/pkg/logging"
)

const (
	// DefaultTokenTTL bounds how long a validated token is trusted without a live check.
	DefaultTokenTTL = 30 * time.Minute

	// DefaultCapabilityTTL bounds how long a server's catalog is served from cache.
	DefaultCapabilityTTL = 2 * time.Hour

	// DefaultKeyPrefix namespaces every key written by this service.
	DefaultKeyPrefix = "mcpgate:"
)

// TokenEntry records that a specific access token was confirmed valid at ValidatedAt.
// It is a memo only; the server store remains the source of truth for the token.
type TokenEntry struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ClientID     string     `json:"clientId,omitempty"`
	ServerURL    string     `json:"serverUrl"`
	ValidatedAt  time.Time  `json:"validatedAt"`
}

// Resource is the stripped form of an MCP resource kept in the catalog.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CapabilityEntry is the last known catalog of a server.
type CapabilityEntry struct {
	Tools        []mcp.Tool             `json:"tools"`
	Resources    []Resource             `json:"resources"`
	Prompts      []mcp.Prompt           `json:"prompts"`
	Capabilities mcp.ServerCapabilities `json:"capabilities"`
	CachedAt     time.Time              `json:"cachedAt"`
	ServerURL    string                 `json:"serverUrl"`
}

// DualCacheConfig configures the two cache domains.
type DualCacheConfig struct {
	Prefix        string
	TokenTTL      time.Duration
	CapabilityTTL time.Duration
}

// DualCache holds the validated-token and capability domains on one KV.
// The domains use separate keys and TTLs and are invalidated independently.
type DualCache struct {
	kv            KV
	prefix        string
	tokenTTL      time.Duration
	capabilityTTL time.Duration
}

// NewDualCache creates a DualCache, filling unset config fields with defaults.
func NewDualCache(kv KV, cfg DualCacheConfig) *DualCache {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultKeyPrefix
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.CapabilityTTL <= 0 {
		cfg.CapabilityTTL = DefaultCapabilityTTL
	}
	return &DualCache{
		kv:            kv,
		prefix:        cfg.Prefix,
		tokenTTL:      cfg.TokenTTL,
		capabilityTTL: cfg.CapabilityTTL,
	}
}

func (c *DualCache) tokenKey(serverID string) string {
	return c.prefix + "token:" + serverID
}

func (c *DualCache) toolsKey(serverID string) string {
	return c.prefix + "tools:" + serverID
}

// CacheValidatedToken records entry as the last validated token for serverID.
func (c *DualCache) CacheValidatedToken(ctx context.Context, serverID string, entry TokenEntry) error {
	return c.put(ctx, c.tokenKey(serverID), entry, c.tokenTTL)
}

// IsTokenCacheValid reports whether the cached entry exists and was recorded
// for exactly currentAccessToken. Any read failure counts as "not valid".
func (c *DualCache) IsTokenCacheValid(ctx context.Context, serverID, currentAccessToken string) bool {
	if currentAccessToken == "" {
		return false
	}
	var entry TokenEntry
	if !c.load(ctx, c.tokenKey(serverID), &entry) {
		return false
	}
	return entry.AccessToken == currentAccessToken
}

// InvalidateToken drops the token entry for serverID.
func (c *DualCache) InvalidateToken(ctx context.Context, serverID string) error {
	return c.kv.Delete(ctx, c.tokenKey(serverID))
}

// GetServerTools returns the cached catalog, or nil on a miss.
func (c *DualCache) GetServerTools(ctx context.Context, serverID string) *CapabilityEntry {
	var entry CapabilityEntry
	if !c.load(ctx, c.toolsKey(serverID), &entry) {
		return nil
	}
	return &entry
}

// CacheServerTools stores the catalog for serverID.
func (c *DualCache) CacheServerTools(ctx context.Context, serverID string, entry CapabilityEntry) error {
	return c.put(ctx, c.toolsKey(serverID), entry, c.capabilityTTL)
}

// InvalidateServer drops the catalog for serverID.
func (c *DualCache) InvalidateServer(ctx context.Context, serverID string) error {
	return c.kv.Delete(ctx, c.toolsKey(serverID))
}

func (c *DualCache) put(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, key, data, ttl)
}

// load decodes key into out. Undecodable entries are deleted and reported as misses.
func (c *DualCache) load(ctx context.Context, key string, out interface{}) bool {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			logging.Warn("DualCache", "Failed to read %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logging.Warn("DualCache", "Discarding undecodable entry %s: %v", key, err)
		_ = c.kv.Delete(ctx, key)
		return false
	}
	return true
}
