package cache

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/testing/mock"
)

func newTestDualCache(t *testing.T) (*DualCache, *MemoryKV, *mock.MockClock) {
	t.Helper()
	clock := mock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	kv := NewMemoryKV(WithClock(clock.Now))
	return NewDualCache(kv, DualCacheConfig{Prefix: "test:"}), kv, clock
}

func TestDualCache_TokenDomain(t *testing.T) {
	ctx := context.Background()
	c, kv, clock := newTestDualCache(t)

	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"))

	require.NoError(t, c.CacheValidatedToken(ctx, "srv-1", TokenEntry{
		AccessToken: "t1",
		ServerURL:   "https://mcp.example.com",
		ValidatedAt: clock.Now(),
	}))
	_, err := kv.Get(ctx, "test:token:srv-1")
	require.NoError(t, err, "token entries live under {prefix}token:{serverID}")

	assert.True(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"))
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", "t2"), "a rotated token must not match")
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", ""))
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-2", "t1"))

	clock.Advance(DefaultTokenTTL)
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"), "token entries expire after the token TTL")

	require.NoError(t, c.CacheValidatedToken(ctx, "srv-1", TokenEntry{AccessToken: "t1"}))
	require.NoError(t, c.InvalidateToken(ctx, "srv-1"))
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"))
}

func TestDualCache_CapabilityDomain(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestDualCache(t)

	assert.Nil(t, c.GetServerTools(ctx, "srv-1"))

	entry := CapabilityEntry{
		Tools: []mcp.Tool{
			mcp.NewTool("search", mcp.WithDescription("Search documents"), mcp.WithString("query", mcp.Required())),
		},
		Resources: []Resource{{URI: "file:///readme.md", Name: "readme"}},
		CachedAt:  clock.Now(),
		ServerURL: "https://mcp.example.com",
	}
	require.NoError(t, c.CacheServerTools(ctx, "srv-1", entry))

	got := c.GetServerTools(ctx, "srv-1")
	require.NotNil(t, got)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "search", got.Tools[0].Name)
	assert.Equal(t, []string{"query"}, got.Tools[0].InputSchema.Required)
	assert.Equal(t, entry.Resources, got.Resources)
	assert.True(t, entry.CachedAt.Equal(got.CachedAt))

	clock.Advance(DefaultTokenTTL)
	assert.NotNil(t, c.GetServerTools(ctx, "srv-1"), "capability TTL is longer than the token TTL")

	clock.Advance(DefaultCapabilityTTL)
	assert.Nil(t, c.GetServerTools(ctx, "srv-1"))
}

func TestDualCache_DomainsInvalidateIndependently(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestDualCache(t)

	require.NoError(t, c.CacheValidatedToken(ctx, "srv-1", TokenEntry{AccessToken: "t1"}))
	require.NoError(t, c.CacheServerTools(ctx, "srv-1", CapabilityEntry{}))

	require.NoError(t, c.InvalidateServer(ctx, "srv-1"))
	assert.Nil(t, c.GetServerTools(ctx, "srv-1"))
	assert.True(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"))
}

func TestDualCache_UndecodableEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, kv, _ := newTestDualCache(t)

	require.NoError(t, kv.Set(ctx, "test:tools:srv-1", []byte("{not json"), time.Hour))
	require.NoError(t, kv.Set(ctx, "test:token:srv-1", []byte("[]"), time.Hour))

	assert.Nil(t, c.GetServerTools(ctx, "srv-1"))
	assert.False(t, c.IsTokenCacheValid(ctx, "srv-1", "t1"))

	_, err := kv.Get(ctx, "test:tools:srv-1")
	assert.ErrorIs(t, err, ErrCacheMiss, "undecodable entries are deleted")
	_, err = kv.Get(ctx, "test:token:srv-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDualCache_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	first := NewDualCache(kv, DualCacheConfig{})
	second := NewDualCache(kv, DualCacheConfig{})

	require.NoError(t, first.CacheValidatedToken(ctx, "srv-1", TokenEntry{AccessToken: "t1"}))
	assert.True(t, second.IsTokenCacheValid(ctx, "srv-1", "t1"))
}
