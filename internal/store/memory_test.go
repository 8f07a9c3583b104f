package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, &ServerRecord{
		ID:             "srv-1",
		UserID:         "user-1",
		Name:           "Docs",
		URL:            "https://mcp.example.com/mcp",
		Enabled:        true,
		AuthStatus:     AuthStatusAuthorized,
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TokenExpiresAt: &expires,
		ClientID:       "client-a",
	}))

	require.NoError(t, s.Update(ctx, "srv-1", "user-1", Update{AccessToken: Ptr("access-2")}))

	rec, err := s.Get(ctx, "srv-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", rec.AccessToken)
	assert.Equal(t, "refresh", rec.RefreshToken, "unspecified fields must survive")
	assert.Equal(t, "client-a", rec.ClientID)
	assert.True(t, rec.Enabled)
	require.NotNil(t, rec.TokenExpiresAt)
	assert.Equal(t, expires, *rec.TokenExpiresAt)
}

func TestMemoryStore_ClearTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.Put(ctx, &ServerRecord{
		ID: "srv-1", UserID: "user-1", Enabled: true,
		AuthStatus: AuthStatusAuthorized, AccessToken: "a", RefreshToken: "r", TokenExpiresAt: &expires,
	}))

	require.NoError(t, s.Update(ctx, "srv-1", "user-1", Update{
		AuthStatus:  Ptr(AuthStatusRequired),
		Enabled:     Ptr(false),
		ClearTokens: true,
		AccessToken: Ptr("ignored"),
	}))

	rec, err := s.Get(ctx, "srv-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, AuthStatusRequired, rec.AuthStatus)
	assert.False(t, rec.Enabled)
	assert.Empty(t, rec.AccessToken)
	assert.Empty(t, rec.RefreshToken)
	assert.Nil(t, rec.TokenExpiresAt)
}

func TestMemoryStore_ClearExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.Put(ctx, &ServerRecord{
		ID: "srv-1", UserID: "user-1", AuthStatus: AuthStatusAuthorized,
		AccessToken: "a", RefreshToken: "r", TokenExpiresAt: &expires,
	}))

	require.NoError(t, s.Update(ctx, "srv-1", "user-1", Update{AccessToken: Ptr("b"), ClearExpiry: true}))

	rec, err := s.Get(ctx, "srv-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "b", rec.AccessToken)
	assert.Equal(t, "r", rec.RefreshToken)
	assert.Nil(t, rec.TokenExpiresAt)
	assert.False(t, Update{ClearExpiry: true}.IsEmpty())
}

func TestMemoryStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing", "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "missing", "user-1", Update{Enabled: Ptr(true)}), ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing", "user-1"), ErrNotFound)
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	callerExpiry := expires
	original := &ServerRecord{ID: "srv-1", UserID: "user-1", TokenExpiresAt: &callerExpiry}
	require.NoError(t, s.Put(ctx, original))

	original.Name = "mutated"
	*original.TokenExpiresAt = expires.Add(time.Hour)

	rec, err := s.Get(ctx, "srv-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, rec.Name)
	assert.Equal(t, expires, *rec.TokenExpiresAt)
	assert.Equal(t, AuthStatusUnknown, rec.AuthStatus, "Put defaults the status")

	rec.Name = "also mutated"
	again, err := s.Get(ctx, "srv-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, again.Name)
}

func TestMemoryStore_RecordsAreScopedPerUser(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, &ServerRecord{ID: "srv-1", UserID: "alice", AuthStatus: AuthStatusAuthorized, AccessToken: "a"}))
	require.NoError(t, s.Put(ctx, &ServerRecord{ID: "srv-1", UserID: "bob", AuthStatus: AuthStatusRequired}))

	alice, err := s.Get(ctx, "srv-1", "alice")
	require.NoError(t, err)
	bob, err := s.Get(ctx, "srv-1", "bob")
	require.NoError(t, err)

	assert.Equal(t, "a", alice.AccessToken)
	assert.Empty(t, bob.AccessToken)

	require.NoError(t, s.Delete(ctx, "srv-1", "bob"))
	_, err = s.Get(ctx, "srv-1", "alice")
	assert.NoError(t, err)
}

func TestServerRecord_Status(t *testing.T) {
	assert.Equal(t, AuthStatusUnknown, (&ServerRecord{AuthStatus: "bogus"}).Status())
	assert.Equal(t, AuthStatusFailed, (&ServerRecord{AuthStatus: AuthStatusFailed}).Status())
	assert.True(t, Update{}.IsEmpty())
	assert.False(t, Update{ClearTokens: true}.IsEmpty())
}
