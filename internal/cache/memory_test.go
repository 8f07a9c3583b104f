package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/testing/mock"
)

func TestMemoryKV_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := mock.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	kv := NewMemoryKV(WithClock(clock.Now))

	require.NoError(t, kv.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, kv.Set(ctx, "forever", []byte("2"), 0))

	got, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	clock.Advance(time.Minute)
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	clock.Advance(24 * time.Hour)
	got, err = kv.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
	assert.Equal(t, 1, kv.Len(), "expired keys are swept on read")
}

func TestMemoryKV_GetDel(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	require.NoError(t, kv.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := kv.GetDel(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	_, err = kv.GetDel(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryKV_CopiesValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	value := []byte("abc")
	require.NoError(t, kv.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
