package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpgate/internal/testing/mock"
)

func TestVerifierStore_OneShot(t *testing.T) {
	ctx := context.Background()
	s := NewVerifierStore(NewMemoryKV(), "", 0)

	require.NoError(t, s.StoreVerifier(ctx, "state-1", "verifier-1"))

	got, err := s.RetrieveVerifier(ctx, "state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-1", got)

	_, err = s.RetrieveVerifier(ctx, "state-1")
	assert.ErrorIs(t, err, ErrVerifierNotFound)
}

func TestVerifierStore_Expires(t *testing.T) {
	ctx := context.Background()
	clock := mock.NewMockClock(time.Time{})
	s := NewVerifierStore(NewMemoryKV(WithClock(clock.Now)), "p:", 0)

	require.NoError(t, s.StoreVerifier(ctx, "state-1", "verifier-1"))
	clock.Advance(DefaultVerifierTTL + time.Second)

	_, err := s.RetrieveVerifier(ctx, "state-1")
	assert.ErrorIs(t, err, ErrVerifierNotFound)
}

func TestVerifierStore_RequiresValues(t *testing.T) {
	s := NewVerifierStore(NewMemoryKV(), "", 0)
	assert.Error(t, s.StoreVerifier(context.Background(), "", "v"))
	assert.Error(t, s.StoreVerifier(context.Background(), "s", ""))
}
