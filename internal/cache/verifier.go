package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultVerifierTTL is how long a PKCE verifier waits for its callback.
const DefaultVerifierTTL = 10 * time.Minute

// ErrVerifierNotFound is returned when no verifier is stored for a state, or it was already used.
var ErrVerifierNotFound = errors.New("pkce verifier not found")

// VerifierStore keeps PKCE code verifiers keyed by the OAuth state parameter
// between the authorization redirect and the callback.
type VerifierStore struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

// NewVerifierStore creates a VerifierStore on kv.
func NewVerifierStore(kv KV, prefix string, ttl time.Duration) *VerifierStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultVerifierTTL
	}
	return &VerifierStore{kv: kv, prefix: prefix, ttl: ttl}
}

func (s *VerifierStore) key(state string) string {
	return s.prefix + "pkce:" + state
}

// StoreVerifier saves verifier under state.
func (s *VerifierStore) StoreVerifier(ctx context.Context, state, verifier string) error {
	if state == "" || verifier == "" {
		return fmt.Errorf("state and verifier are required")
	}
	return s.kv.Set(ctx, s.key(state), []byte(verifier), s.ttl)
}

// RetrieveVerifier returns and removes the verifier for state. A second call
// for the same state returns ErrVerifierNotFound.
func (s *VerifierStore) RetrieveVerifier(ctx context.Context, state string) (string, error) {
	data, err := s.kv.GetDel(ctx, s.key(state))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", ErrVerifierNotFound
		}
		return "", fmt.Errorf("failed to read pkce verifier: %w", err)
	}
	return string(data), nil
}
