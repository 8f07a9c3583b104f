package store

import (
	"context"
	"fmt"
	"sync"
)

type recordKey struct {
	serverID string
	userID   string
}

// MemoryStore is an in-process ServerStore. Records are copied on the way in
// and out so callers can never mutate stored state directly.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]*ServerRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]*ServerRecord)}
}

func (s *MemoryStore) Get(_ context.Context, serverID, userID string) (*ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{serverID, userID}]
	if !ok {
		return nil, fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, serverID, userID string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[recordKey{serverID, userID}]
	if !ok {
		return fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
	}
	update.Apply(rec)
	return nil
}

func (s *MemoryStore) Put(_ context.Context, record *ServerRecord) error {
	if record == nil || record.ID == "" || record.UserID == "" {
		return fmt.Errorf("record requires id and userId")
	}
	rec := record.Clone()
	if rec.AuthStatus == "" {
		rec.AuthStatus = AuthStatusUnknown
	}

	s.mu.Lock()
	s.records[recordKey{rec.ID, rec.UserID}] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, serverID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{serverID, userID}
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%w: server %s user %s", ErrNotFound, serverID, userID)
	}
	delete(s.records, key)
	return nil
}
