package store

import "context"

// ServerStore is the durable persistence contract for server records.
//
// Update must apply only the fields set in the Update and must return
// ErrNotFound when the record does not exist. Implementations are expected to
// be safe for concurrent use; no cross-row transactions are required.
type ServerStore interface {
	Get(ctx context.Context, serverID, userID string) (*ServerRecord, error)
	Update(ctx context.Context, serverID, userID string, update Update) error
	Put(ctx context.Context, record *ServerRecord) error
	Delete(ctx context.Context, serverID, userID string) error
}
