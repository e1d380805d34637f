// Package store provides crash-safe persistence for response and session
// records, with an in-memory fallback for when the durable backend cannot
// be opened.
package store

import (
	"context"
	"errors"

	"github.com/livedeck/responsync/internal/schema"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract shared by the durable SQLite backend
// and the in-memory fallback. Every mutation is atomic: partial writes are
// never observable, even across multi-row operations.
type Store interface {
	// PutResponse inserts or replaces a response record.
	PutResponse(ctx context.Context, rec *schema.ResponseRecord) error

	// GetResponse retrieves a response record by id.
	// Returns ErrNotFound if no such record exists.
	GetResponse(ctx context.Context, id string) (*schema.ResponseRecord, error)

	// DeleteResponse removes a response record.
	// Deleting an absent record is a no-op.
	DeleteResponse(ctx context.Context, id string) error

	// ListUnsynced returns all unsynced response records owned by the
	// given participant, in creation order.
	ListUnsynced(ctx context.Context, participantID string) ([]*schema.ResponseRecord, error)

	// DeleteResponsesFor removes every response record owned by the
	// given participant, regardless of sync state. Returns the number
	// of records removed.
	DeleteResponsesFor(ctx context.Context, participantID string) (int, error)

	// ActivateSession upserts the session record with IsActive=true and
	// deactivates every other active session in the same transaction,
	// so at most one active session exists after the call.
	ActivateSession(ctx context.Context, rec *schema.SessionRecord) error

	// DeactivateSession flips a session record to IsActive=false.
	// Unknown session ids are a no-op.
	DeactivateSession(ctx context.Context, sessionID string) error

	// ListSessions returns all session records, most recently joined first.
	ListSessions(ctx context.Context) ([]*schema.SessionRecord, error)

	Close() error
}
