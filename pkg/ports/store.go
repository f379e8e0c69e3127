package ports

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
)

// SessionStore defines the interface for persisting call session snapshots.
type SessionStore interface {
	// Save persists the snapshot for a given call ID.
	Save(ctx context.Context, callID string, session *domain.CallSession) error

	// Load retrieves the snapshot for a given call ID.
	// Returns domain.ErrSessionNotFound if the call does not exist.
	Load(ctx context.Context, callID string) (*domain.CallSession, error)

	// Delete removes the snapshot for a given call ID.
	Delete(ctx context.Context, callID string) error

	// List returns the IDs of all stored calls.
	List(ctx context.Context) ([]string, error)
}
