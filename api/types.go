package api

import (
	"context"
)

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Permissions answers the per-board write gate.
type Permissions interface {
	CanTransition(ctx context.Context, userID, board string) (bool, error)
}

// Deduper prevents processing of duplicate move commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
