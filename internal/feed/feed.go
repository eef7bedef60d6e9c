// Package feed defines the change-notification contract for profile rows
// and an in-memory implementation for tests and single-process setups.
package feed

import (
	"context"

	"github.com/gofrs/uuid/v5"
)

// Kind classifies a profile row change.
type Kind string

const (
	// Updated means the profile row was modified; consumers should re-fetch.
	Updated Kind = "UPDATE"
	// Deleted means the profile row was removed; the principal is gone.
	Deleted Kind = "DELETE"
)

// Event is one change notification for a watched principal.
type Event struct {
	Kind        Kind
	PrincipalID uuid.UUID
}

// Subscription is a live stream of change events for one principal. Events
// is closed after Close returns.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Feed opens per-principal change subscriptions.
type Feed interface {
	// Subscribe starts streaming changes for principalID. The subscription
	// ends when Close is called or ctx is cancelled.
	Subscribe(ctx context.Context, principalID uuid.UUID) (Subscription, error)
}
