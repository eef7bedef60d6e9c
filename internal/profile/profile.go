// Package profile defines the store that maps an authenticated principal to
// its application user record.
package profile

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/classkeeper/authsession/internal/model"
)

// Store loads application profiles by principal ID.
type Store interface {
	// FetchProfile loads the profile for the given principal. Returns
	// errs.ErrProfileNotFound when no row exists.
	FetchProfile(ctx context.Context, principalID uuid.UUID) (*model.UserProfile, error)
}
