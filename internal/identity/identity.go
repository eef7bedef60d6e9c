// Package identity defines the external identity-provider contract and a
// self-contained in-memory implementation used for development and tests.
package identity

import (
	"context"
	"errors"

	"github.com/classkeeper/authsession/internal/model"
)

// Provider issues, refreshes and revokes opaque sessions. Implementations
// must be safe for concurrent use.
type Provider interface {
	// SignIn verifies credentials and issues a new session.
	SignIn(ctx context.Context, username, password string) (*model.Session, error)
	// RefreshSession exchanges a live session for a new one. The old
	// session's refresh token is invalidated.
	RefreshSession(ctx context.Context, s *model.Session) (*model.Session, error)
	// SignOut revokes the session remotely.
	SignOut(ctx context.Context, s *model.Session) error
	// CurrentSession returns the persisted session, or (nil, nil) when
	// the principal is signed out.
	CurrentSession(ctx context.Context) (*model.Session, error)
}

// AuthError is a provider failure carrying a retry classification.
// Credential rejections are non-retryable; transient transport or 5xx
// failures are retryable.
type AuthError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsRetryable classifies err for retry purposes. Unknown errors are assumed
// transient and retryable; only an explicit AuthError veto stops retries.
func IsRetryable(err error) bool {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}
