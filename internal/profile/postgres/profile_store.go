package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/classkeeper/authsession/internal/errs"
	"github.com/classkeeper/authsession/internal/model"
)

// ProfileStore loads application user records joined with their role.
type ProfileStore struct{ db *DB }

// NewProfileStore constructs a profile store.
func NewProfileStore(db *DB) *ProfileStore { return &ProfileStore{db: db} }

// FetchProfile loads the profile row for a principal, including role code
// and permission map. Returns errs.ErrProfileNotFound when no row exists.
func (s *ProfileStore) FetchProfile(ctx context.Context, principalID uuid.UUID) (*model.UserProfile, error) {
	const q = `
SELECT u.auth_user_id, u.full_name, r.role_code, r.permissions
FROM users u
JOIN roles r ON r.id = u.role_id
WHERE u.auth_user_id = $1`
	row := s.db.Pool.QueryRow(ctx, q, principalID)

	var (
		p        model.UserProfile
		permsRaw []byte
	)
	if err := row.Scan(&p.PrincipalID, &p.DisplayName, &p.Role.Code, &permsRaw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrProfileNotFound
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if len(permsRaw) > 0 {
		if err := json.Unmarshal(permsRaw, &p.Role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &p, nil
}
