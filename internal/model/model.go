// Package model defines domain entities shared by the session subsystem and its collaborators.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// RoleAdmin passes every permission check implicitly.
const RoleAdmin = "ADMIN"

// Session is the opaque, time-bounded credential issued by the identity
// provider. The subsystem never parses AccessToken; it only tracks expiry.
// Sessions are replaced wholesale on refresh, never mutated in place.
type Session struct {
	AccessToken  string
	RefreshToken string
	PrincipalID  uuid.UUID
	ExpiresAt    time.Time
}

// ExpiresIn reports time remaining until expiry relative to now; never negative.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Role is the application role bound to a profile, with a flat permission map.
type Role struct {
	Code        string
	Permissions map[string]bool
}

// UserProfile is the application-level user record bound 1:1 to a live session.
type UserProfile struct {
	PrincipalID uuid.UUID
	DisplayName string
	Role        Role
}

// HasPermission reports whether the profile grants the named permission.
// Administrators pass every check.
func (p *UserProfile) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	if p.Role.Code == RoleAdmin {
		return true
	}
	return p.Role.Permissions[permission]
}

// HasRole reports whether the profile carries the given role code.
func (p *UserProfile) HasRole(code string) bool {
	return p != nil && p.Role.Code == code
}

// HasAnyRole reports whether the profile carries any of the given role codes.
func (p *UserProfile) HasAnyRole(codes ...string) bool {
	if p == nil {
		return false
	}
	for _, c := range codes {
		if p.Role.Code == c {
			return true
		}
	}
	return false
}
