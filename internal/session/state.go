// Package session implements the authentication session lifecycle: state
// holding, timer-driven refresh scheduling, profile change watching, and
// the coordinator that ties them to external collaborators.
package session

import (
	"sync"
	"time"

	"github.com/classkeeper/authsession/internal/clock"
	"github.com/classkeeper/authsession/internal/model"
)

// State holds the current session and its bound profile. Both fields are
// set and cleared together: a session without a profile (or the reverse)
// is a defect. State is a pure holder; the coordinator observes
// transitions and reacts.
type State struct {
	mu      sync.RWMutex
	clk     clock.Clock
	session *model.Session
	profile *model.UserProfile
}

// NewState constructs an empty state using clk for expiry math.
func NewState(clk clock.Clock) *State {
	if clk == nil {
		clk = clock.System()
	}
	return &State{clk: clk}
}

// Set atomically replaces both session and profile. Both must be non-nil;
// use Clear to empty the state.
func (s *State) Set(sess *model.Session, prof *model.UserProfile) {
	if sess == nil || prof == nil {
		panic("session: State.Set requires both session and profile")
	}
	sc, pc := *sess, *prof
	s.mu.Lock()
	s.session, s.profile = &sc, &pc
	s.mu.Unlock()
}

// SetProfile replaces the profile in place, keeping the session. Used when
// the profile row changes mid-session. No-op while signed out.
func (s *State) SetProfile(prof *model.UserProfile) {
	if prof == nil {
		return
	}
	pc := *prof
	s.mu.Lock()
	if s.session != nil {
		s.profile = &pc
	}
	s.mu.Unlock()
}

// Clear atomically nils both session and profile.
func (s *State) Clear() {
	s.mu.Lock()
	s.session, s.profile = nil, nil
	s.mu.Unlock()
}

// Session returns a copy of the current session, or nil when signed out.
func (s *State) Session() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	c := *s.session
	return &c
}

// Profile returns a copy of the current profile, or nil when signed out.
func (s *State) Profile() *model.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	c := *s.profile
	return &c
}

// Authenticated reports whether a session is held.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// ExpiresAt returns the session expiry and whether a session is held.
func (s *State) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return time.Time{}, false
	}
	return s.session.ExpiresAt, true
}

// ExpiresIn reports the time remaining until expiry; zero when signed out
// or already expired, never negative.
func (s *State) ExpiresIn() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ExpiresIn(s.clk.Now())
}

// IsExpiringSoon reports whether the session expires within threshold but
// has not expired yet.
func (s *State) IsExpiringSoon(threshold time.Duration) bool {
	in := s.ExpiresIn()
	return in > 0 && in <= threshold
}
