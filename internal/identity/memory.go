package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/classkeeper/authsession/internal/clock"
	"github.com/classkeeper/authsession/internal/model"
)

// Argon2id parameters for credential hashing.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// Memory is an in-process Provider: it stores Argon2id-hashed credentials,
// issues HS256 access tokens with a fixed TTL, and rotates opaque refresh
// tokens on every refresh. It remembers the last issued session so
// CurrentSession can restore it, mirroring a hosted provider's persisted
// session. Intended for development, demos and tests.
type Memory struct {
	mu        sync.Mutex
	signKey   []byte
	accessTTL time.Duration
	clk       clock.Clock

	accounts map[string]account       // username -> credentials
	refresh  map[string]uuid.UUID     // refresh token -> principal
	users    map[uuid.UUID]string     // principal -> username (for diagnostics)
	current  *model.Session
}

type account struct {
	principalID uuid.UUID
	salt        []byte
	hash        []byte
}

// NewMemory constructs an empty in-memory provider.
func NewMemory(signKey []byte, accessTTL time.Duration, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System()
	}
	return &Memory{
		signKey:   signKey,
		accessTTL: accessTTL,
		clk:       clk,
		accounts:  make(map[string]account),
		refresh:   make(map[string]uuid.UUID),
		users:     make(map[uuid.UUID]string),
	}
}

// Seed registers a username/password account and returns its principal ID.
func (m *Memory) Seed(username, password string) (uuid.UUID, error) {
	salt, err := randBytes(16)
	if err != nil {
		return uuid.Nil, err
	}
	pid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[username] = account{
		principalID: pid,
		salt:        salt,
		hash:        hashPassword([]byte(password), salt),
	}
	m.users[pid] = username
	return pid, nil
}

// SignIn verifies credentials and issues a fresh session.
func (m *Memory) SignIn(_ context.Context, username, password string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[username]
	if !ok || !verifyPassword([]byte(password), acct.salt, acct.hash) {
		// Existence of the account is not revealed on wrong password.
		return nil, &AuthError{Code: "invalid_credentials", Message: "invalid username or password", Retryable: false}
	}
	return m.issueLocked(acct.principalID)
}

// RefreshSession rotates the refresh token and issues a new session.
func (m *Memory) RefreshSession(_ context.Context, s *model.Session) (*model.Session, error) {
	if s == nil || s.RefreshToken == "" {
		return nil, &AuthError{Code: "invalid_grant", Message: "missing refresh token", Retryable: false}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	pid, ok := m.refresh[s.RefreshToken]
	if !ok {
		return nil, &AuthError{Code: "invalid_grant", Message: "refresh token revoked", Retryable: false}
	}
	delete(m.refresh, s.RefreshToken)
	return m.issueLocked(pid)
}

// SignOut revokes the session's refresh token and forgets the persisted session.
func (m *Memory) SignOut(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s != nil {
		delete(m.refresh, s.RefreshToken)
	}
	m.current = nil
	return nil
}

// CurrentSession returns the persisted session, or (nil, nil) when signed out.
// An expired session is still returned; expiry handling belongs to the caller.
func (m *Memory) CurrentSession(context.Context) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, nil
	}
	cpy := *m.current
	return &cpy, nil
}

// issueLocked mints a signed access token plus rotated refresh token.
// Caller holds m.mu.
func (m *Memory) issueLocked(pid uuid.UUID) (*model.Session, error) {
	now := m.clk.Now()
	exp := now.Add(m.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   pid.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signKey)
	if err != nil {
		return nil, err
	}
	rt, err := randBytes(24)
	if err != nil {
		return nil, err
	}
	refreshToken := hex.EncodeToString(rt)
	m.refresh[refreshToken] = pid

	sess := &model.Session{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		PrincipalID:  pid,
		ExpiresAt:    exp,
	}
	cpy := *sess
	m.current = &cpy
	out := *sess
	return &out, nil
}

func randBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

func hashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func verifyPassword(password, salt, expected []byte) bool {
	got := hashPassword(password, salt)
	return subtle.ConstantTimeCompare(got, expected) == 1
}
