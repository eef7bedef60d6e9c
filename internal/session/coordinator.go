package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/classkeeper/authsession/internal/authevent"
	"github.com/classkeeper/authsession/internal/clock"
	"github.com/classkeeper/authsession/internal/errs"
	"github.com/classkeeper/authsession/internal/feed"
	"github.com/classkeeper/authsession/internal/identity"
	"github.com/classkeeper/authsession/internal/model"
	"github.com/classkeeper/authsession/internal/netcheck"
	"github.com/classkeeper/authsession/internal/profile"
	"github.com/classkeeper/authsession/internal/retry"
)

// Default operational bounds.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultOpTimeout      = 30 * time.Second
)

// Deps are the external collaborators injected into a Coordinator.
type Deps struct {
	Identity identity.Provider
	Profiles profile.Store
	Feed     feed.Feed
	Net      netcheck.Checker
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Option tunes a Coordinator at construction time.
type Option func(*Coordinator)

// WithLeadTimes overrides the refresh and warning lead times before expiry.
func WithLeadTimes(refreshLead, warnLead time.Duration) Option {
	return func(c *Coordinator) {
		c.refreshLead = refreshLead
		c.warnLead = warnLead
	}
}

// WithConnectTimeout bounds Bootstrap's wait for connectivity.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.connectTimeout = d }
}

// WithBootstrapRetry overrides the retry policy for session restoration.
func WithBootstrapRetry(cfg retry.Config) Option {
	return func(c *Coordinator) { c.bootstrapRetry = cfg }
}

// WithSignInRetry overrides the retry policy for sign-in.
func WithSignInRetry(cfg retry.Config) Option {
	return func(c *Coordinator) { c.signInRetry = cfg }
}

// WithRefreshRetry overrides the retry policy for token refresh.
func WithRefreshRetry(cfg retry.Config) Option {
	return func(c *Coordinator) { c.refreshRetry = cfg }
}

// Coordinator owns the session lifecycle: it restores or establishes a
// session, keeps it fresh with scheduled refreshes, watches the profile
// row for changes, and fans state transitions out to subscribers. All
// state transitions are serialized; no direct state mutation is exposed.
type Coordinator struct {
	identity identity.Provider
	profiles profile.Store
	net      netcheck.Checker
	clk      clock.Clock
	log      *zap.Logger

	state   *State
	bus     *authevent.Bus
	sched   *Scheduler
	watcher *Watcher

	// opMu serializes state transitions (sign-in, sign-out, refresh,
	// bootstrap). Timer and watcher callbacks funnel through the same
	// public operations, so they share the serialization point.
	opMu sync.Mutex

	// Emissions are enqueued while opMu is held and drained after it is
	// released: delivery order matches mutation order, and a handler may
	// call back into operations without deadlocking. Only one drainer
	// runs at a time; nested flushes hand their events to it.
	emitMu   sync.Mutex
	pending  []emission
	flushing bool

	refreshLead    time.Duration
	warnLead       time.Duration
	connectTimeout time.Duration
	opTimeout      time.Duration
	bootstrapRetry retry.Config
	signInRetry    retry.Config
	refreshRetry   retry.Config
}

// New wires a Coordinator from its collaborators. Deps.Identity and
// Deps.Profiles are required; Feed and Net may be nil, disabling profile
// watching and the connectivity gate respectively.
func New(deps Deps, opts ...Option) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System()
	}

	c := &Coordinator{
		identity:       deps.Identity,
		profiles:       deps.Profiles,
		net:            deps.Net,
		clk:            clk,
		log:            log,
		state:          NewState(clk),
		bus:            authevent.NewBus(log),
		refreshLead:    DefaultRefreshLead,
		warnLead:       DefaultWarnLead,
		connectTimeout: defaultConnectTimeout,
		opTimeout:      defaultOpTimeout,
		bootstrapRetry: retry.Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 5 * time.Second},
		signInRetry: retry.Config{
			MaxRetries:     3,
			InitialDelay:   time.Second,
			MaxDelay:       5 * time.Second,
			RetryCondition: identity.IsRetryable,
		},
		refreshRetry: retry.Config{
			MaxRetries:     3,
			InitialDelay:   time.Second,
			MaxDelay:       5 * time.Second,
			RetryCondition: identity.IsRetryable,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.sched = NewScheduler(clk, log, c.refreshLead, c.warnLead, c.onRefreshDue, c.onWarnDue)
	if deps.Feed != nil {
		c.watcher = NewWatcher(deps.Feed, log, c.onProfileUpdated, c.onProfileDeleted)
	}
	return c
}

type emission struct {
	evt  authevent.Type
	data authevent.Payload
}

// enqueue records an event for delivery. Called with opMu held when the
// event accompanies a state mutation.
func (c *Coordinator) enqueue(evt authevent.Type, data authevent.Payload) {
	c.emitMu.Lock()
	c.pending = append(c.pending, emission{evt: evt, data: data})
	c.emitMu.Unlock()
}

// flush drains pending emissions in FIFO order. Must not be called with
// opMu held. A flush that finds another one draining returns immediately;
// the active drainer picks up whatever was enqueued meanwhile.
func (c *Coordinator) flush() {
	c.emitMu.Lock()
	if c.flushing {
		c.emitMu.Unlock()
		return
	}
	c.flushing = true
	for len(c.pending) > 0 {
		e := c.pending[0]
		c.pending = c.pending[1:]
		c.emitMu.Unlock()
		c.bus.Emit(e.evt, e.data)
		c.emitMu.Lock()
	}
	c.flushing = false
	c.emitMu.Unlock()
}

// emit queues and delivers an event outside any operation.
func (c *Coordinator) emit(evt authevent.Type, data authevent.Payload) {
	c.enqueue(evt, data)
	c.flush()
}

// OnAuthEvent registers handler under id on the event bus and returns an
// unsubscribe func.
func (c *Coordinator) OnAuthEvent(id string, h authevent.Handler) func() {
	return c.bus.On(id, h)
}

// IsAuthenticated reports whether a session is currently held.
func (c *Coordinator) IsAuthenticated() bool { return c.state.Authenticated() }

// Profile returns a copy of the signed-in profile, or nil.
func (c *Coordinator) Profile() *model.UserProfile { return c.state.Profile() }

// ExpiresIn reports the time remaining on the current session.
func (c *Coordinator) ExpiresIn() time.Duration { return c.state.ExpiresIn() }

// IsExpiringSoon reports whether the session expires within the warning lead.
func (c *Coordinator) IsExpiringSoon() bool { return c.state.IsExpiringSoon(c.warnLead) }

// HasPermission reports whether the signed-in profile grants permission.
func (c *Coordinator) HasPermission(permission string) bool {
	return c.state.Profile().HasPermission(permission)
}

// HasRole reports whether the signed-in profile carries the role code.
func (c *Coordinator) HasRole(code string) bool { return c.state.Profile().HasRole(code) }

// HasAnyRole reports whether the signed-in profile carries any of the codes.
func (c *Coordinator) HasAnyRole(codes ...string) bool {
	return c.state.Profile().HasAnyRole(codes...)
}

// Bootstrap restores a persisted session, if any. Offline hosts wait up to
// the connectivity bound first. Finding no session is not an error: it is
// the signed-out steady state. A session whose profile cannot be resolved
// is torn down and signed out remotely.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	c.opMu.Lock()
	err := c.bootstrapLocked(ctx)
	c.opMu.Unlock()
	c.flush()
	return err
}

func (c *Coordinator) bootstrapLocked(ctx context.Context) error {
	if c.net != nil && !c.net.IsOnline(ctx) {
		c.log.Warn("offline, waiting for connectivity", zap.Duration("bound", c.connectTimeout))
		if err := c.net.WaitForOnline(ctx, c.connectTimeout); err != nil {
			return err
		}
	}

	sess, err := retry.Do(ctx, c.withRetryLog("restore session", c.bootstrapRetry),
		func(ctx context.Context) (*model.Session, error) {
			return c.identity.CurrentSession(ctx)
		})
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if sess == nil {
		c.log.Info("no persisted session found")
		c.enqueue(authevent.AuthStateChanged, authevent.Payload{"authenticated": false})
		return nil
	}

	if err := c.adoptSession(ctx, sess); err != nil {
		return err
	}
	c.log.Info("session restored",
		zap.String("principalID", sess.PrincipalID.String()),
		zap.Time("expiresAt", sess.ExpiresAt),
	)
	c.enqueue(authevent.AuthStateChanged, authevent.Payload{"authenticated": true})
	return nil
}

// SignIn authenticates credentials and establishes the session. Credential
// rejections are surfaced immediately without retries.
func (c *Coordinator) SignIn(ctx context.Context, username, password string) (*model.UserProfile, error) {
	c.opMu.Lock()
	prof, err := c.signInLocked(ctx, username, password)
	c.opMu.Unlock()
	c.flush()
	return prof, err
}

func (c *Coordinator) signInLocked(ctx context.Context, username, password string) (*model.UserProfile, error) {
	sess, err := retry.Do(ctx, c.withRetryLog("sign in", c.signInRetry),
		func(ctx context.Context) (*model.Session, error) {
			return c.identity.SignIn(ctx, username, password)
		})
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	if err := c.adoptSession(ctx, sess); err != nil {
		return nil, err
	}
	prof := c.state.Profile()
	c.log.Info("signed in", zap.String("displayName", prof.DisplayName), zap.String("role", prof.Role.Code))
	c.enqueue(authevent.SignedIn, authevent.Payload{"profile": prof})
	return prof, nil
}

// SignOut tears the session down locally and revokes it remotely on a
// best-effort basis: remote failure never blocks local logout. Calling it
// while signed out is a no-op and emits nothing.
func (c *Coordinator) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	sess := c.state.Session()
	if sess == nil {
		c.opMu.Unlock()
		return nil
	}
	c.teardown()
	c.enqueue(authevent.SignedOut, authevent.Payload{})
	c.opMu.Unlock()
	c.flush()

	if err := c.identity.SignOut(ctx, sess); err != nil {
		c.log.Warn("remote sign-out failed", zap.Error(err))
	}
	return nil
}

// Refresh exchanges the current session for a fresh one. At most one
// refresh runs at a time: concurrent callers get errs.ErrRefreshInFlight.
// Exhausted retries escalate to a forced sign-out; a near-expiry session
// that cannot be refreshed must not keep looking authenticated.
func (c *Coordinator) Refresh(ctx context.Context) (*model.Session, error) {
	if !c.sched.BeginRefresh() {
		return nil, errs.ErrRefreshInFlight
	}
	defer c.sched.EndRefresh()

	c.opMu.Lock()
	cur := c.state.Session()
	if cur == nil {
		c.opMu.Unlock()
		return nil, errs.ErrNoSession
	}

	newSess, err := retry.Do(ctx, c.withRetryLog("refresh session", c.refreshRetry),
		func(ctx context.Context) (*model.Session, error) {
			return c.identity.RefreshSession(ctx, cur)
		})
	if err != nil {
		c.log.Error("session refresh failed, forcing sign-out", zap.Error(err))
		c.teardown()
		c.enqueue(authevent.SessionExpired, authevent.Payload{"cause": err.Error()})
		c.enqueue(authevent.SignedOut, authevent.Payload{})
		c.opMu.Unlock()
		c.flush()
		if serr := c.identity.SignOut(ctx, cur); serr != nil {
			c.log.Warn("remote sign-out failed", zap.Error(serr))
		}
		return nil, err
	}

	prof := c.state.Profile()
	c.state.Set(newSess, prof)
	c.sched.Rearm(newSess.ExpiresAt)
	c.enqueue(authevent.TokenRefreshed, authevent.Payload{"newExpiresAt": newSess.ExpiresAt})
	c.enqueue(authevent.SessionRefreshed, authevent.Payload{"expiresAt": newSess.ExpiresAt})
	c.opMu.Unlock()

	c.log.Info("session refreshed", zap.Time("newExpiresAt", newSess.ExpiresAt))
	c.flush()
	return newSess, nil
}

// Close disarms timers and detaches the watcher without signing out.
func (c *Coordinator) Close() {
	c.sched.Disarm()
	if c.watcher != nil {
		c.watcher.Detach()
	}
}

// adoptSession resolves the profile, installs both atomically, arms the
// scheduler and attaches the watcher. Caller holds opMu. Profile
// resolution failure is fatal to the session.
func (c *Coordinator) adoptSession(ctx context.Context, sess *model.Session) error {
	prof, err := c.profiles.FetchProfile(ctx, sess.PrincipalID)
	if err != nil {
		c.log.Error("profile resolution failed, discarding session", zap.Error(err))
		c.teardown()
		if serr := c.identity.SignOut(ctx, sess); serr != nil {
			c.log.Warn("remote sign-out failed", zap.Error(serr))
		}
		return fmt.Errorf("resolve profile: %w", err)
	}

	c.state.Set(sess, prof)
	c.sched.Rearm(sess.ExpiresAt)
	if c.watcher != nil {
		if werr := c.watcher.Attach(ctx, sess.PrincipalID); werr != nil {
			// Degraded mode: the session works, profile changes just
			// won't stream in.
			c.log.Warn("profile watcher attach failed", zap.Error(werr))
		}
	}
	return nil
}

// teardown clears state, cancels timers and detaches the watcher.
// Caller holds opMu.
func (c *Coordinator) teardown() {
	c.state.Clear()
	c.sched.Disarm()
	if c.watcher != nil {
		c.watcher.Detach()
	}
}

// onRefreshDue runs when the refresh timer fires.
func (c *Coordinator) onRefreshDue() {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()
	if _, err := c.Refresh(ctx); err != nil {
		switch {
		case errors.Is(err, errs.ErrRefreshInFlight):
			c.log.Debug("refresh timer fired while a refresh was in flight")
		case errors.Is(err, errs.ErrNoSession):
			// Timer raced a sign-out; nothing to do.
		}
	}
}

// onWarnDue runs when the warning timer fires. Advisory only: a subscriber
// may react by calling Refresh early.
func (c *Coordinator) onWarnDue(expiresAt time.Time, remaining time.Duration) {
	c.emit(authevent.SessionExpiringSoon, authevent.Payload{
		"expiresAt":       expiresAt,
		"remainingMillis": remaining.Milliseconds(),
	})
}

// onProfileUpdated re-fetches the profile after a change notification.
// Fetch failures are logged only: a transient fetch error is not evidence
// the session is invalid.
func (c *Coordinator) onProfileUpdated(principalID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	prof, err := c.profiles.FetchProfile(ctx, principalID)
	if err != nil {
		c.log.Warn("profile re-fetch failed", zap.Error(err))
		return
	}
	c.state.SetProfile(prof)
	c.log.Info("profile updated", zap.String("displayName", prof.DisplayName))
	c.emit(authevent.UserUpdated, authevent.Payload{"profile": prof})
}

// onProfileDeleted handles removal of the profile row: the principal no
// longer exists for the application, so the session is forced out.
func (c *Coordinator) onProfileDeleted(principalID uuid.UUID) {
	c.log.Warn("profile deleted, forcing sign-out", zap.String("principalID", principalID.String()))
	c.enqueue(authevent.UserDeleted, authevent.Payload{"principalID": principalID.String()})

	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	c.opMu.Lock()
	sess := c.state.Session()
	if sess == nil {
		c.opMu.Unlock()
		c.flush()
		return
	}
	c.teardown()
	c.enqueue(authevent.SignedOut, authevent.Payload{})
	c.opMu.Unlock()
	c.flush()

	if err := c.identity.SignOut(ctx, sess); err != nil {
		c.log.Warn("remote sign-out failed", zap.Error(err))
	}
}

// withRetryLog attaches a logging observer to cfg, preserving any caller
// supplied observer.
func (c *Coordinator) withRetryLog(op string, cfg retry.Config) retry.Config {
	inner := cfg.OnRetry
	cfg.OnRetry = func(a retry.Attempt) {
		c.log.Warn("retrying "+op,
			zap.Int("attempt", a.Number),
			zap.Duration("backoff", a.NextDelay),
			zap.Error(a.Err),
		)
		if inner != nil {
			inner(a)
		}
	}
	return cfg
}
