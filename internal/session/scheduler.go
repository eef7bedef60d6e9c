package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classkeeper/authsession/internal/clock"
)

// Default lead times before expiry: refresh early enough to absorb network
// delays, warn later so the user can extend the session by hand.
const (
	DefaultRefreshLead = 15 * time.Minute
	DefaultWarnLead    = 5 * time.Minute
)

// Scheduler owns the warning and refresh timers for one session. Every
// Rearm cancels both timers unconditionally and reschedules against the
// new expiry, so stale timers never fire against a superseded session.
// A generation counter guards against timers whose Stop raced their fire.
type Scheduler struct {
	mu          sync.Mutex
	clk         clock.Clock
	log         *zap.Logger
	refreshLead time.Duration
	warnLead    time.Duration

	// onRefresh runs on the timer goroutine when the refresh point is
	// reached; onWarn when the warning point is reached.
	onRefresh func()
	onWarn    func(expiresAt time.Time, remaining time.Duration)

	gen          uint64
	refreshTimer clock.Timer
	warnTimer    clock.Timer
	armed        bool
	refreshing   bool
}

// NewScheduler constructs a disarmed scheduler. onRefresh and onWarn are
// invoked from timer goroutines.
func NewScheduler(clk clock.Clock, log *zap.Logger, refreshLead, warnLead time.Duration,
	onRefresh func(), onWarn func(time.Time, time.Duration)) *Scheduler {
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if refreshLead <= 0 {
		refreshLead = DefaultRefreshLead
	}
	if warnLead <= 0 {
		warnLead = DefaultWarnLead
	}
	return &Scheduler{
		clk:         clk,
		log:         log,
		refreshLead: refreshLead,
		warnLead:    warnLead,
		onRefresh:   onRefresh,
		onWarn:      onWarn,
	}
}

// Rearm cancels any pending timers and schedules refresh and warning
// against expiresAt. A refresh point already in the past fires with zero
// delay (wake-from-sleep case). A warning point already in the past is
// skipped: the refresh will happen first and the warning is moot.
func (s *Scheduler) Rearm(expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	s.gen++
	g := s.gen
	s.armed = true

	now := s.clk.Now()
	untilExpiry := expiresAt.Sub(now)
	refreshIn := untilExpiry - s.refreshLead
	warnIn := untilExpiry - s.warnLead

	if refreshIn < 0 {
		refreshIn = 0
	}
	s.refreshTimer = s.clk.AfterFunc(refreshIn, func() { s.fireRefresh(g) })
	s.log.Debug("refresh scheduled",
		zap.Time("expiresAt", expiresAt),
		zap.Duration("refreshIn", refreshIn),
	)

	if warnIn > 0 {
		remaining := s.warnLead
		s.warnTimer = s.clk.AfterFunc(warnIn, func() { s.fireWarn(g, expiresAt, remaining) })
	}
}

// Disarm cancels both timers. Safe to call when idle.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.gen++
	s.armed = false
}

// Armed reports whether timers are currently scheduled.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// BeginRefresh marks a refresh in flight. Returns false if one is already
// running, in which case the caller must not proceed.
func (s *Scheduler) BeginRefresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshing {
		return false
	}
	s.refreshing = true
	return true
}

// EndRefresh clears the in-flight marker set by BeginRefresh.
func (s *Scheduler) EndRefresh() {
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

// cancelLocked stops and drops both timers. Caller holds s.mu.
func (s *Scheduler) cancelLocked() {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	if s.warnTimer != nil {
		s.warnTimer.Stop()
		s.warnTimer = nil
	}
}

func (s *Scheduler) fireRefresh(g uint64) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.refreshTimer = nil
	s.mu.Unlock()
	s.onRefresh()
}

func (s *Scheduler) fireWarn(g uint64, expiresAt time.Time, remaining time.Duration) {
	s.mu.Lock()
	if g != s.gen {
		s.mu.Unlock()
		return
	}
	s.warnTimer = nil
	s.mu.Unlock()
	s.log.Info("session expiring soon", zap.Time("expiresAt", expiresAt))
	s.onWarn(expiresAt, remaining)
}
