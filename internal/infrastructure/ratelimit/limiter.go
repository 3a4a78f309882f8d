package ratelimit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/integration"
)

// window durations for the two counters
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// state holds the per-integration sliding counters. Acquisition and the
// associated increments are a single atomic unit under the state's mutex.
type state struct {
	mu          sync.Mutex
	limits      integration.RateLimits
	minuteCount int
	hourCount   int
	minuteReset time.Time
	hourReset   time.Time
}

// Limiter bounds outbound request volume per integration with two
// fixed-boundary windows (minute and hour). Safe for concurrent callers.
type Limiter struct {
	mu     sync.RWMutex
	states map[uuid.UUID]*state
	now    func() time.Time
}

// NewLimiter creates an empty limiter
func NewLimiter() *Limiter {
	return &Limiter{
		states: make(map[uuid.UUID]*state),
		now:    time.Now,
	}
}

// Configure installs or replaces the limits for an integration.
// Counters restart when limits change.
func (l *Limiter) Configure(id uuid.UUID, limits integration.RateLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.states[id] = &state{
		limits:      limits,
		minuteReset: now.Add(minuteWindow),
		hourReset:   now.Add(hourWindow),
	}
}

// Remove drops the limiter state for an integration
func (l *Limiter) Remove(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, id)
}

// TryAcquire attempts to take one permit for the integration. Both windows
// must have headroom; on success both counters are incremented. Returns
// false, without mutating counters, when either budget is exhausted or
// when the integration was never configured.
func (l *Limiter) TryAcquire(id uuid.UUID) bool {
	l.mu.RLock()
	s, ok := l.states[id]
	l.mu.RUnlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.roll(l.now())

	if s.minuteCount >= s.limits.PerMinute || s.hourCount >= s.limits.PerHour {
		return false
	}
	s.minuteCount++
	s.hourCount++
	return true
}

// Headroom returns the remaining permits in the minute and hour windows
func (l *Limiter) Headroom(id uuid.UUID) (minute, hour int) {
	l.mu.RLock()
	s, ok := l.states[id]
	l.mu.RUnlock()
	if !ok {
		return 0, 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.roll(l.now())
	return s.limits.PerMinute - s.minuteCount, s.limits.PerHour - s.hourCount
}

// roll resets any counter whose window boundary has passed and advances
// the boundary by whole windows
func (s *state) roll(now time.Time) {
	if !now.Before(s.minuteReset) {
		s.minuteCount = 0
		for !now.Before(s.minuteReset) {
			s.minuteReset = s.minuteReset.Add(minuteWindow)
		}
	}
	if !now.Before(s.hourReset) {
		s.hourCount = 0
		for !now.Before(s.hourReset) {
			s.hourReset = s.hourReset.Add(hourWindow)
		}
	}
}
