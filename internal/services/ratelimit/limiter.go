package ratelimit

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
)

// Config holds the limiter's thresholds
type Config struct {
	Limit        int           // Requests tolerated before a penalty
	FirstWindow  time.Duration // clear_after on the first request
	QuietWindow  time.Duration // clear_after while under the limit
	PenaltyUnit  time.Duration // Penalty per recorded request once over the limit
	MaxPenalty   time.Duration
	PenaltyGrace time.Duration // Added to the penalty for clear_after
	StaleAfter   time.Duration // Entries whose retry_after is this far in the past are reaped
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		Limit:        50,
		FirstWindow:  5 * time.Minute,
		QuietWindow:  time.Minute,
		PenaltyUnit:  5 * time.Second,
		MaxPenalty:   time.Hour,
		PenaltyGrace: 150 * time.Second,
		StaleAfter:   time.Hour,
	}
}

// Entry is the abuse counter for one connection
type Entry struct {
	Times      int
	Limit      int
	ClearAfter *time.Time
	RetryAfter *time.Time
}

// Limiter counts requests per connection and imposes growing penalties
type Limiter struct {
	mu      sync.Mutex
	entries map[model.ConnID]*Entry
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
}

// New creates a Limiter
func New(clk clock.Clock, cfg Config, logger *slog.Logger) *Limiter {
	return &Limiter{
		entries: make(map[model.ConnID]*Entry),
		clock:   clk,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ratelimit")),
	}
}

// Throttle records one request. It reports the retry instant when this request tipped the
// connection into a penalty; the request itself is still served.
func (l *Limiter) Throttle(id model.ConnID) (time.Time, bool) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok {
		clearAfter := now.Add(l.cfg.FirstWindow)
		l.entries[id] = &Entry{Times: 1, Limit: l.cfg.Limit, ClearAfter: &clearAfter}
		return time.Time{}, false
	}

	entry.Times++
	if entry.Times < entry.Limit {
		entry.RetryAfter = nil
		clearAfter := now.Add(l.cfg.QuietWindow)
		entry.ClearAfter = &clearAfter
		return time.Time{}, false
	}

	penalty := min(time.Duration(entry.Times)*l.cfg.PenaltyUnit, l.cfg.MaxPenalty)
	retryAfter := now.Add(penalty)
	clearAfter := retryAfter.Add(l.cfg.PenaltyGrace)
	entry.RetryAfter = &retryAfter
	entry.ClearAfter = &clearAfter

	l.logger.Warn("connection rate limited",
		slog.String("conn_id", string(id)),
		slog.Int("times", entry.Times),
		slog.Duration("penalty", penalty))

	return retryAfter, true
}

// RetryAfter returns the instant the connection may retry, if it is currently limited
func (l *Limiter) RetryAfter(id model.ConnID) (time.Time, bool) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[id]
	if !ok || entry.RetryAfter == nil || !entry.RetryAfter.After(now) {
		return time.Time{}, false
	}
	return *entry.RetryAfter, true
}

// IsLimited reports whether the connection is inside a penalty window
func (l *Limiter) IsLimited(id model.ConnID) bool {
	_, limited := l.RetryAfter(id)
	return limited
}

// Check returns a rate-limit error when the connection is limited
func (l *Limiter) Check(id model.ConnID) error {
	retryAfter, limited := l.RetryAfter(id)
	if !limited {
		return nil
	}
	return LimitedError(retryAfter)
}

// Forget drops the counter for a closed connection
func (l *Limiter) Forget(id model.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Entry returns a copy of the counter for a connection
func (l *Limiter) Entry(id model.ConnID) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Sweep reaps stale counters and returns how many were removed
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, id := range slices.Collect(maps.Keys(l.entries)) {
		entry := l.entries[id]
		staleRetry := entry.RetryAfter != nil && now.Sub(*entry.RetryAfter) > l.cfg.StaleAfter
		clearedPenalty := entry.ClearAfter != nil && entry.Times >= entry.Limit && !entry.ClearAfter.After(now)
		if staleRetry || clearedPenalty {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked connections
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// LimitedError builds the rate-limit error carrying the retry instant
func LimitedError(retryAfter time.Time) error {
	return oops.
		Code("RATE_LIMITED").
		With("retry_after", retryAfter).
		Wrap(model.ErrRateLimited)
}

// RetryAfterFrom extracts the retry instant from a rate-limit error
func RetryAfterFrom(err error) (time.Time, bool) {
	oe, ok := oops.AsOops(err)
	if !ok {
		return time.Time{}, false
	}
	t, ok := oe.Context()["retry_after"].(time.Time)
	return t, ok
}
