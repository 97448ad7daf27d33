package otp

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
)

// Kind separates the registration and password-reset code spaces
type Kind string

const (
	KindRegister      Kind = "register"
	KindPasswordReset Kind = "password_reset"
)

// Payload is the data a code was issued for. Password-reset payloads leave
// DisplayName and PasswordDigest empty.
type Payload struct {
	DisplayName    string
	Username       string
	Email          string
	PasswordDigest string
}

// Entry is one issued code
type Entry struct {
	Code      int
	ExpiresAt time.Time
	Payload   Payload
}

// Config holds cache tunables
type Config struct {
	TTL         time.Duration
	MaxAttempts int // Candidate codes drawn before giving up
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MaxAttempts: 99_000,
	}
}

// Cache stores short-lived one-time codes keyed by code within each kind
type Cache struct {
	mu      sync.Mutex
	entries map[Kind]map[int]*Entry
	codes   CodeSource
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
}

// NewCache creates a Cache
func NewCache(codes CodeSource, clk clock.Clock, cfg Config, logger *slog.Logger) *Cache {
	return &Cache{
		entries: map[Kind]map[int]*Entry{
			KindRegister:      {},
			KindPasswordReset: {},
		},
		codes:  codes,
		clock:  clk,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "otp")),
	}
}

// Issue creates a fresh code for the payload, superseding any code previously issued for the same payload
func (c *Cache) Issue(kind Kind, payload Payload) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	store := c.entries[kind]
	if old, ok := c.findLocked(kind, payload); ok {
		delete(store, old.Code)
	}

	code, err := c.sampleLocked(store)
	if err != nil {
		return Entry{}, err
	}

	entry := &Entry{
		Code:      code,
		ExpiresAt: c.clock.Now().Add(c.cfg.TTL),
		Payload:   payload,
	}
	store[code] = entry

	c.logger.Info("otp issued",
		slog.String("kind", string(kind)),
		slog.String("username", payload.Username),
		slog.Time("expires_at", entry.ExpiresAt))

	return *entry, nil
}

func (c *Cache) sampleLocked(store map[int]*Entry) (int, error) {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		code, err := c.codes.Next()
		if err != nil {
			return 0, err
		}
		if code < MinCode || code > MaxCode {
			continue
		}
		if _, taken := store[code]; !taken {
			return code, nil
		}
	}
	return 0, oops.
		Code("OTP_EXHAUSTED").
		With("attempts", c.cfg.MaxAttempts).
		Wrap(model.ErrCodeSpaceExhausted)
}

// Find returns the code issued for exactly this payload, if any
func (c *Cache) Find(kind Kind, payload Payload) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.findLocked(kind, payload)
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

func (c *Cache) findLocked(kind Kind, payload Payload) (*Entry, bool) {
	for _, entry := range c.entries[kind] {
		if entry.Payload == payload {
			return entry, true
		}
	}
	return nil, false
}

// Held reports whether the username is reserved by an unexpired code issued for a different payload
func (c *Cache) Held(kind Kind, payload Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for _, entry := range c.entries[kind] {
		if !now.Before(entry.ExpiresAt) {
			continue
		}
		if entry.Payload.Username == payload.Username && entry.Payload != payload {
			return true
		}
	}
	return false
}

// Verify checks a submitted code against the payload. A successful check consumes the code.
//
// The checks run in order: no code outstanding for the payload or an expired one is
// ErrOTPExpired, a code that keys nothing is ErrInvalidOTP, and a code issued for
// different details is ErrOTPMismatch.
func (c *Cache) Verify(kind Kind, code int, payload Payload) (Entry, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	own, ok := c.findLocked(kind, payload)
	if !ok || !now.Before(own.ExpiresAt) {
		return Entry{}, model.ErrOTPExpired
	}

	store := c.entries[kind]
	entry, ok := store[code]
	if !ok {
		return Entry{}, model.ErrInvalidOTP
	}
	if entry.Payload != payload {
		return Entry{}, model.ErrOTPMismatch
	}

	delete(store, code)
	return *entry, nil
}

// Sweep removes expired codes and returns how many were removed
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, store := range c.entries {
		for _, code := range slices.Collect(maps.Keys(store)) {
			if !store[code].ExpiresAt.After(now) {
				delete(store, code)
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of outstanding codes of a kind
func (c *Cache) Len(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries[kind])
}

// IsVerificationFailure reports whether err is one of the Verify outcomes
func IsVerificationFailure(err error) bool {
	return errors.Is(err, model.ErrOTPExpired) ||
		errors.Is(err, model.ErrInvalidOTP) ||
		errors.Is(err, model.ErrOTPMismatch)
}
