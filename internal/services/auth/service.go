package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/dependencies/random"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/mail"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/storage"
)

// TokenLength is the length of a session token
const TokenLength = 32

// Config holds configuration for the auth service
type Config struct {
	BcryptCost  int
	ResendDelay time.Duration // Grace before re-issuing an expired registration code
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		BcryptCost:  bcrypt.DefaultCost,
		ResendDelay: 5 * time.Second,
	}
}

// Registration is a register request. Code is zero when the client is asking for a code.
type Registration struct {
	DisplayName string
	Username    string
	Email       string
	Password    string
	Code        int
}

// RegisterResult is the outcome of a successful register call: either a code
// was sent (Sent) or the account was created (Identity)
type RegisterResult struct {
	Sent     *otp.Entry
	Identity *model.Identity
}

// NotifyFunc is called with a code re-issued in the background
type NotifyFunc func(entry otp.Entry)

// Service handles login, OTP-gated registration and password reset
type Service struct {
	storage storage.Storage
	codes   *otp.Cache
	mailer  mail.Sender
	clock   clock.Clock
	random  random.Random
	cfg     Config
	logger  *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New creates a new auth Service
func New(
	storage storage.Storage,
	codes *otp.Cache,
	mailer mail.Sender,
	clock clock.Clock,
	random random.Random,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultConfig().BcryptCost
	}
	return &Service{
		storage: storage,
		codes:   codes,
		mailer:  mailer,
		clock:   clock,
		random:  random,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "auth")),
		done:    make(chan struct{}),
	}
}

// Login checks credentials and returns a fresh identity with the account's stats
func (s *Service) Login(ctx context.Context, username, password string) (*model.Identity, *model.Stats, error) {
	account, err := s.storage.GetAccount(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, nil, model.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.ErrInvalidCredentials
	}

	stats, err := s.storage.GetStats(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("login", slog.String("username", username))
	return model.IdentityFromAccount(account, s.newToken()), stats, nil
}

// GetUser returns an account's public record and stats
func (s *Service) GetUser(ctx context.Context, username string) (*model.Account, *model.Stats, error) {
	account, err := s.storage.GetAccount(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.storage.GetStats(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	return account, stats, nil
}

// Register runs one step of OTP-gated registration.
//
// Without a code a new code is issued and emailed. With a code the account is
// created when the code and every submitted field match. An expired or missing
// code is re-issued in the background after ResendDelay and reported to notify.
func (s *Service) Register(ctx context.Context, reg Registration, notify NotifyFunc) (*RegisterResult, error) {
	if reg.Username == "" || reg.Password == "" || reg.Email == "" || reg.DisplayName == "" {
		return nil, model.ErrInvalidAccountInput
	}

	_, err := s.storage.GetAccount(ctx, reg.Username)
	switch {
	case err == nil:
		return nil, model.ErrUsernameTaken
	case !errors.Is(err, model.ErrAccountNotFound):
		return nil, err
	}

	payload := otp.Payload{
		DisplayName:    reg.DisplayName,
		Username:       reg.Username,
		Email:          reg.Email,
		PasswordDigest: digest(reg.Password),
	}
	if s.codes.Held(otp.KindRegister, payload) {
		return nil, model.ErrUsernameHeld
	}

	if reg.Code == 0 {
		entry, err := s.issue(ctx, otp.KindRegister, payload)
		if err != nil {
			return nil, err
		}
		return &RegisterResult{Sent: &entry}, nil
	}

	if _, err := s.codes.Verify(otp.KindRegister, reg.Code, payload); err != nil {
		if errors.Is(err, model.ErrOTPExpired) {
			s.resendLater(payload, notify)
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Username:     reg.Username,
		DisplayName:  reg.DisplayName,
		Email:        reg.Email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now(),
	}
	if err := s.storage.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", slog.String("username", reg.Username))
	return &RegisterResult{Identity: model.IdentityFromAccount(account, s.newToken())}, nil
}

// SendPasswordReset issues a reset code when username and email match an account
func (s *Service) SendPasswordReset(ctx context.Context, username, email string) (otp.Entry, error) {
	account, err := s.storage.GetAccount(ctx, username)
	if err != nil {
		return otp.Entry{}, err
	}
	if !strings.EqualFold(account.Email, email) {
		return otp.Entry{}, model.ErrAccountNotFound
	}
	return s.issue(ctx, otp.KindPasswordReset, resetPayload(username, email))
}

// UpdatePassword consumes a reset code and stores the new password
func (s *Service) UpdatePassword(ctx context.Context, username, email string, code int, password string) error {
	if password == "" {
		return model.ErrInvalidAccountInput
	}
	if _, err := s.codes.Verify(otp.KindPasswordReset, code, resetPayload(username, email)); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.storage.UpdatePassword(ctx, username, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password updated", slog.String("username", username))
	return nil
}

// Close stops pending background re-issues and waits for running ones
func (s *Service) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Service) issue(ctx context.Context, kind otp.Kind, payload otp.Payload) (otp.Entry, error) {
	entry, err := s.codes.Issue(kind, payload)
	if err != nil {
		return otp.Entry{}, err
	}
	// The code stays valid when the mail is lost; the user can ask for it again
	if err := mail.SendOTP(ctx, s.mailer, payload.Username, payload.Email, entry.Code); err != nil {
		s.logger.Error("otp email not delivered",
			slog.String("username", payload.Username),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}
	return entry, nil
}

func (s *Service) resendLater(payload otp.Payload, notify NotifyFunc) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(s.cfg.ResendDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-s.done:
			return
		}

		entry, err := s.issue(context.Background(), otp.KindRegister, payload)
		if err != nil {
			s.logger.Warn("otp resend failed",
				slog.String("username", payload.Username),
				slog.Any("error", err))
			return
		}
		if notify != nil {
			notify(entry)
		}
	}()
}

func (s *Service) newToken() string {
	return s.random.String(TokenLength, random.TokenAlphabet)
}

func resetPayload(username, email string) otp.Payload {
	return otp.Payload{Username: username, Email: strings.ToLower(email)}
}

// digest fingerprints a submitted password so registration payloads can be compared without storing it
func digest(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
