package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Sender delivers a plain-text email
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds SMTP connection settings
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RetryDelay time.Duration
}

// DefaultConfig returns the settings used by the original Gmail relay
func DefaultConfig() Config {
	return Config{
		Host:       "smtp.gmail.com",
		Port:       587,
		RetryDelay: time.Second,
	}
}

// Enabled reports whether enough settings are present to send mail
func (c Config) Enabled() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// dialFunc sends one message; swapped out in tests
type dialFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends mail through an SMTP relay with one retry on failure
type SMTPSender struct {
	cfg    Config
	send   dialFunc
	logger *slog.Logger
}

// NewSMTPSender creates an SMTPSender
func NewSMTPSender(cfg Config, logger *slog.Logger) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{
		cfg:    cfg,
		send:   smtp.SendMail,
		logger: logger.With(slog.String("component", "mail")),
	}
}

// Send delivers the message. A transient failure re-authenticates and resends once;
// a second failure is logged and dropped.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	msg := buildMessage(s.cfg.From, to, subject, body)

	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.cfg.RetryDelay))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		// A fresh PlainAuth per attempt re-authenticates on the retry
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
			s.logger.Warn("smtp send failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("dropping email after retry", slog.String("to", to))
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// LogSender writes emails to the log instead of sending them, for local runs without SMTP
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With(slog.String("component", "mail"))}
}

// Send logs the message
func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email not sent, smtp disabled",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body))
	return nil
}

// ErrNoRecipient is returned when an email has no address
var ErrNoRecipient = errors.New("no recipient address")
