package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thefall/sessionserver/internal/testutil"
)

type SenderSuite struct {
	suite.Suite
	sender *SMTPSender
	calls  []string
	fail   int
}

func TestSenderSuite(t *testing.T) {
	suite.Run(t, new(SenderSuite))
}

func (s *SenderSuite) SetupTest() {
	s.calls = nil
	s.fail = 0

	cfg := DefaultConfig()
	cfg.Username = "noreply@thefall.test"
	cfg.Password = "secret"
	cfg.RetryDelay = time.Millisecond
	s.sender = NewSMTPSender(cfg, testutil.NopLogger())
	s.sender.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		s.calls = append(s.calls, addr+"|"+from+"|"+strings.Join(to, ",")+"|"+string(msg))
		if s.fail > 0 {
			s.fail--
			return errors.New("421 service not available")
		}
		return nil
	}
}

func (s *SenderSuite) TestSendSucceeds() {
	err := s.sender.Send(context.Background(), "alice@example.com", "hi", "line1\nline2")
	s.Require().NoError(err)
	s.Require().Len(s.calls, 1)
	s.Contains(s.calls[0], "smtp.gmail.com:587|noreply@thefall.test|alice@example.com|")
	s.Contains(s.calls[0], "Subject: hi\r\n")
	s.Contains(s.calls[0], "line1\r\nline2")
}

func (s *SenderSuite) TestSendRetriesOnce() {
	s.fail = 1

	err := s.sender.Send(context.Background(), "alice@example.com", "hi", "body")
	s.Require().NoError(err)
	s.Len(s.calls, 2)
}

func (s *SenderSuite) TestSendGivesUpAfterRetry() {
	s.fail = 5

	err := s.sender.Send(context.Background(), "alice@example.com", "hi", "body")
	s.Require().Error(err)
	s.Len(s.calls, 2)
}

func (s *SenderSuite) TestSendOTP() {
	err := SendOTP(context.Background(), s.sender, "alice", "alice@example.com", 123456)
	s.Require().NoError(err)
	s.Require().Len(s.calls, 1)
	s.Contains(s.calls[0], "Subject: Authentication Code [TheFall]")
	s.Contains(s.calls[0], "Hello alice\r\nYour One Time Password is: 123456\r\nThis code will expire in 5 minutes.")
}

func (s *SenderSuite) TestSendOTPWithoutAddress() {
	err := SendOTP(context.Background(), s.sender, "alice", "", 123456)
	s.ErrorIs(err, ErrNoRecipient)
	s.Empty(s.calls)
}

func (s *SenderSuite) TestEnabled() {
	s.False(DefaultConfig().Enabled())
	s.True(s.sender.cfg.Enabled())
}
