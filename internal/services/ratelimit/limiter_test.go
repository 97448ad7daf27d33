package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thefall/sessionserver/internal/dependencies/mocks"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/testutil"
)

type LimiterSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	limiter *Limiter
}

func TestLimiterSuite(t *testing.T) {
	suite.Run(t, new(LimiterSuite))
}

func (s *LimiterSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.limiter = New(s.clock, DefaultConfig(), testutil.NopLogger())
}

func (s *LimiterSuite) hit(id model.ConnID, n int) {
	for range n {
		s.limiter.Throttle(id)
	}
}

func (s *LimiterSuite) TestFirstRequestCreatesEntry() {
	_, limited := s.limiter.Throttle("c1")
	s.False(limited)

	entry, ok := s.limiter.Entry("c1")
	s.Require().True(ok)
	s.Equal(1, entry.Times)
	s.Equal(50, entry.Limit)
	s.Nil(entry.RetryAfter)
	s.Equal(s.clock.Now().Add(5*time.Minute), *entry.ClearAfter)
}

func (s *LimiterSuite) TestQuietRequestsPushClearAfter() {
	s.hit("c1", 2)

	entry, _ := s.limiter.Entry("c1")
	s.Equal(2, entry.Times)
	s.Equal(s.clock.Now().Add(time.Minute), *entry.ClearAfter)
	s.False(s.limiter.IsLimited("c1"))
}

func (s *LimiterSuite) TestFiftiethRequestImposesPenalty() {
	s.hit("c1", 49)
	s.False(s.limiter.IsLimited("c1"))

	retryAfter, limited := s.limiter.Throttle("c1")
	s.Require().True(limited)
	s.Equal(s.clock.Now().Add(250*time.Second), retryAfter)

	entry, _ := s.limiter.Entry("c1")
	s.Equal(s.clock.Now().Add(400*time.Second), *entry.ClearAfter)
	s.True(s.limiter.IsLimited("c1"))
}

func (s *LimiterSuite) TestFiftyFirstRequestIsRejected() {
	s.hit("c1", 50)
	s.clock.Advance(time.Second)

	err := s.limiter.Check("c1")
	s.Require().Error(err)
	s.True(errors.Is(err, model.ErrRateLimited))

	retryAfter, ok := RetryAfterFrom(err)
	s.Require().True(ok)
	s.True(retryAfter.After(s.clock.Now()))
}

func (s *LimiterSuite) TestPenaltyIsCapped() {
	cfg := DefaultConfig()
	cfg.Limit = 1
	s.limiter = New(s.clock, cfg, testutil.NopLogger())

	s.hit("c1", 1000)
	retryAfter, limited := s.limiter.Throttle("c1")
	s.Require().True(limited)
	s.Equal(s.clock.Now().Add(time.Hour), retryAfter)
}

func (s *LimiterSuite) TestLimitExpires() {
	s.hit("c1", 50)
	s.clock.Advance(251 * time.Second)

	s.False(s.limiter.IsLimited("c1"))
	s.NoError(s.limiter.Check("c1"))
}

func (s *LimiterSuite) TestConnectionsAreIndependent() {
	s.hit("c1", 50)
	s.True(s.limiter.IsLimited("c1"))
	s.False(s.limiter.IsLimited("c2"))
}

func (s *LimiterSuite) TestSweepRemovesClearedPenalties() {
	s.hit("c1", 50)
	s.hit("c2", 3)

	s.clock.Advance(401 * time.Second)
	s.Equal(1, s.limiter.Sweep())

	_, ok := s.limiter.Entry("c1")
	s.False(ok)
	_, ok = s.limiter.Entry("c2")
	s.True(ok)
}

func (s *LimiterSuite) TestSweepKeepsActivePenalties() {
	s.hit("c1", 50)
	s.clock.Advance(10 * time.Second)

	s.Equal(0, s.limiter.Sweep())
	s.Equal(1, s.limiter.Len())
}

func (s *LimiterSuite) TestForget() {
	s.hit("c1", 3)
	s.limiter.Forget("c1")
	s.Equal(0, s.limiter.Len())
}
