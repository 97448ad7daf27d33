package factory

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/thefall/sessionserver/internal/dependencies/mocks"
	"github.com/thefall/sessionserver/internal/services/auth"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/storage/memory"
	"github.com/thefall/sessionserver/internal/testutil"
	"github.com/thefall/sessionserver/internal/ws"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom // session tokens and invite codes
	CodeRandom *mocks.MockRandom // one-time codes
	MockMailer *mocks.MockMailer
	Memory     *memory.Storage
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	codeRandom := mocks.NewMockRandom()
	mailer := mocks.NewMockMailer()

	app := newWithDependencies(dependencies{
		store:   store,
		clock:   mockClock,
		random:  mockRandom,
		codes:   otp.NewRandomSource(codeRandom),
		mailer:  mailer,
		authCfg: auth.Config{BcryptCost: bcrypt.MinCost, ResendDelay: time.Hour},
		wsCfg:   ws.DefaultConfig(),
		logger:  testutil.NopLogger(),
	})

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		CodeRandom: codeRandom,
		MockMailer: mailer,
		Memory:     store,
	}
}
