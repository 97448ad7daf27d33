package wireerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/ratelimit"
)

func TestFromMapsSentinels(t *testing.T) {
	tests := []struct {
		err  error
		kind Kind
		code int
	}{
		{model.ErrUsernameTaken, KindConflict, CodeUsernameTaken},
		{model.ErrInvalidOTP, KindValidation, CodeInvalidOTP},
		{model.ErrOTPMismatch, KindValidation, CodeOTPMismatch},
		{model.ErrUsernameHeld, KindConflict, CodeUsernameHeld},
		{model.ErrOTPExpired, KindValidation, CodeOTPExpired},
		{model.ErrAuthentication, KindAuthentication, CodeAuthentication},
		{model.ErrLobbyNotFound, KindNotFound, CodeLobbyNotFound},
		{model.ErrLobbyFull, KindCapacity, CodeLobbyFull},
		{model.ErrAlreadyFriends, KindConflict, CodeAlreadyFriends},
		{model.ErrNotFriends, KindConflict, CodeNotFriends},
		{model.ErrInvalidSettings, KindValidation, CodeInvalidSettings},
		{model.ErrGameNotFound, KindNotFound, CodeGameNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			we := From(tt.err)
			assert.Equal(t, ErrorID, we.ID)
			assert.Equal(t, tt.kind, we.Kind)
			assert.Equal(t, tt.code, we.Code)
			assert.Equal(t, tt.err.Error(), we.Message)
		})
	}
}

func TestFromWrappedErrors(t *testing.T) {
	err := fmt.Errorf("invited by alice: %w", model.ErrAlreadyInvited)

	we := From(err)

	assert.Equal(t, KindConflict, we.Kind)
	assert.Equal(t, CodeAlreadyInvited, we.Code)
	assert.Contains(t, we.Message, "alice")
}

func TestFromCapacityError(t *testing.T) {
	err := oops.Code("INVITE_CODES_EXHAUSTED").With("attempts", 3).Wrap(model.ErrCodeSpaceExhausted)

	we := From(err)

	assert.Equal(t, KindCapacity, we.Kind)
	assert.Equal(t, CodeCodeSpaceExhausted, we.Code)
}

func TestFromRateLimitCarriesRetryAfter(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC)

	we := From(ratelimit.LimitedError(at))

	assert.Equal(t, KindRateLimit, we.Kind)
	assert.Equal(t, RateLimitMessage, we.Message)
	assert.InDelta(t, float64(at.Unix()), we.RetryAfter, 0.001)
}

func TestFromUnknownErrorIsInternal(t *testing.T) {
	we := From(errors.New("disk on fire"))

	assert.True(t, we.IsInternal())
	assert.Equal(t, "internal server error", we.Message)
}

func TestFromPassesThroughWireErrors(t *testing.T) {
	original := Invalid("settings must be integers")

	assert.Same(t, original, From(fmt.Errorf("wrap: %w", original)))
}

func TestRateLimitedFrameShape(t *testing.T) {
	at := time.Unix(1700000000, 0)

	data, err := json.Marshal(RateLimited(at))
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.Equal(t, "ratelimit", frame["error"])
	assert.Equal(t, float64(-1), frame["id"])
	assert.Equal(t, RateLimitMessage, frame["message"])
	assert.Equal(t, float64(1700000000), frame["dt"])
}
