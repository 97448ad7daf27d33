// Package wireerr maps domain errors onto the error objects carried by the wire protocol.
package wireerr

import (
	"errors"
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/ratelimit"
)

// ErrorID is the frame id carried by every error object
const ErrorID = -1

// Kind is the error class reported in the "error" field
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindRateLimit      Kind = "ratelimit"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindCapacity       Kind = "capacity"
	KindNotFound       Kind = "not_found"
	KindInternal       Kind = "internal"
)

// Numeric codes. 1 to 6 keep the values clients already switch on for registration.
const (
	CodeInternal            = 0
	CodeUsernameTaken       = 1
	CodeInvalidOTP          = 2
	CodeOTPMismatch         = 3
	CodeUsernameHeld        = 4
	CodeOTPExpired          = 5
	CodeRateLimited         = 6
	CodeAuthentication      = 7
	CodeInvalidCredentials  = 8
	CodeAccountNotFound     = 9
	CodeInvalidAccountInput = 10
	CodeCodeSpaceExhausted  = 11
	CodeAlreadyFriends      = 12
	CodeNotFriends          = 13
	CodeSelfFriend          = 14
	CodeLobbyNotFound       = 15
	CodeLobbyFull           = 16
	CodeAlreadyInLobby      = 17
	CodeAlreadyInvited      = 18
	CodeNotInLobby          = 19
	CodeNotHost             = 20
	CodeInvalidSettings     = 21
	CodeGameInProgress      = 22
	CodeInsufficientPlayers = 23
	CodeGameNotFound        = 24
	CodeNotInGame           = 25
	CodeRequestPending      = 26
	CodeInvalidRequest      = 27
	CodeUnknownCommand      = 28
)

// RateLimitMessage is the message pushed when a connection is throttled
const RateLimitMessage = "You are being ratelimited!"

// Error is the error object sent to clients
type Error struct {
	ID         int     `json:"id"`
	Kind       Kind    `json:"error"`
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"dt,omitempty"` // Epoch seconds; rate-limit errors only
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

type mapping struct {
	target error
	kind   Kind
	code   int
}

var mappings = []mapping{
	{model.ErrRateLimited, KindRateLimit, CodeRateLimited},
	{model.ErrAuthentication, KindAuthentication, CodeAuthentication},
	{model.ErrInvalidCredentials, KindAuthentication, CodeInvalidCredentials},

	{model.ErrUsernameTaken, KindConflict, CodeUsernameTaken},
	{model.ErrUsernameHeld, KindConflict, CodeUsernameHeld},
	{model.ErrInvalidOTP, KindValidation, CodeInvalidOTP},
	{model.ErrOTPMismatch, KindValidation, CodeOTPMismatch},
	{model.ErrOTPExpired, KindValidation, CodeOTPExpired},
	{model.ErrInvalidAccountInput, KindValidation, CodeInvalidAccountInput},
	{model.ErrAccountNotFound, KindNotFound, CodeAccountNotFound},
	{model.ErrCodeSpaceExhausted, KindCapacity, CodeCodeSpaceExhausted},

	{model.ErrAlreadyFriends, KindConflict, CodeAlreadyFriends},
	{model.ErrRequestPending, KindConflict, CodeRequestPending},
	{model.ErrNotFriends, KindConflict, CodeNotFriends},
	{model.ErrSelfFriend, KindValidation, CodeSelfFriend},

	{model.ErrLobbyNotFound, KindNotFound, CodeLobbyNotFound},
	{model.ErrLobbyFull, KindCapacity, CodeLobbyFull},
	{model.ErrAlreadyInLobby, KindConflict, CodeAlreadyInLobby},
	{model.ErrAlreadyInvited, KindConflict, CodeAlreadyInvited},
	{model.ErrNotInLobby, KindNotFound, CodeNotInLobby},
	{model.ErrNotHost, KindValidation, CodeNotHost},
	{model.ErrInvalidSettings, KindValidation, CodeInvalidSettings},
	{model.ErrGameInProgress, KindConflict, CodeGameInProgress},
	{model.ErrInsufficientPlayers, KindValidation, CodeInsufficientPlayers},

	{model.ErrGameNotFound, KindNotFound, CodeGameNotFound},
	{model.ErrNotInGame, KindNotFound, CodeNotInGame},

	{model.ErrInvalidRequest, KindValidation, CodeInvalidRequest},
	{model.ErrUnknownCommand, KindValidation, CodeUnknownCommand},
}

// From converts any error into a wire error. Unknown errors become an opaque internal error.
func From(err error) *Error {
	var we *Error
	if errors.As(err, &we) {
		return we
	}

	for _, m := range mappings {
		if !errors.Is(err, m.target) {
			continue
		}
		e := &Error{ID: ErrorID, Kind: m.kind, Code: m.code, Message: err.Error()}
		if m.kind == KindRateLimit {
			e.Message = RateLimitMessage
			if at, ok := ratelimit.RetryAfterFrom(err); ok {
				e.RetryAfter = clock.Epoch(at)
			}
		}
		return e
	}

	return &Error{ID: ErrorID, Kind: KindInternal, Code: CodeInternal, Message: "internal server error"}
}

// RateLimited builds the error pushed to a connection that has just been throttled
func RateLimited(retryAfter time.Time) *Error {
	return &Error{
		ID:         ErrorID,
		Kind:       KindRateLimit,
		Code:       CodeRateLimited,
		Message:    RateLimitMessage,
		RetryAfter: clock.Epoch(retryAfter),
	}
}

// Invalid builds a validation error with a custom message
func Invalid(message string) *Error {
	return &Error{ID: ErrorID, Kind: KindValidation, Code: CodeInvalidRequest, Message: message}
}

// IsInternal reports whether the error has no domain meaning
func (e *Error) IsInternal() bool {
	return e.Kind == KindInternal
}
