package model

import "errors"

// Common errors used across the application
var (
	// Session errors
	ErrAuthentication = errors.New("invalid token")
	ErrRateLimited    = errors.New("you are being ratelimited")

	// Account errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUsernameTaken       = errors.New("username taken")
	ErrUsernameHeld        = errors.New("username held by another party")
	ErrInvalidOTP          = errors.New("invalid otp code")
	ErrOTPMismatch         = errors.New("otp code does not match the submitted details")
	ErrOTPExpired          = errors.New("otp code expired, a new code has been sent")
	ErrCodeSpaceExhausted  = errors.New("no free codes available")
	ErrInvalidAccountInput = errors.New("missing account fields")

	// Friend errors
	ErrAlreadyFriends = errors.New("already friends")
	ErrNotFriends     = errors.New("not friends")
	ErrSelfFriend     = errors.New("cannot befriend yourself")
	ErrRequestPending = errors.New("friend request already sent")

	// Lobby errors
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrLobbyFull           = errors.New("lobby is full")
	ErrAlreadyInLobby      = errors.New("player is already in lobby")
	ErrAlreadyInvited      = errors.New("user is already invited")
	ErrNotInLobby          = errors.New("player is not in lobby")
	ErrNotHost             = errors.New("player is not the host")
	ErrInvalidSettings     = errors.New("invalid game settings")
	ErrSettingsUnchanged   = errors.New("game settings unchanged")
	ErrGameInProgress      = errors.New("game is in progress")
	ErrInsufficientPlayers = errors.New("there needs to be at least 1 player in each team")

	// Game errors
	ErrGameNotFound = errors.New("game not found")
	ErrNotInGame    = errors.New("player is not in game")

	// Protocol errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownCommand = errors.New("unknown command")
)
