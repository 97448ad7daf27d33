package lobby

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/dependencies/random"
	"github.com/thefall/sessionserver/internal/model"
)

// Invite code bounds
const (
	MinInviteCode = 100000
	MaxInviteCode = 999999
)

// Config holds lobby tunables
type Config struct {
	MaxPlayers   int
	CodeAttempts int // Invite codes drawn before giving up
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		MaxPlayers:   10,
		CodeAttempts: 99_000,
	}
}

// LeaveResult describes the lobby after a member left
type LeaveResult struct {
	Lobby     *model.Lobby // Snapshot after the leave; nil when the lobby was destroyed
	Destroyed bool
	NewHost   string // Set when the host left and was replaced
}

// Controller owns every active lobby and its invite
type Controller struct {
	mu      sync.RWMutex
	lobbies map[model.LobbyID]*model.Lobby
	invites map[int]*model.Invite // Keyed by invite code

	clock  clock.Clock
	random random.Random
	cfg    Config
	logger *slog.Logger
}

// NewController creates a lobby Controller
func NewController(clock clock.Clock, random random.Random, cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		lobbies: make(map[model.LobbyID]*model.Lobby),
		invites: make(map[int]*model.Invite),
		clock:   clock,
		random:  random,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "lobby")),
	}
}

// CreateLobby creates a new lobby hosted by the given user, who starts in the switcher
func (c *Controller) CreateLobby(host string) (*model.Lobby, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	code, err := c.newInviteCodeLocked()
	if err != nil {
		return nil, err
	}

	lobby := &model.Lobby{
		ID:         model.LobbyID(random.ULID(now)),
		Host:       host,
		Switcher:   []string{host},
		Players:    map[string]time.Time{host: now},
		InviteCode: code,
		Settings:   model.DefaultGameSettings(),
	}
	c.lobbies[lobby.ID] = lobby
	c.invites[code] = &model.Invite{
		LobbyID:  lobby.ID,
		AuditLog: make(map[string]string),
	}

	c.logger.Info("lobby created",
		slog.String("lobby_id", string(lobby.ID)),
		slog.String("host", host),
		slog.Int("invite_code", code))

	return lobby.Clone(), nil
}

func (c *Controller) newInviteCodeLocked() (int, error) {
	for attempt := 0; attempt < c.cfg.CodeAttempts; attempt++ {
		code := random.Between(c.random, MinInviteCode, MaxInviteCode)
		if _, taken := c.invites[code]; !taken {
			return code, nil
		}
	}
	return 0, oops.
		Code("INVITE_CODES_EXHAUSTED").
		With("attempts", c.cfg.CodeAttempts).
		With("active_lobbies", len(c.lobbies)).
		Wrap(model.ErrCodeSpaceExhausted)
}

// GetLobby returns a snapshot of a lobby
func (c *Controller) GetLobby(id model.LobbyID) (*model.Lobby, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lobby, ok := c.lobbies[id]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	return lobby.Clone(), nil
}

// JoinLobby adds a user to the lobby behind an invite code
func (c *Controller) JoinLobby(username string, code int) (*model.Lobby, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	invite, ok := c.invites[code]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	lobby, ok := c.lobbies[invite.LobbyID]
	if !ok || lobby.GameStartingAt != nil {
		return nil, model.ErrLobbyNotFound
	}
	if lobby.HasPlayer(username) {
		return nil, model.ErrAlreadyInLobby
	}
	if len(lobby.Players) >= c.cfg.MaxPlayers {
		return nil, model.ErrLobbyFull
	}

	lobby.Players[username] = now
	lobby.AddToTeam(username, model.TeamSwitcher)
	removeInvitee(invite, username)

	c.logger.Info("player joined lobby",
		slog.String("lobby_id", string(lobby.ID)),
		slog.String("username", username),
		slog.Int("players", len(lobby.Players)))

	return lobby.Clone(), nil
}

// LeaveLobby removes a user from a lobby, reassigning the host or destroying the lobby as needed
func (c *Controller) LeaveLobby(username string, id model.LobbyID) (*LeaveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lobby, ok := c.lobbies[id]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	if !lobby.HasPlayer(username) {
		return nil, model.ErrNotInLobby
	}

	delete(lobby.Players, username)
	lobby.RemoveFromTeams(username)

	if len(lobby.Players) == 0 {
		delete(c.lobbies, id)
		delete(c.invites, lobby.InviteCode)
		c.logger.Info("lobby destroyed", slog.String("lobby_id", string(id)))
		return &LeaveResult{Destroyed: true}, nil
	}

	result := &LeaveResult{}
	if lobby.Host == username {
		lobby.Host, _ = lobby.OldestPlayer()
		result.NewHost = lobby.Host
		c.logger.Info("lobby host reassigned",
			slog.String("lobby_id", string(id)),
			slog.String("host", lobby.Host))
	}
	result.Lobby = lobby.Clone()
	return result, nil
}

// JoinTeam moves a member to red, blue or the switcher
func (c *Controller) JoinTeam(username string, id model.LobbyID, team model.Team) (*model.Lobby, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lobby, err := c.memberLobbyLocked(username, id)
	if err != nil {
		return nil, err
	}
	lobby.RemoveFromTeams(username)
	lobby.AddToTeam(username, team)
	return lobby.Clone(), nil
}

// UpdateSettings replaces the lobby's game settings; only the host may do this
func (c *Controller) UpdateSettings(username string, id model.LobbyID, settings model.GameSettings) (*model.Lobby, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	lobby, err := c.memberLobbyLocked(username, id)
	if err != nil {
		return nil, err
	}
	if lobby.Host != username {
		return nil, model.ErrNotHost
	}
	if lobby.Settings == settings {
		return lobby.Clone(), model.ErrSettingsUnchanged
	}
	lobby.Settings = settings
	return lobby.Clone(), nil
}

// SendInvite records that inviter invited invitee into their lobby
func (c *Controller) SendInvite(inviter, invitee string, id model.LobbyID) (*model.Lobby, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	lobby, err := c.memberLobbyLocked(inviter, id)
	if err != nil {
		return nil, err
	}
	if invitee == inviter || lobby.HasPlayer(invitee) {
		return nil, model.ErrAlreadyInLobby
	}

	invite := c.invites[lobby.InviteCode]
	if by, ok := invite.AuditLog[invitee]; ok {
		return nil, fmt.Errorf("invited by %s: %w", by, model.ErrAlreadyInvited)
	}
	invite.AuditLog[invitee] = inviter
	invite.InvitedUsers = append(invite.InvitedUsers, invitee)

	return lobby.Clone(), nil
}

// InvitesFor returns the pending invites addressed to a user, as inviter -> invite code
func (c *Controller) InvitesFor(username string) map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]int)
	for code, invite := range c.invites {
		if inviter, ok := invite.AuditLog[username]; ok {
			result[inviter] = code
		}
	}
	return result
}

// StartGame marks the lobby as starting a game; only the host may do this
func (c *Controller) StartGame(username string, id model.LobbyID) (*model.Lobby, error) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	lobby, err := c.memberLobbyLocked(username, id)
	if err != nil {
		return nil, err
	}
	if lobby.Host != username {
		return nil, model.ErrNotHost
	}
	if lobby.GameStartingAt != nil {
		return nil, model.ErrGameInProgress
	}
	if len(lobby.RedTeam) == 0 || len(lobby.BlueTeam) == 0 {
		return nil, model.ErrInsufficientPlayers
	}
	lobby.GameStartingAt = &now
	return lobby.Clone(), nil
}

// ClearGameStart reopens a lobby once its game has finished
func (c *Controller) ClearGameStart(id model.LobbyID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lobby, ok := c.lobbies[id]; ok {
		lobby.GameStartingAt = nil
	}
}

// Len returns the number of active lobbies
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lobbies)
}

// InviteCodes returns the active invite codes, sorted
func (c *Controller) InviteCodes() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.invites))
}

func (c *Controller) memberLobbyLocked(username string, id model.LobbyID) (*model.Lobby, error) {
	lobby, ok := c.lobbies[id]
	if !ok {
		return nil, model.ErrLobbyNotFound
	}
	if !lobby.HasPlayer(username) {
		return nil, model.ErrNotInLobby
	}
	return lobby, nil
}

func removeInvitee(invite *model.Invite, username string) {
	delete(invite.AuditLog, username)
	invite.InvitedUsers = slices.DeleteFunc(invite.InvitedUsers, func(u string) bool { return u == username })
}
