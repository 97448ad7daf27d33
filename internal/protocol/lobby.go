package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/protocol/wireerr"
)

// leftLobbyResult is the reply to leave_lobby, which always succeeds
const leftLobbyResult = "handled"

func (r *Router) getInvites(_ context.Context, c *call) (any, error) {
	return r.lobbies.InvitesFor(c.username()), nil
}

func (r *Router) createLobby(_ context.Context, c *call) (any, error) {
	previous := c.identity.LobbyID

	lobby, err := r.lobbies.CreateLobby(c.username())
	if err != nil {
		return nil, err
	}
	r.enterLobby(c, previous, lobby.ID)
	return lobbyResult{LobbyID: lobby.ID, Lobby: NewLobbyView(lobby)}, nil
}

type joinLobbyArgs struct {
	InviteCode Int `json:"invite_code"`
}

func (r *Router) joinLobby(_ context.Context, c *call) (any, error) {
	var args joinLobbyArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	username := c.username()
	previous := c.identity.LobbyID
	lobby, err := r.lobbies.JoinLobby(username, int(args.InviteCode))
	if err != nil {
		return nil, err
	}
	r.enterLobby(c, previous, lobby.ID)

	n := notification(NotifyLobbyUpdate)
	n.Event = EventJoin
	n.Member = username
	r.notify(lobby.Usernames(), n, username)

	return lobbyResult{LobbyID: lobby.ID, Lobby: NewLobbyView(lobby)}, nil
}

// enterLobby records the caller's new lobby, leaving the one they were in before
func (r *Router) enterLobby(c *call, previous, next model.LobbyID) {
	if previous != "" && previous != next {
		if err := r.departLobby(c.username(), previous); err != nil && !isGoneFromLobby(err) {
			r.logger.Warn("failed to leave previous lobby",
				slog.String("username", c.username()),
				slog.String("lobby_id", string(previous)),
				slog.Any("error", err))
		}
	}
	r.registry.Update(c.conn.ID(), func(id *model.Identity) {
		id.LobbyID = next
	})
}

type lobbyArgs struct {
	LobbyID model.LobbyID `json:"lobby_id"`
}

func (r *Router) leaveLobby(_ context.Context, c *call) (any, error) {
	var args lobbyArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}
	if err := r.departLobby(c.username(), args.LobbyID); err != nil && !isGoneFromLobby(err) {
		return nil, err
	}
	return leftLobbyResult, nil
}

// departLobby removes a user from a lobby and tells the members who remain
func (r *Router) departLobby(username string, id model.LobbyID) error {
	result, err := r.lobbies.LeaveLobby(username, id)
	r.registry.UpdateUser(username, func(identity *model.Identity) {
		if identity.LobbyID == id {
			identity.LobbyID = ""
		}
	})
	if err != nil {
		return err
	}
	if result.Destroyed {
		return nil
	}

	n := notification(NotifyLobbyUpdate)
	n.Event = EventLeave
	n.Member = username
	n.Lobby = NewLobbyView(result.Lobby)
	r.notify(result.Lobby.Usernames(), n, username)
	return nil
}

func isGoneFromLobby(err error) bool {
	return errors.Is(err, model.ErrLobbyNotFound) || errors.Is(err, model.ErrNotInLobby)
}

type inviteArgs struct {
	User    string        `json:"user"`
	LobbyID model.LobbyID `json:"lobby_id"`
}

type invitedResult struct {
	Invited string `json:"invited"`
}

func (r *Router) invite(_ context.Context, c *call) (any, error) {
	var args inviteArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}
	if args.User == "" {
		return nil, wireerr.Invalid("missing user to invite")
	}

	if _, err := r.lobbies.SendInvite(c.username(), args.User, args.LobbyID); err != nil {
		return nil, err
	}
	return invitedResult{Invited: args.User}, nil
}

type joinTeamArgs struct {
	LobbyID model.LobbyID `json:"lobby_id"`
	Team    string        `json:"team"`
}

func (r *Router) joinTeam(_ context.Context, c *call) (any, error) {
	var args joinTeamArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	username := c.username()
	team := model.ParseTeam(args.Team)
	lobby, err := r.lobbies.JoinTeam(username, args.LobbyID, team)
	if err != nil {
		return nil, err
	}

	n := notification(NotifyLobbyUpdate)
	n.Event = EventTeamUpdate
	n.Team = team
	n.Member = username
	r.notify(lobby.Usernames(), n, username)

	return statusResult{Status: true}, nil
}

type settingsArgs struct {
	LobbyID  model.LobbyID   `json:"lobby_id"`
	Settings json.RawMessage `json:"settings_dict"`
}

type settingsDict struct {
	TotalRounds   *int `json:"total_rounds"`
	RoundDuration *int `json:"round_duration"`
}

func (r *Router) updateGameSettings(_ context.Context, c *call) (any, error) {
	var args settingsArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}
	var dict settingsDict
	if err := json.Unmarshal(args.Settings, &dict); err != nil || dict.TotalRounds == nil || dict.RoundDuration == nil {
		return nil, wireerr.Invalid("Setting values should be integers")
	}

	username := c.username()
	settings := model.GameSettings{TotalRounds: *dict.TotalRounds, RoundDuration: *dict.RoundDuration}
	lobby, err := r.lobbies.UpdateSettings(username, args.LobbyID, settings)
	if errors.Is(err, model.ErrSettingsUnchanged) {
		return statusResult{Status: false, Message: model.ErrSettingsUnchanged.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	n := notification(NotifyLobbyUpdate)
	n.Event = EventSettingsUpdate
	n.Settings = &lobby.Settings
	r.notify(lobby.Usernames(), n, username)

	return statusResult{Status: true}, nil
}
