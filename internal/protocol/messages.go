package protocol

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
)

// Notification names
const (
	NotifyRegisterOTP   = "sent_register_otp"
	NotifyPasswordOTP   = "sent_fpwd_otp"
	NotifyFriendsUpdate = "on_friends_update"
	NotifyLobbyUpdate   = "on_lobby_update"
	NotifyGameUpdate    = "on_game_update"
	NotifyGameStarted   = "game_started"
	NotifyGameFinish    = "on_game_finish"
)

// Notification events
const (
	EventJoin           = "join"
	EventLeave          = "leave"
	EventTeamUpdate     = "team_update"
	EventSettingsUpdate = "settings_update"
	EventGameStart      = "on_game_start"
	EventNextCheck      = "next_check"
	EventBullet         = "bullet"
	EventCharacter      = "character"
	EventFriendAdded    = "added"
	EventFriendRemoved  = "removed"
)

// connectFrame greets every accepted connection
var connectFrame = []byte(`{"command":"ON_CONNECT","id":0}`)

// Reply answers one request, correlated by its id
type Reply struct {
	Return  string `json:"return,omitempty"`
	ID      int64  `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Status  *bool  `json:"status,omitempty"`
	RetType string `json:"ret_type,omitempty"`
}

// Notification is an unsolicited push; which fields are set depends on Notify and Event
type Notification struct {
	ID       int                 `json:"id"`
	Notify   string              `json:"notify"`
	Event    string              `json:"event,omitempty"`
	Exp      float64             `json:"exp,omitempty"`
	Friend   string              `json:"friend,omitempty"`
	Member   string              `json:"member,omitempty"`
	Team     model.Team          `json:"team,omitempty"`
	Lobby    *LobbyView          `json:"lobby,omitempty"`
	Settings *model.GameSettings `json:"settings_dict,omitempty"`
	When     float64             `json:"when,omitempty"`
	GameID   model.GameID        `json:"game_id,omitempty"`
	GameInfo *GameView           `json:"game_info,omitempty"`
	Owner    string              `json:"owner,omitempty"`
	Data     any                 `json:"data,omitempty"`
}

func notification(notify string) *Notification {
	return &Notification{ID: NotificationID, Notify: notify}
}

// RoundMetadata is the payload of a next_check event
type RoundMetadata struct {
	Won             model.Outcome `json:"won"`
	Round           int           `json:"round"`
	RedLeaderboard  []string      `json:"red_leaderboard"`
	BlueLeaderboard []string      `json:"blue_leaderboard"`
	Finished        bool          `json:"finished"`
}

type roundData struct {
	Metadata RoundMetadata `json:"metadata"`
}

// PublicUser is the profile anyone may look up
type PublicUser struct {
	Username     string   `json:"username"`
	DisplayName  string   `json:"displayname"`
	Friends      []string `json:"friends"`
	TotalMinutes int      `json:"total_minutes"`
	GamesPlayed  int      `json:"games_played"`
	GamesWon     int      `json:"games_won"`
	TotalKills   int      `json:"total_kills"`
	TotalDeaths  int      `json:"total_deaths"`
}

// AccountData is the profile returned to its owner on login or registration
type AccountData struct {
	PublicUser
	Email      string       `json:"email"`
	LastGameID model.GameID `json:"last_game_id"`
}

// LoginResult is the result of login and of a completed registration
type LoginResult struct {
	Status         bool    `json:"status"`
	Authentication *string `json:"authentication"`
	Data           any     `json:"data"`
}

func newPublicUser(username, displayName string, friends []string, stats *model.Stats) PublicUser {
	u := PublicUser{
		Username:    username,
		DisplayName: displayName,
		Friends:     nonNil(friends),
	}
	if stats != nil {
		u.TotalMinutes = stats.TotalMinutes
		u.GamesPlayed = stats.GamesPlayed
		u.GamesWon = stats.GamesWon
		u.TotalKills = stats.TotalKills
		u.TotalDeaths = stats.TotalDeaths
	}
	return u
}

func (u PublicUser) list() []any {
	return []any{
		u.Username, u.DisplayName, u.Friends,
		u.TotalMinutes, u.GamesPlayed, u.GamesWon, u.TotalKills, u.TotalDeaths,
	}
}

func loginSuccess(identity *model.Identity, stats *model.Stats) *LoginResult {
	token := identity.Token
	return &LoginResult{
		Status:         true,
		Authentication: &token,
		Data: AccountData{
			PublicUser: newPublicUser(identity.Username, identity.DisplayName, identity.Friends, stats),
			Email:      identity.Email,
			LastGameID: identity.LastGameID,
		},
	}
}

func loginFailure() *LoginResult {
	return &LoginResult{Data: struct{}{}}
}

// LobbyView is the wire form of a lobby
type LobbyView struct {
	Host           string             `json:"host"`
	RedTeam        []string           `json:"red_team"`
	BlueTeam       []string           `json:"blue_team"`
	Switcher       []string           `json:"switcher"`
	Players        map[string]float64 `json:"players"` // Join time, epoch seconds
	InviteCode     int                `json:"invite_code"`
	GameSettings   model.GameSettings `json:"game_settings"`
	GameStartingAt *float64           `json:"game_starting_at"`
}

// NewLobbyView converts a lobby to its wire form
func NewLobbyView(l *model.Lobby) *LobbyView {
	v := &LobbyView{
		Host:         l.Host,
		RedTeam:      nonNil(l.RedTeam),
		BlueTeam:     nonNil(l.BlueTeam),
		Switcher:     nonNil(l.Switcher),
		Players:      make(map[string]float64, len(l.Players)),
		InviteCode:   l.InviteCode,
		GameSettings: l.Settings,
	}
	for name, joined := range l.Players {
		v.Players[name] = clock.Epoch(joined)
	}
	if l.GameStartingAt != nil {
		at := clock.Epoch(*l.GameStartingAt)
		v.GameStartingAt = &at
	}
	return v
}

type lobbyResult struct {
	LobbyID model.LobbyID `json:"lobby_id"`
	Lobby   *LobbyView    `json:"lobby"`
}

// GamePlayerView is a participant inside a GameView
type GamePlayerView struct {
	Joined float64    `json:"joined"`
	Team   model.Team `json:"team"`
}

// GameStatsView is the stats block inside a GameView
type GameStatsView struct {
	Teams    map[model.Team]model.TeamStats `json:"teams"`
	Players  map[string]model.PlayerStats   `json:"players"`
	Winnings []model.Outcome                `json:"winnings"`
}

// GameView is the wire form of a game; live transforms are not included
type GameView struct {
	Host          string                    `json:"host"`
	Round         int                       `json:"round"`
	TotalRounds   int                       `json:"total_rounds"`
	RoundLength   int                       `json:"round_length"`
	RoundStartsAt float64                   `json:"round_starts_at"`
	RoundEndAt    float64                   `json:"round_end_at"`
	RedTeam       []string                  `json:"red_team"`
	BlueTeam      []string                  `json:"blue_team"`
	Players       map[string]GamePlayerView `json:"players"`
	Stats         GameStatsView             `json:"stats"`
	State         model.GameState           `json:"state"`
}

// NewGameView converts a game to its wire form as seen at now
func NewGameView(g *model.Game, now time.Time) *GameView {
	v := &GameView{
		Host:          g.Host,
		Round:         g.Round,
		TotalRounds:   g.TotalRounds,
		RoundLength:   g.RoundLength,
		RoundStartsAt: clock.Epoch(g.RoundStartsAt),
		RoundEndAt:    clock.Epoch(g.RoundEndAt),
		RedTeam:       nonNil(g.RedTeam),
		BlueTeam:      nonNil(g.BlueTeam),
		Players:       make(map[string]GamePlayerView, len(g.Players)),
		Stats: GameStatsView{
			Teams:    make(map[model.Team]model.TeamStats, len(g.Stats.Teams)),
			Players:  make(map[string]model.PlayerStats, len(g.Stats.Players)),
			Winnings: nonNil(g.Stats.Winnings),
		},
		State: g.State(now),
	}
	for name, p := range g.Players {
		v.Players[name] = GamePlayerView{Joined: clock.Epoch(p.Joined), Team: p.Team}
	}
	for team, ts := range g.Stats.Teams {
		v.Stats.Teams[team] = *ts
	}
	for name, ps := range g.Stats.Players {
		v.Stats.Players[name] = *ps
	}
	return v
}

type gameResult struct {
	GameID   model.GameID `json:"game_id"`
	GameInfo *GameView    `json:"game_info"`
}

// relayData is a client-supplied game payload relayed to other participants
type relayData map[string]json.RawMessage

// without returns a copy of the payload minus the given key
func (d relayData) without(key string) relayData {
	out := maps.Clone(d)
	delete(out, key)
	if out == nil {
		out = relayData{}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
