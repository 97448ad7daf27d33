package model

import (
	"maps"
	"slices"
	"time"
)

// LobbyID is the snowflake identifying a lobby
type LobbyID string

// Team is a team-assignment slot within a lobby or game
type Team string

const (
	TeamRed      Team = "red"
	TeamBlue     Team = "blue"
	TeamSwitcher Team = "switcher" // Neutral slot before picking a side
)

// ParseTeam maps a requested team name onto a slot; anything unknown is the switcher
func ParseTeam(s string) Team {
	switch Team(s) {
	case TeamRed:
		return TeamRed
	case TeamBlue:
		return TeamBlue
	default:
		return TeamSwitcher
	}
}

// GameSettings holds the host-configurable settings for the next game
type GameSettings struct {
	TotalRounds   int `json:"total_rounds"`
	RoundDuration int `json:"round_duration"` // Seconds
}

// Settings bounds
const (
	MinTotalRounds   = 1
	MaxTotalRounds   = 20
	MinRoundDuration = 60
	MaxRoundDuration = 600
)

// DefaultGameSettings returns the settings a new lobby starts with
func DefaultGameSettings() GameSettings {
	return GameSettings{
		TotalRounds:   3,
		RoundDuration: 150,
	}
}

// Validate checks the settings are within the allowed ranges
func (s GameSettings) Validate() error {
	if s.TotalRounds < MinTotalRounds || s.TotalRounds > MaxTotalRounds {
		return ErrInvalidSettings
	}
	if s.RoundDuration < MinRoundDuration || s.RoundDuration > MaxRoundDuration {
		return ErrInvalidSettings
	}
	return nil
}

// Lobby is a group of players preparing a game
type Lobby struct {
	ID             LobbyID
	Host           string
	RedTeam        []string
	BlueTeam       []string
	Switcher       []string
	Players        map[string]time.Time // Username -> join time
	InviteCode     int
	Settings       GameSettings
	GameStartingAt *time.Time
}

// HasPlayer reports whether the username is a member of the lobby
func (l *Lobby) HasPlayer(username string) bool {
	_, ok := l.Players[username]
	return ok
}

// TeamOf returns which slot currently holds the username
func (l *Lobby) TeamOf(username string) (Team, bool) {
	switch {
	case slices.Contains(l.RedTeam, username):
		return TeamRed, true
	case slices.Contains(l.BlueTeam, username):
		return TeamBlue, true
	case slices.Contains(l.Switcher, username):
		return TeamSwitcher, true
	}
	return "", false
}

// RemoveFromTeams removes the username from whichever slot holds it
func (l *Lobby) RemoveFromTeams(username string) {
	l.RedTeam = slices.DeleteFunc(l.RedTeam, func(u string) bool { return u == username })
	l.BlueTeam = slices.DeleteFunc(l.BlueTeam, func(u string) bool { return u == username })
	l.Switcher = slices.DeleteFunc(l.Switcher, func(u string) bool { return u == username })
}

// AddToTeam appends the username to the given slot
func (l *Lobby) AddToTeam(username string, team Team) {
	switch team {
	case TeamRed:
		l.RedTeam = append(l.RedTeam, username)
	case TeamBlue:
		l.BlueTeam = append(l.BlueTeam, username)
	default:
		l.Switcher = append(l.Switcher, username)
	}
}

// OldestPlayer returns the member with the earliest join time
func (l *Lobby) OldestPlayer() (string, bool) {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for name, joined := range l.Players {
		if !found || joined.Before(at) || (joined.Equal(at) && name < oldest) {
			oldest, at, found = name, joined, true
		}
	}
	return oldest, found
}

// Usernames returns the lobby members sorted by name
func (l *Lobby) Usernames() []string {
	return slices.Sorted(maps.Keys(l.Players))
}

// Clone returns a deep copy of the lobby
func (l *Lobby) Clone() *Lobby {
	c := *l
	c.RedTeam = slices.Clone(l.RedTeam)
	c.BlueTeam = slices.Clone(l.BlueTeam)
	c.Switcher = slices.Clone(l.Switcher)
	c.Players = maps.Clone(l.Players)
	if l.GameStartingAt != nil {
		at := *l.GameStartingAt
		c.GameStartingAt = &at
	}
	return &c
}

// Invite tracks who has been invited into a lobby through its invite code
type Invite struct {
	LobbyID      LobbyID
	AuditLog     map[string]string // Invitee -> inviter
	InvitedUsers []string
}

// Clone returns a deep copy of the invite
func (i *Invite) Clone() *Invite {
	c := *i
	c.AuditLog = maps.Clone(i.AuditLog)
	c.InvitedUsers = slices.Clone(i.InvitedUsers)
	return &c
}
