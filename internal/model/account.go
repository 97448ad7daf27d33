package model

import (
	"slices"
	"time"
)

// Account is the persisted record of a registered user
type Account struct {
	Username     string
	DisplayName  string
	Email        string
	PasswordHash string
	Friends      []string
	LastGameID   GameID
	CreatedAt    time.Time
}

// HasFriend reports whether username is in the account's friend list
func (a *Account) HasFriend(username string) bool {
	return slices.Contains(a.Friends, username)
}

// Stats holds a user's lifetime statistics
type Stats struct {
	Username     string
	TotalMinutes int
	GamesPlayed  int
	GamesWon     int
	TotalKills   int
	TotalDeaths  int
}

// GameResult is one participant's contribution from a finished game
type GameResult struct {
	Won     bool
	Kills   int
	Deaths  int
	Minutes int
}

// Apply adds a game result onto the stats
func (s *Stats) Apply(r GameResult) {
	s.GamesPlayed++
	if r.Won {
		s.GamesWon++
	}
	s.TotalKills += r.Kills
	s.TotalDeaths += r.Deaths
	s.TotalMinutes += r.Minutes
}

// FriendRequest is a pending edge from one user to another
type FriendRequest struct {
	FromUser  string
	ToUser    string
	CreatedAt time.Time
}
