package sql

import (
	"strings"
	"time"

	"github.com/thefall/sessionserver/internal/model"
)

// friendsSeparator joins the friends column
const friendsSeparator = ", "

type accountRow struct {
	Username     string `gorm:"primaryKey;size:64"`
	DisplayName  string `gorm:"column:displayname;size:64"`
	Email        string `gorm:"size:254"`
	PasswordHash string `gorm:"size:128"`
	Friends      string `gorm:"type:text"`
	LastGameID   string `gorm:"size:32"`
	CreatedAt    time.Time
}

func (accountRow) TableName() string { return "accounts" }

type statsRow struct {
	Username     string `gorm:"primaryKey;size:64"`
	TotalMinutes int    `gorm:"not null;default:0"`
	GamesPlayed  int    `gorm:"not null;default:0"`
	GamesWon     int    `gorm:"not null;default:0"`
	TotalKills   int    `gorm:"not null;default:0"`
	TotalDeaths  int    `gorm:"not null;default:0"`
}

func (statsRow) TableName() string { return "stats" }

type friendRequestRow struct {
	FromUser  string `gorm:"primaryKey;size:64"`
	ToUser    string `gorm:"primaryKey;size:64;index"`
	CreatedAt time.Time
}

func (friendRequestRow) TableName() string { return "friend_requests" }

func accountToRow(a *model.Account) accountRow {
	return accountRow{
		Username:     a.Username,
		DisplayName:  a.DisplayName,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Friends:      joinFriends(a.Friends),
		LastGameID:   string(a.LastGameID),
		CreatedAt:    a.CreatedAt,
	}
}

func (r accountRow) toModel() *model.Account {
	return &model.Account{
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Friends:      splitFriends(r.Friends),
		LastGameID:   model.GameID(r.LastGameID),
		CreatedAt:    r.CreatedAt,
	}
}

func (r statsRow) toModel() *model.Stats {
	return &model.Stats{
		Username:     r.Username,
		TotalMinutes: r.TotalMinutes,
		GamesPlayed:  r.GamesPlayed,
		GamesWon:     r.GamesWon,
		TotalKills:   r.TotalKills,
		TotalDeaths:  r.TotalDeaths,
	}
}

func joinFriends(friends []string) string {
	return strings.Join(friends, friendsSeparator)
}

func splitFriends(column string) []string {
	var friends []string
	for _, f := range strings.Split(column, ",") {
		if f = strings.TrimSpace(f); f != "" {
			friends = append(friends, f)
		}
	}
	return friends
}
