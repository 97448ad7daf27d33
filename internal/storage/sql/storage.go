// Package sql persists accounts, stats and friend requests through gorm.
// SQLite is the default dialect; postgres:// DSNs select PostgreSQL.
package sql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// Storage is a gorm-backed implementation of the storage interface
type Storage struct {
	db *gorm.DB
}

// Open connects to the database named by dsn and migrates the schema
func Open(dsn string) (*Storage, error) {
	db, err := gorm.Open(dialector(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; serialise through a single connection.
		sqlDB.SetMaxOpenConns(1)
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing connection (for testing) and migrates the schema
func NewWithDB(db *gorm.DB) (*Storage, error) {
	if err := db.AutoMigrate(&accountRow{}, &statsRow{}, &friendRequestRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Storage{db: db}, nil
}

func dialector(dsn string) gorm.Dialector {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(buildSQLiteDSN(dsn))
}

// buildSQLiteDSN adds the connection parameters the server expects to a SQLite path
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = "thefall.db"
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	row := accountToRow(account)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&accountRow{}).Where("username = ?", row.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return model.ErrUsernameTaken
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Create(&statsRow{Username: row.Username}).Error
	})
}

func (s *Storage) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Storage) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return s.updateAccount(ctx, username, "password_hash", passwordHash)
}

func (s *Storage) SetLastGameID(ctx context.Context, username string, id model.GameID) error {
	return s.updateAccount(ctx, username, "last_game_id", string(id))
}

func (s *Storage) updateAccount(ctx context.Context, username, column string, value any) error {
	result := s.db.WithContext(ctx).Model(&accountRow{}).Where("username = ?", username).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// Stats operations

func (s *Storage) GetStats(ctx context.Context, username string) (*model.Stats, error) {
	var row statsRow
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Storage) RecordGameResult(ctx context.Context, username string, r model.GameResult) error {
	won := 0
	if r.Won {
		won = 1
	}
	result := s.db.WithContext(ctx).Model(&statsRow{}).Where("username = ?", username).Updates(map[string]any{
		"games_played":  gorm.Expr("games_played + ?", 1),
		"games_won":     gorm.Expr("games_won + ?", won),
		"total_kills":   gorm.Expr("total_kills + ?", r.Kills),
		"total_deaths":  gorm.Expr("total_deaths + ?", r.Deaths),
		"total_minutes": gorm.Expr("total_minutes + ?", r.Minutes),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrAccountNotFound
	}
	return nil
}

// Friend request operations

func (s *Storage) FriendRequestExists(ctx context.Context, from, to string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&friendRequestRow{}).
		Where("from_user = ? AND to_user = ?", from, to).
		Count(&count).Error
	return count > 0, err
}

func (s *Storage) CreateFriendRequest(ctx context.Context, from, to string) error {
	row := friendRequestRow{FromUser: from, ToUser: to, CreatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (s *Storage) DeleteFriendRequest(ctx context.Context, from, to string) error {
	return s.db.WithContext(ctx).
		Where("from_user = ? AND to_user = ?", from, to).
		Delete(&friendRequestRow{}).Error
}

func (s *Storage) ListOutboundRequests(ctx context.Context, from string) ([]string, error) {
	users := []string{}
	err := s.db.WithContext(ctx).Model(&friendRequestRow{}).
		Where("from_user = ?", from).
		Order("to_user").
		Pluck("to_user", &users).Error
	return users, err
}

func (s *Storage) ListInboundRequests(ctx context.Context, to string) ([]string, error) {
	users := []string{}
	err := s.db.WithContext(ctx).Model(&friendRequestRow{}).
		Where("to_user = ?", to).
		Order("from_user").
		Pluck("from_user", &users).Error
	return users, err
}

func (s *Storage) AcceptFriendRequest(ctx context.Context, requester, accepter string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_user = ? AND to_user = ?", requester, accepter).
			Delete(&friendRequestRow{}).Error; err != nil {
			return err
		}
		if err := editFriends(tx, requester, func(f []string) []string { return addFriend(f, accepter) }); err != nil {
			return err
		}
		return editFriends(tx, accepter, func(f []string) []string { return addFriend(f, requester) })
	})
}

func (s *Storage) RemoveFriendship(ctx context.Context, a, b string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := editFriends(tx, a, func(f []string) []string { return removeFriend(f, b) })
		if err != nil && !errors.Is(err, model.ErrAccountNotFound) {
			return err
		}
		err = editFriends(tx, b, func(f []string) []string { return removeFriend(f, a) })
		if err != nil && !errors.Is(err, model.ErrAccountNotFound) {
			return err
		}
		return nil
	})
}

func editFriends(tx *gorm.DB, username string, edit func([]string) []string) error {
	var row accountRow
	if err := tx.Where("username = ?", username).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrAccountNotFound
		}
		return err
	}
	friends := edit(splitFriends(row.Friends))
	return tx.Model(&accountRow{}).Where("username = ?", username).Update("friends", joinFriends(friends)).Error
}

func addFriend(friends []string, username string) []string {
	if slices.Contains(friends, username) {
		return friends
	}
	return append(friends, username)
}

func removeFriend(friends []string, username string) []string {
	return slices.DeleteFunc(friends, func(f string) bool { return f == username })
}
