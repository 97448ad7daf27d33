package redis

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// accountRecord is the JSON stored per account; friends live in their own SET
type accountRecord struct {
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	LastGameID   string    `json:"last_game_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	record := accountRecord{
		Username:     account.Username,
		DisplayName:  account.DisplayName,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		LastGameID:   string(account.LastGameID),
		CreatedAt:    account.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, accountKey(account.Username), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return model.ErrUsernameTaken
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, statsKey(account.Username),
			fieldTotalMinutes, 0,
			fieldGamesPlayed, 0,
			fieldGamesWon, 0,
			fieldTotalKills, 0,
			fieldTotalDeaths, 0,
		)
		if len(account.Friends) > 0 {
			pipe.SAdd(ctx, friendsKey(account.Username), toMembers(account.Friends)...)
		}
		return nil
	})
	return err
}

func (s *Storage) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	record, err := s.getRecord(ctx, s.client, username)
	if err != nil {
		return nil, err
	}

	friends, err := s.client.SMembers(ctx, friendsKey(username)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(friends)
	if len(friends) == 0 {
		friends = nil
	}

	return &model.Account{
		Username:     record.Username,
		DisplayName:  record.DisplayName,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Friends:      friends,
		LastGameID:   model.GameID(record.LastGameID),
		CreatedAt:    record.CreatedAt,
	}, nil
}

func (s *Storage) getRecord(ctx context.Context, c getter, username string) (*accountRecord, error) {
	data, err := c.Get(ctx, accountKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var record accountRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	return s.updateRecord(ctx, username, func(r *accountRecord) {
		r.PasswordHash = passwordHash
	})
}

func (s *Storage) SetLastGameID(ctx context.Context, username string, id model.GameID) error {
	return s.updateRecord(ctx, username, func(r *accountRecord) {
		r.LastGameID = string(id)
	})
}

// updateRecord applies edit under WATCH so concurrent writers cannot lose updates
func (s *Storage) updateRecord(ctx context.Context, username string, edit func(*accountRecord)) error {
	key := accountKey(username)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		record, err := s.getRecord(ctx, tx, username)
		if err != nil {
			return err
		}
		edit(record)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// Stats operations

func (s *Storage) GetStats(ctx context.Context, username string) (*model.Stats, error) {
	fields, err := s.client.HGetAll(ctx, statsKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrAccountNotFound
	}

	stats := &model.Stats{Username: username}
	for field, dst := range map[string]*int{
		fieldTotalMinutes: &stats.TotalMinutes,
		fieldGamesPlayed:  &stats.GamesPlayed,
		fieldGamesWon:     &stats.GamesWon,
		fieldTotalKills:   &stats.TotalKills,
		fieldTotalDeaths:  &stats.TotalDeaths,
	} {
		if raw, ok := fields[field]; ok {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, err
			}
			*dst = n
		}
	}
	return stats, nil
}

func (s *Storage) RecordGameResult(ctx context.Context, username string, result model.GameResult) error {
	key := statsKey(username)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return model.ErrAccountNotFound
	}

	won := int64(0)
	if result.Won {
		won = 1
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldGamesPlayed, 1)
		pipe.HIncrBy(ctx, key, fieldGamesWon, won)
		pipe.HIncrBy(ctx, key, fieldTotalKills, int64(result.Kills))
		pipe.HIncrBy(ctx, key, fieldTotalDeaths, int64(result.Deaths))
		pipe.HIncrBy(ctx, key, fieldTotalMinutes, int64(result.Minutes))
		return nil
	})
	return err
}

// Friend request operations

func (s *Storage) FriendRequestExists(ctx context.Context, from, to string) (bool, error) {
	return s.client.SIsMember(ctx, outboundKey(from), to).Result()
}

func (s *Storage) CreateFriendRequest(ctx context.Context, from, to string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, outboundKey(from), to)
		pipe.SAdd(ctx, inboundKey(to), from)
		return nil
	})
	return err
}

func (s *Storage) DeleteFriendRequest(ctx context.Context, from, to string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, outboundKey(from), to)
		pipe.SRem(ctx, inboundKey(to), from)
		return nil
	})
	return err
}

func (s *Storage) ListOutboundRequests(ctx context.Context, from string) ([]string, error) {
	return s.sortedMembers(ctx, outboundKey(from))
}

func (s *Storage) ListInboundRequests(ctx context.Context, to string) ([]string, error) {
	return s.sortedMembers(ctx, inboundKey(to))
}

func (s *Storage) sortedMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(members)
	return members, nil
}

func (s *Storage) AcceptFriendRequest(ctx context.Context, requester, accepter string) error {
	n, err := s.client.Exists(ctx, accountKey(requester), accountKey(accepter)).Result()
	if err != nil {
		return err
	}
	if n < 2 {
		return model.ErrAccountNotFound
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, outboundKey(requester), accepter)
		pipe.SRem(ctx, inboundKey(accepter), requester)
		pipe.SAdd(ctx, friendsKey(requester), accepter)
		pipe.SAdd(ctx, friendsKey(accepter), requester)
		return nil
	})
	return err
}

func (s *Storage) RemoveFriendship(ctx context.Context, a, b string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, friendsKey(a), b)
		pipe.SRem(ctx, friendsKey(b), a)
		return nil
	})
	return err
}

func toMembers(values []string) []any {
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = v
	}
	return members
}
