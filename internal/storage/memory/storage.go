package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	accounts map[string]*model.Account
	stats    map[string]*model.Stats
	requests map[requestKey]time.Time
}

type requestKey struct {
	from string
	to   string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		accounts: make(map[string]*model.Account),
		stats:    make(map[string]*model.Stats),
		requests: make(map[requestKey]time.Time),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Account operations

func (s *Storage) CreateAccount(ctx context.Context, account *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.Username]; ok {
		return model.ErrUsernameTaken
	}
	stored := *account
	stored.Friends = slices.Clone(account.Friends)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.accounts[account.Username] = &stored
	s.stats[account.Username] = &model.Stats{Username: account.Username}
	return nil
}

func (s *Storage) GetAccount(ctx context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[username]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	c := *account
	c.Friends = slices.Clone(account.Friends)
	return &c, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[username]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.PasswordHash = passwordHash
	return nil
}

func (s *Storage) SetLastGameID(ctx context.Context, username string, id model.GameID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[username]
	if !ok {
		return model.ErrAccountNotFound
	}
	account.LastGameID = id
	return nil
}

// Stats operations

func (s *Storage) GetStats(ctx context.Context, username string) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[username]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	c := *stats
	return &c, nil
}

func (s *Storage) RecordGameResult(ctx context.Context, username string, result model.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[username]
	if !ok {
		return model.ErrAccountNotFound
	}
	stats.Apply(result)
	return nil
}

// Friend request operations

func (s *Storage) FriendRequestExists(ctx context.Context, from, to string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.requests[requestKey{from: from, to: to}]
	return ok, nil
}

func (s *Storage) CreateFriendRequest(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := requestKey{from: from, to: to}
	if _, ok := s.requests[key]; !ok {
		s.requests[key] = time.Now()
	}
	return nil
}

func (s *Storage) DeleteFriendRequest(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requestKey{from: from, to: to})
	return nil
}

func (s *Storage) ListOutboundRequests(ctx context.Context, from string) ([]string, error) {
	return s.listRequests(func(k requestKey) (string, bool) { return k.to, k.from == from }), nil
}

func (s *Storage) ListInboundRequests(ctx context.Context, to string) ([]string, error) {
	return s.listRequests(func(k requestKey) (string, bool) { return k.from, k.to == to }), nil
}

func (s *Storage) listRequests(match func(requestKey) (string, bool)) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []string{}
	for _, key := range slices.Collect(maps.Keys(s.requests)) {
		if other, ok := match(key); ok {
			result = append(result, other)
		}
	}
	slices.Sort(result)
	return result
}

func (s *Storage) AcceptFriendRequest(ctx context.Context, requester, accepter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[requester]
	if !ok {
		return model.ErrAccountNotFound
	}
	b, ok := s.accounts[accepter]
	if !ok {
		return model.ErrAccountNotFound
	}
	delete(s.requests, requestKey{from: requester, to: accepter})
	if !a.HasFriend(accepter) {
		a.Friends = append(a.Friends, accepter)
	}
	if !b.HasFriend(requester) {
		b.Friends = append(b.Friends, requester)
	}
	return nil
}

func (s *Storage) RemoveFriendship(ctx context.Context, a, b string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[a]; ok {
		account.Friends = slices.DeleteFunc(account.Friends, func(f string) bool { return f == b })
	}
	if account, ok := s.accounts[b]; ok {
		account.Friends = slices.DeleteFunc(account.Friends, func(f string) bool { return f == a })
	}
	return nil
}

func (s *Storage) Close() error {
	return nil
}
