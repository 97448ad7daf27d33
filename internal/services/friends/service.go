package friends

import (
	"context"
	"log/slog"
	"sync"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// AddOutcome reports what AddFriend did
type AddOutcome string

const (
	AddSent     AddOutcome = "sent"     // A new request was recorded
	AddAccepted AddOutcome = "accepted" // A reverse request existed; the users are now friends
)

// RemoveOutcome reports what RemoveFriend did
type RemoveOutcome string

const (
	RemoveWithdrawn RemoveOutcome = "withdrawn" // A pending outbound request was deleted
	RemoveRemoved   RemoveOutcome = "removed"   // An existing friendship was dissolved
)

// Service implements the friend request workflow on top of storage
type Service struct {
	storage storage.Storage
	logger  *slog.Logger

	// Serialises request/accept decisions so crossing requests resolve to one accept
	mu sync.Mutex
}

// New creates a friends Service
func New(storage storage.Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger.With(slog.String("component", "friends")),
	}
}

// AddFriend sends a request from one user to another, or accepts the reverse request if one exists
func (s *Service) AddFriend(ctx context.Context, from, to string) (AddOutcome, error) {
	if from == to {
		return "", model.ErrSelfFriend
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender, err := s.storage.GetAccount(ctx, from)
	if err != nil {
		return "", err
	}
	if _, err := s.storage.GetAccount(ctx, to); err != nil {
		return "", err
	}
	if sender.HasFriend(to) {
		return "", model.ErrAlreadyFriends
	}

	reverse, err := s.storage.FriendRequestExists(ctx, to, from)
	if err != nil {
		return "", err
	}
	if reverse {
		if err := s.storage.AcceptFriendRequest(ctx, to, from); err != nil {
			return "", err
		}
		s.logger.Info("friend request accepted", slog.String("from", to), slog.String("to", from))
		return AddAccepted, nil
	}

	pending, err := s.storage.FriendRequestExists(ctx, from, to)
	if err != nil {
		return "", err
	}
	if pending {
		return "", model.ErrRequestPending
	}

	if err := s.storage.CreateFriendRequest(ctx, from, to); err != nil {
		return "", err
	}
	s.logger.Info("friend request sent", slog.String("from", from), slog.String("to", to))
	return AddSent, nil
}

// RemoveFriend withdraws a pending request or dissolves a friendship
func (s *Service) RemoveFriend(ctx context.Context, from, with string) (RemoveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.storage.FriendRequestExists(ctx, from, with)
	if err != nil {
		return "", err
	}
	if pending {
		if err := s.storage.DeleteFriendRequest(ctx, from, with); err != nil {
			return "", err
		}
		return RemoveWithdrawn, nil
	}

	account, err := s.storage.GetAccount(ctx, from)
	if err != nil {
		return "", err
	}
	if !account.HasFriend(with) {
		return "", model.ErrNotFriends
	}
	if err := s.storage.RemoveFriendship(ctx, from, with); err != nil {
		return "", err
	}
	s.logger.Info("friendship removed", slog.String("from", from), slog.String("with", with))
	return RemoveRemoved, nil
}

// Outbound lists users the given user has pending requests to
func (s *Service) Outbound(ctx context.Context, username string) ([]string, error) {
	return s.storage.ListOutboundRequests(ctx, username)
}

// Inbound lists users with pending requests to the given user
func (s *Service) Inbound(ctx context.Context, username string) ([]string, error) {
	return s.storage.ListInboundRequests(ctx, username)
}

// Friends returns the user's current friend list
func (s *Service) Friends(ctx context.Context, username string) ([]string, error) {
	account, err := s.storage.GetAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	return account.Friends, nil
}
