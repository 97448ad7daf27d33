package storage

import (
	"context"

	"github.com/thefall/sessionserver/internal/model"
)

// Storage defines the interface for data persistence: accounts, stats and friend-request edges
type Storage interface {
	// Account operations
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, username string) (*model.Account, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	SetLastGameID(ctx context.Context, username string, id model.GameID) error

	// Stats operations
	GetStats(ctx context.Context, username string) (*model.Stats, error)
	RecordGameResult(ctx context.Context, username string, result model.GameResult) error

	// Friend request operations
	FriendRequestExists(ctx context.Context, from, to string) (bool, error)
	CreateFriendRequest(ctx context.Context, from, to string) error
	DeleteFriendRequest(ctx context.Context, from, to string) error
	ListOutboundRequests(ctx context.Context, from string) ([]string, error)
	ListInboundRequests(ctx context.Context, to string) ([]string, error)

	// AcceptFriendRequest deletes the requester->accepter edge and adds each user to the other's friends
	AcceptFriendRequest(ctx context.Context, requester, accepter string) error
	// RemoveFriendship drops each user from the other's friends
	RemoveFriendship(ctx context.Context, a, b string) error

	Close() error
}
