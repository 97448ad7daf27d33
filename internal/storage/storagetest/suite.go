// Package storagetest holds the behaviour every storage backend must share.
// Backend packages embed Suite and assign Store in their SetupTest.
package storagetest

import (
	"context"

	"github.com/stretchr/testify/suite"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// Suite exercises a storage.Storage implementation
type Suite struct {
	suite.Suite
	Store storage.Storage
	Ctx   context.Context
}

func (s *Suite) createAccount(username string) {
	err := s.Store.CreateAccount(s.Ctx, &model.Account{
		Username:     username,
		DisplayName:  "Display " + username,
		Email:        username + "@example.com",
		PasswordHash: "hash-" + username,
	})
	s.Require().NoError(err)
}

// Account tests

func (s *Suite) TestCreateAndGetAccount() {
	s.createAccount("alice")

	account, err := s.Store.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("alice", account.Username)
	s.Equal("Display alice", account.DisplayName)
	s.Equal("alice@example.com", account.Email)
	s.Equal("hash-alice", account.PasswordHash)
	s.Empty(account.Friends)
	s.Empty(account.LastGameID)
}

func (s *Suite) TestCreateAccountCreatesZeroStats() {
	s.createAccount("alice")

	stats, err := s.Store.GetStats(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("alice", stats.Username)
	s.Zero(stats.GamesPlayed)
	s.Zero(stats.TotalKills)
}

func (s *Suite) TestCreateAccountDuplicate() {
	s.createAccount("alice")

	err := s.Store.CreateAccount(s.Ctx, &model.Account{Username: "alice"})
	s.ErrorIs(err, model.ErrUsernameTaken)
}

func (s *Suite) TestGetAccountNotFound() {
	_, err := s.Store.GetAccount(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrAccountNotFound)

	_, err = s.Store.GetStats(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *Suite) TestUpdatePassword() {
	s.createAccount("alice")

	s.Require().NoError(s.Store.UpdatePassword(s.Ctx, "alice", "new-hash"))

	account, err := s.Store.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("new-hash", account.PasswordHash)

	s.ErrorIs(s.Store.UpdatePassword(s.Ctx, "nobody", "x"), model.ErrAccountNotFound)
}

func (s *Suite) TestSetLastGameID() {
	s.createAccount("alice")

	s.Require().NoError(s.Store.SetLastGameID(s.Ctx, "alice", "game-1"))

	account, err := s.Store.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.GameID("game-1"), account.LastGameID)
}

// Stats tests

func (s *Suite) TestRecordGameResultAccumulates() {
	s.createAccount("alice")

	s.Require().NoError(s.Store.RecordGameResult(s.Ctx, "alice", model.GameResult{Won: true, Kills: 3, Deaths: 1, Minutes: 5}))
	s.Require().NoError(s.Store.RecordGameResult(s.Ctx, "alice", model.GameResult{Kills: 2, Deaths: 4, Minutes: 7}))

	stats, err := s.Store.GetStats(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal(2, stats.GamesPlayed)
	s.Equal(1, stats.GamesWon)
	s.Equal(5, stats.TotalKills)
	s.Equal(5, stats.TotalDeaths)
	s.Equal(12, stats.TotalMinutes)
}

func (s *Suite) TestRecordGameResultUnknownUser() {
	err := s.Store.RecordGameResult(s.Ctx, "nobody", model.GameResult{Kills: 1})
	s.ErrorIs(err, model.ErrAccountNotFound)
}

// Friend request tests

func (s *Suite) TestFriendRequestLifecycle() {
	s.createAccount("alice")
	s.createAccount("bob")
	s.createAccount("carol")

	s.Require().NoError(s.Store.CreateFriendRequest(s.Ctx, "alice", "bob"))
	s.Require().NoError(s.Store.CreateFriendRequest(s.Ctx, "alice", "carol"))
	s.Require().NoError(s.Store.CreateFriendRequest(s.Ctx, "carol", "bob"))

	exists, err := s.Store.FriendRequestExists(s.Ctx, "alice", "bob")
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.Store.FriendRequestExists(s.Ctx, "bob", "alice")
	s.Require().NoError(err)
	s.False(exists)

	outbound, err := s.Store.ListOutboundRequests(s.Ctx, "alice")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"bob", "carol"}, outbound)

	inbound, err := s.Store.ListInboundRequests(s.Ctx, "bob")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"alice", "carol"}, inbound)

	s.Require().NoError(s.Store.DeleteFriendRequest(s.Ctx, "alice", "carol"))
	outbound, err = s.Store.ListOutboundRequests(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, outbound)
}

func (s *Suite) TestListRequestsEmpty() {
	outbound, err := s.Store.ListOutboundRequests(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Empty(outbound)

	inbound, err := s.Store.ListInboundRequests(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Empty(inbound)
}

func (s *Suite) TestAcceptFriendRequest() {
	s.createAccount("alice")
	s.createAccount("bob")
	s.Require().NoError(s.Store.CreateFriendRequest(s.Ctx, "alice", "bob"))

	s.Require().NoError(s.Store.AcceptFriendRequest(s.Ctx, "alice", "bob"))

	exists, err := s.Store.FriendRequestExists(s.Ctx, "alice", "bob")
	s.Require().NoError(err)
	s.False(exists)

	alice, err := s.Store.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, alice.Friends)

	bob, err := s.Store.GetAccount(s.Ctx, "bob")
	s.Require().NoError(err)
	s.Equal([]string{"alice"}, bob.Friends)
}

func (s *Suite) TestRemoveFriendship() {
	s.createAccount("alice")
	s.createAccount("bob")
	s.createAccount("carol")
	s.Require().NoError(s.Store.AcceptFriendRequest(s.Ctx, "alice", "bob"))
	s.Require().NoError(s.Store.AcceptFriendRequest(s.Ctx, "alice", "carol"))

	s.Require().NoError(s.Store.RemoveFriendship(s.Ctx, "bob", "alice"))

	alice, err := s.Store.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal([]string{"carol"}, alice.Friends)

	bob, err := s.Store.GetAccount(s.Ctx, "bob")
	s.Require().NoError(err)
	s.Empty(bob.Friends)
}
