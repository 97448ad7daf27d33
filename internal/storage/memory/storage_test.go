package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.storage = New()
	s.Store = s.storage
	s.Ctx = context.Background()
}

func (s *StorageSuite) TestReturnedAccountIsACopy() {
	s.Require().NoError(s.storage.CreateAccount(s.Ctx, &model.Account{Username: "alice"}))

	account, err := s.storage.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	account.Friends = append(account.Friends, "mallory")

	again, err := s.storage.GetAccount(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Empty(again.Friends)
}
