package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/testutil"
)

type RegistrySuite struct {
	suite.Suite
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.registry = NewRegistry(testutil.NopLogger())
}

func (s *RegistrySuite) connect(id model.ConnID) *testutil.FakeConn {
	conn := testutil.NewFakeConn(id)
	s.registry.Add(conn)
	return conn
}

func identity(username, token string) *model.Identity {
	return &model.Identity{Username: username, DisplayName: username, Token: token}
}

func (s *RegistrySuite) TestNewConnIDIsUnique() {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewConnID(now)
	b := NewConnID(now)
	s.NotEqual(a, b)
	s.Len(string(a), 26)
}

func (s *RegistrySuite) TestAddAndRemove() {
	s.connect("c1")
	s.Equal(1, s.registry.Len())

	_, ok := s.registry.Conn("c1")
	s.True(ok)

	_, bound := s.registry.Remove("c1")
	s.False(bound)
	s.Equal(0, s.registry.Len())
}

func (s *RegistrySuite) TestBindAndAuthenticate() {
	s.connect("c1")
	s.registry.Bind("c1", identity("alice", "tok"))

	got, err := s.registry.Authenticate("c1", "alice", "tok")
	s.Require().NoError(err)
	s.Equal("alice", got.Username)
	s.True(s.registry.IsOnline("alice"))
	s.Equal(1, s.registry.Authenticated())
}

func (s *RegistrySuite) TestAuthenticateRejects() {
	s.connect("c1")
	s.connect("c2")
	s.registry.Bind("c1", identity("alice", "tok"))

	_, err := s.registry.Authenticate("c1", "alice", "wrong")
	s.ErrorIs(err, model.ErrAuthentication)

	_, err = s.registry.Authenticate("c1", "bob", "tok")
	s.ErrorIs(err, model.ErrAuthentication)

	_, err = s.registry.Authenticate("c2", "alice", "tok")
	s.ErrorIs(err, model.ErrAuthentication)

	s.registry.Bind("c2", identity("bob", ""))
	_, err = s.registry.Authenticate("c2", "bob", "")
	s.ErrorIs(err, model.ErrAuthentication)
}

func (s *RegistrySuite) TestRebindReplacesIdentity() {
	s.connect("c1")
	s.registry.Bind("c1", identity("alice", "t1"))
	s.registry.Bind("c1", identity("bob", "t2"))

	s.False(s.registry.IsOnline("alice"))
	s.True(s.registry.IsOnline("bob"))
}

func (s *RegistrySuite) TestRemoveReturnsIdentity() {
	s.connect("c1")
	s.registry.Bind("c1", identity("alice", "tok"))
	s.registry.WatchFinish("c1", "g1")

	got, ok := s.registry.Remove("c1")
	s.Require().True(ok)
	s.Equal("alice", got.Username)
	s.False(s.registry.IsOnline("alice"))
	s.Empty(s.registry.Watches())
}

func (s *RegistrySuite) TestIdentityIsCopy() {
	s.connect("c1")
	s.registry.Bind("c1", &model.Identity{Username: "alice", Token: "t", Friends: []string{"bob"}})

	got, _ := s.registry.Identity("c1")
	got.Friends[0] = "mallory"
	got.LobbyID = "l1"

	again, _ := s.registry.Identity("c1")
	s.Equal([]string{"bob"}, again.Friends)
	s.Empty(again.LobbyID)
}

func (s *RegistrySuite) TestUpdateUserTouchesEveryConnection() {
	s.connect("c1")
	s.connect("c2")
	s.registry.Bind("c1", identity("alice", "t1"))
	s.registry.Bind("c2", identity("alice", "t2"))

	n := s.registry.UpdateUser("alice", func(i *model.Identity) { i.LastGameID = "g1" })
	s.Equal(2, n)

	for _, id := range []model.ConnID{"c1", "c2"} {
		got, _ := s.registry.Identity(id)
		s.Equal(model.GameID("g1"), got.LastGameID)
	}
}

func (s *RegistrySuite) TestSendToAndBroadcast() {
	a := s.connect("c1")
	b := s.connect("c2")
	c := s.connect("c3")
	s.registry.Bind("c1", identity("alice", "t"))
	s.registry.Bind("c2", identity("bob", "t"))
	s.registry.Bind("c3", identity("carol", "t"))

	s.Equal(1, s.registry.SendTo("alice", []byte("hi")))
	s.Equal(0, s.registry.SendTo("nobody", []byte("hi")))

	sent := s.registry.Broadcast([]string{"alice", "bob", "carol"}, []byte("all"), "bob")
	s.Equal(2, sent)
	s.Len(a.Messages(), 2)
	s.Empty(b.Messages())
	s.Len(c.Messages(), 1)
}

func (s *RegistrySuite) TestBroadcastSkipsFullConnections() {
	a := s.connect("c1")
	b := s.connect("c2")
	s.registry.Bind("c1", identity("alice", "t"))
	s.registry.Bind("c2", identity("bob", "t"))
	a.Full = true

	sent := s.registry.Broadcast([]string{"alice", "bob"}, []byte("x"), "")
	s.Equal(1, sent)
	s.Len(b.Messages(), 1)
}

func (s *RegistrySuite) TestWatchFinishRequiresLiveConnection() {
	s.registry.WatchFinish("ghost", "g1")
	s.Empty(s.registry.Watches())

	s.connect("c1")
	s.registry.WatchFinish("c1", "g1")
	s.Equal(map[model.ConnID]model.GameID{"c1": "g1"}, s.registry.Watches())

	s.registry.Unwatch("c1")
	s.Empty(s.registry.Watches())
}
