package protocol

func (s *RouterSuite) TestFriendRequestAndAccept() {
	alice := s.login("alice")
	bob := s.login("bob")

	reply := s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})
	s.Equal("added_friend", reply["return"])
	s.Equal(map[string]any{"result": "sent"}, reply["result"])

	reply = s.authed(alice, "get_outbound_requests", nil)
	s.Equal("outbound_requests", reply["return"])
	s.Equal(map[string]any{"result": []any{"bob"}}, reply["result"])

	reply = s.authed(bob, "get_inbound_requests", nil)
	s.Equal("inbound_requests", reply["return"])
	s.Equal(map[string]any{"result": []any{"alice"}}, reply["result"])

	alice.conn.Reset()
	reply = s.authed(bob, "add_friend", map[string]any{"to_user": "alice"})
	s.Equal(map[string]any{"result": "accepted", "with": "alice"}, reply["result"])

	updates := s.notifications(alice.conn, NotifyFriendsUpdate, EventFriendAdded)
	s.Require().Len(updates, 1)
	s.Equal("bob", updates[0]["friend"])

	s.Equal([]string{"bob"}, s.identity(alice).Friends)
	s.Equal([]string{"alice"}, s.identity(bob).Friends)

	reply = s.authed(bob, "get_inbound_requests", nil)
	s.Equal(map[string]any{"result": []any{}}, reply["result"])
}

func (s *RouterSuite) TestDuplicateFriendRequestIsIdempotent() {
	alice := s.login("alice")
	s.createAccount("bob")

	s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})
	reply := s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})

	s.Nil(reply["error"])
	s.Equal(map[string]any{"result": "sent"}, reply["result"])
}

func (s *RouterSuite) TestAddFriendErrors() {
	alice := s.login("alice")
	bob := s.login("bob")

	s.requireError(s.authed(alice, "add_friend", map[string]any{"to_user": "alice"}), "validation", 14)
	s.requireError(s.authed(alice, "add_friend", map[string]any{"to_user": "nobody"}), "not_found", 9)

	s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})
	s.authed(bob, "add_friend", map[string]any{"to_user": "alice"})
	s.requireError(s.authed(alice, "add_friend", map[string]any{"to_user": "bob"}), "conflict", 12)
}

func (s *RouterSuite) TestRemoveFriend() {
	alice := s.login("alice")
	bob := s.login("bob")
	s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})
	s.authed(bob, "add_friend", map[string]any{"to_user": "alice"})
	bob.conn.Reset()

	reply := s.authed(alice, "remove_friend", map[string]any{"with_user": "bob"})

	s.Equal("removed_friend", reply["return"])
	s.Equal(map[string]any{"result": "removed", "with": "bob"}, reply["result"])

	updates := s.notifications(bob.conn, NotifyFriendsUpdate, EventFriendRemoved)
	s.Require().Len(updates, 1)
	s.Equal("alice", updates[0]["friend"])
	s.Empty(s.identity(alice).Friends)
	s.Empty(s.identity(bob).Friends)

	s.requireError(s.authed(alice, "remove_friend", map[string]any{"with_user": "bob"}), "conflict", 13)
}

func (s *RouterSuite) TestRemoveFriendWithdrawsRequest() {
	alice := s.login("alice")
	bob := s.login("bob")
	s.authed(alice, "add_friend", map[string]any{"to_user": "bob"})
	bob.conn.Reset()

	reply := s.authed(alice, "remove_friend", map[string]any{"with_user": "bob"})

	s.Equal(map[string]any{"result": "withdrawn", "with": "bob"}, reply["result"])
	s.Empty(s.notifications(bob.conn, NotifyFriendsUpdate, ""))
	s.Equal(map[string]any{"result": []any{}}, s.authed(alice, "get_outbound_requests", nil)["result"])
}
