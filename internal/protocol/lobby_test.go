package protocol

import (
	"strconv"

	"github.com/thefall/sessionserver/internal/model"
)

// createLobby creates a lobby as p and returns its id
func (s *RouterSuite) createLobby(p *player) model.LobbyID {
	s.lobbyRandom.QueueIntn(s.lobbies.Len() + 1)
	reply := s.authed(p, "create_lobby", nil)
	s.Require().Nil(reply["error"], "create_lobby failed: %v", reply)
	result := reply["result"].(map[string]any)
	return model.LobbyID(result["lobby_id"].(string))
}

func (s *RouterSuite) inviteCode(id model.LobbyID) int {
	lobby, err := s.lobbies.GetLobby(id)
	s.Require().NoError(err)
	return lobby.InviteCode
}

func (s *RouterSuite) joinLobby(p *player, id model.LobbyID) map[string]any {
	reply := s.authed(p, "join_lobby", map[string]any{"invite_code": s.inviteCode(id)})
	s.Require().Nil(reply["error"], "join_lobby failed: %v", reply)
	return reply
}

func (s *RouterSuite) TestCreateLobby() {
	alice := s.login("alice")

	s.lobbyRandom.QueueIntn(4321)
	reply := s.authed(alice, "create_lobby", nil)

	s.Equal("created_lobby", reply["return"])
	result := reply["result"].(map[string]any)
	lobbyID := model.LobbyID(result["lobby_id"].(string))
	s.NotEmpty(lobbyID)

	view := result["lobby"].(map[string]any)
	s.Equal("alice", view["host"])
	s.Equal(float64(104321), view["invite_code"])
	s.Equal([]any{"alice"}, view["switcher"])
	s.Equal([]any{}, view["red_team"])
	s.Nil(view["game_starting_at"])
	s.Equal(map[string]any{"total_rounds": float64(3), "round_duration": float64(150)}, view["game_settings"])

	s.Equal(lobbyID, s.identity(alice).LobbyID)
}

func (s *RouterSuite) TestCreateLobbyLeavesPreviousLobby() {
	alice := s.login("alice")
	first := s.createLobby(alice)
	second := s.createLobby(alice)

	_, err := s.lobbies.GetLobby(first)
	s.ErrorIs(err, model.ErrLobbyNotFound)
	s.Equal(second, s.identity(alice).LobbyID)
}

func (s *RouterSuite) TestJoinLobbyNotifiesExistingMembers() {
	alice := s.login("alice")
	bob := s.login("bob")
	carol := s.login("carol")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)
	alice.conn.Reset()
	bob.conn.Reset()

	reply := s.joinLobby(carol, lobbyID)

	s.Equal("joined_lobby", reply["return"])
	result := reply["result"].(map[string]any)
	s.Equal(string(lobbyID), result["lobby_id"])
	players := result["lobby"].(map[string]any)["players"].(map[string]any)
	s.Len(players, 3)

	for _, p := range []*player{alice, bob} {
		joins := s.notifications(p.conn, NotifyLobbyUpdate, EventJoin)
		s.Require().Len(joins, 1)
		s.Equal("carol", joins[0]["member"])
	}
	s.Empty(s.notifications(carol.conn, NotifyLobbyUpdate, EventJoin))
	s.Equal(lobbyID, s.identity(carol).LobbyID)
}

func (s *RouterSuite) TestJoinLobbyErrors() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)

	reply := s.authed(bob, "join_lobby", map[string]any{"invite_code": 999999})
	s.requireError(reply, "not_found", 15)

	reply = s.authed(alice, "join_lobby", map[string]any{"invite_code": s.inviteCode(lobbyID)})
	s.requireError(reply, "conflict", 17)
}

func (s *RouterSuite) TestJoinLobbyAcceptsStringCode() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)

	code := s.inviteCode(lobbyID)
	reply := s.authed(bob, "join_lobby", map[string]any{"invite_code": strconv.Itoa(code)})
	s.Nil(reply["error"])
}

func (s *RouterSuite) TestLeaveLobby() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)
	alice.conn.Reset()

	reply := s.authed(bob, "leave_lobby", map[string]any{"lobby_id": lobbyID})

	s.Equal("left_lobby", reply["return"])
	s.Equal(leftLobbyResult, reply["result"])
	s.Empty(s.identity(bob).LobbyID)

	left := s.notifications(alice.conn, NotifyLobbyUpdate, EventLeave)
	s.Require().Len(left, 1)
	s.Equal("bob", left[0]["member"])
	s.Equal("alice", left[0]["lobby"].(map[string]any)["host"])
}

func (s *RouterSuite) TestLeaveLobbyIsIdempotent() {
	alice := s.login("alice")
	lobbyID := s.createLobby(alice)

	s.Equal(leftLobbyResult, s.authed(alice, "leave_lobby", map[string]any{"lobby_id": lobbyID})["result"])
	s.Equal(0, s.lobbies.Len())

	reply := s.authed(alice, "leave_lobby", map[string]any{"lobby_id": lobbyID})
	s.Nil(reply["error"])
	s.Equal(leftLobbyResult, reply["result"])
}

func (s *RouterSuite) TestInviteAndGetInvites() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)

	reply := s.authed(alice, "invite", map[string]any{"user": "bob", "lobby_id": lobbyID})
	s.Equal("invited", reply["return"])
	s.Equal(map[string]any{"invited": "bob"}, reply["result"])

	reply = s.authed(bob, "get_invites", nil)
	s.Equal("invites", reply["return"])
	s.Equal(map[string]any{"alice": float64(s.inviteCode(lobbyID))}, reply["result"])

	reply = s.authed(alice, "invite", map[string]any{"user": "bob", "lobby_id": lobbyID})
	s.requireError(reply, "conflict", 18)

	reply = s.authed(alice, "invite", map[string]any{"lobby_id": lobbyID})
	s.requireError(reply, "validation", 27)
}

func (s *RouterSuite) TestJoinTeamBroadcasts() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)
	alice.conn.Reset()

	reply := s.authed(bob, "join_team", map[string]any{"lobby_id": lobbyID, "team": "blue"})

	s.Equal("team_joined", reply["return"])
	s.Equal(map[string]any{"status": true}, reply["result"])

	updates := s.notifications(alice.conn, NotifyLobbyUpdate, EventTeamUpdate)
	s.Require().Len(updates, 1)
	s.Equal("blue", updates[0]["team"])
	s.Equal("bob", updates[0]["member"])
	s.Empty(s.notifications(bob.conn, NotifyLobbyUpdate, EventTeamUpdate))

	lobby, err := s.lobbies.GetLobby(lobbyID)
	s.Require().NoError(err)
	s.Equal([]string{"bob"}, lobby.BlueTeam)
}

func (s *RouterSuite) TestJoinTeamNotInLobby() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)

	reply := s.authed(bob, "join_team", map[string]any{"lobby_id": lobbyID, "team": "red"})
	s.requireError(reply, "not_found", 19)
}

func (s *RouterSuite) TestUpdateGameSettings() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)
	bob.conn.Reset()

	settings := map[string]any{"total_rounds": 5, "round_duration": 120}
	reply := s.authed(alice, "update_game_settings", map[string]any{"lobby_id": lobbyID, "settings_dict": settings})

	s.Equal("updated_game_settings", reply["return"])
	s.Equal(map[string]any{"status": true}, reply["result"])

	updates := s.notifications(bob.conn, NotifyLobbyUpdate, EventSettingsUpdate)
	s.Require().Len(updates, 1)
	s.Equal(map[string]any{"total_rounds": float64(5), "round_duration": float64(120)}, updates[0]["settings_dict"])

	reply = s.authed(alice, "update_game_settings", map[string]any{"lobby_id": lobbyID, "settings_dict": settings})
	s.Nil(reply["error"])
	s.Equal(false, reply["result"].(map[string]any)["status"])
}

func (s *RouterSuite) TestUpdateGameSettingsErrors() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)

	reply := s.authed(bob, "update_game_settings", map[string]any{
		"lobby_id":      lobbyID,
		"settings_dict": map[string]any{"total_rounds": 5, "round_duration": 120},
	})
	s.requireError(reply, "validation", 20)

	reply = s.authed(alice, "update_game_settings", map[string]any{
		"lobby_id":      lobbyID,
		"settings_dict": map[string]any{"total_rounds": 25, "round_duration": 120},
	})
	s.requireError(reply, "validation", 21)

	reply = s.authed(alice, "update_game_settings", map[string]any{
		"lobby_id":      lobbyID,
		"settings_dict": map[string]any{"total_rounds": "five", "round_duration": 120},
	})
	s.requireError(reply, "validation", 27)
	s.Equal("Setting values should be integers", reply["result"].(map[string]any)["message"])
}
