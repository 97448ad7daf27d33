package protocol

import (
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/game"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/services/ratelimit"
)

// setUpLobby puts alice on red and bob on blue in alice's lobby
func (s *RouterSuite) setUpLobby() (alice, bob *player, lobbyID model.LobbyID) {
	alice = s.login("alice")
	bob = s.login("bob")
	lobbyID = s.createLobby(alice)
	s.joinLobby(bob, lobbyID)
	s.authed(alice, "join_team", map[string]any{"lobby_id": lobbyID, "team": "red"})
	s.authed(bob, "join_team", map[string]any{"lobby_id": lobbyID, "team": "blue"})
	return alice, bob, lobbyID
}

// startGame creates a one-on-one game; any settings are applied first
func (s *RouterSuite) startGame(settings ...map[string]any) (alice, bob *player, gameID model.GameID) {
	alice, bob, lobbyID := s.setUpLobby()
	for _, dict := range settings {
		reply := s.authed(alice, "update_game_settings", map[string]any{"lobby_id": lobbyID, "settings_dict": dict})
		s.Require().Nil(reply["error"])
	}

	reply := s.authed(alice, "create_game", map[string]any{"lobby_id": lobbyID})
	s.Require().Nil(reply["error"], "create_game failed: %v", reply)
	gameID = model.GameID(reply["result"].(map[string]any)["game_id"].(string))
	alice.conn.Reset()
	bob.conn.Reset()
	return alice, bob, gameID
}

func (s *RouterSuite) relay(p *player, command string, gameID model.GameID, data map[string]any) {
	s.send(p.conn, command, map[string]any{
		"root":           p.username,
		"authentication": p.token,
		"game_id":        gameID,
		"data":           data,
	})
}

func (s *RouterSuite) roundMetadata(frame map[string]any) RoundMetadata {
	var data roundData
	decodeInto(frame["data"], &data)
	return data.Metadata
}

// create_game tests

func (s *RouterSuite) TestCreateGame() {
	alice, bob, lobbyID := s.setUpLobby()
	alice.conn.Reset()
	bob.conn.Reset()

	reply := s.authed(alice, "create_game", map[string]any{"lobby_id": lobbyID})

	s.Equal("created_game", reply["return"])
	result := reply["result"].(map[string]any)
	gameID := model.GameID(result["game_id"].(string))
	s.NotEmpty(gameID)

	info := result["game_info"].(map[string]any)
	s.Equal("alice", info["host"])
	s.Equal(float64(1), info["round"])
	s.Equal(float64(3), info["total_rounds"])
	s.Equal([]any{"alice"}, info["red_team"])
	s.Equal([]any{"bob"}, info["blue_team"])
	s.Equal(string(model.GameStateCreated), info["state"])

	when := clock.Epoch(s.clock.Now().Add(game.DefaultConfig().Intermission))
	for _, p := range []*player{alice, bob} {
		starting := s.notifications(p.conn, NotifyLobbyUpdate, EventGameStart)
		s.Require().Len(starting, 1)
		s.Equal(when, starting[0]["when"])
		s.Equal(gameID, s.identity(p).LastGameID)
	}

	started := s.notifications(bob.conn, NotifyGameStarted, "")
	s.Require().Len(started, 1)
	s.Equal(string(gameID), started[0]["game_id"])
	s.Empty(s.notifications(alice.conn, NotifyGameStarted, ""))

	lobby, err := s.lobbies.GetLobby(lobbyID)
	s.Require().NoError(err)
	s.NotNil(lobby.GameStartingAt)
	s.Equal(1, s.router.Games())
}

func (s *RouterSuite) TestCreateGameErrors() {
	alice := s.login("alice")
	bob := s.login("bob")
	lobbyID := s.createLobby(alice)
	s.joinLobby(bob, lobbyID)

	reply := s.authed(alice, "create_game", map[string]any{"lobby_id": lobbyID})
	s.requireError(reply, "validation", 23)

	s.authed(alice, "join_team", map[string]any{"lobby_id": lobbyID, "team": "red"})
	s.authed(bob, "join_team", map[string]any{"lobby_id": lobbyID, "team": "blue"})

	reply = s.authed(bob, "create_game", map[string]any{"lobby_id": lobbyID})
	s.requireError(reply, "validation", 20)

	s.Nil(s.authed(alice, "create_game", map[string]any{"lobby_id": lobbyID})["error"])
	reply = s.authed(alice, "create_game", map[string]any{"lobby_id": lobbyID})
	s.requireError(reply, "conflict", 22)
	s.Equal(1, s.router.Games())
}

func (s *RouterSuite) TestLobbyClosedToJoinsDuringGame() {
	_, _, gameID := s.startGame()
	g, err := s.games.GetGame(gameID)
	s.Require().NoError(err)

	carol := s.login("carol")
	reply := s.authed(carol, "join_lobby", map[string]any{"invite_code": s.inviteCode(g.LobbyID)})
	s.requireError(reply, "not_found", 15)
}

// relay tests

func (s *RouterSuite) TestMoveIsRelayedToOthers() {
	alice, bob, gameID := s.startGame()

	s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "MOVE", "x": 1.5, "y": -2})

	s.Empty(bob.conn.Messages())
	moves := s.notifications(alice.conn, NotifyGameUpdate, EventCharacter)
	s.Require().Len(moves, 1)
	s.Equal("bob", moves[0]["owner"])
	s.Equal(map[string]any{"x": 1.5, "y": float64(-2)}, moves[0]["data"])

	g, err := s.games.GetGame(gameID)
	s.Require().NoError(err)
	s.JSONEq(`{"x":1.5,"y":-2}`, string(g.LiveState["bob"]))
}

func (s *RouterSuite) TestInitStoresWithoutRelay() {
	alice, bob, gameID := s.startGame()

	s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "INIT", "hp": 100})

	s.Empty(alice.conn.Messages())
	s.Empty(bob.conn.Messages())
	g, err := s.games.GetGame(gameID)
	s.Require().NoError(err)
	s.JSONEq(`{"hp":100}`, string(g.LiveState["bob"]))
}

func (s *RouterSuite) TestBulletIsRelayedWithOwner() {
	alice, bob, gameID := s.startGame()

	s.relay(alice, "bullet_fired", gameID, map[string]any{"COMMAND": "FIRE", "angle": 90})

	s.Empty(alice.conn.Messages())
	bullets := s.notifications(bob.conn, NotifyGameUpdate, EventBullet)
	s.Require().Len(bullets, 1)
	s.Equal(map[string]any{"angle": float64(90), "OWNER": "alice"}, bullets[0]["data"])
}

func (s *RouterSuite) TestRelayErrors() {
	_, bob, gameID := s.startGame()
	carol := s.login("carol")

	s.relay(bob, "broadcast_self", "missing", map[string]any{"COMMAND": "MOVE"})
	s.requireError(s.reply(bob.conn, s.nextID), "not_found", 24)

	s.relay(carol, "bullet_fired", gameID, map[string]any{})
	s.requireError(s.reply(carol.conn, s.nextID), "not_found", 25)

	s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "DANCE"})
	s.requireError(s.reply(bob.conn, s.nextID), "validation", 27)
}

func (s *RouterSuite) TestRelaysAreNotThrottled() {
	alice, bob, gameID := s.startGame()

	for i := 0; i < 200; i++ {
		s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "MOVE", "i": i})
	}

	s.Len(s.notifications(alice.conn, NotifyGameUpdate, EventCharacter), 200)
	s.False(s.limiter.IsLimited(bob.conn.ID()))
}

// round tests

func (s *RouterSuite) TestDeathEndsRound() {
	alice, bob, gameID := s.startGame()

	s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "DEATH", "BY": "alice"})

	for _, p := range []*player{alice, bob} {
		checks := s.notifications(p.conn, NotifyGameUpdate, EventNextCheck)
		s.Require().Len(checks, 1)
		s.Equal(RoundMetadata{
			Won:             model.OutcomeRed,
			Round:           1,
			RedLeaderboard:  []string{"RED TEAM", "[1] alice: (1)k (0)d"},
			BlueLeaderboard: []string{"BLUE TEAM", "[1] bob: (0)k (1)d"},
			Finished:        false,
		}, s.roundMetadata(checks[0]))
	}

	g, err := s.games.GetGame(gameID)
	s.Require().NoError(err)
	s.Equal(2, g.Round)
}

func (s *RouterSuite) TestFinalDeathFinishesGame() {
	alice, bob, gameID := s.startGame(map[string]any{"total_rounds": 1, "round_duration": 60})
	g, err := s.games.GetGame(gameID)
	s.Require().NoError(err)

	s.relay(bob, "broadcast_self", gameID, map[string]any{"COMMAND": "DEATH", "BY": "alice"})

	checks := s.notifications(alice.conn, NotifyGameUpdate, EventNextCheck)
	s.Require().Len(checks, 1)
	s.True(s.roundMetadata(checks[0]).Finished)
	s.False(s.games.IsLive(gameID))

	lobby, err := s.lobbies.GetLobby(g.LobbyID)
	s.Require().NoError(err)
	s.Nil(lobby.GameStartingAt)

	stats, err := s.storage.GetStats(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(1, stats.GamesWon)
	s.Equal(1, stats.TotalKills)

	stats, err = s.storage.GetStats(s.ctx, "bob")
	s.Require().NoError(err)
	s.Equal(0, stats.GamesWon)
	s.Equal(1, stats.TotalDeaths)
}

func (s *RouterSuite) TestSweepRoundsEndsExpiredRounds() {
	alice, _, gameID := s.startGame()

	s.router.SweepRounds(s.ctx)
	s.Empty(alice.conn.Messages())

	s.clock.Advance(165 * time.Second)
	s.router.SweepRounds(s.ctx)

	checks := s.notifications(alice.conn, NotifyGameUpdate, EventNextCheck)
	s.Require().Len(checks, 1)
	meta := s.roundMetadata(checks[0])
	s.Equal(model.OutcomeDraw, meta.Won)
	s.Equal(1, meta.Round)
	s.True(s.games.IsLive(gameID))
}

// game_is_running tests

func (s *RouterSuite) TestGameIsRunning() {
	alice, bob, gameID := s.startGame(map[string]any{"total_rounds": 1, "round_duration": 60})

	id := s.send(bob.conn, "game_is_running", map[string]any{"authentication": bob.token, "notify_on_finish": true})

	frames := bob.conn.Frames()
	s.Require().Len(frames, 2)
	s.Equal(map[string]any{"return": "root_in_game", "id": float64(id), "status": true}, frames[0])
	s.Equal(NotifyGameStarted, frames[1]["notify"])
	s.Equal(string(gameID), frames[1]["game_id"])

	s.router.NotifyFinishedGames(s.ctx)
	s.Empty(s.notifications(bob.conn, NotifyGameFinish, ""))

	s.relay(alice, "broadcast_self", gameID, map[string]any{"COMMAND": "DEATH", "BY": "bob"})
	s.router.NotifyFinishedGames(s.ctx)

	finished := s.notifications(bob.conn, NotifyGameFinish, "")
	s.Require().Len(finished, 1)
	s.Equal(string(gameID), finished[0]["game_id"])
	s.Empty(s.registry.Watches())
}

func (s *RouterSuite) TestGameIsNotRunning() {
	conn := s.connect()
	reply := s.call(conn, "game_is_running", map[string]any{"authentication": "nope"})
	s.Equal(map[string]any{"id": reply["id"], "status": false}, reply)

	p := s.login("alice")
	reply = s.call(p.conn, "game_is_running", map[string]any{"authentication": p.token})
	s.Equal(false, reply["status"])
}

// sweep tests

func (s *RouterSuite) TestSweepCaches() {
	s.createAccount("alice")
	conn := s.connect()
	s.call(conn, "send_fpwd_code", map[string]any{"username": "alice", "email": "alice@example.com"})
	s.Equal(1, s.codes.Len(otp.KindPasswordReset))

	noisy := s.connect()
	for i := 0; i < ratelimit.DefaultConfig().Limit; i++ {
		s.send(noisy, "get_user", map[string]any{"username": "nobody"})
	}
	s.True(s.limiter.IsLimited(noisy.ID()))

	s.clock.Advance(2 * time.Hour)
	s.router.SweepCaches(s.ctx)

	s.Equal(0, s.codes.Len(otp.KindPasswordReset))
	_, tracked := s.limiter.Entry(noisy.ID())
	s.False(tracked)
	_, tracked = s.limiter.Entry(conn.ID())
	s.True(tracked)
}
