package protocol

import (
	"errors"
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/services/otp"
)

func registration(code any) map[string]any {
	return map[string]any{
		"displayname": "Dave",
		"username":    "dave",
		"email":       "dave@example.com",
		"password":    "s3cret",
		"otp":         code,
	}
}

// get_user tests

func (s *RouterSuite) TestGetUserDict() {
	s.createAccount("alice")
	s.Require().NoError(s.storage.RecordGameResult(s.ctx, "alice", model.GameResult{Won: true, Kills: 4, Deaths: 1, Minutes: 5}))
	conn := s.connect()

	reply := s.call(conn, "get_user", map[string]any{"username": "alice"})

	s.Equal("userdata", reply["return"])
	s.Equal("dict", reply["ret_type"])
	s.Equal(map[string]any{
		"username":      "alice",
		"displayname":   "ALICE",
		"friends":       []any{},
		"total_minutes": float64(5),
		"games_played":  float64(1),
		"games_won":     float64(1),
		"total_kills":   float64(4),
		"total_deaths":  float64(1),
	}, reply["result"])
}

func (s *RouterSuite) TestGetUserList() {
	s.createAccount("alice")
	conn := s.connect()

	reply := s.call(conn, "get_user", map[string]any{"username": "alice", "ret_type": "list"})

	s.Equal("list", reply["ret_type"])
	s.Equal([]any{"alice", "ALICE", []any{}, float64(0), float64(0), float64(0), float64(0), float64(0)}, reply["result"])
}

func (s *RouterSuite) TestGetUserMissing() {
	conn := s.connect()

	reply := s.call(conn, "get_user", map[string]any{"username": "nobody"})

	s.Equal("NoneType", reply["ret_type"])
	s.Nil(reply["result"])
	s.Nil(reply["error"])
}

// login tests

func (s *RouterSuite) TestLoginBindsIdentity() {
	s.createAccount("alice")
	conn := s.connect()
	s.tokens.QueueString("tok-alice")

	reply := s.call(conn, "login", map[string]any{"username": "alice", "password": testPassword})

	s.Equal("login", reply["return"])
	result := reply["result"].(map[string]any)
	s.Equal(true, result["status"])
	s.Equal("tok-alice", result["authentication"])
	data := result["data"].(map[string]any)
	s.Equal("alice", data["username"])
	s.Equal("alice@example.com", data["email"])

	identity, ok := s.registry.Identity(conn.ID())
	s.Require().True(ok)
	s.Equal("alice", identity.Username)
	s.Equal("tok-alice", identity.Token)
}

func (s *RouterSuite) TestLoginFailure() {
	s.createAccount("alice")
	conn := s.connect()

	for _, kwargs := range []map[string]any{
		{"username": "alice", "password": "wrong"},
		{"username": "nobody", "password": testPassword},
		{"username": "alice"},
	} {
		reply := s.call(conn, "login", kwargs)
		s.Nil(reply["error"])
		s.Equal(map[string]any{"status": false, "authentication": nil, "data": map[string]any{}}, reply["result"])
	}
	_, ok := s.registry.Identity(conn.ID())
	s.False(ok)
}

// register tests

func (s *RouterSuite) TestRegisterSendsCodeThenCreatesAccount() {
	conn := s.connect()
	s.codeRandom.QueueIntn(4242)

	reply := s.call(conn, "register", registration(nil))

	s.Equal("register", reply["return"])
	s.Equal(NotifyRegisterOTP, reply["result"])

	pushed := s.notifications(conn, NotifyRegisterOTP, "")
	s.Require().Len(pushed, 1)
	s.Equal(clock.Epoch(s.clock.Now().Add(5*time.Minute)), pushed[0]["exp"])

	messages := s.mailer.Messages()
	s.Require().Len(messages, 1)
	s.Equal("dave@example.com", messages[0].To)
	s.Contains(messages[0].Body, "104242")

	s.tokens.QueueString("tok-dave")
	reply = s.call(conn, "register", registration("104242"))

	result := reply["result"].(map[string]any)
	s.Equal(true, result["status"])
	s.Equal("tok-dave", result["authentication"])
	s.Equal("Dave", result["data"].(map[string]any)["displayname"])

	identity, ok := s.registry.Identity(conn.ID())
	s.Require().True(ok)
	s.Equal("dave", identity.Username)

	_, err := s.storage.GetAccount(s.ctx, "dave")
	s.NoError(err)
}

func (s *RouterSuite) TestRegisterCodeSentWhenMailFails() {
	s.mailer.Err = errors.New("smtp down")
	conn := s.connect()
	s.codeRandom.QueueIntn(4242)

	reply := s.call(conn, "register", registration(nil))

	s.Nil(reply["error"])
	s.Equal(NotifyRegisterOTP, reply["result"])
	s.Len(s.notifications(conn, NotifyRegisterOTP, ""), 1)
	s.Equal(1, s.codes.Len(otp.KindRegister))

	s.tokens.QueueString("tok-dave")
	reply = s.call(conn, "register", registration("104242"))
	s.Equal(true, reply["result"].(map[string]any)["status"])
}

func (s *RouterSuite) TestPasswordCodeSentWhenMailFails() {
	s.createAccount("alice")
	s.mailer.Err = errors.New("smtp down")
	conn := s.connect()

	reply := s.call(conn, "send_fpwd_code", map[string]any{"username": "alice", "email": "alice@example.com"})

	s.Equal(map[string]any{"status": true}, reply["result"])
	s.Len(s.notifications(conn, NotifyPasswordOTP, ""), 1)
}

func (s *RouterSuite) TestRegisterRejectsWrongCode() {
	conn := s.connect()
	s.codeRandom.QueueIntn(4242)
	s.call(conn, "register", registration(nil))

	reply := s.call(conn, "register", registration(111111))

	s.requireError(reply, "validation", 2)
	_, err := s.storage.GetAccount(s.ctx, "dave")
	s.ErrorIs(err, model.ErrAccountNotFound)
}

func (s *RouterSuite) TestRegisterExpiredCode() {
	conn := s.connect()
	s.codeRandom.QueueIntn(4242)
	s.call(conn, "register", registration(nil))
	s.clock.Advance(6 * time.Minute)

	reply := s.call(conn, "register", registration(104242))

	s.requireError(reply, "validation", 5)
}

func (s *RouterSuite) TestRegisterUsernameTakenAndHeld() {
	s.createAccount("alice")
	conn := s.connect()

	reply := s.call(conn, "register", map[string]any{
		"displayname": "A", "username": "alice", "email": "a@example.com", "password": "pw",
	})
	s.requireError(reply, "conflict", 1)

	s.codeRandom.QueueIntn(1, 2)
	s.call(conn, "register", registration(nil))

	other := registration(nil)
	other["email"] = "someone-else@example.com"
	reply = s.call(s.connect(), "register", other)
	s.requireError(reply, "conflict", 4)
}

func (s *RouterSuite) TestRegisterMissingFields() {
	conn := s.connect()
	reply := s.call(conn, "register", map[string]any{"username": "dave"})
	s.requireError(reply, "validation", 10)
}

// password reset tests

func (s *RouterSuite) TestPasswordReset() {
	s.createAccount("alice")
	conn := s.connect()
	s.codeRandom.QueueIntn(777)

	reply := s.call(conn, "send_fpwd_code", map[string]any{"username": "alice", "email": "alice@example.com"})

	s.Equal("sent_fpwd_code", reply["return"])
	s.Equal(map[string]any{"status": true}, reply["result"])
	s.Len(s.notifications(conn, NotifyPasswordOTP, ""), 1)

	reply = s.call(conn, "update_password", map[string]any{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "new-password",
		"otp_code": 100777,
	})
	s.Equal("updated_password", reply["return"])
	s.Equal(map[string]any{"status": true}, reply["result"])

	s.tokens.QueueString("tok-alice")
	reply = s.call(conn, "login", map[string]any{"username": "alice", "password": "new-password"})
	s.Equal(true, reply["result"].(map[string]any)["status"])
}

func (s *RouterSuite) TestPasswordResetWrongEmail() {
	s.createAccount("alice")
	conn := s.connect()

	reply := s.call(conn, "send_fpwd_code", map[string]any{"username": "alice", "email": "mallory@example.com"})

	s.requireError(reply, "not_found", 9)
	s.Empty(s.mailer.Messages())
}
