package protocol

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/metrics"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/protocol/wireerr"
	"github.com/thefall/sessionserver/internal/services/auth"
	"github.com/thefall/sessionserver/internal/services/friends"
	"github.com/thefall/sessionserver/internal/services/game"
	"github.com/thefall/sessionserver/internal/services/lobby"
	"github.com/thefall/sessionserver/internal/services/otp"
	"github.com/thefall/sessionserver/internal/services/ratelimit"
	"github.com/thefall/sessionserver/internal/services/session"
	"github.com/thefall/sessionserver/internal/storage"
)

// Deps are the services the router dispatches to
type Deps struct {
	Registry *session.Registry
	Limiter  *ratelimit.Limiter
	Codes    *otp.Cache
	Auth     *auth.Service
	Friends  *friends.Service
	Lobbies  *lobby.Controller
	Games    *game.Controller
	Storage  storage.Storage
	Clock    clock.Clock
	Metrics  *metrics.Metrics // Optional
	Logger   *slog.Logger
}

// handlerFunc serves one command. A *Reply result is sent as-is once its id is
// filled in; any other result becomes Reply.Result.
type handlerFunc func(ctx context.Context, c *call) (any, error)

type command struct {
	reply     string // Return name on the reply
	auth      bool   // Requires root/from_user + authentication
	throttled bool   // Counted by the rate limiter
	silent    bool   // Replies only on error
	handle    handlerFunc
}

// call is the per-request state handed to a handler
type call struct {
	conn     session.Conn
	req      *Request
	identity *model.Identity // Set for authenticated commands
}

func (c *call) username() string {
	return c.identity.Username
}

// Router demultiplexes client frames onto the services and fans out notifications.
// It is the single owner of every shared registry reference.
type Router struct {
	registry *session.Registry
	limiter  *ratelimit.Limiter
	codes    *otp.Cache
	auth     *auth.Service
	friends  *friends.Service
	lobbies  *lobby.Controller
	games    *game.Controller
	storage  storage.Storage
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger

	commands map[string]command
}

// NewRouter creates a Router over the given services
func NewRouter(deps Deps) *Router {
	r := &Router{
		registry: deps.Registry,
		limiter:  deps.Limiter,
		codes:    deps.Codes,
		auth:     deps.Auth,
		friends:  deps.Friends,
		lobbies:  deps.Lobbies,
		games:    deps.Games,
		storage:  deps.Storage,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With(slog.String("component", "protocol")),
	}
	r.commands = map[string]command{
		"get_user":        {reply: "userdata", throttled: true, handle: r.getUser},
		"login":           {reply: "login", throttled: true, handle: r.login},
		"register":        {reply: "register", throttled: true, handle: r.register},
		"send_fpwd_code":  {reply: "sent_fpwd_code", throttled: true, handle: r.sendPasswordCode},
		"update_password": {reply: "updated_password", throttled: true, handle: r.updatePassword},

		"add_friend":            {reply: "added_friend", auth: true, throttled: true, handle: r.addFriend},
		"remove_friend":         {reply: "removed_friend", auth: true, throttled: true, handle: r.removeFriend},
		"get_outbound_requests": {reply: "outbound_requests", auth: true, throttled: true, handle: r.outboundRequests},
		"get_inbound_requests":  {reply: "inbound_requests", auth: true, throttled: true, handle: r.inboundRequests},

		"game_is_running":      {reply: "root_in_game", throttled: true, handle: r.gameIsRunning},
		"get_invites":          {reply: "invites", auth: true, throttled: true, handle: r.getInvites},
		"create_lobby":         {reply: "created_lobby", auth: true, throttled: true, handle: r.createLobby},
		"join_lobby":           {reply: "joined_lobby", auth: true, throttled: true, handle: r.joinLobby},
		"leave_lobby":          {reply: "left_lobby", auth: true, throttled: true, handle: r.leaveLobby},
		"invite":               {reply: "invited", auth: true, throttled: true, handle: r.invite},
		"join_team":            {reply: "team_joined", auth: true, throttled: true, handle: r.joinTeam},
		"update_game_settings": {reply: "updated_game_settings", auth: true, throttled: true, handle: r.updateGameSettings},
		"create_game":          {reply: "created_game", auth: true, throttled: true, handle: r.createGame},

		"bullet_fired":   {reply: "bullet_fired", auth: true, silent: true, handle: r.bulletFired},
		"broadcast_self": {reply: "broadcast_self", auth: true, silent: true, handle: r.broadcastSelf},
	}
	return r
}

// Connect registers a freshly accepted connection and greets it
func (r *Router) Connect(conn session.Conn) {
	r.registry.Add(conn)
	r.metrics.RecordConnection()
	conn.Send(connectFrame)
}

// HandleMessage processes one socket frame, which may carry several requests
func (r *Router) HandleMessage(ctx context.Context, conn session.Conn, data []byte) {
	for _, segment := range SplitFrames(data) {
		req, err := DecodeRequest(segment)
		if err != nil {
			r.logger.Debug("invalid frame",
				slog.String("conn_id", string(conn.ID())),
				slog.Any("error", err))
			conn.Send(Encode(wireerr.From(err)))
			continue
		}
		if req.ID == HeartbeatID {
			continue
		}
		r.dispatch(ctx, conn, req)
	}
}

func (r *Router) dispatch(ctx context.Context, conn session.Conn, req *Request) {
	start := time.Now()

	cmd, ok := r.commands[req.Command]
	if !ok {
		r.replyError(conn, req.Command, req.ID, model.ErrUnknownCommand)
		r.metrics.RecordCommand("unknown", metrics.StatusError, time.Since(start))
		return
	}

	if cmd.throttled {
		if err := r.limiter.Check(conn.ID()); err != nil {
			r.replyError(conn, cmd.reply, req.ID, err)
			r.metrics.RecordCommand(req.Command, metrics.StatusRateLimited, time.Since(start))
			return
		}
		if retryAfter, tipped := r.limiter.Throttle(conn.ID()); tipped {
			conn.Send(Encode(wireerr.RateLimited(retryAfter)))
		}
	}

	c := &call{conn: conn, req: req}
	if cmd.auth {
		identity, err := r.authenticate(c)
		if err != nil {
			r.replyError(conn, cmd.reply, req.ID, err)
			r.metrics.RecordCommand(req.Command, metrics.StatusError, time.Since(start))
			return
		}
		c.identity = identity
	}

	result, err := cmd.handle(ctx, c)
	if err != nil {
		we := wireerr.From(err)
		if we.IsInternal() {
			r.logger.Error("command failed",
				slog.String("command", req.Command),
				slog.String("conn_id", string(conn.ID())),
				slog.Any("error", err))
		}
		r.replyError(conn, cmd.reply, req.ID, we)
		r.metrics.RecordCommand(req.Command, metrics.StatusError, time.Since(start))
		return
	}
	r.metrics.RecordCommand(req.Command, metrics.StatusOK, time.Since(start))

	if _, ok := result.(sent); ok || cmd.silent {
		return
	}
	var reply *Reply
	if rp, ok := result.(*Reply); ok {
		reply = rp
		reply.ID = req.ID
	} else {
		reply = &Reply{Return: cmd.reply, ID: req.ID, Result: result}
	}
	conn.Send(Encode(reply))
}

type authArgs struct {
	Root           string `json:"root"`
	FromUser       string `json:"from_user"`
	Authentication string `json:"authentication"`
}

// authenticate checks the claimed user and token against the identity bound to the connection
func (r *Router) authenticate(c *call) (*model.Identity, error) {
	var args authArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, model.ErrAuthentication
	}
	username := args.Root
	if username == "" {
		username = args.FromUser
	}
	return r.registry.Authenticate(c.conn.ID(), username, args.Authentication)
}

func (r *Router) replyError(conn session.Conn, name string, id int64, err error) {
	conn.Send(Encode(&Reply{
		Return: name,
		ID:     id,
		Error:  true,
		Result: wireerr.From(err),
	}))
}

// Disconnect tears down everything tied to a closed connection: its lobby
// seat, its rate-limit counter and its identity. A live game id is persisted
// so the user can find the game again after logging back in.
func (r *Router) Disconnect(ctx context.Context, conn session.Conn) {
	r.limiter.Forget(conn.ID())
	identity, ok := r.registry.Remove(conn.ID())
	if !ok {
		return
	}

	r.releaseLobby(identity)

	if identity.LastGameID != "" && r.games.IsLive(identity.LastGameID) {
		if err := r.storage.SetLastGameID(ctx, identity.Username, identity.LastGameID); err != nil {
			r.logger.Warn("failed to persist last game",
				slog.String("username", identity.Username),
				slog.Any("error", err))
		}
	}

	r.logger.Info("session closed",
		slog.String("conn_id", string(conn.ID())),
		slog.String("username", identity.Username))
}

// rebind attaches a freshly authenticated identity to a connection. A session
// already bound there gives up its lobby seat first.
func (r *Router) rebind(id model.ConnID, identity *model.Identity) {
	if previous, ok := r.registry.Unbind(id); ok {
		r.releaseLobby(previous)
	}
	r.registry.Bind(id, identity)
}

// releaseLobby leaves the identity's lobby unless another connection of the user still sits in it
func (r *Router) releaseLobby(identity *model.Identity) {
	if identity.LobbyID == "" || r.stillInLobby(identity.Username, identity.LobbyID) {
		return
	}
	if err := r.departLobby(identity.Username, identity.LobbyID); err != nil &&
		!errors.Is(err, model.ErrLobbyNotFound) && !errors.Is(err, model.ErrNotInLobby) {
		r.logger.Warn("lobby cleanup failed",
			slog.String("username", identity.Username),
			slog.Any("error", err))
	}
}

// stillInLobby reports whether another live connection of the user sits in the lobby
func (r *Router) stillInLobby(username string, id model.LobbyID) bool {
	for _, conn := range r.registry.ConnsFor(username) {
		if other, ok := r.registry.Identity(conn.ID()); ok && other.LobbyID == id {
			return true
		}
	}
	return false
}

// notify pushes a notification to every connection of the listed users except exclude
func (r *Router) notify(usernames []string, n *Notification, exclude string) {
	r.registry.Broadcast(usernames, Encode(n), exclude)
}

// Connections returns the number of open connections
func (r *Router) Connections() int { return r.registry.Len() }

// Lobbies returns the number of active lobbies
func (r *Router) Lobbies() int { return r.lobbies.Len() }

// Games returns the number of running games
func (r *Router) Games() int { return r.games.Len() }
