package protocol

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/protocol/wireerr"
)

// Character event commands carried in broadcast_self data
const (
	characterMove  = "MOVE"
	characterInit  = "INIT"
	characterDeath = "DEATH"
)

// Relay payload keys
const (
	keyCommand = "COMMAND"
	keyKiller  = "BY"
	keyOwner   = "OWNER"
)

// sent is returned by handlers that already wrote their reply
type sent struct{}

type gameIsRunningArgs struct {
	Authentication string `json:"authentication"`
	NotifyOnFinish bool   `json:"notify_on_finish"`
}

func (r *Router) gameIsRunning(_ context.Context, c *call) (any, error) {
	var args gameIsRunningArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	notRunning := false
	identity, ok := r.registry.Identity(c.conn.ID())
	if !ok || args.Authentication == "" || identity.Token != args.Authentication || identity.LastGameID == "" {
		return &Reply{Status: &notRunning}, nil
	}
	g, err := r.games.GetGame(identity.LastGameID)
	if errors.Is(err, model.ErrGameNotFound) {
		return &Reply{Status: &notRunning}, nil
	}
	if err != nil {
		return nil, err
	}

	running := true
	c.conn.Send(Encode(&Reply{Return: "root_in_game", ID: c.req.ID, Status: &running}))

	n := notification(NotifyGameStarted)
	n.GameID = g.ID
	n.GameInfo = NewGameView(g, r.clock.Now())
	c.conn.Send(Encode(n))

	if args.NotifyOnFinish {
		r.registry.WatchFinish(c.conn.ID(), g.ID)
	}
	return sent{}, nil
}

func (r *Router) createGame(_ context.Context, c *call) (any, error) {
	var args lobbyArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	host := c.username()
	lobby, err := r.lobbies.StartGame(host, args.LobbyID)
	if err != nil {
		return nil, err
	}
	g, err := r.games.CreateGame(lobby)
	if err != nil {
		r.lobbies.ClearGameStart(lobby.ID)
		return nil, err
	}

	starting := notification(NotifyLobbyUpdate)
	starting.Event = EventGameStart
	starting.When = clock.Epoch(g.RoundStartsAt)
	r.notify(lobby.Usernames(), starting, "")

	participants := g.Participants()
	for _, p := range participants {
		r.registry.UpdateUser(p, func(identity *model.Identity) {
			identity.LastGameID = g.ID
		})
	}

	view := NewGameView(g, r.clock.Now())
	started := notification(NotifyGameStarted)
	started.GameID = g.ID
	started.GameInfo = view
	r.notify(participants, started, host)

	return gameResult{GameID: g.ID, GameInfo: view}, nil
}

type relayArgs struct {
	GameID model.GameID `json:"game_id"`
	Data   relayData    `json:"data"`
}

func (r *Router) bulletFired(_ context.Context, c *call) (any, error) {
	var args relayArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	username := c.username()
	recipients, err := r.games.Recipients(args.GameID, username)
	if err != nil {
		return nil, err
	}

	data := args.Data.without(keyCommand)
	owner, _ := json.Marshal(username)
	data[keyOwner] = owner

	n := notification(NotifyGameUpdate)
	n.Event = EventBullet
	n.Data = data
	r.notify(recipients, n, username)
	return nil, nil
}

func (r *Router) broadcastSelf(ctx context.Context, c *call) (any, error) {
	var args relayArgs
	if err := decodeKwargs(c.req.Kwargs, &args); err != nil {
		return nil, err
	}

	var cmd string
	if raw, ok := args.Data[keyCommand]; ok {
		_ = json.Unmarshal(raw, &cmd)
	}
	username := c.username()
	payload := args.Data.without(keyCommand)

	switch cmd {
	case characterMove:
		recipients, err := r.games.UpdateTransform(args.GameID, username, Encode(payload), true)
		if err != nil {
			return nil, err
		}
		n := notification(NotifyGameUpdate)
		n.Event = EventCharacter
		n.Owner = username
		n.Data = payload
		r.notify(recipients, n, username)

	case characterInit:
		if _, err := r.games.UpdateTransform(args.GameID, username, Encode(payload), false); err != nil {
			return nil, err
		}

	case characterDeath:
		var killer string
		if raw, ok := args.Data[keyKiller]; ok {
			_ = json.Unmarshal(raw, &killer)
		}
		summary, err := r.games.RecordDeath(ctx, args.GameID, username, killer)
		if err != nil {
			return nil, err
		}
		if summary != nil {
			r.broadcastRound(summary)
		}

	default:
		return nil, wireerr.Invalid("unknown character command")
	}
	return nil, nil
}

// broadcastRound tells every participant how a round ended and reopens the lobby once the game is over
func (r *Router) broadcastRound(summary *model.RoundSummary) {
	n := notification(NotifyGameUpdate)
	n.Event = EventNextCheck
	n.Data = roundData{Metadata: RoundMetadata{
		Won:             summary.Winner,
		Round:           summary.Round,
		RedLeaderboard:  summary.RedLeaderboard,
		BlueLeaderboard: summary.BlueLeaderboard,
		Finished:        summary.Finished,
	}}
	r.notify(summary.Participants, n, "")
	r.metrics.RecordRoundEnd(string(summary.Winner), summary.Finished)

	if summary.Finished {
		r.lobbies.ClearGameStart(summary.LobbyID)
	}
}
