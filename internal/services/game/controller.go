package game

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/thefall/sessionserver/internal/dependencies/clock"
	"github.com/thefall/sessionserver/internal/dependencies/random"
	"github.com/thefall/sessionserver/internal/model"
	"github.com/thefall/sessionserver/internal/storage"
)

// Leaderboard headers
const (
	RedLeaderboardHeader  = "RED TEAM"
	BlueLeaderboardHeader = "BLUE TEAM"
)

// Config holds game tunables
type Config struct {
	Intermission time.Duration // Gap before each round starts
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		Intermission: 15 * time.Second,
	}
}

// Controller runs every live game: round timing, elimination tracking and stat rollup
type Controller struct {
	mu    sync.RWMutex
	games map[model.GameID]*model.Game

	storage storage.Storage
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger
	printer *message.Printer
}

// NewController creates a game Controller
func NewController(storage storage.Storage, clock clock.Clock, cfg Config, logger *slog.Logger) *Controller {
	return &Controller{
		games:   make(map[model.GameID]*model.Game),
		storage: storage,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "game")),
		printer: message.NewPrinter(language.English),
	}
}

// CreateGame starts a game from a snapshot of the lobby
func (c *Controller) CreateGame(lobby *model.Lobby) (*model.Game, error) {
	if len(lobby.RedTeam) == 0 || len(lobby.BlueTeam) == 0 {
		return nil, model.ErrInsufficientPlayers
	}

	now := c.clock.Now()
	length := time.Duration(lobby.Settings.RoundDuration) * time.Second

	game := &model.Game{
		ID:            model.GameID(random.ULID(now)),
		LobbyID:       lobby.ID,
		Host:          lobby.Host,
		Round:         1,
		TotalRounds:   lobby.Settings.TotalRounds,
		RoundLength:   lobby.Settings.RoundDuration,
		RoundStartsAt: now.Add(c.cfg.Intermission),
		RoundEndAt:    now.Add(length + c.cfg.Intermission),
		RedTeam:       slices.Clone(lobby.RedTeam),
		BlueTeam:      slices.Clone(lobby.BlueTeam),
		Players:       make(map[string]model.GamePlayer, len(lobby.Players)),
		Stats: model.GameStats{
			Teams: map[model.Team]*model.TeamStats{
				model.TeamRed:  {},
				model.TeamBlue: {},
			},
			Players:  make(map[string]*model.PlayerStats, len(lobby.Players)),
			Winnings: []model.Outcome{},
		},
		LiveState: make(map[string]json.RawMessage),
		CreatedAt: now,
	}
	game.ResetRemaining()

	for username, joined := range lobby.Players {
		team, ok := lobby.TeamOf(username)
		if !ok {
			team = model.TeamSwitcher
		}
		game.Players[username] = model.GamePlayer{Joined: joined, Team: team}
		game.Stats.Players[username] = &model.PlayerStats{}
	}

	c.mu.Lock()
	c.games[game.ID] = game
	c.mu.Unlock()

	c.logger.Info("game created",
		slog.String("game_id", string(game.ID)),
		slog.String("lobby_id", string(lobby.ID)),
		slog.Int("players", len(game.Players)),
		slog.Int("total_rounds", game.TotalRounds))

	return game.Clone(), nil
}

// GetGame returns a snapshot of a live game
func (c *Controller) GetGame(id model.GameID) (*model.Game, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	game, ok := c.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	return game.Clone(), nil
}

// IsLive reports whether the game still exists
func (c *Controller) IsLive(id model.GameID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.games[id]
	return ok
}

// Len returns the number of live games
func (c *Controller) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.games)
}

// UpdateTransform stores a player's last reported transform. When broadcast is
// set it returns every other participant so the caller can relay the move.
func (c *Controller) UpdateTransform(id model.GameID, username string, data json.RawMessage, broadcast bool) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	game, err := c.participantGameLocked(id, username)
	if err != nil {
		return nil, err
	}
	game.LiveState[username] = data
	if !broadcast {
		return nil, nil
	}
	return others(game, username), nil
}

// Recipients returns every participant except the given one
func (c *Controller) Recipients(id model.GameID, username string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	game, err := c.participantGameLocked(id, username)
	if err != nil {
		return nil, err
	}
	return others(game, username), nil
}

// RecordDeath credits the killer, debits the victim's team and ends the round
// immediately when that team has nobody left. The summary is nil unless the round ended.
func (c *Controller) RecordDeath(ctx context.Context, id model.GameID, victim, killer string) (*model.RoundSummary, error) {
	c.mu.Lock()

	game, err := c.participantGameLocked(id, victim)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	game.Stats.Players[victim].Deaths++
	if ks, ok := game.Stats.Players[killer]; ok && killer != victim {
		ks.Kills++
	}

	var summary *model.RoundSummary
	team := game.Players[victim].Team
	if ts, ok := game.Stats.Teams[team]; ok && ts.RemainingPlayers > 0 {
		ts.RemainingPlayers--
		if ts.RemainingPlayers == 0 {
			summary = c.endRoundLocked(game, c.clock.Now())
		}
	}
	c.mu.Unlock()

	if summary != nil && summary.Finished {
		c.persist(ctx, summary)
	}
	return summary, nil
}

// SweepRounds ends every round whose timer has run out
func (c *Controller) SweepRounds(ctx context.Context) []*model.RoundSummary {
	now := c.clock.Now()

	c.mu.Lock()
	var summaries []*model.RoundSummary
	for _, id := range slices.Sorted(maps.Keys(c.games)) {
		game := c.games[id]
		if !now.Before(game.RoundEndAt) {
			summaries = append(summaries, c.endRoundLocked(game, now))
		}
	}
	c.mu.Unlock()

	for _, summary := range summaries {
		if summary.Finished {
			c.persist(ctx, summary)
		}
	}
	return summaries
}

func (c *Controller) endRoundLocked(game *model.Game, now time.Time) *model.RoundSummary {
	winner := model.DecideOutcome(game.Remaining(model.TeamRed), game.Remaining(model.TeamBlue))
	game.Stats.Winnings = append(game.Stats.Winnings, winner)

	length := time.Duration(game.RoundLength) * time.Second
	game.RoundStartsAt = now.Add(c.cfg.Intermission)
	game.RoundEndAt = now.Add(length + c.cfg.Intermission)
	game.ResetRemaining()

	ended := game.Round
	game.Round++

	for _, ps := range game.Stats.Players {
		ps.Playtime += game.RoundLength / 60
	}

	red, blue := c.leaderboards(game)
	summary := &model.RoundSummary{
		GameID:          game.ID,
		LobbyID:         game.LobbyID,
		Round:           ended,
		Winner:          winner,
		RedLeaderboard:  red,
		BlueLeaderboard: blue,
		Participants:    game.Participants(),
	}

	c.logger.Info("round ended",
		slog.String("game_id", string(game.ID)),
		slog.Int("round", ended),
		slog.String("winner", string(winner)))

	if game.Round > game.TotalRounds {
		summary.Finished = true
		summary.Results = results(game)
		delete(c.games, game.ID)
		c.logger.Info("game finished", slog.String("game_id", string(game.ID)))
	}
	return summary
}

// leaderboards lists each team's players by kills, highest first
func (c *Controller) leaderboards(game *model.Game) (red, blue []string) {
	red = []string{RedLeaderboardHeader}
	blue = []string{BlueLeaderboardHeader}

	names := slices.SortedFunc(maps.Keys(game.Stats.Players), func(a, b string) int {
		if n := cmp.Compare(game.Stats.Players[b].Kills, game.Stats.Players[a].Kills); n != 0 {
			return n
		}
		return cmp.Compare(a, b)
	})

	for _, name := range names {
		ps := game.Stats.Players[name]
		switch game.Players[name].Team {
		case model.TeamRed:
			red = append(red, c.leaderboardLine(slices.Index(game.RedTeam, name)+1, name, ps))
		case model.TeamBlue:
			blue = append(blue, c.leaderboardLine(slices.Index(game.BlueTeam, name)+1, name, ps))
		}
	}
	return red, blue
}

// leaderboardLine renders "[i] name: (kills)k (deaths)d" with grouped kill counts
func (c *Controller) leaderboardLine(index int, name string, ps *model.PlayerStats) string {
	return c.printer.Sprintf("[%d] %s: (%d)k (%s)d", index, name, ps.Kills, strconv.Itoa(ps.Deaths))
}

func results(game *model.Game) map[string]model.GameResult {
	winners := game.FinalWinners()
	out := make(map[string]model.GameResult, len(game.Players))
	for name, player := range game.Players {
		ps := game.Stats.Players[name]
		out[name] = model.GameResult{
			Won:     slices.Contains(winners, player.Team),
			Kills:   ps.Kills,
			Deaths:  ps.Deaths,
			Minutes: ps.Playtime,
		}
	}
	return out
}

// persist writes a finished game's results; failures are logged per player
func (c *Controller) persist(ctx context.Context, summary *model.RoundSummary) {
	for _, name := range slices.Sorted(maps.Keys(summary.Results)) {
		if err := c.storage.RecordGameResult(ctx, name, summary.Results[name]); err != nil {
			c.logger.Error("failed to record game result",
				slog.String("game_id", string(summary.GameID)),
				slog.String("username", name),
				slog.Any("error", err))
		}
	}
}

func (c *Controller) participantGameLocked(id model.GameID, username string) (*model.Game, error) {
	game, ok := c.games[id]
	if !ok {
		return nil, model.ErrGameNotFound
	}
	if !game.HasPlayer(username) {
		return nil, model.ErrNotInGame
	}
	return game, nil
}

func others(game *model.Game, username string) []string {
	return slices.DeleteFunc(game.Participants(), func(u string) bool { return u == username })
}
