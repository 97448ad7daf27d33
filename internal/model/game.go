package model

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// GameID uniquely identifies a game
type GameID string

// GameState represents the current phase of a game
type GameState string

const (
	GameStateCreated     GameState = "created"      // First round has not started yet
	GameStateRoundActive GameState = "round_active" // A round is being played
	GameStateRoundEnding GameState = "round_ending" // Intermission before the next round
	GameStateFinished    GameState = "finished"     // Final round done, stats persisted
)

// Outcome is the result of a single round
type Outcome string

const (
	OutcomeRed  Outcome = "red"
	OutcomeBlue Outcome = "blue"
	OutcomeDraw Outcome = "draw"
)

// DecideOutcome picks a round winner from the players each team has left standing
func DecideOutcome(redRemaining, blueRemaining int) Outcome {
	switch {
	case redRemaining == blueRemaining:
		return OutcomeDraw
	case redRemaining > blueRemaining:
		return OutcomeRed
	default:
		return OutcomeBlue
	}
}

// GamePlayer is a participant's membership in a game
type GamePlayer struct {
	Joined time.Time
	Team   Team
}

// TeamStats tracks a team within the current round
type TeamStats struct {
	RemainingPlayers int `json:"remaining_players"`
}

// PlayerStats tracks a participant across the whole game
type PlayerStats struct {
	Kills    int `json:"kills"`
	Deaths   int `json:"deaths"`
	Playtime int `json:"playtime"` // Minutes
}

// GameStats aggregates per-team and per-player figures
type GameStats struct {
	Teams    map[Team]*TeamStats
	Players  map[string]*PlayerStats
	Winnings []Outcome
}

// Game is a running match created from a lobby
type Game struct {
	ID          GameID
	LobbyID     LobbyID
	Host        string
	Round       int // 1-indexed
	TotalRounds int
	RoundLength int // Seconds

	RoundStartsAt time.Time
	RoundEndAt    time.Time

	RedTeam  []string
	BlueTeam []string
	Players  map[string]GamePlayer // Snapshot of the lobby at creation
	Stats    GameStats

	// Last reported transform per player
	LiveState map[string]json.RawMessage

	CreatedAt time.Time
}

// State derives the game's phase at the given instant
func (g *Game) State(now time.Time) GameState {
	switch {
	case g.Round > g.TotalRounds:
		return GameStateFinished
	case now.Before(g.RoundStartsAt) && g.Round == 1:
		return GameStateCreated
	case now.Before(g.RoundStartsAt):
		return GameStateRoundEnding
	default:
		return GameStateRoundActive
	}
}

// HasPlayer reports whether the username is a participant
func (g *Game) HasPlayer(username string) bool {
	_, ok := g.Players[username]
	return ok
}

// Participants returns every participant sorted by name
func (g *Game) Participants() []string {
	return slices.Sorted(maps.Keys(g.Players))
}

// TeamMembers returns the roster for a team
func (g *Game) TeamMembers(team Team) []string {
	switch team {
	case TeamRed:
		return g.RedTeam
	case TeamBlue:
		return g.BlueTeam
	}
	return nil
}

// Remaining returns the players a team has left this round
func (g *Game) Remaining(team Team) int {
	if ts, ok := g.Stats.Teams[team]; ok {
		return ts.RemainingPlayers
	}
	return 0
}

// ResetRemaining restores both teams to full strength
func (g *Game) ResetRemaining() {
	g.Stats.Teams[TeamRed].RemainingPlayers = len(g.RedTeam)
	g.Stats.Teams[TeamBlue].RemainingPlayers = len(g.BlueTeam)
}

// FinalWinners returns the team(s) with the most round wins; a tie yields both
func (g *Game) FinalWinners() []Team {
	var red, blue int
	for _, o := range g.Stats.Winnings {
		switch o {
		case OutcomeRed:
			red++
		case OutcomeBlue:
			blue++
		}
	}
	switch {
	case red > blue:
		return []Team{TeamRed}
	case blue > red:
		return []Team{TeamBlue}
	default:
		return []Team{TeamRed, TeamBlue}
	}
}

// Clone returns a deep copy of the game
func (g *Game) Clone() *Game {
	c := *g
	c.RedTeam = slices.Clone(g.RedTeam)
	c.BlueTeam = slices.Clone(g.BlueTeam)
	c.Players = maps.Clone(g.Players)
	c.Stats.Teams = make(map[Team]*TeamStats, len(g.Stats.Teams))
	for team, ts := range g.Stats.Teams {
		t := *ts
		c.Stats.Teams[team] = &t
	}
	c.Stats.Players = make(map[string]*PlayerStats, len(g.Stats.Players))
	for name, ps := range g.Stats.Players {
		p := *ps
		c.Stats.Players[name] = &p
	}
	c.Stats.Winnings = slices.Clone(g.Stats.Winnings)
	c.LiveState = maps.Clone(g.LiveState)
	return &c
}

// RoundSummary describes a completed round
type RoundSummary struct {
	GameID          GameID
	LobbyID         LobbyID
	Round           int // The round that just ended
	Winner          Outcome
	RedLeaderboard  []string
	BlueLeaderboard []string
	Participants    []string
	Finished        bool
	Results         map[string]GameResult // Set only when Finished
}
