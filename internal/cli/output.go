package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/thefall/sessionserver/internal/api/response"
	"github.com/thefall/sessionserver/internal/protocol"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(o.errW, string(data))
	} else {
		fmt.Fprintf(o.errW, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

// PrintEvent outputs one pushed frame; JSON output is one line per frame
func (o *Output) PrintEvent(frame Frame) {
	if o.format == "json" {
		data, _ := json.Marshal(frame)
		fmt.Fprintln(o.w, string(data))
		return
	}

	name := frame.Notify()
	if name == "" {
		if kind, ok := frame["error"].(string); ok {
			name = kind
		}
	}
	if event, ok := frame["event"].(string); ok {
		name += " " + event
	}

	rest := maps.Clone(frame)
	for _, k := range []string{"id", "notify", "event"} {
		delete(rest, k)
	}
	data, _ := json.Marshal(rest)
	display := string(data)
	if len(display) > 120 {
		display = display[:120] + "..."
	}
	fmt.Fprintf(o.w, "[%s] %s: %s\n", time.Now().Format("15:04:05"), name, display)
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case protocol.PublicUser:
		o.printUser(v)
	case LoginResult:
		o.printLogin(v)
	case LobbyResult:
		o.printLobby(v)
	case Invites:
		o.printInvites(v)
	case FriendResult:
		o.printFriendResult(v)
	case RequestList:
		o.printRequests(v)
	case GameStatus:
		o.printGameStatus(v)
	case HealthResult:
		o.printHealthResult(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// LoginResult is the reply to login and to a completed registration
type LoginResult struct {
	Status         bool                 `json:"status"`
	Authentication *string              `json:"authentication"`
	Data           protocol.AccountData `json:"data"`
}

// LobbyResult is the reply to create_lobby and join_lobby
type LobbyResult struct {
	LobbyID string             `json:"lobby_id"`
	Lobby   protocol.LobbyView `json:"lobby"`
}

// Invites maps each inviter to the invite code they sent
type Invites map[string]int

// FriendResult is the reply to add_friend and remove_friend
type FriendResult struct {
	Result string `json:"result"`
	With   string `json:"with,omitempty"`
}

// RequestList is a list of pending friend requests in one direction
type RequestList struct {
	Direction string   `json:"direction"`
	Users     []string `json:"result"`
}

// GameStatus is the outcome of game_is_running
type GameStatus struct {
	Running bool               `json:"running"`
	GameID  string             `json:"game_id,omitempty"`
	Game    *protocol.GameView `json:"game_info,omitempty"`
}

// HealthResult response type
type HealthResult = response.Health

func (o *Output) printUser(u protocol.PublicUser) {
	fmt.Fprintf(o.w, "User: %s (%s)\n", u.DisplayName, u.Username)
	if len(u.Friends) > 0 {
		fmt.Fprintf(o.w, "Friends: %s\n", strings.Join(u.Friends, ", "))
	}
	fmt.Fprintf(o.w, "Games: %d played, %d won\n", u.GamesPlayed, u.GamesWon)
	fmt.Fprintf(o.w, "Kills: %d  Deaths: %d\n", u.TotalKills, u.TotalDeaths)
	fmt.Fprintf(o.w, "Playtime: %d minutes\n", u.TotalMinutes)
}

func (o *Output) printLogin(l LoginResult) {
	o.printUser(l.Data.PublicUser)
	fmt.Fprintf(o.w, "Email: %s\n", l.Data.Email)
	if l.Data.LastGameID != "" {
		fmt.Fprintf(o.w, "Last Game: %s\n", l.Data.LastGameID)
	}
}

func (o *Output) printLobby(r LobbyResult) {
	l := r.Lobby
	fmt.Fprintf(o.w, "Lobby: %s\n", r.LobbyID)
	fmt.Fprintf(o.w, "Invite Code: %d\n", l.InviteCode)
	fmt.Fprintf(o.w, "Host: %s\n", l.Host)
	fmt.Fprintf(o.w, "Settings: %d rounds of %ds\n", l.GameSettings.TotalRounds, l.GameSettings.RoundDuration)
	fmt.Fprintf(o.w, "Red: %s\n", strings.Join(l.RedTeam, ", "))
	fmt.Fprintf(o.w, "Blue: %s\n", strings.Join(l.BlueTeam, ", "))
	fmt.Fprintf(o.w, "Switching: %s\n", strings.Join(l.Switcher, ", "))
	if l.GameStartingAt != nil {
		fmt.Fprintf(o.w, "Game starting at: %s\n", epochTime(*l.GameStartingAt))
	}
}

func (o *Output) printInvites(inv Invites) {
	if len(inv) == 0 {
		fmt.Fprintln(o.w, "No invites")
		return
	}
	for _, inviter := range slices.Sorted(maps.Keys(inv)) {
		fmt.Fprintf(o.w, "  - %s: %d\n", inviter, inv[inviter])
	}
}

func (o *Output) printFriendResult(r FriendResult) {
	switch r.Result {
	case "sent":
		fmt.Fprintln(o.w, "Friend request sent")
	case "accepted":
		fmt.Fprintf(o.w, "You are now friends with %s\n", r.With)
	case "removed":
		fmt.Fprintf(o.w, "Removed %s\n", r.With)
	case "withdrawn":
		fmt.Fprintf(o.w, "Withdrew friend request to %s\n", r.With)
	default:
		fmt.Fprintln(o.w, r.Result)
	}
}

func (o *Output) printRequests(r RequestList) {
	fmt.Fprintf(o.w, "%s requests (%d):\n", r.Direction, len(r.Users))
	for _, u := range r.Users {
		fmt.Fprintf(o.w, "  - %s\n", u)
	}
}

func (o *Output) printGameStatus(g GameStatus) {
	if !g.Running || g.Game == nil {
		fmt.Fprintln(o.w, "No game running")
		return
	}
	fmt.Fprintf(o.w, "Game: %s\n", g.GameID)
	fmt.Fprintf(o.w, "State: %s\n", g.Game.State)
	fmt.Fprintf(o.w, "Round: %d of %d\n", g.Game.Round, g.Game.TotalRounds)
	fmt.Fprintf(o.w, "Red: %s\n", strings.Join(g.Game.RedTeam, ", "))
	fmt.Fprintf(o.w, "Blue: %s\n", strings.Join(g.Game.BlueTeam, ", "))
	if len(g.Game.Stats.Winnings) > 0 {
		won := make([]string, len(g.Game.Stats.Winnings))
		for i, w := range g.Game.Stats.Winnings {
			won[i] = string(w)
		}
		fmt.Fprintf(o.w, "Rounds won: %s\n", strings.Join(won, ", "))
	}
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Connections: %d  Lobbies: %d  Games: %d\n", h.Connections, h.Lobbies, h.Games)
}

func epochTime(epoch float64) string {
	return time.UnixMilli(int64(epoch * 1000)).Format(time.RFC3339)
}
