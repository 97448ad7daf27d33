package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	var inviteCode string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stay connected and stream pushes from the server",
		Long: `Keep the connection open and print every push the server sends.

With --join the session first joins the lobby with that invite code, so lobby
and game updates are streamed too. Pushes include:
  - on_friends_update: a friend request was accepted or a friend removed you
  - on_lobby_update: join, leave, team_update, settings_update, on_game_start
  - game_started: a game you are in has started
  - on_game_update: next_check (round results), character and bullet relays
  - on_game_finish: a watched game has finished

Press Ctrl+C to disconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return streamEvents(ctx, cmd, inviteCode)
		},
	}

	cmd.Flags().StringVar(&inviteCode, "join", "", "Join the lobby with this invite code first")

	return cmd
}

func streamEvents(ctx context.Context, cmd *cobra.Command, inviteCode string) error {
	if err := login(ctx); err != nil {
		return err
	}

	out := output(cmd)
	if inviteCode != "" {
		frame, err := client.Authed(ctx, "join_lobby", map[string]any{"invite_code": inviteCode})
		if err != nil {
			return err
		}
		var lobby LobbyResult
		if err := decode(frame["result"], &lobby); err != nil {
			return err
		}
		if cfg.Output != "json" {
			fmt.Fprintf(cmd.OutOrStdout(), "Joined lobby %s\n", lobby.LobbyID)
		}
	}

	if cfg.Output != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "Connected, waiting for events")
	}

	for {
		frame, err := client.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				if cfg.Output != "json" {
					fmt.Fprintln(cmd.OutOrStdout(), "\nDisconnected")
				}
				return nil
			}
			return fmt.Errorf("stream error: %w", err)
		}
		out.PrintEvent(frame)
	}
}
