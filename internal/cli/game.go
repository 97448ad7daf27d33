package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thefall/sessionserver/internal/protocol"
)

func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Game commands (login required)",
	}

	cmd.AddCommand(newGameCreateCmd())
	cmd.AddCommand(newGameStatusCmd())

	return cmd
}

func newGameCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <lobby-id>",
		Short: "Start a game in the lobby (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "create_game", map[string]any{"lobby_id": args[0]})
			if err != nil {
				return err
			}
			var result GameStatus
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			result.Running = true
			output(cmd).Print(result)
			return nil
		},
	}
}

func newGameStatusCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the game you last played in, if it is still running",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			frame, err := authed(cmd, "game_is_running", map[string]any{"notify_on_finish": watch})
			if err != nil {
				return err
			}

			out := output(cmd)
			if frame["status"] != true {
				out.Print(GameStatus{})
				return nil
			}

			started, err := nextPush(ctx, protocol.NotifyGameStarted)
			if err != nil {
				return err
			}
			var status GameStatus
			if err := decode(started, &status); err != nil {
				return err
			}
			status.Running = true
			out.Print(status)

			if !watch {
				return nil
			}
			if _, err := nextPush(ctx, protocol.NotifyGameFinish); err != nil {
				return err
			}
			out.PrintMessage(fmt.Sprintf("Game %s finished", status.GameID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Stay connected until the game finishes")

	return cmd
}

// nextPush waits for the next push named notify, discarding others
func nextPush(ctx context.Context, notify string) (Frame, error) {
	for {
		frame, err := client.Next(ctx)
		if err != nil {
			return nil, err
		}
		if frame.Notify() == notify {
			return frame, nil
		}
	}
}
