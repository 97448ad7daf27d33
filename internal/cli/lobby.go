package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLobbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobby",
		Short: "Lobby commands (login required)",
	}

	cmd.AddCommand(newLobbyCreateCmd())
	cmd.AddCommand(newLobbyJoinCmd())
	cmd.AddCommand(newLobbyLeaveCmd())
	cmd.AddCommand(newLobbyTeamCmd())
	cmd.AddCommand(newLobbySettingsCmd())
	cmd.AddCommand(newLobbyInviteCmd())
	cmd.AddCommand(newLobbyInvitesCmd())

	return cmd
}

func printLobby(cmd *cobra.Command, frame Frame) error {
	var result LobbyResult
	if err := decode(frame["result"], &result); err != nil {
		return err
	}
	output(cmd).Print(result)
	return nil
}

func newLobbyCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new lobby",
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "create_lobby", nil)
			if err != nil {
				return err
			}
			return printLobby(cmd, frame)
		},
	}
}

func newLobbyJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <invite-code>",
		Short: "Join a lobby by its invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "join_lobby", map[string]any{"invite_code": args[0]})
			if err != nil {
				return err
			}
			return printLobby(cmd, frame)
		},
	}
}

func newLobbyLeaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave <lobby-id>",
		Short: "Leave a lobby",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := authed(cmd, "leave_lobby", map[string]any{"lobby_id": args[0]}); err != nil {
				return err
			}
			output(cmd).PrintMessage(fmt.Sprintf("Left lobby %s", args[0]))
			return nil
		},
	}
}

func newLobbyTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "team <lobby-id> <red|blue|switcher>",
		Short: "Move to a team",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := authed(cmd, "join_team", map[string]any{"lobby_id": args[0], "team": args[1]}); err != nil {
				return err
			}
			output(cmd).PrintMessage(fmt.Sprintf("Joined %s", args[1]))
			return nil
		},
	}
}

func newLobbySettingsCmd() *cobra.Command {
	var rounds, duration int

	cmd := &cobra.Command{
		Use:   "settings <lobby-id>",
		Short: "Update the next game's settings (host only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "update_game_settings", map[string]any{
				"lobby_id": args[0],
				"settings_dict": map[string]int{
					"total_rounds":   rounds,
					"round_duration": duration,
				},
			})
			if err != nil {
				return err
			}

			var result struct {
				Status  bool   `json:"status"`
				Message string `json:"message"`
			}
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			if !result.Status {
				output(cmd).PrintMessage(result.Message)
				return nil
			}
			output(cmd).PrintMessage(fmt.Sprintf("Settings updated: %d rounds of %ds", rounds, duration))
			return nil
		},
	}

	cmd.Flags().IntVar(&rounds, "rounds", 3, "Total rounds")
	cmd.Flags().IntVar(&duration, "duration", 150, "Round duration in seconds")

	return cmd
}

func newLobbyInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invite <lobby-id> <username>",
		Short: "Invite a user to a lobby",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := authed(cmd, "invite", map[string]any{"lobby_id": args[0], "user": args[1]}); err != nil {
				return err
			}
			output(cmd).PrintMessage(fmt.Sprintf("Invited %s", args[1]))
			return nil
		},
	}
}

func newLobbyInvitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invites",
		Short: "List invites sent to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "get_invites", nil)
			if err != nil {
				return err
			}
			result := Invites{}
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
