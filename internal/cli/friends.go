package cli

import (
	"github.com/spf13/cobra"
)

func newFriendsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Friend request commands (login required)",
	}

	cmd.AddCommand(newFriendsAddCmd())
	cmd.AddCommand(newFriendsRemoveCmd())
	cmd.AddCommand(newFriendsListCmd("inbound", "get_inbound_requests", "List friend requests sent to you"))
	cmd.AddCommand(newFriendsListCmd("outbound", "get_outbound_requests", "List friend requests you have sent"))

	return cmd
}

func newFriendsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <username>",
		Short: "Send or accept a friend request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "add_friend", map[string]any{"to_user": args[0]})
			if err != nil {
				return err
			}
			var result FriendResult
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newFriendsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Remove a friend or withdraw a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, "remove_friend", map[string]any{"with_user": args[0]})
			if err != nil {
				return err
			}
			var result FriendResult
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newFriendsListCmd(direction, command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := authed(cmd, command, nil)
			if err != nil {
				return err
			}
			result := RequestList{Direction: direction}
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}
