package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thefall/sessionserver/internal/protocol"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Account lookup commands",
	}

	cmd.AddCommand(newUserGetCmd())
	cmd.AddCommand(newUserMeCmd())

	return cmd
}

func newUserGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <username>",
		Short: "Show a user's public profile and stats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := client.Call(cmd.Context(), "get_user", map[string]any{"username": args[0]})
			if err != nil {
				return err
			}
			if frame["ret_type"] == "NoneType" {
				return fmt.Errorf("user %s not found", args[0])
			}

			var result protocol.PublicUser
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			output(cmd).Print(result)
			return nil
		},
	}
}

func newUserMeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Log in and show your own account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.HasCredentials() {
				return fmt.Errorf("--username and --password are required")
			}
			ctx := cmd.Context()
			if err := client.Connect(ctx); err != nil {
				return err
			}
			result, err := client.Login(ctx, cfg.Username, cfg.Password)
			if err != nil {
				return err
			}
			output(cmd).Print(*result)
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var name, user, email, pass, code string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new account",
		Long: `Register a new account in two steps. Run once without --otp to have a
one-time code emailed, then again with the same details and --otp <code>.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || user == "" || email == "" || pass == "" {
				return fmt.Errorf("--name, --user, --email and --pass are required")
			}

			req := map[string]any{
				"displayname": name,
				"username":    user,
				"email":       email,
				"password":    pass,
			}
			if code != "" {
				req["otp"] = code
			}

			frame, err := client.Call(cmd.Context(), "register", req)
			if err != nil {
				return err
			}

			out := output(cmd)
			if code == "" {
				out.PrintMessage(fmt.Sprintf("A code was sent to %s; run register again with --otp", email))
				return nil
			}

			var result LoginResult
			if err := decode(frame["result"], &result); err != nil {
				return err
			}
			out.Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "Password (required)")
	cmd.Flags().StringVar(&code, "otp", "", "One-time code from the email")

	return cmd
}

func newPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password reset commands",
	}

	cmd.AddCommand(newPasswordCodeCmd())
	cmd.AddCommand(newPasswordUpdateCmd())

	return cmd
}

func newPasswordCodeCmd() *cobra.Command {
	var user, email string

	cmd := &cobra.Command{
		Use:   "code",
		Short: "Email a password reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Call(cmd.Context(), "send_fpwd_code", map[string]any{
				"username": user,
				"email":    email,
			}); err != nil {
				return err
			}
			output(cmd).PrintMessage(fmt.Sprintf("A reset code was sent to %s", email))
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newPasswordUpdateCmd() *cobra.Command {
	var user, email, pass, code string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Set a new password using a reset code",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := client.Call(cmd.Context(), "update_password", map[string]any{
				"username": user,
				"email":    email,
				"password": pass,
				"otp_code": code,
			}); err != nil {
				return err
			}
			output(cmd).PrintMessage("Password updated")
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Username (required)")
	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&pass, "pass", "", "New password (required)")
	cmd.Flags().StringVar(&code, "otp", "", "Reset code from the email (required)")
	for _, name := range []string{"user", "email", "pass", "otp"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
