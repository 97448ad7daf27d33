// Package cli implements the thefall command-line client, which speaks the
// session protocol over a websocket.
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "thefall",
		Short: "CLI tool for the TheFall session server",
		Long: `thefall is a CLI tool that speaks TheFall's websocket session protocol.

Each invocation opens one connection, logs in when --username and --password
are given, runs one command and disconnects. Session tokens are bound to the
connection, so lobby membership ends with the command; use "events" to stay
connected and watch pushes.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			client = NewClient(cfg.ServerURL, cfg.Timeout)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if client != nil {
				return client.Close()
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Websocket URL (env: THEFALL_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Username, "username", "u", cfg.Username, "Log in as this user (env: THEFALL_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Password, "password", "p", cfg.Password, "Password (env: THEFALL_PASSWORD)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Time to wait for each reply")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Print pushes received while waiting for replies")

	// Add subcommands
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newPasswordCmd())
	rootCmd.AddCommand(newFriendsCmd())
	rootCmd.AddCommand(newLobbyCmd())
	rootCmd.AddCommand(newGameCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newHealthCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// output returns the formatter for cmd
func output(cmd *cobra.Command) *Output {
	return NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// login connects and, when credentials are configured, authenticates
func login(ctx context.Context) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if !cfg.HasCredentials() {
		return nil
	}
	_, err := client.Login(ctx, cfg.Username, cfg.Password)
	return err
}

// authed logs in and sends an authenticated command
func authed(cmd *cobra.Command, command string, kwargs map[string]any) (Frame, error) {
	ctx := cmd.Context()
	if err := login(ctx); err != nil {
		return nil, err
	}
	frame, err := client.Authed(ctx, command, kwargs)
	if cfg.Verbose {
		out := output(cmd)
		for _, push := range client.Drain() {
			out.PrintEvent(push)
		}
	}
	return frame, err
}
