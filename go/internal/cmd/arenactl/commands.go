package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(endCmd)
	rootCmd.AddCommand(kickCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(planesCmd)
	rootCmd.AddCommand(healthCmd)
}

func newCreateCmd() *cobra.Command {
	var (
		duration   int
		maxPlayers int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new match and print its join PIN and QR payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if cmd.Flags().Changed("duration") {
				body["duration"] = duration
			}
			if cmd.Flags().Changed("max-players") {
				body["maxPlayers"] = maxPlayers
			}
			return runPrivileged(cmd, "/api/new-match", body)
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 420, "Match length in seconds (30-1800)")
	cmd.Flags().IntVar(&maxPlayers, "max-players", 2, "Maximum number of planes (2-16)")
	return cmd
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the waiting match",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrivileged(cmd, "/api/start-match", nil)
	},
}

var endCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active match and print the results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrivileged(cmd, "/api/end-match", nil)
	},
}

var kickCmd = &cobra.Command{
	Use:   "kick PLANE_ID",
	Short: "Remove a plane from the match, disqualifying it if the match is active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrivileged(cmd, "/api/kick", map[string]any{"planeId": args[0]})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the ended match",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrivileged(cmd, "/api/clear-match", nil)
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show the current match and live scores",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, "/api/match")
	},
}

var planesCmd = &cobra.Command{
	Use:   "planes",
	Short: "List the planes that are online",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, "/api/planes")
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, "/health")
	},
}

func runPrivileged(cmd *cobra.Command, path string, body map[string]any) error {
	data, err := NewClient(host, serverToken).Privileged(path, body)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}

func runGet(cmd *cobra.Command, path string) error {
	data, err := NewClient(host, serverToken).Get(path)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), data)
}
