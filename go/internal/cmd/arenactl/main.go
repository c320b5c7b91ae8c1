package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	host        string
	serverToken string
)

var rootCmd = &cobra.Command{
	Use:   "arenactl",
	Short: "A referee CLI for the AeroDuel arena server",
	Long: `A command-line interface for running matches on an AeroDuel arena
server: create a match, start it, kick planes and read the scoreboard.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:45045", "The base URL of the arena server")
	rootCmd.PersistentFlags().StringVar(&serverToken, "token", os.Getenv("SERVER_TOKEN"), "The referee secret (defaults to $SERVER_TOKEN)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arenactl: %s\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
