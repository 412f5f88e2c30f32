package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "suara",
	Short:         "Real-time voice sessions for telephony and web widgets",
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `suara bridges telephony media streams and web widgets to conversational
agents: it groups connections into conversation rooms, streams synthesized
speech back in real time and answers questions from an ingested knowledge base.

Running without a subcommand starts the server.`,
	RunE: runServe,
}

var (
	envFile string
	debug   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment from this file instead of .env")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Use a development logger")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
