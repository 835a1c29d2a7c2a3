// Package main implements the taskharvester command.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// logLevel overrides logging.level from the config file.
	logLevel string

	// version information, set via ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskharvester",
	Short: "Extract action items from emails, chat messages and meeting transcripts",
	Long: `taskharvester turns unstructured messages into reviewed action items using a
local language model.

Each document is sent to the model once, the reply is parsed and normalized,
and every item is sorted into auto_accept, needs_review or rejected by its
confidence score.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/taskharvester/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
}
