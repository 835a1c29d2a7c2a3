package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpserver "github.com/jking323/TaskHarvester/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server over stdio",
	Long: `Run TaskHarvester as an MCP server on stdin and stdout, exposing the
extract_action_items tool. Logs always go to stderr.

Example client configuration:
  {"command": "taskharvester", "args": ["mcp"]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// stdout carries the protocol.
		cfg.Logging.Stream = "stderr"

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.WithoutCancel(ctx))

		srv, err := mcpserver.NewServer(&mcpserver.Config{
			Name:    "taskharvester",
			Version: version,
			Logger:  a.logger.Underlying().Named("mcp"),
		}, a.orchestrator)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		return srv.Run(ctx)
	},
}
