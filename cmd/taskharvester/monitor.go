package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jking323/TaskHarvester/internal/monitor"
)

var (
	monitorServer   string
	monitorInterval time.Duration
)

func init() {
	monitorCmd.Flags().StringVar(&monitorServer, "server", "", "server URL (default from server.host and server.http_port)")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "refresh interval")
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of the review queue and inference health",
	Long: `Show a terminal dashboard for a running "taskharvester serve": item counts by
tier and review status, the share of items reviewed, and the inference
endpoint's reachability and latency.

Examples:
  taskharvester monitor
  taskharvester monitor --server http://harvester.lan:8000 --interval 10s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		server := monitorServer
		if server == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			server = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		}

		p := tea.NewProgram(monitor.NewModel(server, monitorInterval), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("dashboard failed: %w", err)
		}
		return nil
	},
}
