package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/config"
	httpserver "github.com/jking323/TaskHarvester/internal/http"
)

var (
	serveHost string
	servePort int
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides server.http_port)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the TaskHarvester HTTP API.

Extracted items are persisted when store.enabled is set and published to NATS
when events.enabled is set. SIGINT or SIGTERM shuts the server down
gracefully.

Examples:
  # Serve on the configured address
  taskharvester serve

  # Serve on all interfaces
  taskharvester serve --host 0.0.0.0 --port 9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	return serve(ctx, cfg)
}

// serve runs the HTTP API until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		a.Close(closeCtx)
	}()

	zl := a.logger.Underlying()
	opts := []httpserver.Option{
		httpserver.WithInference(a.inference.Client),
		httpserver.WithHTTPMetrics(httpserver.NewHTTPMetrics(zl.Named("http"))),
		httpserver.WithHealthCheck("telemetry", func(context.Context) error {
			if h := a.telemetry.Health(); h.Degraded {
				return fmt.Errorf("telemetry degraded: %s", h.Reason)
			}
			return nil
		}),
	}
	if a.store != nil {
		opts = append(opts,
			httpserver.WithItemStore(a.store),
			httpserver.WithHealthCheck("store", a.store.Ping),
		)
	}
	if a.nc != nil {
		opts = append(opts, httpserver.WithHealthCheck("events", func(context.Context) error {
			if !a.nc.IsConnected() {
				return errors.New("nats connection is " + a.nc.Status().String())
			}
			return nil
		}))
	}

	srv, err := httpserver.NewServer(a.orchestrator, zl.Named("http"), &httpserver.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info(ctx, "shutdown signal received", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}
