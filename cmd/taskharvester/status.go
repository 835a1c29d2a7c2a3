package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jking323/TaskHarvester/internal/config"
	"github.com/jking323/TaskHarvester/internal/inference"
	"github.com/jking323/TaskHarvester/internal/logging"
)

var (
	statusJSON    bool
	statusTimeout time.Duration
)

// errNotReady is returned when the endpoint or model is missing, so the
// command exits non-zero.
var errNotReady = errors.New("inference endpoint not ready")

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
	statusCmd.Flags().DurationVar(&statusTimeout, "timeout", 10*time.Second, "how long to wait for the endpoint")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the inference endpoint and model",
	Long: `Check that the inference endpoint answers and that the configured model is
installed. Exits non-zero when either is missing.

Examples:
  taskharvester status
  INFERENCE_MODEL=mistral:7b taskharvester status --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
		defer cancel()
		return checkStatus(ctx, cmd.OutOrStdout(), cfg, statusJSON)
	},
}

func checkStatus(ctx context.Context, w io.Writer, cfg *config.Config, asJSON bool) error {
	lc, err := loggingConfig(cfg, logLevel)
	if err != nil {
		return err
	}
	lc.Output.OTEL = false
	logger, err := logging.NewLogger(lc, nil)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// A status check must reach the endpoint itself.
	ic := inferenceConfig(cfg)
	ic.Cache.Enabled = false
	ic.Breaker.Enabled = false
	ic.RateLimit = 0

	stack, err := inference.New(ctx, ic, logger.Underlying().Named("inference"))
	if err != nil {
		return err
	}
	defer stack.Close()

	st, statusErr := stack.Client.Status(ctx)
	if asJSON {
		out := struct {
			inference.Status
			Error string `json:"error,omitempty"`
		}{Status: st}
		if statusErr != nil {
			out.Error = statusErr.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		printStatus(w, st, statusErr)
	}

	switch {
	case statusErr != nil:
		return fmt.Errorf("%w: %v", errNotReady, statusErr)
	case !st.Reachable:
		return fmt.Errorf("%w: %s is unreachable", errNotReady, st.BaseURL)
	case !st.ModelAvailable:
		return fmt.Errorf("%w: model %s is not installed", errNotReady, st.Model)
	}
	return nil
}

func printStatus(w io.Writer, st inference.Status, err error) {
	mark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "missing"
	}
	fmt.Fprintf(w, "backend:   %s\n", st.Backend)
	fmt.Fprintf(w, "endpoint:  %s (%s", st.BaseURL, mark(st.Reachable))
	if st.Reachable {
		fmt.Fprintf(w, ", %s", st.Latency.Round(time.Millisecond))
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "model:     %s (%s)\n", st.Model, mark(st.ModelAvailable))
	if len(st.Models) > 0 {
		fmt.Fprintf(w, "installed: %s\n", strings.Join(st.Models, ", "))
	}
	if err != nil {
		fmt.Fprintf(w, "error:     %v\n", err)
	}
}
