package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/config"
	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/ingest"
)

var (
	watchSourceType string
	watchExisting   bool
	watchDebounce   time.Duration
)

func init() {
	watchCmd.Flags().StringVar(&watchSourceType, "source-type", "", "source type for files that do not name one")
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "also extract files already in the directory")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", ingest.DefaultDebounce, "quiet interval before a changed file is read")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Extract action items from files dropped into a directory",
	Long: `Watch a drop directory and extract action items from every file created or
rewritten in it. The directory defaults to ingest.watch_dir.

Results go to the configured store and NATS subjects. Runs until SIGINT or
SIGTERM.

Examples:
  taskharvester watch ~/Mail/exported
  taskharvester watch --existing --source-type meeting_transcript ./transcripts`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Ingest.WatchDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return fmt.Errorf("no directory given and ingest.watch_dir is not set")
	}
	return watch(ctx, cfg, dir)
}

func watch(ctx context.Context, cfg *config.Config, dir string) error {
	sourceType := watchSourceType
	if sourceType == "" {
		sourceType = cfg.Ingest.DefaultSourceType
	}
	st, err := extraction.ParseSourceType(sourceType)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	w, err := ingest.NewWatcher(dir, ingest.Defaults{SourceType: st},
		ingest.WithDebounce(watchDebounce),
		ingest.WithExisting(watchExisting),
		ingest.WithWatcherLogger(a.logger.Underlying().Named("watch")),
	)
	if err != nil {
		return err
	}

	opts := a.orchestrator.Defaults()
	return w.Run(ctx, func(ctx context.Context, path string, docs []extraction.SourceDocument) {
		results, err := a.orchestrator.ExtractBatch(ctx, docs, opts)
		if err != nil {
			a.logger.Error(ctx, "extraction failed", zap.String("path", path), zap.Error(err))
			return
		}
		summary := extraction.Summarize(results)
		a.logger.Info(ctx, "file extracted",
			zap.String("path", path),
			zap.Int("documents", summary.Documents),
			zap.Int("items", summary.Items),
			zap.Int("auto_accept", summary.ByTier[extraction.TierAutoAccept]),
			zap.Int("needs_review", summary.ByTier[extraction.TierNeedsReview]),
			zap.Int("failed", summary.Failed),
		)
	})
}
