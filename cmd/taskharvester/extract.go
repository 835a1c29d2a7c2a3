package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jking323/TaskHarvester/internal/config"
	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/ingest"
)

var (
	extractSourceType  string
	extractModel       string
	extractStore       bool
	extractRetryFailed bool
)

func init() {
	extractCmd.Flags().StringVar(&extractSourceType, "source-type", "", "source type for files that do not name one (email, chat_message, meeting_transcript)")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "model override")
	extractCmd.Flags().BoolVar(&extractStore, "store", false, "persist extracted items to the configured store")
	extractCmd.Flags().BoolVar(&extractRetryFailed, "retry-failed", false, "rerun failed documents once")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [paths...]",
	Short: "Extract action items from files or stdin",
	Long: `Extract action items from document files and print the results as JSON.

Files may be JSON or YAML document lists, RFC 822 .eml messages or plain
text. Directories are read recursively, skipping hidden entries. With no
paths, or "-", the document is read from stdin.

Examples:
  # Extract from a saved email
  taskharvester extract inbox/standup.eml

  # Extract from a transcript piped on stdin
  cat notes.txt | taskharvester extract --source-type meeting_transcript -

  # Persist results and retry anything that failed
  taskharvester extract --store --retry-failed batch.json`,
	RunE: runExtract,
}

// extractReport is what extract prints.
type extractReport struct {
	Results []extraction.DocumentResult `json:"results"`
	Summary extraction.BatchSummary     `json:"summary"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.Enabled = extractStore

	docs, err := loadDocuments(cmd.InOrStdin(), args, cfg, extractSourceType)
	if err != nil {
		return err
	}

	report, err := extract(ctx, cfg, docs, extractModel, extractRetryFailed)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// loadDocuments reads the documents named by args, or stdin.
func loadDocuments(stdin io.Reader, args []string, cfg *config.Config, sourceType string) ([]extraction.SourceDocument, error) {
	if sourceType == "" {
		sourceType = cfg.Ingest.DefaultSourceType
	}
	st, err := extraction.ParseSourceType(sourceType)
	if err != nil {
		return nil, err
	}
	defaults := ingest.Defaults{SourceType: st}

	var docs []extraction.SourceDocument
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		docs, err = ingest.LoadReader(stdin, "stdin", defaults)
	} else {
		docs, err = ingest.LoadPaths(args, defaults)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents to extract")
	}
	return docs, nil
}

// extract runs one batch and, when retryFailed is set, reruns the failed
// documents once and replaces their results.
func extract(ctx context.Context, cfg *config.Config, docs []extraction.SourceDocument, model string, retryFailed bool) (*extractReport, error) {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer a.Close(context.WithoutCancel(ctx))

	opts := a.orchestrator.Defaults()
	if model != "" {
		opts.Model = model
	}

	results, err := a.orchestrator.ExtractBatch(ctx, docs, opts)
	if err != nil {
		return nil, err
	}

	if failed := extraction.Failed(results); retryFailed && len(failed) > 0 {
		a.logger.Info(ctx, "retrying failed documents", zap.Int("count", len(failed)))
		retried, err := a.orchestrator.ExtractBatch(ctx, failed, opts)
		if err != nil {
			return nil, err
		}
		byRef := make(map[string]extraction.DocumentResult, len(retried))
		for _, r := range retried {
			byRef[r.Document.Ref] = r
		}
		for i, r := range results {
			if again, ok := byRef[r.Document.Ref]; ok {
				results[i] = again
			}
		}
	}

	summary := extraction.Summarize(results)
	a.logger.Info(ctx, "extraction finished",
		zap.Int("documents", summary.Documents),
		zap.Int("items", summary.Items),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return &extractReport{Results: results, Summary: summary}, nil
}
