package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/prospector/internal/logging"
	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/output"
	"github.com/ppiankov/prospector/internal/pipeline"
)

var cfgFile string

// rootCmd runs a prospecting session
var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Prospector - business contact discovery",
	Long: `Prospector discovers publicly listed business contacts for a set of industry
keywords across regions and cities.

For every (keyword, location) pair it queries a web search API, visits the
result pages politely (robots.txt, randomized delays, per-host rate limits),
extracts emails and phone numbers, normalizes and deduplicates them, and
persists the growing contact list to CSV, JSON or SQLite.

Press Ctrl+C once to finish the current page and save, twice to abort.

Example:
  prospector --config config.yaml
  prospector --sample=false --workers 4 --formats csv,sqlite
  prospector plan`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runProspect,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or "+DefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose (debug) logging")
	rootCmd.PersistentFlags().Bool("json-logs", false, "emit logs as JSON")
	rootCmd.PersistentFlags().Bool("sample", true, "sample mode: first 2 keywords, regions and cities")

	rootCmd.Flags().Int("workers", 1, "concurrent extractions (one per host at a time)")
	rootCmd.Flags().Int("results", 5, "search results kept per task")
	rootCmd.Flags().String("output", "results", "output directory")
	rootCmd.Flags().StringSlice("formats", []string{"csv", "json"}, "output formats (csv, json, sqlite)")
	rootCmd.Flags().String("dedup", "memory", "deduplication backend (memory, redis)")
	rootCmd.Flags().Bool("headless", true, "run the browser headless")
	rootCmd.Flags().String("summary", "", "write a Markdown run summary to this path")
}

func runProspect(cmd *cobra.Command, args []string) error {
	cfg, path, err := LoadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	logger := logging.New(errOut, cfg.Output.Verbose, cfg.Output.JSONLogs)
	slog.SetDefault(logger)
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}

	o, err := pipeline.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := o.Close(); cerr != nil {
			logger.Warn("shutdown", "error", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	stopOnSignal(ctx, o, cancel, logger)

	fmt.Fprintf(errOut, "Prospecting %d keywords in %d regions (sample mode: %v)\n\n",
		len(cfg.Keywords), len(cfg.Regions), cfg.SampleMode)

	summary, runErr := o.Run(ctx)
	printSummary(errOut, summary, cfg)

	if cfg.Output.SummaryMarkdown != "" {
		if err := output.WriteSummaryFile(cfg.Output.SummaryMarkdown, summary); err != nil {
			logger.Warn("write summary", "path", cfg.Output.SummaryMarkdown, "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if summary.State == model.StateAborted {
		return errors.New(summary.AbortReason)
	}
	return nil
}

// stopOnSignal requests a cooperative stop on the first interrupt and
// cancels the run on the second.
func stopOnSignal(ctx context.Context, o *pipeline.Orchestrator, cancel context.CancelFunc, logger *slog.Logger) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			logger.Warn("stopping after the current page, interrupt again to abort")
			o.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			logger.Warn("aborting")
			cancel()
		case <-ctx.Done():
		}
	}()
}

func printSummary(w io.Writer, s model.RunSummary, cfg *model.Config) {
	fmt.Fprintf(w, "\nRun %s %s", s.RunID, s.State)
	if s.Stopped {
		fmt.Fprint(w, " (stopped)")
	}
	fmt.Fprintln(w)
	if s.AbortReason != "" {
		fmt.Fprintf(w, "  Reason:      %s\n", s.AbortReason)
	}
	fmt.Fprintf(w, "  Tasks:       %d/%d (%d search failures)\n", s.TasksRun, s.TasksPlanned, s.SearchFailures)
	fmt.Fprintf(w, "  URLs:        %d found, %d visited, %d repeated, %d robots-skipped\n",
		s.URLsFound, s.URLsVisited, s.URLsRepeated, s.RobotsSkipped)
	fmt.Fprintf(w, "  Extraction:  %d static, %d dynamic, %d failed\n",
		s.StaticExtractions, s.DynamicExtractions, s.ExtractionFailures)
	fmt.Fprintf(w, "  Contacts:    %d accepted, %d duplicates, %d rejected\n", s.Accepted, s.Duplicates, s.Rejected)
	fmt.Fprintf(w, "  Saved:       %d records in %s (%d flushes, %d errors)\n",
		s.RecordsSaved, cfg.Persist.OutputDir, s.Flushes, s.FlushErrors)
	fmt.Fprintf(w, "  Elapsed:     %s\n", s.Elapsed.Round(time.Millisecond))
}
