package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/featbench/internal/bench"
	"github.com/matsen/featbench/internal/config"
	"github.com/matsen/featbench/internal/storage"
)

var (
	benchBatchSizes string
	benchNoPersist  bool
	benchNoVerify   bool
	benchNoHistory  bool
	benchNoProgress bool
	benchCacheSize  int
)

func init() {
	rootCmd.AddCommand(benchCmd)

	f := benchCmd.Flags()
	f.StringVar(&benchBatchSizes, "batch-sizes", "", "Comma-separated batch sizes (e.g. 100,1000,10000)")
	f.BoolVar(&benchNoPersist, "no-persist", false, "Do not write feature files")
	f.BoolVar(&benchNoVerify, "no-verify", false, "Skip the sequential/parallel equivalence check")
	f.BoolVar(&benchNoHistory, "no-history", false, "Do not record the run in the history database")
	f.BoolVar(&benchNoProgress, "no-progress", false, "Suppress progress output")
	f.IntVar(&benchCacheSize, "clean-cache", 0, "LRU size for memoizing cleaned texts (0 = off)")
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time sequential and parallel feature extraction",
	Long: `Load the corpus, then for every batch size take the first n records and run
cleaning, vocabulary building and encoding once on a single worker and once on
the worker pool. Batch sizes larger than the corpus are clamped.

Both strategies must produce identical output; a mismatch exits with code 4.
Feature vectors are written to <output_dir>/train_onehot_<n>.bin and
train_onehot_<n>_parallel.bin.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	if err := applyBenchFlags(cmd, cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	logger := mustLogger(cfg)
	defer logger.Sync()

	records, _ := mustLoadCorpus(cfg, logger)

	runner := bench.NewRunner(bench.OptionsFromConfig(cfg), logger)
	showProgress := humanOutput && !benchNoProgress
	if showProgress {
		runner.SetProgressReporter(bench.ProgressFunc(printProgress))
		fmt.Fprintf(os.Stderr, "Benchmarking %d records with %d workers...\n", len(records), cfg.Workers)
	}

	report, err := runner.Run(cmd.Context(), cfg.Input, records)
	if showProgress {
		clearProgress()
	}
	if err != nil {
		if errors.Is(err, bench.ErrStrategyMismatch) {
			exitWithError(ExitMismatch, "benchmark: %v", err)
		}
		exitWithError(ExitError, "benchmark: %v", err)
	}

	if !benchNoHistory {
		if err := recordRun(cfg, report); err != nil {
			// History is best effort.
			logger.Warn("recording run history", zap.Error(err))
		}
	}

	if humanOutput {
		printReport(os.Stdout, report)
		return nil
	}
	return outputJSON(report)
}

// applyBenchFlags applies bench-only flags on top of the loaded config.
func applyBenchFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("batch-sizes") {
		sizes, err := config.ParseBatchSizes(benchBatchSizes)
		if err != nil {
			return err
		}
		cfg.BatchSizes = sizes
	}
	if benchNoPersist {
		cfg.SkipPersist = true
	}
	if benchNoVerify {
		cfg.SkipVerify = true
	}
	if cmd.Flags().Changed("clean-cache") {
		cfg.CleanCacheSize = benchCacheSize
	}
	return cfg.Validate()
}

// recordRun appends the report to the JSONL log and indexes it in SQLite.
func recordRun(cfg *config.Config, report *bench.Report) error {
	if err := storage.AppendRun(runsPath(cfg), report); err != nil {
		return err
	}
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveRun(report)
}

// printReport renders a report as one table per batch size.
func printReport(w io.Writer, r *bench.Report) {
	fmt.Fprintf(w, "Run %s\n", r.ID)
	fmt.Fprintf(w, "  Records: %d  Workers: %d  Max vocab: %d\n", r.Records, r.Workers, r.MaxVocab)
	fmt.Fprintf(w, "  Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(w, "  Total time: %s\n", formatDuration(r.Duration))

	for _, sr := range r.Sizes {
		fmt.Fprintln(w)
		if sr.Requested != sr.BatchSize {
			fmt.Fprintf(w, "Batch %d (requested %d)\n", sr.BatchSize, sr.Requested)
		} else {
			fmt.Fprintf(w, "Batch %d\n", sr.BatchSize)
		}
		fmt.Fprintf(w, "  Vocabulary: %d  Density: %.3f%%  Fallbacks: %d\n",
			sr.VocabSize, sr.Features.Density*100, sr.Cleaning.Fallback)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  STAGE\tSEQUENTIAL\tPARALLEL\tSPEEDUP")
		for _, t := range append(sr.Timings, sr.Total()) {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", t.Stage,
				formatDuration(t.Sequential), formatDuration(t.Parallel), formatSpeedup(t.Speedup()))
		}
		tw.Flush()

		for _, path := range sr.Files {
			fmt.Fprintf(w, "  Saved %s\n", path)
		}
	}
}
