// Package main provides the featbench CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/featbench/internal/config"
	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/logging"
	"github.com/matsen/featbench/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool

	configPath string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "featbench",
	Short: "Benchmark sequential vs parallel text feature extraction",
	Long: `featbench cleans a labelled text corpus, builds a bounded bag-of-words
vocabulary and encodes every text as a binary presence vector, timing each
stage with one worker and with a worker pool.

Feature vectors are written as raw float32 batches; run history is kept in
an append-only JSONL log with a SQLite index for queries.
All commands output JSON by default; pass --human for tables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	pf.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/featbench/config.yml)")
	pf.String("input", "", "Input corpus CSV")
	pf.String("output-dir", "", "Directory for feature files and run history")
	pf.Int("workers", 0, "Worker pool size for the parallel strategy")
	pf.Int("max-vocab", 0, "Maximum vocabulary size")
	pf.Int("chunk-size", 0, "Items claimed per dispatcher step (0 = auto)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration and applies explicitly set flags, exits on error.
func mustLoadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	if err := applyFlags(cmd, cfg); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return cfg
}

// applyFlags copies every flag the user set onto cfg, then re-validates.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("input") {
		cfg.Input, err = flags.GetString("input")
	}
	if err == nil && flags.Changed("output-dir") {
		if cfg.DBPath == filepath.Join(cfg.OutputDir, config.DefaultDBFile) {
			cfg.DBPath = ""
		}
		cfg.OutputDir, err = flags.GetString("output-dir")
	}
	if err == nil && flags.Changed("workers") {
		cfg.Workers, err = flags.GetInt("workers")
	}
	if err == nil && flags.Changed("max-vocab") {
		cfg.MaxVocab, err = flags.GetInt("max-vocab")
	}
	if err == nil && flags.Changed("chunk-size") {
		cfg.ChunkSize, err = flags.GetInt("chunk-size")
	}
	if err == nil && flags.Changed("log-level") {
		cfg.Log.Level, err = flags.GetString("log-level")
	}
	if err != nil {
		return fmt.Errorf("reading flags: %w", err)
	}
	cfg.Normalize()
	return cfg.Validate()
}

// mustLogger builds the logger described by cfg, exits on error.
func mustLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		exitWithError(ExitConfigError, "creating logger: %v", err)
	}
	return logger
}

// mustLoadCorpus reads the input corpus, exits on error or when no record survives.
func mustLoadCorpus(cfg *config.Config, logger *zap.Logger) ([]corpus.Record, corpus.LoadStats) {
	records, stats, err := corpus.Load(cfg.Input, logger)
	if err != nil {
		exitWithError(ExitDataError, "loading corpus %s: %v", cfg.Input, err)
	}
	if len(records) == 0 {
		exitWithError(ExitDataError, "loading corpus %s: %v", cfg.Input, corpus.ErrEmptyCorpus)
	}
	return records, stats
}

// mustOpenDatabase opens the run-history database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenDatabase(cfg *config.Config) *storage.DB {
	db, err := storage.OpenDB(cfg.DBPath)
	if err != nil {
		exitWithError(ExitError, "opening database: %v", err)
	}
	return db
}

// runsPath returns the JSONL run log inside the output directory.
func runsPath(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, storage.RunsFile)
}
