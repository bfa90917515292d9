package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/textclean"
)

// CleanedFile is the default name of the cleaned corpus export.
const CleanedFile = "train_cleaned.csv"

var (
	cleanOutput     string
	cleanSequential bool
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().StringVarP(&cleanOutput, "output", "o", "", "Output CSV (default <output_dir>/"+CleanedFile+")")
	cleanCmd.Flags().BoolVar(&cleanSequential, "sequential", false, "Clean on a single worker")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean the corpus and export it as CSV",
	Long: `Clean every record of the input corpus and write id,"text",sentiment rows.

Records whose cleaning fails keep their raw text and are counted as fallbacks.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

// CleanResult is the response for the clean command.
type CleanResult struct {
	Status   string            `json:"status"`
	Path     string            `json:"path"`
	Records  int               `json:"records"`
	Load     corpus.LoadStats  `json:"load"`
	Outcomes textclean.Summary `json:"outcomes"`
	Workers  int               `json:"workers"`
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	logger := mustLogger(cfg)
	defer logger.Sync()

	records, loadStats := mustLoadCorpus(cfg, logger)

	d := dispatch.New(cfg.Workers, dispatch.WithChunkSize(cfg.ChunkSize), dispatch.WithLogger(logger))
	if cleanSequential {
		d = dispatch.Sequential(dispatch.WithLogger(logger))
	}
	cleaner, err := textclean.NewCleaner(d, textclean.WithLogger(logger), textclean.WithCache(cfg.CleanCacheSize))
	if err != nil {
		exitWithError(ExitConfigError, "creating cleaner: %v", err)
	}

	results, err := cleaner.CleanBatch(cmd.Context(), records)
	if err != nil {
		exitWithError(ExitError, "cleaning corpus: %v", err)
	}

	path := cleanOutput
	if path == "" {
		path = filepath.Join(cfg.OutputDir, CleanedFile)
	}
	if err := corpus.SaveCleaned(path, records, textclean.Texts(results)); err != nil {
		exitWithError(ExitError, "writing cleaned corpus: %v", err)
	}

	result := CleanResult{
		Status:   "cleaned",
		Path:     path,
		Records:  len(records),
		Load:     loadStats,
		Outcomes: textclean.Summarize(results),
		Workers:  d.Workers(),
	}
	if humanOutput {
		outputHuman("Cleaned %d records with %d workers\n", result.Records, result.Workers)
		outputHuman("  Cleaned: %d  Empty: %d  Fallback: %d\n",
			result.Outcomes.Cleaned, result.Outcomes.Empty, result.Outcomes.Fallback)
		if loadStats.ShortLines+loadStats.MalformedLines > 0 {
			outputHuman("  Skipped lines: %d short, %d malformed\n", loadStats.ShortLines, loadStats.MalformedLines)
		}
		outputHuman("  Saved %s\n", path)
		return nil
	}
	return outputJSON(result)
}

// cleanTexts cleans records on d and returns the cleaned texts in order.
func cleanTexts(cmd *cobra.Command, d *dispatch.Dispatcher, records []corpus.Record, cacheSize int, opts ...textclean.Option) ([]string, error) {
	cleaner, err := textclean.NewCleaner(d, append([]textclean.Option{textclean.WithCache(cacheSize)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating cleaner: %w", err)
	}
	results, err := cleaner.CleanBatch(cmd.Context(), records)
	if err != nil {
		return nil, err
	}
	return textclean.Texts(results), nil
}
