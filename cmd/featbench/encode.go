package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matsen/featbench/internal/bench"
	"github.com/matsen/featbench/internal/config"
	"github.com/matsen/featbench/internal/corpus"
	"github.com/matsen/featbench/internal/dispatch"
	"github.com/matsen/featbench/internal/encode"
	"github.com/matsen/featbench/internal/featstore"
	"github.com/matsen/featbench/internal/textclean"
	"github.com/matsen/featbench/internal/vocab"
)

var (
	encodeLimit      int
	encodeOutput     string
	encodeVocabIn    string
	encodeVocabOut   string
	encodeSequential bool
)

func init() {
	rootCmd.AddCommand(encodeCmd)

	f := encodeCmd.Flags()
	f.IntVarP(&encodeLimit, "limit", "n", 0, "Encode only the first n records (0 = all)")
	f.StringVarP(&encodeOutput, "output", "o", "", "Feature file (default <output_dir>/train_onehot_<n>.bin)")
	f.StringVar(&encodeVocabIn, "vocab", "", "Use a saved vocabulary instead of building one")
	f.StringVar(&encodeVocabOut, "save-vocab", "", "Write the vocabulary used to this file")
	f.BoolVar(&encodeSequential, "sequential", false, "Run on a single worker")
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Clean, build a vocabulary and write feature vectors",
	Long: `Run the full pipeline once with one strategy and save the feature batch.

The output file holds the record count and dimension as little-endian uint64
followed by count*dimension float32 values in row-major order.`,
	Args: cobra.NoArgs,
	RunE: runEncode,
}

// EncodeResult is the response for the encode command.
type EncodeResult struct {
	Status    string       `json:"status"`
	Path      string       `json:"path"`
	Strategy  string       `json:"strategy"`
	Records   int          `json:"records"`
	VocabSize int          `json:"vocab_size"`
	Features  encode.Stats `json:"features"`
	Duration  float64      `json:"duration_seconds"`
}

func runEncode(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	logger := mustLogger(cfg)
	defer logger.Sync()

	records, _ := mustLoadCorpus(cfg, logger)
	records = limitRecords(records, encodeLimit)

	d, strategy := strategyDispatcher(cfg, logger, encodeSequential)
	start := time.Now()

	texts, err := cleanTexts(cmd, d, records, cfg.CleanCacheSize, textclean.WithLogger(logger))
	if err != nil {
		exitWithError(ExitError, "cleaning corpus: %v", err)
	}

	v := mustVocabulary(cmd, cfg, d, texts)
	if encodeVocabOut != "" {
		if err := saveVocabulary(encodeVocabOut, v); err != nil {
			exitWithError(ExitError, "saving vocabulary: %v", err)
		}
	}

	enc := encode.NewEncoder(v, d, logger)
	batch, err := enc.Encode(cmd.Context(), texts, !encodeSequential)
	if err != nil {
		exitWithError(ExitError, "encoding: %v", err)
	}

	path := encodeOutput
	if path == "" {
		path = filepath.Join(cfg.OutputDir, featstore.FileName(len(records), strategy))
	}
	if err := featstore.Save(path, batch); err != nil {
		exitWithError(ExitError, "saving features: %v", err)
	}

	result := EncodeResult{
		Status:    "encoded",
		Path:      path,
		Strategy:  strategy,
		Records:   len(records),
		VocabSize: v.Size(),
		Features:  batch.Stats(),
		Duration:  time.Since(start).Seconds(),
	}
	if humanOutput {
		outputHuman("Encoded %d records (%s, %d workers)\n", result.Records, strategy, d.Workers())
		outputHuman("  Vocabulary: %d tokens\n", result.VocabSize)
		outputHuman("  Active components: %d (%.3f%%), %d empty rows\n",
			result.Features.Active, result.Features.Density*100, result.Features.EmptyRows)
		outputHuman("  Time elapsed: %s\n", formatDuration(time.Since(start)))
		outputHuman("  Saved %s\n", path)
		return nil
	}
	return outputJSON(result)
}

// strategyDispatcher returns the dispatcher and strategy name for a command.
func strategyDispatcher(cfg *config.Config, logger *zap.Logger, sequential bool) (*dispatch.Dispatcher, string) {
	if sequential {
		return dispatch.Sequential(dispatch.WithLogger(logger)), bench.StrategySequential
	}
	return dispatch.New(cfg.Workers, dispatch.WithChunkSize(cfg.ChunkSize), dispatch.WithLogger(logger)), bench.StrategyParallel
}

// limitRecords returns the first n records, or all of them when n <= 0.
func limitRecords(records []corpus.Record, n int) []corpus.Record {
	if n <= 0 || n >= len(records) {
		return records
	}
	return records[:n]
}

// mustVocabulary reads the --vocab file if given, otherwise builds one from texts.
func mustVocabulary(cmd *cobra.Command, cfg *config.Config, d *dispatch.Dispatcher, texts []string) *vocab.Vocabulary {
	if encodeVocabIn != "" {
		f, err := os.Open(encodeVocabIn)
		if err != nil {
			exitWithError(ExitDataError, "opening vocabulary: %v", err)
		}
		defer f.Close()
		v, err := vocab.Read(f)
		if err != nil {
			exitWithError(ExitDataError, "reading vocabulary %s: %v", encodeVocabIn, err)
		}
		return v
	}

	v, _, err := vocab.Build(cmd.Context(), texts, cfg.MaxVocab, d)
	if err != nil {
		exitWithError(ExitError, "building vocabulary: %v", err)
	}
	return v
}

// saveVocabulary writes v as token<TAB>count lines.
func saveVocabulary(path string, v *vocab.Vocabulary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := v.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
