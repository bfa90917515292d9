package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matsen/featbench/internal/textclean"
	"github.com/matsen/featbench/internal/vocab"
)

var (
	vocabLimit int
	vocabTop   int
	vocabSave  string
)

func init() {
	rootCmd.AddCommand(vocabCmd)

	f := vocabCmd.Flags()
	f.IntVarP(&vocabLimit, "limit", "n", 0, "Use only the first n records (0 = all)")
	f.IntVar(&vocabTop, "top", DefaultListLimit, "Number of entries to print (0 = all)")
	f.StringVar(&vocabSave, "save", "", "Write the full vocabulary to this file")
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Build the vocabulary and list its most frequent tokens",
	Long: `Clean the corpus, count tokens on the worker pool and print the top entries.

Tokens are ranked by descending count; equal counts keep first-occurrence order.`,
	Args: cobra.NoArgs,
	RunE: runVocab,
}

// VocabResult is the response for the vocab command.
type VocabResult struct {
	Size           int           `json:"size"`
	DistinctTokens int           `json:"distinct_tokens"`
	TotalTokens    int           `json:"total_tokens"`
	Texts          int           `json:"texts"`
	Entries        []vocab.Entry `json:"entries"`
	Path           string        `json:"path,omitempty"`
}

func runVocab(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	logger := mustLogger(cfg)
	defer logger.Sync()

	records, _ := mustLoadCorpus(cfg, logger)
	records = limitRecords(records, vocabLimit)

	d, _ := strategyDispatcher(cfg, logger, false)
	texts, err := cleanTexts(cmd, d, records, cfg.CleanCacheSize, textclean.WithLogger(logger))
	if err != nil {
		exitWithError(ExitError, "cleaning corpus: %v", err)
	}

	v, stats, err := vocab.Build(cmd.Context(), texts, cfg.MaxVocab, d)
	if err != nil {
		exitWithError(ExitError, "building vocabulary: %v", err)
	}
	if vocabSave != "" {
		if err := saveVocabulary(vocabSave, v); err != nil {
			exitWithError(ExitError, "saving vocabulary: %v", err)
		}
	}

	result := VocabResult{
		Size:           v.Size(),
		DistinctTokens: stats.DistinctTokens,
		TotalTokens:    stats.TotalTokens,
		Texts:          stats.Texts,
		Entries:        v.Entries(vocabTop),
		Path:           vocabSave,
	}
	if humanOutput {
		outputHuman("Vocabulary: %d of %d distinct tokens (%d tokens in %d texts)\n\n",
			result.Size, result.DistinctTokens, result.TotalTokens, result.Texts)
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(tw, "SLOT\tTOKEN\tCOUNT\t\n")
		for _, e := range result.Entries {
			fmt.Fprintf(tw, "%d\t%s\t%d\t\n", e.Slot, e.Token, e.Count)
		}
		tw.Flush()
		return nil
	}
	return outputJSON(result)
}
