package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/matsen/featbench/internal/bench"
	"github.com/matsen/featbench/internal/storage"
)

var (
	runsLimit int
	runsStage string
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsRebuildCmd)
	runsCmd.AddCommand(runsSpeedupsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", DefaultListLimit, "Maximum number of runs to list (0 = all)")
	runsSpeedupsCmd.Flags().StringVar(&runsStage, "stage", string(bench.StageEncode), "Stage to report (clean, vocab, encode)")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded benchmark runs",
	Long: `List benchmark runs recorded by 'featbench bench', newest first.

Runs are appended to <output_dir>/runs.jsonl and indexed in SQLite.`,
	Args: cobra.NoArgs,
	RunE: runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run",
	Long:  `Show the full report of a run. A unique prefix of the run ID is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the run database from the JSONL log",
	Args:  cobra.NoArgs,
	RunE:  runRunsRebuild,
}

var runsSpeedupsCmd = &cobra.Command{
	Use:   "speedups",
	Short: "Show recorded speedups of one stage by batch size",
	Args:  cobra.NoArgs,
	RunE:  runRunsSpeedups,
}

// RunsListResult is the response for the runs command.
type RunsListResult struct {
	Runs  []storage.RunSummary `json:"runs"`
	Total int                  `json:"total"`
}

func runRunsList(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	db := mustOpenDatabase(cfg)
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		exitWithError(ExitError, "listing runs: %v", err)
	}
	total, err := db.CountRuns()
	if err != nil {
		exitWithError(ExitError, "counting runs: %v", err)
	}

	if humanOutput {
		if len(runs) == 0 {
			outputHuman("No runs recorded\n")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTARTED\tRECORDS\tWORKERS\tSIZES\tDURATION")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", shortID(r.ID),
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.Records, r.Workers, r.Sizes,
				formatDuration(r.Duration))
		}
		tw.Flush()
		if total > len(runs) {
			outputHuman("\nShowing %d of %d runs\n", len(runs), total)
		}
		return nil
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	return outputJSON(RunsListResult{Runs: runs, Total: total})
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	db := mustOpenDatabase(cfg)
	defer db.Close()

	report, err := db.GetRun(args[0])
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) || errors.Is(err, storage.ErrAmbiguousID) {
			exitWithError(ExitNotFound, "%v", err)
		}
		exitWithError(ExitError, "loading run: %v", err)
	}

	if humanOutput {
		printReport(os.Stdout, report)
		return nil
	}
	return outputJSON(report)
}

// RebuildResult is the response for the runs rebuild command.
type RebuildResult struct {
	Status string `json:"status"`
	Runs   int    `json:"runs"`
	Path   string `json:"path"`
}

func runRunsRebuild(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	db := mustOpenDatabase(cfg)
	defer db.Close()

	path := runsPath(cfg)
	n, err := db.RebuildFromJSONL(path)
	if err != nil {
		exitWithError(ExitDataError, "rebuilding run database: %v", err)
	}

	if humanOutput {
		outputHuman("Rebuilt run database from %s: %d runs\n", path, n)
		return nil
	}
	return outputJSON(RebuildResult{Status: "rebuilt", Runs: n, Path: path})
}

func runRunsSpeedups(cmd *cobra.Command, args []string) error {
	stage := bench.Stage(runsStage)
	if !validStage(stage) {
		exitWithError(ExitError, "unknown stage %q (want clean, vocab or encode)", runsStage)
	}

	cfg := mustLoadConfig(cmd)
	db := mustOpenDatabase(cfg)
	defer db.Close()

	points, err := db.Speedups(stage)
	if err != nil {
		exitWithError(ExitError, "querying speedups: %v", err)
	}

	if humanOutput {
		if len(points) == 0 {
			outputHuman("No runs recorded\n")
			return nil
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "BATCH\tRUN\tWORKERS\t%s SPEEDUP\n", stage)
		for _, p := range points {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", p.BatchSize, shortID(p.RunID), p.Workers, formatSpeedup(p.Speedup))
		}
		tw.Flush()
		return nil
	}
	if points == nil {
		points = []storage.SpeedupPoint{}
	}
	return outputJSON(points)
}

func validStage(s bench.Stage) bool {
	for _, st := range bench.Stages {
		if s == st {
			return true
		}
	}
	return false
}
