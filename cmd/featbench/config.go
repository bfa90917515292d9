package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matsen/featbench/internal/config"
)

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the configuration after applying, in order: built-in defaults, the
config file, a .env file in the working directory, FEATBENCH_* environment
variables and command-line flags.

Keys:
  input             Input corpus CSV
  output_dir        Directory for feature files and run history
  db_path           Run history database (default <output_dir>/featbench.db)
  workers           Worker pool size (<= 0 becomes 1)
  max_vocab         Maximum vocabulary size
  batch_sizes       Batch sizes to benchmark
  chunk_size        Items claimed per dispatcher step (0 = auto)
  clean_cache_size  LRU size for memoizing cleaned texts (0 = off)
  skip_persist      Do not write feature files during bench
  skip_verify       Skip the sequential/parallel equivalence check
  log.level         debug, info, warn or error
  log.format        console or json`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default values",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig(cmd)
	if humanOutput {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			exitWithError(ExitError, "encoding config: %v", err)
		}
		outputHuman("%s", data)
		return nil
	}
	return outputJSON(cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.Path()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		exitWithError(ExitConfigError, "cannot determine config path; pass one explicitly")
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		exitWithError(ExitConfigError, "config file %s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		exitWithError(ExitError, "writing config: %v", err)
	}

	if humanOutput {
		outputHuman("Wrote %s\n", path)
		return nil
	}
	return outputJSON(StatusResponse{Status: "created", Path: path})
}
