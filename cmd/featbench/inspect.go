package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/featbench/internal/encode"
	"github.com/matsen/featbench/internal/featstore"
)

var (
	inspectHeaderOnly bool
	inspectRows       int
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectHeaderOnly, "header", false, "Only read and check the header")
	inspectCmd.Flags().IntVar(&inspectRows, "rows", 0, "Print the active slots of the first n rows")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Describe a feature-vector file",
	Long: `Read a feature file, check its header against the file size and report
its shape and sparsity.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

// InspectResult is the response for the inspect command.
type InspectResult struct {
	Path      string        `json:"path"`
	SizeBytes int64         `json:"size_bytes"`
	Count     uint64        `json:"count"`
	Dim       uint64        `json:"dim"`
	Stats     *encode.Stats `json:"stats,omitempty"`
	Rows      [][]int       `json:"rows,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]

	h, size, err := featstore.Inspect(path)
	if err != nil {
		code := ExitError
		if errors.Is(err, featstore.ErrBadHeader) {
			code = ExitDataError
		}
		exitWithError(code, "inspecting %s: %v", path, err)
	}
	result := InspectResult{Path: path, SizeBytes: size, Count: h.Count, Dim: h.Dim}

	if !inspectHeaderOnly {
		batch, err := featstore.Open(path)
		if err != nil {
			exitWithError(ExitDataError, "reading %s: %v", path, err)
		}
		stats := batch.Stats()
		result.Stats = &stats
		result.Rows = activeSlots(batch, inspectRows)
	}

	if humanOutput {
		outputHuman("%s (%s)\n", path, formatBytes(size))
		outputHuman("  Vectors: %d  Dimension: %d\n", h.Count, h.Dim)
		if s := result.Stats; s != nil {
			outputHuman("  Active components: %d (%.3f%%)\n", s.Active, s.Density*100)
			outputHuman("  Per row: mean %.2f, max %d, %d empty\n", s.MeanActive, s.MaxActive, s.EmptyRows)
		}
		for i, slots := range result.Rows {
			outputHuman("  [%d] %s\n", i, joinInts(slots))
		}
		return nil
	}
	return outputJSON(result)
}

// activeSlots returns the set slot indices of the first n rows.
func activeSlots(b encode.Batch, n int) [][]int {
	if n <= 0 {
		return nil
	}
	n = min(n, b.Count)
	rows := make([][]int, n)
	for i := 0; i < n; i++ {
		slots := []int{}
		for j, x := range b.Row(i) {
			if x != 0 {
				slots = append(slots, j)
			}
		}
		rows[i] = slots
	}
	return rows
}

func joinInts(xs []int) string {
	if len(xs) == 0 {
		return "-"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, " ")
}
