// Package storage keeps the history of benchmark runs: an append-only JSONL
// log as the source of truth and a SQLite index for listing and lookup.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matsen/featbench/internal/bench"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// RunsFile is the conventional name of the run log inside the output directory.
const RunsFile = "runs.jsonl"

// ReadRuns reads all reports from a JSONL file. A missing file yields no runs.
func ReadRuns(path string) ([]bench.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening runs file: %w", err)
	}
	defer f.Close()

	var runs []bench.Report
	scanner := bufio.NewScanner(f)
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var run bench.Report
		if err := json.Unmarshal(line, &run); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		runs = append(runs, run)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading runs file: %w", err)
	}
	return runs, nil
}

// AppendRun adds a report to the end of a JSONL file, creating the file and
// its directory if needed.
func AppendRun(path string, run *bench.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating runs directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening runs file for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding run: %w", err)
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}
	return nil
}
