package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matsen/featbench/internal/bench"
)

func testReport(id string, started time.Time) *bench.Report {
	return &bench.Report{
		ID:          id,
		StartedAt:   started,
		Input:       "data/raw/train.csv",
		Fingerprint: "abc123",
		Records:     250,
		Workers:     8,
		MaxVocab:    5000,
		Duration:    3 * time.Second,
		Sizes: []bench.SizeReport{
			{
				Requested: 100,
				BatchSize: 100,
				VocabSize: 42,
				Verified:  true,
				Timings: []bench.Timing{
					{Stage: bench.StageClean, Sequential: 40 * time.Millisecond, Parallel: 10 * time.Millisecond},
					{Stage: bench.StageVocab, Sequential: 20 * time.Millisecond, Parallel: 10 * time.Millisecond},
					{Stage: bench.StageEncode, Sequential: 30 * time.Millisecond, Parallel: 15 * time.Millisecond},
				},
			},
			{
				Requested: 1000,
				BatchSize: 250,
				VocabSize: 80,
				Verified:  true,
				Timings: []bench.Timing{
					{Stage: bench.StageClean, Sequential: 90 * time.Millisecond, Parallel: 30 * time.Millisecond},
					{Stage: bench.StageVocab, Sequential: 40 * time.Millisecond, Parallel: 20 * time.Millisecond},
					{Stage: bench.StageEncode, Sequential: 60 * time.Millisecond, Parallel: 20 * time.Millisecond},
				},
			},
		},
	}
}

func TestReadRuns_NonExistentFile(t *testing.T) {
	runs, err := ReadRuns("/nonexistent/path/runs.jsonl")
	if err != nil {
		t.Fatalf("ReadRuns() error = %v (should return nil for nonexistent file)", err)
	}
	if len(runs) != 0 {
		t.Errorf("ReadRuns() returned %d runs, want 0", len(runs))
	}
}

func TestAppendRun_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", RunsFile)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := AppendRun(path, testReport("run-1", started)); err != nil {
		t.Fatalf("AppendRun() error = %v", err)
	}
	if err := AppendRun(path, testReport("run-2", started.Add(time.Hour))); err != nil {
		t.Fatalf("AppendRun() error = %v", err)
	}

	runs, err := ReadRuns(path)
	if err != nil {
		t.Fatalf("ReadRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ReadRuns() returned %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-1" || runs[1].ID != "run-2" {
		t.Errorf("run order = %s, %s", runs[0].ID, runs[1].ID)
	}
	got := runs[0]
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if len(got.Sizes) != 2 || got.Sizes[1].Requested != 1000 || got.Sizes[1].BatchSize != 250 {
		t.Errorf("Sizes = %+v", got.Sizes)
	}
	if got.Sizes[0].Timings[2].Stage != bench.StageEncode {
		t.Errorf("stage = %q", got.Sizes[0].Timings[2].Stage)
	}
}

func TestReadRuns_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), RunsFile)
	content := "{\"id\":\"ok\"}\n\n{not json}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	if _, err := ReadRuns(path); err == nil {
		t.Error("ReadRuns() expected error for invalid JSON")
	}
}
