package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matsen/featbench/internal/bench"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "featbench.db"))
	if err != nil {
		t.Fatalf("Failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetRun(t *testing.T) {
	db := setupTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := testReport("5f0c7a1e-0000-4000-8000-000000000001", started)

	if err := db.SaveRun(run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	// Saving again replaces rather than duplicates.
	if err := db.SaveRun(run); err != nil {
		t.Fatalf("SaveRun() second call error = %v", err)
	}

	count, err := db.CountRuns()
	if err != nil {
		t.Fatalf("CountRuns() error = %v", err)
	}
	if count != 1 {
		t.Errorf("CountRuns() = %d, want 1", count)
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Fingerprint != run.Fingerprint || len(got.Sizes) != 2 {
		t.Errorf("GetRun() = %+v", got)
	}

	got, err = db.GetRun("5f0c7a1e")
	if err != nil {
		t.Fatalf("GetRun(prefix) error = %v", err)
	}
	if got.ID != run.ID {
		t.Errorf("GetRun(prefix).ID = %q, want %q", got.ID, run.ID)
	}
}

func TestGetRun_NotFoundAndAmbiguous(t *testing.T) {
	db := setupTestDB(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"aaaa-1", "aaaa-2"} {
		if err := db.SaveRun(testReport(id, started)); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	if _, err := db.GetRun("zzzz"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(missing) error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.GetRun(""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(empty) error = %v, want ErrRunNotFound", err)
	}
	if _, err := db.GetRun("aaaa"); !errors.Is(err, ErrAmbiguousID) {
		t.Errorf("GetRun(ambiguous) error = %v, want ErrAmbiguousID", err)
	}
}

func TestListRuns(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// The middle run has a fractional second to check text ordering.
	starts := []time.Time{base, base.Add(1500 * time.Millisecond), base.Add(time.Hour)}
	for i, s := range starts {
		if err := db.SaveRun(testReport(string(rune('a'+i)), s)); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns() returned %d runs, want 3", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" || runs[2].ID != "a" {
		t.Errorf("ListRuns() order = %s %s %s, want c b a", runs[0].ID, runs[1].ID, runs[2].ID)
	}
	if runs[0].Sizes != 2 || runs[0].Duration != 3*time.Second || runs[0].Input != "data/raw/train.csv" {
		t.Errorf("ListRuns()[0] = %+v", runs[0])
	}
	if !runs[1].StartedAt.Equal(starts[1]) {
		t.Errorf("StartedAt = %v, want %v", runs[1].StartedAt, starts[1])
	}

	limited, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListRuns(2) returned %d runs", len(limited))
	}
}

func TestSpeedups(t *testing.T) {
	db := setupTestDB(t)
	if err := db.SaveRun(testReport("r1", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	points, err := db.Speedups(bench.StageEncode)
	if err != nil {
		t.Fatalf("Speedups() error = %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Speedups() returned %d points, want 2", len(points))
	}
	if points[0].BatchSize != 100 || points[0].Speedup != 2 {
		t.Errorf("points[0] = %+v", points[0])
	}
	if points[1].BatchSize != 250 || points[1].Speedup != 3 {
		t.Errorf("points[1] = %+v", points[1])
	}
}

func TestRebuildFromJSONL(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, RunsFile)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := db.SaveRun(testReport("stale", started)); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	for _, id := range []string{"r1", "r2"} {
		if err := AppendRun(path, testReport(id, started)); err != nil {
			t.Fatalf("AppendRun() error = %v", err)
		}
	}

	n, err := db.RebuildFromJSONL(path)
	if err != nil {
		t.Fatalf("RebuildFromJSONL() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RebuildFromJSONL() = %d, want 2", n)
	}
	if _, err := db.GetRun("stale"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("stale run survived rebuild: %v", err)
	}
	if _, err := db.GetRun("r2"); err != nil {
		t.Errorf("GetRun(r2) error = %v", err)
	}
}
